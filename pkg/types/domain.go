package types

// Model represents a diffusion checkpoint discovered on disk.
type Model struct {
	// Stable identifier for the model.
	// example: sdxl-base-1.0
	ID string `json:"id" example:"sdxl-base-1.0"`
	// Human-friendly name.
	// example: SDXL Base 1.0
	Name string `json:"name" example:"SDXL Base 1.0"`
	// Absolute path to the checkpoint on disk.
	// example: /home/user/models/sd_xl_base_1.0.safetensors
	Path string `json:"path" example:"/home/user/models/sd_xl_base_1.0.safetensors"`
	// Checkpoint container format (safetensors, ckpt, sft).
	// example: safetensors
	Format string `json:"format" example:"safetensors"`
	// Model family; selects the noise parameterisation and AYS table (sd1, sdxl, svd).
	// example: sdxl
	Family string `json:"family,omitempty" example:"sdxl"`
}

// Latent is a tensor on the wire: NCHW shape, element type and base64 of the
// little-endian element bytes.
type Latent struct {
	// example: [1,4,128,128]
	Shape [4]int `json:"shape" example:"1,4,128,128"`
	// Element type, f32 or f16.
	// example: f16
	DType string `json:"dtype" example:"f16"`
	Data  string `json:"data"`
}

// Rect is a tile rectangle in latent cells, half-open on the right/bottom.
type Rect struct {
	Left   int `json:"left"`
	Top    int `json:"top"`
	Right  int `json:"right"`
	Bottom int `json:"bottom"`
}
