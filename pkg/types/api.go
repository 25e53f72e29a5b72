package types

import "encoding/json"

// SampleRequest is the payload of POST /sample. Omitted fields take the
// sampler defaults.
type SampleRequest struct {
	// Model identifier. If empty, the server default is used.
	// example: sdxl-base-1.0
	Model string `json:"model,omitempty" example:"sdxl-base-1.0"`
	// example: 42
	Seed uint64 `json:"noise_seed" example:"42"`
	// example: 20
	Steps int `json:"steps,omitempty" example:"20"`
	// example: 7.5
	CFGScale *float64 `json:"cfg_scale,omitempty" example:"7.5"`
	// example: dpmpp_2m
	Sampler string `json:"sampler_name,omitempty" example:"dpmpp_2m"`
	// example: karras
	Scheduler string `json:"scheduler_name,omitempty" example:"karras"`
	// example: 0
	StartAtStep int `json:"start_at_step,omitempty" example:"0"`
	// example: 10000
	EndAtStep *int `json:"end_at_step,omitempty" example:"10000"`
	// example: 7
	VariationSeed uint64 `json:"var_seed,omitempty" example:"7"`
	// example: 0.25
	VariationStrength float64 `json:"var_seed_strength,omitempty" example:"0.25"`
	// Custom bounds; -1 or omitted means the model default. Both must be set to apply.
	SigmaMin *float64 `json:"sigma_min,omitempty" example:"-1"`
	SigmaMax *float64 `json:"sigma_max,omitempty" example:"-1"`
	// example: 7
	Rho *float64 `json:"rho,omitempty" example:"7"`
	// example: true
	AddNoise *bool `json:"add_noise,omitempty" example:"true"`
	// When true the final sigma is not forced to zero.
	ReturnWithLeftoverNoise bool `json:"return_with_leftover_noise,omitempty"`
	// none, one, iterate, animate or default.
	// example: one
	Previews string `json:"previews,omitempty" example:"one"`
	// example: true
	TileSample bool `json:"tile_sample,omitempty" example:"true"`
	// Tile edge in pixels.
	// example: 1024
	TileSize int `json:"tile_size,omitempty" example:"1024"`
	// Walk a clean latent back towards noise.
	Unsample bool `json:"unsample,omitempty"`

	// Input latent. When omitted an empty latent of Width x Height pixels is used.
	Latent *Latent `json:"latent,omitempty"`
	// example: 1024
	Width int `json:"width,omitempty" example:"1024"`
	// example: 1024
	Height int `json:"height,omitempty" example:"1024"`
	// example: 1
	BatchSize int `json:"batch_size,omitempty" example:"1"`
	// Per-channel fill values for the empty latent.
	Offsets []float32 `json:"offsets,omitempty"`
	// Optional single-channel mask; 1 means resample.
	NoiseMask *Latent `json:"noise_mask,omitempty"`
	// Opaque conditioning forwarded to the denoiser.
	Positive json.RawMessage `json:"positive,omitempty" swaggertype:"object"`
	Negative json.RawMessage `json:"negative,omitempty" swaggertype:"object"`
	// Element type of returned latents (f32 or f16).
	// example: f32
	OutputDType string `json:"output_dtype,omitempty" example:"f32"`
}

// Sample stream event kinds.
const (
	EventProgress = "progress"
	EventPreview  = "preview"
	EventDone     = "done"
	EventError    = "error"
)

// SampleEvent is one NDJSON line of the /sample stream.
type SampleEvent struct {
	// example: progress
	Event string `json:"event" example:"progress"`
	// Job identifier shared by every line of one request.
	ID    string `json:"id"`
	Step  int    `json:"step,omitempty"`
	Total int    `json:"total,omitempty"`
	// Tile index, -1 when untiled.
	Tile  int `json:"tile"`
	Tiles int `json:"tiles,omitempty"`
	// Batch slot of a preview.
	PreviewID int      `json:"preview_id,omitempty"`
	Animated  bool     `json:"animated,omitempty"`
	Frames    []Latent `json:"frames,omitempty"`
	Latent    *Latent  `json:"latent,omitempty"`
	Error     string   `json:"error,omitempty"`
	Stage     string   `json:"stage,omitempty"`
	ElapsedMS int64    `json:"elapsed_ms,omitempty"`
}

// ScheduleRequest is the payload of POST /schedule.
type ScheduleRequest struct {
	// example: karras
	Scheduler string `json:"scheduler_name" example:"karras"`
	// example: 20
	Steps int `json:"steps" example:"20"`
	// example: sdxl
	Family   string   `json:"family,omitempty" example:"sdxl"`
	SigmaMin *float64 `json:"sigma_min,omitempty"`
	SigmaMax *float64 `json:"sigma_max,omitempty"`
	Rho      *float64 `json:"rho,omitempty"`
	// Sampler name; second-order samplers fold the schedule.
	// example: euler
	Sampler string `json:"sampler_name,omitempty" example:"euler"`
}

// ScheduleResponse is returned by POST /schedule.
type ScheduleResponse struct {
	Sigmas []float64 `json:"sigmas"`
}

// TilesRequest is the payload of POST /tiles. Height and width are latent cells.
type TilesRequest struct {
	// example: 128
	Height int `json:"height" example:"128"`
	// example: 192
	Width int `json:"width" example:"192"`
	// example: 1024
	TileSize int `json:"tile_size" example:"1024"`
	// example: 8
	ScaleFactor int `json:"scale_factor,omitempty" example:"8"`
}

// TilesResponse is returned by POST /tiles.
type TilesResponse struct {
	Tiles []Rect `json:"tiles"`
}

// ModelsResponse wraps the list of models returned by GET /models.
type ModelsResponse struct {
	// List of available models.
	Models []Model `json:"models"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: invalid JSON body
	Error string `json:"error" example:"invalid JSON body"`
	// HTTP status code.
	// example: 400
	Code int `json:"code" example:"400"`
}

// InstanceStatus summarizes a loaded model instance for /status.
type InstanceStatus struct {
	// example: sdxl-base-1.0
	ModelID string `json:"model_id" example:"sdxl-base-1.0"`
	// Lifecycle state of the instance (loading, ready, draining).
	// example: ready
	State string `json:"state" example:"ready"`
	// Last time this instance served a request (unix seconds).
	// example: 1700000000
	LastUsed int64 `json:"last_used_unix" example:"1700000000"`
	// Estimated VRAM usage in MB.
	// example: 6800
	EstVRAMMB int `json:"est_vram_mb" example:"6800"`
	// example: 0
	QueueLen int `json:"queue_len" example:"0"`
	// example: 1
	Inflight int `json:"inflight" example:"1"`
	// example: 32
	MaxQueueDepth int `json:"max_queue_depth" example:"32"`
	// example: sdxl
	Family string `json:"family,omitempty" example:"sdxl"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	Instances []InstanceStatus `json:"instances"`
	// example: 24576
	BudgetMB int `json:"budget_mb" example:"24576"`
	// example: 6800
	UsedMB int `json:"used_est_mb" example:"6800"`
	// example: 1024
	MarginMB int `json:"margin_mb" example:"1024"`
	Error    string `json:"error,omitempty"`
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
	// example: 1700000000
	ServerTimeUnix int64 `json:"server_time_unix" example:"1700000000"`
	// example: 2
	EvictionsTotal uint64 `json:"evictions_total" example:"2"`
	// example: 3
	LoadsTotal uint64 `json:"loads_total" example:"3"`
	// Completed sampling runs.
	// example: 40
	SamplesTotal uint64 `json:"samples_total" example:"40"`
	// Entries held by the auxiliary model cache.
	// example: 1
	AuxCacheEntries int `json:"aux_cache_entries" example:"1"`
	// example: ready
	State string `json:"state" example:"ready"`
	// example: 0
	WarmupsInProgress int `json:"warmups_in_progress" example:"0"`
	// example: 0
	DrainingCount int `json:"draining_count" example:"0"`
}
