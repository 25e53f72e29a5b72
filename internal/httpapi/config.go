package httpapi

// maxBodyBytes limits JSON request bodies. Latents travel inline, so the
// default is larger than a plain control API would need.
var maxBodyBytes int64 = 64 << 20

// SetMaxBodyBytes allows configuring the maximum request body size.
func SetMaxBodyBytes(n int64) {
	if n <= 0 {
		maxBodyBytes = 64 << 20
		return
	}
	maxBodyBytes = n
}

// sampleTimeout bounds a /sample request in seconds. Zero disables it.
var sampleTimeout = int64(0)

// SetSampleTimeoutSeconds sets the sample timeout in seconds (0 disables).
func SetSampleTimeoutSeconds(sec int64) {
	if sec < 0 {
		sec = 0
	}
	sampleTimeout = sec
}

// defaultScaleFactor is used by /tiles when the request leaves it out.
var defaultScaleFactor = 8

// SetDefaultScaleFactor sets the latent scale factor assumed by /tiles.
func SetDefaultScaleFactor(n int) {
	if n <= 0 {
		n = 8
	}
	defaultScaleFactor = n
}

// CORS configuration (opt-in). If disabled, no CORS middleware is added.
var (
	corsEnabled        bool
	corsAllowedOrigins []string
	corsAllowedMethods []string
	corsAllowedHeaders []string
)

// SetCORSOptions configures CORS behavior for the HTTP server.
func SetCORSOptions(enabled bool, origins, methods, headers []string) {
	corsEnabled = enabled
	corsAllowedOrigins = append([]string(nil), origins...)
	corsAllowedMethods = append([]string(nil), methods...)
	corsAllowedHeaders = append([]string(nil), headers...)
}
