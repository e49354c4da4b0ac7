package httpapi

import "time"

// maxBodyBytes caps multipart upload size for the predict endpoints.
var maxBodyBytes int64 = 32 << 20

// SetMaxBodyBytes configures the maximum request body size (<= 0 restores
// the 32 MiB default).
func SetMaxBodyBytes(n int64) {
	if n <= 0 {
		maxBodyBytes = 32 << 20
		return
	}
	maxBodyBytes = n
}

// requestTimeout bounds a predict request. Zero means no additional timeout
// beyond server/connection timeouts.
var requestTimeout time.Duration

// SetRequestTimeout sets the predict timeout (negative values disable it).
func SetRequestTimeout(d time.Duration) {
	if d < 0 {
		d = 0
	}
	requestTimeout = d
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
