package limits

// Size limits for API payloads and repository content

const (
	// JSON is the standard size limit for API request/response payloads (1MB)
	JSON = 1 << 20

	// Response is the size limit for API responses read by the client (32MB).
	// Project records embed rendered READMEs, which outgrow JSON.
	Response = 32 << 20

	// ErrorBody is the maximum size for error response bodies (1KB)
	// Used when parsing error messages from failed API calls
	ErrorBody = 1024

	// Readme is the largest README source that will be rendered (512KB)
	Readme = 512 << 10
)
