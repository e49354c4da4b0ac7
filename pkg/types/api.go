package types

// RootResponse is returned by GET /.
type RootResponse struct {
	// example: ok
	Status string `json:"status" example:"ok"`
	// example: captiond is up
	Message string `json:"message" example:"captiond is up"`
}

// CaptionResponse is returned by POST /predict.
type CaptionResponse struct {
	// Generated caption.
	// example: a dog running on the beach
	Caption string `json:"caption" example:"a dog running on the beach"`
}

// BatchResult is one entry of a batch response, in upload order.
type BatchResult struct {
	// Original file name of the upload.
	// example: beach.jpg
	Filename string `json:"filename" example:"beach.jpg"`
	// Generated caption.
	// example: a dog running on the beach
	Caption string `json:"caption" example:"a dog running on the beach"`
}

// BatchResponse is returned by POST /predict_batch.
type BatchResponse struct {
	Results []BatchResult `json:"results"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: invalid image input: empty image data
	Error string `json:"error" example:"invalid image input: empty image data"`
	// HTTP status code.
	// example: 400
	Code int `json:"code" example:"400"`
}

// StatusResponse summarizes the caption cache for /status.
type StatusResponse struct {
	// Cache state: empty, loading or ready.
	// example: ready
	State string `json:"state" example:"ready"`
	// Loaded model, absent until the first successful load.
	Model *ModelInfo `json:"model,omitempty"`
	// Number of successful loads (0 or 1 within a process).
	// example: 1
	Loads int `json:"loads" example:"1"`
	// Number of failed load attempts.
	// example: 0
	LoadFailures int `json:"load_failures" example:"0"`
	// Last load error, if the most recent attempt failed.
	// example:
	Error string `json:"error,omitempty"`
	// Seconds since the service started.
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
	// Requests waiting for or holding an inference slot.
	// example: 0
	QueueLen int `json:"queue_len" example:"0"`
	// Requests currently running inference.
	// example: 1
	Inflight int `json:"inflight" example:"1"`
	// Maximum queued requests allowed before backpressure triggers.
	// example: 32
	MaxQueueDepth int `json:"max_queue_depth" example:"32"`
	// Maximum concurrent inference calls.
	// example: 1
	MaxInflight int `json:"max_inflight" example:"1"`
}
