package types

// ModelInfo describes the loaded captioning model.
type ModelInfo struct {
	// Model family served.
	// example: blip
	Family string `json:"family" example:"blip"`
	// Absolute local folder the model was loaded from.
	// example: /srv/models/blip-base
	Path string `json:"path" example:"/srv/models/blip-base"`
	// Device the engine runs on.
	// example: cpu
	Device string `json:"device" example:"cpu"`
	// Load completion time (unix seconds).
	// example: 1700000000
	LoadedAt int64 `json:"loaded_at_unix" example:"1700000000"`
}
