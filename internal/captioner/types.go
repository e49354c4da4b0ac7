package captioner

import (
	"time"

	"captiond/internal/config"
	"captiond/internal/engine"
	"captiond/internal/resolver"
)

// State is the cache lifecycle state.
type State string

const (
	StateEmpty   State = "empty"
	StateLoading State = "loading"
	StateReady   State = "ready"
)

// Captioner is a loaded model bound to a device. It is immutable once
// built; the cache owns it for the rest of the process.
type Captioner struct {
	Family   string
	Source   resolver.Source
	Device   config.Device
	LoadedAt time.Time
	engine   engine.Engine
}

// Snapshot is a read-only view of the cache.
type Snapshot struct {
	State        State
	Model        *Captioner
	Loads        int
	LoadFailures int
	Err          string
}
