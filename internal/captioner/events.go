package captioner

// Event represents a cache lifecycle event.
type Event struct {
	Name string
	// LoadID correlates the events of one load attempt.
	LoadID string
	Fields map[string]any
}

// Lifecycle event names.
const (
	EventLoadStart = "load_start"
	EventLoadReady = "load_ready"
	EventLoadError = "load_error"
	EventClosed    = "closed"
)

// EventPublisher receives events from the cache. Implementations should be
// lightweight and non-blocking; Publish must not panic.
type EventPublisher interface {
	Publish(Event)
}

// noopPublisher is the default; it drops events.
type noopPublisher struct{}

func (noopPublisher) Publish(Event) {}
