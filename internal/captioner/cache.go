package captioner

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Cache holds at most one Captioner per process. The first caller that
// finds it empty loads the model; concurrent callers wait on the load gate
// and then observe the same instance.
type Cache struct {
	cfg       Config
	log       zerolog.Logger
	publisher EventPublisher
	startTime time.Time

	// ready is the lock-free fast path; non-nil only in StateReady.
	ready atomic.Pointer[Captioner]
	// gate serializes loads. A buffered channel instead of a mutex so that
	// waiters can give up when their context ends.
	gate chan struct{}
	// fetched is guarded by gate.
	fetched bool

	mu       sync.RWMutex
	state    State
	err      string
	loads    int
	failures int
	closed   bool

	queueCh chan struct{}
	genCh   chan struct{}
}

// New constructs an empty Cache. Nothing is fetched or loaded until the
// first EnsureLoaded, Caption or CaptionBatch call.
func New(cfg Config) *Cache {
	cfg = cfg.withDefaults()
	return &Cache{
		cfg:       cfg,
		log:       cfg.Log,
		publisher: cfg.Publisher,
		startTime: time.Now(),
		gate:      make(chan struct{}, 1),
		state:     StateEmpty,
		queueCh:   make(chan struct{}, cfg.MaxQueueDepth),
		genCh:     make(chan struct{}, cfg.MaxInflight),
	}
}

// EnsureLoaded returns the cached Captioner, loading it first if needed.
// A failed load leaves the cache empty so a later call retries.
func (m *Cache) EnsureLoaded(ctx context.Context) (*Captioner, error) {
	if c := m.ready.Load(); c != nil {
		return c, nil
	}
	select {
	case m.gate <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-m.gate }()

	// Another caller may have finished loading while we waited.
	if c := m.ready.Load(); c != nil {
		return c, nil
	}
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	m.state = StateLoading
	m.mu.Unlock()

	c, err := m.load(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.state = StateEmpty
		m.err = err.Error()
		m.failures++
		return nil, err
	}
	m.state = StateReady
	m.err = ""
	m.loads++
	m.ready.Store(c)
	return c, nil
}

// load runs fetch (until one succeeds), resolve and load. Called with the
// gate held.
func (m *Cache) load(ctx context.Context) (*Captioner, error) {
	id := uuid.NewString()
	log := m.log.With().Str("load_id", id).Logger()
	start := time.Now()
	m.publisher.Publish(Event{Name: EventLoadStart, LoadID: id, Fields: map[string]any{"family": m.cfg.Family, "dir": m.cfg.LocalDir}})
	log.Info().Str("family", m.cfg.Family).Str("dir", m.cfg.LocalDir).Msg("model load start")

	c, err := m.loadSteps(ctx, log)
	dur := time.Since(start)
	modelLoadDuration.Observe(dur.Seconds())
	if err != nil {
		modelLoadsTotal.WithLabelValues("error").Inc()
		m.publisher.Publish(Event{Name: EventLoadError, LoadID: id, Fields: map[string]any{"error": err.Error()}})
		log.Error().Err(err).Dur("dur", dur).Msg("model load failed")
		return nil, err
	}
	modelLoadsTotal.WithLabelValues("ok").Inc()
	m.publisher.Publish(Event{Name: EventLoadReady, LoadID: id, Fields: map[string]any{"path": c.Source.Dir, "device": string(c.Device)}})
	log.Info().Str("path", c.Source.Dir).Str("device", string(c.Device)).Dur("dur", dur).Msg("model ready")
	return c, nil
}

func (m *Cache) loadSteps(ctx context.Context, log zerolog.Logger) (*Captioner, error) {
	if m.cfg.RemoteURI != "" && !m.fetched {
		if err := m.cfg.Fetcher.Fetch(ctx, m.cfg.RemoteURI, m.cfg.LocalDir); err != nil {
			return nil, err
		}
		m.fetched = true
	}
	src, err := m.cfg.Resolver.Resolve(m.cfg.LocalDir)
	if err != nil {
		return nil, err
	}
	log.Debug().Str("dir", src.Dir).Msg("model folder resolved")
	return m.cfg.Loader.Load(ctx, m.cfg.Family, src, m.cfg.Device)
}

// Ready reports whether a model is loaded and the cache is open.
func (m *Cache) Ready() bool {
	if m.ready.Load() == nil {
		return false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return !m.closed
}

// Close waits for in-flight generations (until ctx ends) and releases the
// engine. Later calls fail with ErrClosed.
func (m *Cache) Close(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	// Wait out a load in progress.
	select {
	case m.gate <- struct{}{}:
		defer func() { <-m.gate }()
	case <-ctx.Done():
		return ctx.Err()
	}
	// Drain in-flight slots so no generation races the engine shutdown.
	held := 0
	defer func() {
		for ; held > 0; held-- {
			<-m.genCh
		}
	}()
	for held < cap(m.genCh) {
		select {
		case m.genCh <- struct{}{}:
			held++
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	c := m.ready.Swap(nil)
	m.publisher.Publish(Event{Name: EventClosed})
	if c == nil {
		return nil
	}
	m.log.Info().Str("path", c.Source.Dir).Msg("closing model")
	return c.engine.Close()
}
