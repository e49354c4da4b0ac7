package captioner

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"captiond/internal/common/fsutil"
	"captiond/internal/config"
	"captiond/internal/engine"
	"captiond/internal/resolver"
)

// LoaderConfig tunes a Loader.
type LoaderConfig struct {
	Engine config.EngineConfig
	// Verify rejects sources that are not local model folders. Defaults to
	// an absolute-path and manifest-presence check.
	Verify func(resolver.Source) error
	// Probe inspects the host when the device preference is auto.
	Probe *engine.Probe
	Log   zerolog.Logger
}

// Loader builds Captioners from resolved local folders. Model families are
// registered engine constructors; "blip" is registered by default.
type Loader struct {
	cfg LoaderConfig

	mu       sync.RWMutex
	families map[string]engine.Constructor
}

// NewLoader returns a Loader with the default family registered.
func NewLoader(cfg LoaderConfig) *Loader {
	if cfg.Verify == nil {
		cfg.Verify = verifyLocal
	}
	if cfg.Probe == nil {
		p := engine.HostProbe()
		cfg.Probe = &p
	}
	l := &Loader{cfg: cfg, families: make(map[string]engine.Constructor)}
	l.Register(config.DefaultModelFamily, engine.New)
	return l
}

// Register installs (or replaces) the constructor for family.
func (l *Loader) Register(family string, c engine.Constructor) {
	l.mu.Lock()
	l.families[strings.ToLower(family)] = c
	l.mu.Unlock()
}

// Load constructs the engine for src on the device chosen from pref and
// switches it to inference mode. Every failure is a *LoadError naming the
// folder.
func (l *Loader) Load(ctx context.Context, family string, src resolver.Source, pref config.Device) (*Captioner, error) {
	if err := l.cfg.Verify(src); err != nil {
		return nil, &LoadError{Path: src.Dir, Err: err}
	}
	l.mu.RLock()
	ctor, ok := l.families[strings.ToLower(family)]
	l.mu.RUnlock()
	if !ok {
		return nil, &LoadError{Path: src.Dir, Err: fmt.Errorf("unknown model family %q", family)}
	}
	device := engine.SelectDevice(pref, *l.cfg.Probe)
	log := l.cfg.Log.With().Str("family", family).Str("dir", src.Dir).Str("device", string(device)).Logger()
	log.Info().Msg("loading model")

	eng, err := ctor(ctx, engine.Spec{
		ModelDir: src.Dir,
		Manifest: filepath.Base(src.Manifest),
		Device:   device,
		Config:   l.cfg.Engine,
		Log:      l.cfg.Log,
	})
	if err != nil {
		return nil, &LoadError{Path: src.Dir, Err: err}
	}
	if err := eng.SetInferenceMode(); err != nil {
		_ = eng.Close()
		return nil, &LoadError{Path: src.Dir, Err: fmt.Errorf("inference mode: %w", err)}
	}
	return &Captioner{
		Family:   strings.ToLower(family),
		Source:   src,
		Device:   device,
		LoadedAt: time.Now(),
		engine:   eng,
	}, nil
}

func verifyLocal(src resolver.Source) error {
	if !filepath.IsAbs(src.Dir) || !fsutil.IsDir(src.Dir) {
		return errors.New("not an existing local folder")
	}
	if src.Manifest == "" || !fsutil.IsFile(src.Manifest) {
		return errors.New("manifest missing")
	}
	return nil
}
