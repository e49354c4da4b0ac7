package captioner

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"captiond/internal/config"
	"captiond/internal/fetch"
	"captiond/internal/resolver"
)

// Defaults applied when corresponding Config fields are unset.
const (
	defaultMaxLength     = config.DefaultMaxLength
	defaultBeamWidth     = config.DefaultBeamWidth
	defaultMaxBatch      = config.DefaultMaxBatch
	defaultMaxQueueDepth = config.DefaultMaxQueueDepth
	defaultMaxInflight   = config.DefaultMaxInflight
	defaultMaxWait       = time.Duration(config.DefaultMaxWait)
)

// Fetcher mirrors a remote model into the local directory.
type Fetcher interface {
	Fetch(ctx context.Context, remoteURI, localDir string) error
}

// Resolver picks the model folder inside the local directory.
type Resolver interface {
	Resolve(localDir string) (resolver.Source, error)
}

// Config encapsulates all tunables for Cache construction.
type Config struct {
	Family    string
	LocalDir  string
	RemoteURI string
	Device    config.Device

	MaxLength     int
	BeamWidth     int
	MaxBatch      int
	MaxQueueDepth int
	MaxInflight   int
	MaxWait       time.Duration

	Fetcher   Fetcher
	Resolver  Resolver
	Loader    *Loader
	Publisher EventPublisher
	Log       zerolog.Logger
}

// FromConfig wires the real fetcher, resolver and loader from the service
// configuration.
func FromConfig(c config.Config, log zerolog.Logger) Config {
	res := resolver.New(c.ManifestFile, log.With().Str("component", "resolver").Logger())
	return Config{
		Family:        c.ModelFamily,
		LocalDir:      c.LocalModelDir,
		RemoteURI:     c.RemoteURI,
		Device:        c.Device,
		MaxLength:     c.MaxLength,
		BeamWidth:     c.BeamWidth,
		MaxBatch:      c.MaxBatch,
		MaxQueueDepth: c.MaxQueueDepth,
		MaxInflight:   c.MaxInflight,
		MaxWait:       time.Duration(c.MaxWait),
		Fetcher: fetch.New(fetch.Config{
			AllowAnonymous: c.AllowAnonymous,
			Log:            log.With().Str("component", "fetch").Logger(),
		}),
		Resolver: res,
		Loader: NewLoader(LoaderConfig{
			Engine: c.Engine,
			Verify: res.Verify,
			Log:    log.With().Str("component", "loader").Logger(),
		}),
		Log: log,
	}
}

func (c Config) withDefaults() Config {
	if c.Family == "" {
		c.Family = config.DefaultModelFamily
	}
	if c.Device == "" {
		c.Device = config.DeviceAuto
	}
	if c.MaxLength <= 0 {
		c.MaxLength = defaultMaxLength
	}
	if c.BeamWidth <= 0 {
		c.BeamWidth = defaultBeamWidth
	}
	if c.MaxBatch <= 0 {
		c.MaxBatch = defaultMaxBatch
	}
	if c.MaxQueueDepth <= 0 {
		c.MaxQueueDepth = defaultMaxQueueDepth
	}
	if c.MaxInflight <= 0 {
		c.MaxInflight = defaultMaxInflight
	}
	if c.MaxWait <= 0 {
		c.MaxWait = defaultMaxWait
	}
	if c.Fetcher == nil {
		c.Fetcher = fetch.New(fetch.Config{Log: c.Log})
	}
	if c.Resolver == nil {
		c.Resolver = resolver.New(config.DefaultManifestFile, c.Log)
	}
	if c.Loader == nil {
		c.Loader = NewLoader(LoaderConfig{Log: c.Log})
	}
	if c.Publisher == nil {
		c.Publisher = noopPublisher{}
	}
	return c
}
