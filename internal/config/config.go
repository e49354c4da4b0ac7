package config

import (
	"fmt"
	"strings"
	"time"
)

// Device is the configured compute preference for the inference engine.
type Device string

const (
	DeviceAuto Device = "auto"
	DeviceCPU  Device = "cpu"
	// Accelerators: "cuda", "cuda:<n>" or "metal".
)

// Defaults applied when the corresponding Config fields are unset.
const (
	DefaultModelFamily    = "blip"
	DefaultLocalModelDir  = "models"
	DefaultManifestFile   = "config.json"
	DefaultMaxLength      = 80
	DefaultBeamWidth      = 3
	DefaultLogLevel       = "info"
	DefaultAddr           = ":8080"
	DefaultMaxBodyBytes   = 32 << 20
	DefaultMaxBatch       = 16
	DefaultMaxQueueDepth  = 32
	DefaultMaxInflight    = 1
	DefaultMaxWait        = Duration(30 * time.Second)
	DefaultEngineKind     = "llama-server"
	DefaultLlamaBin       = "llama-server"
	DefaultLlamaHost      = "127.0.0.1"
	DefaultStartupTimeout = Duration(60 * time.Second)
)

// EngineConfig tunes the inference engine subprocess.
type EngineConfig struct {
	Kind           string        `json:"kind" yaml:"kind" toml:"kind"`
	Bin            string        `json:"bin" yaml:"bin" toml:"bin"`
	Host           string        `json:"host" yaml:"host" toml:"host"`
	CtxSize        int           `json:"ctx_size" yaml:"ctx_size" toml:"ctx_size"`
	NGL            int           `json:"ngl" yaml:"ngl" toml:"ngl"`
	Threads        int           `json:"threads" yaml:"threads" toml:"threads"`
	StartupTimeout Duration      `json:"startup_timeout" yaml:"startup_timeout" toml:"startup_timeout"`
	ExtraArgs      []string      `json:"extra_args" yaml:"extra_args" toml:"extra_args"`
}

// Config holds runtime parameters for the service. It is built once at
// startup and passed by value; nothing mutates it afterwards.
type Config struct {
	ModelFamily    string        `json:"model_family" yaml:"model_family" toml:"model_family"`
	LocalModelDir  string        `json:"local_model_dir" yaml:"local_model_dir" toml:"local_model_dir"`
	ManifestFile   string        `json:"manifest_file" yaml:"manifest_file" toml:"manifest_file"`
	RemoteURI      string        `json:"remote_uri" yaml:"remote_uri" toml:"remote_uri"`
	AllowAnonymous bool          `json:"allow_anonymous" yaml:"allow_anonymous" toml:"allow_anonymous"`
	Device         Device        `json:"device" yaml:"device" toml:"device"`
	MaxLength      int           `json:"max_length" yaml:"max_length" toml:"max_length"`
	BeamWidth      int           `json:"beam_width" yaml:"beam_width" toml:"beam_width"`
	LogLevel       string        `json:"log_level" yaml:"log_level" toml:"log_level"`
	Addr           string        `json:"addr" yaml:"addr" toml:"addr"`
	MaxBodyBytes   int64         `json:"max_body_bytes" yaml:"max_body_bytes" toml:"max_body_bytes"`
	MaxBatch       int           `json:"max_batch" yaml:"max_batch" toml:"max_batch"`
	RequestTimeout Duration      `json:"request_timeout" yaml:"request_timeout" toml:"request_timeout"`
	MaxQueueDepth  int           `json:"max_queue_depth" yaml:"max_queue_depth" toml:"max_queue_depth"`
	MaxInflight    int           `json:"max_inflight" yaml:"max_inflight" toml:"max_inflight"`
	MaxWait        Duration      `json:"max_wait" yaml:"max_wait" toml:"max_wait"`
	CORSOrigins    []string      `json:"cors_origins" yaml:"cors_origins" toml:"cors_origins"`
	Engine         EngineConfig  `json:"engine" yaml:"engine" toml:"engine"`
}

// Default returns a Config with every field set to its package default.
func Default() Config {
	return Config{
		ModelFamily:   DefaultModelFamily,
		LocalModelDir: DefaultLocalModelDir,
		ManifestFile:  DefaultManifestFile,
		Device:        DeviceAuto,
		MaxLength:     DefaultMaxLength,
		BeamWidth:     DefaultBeamWidth,
		LogLevel:      DefaultLogLevel,
		Addr:          DefaultAddr,
		MaxBodyBytes:  DefaultMaxBodyBytes,
		MaxBatch:      DefaultMaxBatch,
		MaxQueueDepth: DefaultMaxQueueDepth,
		MaxInflight:   DefaultMaxInflight,
		MaxWait:       DefaultMaxWait,
		Engine: EngineConfig{
			Kind:           DefaultEngineKind,
			Bin:            DefaultLlamaBin,
			Host:           DefaultLlamaHost,
			StartupTimeout: DefaultStartupTimeout,
		},
	}
}

// Merge overlays the non-zero fields of o onto c.
func (c Config) Merge(o Config) Config {
	if o.ModelFamily != "" {
		c.ModelFamily = o.ModelFamily
	}
	if o.LocalModelDir != "" {
		c.LocalModelDir = o.LocalModelDir
	}
	if o.ManifestFile != "" {
		c.ManifestFile = o.ManifestFile
	}
	if o.RemoteURI != "" {
		c.RemoteURI = o.RemoteURI
	}
	if o.AllowAnonymous {
		c.AllowAnonymous = true
	}
	if o.Device != "" {
		c.Device = o.Device
	}
	if o.MaxLength != 0 {
		c.MaxLength = o.MaxLength
	}
	if o.BeamWidth != 0 {
		c.BeamWidth = o.BeamWidth
	}
	if o.LogLevel != "" {
		c.LogLevel = o.LogLevel
	}
	if o.Addr != "" {
		c.Addr = o.Addr
	}
	if o.MaxBodyBytes != 0 {
		c.MaxBodyBytes = o.MaxBodyBytes
	}
	if o.MaxBatch != 0 {
		c.MaxBatch = o.MaxBatch
	}
	if o.RequestTimeout != 0 {
		c.RequestTimeout = o.RequestTimeout
	}
	if o.MaxQueueDepth != 0 {
		c.MaxQueueDepth = o.MaxQueueDepth
	}
	if o.MaxInflight != 0 {
		c.MaxInflight = o.MaxInflight
	}
	if o.MaxWait != 0 {
		c.MaxWait = o.MaxWait
	}
	if len(o.CORSOrigins) > 0 {
		c.CORSOrigins = append([]string(nil), o.CORSOrigins...)
	}
	if o.Engine.Kind != "" {
		c.Engine.Kind = o.Engine.Kind
	}
	if o.Engine.Bin != "" {
		c.Engine.Bin = o.Engine.Bin
	}
	if o.Engine.Host != "" {
		c.Engine.Host = o.Engine.Host
	}
	if o.Engine.CtxSize != 0 {
		c.Engine.CtxSize = o.Engine.CtxSize
	}
	if o.Engine.NGL != 0 {
		c.Engine.NGL = o.Engine.NGL
	}
	if o.Engine.Threads != 0 {
		c.Engine.Threads = o.Engine.Threads
	}
	if o.Engine.StartupTimeout != 0 {
		c.Engine.StartupTimeout = o.Engine.StartupTimeout
	}
	if len(o.Engine.ExtraArgs) > 0 {
		c.Engine.ExtraArgs = append([]string(nil), o.Engine.ExtraArgs...)
	}
	return c
}

// Validate reports the first invalid setting, if any.
func (c Config) Validate() error {
	if strings.TrimSpace(c.ModelFamily) == "" {
		return fmt.Errorf("model_family is required")
	}
	if strings.TrimSpace(c.ManifestFile) == "" {
		return fmt.Errorf("manifest_file is required")
	}
	if !validDevice(c.Device) {
		return fmt.Errorf("unknown device %q (auto, cpu, cuda, cuda:<n> or metal)", c.Device)
	}
	if c.MaxLength <= 0 {
		return fmt.Errorf("max_length must be positive, got %d", c.MaxLength)
	}
	if c.BeamWidth <= 0 {
		return fmt.Errorf("beam_width must be positive, got %d", c.BeamWidth)
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error", "off", "disabled":
	default:
		return fmt.Errorf("unknown log_level: %q", c.LogLevel)
	}
	if c.MaxBodyBytes <= 0 {
		return fmt.Errorf("max_body_bytes must be positive, got %d", c.MaxBodyBytes)
	}
	if c.MaxBatch <= 0 {
		return fmt.Errorf("max_batch must be positive, got %d", c.MaxBatch)
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("request_timeout must not be negative")
	}
	if c.MaxQueueDepth <= 0 || c.MaxInflight <= 0 {
		return fmt.Errorf("max_queue_depth and max_inflight must be positive")
	}
	if c.MaxWait <= 0 {
		return fmt.Errorf("max_wait must be positive")
	}
	switch c.Engine.Kind {
	case "llama-server", "fake":
	default:
		return fmt.Errorf("unknown engine kind: %q", c.Engine.Kind)
	}
	return nil
}

func validDevice(d Device) bool {
	s := strings.ToLower(string(d))
	switch s {
	case string(DeviceAuto), string(DeviceCPU), "cuda", "metal":
		return true
	}
	n, ok := strings.CutPrefix(s, "cuda:")
	if !ok || n == "" {
		return false
	}
	for _, r := range n {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Resolve builds the effective configuration: package defaults, then the
// optional config file at path, then the environment.
func Resolve(path string, lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()
	if path != "" {
		fileCfg, err := Load(path)
		if err != nil {
			return Config{}, fmt.Errorf("load config %s: %w", path, err)
		}
		cfg = cfg.Merge(fileCfg)
	}
	envCfg, err := FromEnv(lookup)
	if err != nil {
		return Config{}, err
	}
	cfg = cfg.Merge(envCfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
