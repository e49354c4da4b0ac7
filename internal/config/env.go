package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Environment variable names read by FromEnv.
const (
	EnvConfigFile     = "CAPTIOND_CONFIG"
	EnvModelFamily    = "MODEL_FAMILY"
	EnvLocalModelDir  = "LOCAL_MODEL_DIR"
	EnvManifestFile   = "MODEL_MANIFEST"
	EnvRemoteURI      = "GCS_MODEL_URI"
	EnvAllowAnonymous = "ALLOW_ANONYMOUS_FETCH"
	EnvDevice         = "DEVICE"
	EnvMaxLength      = "MAX_NEW_TOKENS"
	EnvBeamWidth      = "BEAM_SIZE"
	EnvLogLevel       = "LOG_LEVEL"
	EnvAddr           = "CAPTIOND_ADDR"
	EnvMaxBodyBytes   = "CAPTIOND_MAX_BODY_BYTES"
	EnvMaxBatch       = "CAPTIOND_MAX_BATCH"
	EnvRequestTimeout = "CAPTIOND_REQUEST_TIMEOUT"
	EnvMaxQueueDepth  = "CAPTIOND_MAX_QUEUE_DEPTH"
	EnvMaxInflight    = "CAPTIOND_MAX_INFLIGHT"
	EnvMaxWait        = "CAPTIOND_MAX_WAIT"
	EnvCORSOrigins    = "CAPTIOND_CORS_ORIGINS"
	EnvEngineKind     = "ENGINE"
	EnvLlamaBin       = "LLAMA_SERVER_BIN"
	EnvLlamaHost      = "LLAMA_HOST"
	EnvLlamaCtx       = "LLAMA_CTX"
	EnvLlamaNGL       = "LLAMA_NGL"
	EnvLlamaThreads   = "LLAMA_THREADS"
	EnvLlamaStartup   = "LLAMA_STARTUP_TIMEOUT"
)

// FromEnv reads the environment through lookup (os.LookupEnv when nil).
// Unset variables leave the corresponding field zero so Merge skips them.
func FromEnv(lookup func(string) (string, bool)) (Config, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	e := envReader{lookup: lookup}
	var cfg Config
	cfg.ModelFamily = strings.ToLower(e.str(EnvModelFamily))
	cfg.LocalModelDir = e.str(EnvLocalModelDir)
	cfg.ManifestFile = e.str(EnvManifestFile)
	cfg.RemoteURI = e.str(EnvRemoteURI)
	cfg.AllowAnonymous = e.bool(EnvAllowAnonymous)
	cfg.Device = Device(strings.ToLower(e.str(EnvDevice)))
	cfg.MaxLength = e.int(EnvMaxLength)
	cfg.BeamWidth = e.int(EnvBeamWidth)
	cfg.LogLevel = strings.ToLower(e.str(EnvLogLevel))
	cfg.Addr = e.str(EnvAddr)
	cfg.MaxBodyBytes = int64(e.int(EnvMaxBodyBytes))
	cfg.MaxBatch = e.int(EnvMaxBatch)
	cfg.RequestTimeout = e.duration(EnvRequestTimeout)
	cfg.MaxQueueDepth = e.int(EnvMaxQueueDepth)
	cfg.MaxInflight = e.int(EnvMaxInflight)
	cfg.MaxWait = e.duration(EnvMaxWait)
	cfg.CORSOrigins = SplitCSV(e.str(EnvCORSOrigins))
	cfg.Engine.Kind = e.str(EnvEngineKind)
	cfg.Engine.Bin = e.str(EnvLlamaBin)
	cfg.Engine.Host = e.str(EnvLlamaHost)
	cfg.Engine.CtxSize = e.int(EnvLlamaCtx)
	cfg.Engine.NGL = e.int(EnvLlamaNGL)
	cfg.Engine.Threads = e.int(EnvLlamaThreads)
	cfg.Engine.StartupTimeout = e.duration(EnvLlamaStartup)
	if e.err != nil {
		return Config{}, e.err
	}
	return cfg, nil
}

// SplitCSV splits a comma-separated list, trimming blanks and dropping empties.
func SplitCSV(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// envReader records the first parse error so FromEnv can report it once.
type envReader struct {
	lookup func(string) (string, bool)
	err    error
}

func (e *envReader) str(key string) string {
	v, ok := e.lookup(key)
	if !ok {
		return ""
	}
	return strings.TrimSpace(v)
}

func (e *envReader) bool(key string) bool {
	switch strings.ToLower(e.str(key)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

func (e *envReader) int(key string) int {
	v := e.str(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil && e.err == nil {
		e.err = fmt.Errorf("%s: invalid integer %q", key, v)
	}
	return n
}

// duration accepts Go durations ("1m30s") or plain seconds ("90").
func (e *envReader) duration(key string) Duration {
	d, err := ParseDuration(e.str(key))
	if err != nil && e.err == nil {
		e.err = fmt.Errorf("%s: %w", key, err)
	}
	return d
}
