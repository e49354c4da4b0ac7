// Package engine is the boundary between the caption service and the
// inference runtime that actually runs the vision-language model.
//
// An Engine is built once per process by a Constructor from a verified
// local model folder and a concrete device. The llama-server engine runs
// the model in a llama.cpp subprocess; the fake engine produces
// deterministic captions without any model weights.
package engine

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"captiond/internal/config"
	"captiond/internal/imageio"
)

// Engine kinds accepted by New.
const (
	KindLlamaServer = "llama-server"
	KindFake        = "fake"
)

// Params controls a single generation.
type Params struct {
	MaxLength     int
	BeamWidth     int
	Deterministic bool
}

// Spec tells a Constructor what to load and where to run it.
type Spec struct {
	// ModelDir is an absolute local folder that contains Manifest.
	ModelDir string
	// Manifest is the file name of the artifact manifest inside ModelDir.
	Manifest string
	// Device is the resolved device (never "auto").
	Device config.Device
	Config config.EngineConfig
	Log    zerolog.Logger
}

// Engine generates captions for normalized images.
type Engine interface {
	// Generate returns the caption for img.
	Generate(ctx context.Context, img *imageio.Image, p Params) (string, error)
	// SetInferenceMode switches the engine to evaluation behaviour. It is
	// called once by the loader before the engine is published.
	SetInferenceMode() error
	// Close releases the runtime.
	Close() error
}

// Constructor builds an Engine from a Spec.
type Constructor func(ctx context.Context, spec Spec) (Engine, error)

// New dispatches on spec.Config.Kind.
func New(ctx context.Context, spec Spec) (Engine, error) {
	switch spec.Config.Kind {
	case "", KindLlamaServer:
		return NewLlamaServer(ctx, spec)
	case KindFake:
		return NewFake(ctx, spec)
	default:
		return nil, fmt.Errorf("unknown engine kind %q", spec.Config.Kind)
	}
}
