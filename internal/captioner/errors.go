package captioner

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrModelLoad marks failures while turning a resolved folder into a
	// Captioner.
	ErrModelLoad = errors.New("model load failed")
	// ErrTooBusy signals queue overflow or a queue wait beyond MaxWait.
	ErrTooBusy = errors.New("too busy")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("captioner closed")
)

// LoadError carries the folder that failed to load.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load model from %s: %v", e.Path, e.Err)
}

// Unwrap exposes both ErrModelLoad and the underlying cause to errors.Is.
func (e *LoadError) Unwrap() []error { return []error{ErrModelLoad, e.Err} }

// StatusCode maps load failures to 503 Service Unavailable.
func (e *LoadError) StatusCode() int { return http.StatusServiceUnavailable }

// tooBusyError signals queue timeout/overflow for 429 mapping.
type tooBusyError struct{ device string }

func (e tooBusyError) Error() string { return "too busy: " + e.device }

func (e tooBusyError) Is(target error) bool { return target == ErrTooBusy }

func (e tooBusyError) StatusCode() int { return http.StatusTooManyRequests }

// IsTooBusy reports whether err indicates backpressure (return 429).
func IsTooBusy(err error) bool { return errors.Is(err, ErrTooBusy) }

// IsModelLoad reports whether err is (or wraps) a model load failure.
func IsModelLoad(err error) bool { return errors.Is(err, ErrModelLoad) }
