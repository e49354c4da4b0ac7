package resolver

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrModelNotFound reports that no complete model artifact could be located.
	ErrModelNotFound = errors.New("model not found")
	// ErrAmbiguousModel reports that more than one candidate artifact exists.
	ErrAmbiguousModel = errors.New("ambiguous model")
)

// NotFoundError carries the directory that was inspected.
type NotFoundError struct {
	Dir    string
	Reason string
}

func (e *NotFoundError) Error() string {
	if e.Dir == "" {
		return fmt.Sprintf("model not found: %s", e.Reason)
	}
	return fmt.Sprintf("model not found in %s: %s", e.Dir, e.Reason)
}

func (e *NotFoundError) Unwrap() error { return ErrModelNotFound }

// AmbiguousError lists every candidate folder so an operator can pick one.
type AmbiguousError struct {
	Dir        string
	Candidates []string
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("ambiguous model: %d candidate folders inside %s: [%s]; point the model directory at exactly one of them",
		len(e.Candidates), e.Dir, strings.Join(e.Candidates, ", "))
}

func (e *AmbiguousError) Unwrap() error { return ErrAmbiguousModel }

// IsModelNotFound reports whether err indicates a missing model artifact.
func IsModelNotFound(err error) bool { return errors.Is(err, ErrModelNotFound) }

// IsAmbiguous reports whether err indicates multiple candidate artifacts.
func IsAmbiguous(err error) bool { return errors.Is(err, ErrAmbiguousModel) }
