package fetch

import "errors"

var (
	// ErrInvalidURI reports a malformed or unsupported remote URI.
	ErrInvalidURI = errors.New("invalid remote uri")
	// ErrNotFound reports that no objects exist under the remote prefix.
	ErrNotFound = errors.New("remote model not found")
	// ErrCredentialsMissing reports that no ambient credentials were found
	// and anonymous access was not permitted.
	ErrCredentialsMissing = errors.New("storage credentials missing")
)

// IsInvalidURI reports whether err is (or wraps) ErrInvalidURI.
func IsInvalidURI(err error) bool { return errors.Is(err, ErrInvalidURI) }

// IsNotFound reports whether err is (or wraps) ErrNotFound.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsCredentialsMissing reports whether err is (or wraps) ErrCredentialsMissing.
func IsCredentialsMissing(err error) bool { return errors.Is(err, ErrCredentialsMissing) }
