package model

import "errors"

var (
	// ErrNotFound is returned when a course, module or lesson does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized is returned when the requester does not own the target.
	ErrUnauthorized = errors.New("not authorized")

	// ErrConflict is returned when a write violates the (owner, slug) constraint.
	ErrConflict = errors.New("already exists")
)

// ProviderError reports a failed call to an upstream generation or search
// provider. Op names the failing operation ("outline", "content", "video").
type ProviderError struct {
	Op        string
	Err       error
	Retryable bool
}

func (e *ProviderError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether err carries a retryable ProviderError.
func IsRetryable(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Retryable
}
