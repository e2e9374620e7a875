package asr

import (
	"errors"
	"fmt"
)

// ErrBadModel marks a configuration the engine can never load (missing or
// malformed model files). Fatal: retrying a different precision or device
// cannot help, so the ladder aborts.
var ErrBadModel = errors.New("model not found")

// ResourceError wraps a failure attributable to the execution target:
// memory exhaustion, an unavailable accelerator, an unsupported provider.
// These are the only errors that advance the degradation ladder.
type ResourceError struct {
	Config ResourceConfig
	Err    error
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Config, e.Err)
}

func (e *ResourceError) Unwrap() error {
	return e.Err
}

// IsResourceError reports whether err should advance the ladder rather
// than abort it.
func IsResourceError(err error) bool {
	var re *ResourceError
	return errors.As(err, &re)
}
