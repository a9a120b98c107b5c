package cluster

import (
	"errors"
	"fmt"
)

// ErrMalformedResponse marks generator output that could not be read as
// structured cluster data.
var ErrMalformedResponse = errors.New("malformed generator response")

// GenerationError is returned when a batch still fails after every retry.
type GenerationError struct {
	Batch    int
	Attempts int
	Err      error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("cluster generation failed for batch %d after %d attempts: %v", e.Batch, e.Attempts, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// ValidationError reports structurally unusable generator output that cannot
// be defaulted, such as a response without a cluster list.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid generator response: " + e.Reason
}

// Is lets a ValidationError match ErrMalformedResponse.
func (e *ValidationError) Is(target error) bool {
	return target == ErrMalformedResponse
}
