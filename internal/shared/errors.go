package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidState indicates an illegal lifecycle transition.
	ErrInvalidState = errors.New("invalid state")
	// ErrValidation indicates rejected input.
	ErrValidation = errors.New("validation failed")
)
