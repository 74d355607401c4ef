package domain

import "errors"

var (
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")

	// ErrDispatchTimeout is returned when a dispatch does not finish within DispatchTimeout.
	ErrDispatchTimeout = errors.New("notification dispatch timed out")
)
