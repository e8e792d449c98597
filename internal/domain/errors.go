package domain

import "errors"

var (
	// ErrValidation marks input that fails domain validation.
	ErrValidation = errors.New("validation error")

	// ErrNotFound marks a lookup for a record that is not in the store.
	ErrNotFound = errors.New("not found")
)
