package storage

import "errors"

var (
	// ErrNotFound is returned by Get when the key has no value.
	ErrNotFound = errors.New("key not found")
	// ErrInvalidKey is returned for empty keys.
	ErrInvalidKey = errors.New("invalid key")
)
