package repository

import "errors"

var (
	// ErrPersistence wraps row-level write failures. Callers log and count it.
	ErrPersistence = errors.New("persistence failure")
	ErrNotFound    = errors.New("not found")
)
