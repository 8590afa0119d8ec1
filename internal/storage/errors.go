package storage

import "errors"

// Errors returned by the dataset and transfer stores.
var (
	// ErrNotFound is returned when no dataset is stored for a token.
	ErrNotFound = errors.New("dataset not found")

	// ErrDuplicateKey is returned when a dataset with the same token and
	// fetch time is already stored. Stored datasets are never rewritten.
	ErrDuplicateKey = errors.New("dataset already stored for this fetch time")

	// ErrInvalidInput is returned for a nil dataset, an empty token id or a
	// missing fetch time.
	ErrInvalidInput = errors.New("invalid store input")
)
