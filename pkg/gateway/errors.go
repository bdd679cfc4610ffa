package gateway

import "errors"

// Errors wrapped into the repository failures returned by the gateway.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during retry.
	ErrContextCancelled = errors.New("context cancelled")

	// ErrColumnMismatch is returned when the backend answers a column query
	// out of request order.
	ErrColumnMismatch = errors.New("column name mismatch")

	// ErrMissingColumn is returned when a requested column is absent from
	// the backend answer.
	ErrMissingColumn = errors.New("missing column")
)
