package domain

import "errors"

// Sentinel errors used across all layers.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrValidation    = errors.New("validation error")
	ErrConflict      = errors.New("conflict")

	// ErrConfiguration marks a missing or invalid required input
	// (e.g. no ranks dump URL). Never retried.
	ErrConfiguration = errors.New("configuration error")

	// ErrDataIntegrity marks a malformed remote payload (corrupt archive,
	// empty result set after filtering). Never retried.
	ErrDataIntegrity = errors.New("data integrity error")

	// ErrRateLimited marks exhaustion of the rate-limit retry budget.
	ErrRateLimited = errors.New("rate limited")

	// ErrRemoteFatal marks a remote response that can never succeed on
	// retry (e.g. 401/403).
	ErrRemoteFatal = errors.New("fatal remote response")
)
