package roster

import "errors"

var (
	// ErrNotFound indicates the entity does not exist within the provider's scope.
	ErrNotFound = errors.New("roster: not found")
	// ErrBackendUnavailable indicates a transient store failure. Reads may be
	// retried; non-idempotent writes must not be.
	ErrBackendUnavailable = errors.New("roster: backend unavailable")
)
