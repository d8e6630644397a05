package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound the backend has no progress recorded yet, treated as "first sync"
var ErrNotFound = errors.New("no remote progress recorded")

// NetworkError the remote call could not complete (offline, timeout, 5xx).
// Local optimistic state is kept and the sync is deferred.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network failure during %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// ValidationError the backend rejected the payload, eg. an unknown lesson id.
// Local state is not rolled back.
type ValidationError struct {
	Op     string
	Detail string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s rejected by backend: %s", e.Op, e.Detail)
}

// StorageError local persistence failed. Reads recover by treating the record
// as absent, write failures are surfaced to the caller.
type StorageError struct {
	Op  string
	Key string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s failed for %q: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// IsNetworkError report whether err carries a NetworkError anywhere in its chain
func IsNetworkError(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}
