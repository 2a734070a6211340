package dataset

import (
	"context"
	"errors"
	"fmt"
)

// NotFoundError is returned when an identifier has no corresponding
// resource in the remote store. It is fatal to the single request and is
// reported back to the reasoning step as a tool failure, never retried.
type NotFoundError struct {
	ID string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("dataset %q not found in store", e.ID)
}

// SourceUnavailableError is returned on a transient fetch failure
// (network, quota, timeout). Callers may retry with bounded backoff;
// the provider already does so before surfacing this.
type SourceUnavailableError struct {
	ID  string
	Err error
}

// Error implements the error interface.
func (e *SourceUnavailableError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("dataset store unavailable: %v", e.Err)
	}
	return fmt.Sprintf("dataset %q temporarily unavailable: %v", e.ID, e.Err)
}

// Unwrap exposes the underlying cause for errors.Is/As.
func (e *SourceUnavailableError) Unwrap() error { return e.Err }

// IsTransient reports whether err is worth retrying: a source
// availability failure or a context deadline on the fetch path.
func IsTransient(err error) bool {
	var unavail *SourceUnavailableError
	if errors.As(err, &unavail) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
