package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// StorageError is the normalized failure every backend returns, tagged with
// the provider and whether the sync queue may retry it.
type StorageError struct {
	Provider  Provider
	Retryable bool
	Err       error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v (retryable=%t)", e.Provider, e.Err, e.Retryable)
}

func (e *StorageError) Unwrap() error { return e.Err }

// normalizeErr wraps err as a StorageError. Timeouts and cancellations are
// retryable; everything else defaults to non-retryable unless the caller
// knows better.
func normalizeErr(p Provider, err error, retryable bool) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		retryable = true
	}
	return &StorageError{Provider: p, Retryable: retryable, Err: err}
}

// normalizeStatus maps an HTTP response status from a signed-URL transfer to
// a StorageError: 5xx and 429 are retryable, other non-2xx are not.
func normalizeStatus(p Provider, status int, op string) error {
	if status >= 200 && status < 300 {
		return nil
	}
	retryable := status >= 500 || status == http.StatusTooManyRequests
	return &StorageError{
		Provider:  p,
		Retryable: retryable,
		Err:       fmt.Errorf("%s failed with status %d", op, status),
	}
}

// IsRetryable reports whether err is a retryable StorageError.
func IsRetryable(err error) bool {
	var se *StorageError
	return errors.As(err, &se) && se.Retryable
}
