package sqlite

import (
	"context"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/igorribeiro98/al-tool/internal/domain"
)

// retryMaxElapsed bounds how long a single statement retries on a
// transient SQLITE_BUSY/locked error before giving up. modernc.org/sqlite
// already retries internally up to busy_timeout, so this is a second,
// coarser layer for errors the driver itself doesn't absorb (e.g. a
// concurrent goroutine holding the one writer connection across a
// multi-statement transaction).
const retryMaxElapsed = 5 * time.Second

func newRetryBackoff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = retryMaxElapsed
	bo.InitialInterval = 20 * time.Millisecond
	return bo
}

// isRetryableStorageError reports whether err looks like a transient
// SQLite busy/lock condition rather than a genuine statement failure.
func isRetryableStorageError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "busy") ||
		strings.Contains(msg, "sqlite_busy")
}

// withRetry runs op, retrying with exponential backoff while the error
// looks transient, and wraps any terminal failure as a *domain.StorageError.
func withRetry(ctx context.Context, opName string, op func() error) error {
	bo := backoff.WithContext(newRetryBackoff(), ctx)

	err := backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		if isRetryableStorageError(err) {
			return err // backoff.Retry will retry
		}
		return backoff.Permanent(err)
	}, bo)

	if err == nil {
		return nil
	}

	// Unwrap a backoff.PermanentError to report the real retryability of
	// the underlying cause.
	var perm *backoff.PermanentError
	retryable := isRetryableStorageError(err)
	cause := err
	if asPermanent(err, &perm) {
		cause = perm.Err
		retryable = false
	}

	return &domain.StorageError{Op: opName, Err: cause, Retryable: retryable}
}

func asPermanent(err error, target **backoff.PermanentError) bool {
	p, ok := err.(*backoff.PermanentError)
	if ok {
		*target = p
	}
	return ok
}
