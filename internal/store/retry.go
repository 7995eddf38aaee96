package store

import (
	"context"
	"errors"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"tasknerd/internal/logging"
)

// RetryPolicy retries an operation that failed with SQLITE_BUSY or
// SQLITE_LOCKED. Other errors are returned at once.
type RetryPolicy struct {
	Attempts int
	Backoff  time.Duration
	// Factor multiplies the backoff after each attempt.
	Factor float64
}

// DefaultRetryPolicy is 3 attempts starting at 100ms and doubling.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, Backoff: 100 * time.Millisecond, Factor: 2}
}

// Do runs fn until it succeeds, fails with a non-transient error, runs out
// of attempts or ctx ends.
func (p RetryPolicy) Do(ctx context.Context, op string, fn func() error) error {
	attempts := p.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	wait := p.Backoff

	var err error
	for i := 1; i <= attempts; i++ {
		if err = fn(); err == nil || !IsBusy(err) {
			return err
		}
		if i == attempts {
			break
		}
		logging.StoreWarn("%s: database busy (attempt %d/%d), retrying in %s", op, i, attempts, wait)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		if p.Factor > 1 {
			wait = time.Duration(float64(wait) * p.Factor)
		}
	}
	return err
}

// IsBusy reports whether err is a transient SQLite lock error.
func IsBusy(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return true
	}
	return false
}
