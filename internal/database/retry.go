package database

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrUnavailable is returned once a Retry budget is exhausted.
var ErrUnavailable = errors.New("storage unavailable")

// Retry is a fixed-delay retry budget for reaching storage.
//
// Only transient connectivity errors are retried; anything else is returned
// on the first attempt. When every attempt fails the last error is wrapped
// in ErrUnavailable.
type Retry struct {
	Attempts int
	Delay    time.Duration

	// Retryable classifies errors. Nil means IsTransient.
	Retryable func(error) bool
	// OnFailure is called after every failed attempt that will be retried
	// or that exhausts the budget.
	OnFailure func(attempt int, err error)
}

// Do runs fn until it succeeds, returns a non-retryable error, the budget
// runs out, or ctx is done.
func (r Retry) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := r.Attempts
	if attempts < 1 {
		attempts = 1
	}
	retryable := r.Retryable
	if retryable == nil {
		retryable = IsTransient
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return err
		}
		if r.OnFailure != nil {
			r.OnFailure(attempt, err)
		}
		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", ErrUnavailable, ctx.Err())
		case <-time.After(r.Delay):
		}
	}
	return fmt.Errorf("%w after %d attempts: %w", ErrUnavailable, attempts, err)
}

// IsTransient reports whether err looks like a connectivity failure that a
// fresh attempt may get past.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}
	if pgconn.SafeToRetry(err) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET)
}
