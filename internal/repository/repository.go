// Package repository implements the inventory store: per-event ticket
// counters plus the append-only booking ledger.
//
// Three backends satisfy Store: PostgreSQL (pgx, no ORM), Redis and an
// in-process map used by tests and local demos.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/Shivanand-hulikatti/concert-ticket-booking/internal/database"
	"github.com/Shivanand-hulikatti/concert-ticket-booking/internal/model"
)

// ErrNotFound is returned when the referenced event does not exist.
var ErrNotFound = errors.New("event not found")

// ErrSoldOut is returned when an event has no remaining tickets.
var ErrSoldOut = errors.New("sold out")

// ErrStorageUnavailable is returned when storage could not be reached
// within the retry budget.
var ErrStorageUnavailable = database.ErrUnavailable

// Store is the inventory store contract.
//
// DecrementAndLog is the only mutation that keeps 0 <= remaining <= total.
// Decrement and AppendBooking are deliberately unguarded building blocks
// for the unsafe booking protocol: neither checks capacity and they are
// not atomic with each other or with a prior ReadRemaining.
type Store interface {
	// CreateEvent clears every event and booking, then inserts one event
	// with remaining == totalTickets. The reset and insert commit together.
	CreateEvent(ctx context.Context, name string, totalTickets int) (*model.Event, error)

	// ReadRemaining returns the event's remaining count or ErrNotFound.
	ReadRemaining(ctx context.Context, eventID string) (int, error)

	// DecrementAndLog atomically checks existence and capacity, takes one
	// ticket and appends a ledger row. It returns the new remaining count,
	// ErrSoldOut or ErrNotFound; on error nothing was written.
	DecrementAndLog(ctx context.Context, eventID string, userID int64) (int, error)

	// Decrement subtracts one ticket without checking capacity.
	Decrement(ctx context.Context, eventID string) error

	// AppendBooking inserts a ledger row for an existing event.
	AppendBooking(ctx context.Context, eventID string, userID int64) (*model.Booking, error)

	// ListEvents returns every event, oldest first.
	ListEvents(ctx context.Context) ([]model.Event, error)

	// CountBookings returns the ledger size across all events.
	CountBookings(ctx context.Context) (int, error)

	// Ping checks that storage is reachable.
	Ping(ctx context.Context) error
}

// storageError annotates a failed statement. Connectivity failures that
// happen after a connection was obtained are marked ErrStorageUnavailable;
// statements are never retried.
func storageError(what string, err error) error {
	if database.IsTransient(err) {
		return fmt.Errorf("%s: %w: %w", what, ErrStorageUnavailable, err)
	}
	return fmt.Errorf("%s: %w", what, err)
}
