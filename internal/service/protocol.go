package service

import (
	"context"
	"fmt"
	"time"

	"github.com/Shivanand-hulikatti/concert-ticket-booking/internal/config"
	"github.com/Shivanand-hulikatti/concert-ticket-booking/internal/repository"
)

// Protocol books one ticket against the store. Implementations hold no
// state between calls; every invocation may interleave with others on the
// same event.
type Protocol interface {
	// Book returns the remaining count reported after the booking, or
	// repository.ErrSoldOut, repository.ErrNotFound or a storage error.
	Book(ctx context.Context, eventID string, userID int64) (int, error)
	// Variant names the protocol, "safe" or "unsafe".
	Variant() string
}

// NewProtocol returns the protocol selected by variant. gap only applies
// to the unsafe variant.
func NewProtocol(variant string, store repository.Store, gap time.Duration) (Protocol, error) {
	switch variant {
	case config.VariantSafe:
		return &SafeProtocol{store: store}, nil
	case config.VariantUnsafe:
		return &UnsafeProtocol{store: store, gap: gap}, nil
	default:
		return nil, fmt.Errorf("unknown booking variant %q", variant)
	}
}

// SafeProtocol delegates to the store's atomic conditional decrement, so
// admissions for one event never exceed its total.
type SafeProtocol struct {
	store repository.Store
}

func (p *SafeProtocol) Book(ctx context.Context, eventID string, userID int64) (int, error) {
	return p.store.DecrementAndLog(ctx, eventID, userID)
}

func (p *SafeProtocol) Variant() string { return config.VariantSafe }

// UnsafeProtocol is the naive read-then-write booking.
//
// The capacity check and the decrement are separate store calls with a
// pause between them, so concurrent callers that all read a positive count
// are all admitted and remaining goes negative. The count returned is a
// fresh read after both writes and may include other callers' decrements.
type UnsafeProtocol struct {
	store repository.Store
	gap   time.Duration
}

func (p *UnsafeProtocol) Book(ctx context.Context, eventID string, userID int64) (int, error) {
	remaining, err := p.store.ReadRemaining(ctx, eventID)
	if err != nil {
		return 0, err
	}
	if remaining <= 0 {
		return 0, repository.ErrSoldOut
	}

	if err := pause(ctx, p.gap); err != nil {
		return 0, err
	}

	if err := p.store.Decrement(ctx, eventID); err != nil {
		return 0, err
	}
	if _, err := p.store.AppendBooking(ctx, eventID, userID); err != nil {
		return 0, err
	}
	return p.store.ReadRemaining(ctx, eventID)
}

func (p *UnsafeProtocol) Variant() string { return config.VariantUnsafe }

func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
