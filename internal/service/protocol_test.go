package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shivanand-hulikatti/concert-ticket-booking/internal/config"
	"github.com/Shivanand-hulikatti/concert-ticket-booking/internal/repository"
)

type outcomes struct {
	admitted, soldOut, notFound, other int64
}

// fire starts n bookings at once behind a barrier and tallies outcomes.
func fire(t *testing.T, p Protocol, eventID string, n int) outcomes {
	t.Helper()

	var (
		o     outcomes
		wg    sync.WaitGroup
		start = make(chan struct{})
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(user int64) {
			defer wg.Done()
			<-start
			_, err := p.Book(context.Background(), eventID, user)
			switch {
			case err == nil:
				atomic.AddInt64(&o.admitted, 1)
			case errors.Is(err, repository.ErrSoldOut):
				atomic.AddInt64(&o.soldOut, 1)
			case errors.Is(err, repository.ErrNotFound):
				atomic.AddInt64(&o.notFound, 1)
			default:
				atomic.AddInt64(&o.other, 1)
			}
		}(int64(1000 + i))
	}
	close(start)
	wg.Wait()
	return o
}

func TestNewProtocol(t *testing.T) {
	store := repository.NewMemoryStore()

	safe, err := NewProtocol(config.VariantSafe, store, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, "safe", safe.Variant())

	unsafe, err := NewProtocol(config.VariantUnsafe, store, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, "unsafe", unsafe.Variant())

	_, err = NewProtocol("optimistic", store, 0)
	assert.Error(t, err)
}

func TestSafeProtocol_ConcurrentBookings(t *testing.T) {
	tests := []struct {
		name     string
		capacity int
		callers  int
	}{
		{"more callers than tickets", 10, 50},
		{"fewer callers than tickets", 50, 20},
		{"exactly enough", 25, 25},
		{"single ticket", 1, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := repository.NewMemoryStore()
			e, err := store.CreateEvent(context.Background(), "Show", tt.capacity)
			require.NoError(t, err)

			p, err := NewProtocol(config.VariantSafe, store, 0)
			require.NoError(t, err)

			o := fire(t, p, e.ID, tt.callers)

			admitted := min(tt.callers, tt.capacity)
			assert.Equal(t, int64(admitted), o.admitted)
			assert.Equal(t, int64(tt.callers-admitted), o.soldOut)
			assert.Zero(t, o.notFound)
			assert.Zero(t, o.other)

			left, err := store.ReadRemaining(context.Background(), e.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.capacity-admitted, left)

			n, err := store.CountBookings(context.Background())
			require.NoError(t, err)
			assert.Equal(t, admitted, n)
		})
	}
}

func TestSafeProtocol_SequentialUntilSoldOut(t *testing.T) {
	store := repository.NewMemoryStore()
	e, err := store.CreateEvent(context.Background(), "Show", 100)
	require.NoError(t, err)

	p, err := NewProtocol(config.VariantSafe, store, 0)
	require.NoError(t, err)

	for i := 0; i < 100; i++ {
		left, err := p.Book(context.Background(), e.ID, int64(1000+i))
		require.NoError(t, err)
		assert.Equal(t, 99-i, left)
	}

	_, err = p.Book(context.Background(), e.ID, 2000)
	assert.ErrorIs(t, err, repository.ErrSoldOut)
}

func TestUnsafeProtocol_Oversells(t *testing.T) {
	const capacity, callers = 5, 50

	// The race is timing dependent; a handful of runs is plenty with a
	// gap this wide.
	var reproduced bool
	for run := 0; run < 5 && !reproduced; run++ {
		store := repository.NewMemoryStore()
		e, err := store.CreateEvent(context.Background(), "Show", capacity)
		require.NoError(t, err)

		p, err := NewProtocol(config.VariantUnsafe, store, 20*time.Millisecond)
		require.NoError(t, err)

		o := fire(t, p, e.ID, callers)
		require.Zero(t, o.other)

		left, err := store.ReadRemaining(context.Background(), e.ID)
		require.NoError(t, err)

		n, err := store.CountBookings(context.Background())
		require.NoError(t, err)
		assert.Equal(t, int(o.admitted), n)
		assert.Equal(t, capacity-int(o.admitted), left)

		reproduced = left < 0 || o.admitted > capacity
	}
	assert.True(t, reproduced, "expected the unsafe protocol to oversell")
}

func TestUnsafeProtocol_SequentialBehavesLikeSafe(t *testing.T) {
	store := repository.NewMemoryStore()
	e, err := store.CreateEvent(context.Background(), "Show", 2)
	require.NoError(t, err)

	p, err := NewProtocol(config.VariantUnsafe, store, 0)
	require.NoError(t, err)

	left, err := p.Book(context.Background(), e.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, left)

	left, err = p.Book(context.Background(), e.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, 0, left)

	_, err = p.Book(context.Background(), e.ID, 3)
	assert.ErrorIs(t, err, repository.ErrSoldOut)
}

func TestUnsafeProtocol_CanceledDuringGap(t *testing.T) {
	store := repository.NewMemoryStore()
	e, err := store.CreateEvent(context.Background(), "Show", 2)
	require.NoError(t, err)

	p, err := NewProtocol(config.VariantUnsafe, store, time.Second)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err = p.Book(ctx, e.ID, 1)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	left, err := store.ReadRemaining(context.Background(), e.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, left)
}

func TestProtocols_NotFound(t *testing.T) {
	for _, variant := range []string{config.VariantSafe, config.VariantUnsafe} {
		t.Run(variant, func(t *testing.T) {
			store := repository.NewMemoryStore()
			_, err := store.CreateEvent(context.Background(), "Show", 5)
			require.NoError(t, err)

			p, err := NewProtocol(variant, store, time.Millisecond)
			require.NoError(t, err)

			o := fire(t, p, "no-such-event", 10)
			assert.Equal(t, int64(10), o.notFound)

			n, err := store.CountBookings(context.Background())
			require.NoError(t, err)
			assert.Zero(t, n)
		})
	}
}
