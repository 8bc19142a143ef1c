package repository

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runStoreContract exercises the behaviour every Store backend shares.
func runStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("CreateEventResetsState", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		first, err := s.CreateEvent(ctx, "First", 5)
		require.NoError(t, err)
		_, err = s.DecrementAndLog(ctx, first.ID, 1001)
		require.NoError(t, err)

		second, err := s.CreateEvent(ctx, "Second", 7)
		require.NoError(t, err)
		assert.NotEqual(t, first.ID, second.ID)
		assert.Equal(t, 7, second.AvailableTickets)

		events, err := s.ListEvents(ctx)
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, second.ID, events[0].ID)
		assert.Equal(t, "Second", events[0].Name)
		assert.Equal(t, 7, events[0].TotalTickets)

		n, err := s.CountBookings(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)

		_, err = s.ReadRemaining(ctx, first.ID)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("DecrementAndLogUntilSoldOut", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		e, err := s.CreateEvent(ctx, "Small", 3)
		require.NoError(t, err)

		for want := 2; want >= 0; want-- {
			left, err := s.DecrementAndLog(ctx, e.ID, 2000)
			require.NoError(t, err)
			assert.Equal(t, want, left)
		}

		_, err = s.DecrementAndLog(ctx, e.ID, 2000)
		assert.ErrorIs(t, err, ErrSoldOut)

		left, err := s.ReadRemaining(ctx, e.ID)
		require.NoError(t, err)
		assert.Zero(t, left)

		n, err := s.CountBookings(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, n)
	})

	t.Run("UnknownEvent", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		_, err := s.CreateEvent(ctx, "Only", 1)
		require.NoError(t, err)

		_, err = s.ReadRemaining(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = s.DecrementAndLog(ctx, "missing", 1)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.ErrorIs(t, s.Decrement(ctx, "missing"), ErrNotFound)
		_, err = s.AppendBooking(ctx, "missing", 1)
		assert.ErrorIs(t, err, ErrNotFound)

		n, err := s.CountBookings(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("UnguardedDecrementGoesNegative", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		e, err := s.CreateEvent(ctx, "Tiny", 1)
		require.NoError(t, err)

		require.NoError(t, s.Decrement(ctx, e.ID))
		require.NoError(t, s.Decrement(ctx, e.ID))

		left, err := s.ReadRemaining(ctx, e.ID)
		require.NoError(t, err)
		assert.Equal(t, -1, left)

		b, err := s.AppendBooking(ctx, e.ID, 4242)
		require.NoError(t, err)
		assert.Equal(t, int64(4242), b.UserID)
		assert.Equal(t, e.ID, b.EventID)
		assert.NotEmpty(t, b.ID)
	})

	t.Run("ConcurrentDecrementAndLogNeverOversells", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		const total, callers = 10, 40
		e, err := s.CreateEvent(ctx, "Contended", total)
		require.NoError(t, err)

		var (
			wg              sync.WaitGroup
			mu              sync.Mutex
			success, sold   int
			unexpectedError error
		)
		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func(user int64) {
				defer wg.Done()
				_, err := s.DecrementAndLog(ctx, e.ID, user)
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					success++
				case errors.Is(err, ErrSoldOut):
					sold++
				default:
					unexpectedError = err
				}
			}(int64(1000 + i))
		}
		wg.Wait()

		require.NoError(t, unexpectedError)
		assert.Equal(t, total, success)
		assert.Equal(t, callers-total, sold)

		left, err := s.ReadRemaining(ctx, e.ID)
		require.NoError(t, err)
		assert.Zero(t, left)

		n, err := s.CountBookings(ctx)
		require.NoError(t, err)
		assert.Equal(t, total, n)
	})

	t.Run("Ping", func(t *testing.T) {
		assert.NoError(t, newStore(t).Ping(context.Background()))
	})
}
