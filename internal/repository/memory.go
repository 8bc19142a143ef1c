package repository

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Shivanand-hulikatti/concert-ticket-booking/internal/model"
)

// MemoryStore is an in-process Store.
//
// Each method takes the mutex once, so a single method is atomic but two
// calls are not: Decrement after ReadRemaining races exactly like the SQL
// backends do.
type MemoryStore struct {
	mu       sync.Mutex
	events   map[string]*model.Event
	order    []string
	bookings []model.Booking
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{events: make(map[string]*model.Event)}
}

func (s *MemoryStore) CreateEvent(_ context.Context, name string, totalTickets int) (*model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := &model.Event{
		ID:               uuid.New().String(),
		Name:             name,
		TotalTickets:     totalTickets,
		AvailableTickets: totalTickets,
		CreatedAt:        time.Now().UTC(),
	}
	s.events = map[string]*model.Event{e.ID: e}
	s.order = []string{e.ID}
	s.bookings = nil

	out := *e
	return &out, nil
}

func (s *MemoryStore) ReadRemaining(ctx context.Context, eventID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.events[eventID]
	if !ok {
		return 0, ErrNotFound
	}
	return e.AvailableTickets, nil
}

func (s *MemoryStore) DecrementAndLog(ctx context.Context, eventID string, userID int64) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.events[eventID]
	if !ok {
		return 0, ErrNotFound
	}
	if e.AvailableTickets <= 0 {
		return 0, ErrSoldOut
	}
	e.AvailableTickets--
	s.bookings = append(s.bookings, newBooking(eventID, userID))
	return e.AvailableTickets, nil
}

func (s *MemoryStore) Decrement(ctx context.Context, eventID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.events[eventID]
	if !ok {
		return ErrNotFound
	}
	e.AvailableTickets--
	return nil
}

func (s *MemoryStore) AppendBooking(ctx context.Context, eventID string, userID int64) (*model.Booking, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.events[eventID]; !ok {
		return nil, ErrNotFound
	}
	b := newBooking(eventID, userID)
	s.bookings = append(s.bookings, b)
	return &b, nil
}

func (s *MemoryStore) ListEvents(context.Context) ([]model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	events := make([]model.Event, 0, len(s.order))
	for _, id := range s.order {
		events = append(events, *s.events[id])
	}
	return events, nil
}

func (s *MemoryStore) CountBookings(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.bookings), nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

func newBooking(eventID string, userID int64) model.Booking {
	return model.Booking{
		ID:       uuid.New().String(),
		UserID:   userID,
		EventID:  eventID,
		BookedAt: time.Now().UTC(),
	}
}

var _ Store = (*MemoryStore)(nil)
