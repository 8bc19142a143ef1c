package service

import (
	"context"
	"sync"
	"time"

	"github.com/Shivanand-hulikatti/concert-ticket-booking/internal/model"
	"github.com/Shivanand-hulikatti/concert-ticket-booking/internal/repository"
)

type recorder struct {
	mu        sync.Mutex
	attempts  map[string]int
	remaining map[string]int
	resets    int
}

func newRecorder() *recorder {
	return &recorder{attempts: map[string]int{}, remaining: map[string]int{}}
}

func (r *recorder) BookingAttempt(status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts[status]++
}

func (r *recorder) ObserveQuery(string, string, time.Duration) {}
func (r *recorder) ConnectionError()                           {}

func (r *recorder) SetTicketsRemaining(eventID string, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.remaining[eventID] = n
}

func (r *recorder) ResetTicketsRemaining() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resets++
	r.remaining = map[string]int{}
}

func (r *recorder) count(status string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attempts[status]
}

func (r *recorder) gauge(eventID string) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.remaining[eventID]
	return n, ok
}

// brokenStore is a MemoryStore whose every call after setup fails with err.
type brokenStore struct {
	*repository.MemoryStore
	err error
}

func (s *brokenStore) ReadRemaining(context.Context, string) (int, error) { return 0, s.err }

func (s *brokenStore) DecrementAndLog(context.Context, string, int64) (int, error) {
	return 0, s.err
}

func (s *brokenStore) ListEvents(context.Context) ([]model.Event, error) { return nil, s.err }

func (s *brokenStore) Ping(context.Context) error { return s.err }
