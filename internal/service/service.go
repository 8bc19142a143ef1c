// Package service implements the admission gateway and status reporting
// on top of a booking Protocol and the inventory store.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Shivanand-hulikatti/concert-ticket-booking/internal/logger"
	"github.com/Shivanand-hulikatti/concert-ticket-booking/internal/metrics"
	"github.com/Shivanand-hulikatti/concert-ticket-booking/internal/model"
	"github.com/Shivanand-hulikatti/concert-ticket-booking/internal/repository"
)

// healthTimeout caps how long a health probe waits on storage.
const healthTimeout = 3 * time.Second

// BookingService orchestrates setup, booking and status operations.
type BookingService struct {
	store    repository.Store
	protocol Protocol
	metrics  metrics.Recorder
}

// NewBookingService constructs a BookingService with its dependencies.
func NewBookingService(store repository.Store, protocol Protocol, rec metrics.Recorder) *BookingService {
	if rec == nil {
		rec = metrics.Nop{}
	}
	return &BookingService{store: store, protocol: protocol, metrics: rec}
}

// Variant reports which booking protocol is active.
func (s *BookingService) Variant() string {
	return s.protocol.Variant()
}

// Setup wipes every event and booking and seeds a single event.
func (s *BookingService) Setup(ctx context.Context, name string, totalTickets int) (*model.Event, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = model.DefaultEventName
	}
	if totalTickets <= 0 {
		return nil, fmt.Errorf("total_tickets must be a positive integer")
	}

	event, err := s.store.CreateEvent(ctx, name, totalTickets)
	if err != nil {
		logger.Error("setup failed", zap.Error(err))
		return nil, fmt.Errorf("setup event: %w", err)
	}

	s.metrics.ResetTicketsRemaining()
	s.metrics.SetTicketsRemaining(event.ID, event.AvailableTickets)

	logger.Info("event seeded",
		zap.String("event_id", event.ID),
		zap.String("event_name", event.Name),
		zap.Int("total_tickets", event.TotalTickets),
	)
	return event, nil
}

// Book runs the booking protocol once and records the outcome.
//
// Errors are returned unwrapped when they are business outcomes
// (repository.ErrSoldOut, repository.ErrNotFound) so callers can match
// them with errors.Is; anything else is a storage fault.
func (s *BookingService) Book(ctx context.Context, eventID string, userID int64) (int, error) {
	remaining, err := s.protocol.Book(ctx, eventID, userID)
	switch {
	case err == nil:
		s.metrics.BookingAttempt(metrics.StatusSuccess)
		s.metrics.SetTicketsRemaining(eventID, remaining)
		return remaining, nil
	case errors.Is(err, repository.ErrSoldOut):
		s.metrics.BookingAttempt(metrics.StatusSoldOut)
		return 0, repository.ErrSoldOut
	case errors.Is(err, repository.ErrNotFound):
		s.metrics.BookingAttempt(metrics.StatusFailed)
		return 0, repository.ErrNotFound
	default:
		s.metrics.BookingAttempt(metrics.StatusFailed)
		logger.Error("booking failed",
			zap.String("event_id", eventID),
			zap.Int64("user_id", userID),
			zap.String("variant", s.protocol.Variant()),
			zap.Error(err),
		)
		return 0, fmt.Errorf("book ticket: %w", err)
	}
}

// Status aggregates every event and the ledger size.
func (s *BookingService) Status(ctx context.Context) (*model.StatusResponse, error) {
	events, err := s.store.ListEvents(ctx)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	total, err := s.store.CountBookings(ctx)
	if err != nil {
		return nil, fmt.Errorf("count bookings: %w", err)
	}

	resp := &model.StatusResponse{
		Events:                make([]model.EventStatus, 0, len(events)),
		TotalBookingsRecorded: total,
	}
	for i := range events {
		e := &events[i]
		s.metrics.SetTicketsRemaining(e.ID, e.AvailableTickets)
		resp.Events = append(resp.Events, model.EventStatus{
			ID:               e.ID,
			Name:             e.Name,
			TotalTickets:     e.TotalTickets,
			AvailableTickets: e.AvailableTickets,
			SoldTickets:      e.Sold(),
		})
	}
	return resp, nil
}

// Health never fails; an unreachable store is reported in the response.
func (s *BookingService) Health(ctx context.Context) model.HealthResponse {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	if err := s.store.Ping(ctx); err != nil {
		logger.Warn("health check failed", zap.Error(err))
		return model.HealthResponse{Status: "unhealthy", Database: "disconnected"}
	}
	return model.HealthResponse{Status: "healthy", Database: "connected"}
}
