// Package model defines the core domain types for the ticket booking service.
package model

import "time"

// Defaults applied to a setup request that omits a field.
const (
	DefaultEventName    = "Coldplay Concert - Jakarta"
	DefaultTotalTickets = 100
)

// Event is a bookable entity with a finite ticket inventory.
type Event struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	TotalTickets     int       `json:"total_tickets"`
	AvailableTickets int       `json:"available_tickets"`
	CreatedAt        time.Time `json:"created_at"`
}

// Sold returns how many tickets have been claimed. Under the unsafe booking
// variant this can exceed TotalTickets.
func (e *Event) Sold() int {
	return e.TotalTickets - e.AvailableTickets
}

// Oversold reports whether the remaining count went below zero.
func (e *Event) Oversold() bool {
	return e.AvailableTickets < 0
}

// Booking is one ledger row: one ticket claimed by one user for one event.
type Booking struct {
	ID       string    `json:"id"`
	UserID   int64     `json:"user_id"`
	EventID  string    `json:"event_id"`
	BookedAt time.Time `json:"booked_at"`
}

// SetupRequest is the payload for POST /setup.
type SetupRequest struct {
	EventName    string `json:"event_name" validate:"required,max=255"`
	TotalTickets int    `json:"total_tickets" validate:"gte=1,lte=100000"`
}

// SetupResponse is returned by POST /setup.
type SetupResponse struct {
	Message      string `json:"message"`
	EventID      string `json:"event_id"`
	EventName    string `json:"event_name"`
	TotalTickets int    `json:"total_tickets"`
}

// BookRequest is the payload for POST /book.
type BookRequest struct {
	UserID  int64  `json:"user_id" validate:"required,gt=0"`
	EventID string `json:"event_id" validate:"required,max=64"`
}

// BookResponse is returned by a successful POST /book.
type BookResponse struct {
	Message          string `json:"message"`
	UserID           int64  `json:"user_id"`
	EventID          string `json:"event_id"`
	RemainingTickets int    `json:"remaining_tickets"`
}

// EventStatus is one row of GET /status.
type EventStatus struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	TotalTickets     int    `json:"total_tickets"`
	AvailableTickets int    `json:"available_tickets"`
	SoldTickets      int    `json:"sold_tickets"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	Events                []EventStatus `json:"events"`
	TotalBookingsRecorded int           `json:"total_bookings_recorded"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
}

// ErrorResponse is a standard JSON error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
}
