// Package handler contains chi HTTP handlers that translate HTTP
// requests/responses to and from the service layer.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/Shivanand-hulikatti/concert-ticket-booking/internal/model"
	"github.com/Shivanand-hulikatti/concert-ticket-booking/internal/repository"
)

// Version is reported by the root banner.
const Version = "1.0"

// BookingService is the subset of the service layer the handlers call.
type BookingService interface {
	Setup(ctx context.Context, name string, totalTickets int) (*model.Event, error)
	Book(ctx context.Context, eventID string, userID int64) (int, error)
	Status(ctx context.Context) (*model.StatusResponse, error)
	Health(ctx context.Context) model.HealthResponse
	Variant() string
}

// BookingHandler holds all HTTP handlers for the booking API.
type BookingHandler struct {
	svc      BookingService
	validate *validator.Validate
}

// NewBookingHandler constructs a BookingHandler.
func NewBookingHandler(svc BookingService) *BookingHandler {
	return &BookingHandler{svc: svc, validate: validator.New()}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, model.ErrorResponse{Error: msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MB limit
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// validationMessage flattens validator errors into one line.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	fe := verrs[0]
	if fe.Param() == "" {
		return "invalid " + fe.Field() + ": failed " + fe.Tag()
	}
	return "invalid " + fe.Field() + ": failed " + fe.Tag() + "=" + fe.Param()
}

// Root handles GET /
func (h *BookingHandler) Root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Concert Ticket Booking System API",
		"version": Version,
		"variant": h.svc.Variant(),
		"endpoints": map[string]string{
			"setup":   "POST /setup",
			"book":    "POST /book",
			"status":  "GET /status",
			"health":  "GET /health",
			"metrics": "GET /metrics",
		},
	})
}

// Setup handles POST /setup
// Wipes all events and bookings and seeds one event. Omitted fields take
// the demo defaults.
func (h *BookingHandler) Setup(w http.ResponseWriter, r *http.Request) {
	req := model.SetupRequest{
		EventName:    model.DefaultEventName,
		TotalTickets: model.DefaultTotalTickets,
	}
	// An empty body seeds the defaults.
	if err := decodeJSON(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	event, err := h.svc.Setup(r.Context(), req.EventName, req.TotalTickets)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "database error: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, model.SetupResponse{
		Message:      "Event setup successful",
		EventID:      event.ID,
		EventName:    event.Name,
		TotalTickets: event.TotalTickets,
	})
}

// Book handles POST /book
func (h *BookingHandler) Book(w http.ResponseWriter, r *http.Request) {
	var req model.BookRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	remaining, err := h.svc.Book(r.Context(), req.EventID, req.UserID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			writeError(w, http.StatusNotFound, "Event not found")
		case errors.Is(err, repository.ErrSoldOut):
			writeError(w, http.StatusBadRequest, "Sold out!")
		default:
			writeError(w, http.StatusInternalServerError, "database error: "+err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, model.BookResponse{
		Message:          "Ticket booked successfully!",
		UserID:           req.UserID,
		EventID:          req.EventID,
		RemainingTickets: remaining,
	})
}

// Status handles GET /status
func (h *BookingHandler) Status(w http.ResponseWriter, r *http.Request) {
	status, err := h.svc.Status(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "database error: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// Health handles GET /health
// Always 200; an unreachable store shows up in the body.
func (h *BookingHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Health(r.Context()))
}
