package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Shivanand-hulikatti/concert-ticket-booking/internal/config"
	"github.com/Shivanand-hulikatti/concert-ticket-booking/internal/metrics"
)

// NewRouter builds the full route table.
//
// gatherer serves /metrics; m may be nil to skip HTTP instrumentation.
func NewRouter(h *BookingHandler, m *metrics.Metrics, gatherer prometheus.Gatherer, auth config.MetricsConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(Logger)
	r.Use(CORS)
	if m != nil {
		r.Use(Prometheus(m))
	}

	r.Get("/", h.Root)
	r.Post("/setup", h.Setup)
	r.Post("/book", h.Book)
	r.Get("/status", h.Status)
	r.Get("/health", h.Health)

	r.Group(func(r chi.Router) {
		if auth.AuthEnabled() {
			r.Use(chimiddleware.BasicAuth("metrics", map[string]string{auth.User: auth.Password}))
		}
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	})

	return r
}
