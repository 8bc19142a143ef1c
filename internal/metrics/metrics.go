// Package metrics exposes the service's Prometheus instruments.
//
// The booking core does not touch Prometheus directly; it reports through
// the Recorder interface so tests can swap in a fake or Nop.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// UnmatchedRoute labels requests that matched no route, so unknown URLs
// share one series.
const UnmatchedRoute = "unmatched"

// Booking attempt statuses.
const (
	StatusSuccess = "success"
	StatusSoldOut = "sold_out"
	StatusFailed  = "failed"
)

// Recorder is the observability contract used by the store and the
// admission gateway.
type Recorder interface {
	// BookingAttempt counts one booking outcome by status.
	BookingAttempt(status string)
	// ObserveQuery records the latency of one storage operation.
	ObserveQuery(operation, table string, d time.Duration)
	// ConnectionError counts one failed attempt to reach storage.
	ConnectionError()
	// SetTicketsRemaining publishes the latest known remaining count.
	SetTicketsRemaining(eventID string, remaining int)
	// ResetTicketsRemaining drops every per-event gauge.
	ResetTicketsRemaining()
}

// Metrics holds every instrument registered by the service.
type Metrics struct {
	BookingAttempts    *prometheus.CounterVec
	DBQueryDuration    *prometheus.HistogramVec
	DBConnectionErrors prometheus.Counter
	TicketsRemaining   *prometheus.GaugeVec

	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight *prometheus.GaugeVec
}

// New registers the instruments on the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry registers the instruments on reg. Tests pass a fresh
// prometheus.NewRegistry() so runs don't collide.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		BookingAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "booking_attempts_total",
				Help: "Total booking attempts",
			},
			[]string{"status"},
		),
		DBQueryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "db_query_duration_seconds",
				Help:    "Database query duration in seconds",
				Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"operation", "table"},
		),
		DBConnectionErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "db_connection_errors_total",
				Help: "Total number of database connection errors",
			},
		),
		TicketsRemaining: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tickets_remaining",
				Help: "Number of tickets remaining",
			},
			[]string{"event_id"},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status_code"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "http_requests_inprogress",
				Help: "Number of HTTP requests currently being served",
			},
			[]string{"method"},
		),
	}

	reg.MustRegister(
		m.BookingAttempts,
		m.DBQueryDuration,
		m.DBConnectionErrors,
		m.TicketsRemaining,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
	)
	return m
}

// RegisterRuntime adds process CPU/memory and Go runtime collectors.
func RegisterRuntime(reg prometheus.Registerer) error {
	if err := reg.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
			return err
		}
	}
	if err := reg.Register(collectors.NewGoCollector()); err != nil {
		if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
			return err
		}
	}
	return nil
}

func (m *Metrics) BookingAttempt(status string) {
	m.BookingAttempts.WithLabelValues(status).Inc()
}

func (m *Metrics) ObserveQuery(operation, table string, d time.Duration) {
	m.DBQueryDuration.WithLabelValues(operation, table).Observe(d.Seconds())
}

func (m *Metrics) ConnectionError() {
	m.DBConnectionErrors.Inc()
}

func (m *Metrics) SetTicketsRemaining(eventID string, remaining int) {
	m.TicketsRemaining.WithLabelValues(eventID).Set(float64(remaining))
}

func (m *Metrics) ResetTicketsRemaining() {
	m.TicketsRemaining.Reset()
}

// ObserveHTTP records one completed HTTP request.
func (m *Metrics) ObserveHTTP(method, path string, status int, d time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(d.Seconds())
}

// Nop discards everything.
type Nop struct{}

func (Nop) BookingAttempt(string)                      {}
func (Nop) ObserveQuery(string, string, time.Duration) {}
func (Nop) ConnectionError()                           {}
func (Nop) SetTicketsRemaining(string, int)            {}
func (Nop) ResetTicketsRemaining()                     {}

var (
	_ Recorder = (*Metrics)(nil)
	_ Recorder = Nop{}
)
