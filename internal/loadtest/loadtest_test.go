package loadtest

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Shivanand-hulikatti/concert-ticket-booking/internal/config"
	"github.com/Shivanand-hulikatti/concert-ticket-booking/internal/handler"
	"github.com/Shivanand-hulikatti/concert-ticket-booking/internal/logger"
	"github.com/Shivanand-hulikatti/concert-ticket-booking/internal/metrics"
	"github.com/Shivanand-hulikatti/concert-ticket-booking/internal/model"
	"github.com/Shivanand-hulikatti/concert-ticket-booking/internal/repository"
	"github.com/Shivanand-hulikatti/concert-ticket-booking/internal/service"
)

func TestTargetAt(t *testing.T) {
	stages := []Stage{
		{Duration: 10 * time.Second, Target: 10},
		{Duration: 10 * time.Second, Target: 30},
		{Duration: 10 * time.Second, Target: 0},
	}

	tests := []struct {
		elapsed time.Duration
		want    int
		ok      bool
	}{
		{0, 0, true},
		{5 * time.Second, 5, true},
		{10 * time.Second, 10, true},
		{15 * time.Second, 20, true},
		{25 * time.Second, 15, true},
		{30 * time.Second, 0, false},
	}
	for _, tt := range tests {
		got, ok := targetAt(stages, tt.elapsed)
		assert.Equal(t, tt.ok, ok, tt.elapsed)
		assert.Equal(t, tt.want, got, tt.elapsed)
	}
}

func TestPercentile(t *testing.T) {
	var lat []time.Duration
	for i := 1; i <= 100; i++ {
		lat = append(lat, time.Duration(i)*time.Millisecond)
	}

	assert.Equal(t, 95*time.Millisecond, percentile(lat, 0.95))
	assert.Equal(t, 100*time.Millisecond, percentile(lat, 1))
	assert.Equal(t, time.Millisecond, percentile(lat[:1], 0.95))
	assert.Zero(t, percentile(nil, 0.95))
}

func TestLoadPlan(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
base_url: http://backend:8000
setup:
  event_name: Final heavy load
  total_tickets: 50
think_time: 250ms
stages:
  - duration: 5s
    target: 20
  - duration: 2s
    target: 0
`), 0o600))

	plan, err := LoadPlan(path)
	require.NoError(t, err)

	assert.Equal(t, "http://backend:8000", plan.BaseURL)
	require.NotNil(t, plan.Setup)
	assert.Equal(t, 50, plan.Setup.TotalTickets)
	assert.Equal(t, 250*time.Millisecond, plan.ThinkTime)
	assert.Equal(t, []Stage{{5 * time.Second, 20}, {2 * time.Second, 0}}, plan.Stages)
	assert.Equal(t, int64(1000), plan.UserIDMin)
	assert.Equal(t, 500*time.Millisecond, plan.P95Threshold)
	assert.Equal(t, 7*time.Second, plan.TotalDuration())
	assert.Equal(t, 20, plan.MaxTarget())
	require.NoError(t, plan.Validate())
}

func TestPlan_Validate(t *testing.T) {
	plan := DefaultPlan()
	assert.Error(t, plan.Validate(), "needs an event")

	plan.EventID = "evt"
	require.NoError(t, plan.Validate())

	bad := plan
	bad.Stages = nil
	assert.Error(t, bad.Validate())

	bad = plan
	bad.UserIDMax = 10
	assert.Error(t, bad.Validate())

	bad = plan
	bad.Setup = &SetupStep{TotalTickets: 0}
	assert.Error(t, bad.Validate())
}

func newBookingServer(t *testing.T, variant string, gap time.Duration) *httptest.Server {
	t.Helper()
	store := repository.NewMemoryStore()
	p, err := service.NewProtocol(variant, store, gap)
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)
	h := handler.NewBookingHandler(service.NewBookingService(store, p, m))
	srv := httptest.NewServer(handler.NewRouter(h, m, reg, config.MetricsConfig{}))
	t.Cleanup(srv.Close)
	return srv
}

func shortPlan(baseURL string, tickets int) Plan {
	plan := DefaultPlan()
	plan.BaseURL = baseURL
	plan.Setup = &SetupStep{EventName: "Load", TotalTickets: tickets}
	plan.ThinkTime = 5 * time.Millisecond
	plan.Stages = []Stage{
		{Duration: 200 * time.Millisecond, Target: 20},
		{Duration: 300 * time.Millisecond, Target: 20},
	}
	return plan
}

func TestRunner_SafeNeverOversells(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	original := logger.Get()
	logger.Set(zap.New(core))
	t.Cleanup(func() { logger.Set(original) })

	srv := newBookingServer(t, config.VariantSafe, 0)

	summary, err := NewRunner(shortPlan(srv.URL, 5), nil).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 5, summary.Admitted())
	assert.Positive(t, summary.SoldOut())
	assert.Zero(t, summary.TransportErrors)
	assert.False(t, summary.Oversold())

	e, ok := summary.Event()
	require.True(t, ok)
	assert.Equal(t, model.EventStatus{
		ID: summary.EventID, Name: "Load", TotalTickets: 5, AvailableTickets: 0, SoldTickets: 5,
	}, e)
	assert.Equal(t, 5, summary.Final.TotalBookingsRecorded)

	seeded := logs.FilterMessage("event seeded").All()
	require.Len(t, seeded, 1)
	assert.Equal(t, srv.URL, seeded[0].ContextMap()["url"])
	assert.Equal(t, summary.EventID, seeded[0].ContextMap()["event_id"])

	var out bytes.Buffer
	summary.Print(&out)
	assert.Contains(t, out.String(), "oversold:         no")
}

func TestRunner_UnsafeOversells(t *testing.T) {
	srv := newBookingServer(t, config.VariantUnsafe, 30*time.Millisecond)

	plan := shortPlan(srv.URL, 3)
	plan.Stages = []Stage{{Duration: 300 * time.Millisecond, Target: 30}}
	// Jump straight to peak so the first wave lands together.
	plan.Stages = append([]Stage{{Duration: 0, Target: 30}}, plan.Stages...)

	summary, err := NewRunner(plan, nil).Run(context.Background())
	require.NoError(t, err)

	assert.True(t, summary.Oversold(), "expected oversell, admitted=%d", summary.Admitted())

	var out bytes.Buffer
	summary.Print(&out)
	assert.Contains(t, out.String(), "OVERSOLD")
}

func TestRunner_SetupFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	_, err := NewRunner(shortPlan(srv.URL, 5), nil).Run(context.Background())
	assert.ErrorContains(t, err, "setup")
}
