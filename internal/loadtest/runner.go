package loadtest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Shivanand-hulikatti/concert-ticket-booking/internal/logger"
	"github.com/Shivanand-hulikatti/concert-ticket-booking/internal/model"
)

// controlTick is how often the virtual user target is recomputed and how
// long an idle user waits before checking it again.
const controlTick = 50 * time.Millisecond

// Runner executes a Plan.
type Runner struct {
	plan   Plan
	client *http.Client
	log    *zap.Logger
}

// NewRunner constructs a Runner. A nil client gets one with the plan's
// timeout.
func NewRunner(plan Plan, client *http.Client) *Runner {
	if client == nil {
		client = &http.Client{Timeout: plan.Timeout}
	}
	return &Runner{
		plan:   plan,
		client: client,
		log:    logger.With(zap.String("url", plan.BaseURL)),
	}
}

// Run seeds the event if the plan asks for it, drives the stages, then
// reads /status. Cancelling ctx ends the run early; the summary still
// covers what was sent.
func (r *Runner) Run(ctx context.Context) (*Summary, error) {
	if err := r.plan.Validate(); err != nil {
		return nil, err
	}

	eventID := r.plan.EventID
	if r.plan.Setup != nil {
		setup, err := r.setup(ctx)
		if err != nil {
			return nil, err
		}
		eventID = setup.EventID
		r.log.Info("event seeded",
			zap.String("event_id", setup.EventID),
			zap.Int("total_tickets", setup.TotalTickets),
		)
	}

	col := newCollector()
	started := time.Now()
	r.drive(ctx, eventID, col)

	summary := col.summarize(eventID, time.Since(started), r.plan.P95Threshold)

	// The run context may already be cancelled; the final read gets its own.
	statusCtx, cancel := context.WithTimeout(context.Background(), r.plan.Timeout)
	defer cancel()
	final, err := r.status(statusCtx)
	if err != nil {
		return summary, fmt.Errorf("read final status: %w", err)
	}
	summary.Final = final
	return summary, nil
}

// drive runs MaxTarget virtual users; user i is active while the current
// target exceeds i.
func (r *Runner) drive(ctx context.Context, eventID string, col *collector) {
	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	var target atomic.Int64
	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		defer stop()
		start := time.Now()
		ticker := time.NewTicker(controlTick)
		defer ticker.Stop()
		for {
			n, ok := targetAt(r.plan.Stages, time.Since(start))
			if !ok {
				return nil
			}
			target.Store(int64(n))
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
			}
		}
	})

	for i := 0; i < r.plan.MaxTarget(); i++ {
		id := int64(i)
		g.Go(func() error {
			for {
				if id >= target.Load() {
					if !sleep(gctx, controlTick) {
						return nil
					}
					continue
				}
				r.book(gctx, eventID, col)
				if !sleep(gctx, r.plan.ThinkTime) {
					return nil
				}
			}
		})
	}

	_ = g.Wait()
}

func (r *Runner) book(ctx context.Context, eventID string, col *collector) {
	userID := r.plan.UserIDMin + rand.Int63n(r.plan.UserIDMax-r.plan.UserIDMin+1)
	body, err := json.Marshal(model.BookRequest{UserID: userID, EventID: eventID})
	if err != nil {
		col.transportError()
		return
	}

	start := time.Now()
	status, err := r.post(ctx, "/book", body, nil)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		r.log.Debug("book request failed", zap.Error(err))
		col.transportError()
		return
	}
	col.record(status, time.Since(start))
}

func (r *Runner) setup(ctx context.Context) (*model.SetupResponse, error) {
	body, err := json.Marshal(model.SetupRequest{
		EventName:    r.plan.Setup.EventName,
		TotalTickets: r.plan.Setup.TotalTickets,
	})
	if err != nil {
		return nil, err
	}
	var resp model.SetupResponse
	status, err := r.post(ctx, "/setup", body, &resp)
	if err != nil {
		return nil, fmt.Errorf("setup: %w", err)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("setup: unexpected status %d", status)
	}
	return &resp, nil
}

func (r *Runner) status(ctx context.Context) (*model.StatusResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.plan.BaseURL+"/status", nil)
	if err != nil {
		return nil, err
	}
	res, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", res.StatusCode)
	}
	var out model.StatusResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode status: %w", err)
	}
	return &out, nil
}

// post sends a JSON body and decodes a 200 response into out when out is
// non-nil. Other bodies are drained so the connection can be reused.
func (r *Runner) post(ctx context.Context, path string, body []byte, out any) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.plan.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := r.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer res.Body.Close()

	if out != nil && res.StatusCode == http.StatusOK {
		if err := json.NewDecoder(res.Body).Decode(out); err != nil {
			return res.StatusCode, fmt.Errorf("decode %s response: %w", path, err)
		}
		return res.StatusCode, nil
	}
	_, _ = io.Copy(io.Discard, res.Body)
	return res.StatusCode, nil
}

// sleep waits d or until ctx is done, reporting whether the full wait
// elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
