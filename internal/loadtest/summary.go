package loadtest

import (
	"fmt"
	"io"
	"math"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/Shivanand-hulikatti/concert-ticket-booking/internal/model"
)

// Summary is the outcome of one run.
type Summary struct {
	EventID         string
	Duration        time.Duration
	Requests        int
	ByStatus        map[int]int
	TransportErrors int
	P95             time.Duration
	Max             time.Duration
	P95Threshold    time.Duration

	// Final is the /status read taken after the run.
	Final *model.StatusResponse
}

func (s *Summary) Admitted() int { return s.ByStatus[http.StatusOK] }
func (s *Summary) SoldOut() int  { return s.ByStatus[http.StatusBadRequest] }

// ThresholdPassed reports whether p95 latency stayed under the threshold.
// A zero threshold always passes.
func (s *Summary) ThresholdPassed() bool {
	return s.P95Threshold <= 0 || s.P95 < s.P95Threshold
}

// Event returns the final status row for the run's event.
func (s *Summary) Event() (model.EventStatus, bool) {
	if s.Final == nil {
		return model.EventStatus{}, false
	}
	for _, e := range s.Final.Events {
		if e.ID == s.EventID {
			return e, true
		}
	}
	return model.EventStatus{}, false
}

// Oversold reports whether the final state shows more tickets sold than
// exist, or more admissions than capacity.
func (s *Summary) Oversold() bool {
	e, ok := s.Event()
	if !ok {
		return false
	}
	return e.AvailableTickets < 0 || e.SoldTickets > e.TotalTickets || s.Admitted() > e.TotalTickets
}

// Print writes a human readable report.
func (s *Summary) Print(w io.Writer) {
	fmt.Fprintf(w, "event:            %s\n", s.EventID)
	fmt.Fprintf(w, "duration:         %s\n", s.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "requests:         %d\n", s.Requests)
	fmt.Fprintf(w, "  admitted (200): %d\n", s.Admitted())
	fmt.Fprintf(w, "  sold out (400): %d\n", s.SoldOut())

	codes := make([]int, 0, len(s.ByStatus))
	for code := range s.ByStatus {
		if code != http.StatusOK && code != http.StatusBadRequest {
			codes = append(codes, code)
		}
	}
	slices.Sort(codes)
	for _, code := range codes {
		fmt.Fprintf(w, "  status %d:      %d\n", code, s.ByStatus[code])
	}
	if s.TransportErrors > 0 {
		fmt.Fprintf(w, "  transport errs: %d\n", s.TransportErrors)
	}

	verdict := "pass"
	if !s.ThresholdPassed() {
		verdict = "FAIL"
	}
	fmt.Fprintf(w, "latency p95:      %s (threshold %s: %s)\n", s.P95.Round(time.Microsecond), s.P95Threshold, verdict)
	fmt.Fprintf(w, "latency max:      %s\n", s.Max.Round(time.Microsecond))

	e, ok := s.Event()
	if !ok {
		fmt.Fprintln(w, "final status:     event not found")
		return
	}
	fmt.Fprintf(w, "final status:     total=%d available=%d sold=%d bookings=%d\n",
		e.TotalTickets, e.AvailableTickets, e.SoldTickets, s.Final.TotalBookingsRecorded)
	if s.Oversold() {
		fmt.Fprintf(w, "OVERSOLD:         %d tickets beyond capacity\n", max(e.SoldTickets, s.Admitted())-e.TotalTickets)
	} else {
		fmt.Fprintln(w, "oversold:         no")
	}
}

type collector struct {
	mu        sync.Mutex
	byStatus  map[int]int
	latencies []time.Duration
	transport int
}

func newCollector() *collector {
	return &collector{byStatus: make(map[int]int)}
}

func (c *collector) record(status int, d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byStatus[status]++
	c.latencies = append(c.latencies, d)
}

func (c *collector) transportError() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transport++
}

func (c *collector) summarize(eventID string, elapsed, threshold time.Duration) *Summary {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := &Summary{
		EventID:         eventID,
		Duration:        elapsed,
		Requests:        len(c.latencies) + c.transport,
		ByStatus:        make(map[int]int, len(c.byStatus)),
		TransportErrors: c.transport,
		P95Threshold:    threshold,
	}
	for k, v := range c.byStatus {
		s.ByStatus[k] = v
	}
	sorted := slices.Clone(c.latencies)
	slices.Sort(sorted)
	s.P95 = percentile(sorted, 0.95)
	if len(sorted) > 0 {
		s.Max = sorted[len(sorted)-1]
	}
	return s
}

// percentile uses the nearest-rank method on an ascending slice.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	rank := int(math.Ceil(p * float64(len(sorted))))
	rank = min(max(rank, 1), len(sorted))
	return sorted[rank-1]
}
