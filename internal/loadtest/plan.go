// Package loadtest drives staged booking traffic at a running service and
// reports whether the run oversold.
package loadtest

import (
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Stage ramps the number of virtual users linearly from the previous
// stage's target to Target over Duration.
type Stage struct {
	Duration time.Duration `yaml:"duration"`
	Target   int           `yaml:"target"`
}

// SetupStep seeds a fresh event before the run.
type SetupStep struct {
	EventName    string `yaml:"event_name"`
	TotalTickets int    `yaml:"total_tickets"`
}

// Plan describes one load run.
type Plan struct {
	BaseURL      string        `yaml:"base_url"`
	EventID      string        `yaml:"event_id"`
	Setup        *SetupStep    `yaml:"setup"`
	ThinkTime    time.Duration `yaml:"think_time"`
	Timeout      time.Duration `yaml:"timeout"`
	P95Threshold time.Duration `yaml:"p95_threshold"`
	UserIDMin    int64         `yaml:"user_id_min"`
	UserIDMax    int64         `yaml:"user_id_max"`
	Stages       []Stage       `yaml:"stages"`
}

// DefaultStages ramps to 100 users over 70s and back down over 20s.
func DefaultStages() []Stage {
	return []Stage{
		{Duration: 10 * time.Second, Target: 10},
		{Duration: 30 * time.Second, Target: 50},
		{Duration: 30 * time.Second, Target: 100},
		{Duration: 20 * time.Second, Target: 0},
	}
}

// DefaultPlan returns a plan against a local service.
func DefaultPlan() Plan {
	return Plan{
		BaseURL:      "http://localhost:8000",
		ThinkTime:    100 * time.Millisecond,
		Timeout:      10 * time.Second,
		P95Threshold: 500 * time.Millisecond,
		UserIDMin:    1000,
		UserIDMax:    9999,
		Stages:       DefaultStages(),
	}
}

// LoadPlan reads a YAML plan. Fields absent from the file keep their
// DefaultPlan values.
func LoadPlan(path string) (Plan, error) {
	plan := DefaultPlan()
	raw, err := os.ReadFile(path)
	if err != nil {
		return plan, fmt.Errorf("read plan: %w", err)
	}
	if err := yaml.Unmarshal(raw, &plan); err != nil {
		return plan, fmt.Errorf("parse plan %s: %w", path, err)
	}
	return plan, nil
}

// Validate rejects plans that cannot run.
func (p Plan) Validate() error {
	if p.BaseURL == "" {
		return errors.New("base url is required")
	}
	if p.EventID == "" && p.Setup == nil {
		return errors.New("either an event id or a setup section is required")
	}
	if p.Setup != nil && p.Setup.TotalTickets <= 0 {
		return errors.New("setup total_tickets must be positive")
	}
	if len(p.Stages) == 0 {
		return errors.New("at least one stage is required")
	}
	for i, s := range p.Stages {
		if s.Duration < 0 || s.Target < 0 {
			return fmt.Errorf("stage %d: duration and target must not be negative", i+1)
		}
	}
	if p.UserIDMin <= 0 || p.UserIDMax < p.UserIDMin {
		return fmt.Errorf("bad user id range [%d, %d]", p.UserIDMin, p.UserIDMax)
	}
	return nil
}

// TotalDuration sums the stage durations.
func (p Plan) TotalDuration() time.Duration {
	var d time.Duration
	for _, s := range p.Stages {
		d += s.Duration
	}
	return d
}

// MaxTarget is the peak number of virtual users.
func (p Plan) MaxTarget() int {
	n := 0
	for _, s := range p.Stages {
		n = max(n, s.Target)
	}
	return n
}

// targetAt interpolates the virtual user count elapsed into the run.
// ok is false once every stage has finished.
func targetAt(stages []Stage, elapsed time.Duration) (n int, ok bool) {
	from := 0
	for _, s := range stages {
		if elapsed < s.Duration {
			frac := float64(elapsed) / float64(s.Duration)
			return int(math.Round(float64(from) + float64(s.Target-from)*frac)), true
		}
		elapsed -= s.Duration
		from = s.Target
	}
	return 0, false
}
