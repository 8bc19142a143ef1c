// loadtest drives staged booking traffic at a running ticket service and
// reports whether the run oversold.
//
// With no --plan file it ramps 10, 50 and 100 virtual users over 70s and
// back to zero over 20s, each posting /book with a random user id and a
// 100ms think time between requests.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/Shivanand-hulikatti/concert-ticket-booking/internal/loadtest"
	"github.com/Shivanand-hulikatti/concert-ticket-booking/internal/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		planPath     string
		baseURL      string
		eventID      string
		setup        bool
		eventName    string
		totalTickets int
		think        = loadtest.DefaultPlan().ThinkTime
		p95          = loadtest.DefaultPlan().P95Threshold
	)

	flagSet := pflag.NewFlagSet("loadtest", pflag.ContinueOnError)
	flagSet.StringVar(&planPath, "plan", "", "YAML plan file (stages, base_url, setup, ...)")
	flagSet.StringVar(&baseURL, "url", "http://localhost:8000", "service base URL")
	flagSet.StringVar(&eventID, "event-id", "", "event to book against")
	flagSet.BoolVar(&setup, "setup", false, "reset the service and seed a fresh event before the run")
	flagSet.StringVar(&eventName, "event-name", "Coldplay Concert - Jakarta", "event name used with --setup")
	flagSet.IntVar(&totalTickets, "total-tickets", 100, "ticket count used with --setup")
	flagSet.DurationVar(&think, "think", think, "pause between requests per virtual user")
	flagSet.DurationVar(&p95, "p95-threshold", p95, "fail the run when p95 latency reaches this")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		fmt.Fprintf(os.Stderr, "Usage: loadtest [flags]\n\n%s", flagSet.FlagUsages())
		return nil
	}

	plan := loadtest.DefaultPlan()
	if planPath != "" {
		var err error
		if plan, err = loadtest.LoadPlan(planPath); err != nil {
			return err
		}
	}

	// Flags given explicitly win over the plan file.
	if flagSet.Changed("url") || planPath == "" {
		plan.BaseURL = baseURL
	}
	if flagSet.Changed("event-id") {
		plan.EventID = eventID
	}
	if setup {
		plan.Setup = &loadtest.SetupStep{EventName: eventName, TotalTickets: totalTickets}
	}
	if flagSet.Changed("think") {
		plan.ThinkTime = think
	}
	if flagSet.Changed("p95-threshold") {
		plan.P95Threshold = p95
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("load test starting",
		zap.String("url", plan.BaseURL),
		zap.Int("max_vus", plan.MaxTarget()),
		zap.Duration("duration", plan.TotalDuration()),
	)

	summary, err := loadtest.NewRunner(plan, nil).Run(ctx)
	if summary != nil {
		summary.Print(os.Stdout)
	}
	if err != nil {
		return err
	}
	if !summary.ThresholdPassed() {
		return fmt.Errorf("p95 latency %s exceeded threshold %s", summary.P95, summary.P95Threshold)
	}
	return nil
}
