// Command backfill harvests an explicit publication-date window once and
// exits. It shares the daemon's job state, so a backfill never overlaps a
// scheduled run of the same family.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dataminds-hq/tender-harvester/internal/app"
	"github.com/dataminds-hq/tender-harvester/internal/config"
	"github.com/dataminds-hq/tender-harvester/internal/jobs"
	"github.com/dataminds-hq/tender-harvester/internal/logger"
)

const dayFormat = "2006-01-02"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "backfill failed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		source = flag.String("source", "", "source to backfill: ted or bescha")
		from   = flag.String("from", "", "first publication day, YYYY-MM-DD (default yesterday)")
		to     = flag.String("to", "", "last publication day, YYYY-MM-DD (default same as -from)")
	)
	flag.Parse()

	fromDay, toDay, err := parseWindow(*from, *to)
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if _, err := logger.Init(cfg.LogLevel); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	harvester, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer harvester.Close(context.Background())

	var report jobs.Report
	switch *source {
	case "ted":
		report = harvester.Pipeline().RunTEDRange(ctx, fromDay, toDay)
	case "bescha":
		report = harvester.Pipeline().RunBeschARange(ctx, fromDay, toDay)
	default:
		return fmt.Errorf("unknown source %q (expected ted or bescha)", *source)
	}

	if report.Err != nil {
		return fmt.Errorf("%s backfill %s: %w", *source, report.Outcome, report.Err)
	}
	fmt.Printf("%s backfill %s: %s to %s\n", *source, report.Outcome,
		fromDay.Format(dayFormat), toDay.Format(dayFormat))
	return nil
}

// parseWindow resolves the day window. Both bounds default to yesterday; a
// lone -from means a single-day window.
func parseWindow(fromRaw, toRaw string) (time.Time, time.Time, error) {
	yesterday := time.Now().AddDate(0, 0, -1)

	from, err := parseDay(fromRaw, yesterday)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid -from: %w", err)
	}
	to, err := parseDay(toRaw, from)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid -to: %w", err)
	}
	if from.After(to) {
		return time.Time{}, time.Time{}, errors.New("-from is after -to")
	}
	return from, to, nil
}

func parseDay(raw string, def time.Time) (time.Time, error) {
	if raw == "" {
		return def, nil
	}
	return time.Parse(dayFormat, raw)
}
