// Package scheduler fires the recurring pipeline run from a cron expression.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ShaurayaMohan/TARS-Windscribe/common/logger"
	"github.com/ShaurayaMohan/TARS-Windscribe/internal/model"
)

type Runner interface {
	Run(ctx context.Context, window model.TimeWindow, trigger model.Trigger) (*model.RunOutcome, error)
}

type Config struct {
	Spec     string // standard 5-field cron expression or descriptor
	Timezone string
	Window   time.Duration
}

// Scheduler is created once at startup and stopped on shutdown. Every tick
// goes through the same Runner as on-demand triggers, so a tick that finds a
// run in progress is skipped, never queued.
type Scheduler struct {
	cron   *cron.Cron
	runner Runner
	window time.Duration
	entry  cron.EntryID
	now    func() time.Time
}

func New(runner Runner, cfg Config) (*Scheduler, error) {
	loc, err := loadLocation(cfg.Timezone)
	if err != nil {
		return nil, err
	}
	if cfg.Window <= 0 {
		cfg.Window = model.DefaultWindow
	}

	log := slogAdapter{logger: slog.Default().With("component", "tars.scheduler")}
	s := &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(log),
			cron.WithChain(cron.Recover(log)),
		),
		runner: runner,
		window: cfg.Window,
		now:    time.Now,
	}

	entry, err := s.cron.AddFunc(cfg.Spec, func() { s.Tick(context.Background()) })
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", cfg.Spec, err)
	}
	s.entry = entry
	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	slog.Info("scheduler started", "next_run", s.Next().Format(time.RFC3339), "window", s.window.String())
}

// Stop prevents new ticks and waits for an in-flight tick or ctx, whichever
// comes first.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		slog.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for scheduled run: %w", ctx.Err())
	}
}

// Next is the next fire time, zero before Start.
func (s *Scheduler) Next() time.Time {
	return s.cron.Entry(s.entry).Next
}

// Tick runs the pipeline once for the trailing window ending now.
func (s *Scheduler) Tick(ctx context.Context) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Trigger:   logger.Ptr(string(model.TriggerSchedule)),
		Component: "tars.scheduler",
	})

	window := model.TrailingWindow(s.now().UTC().Truncate(time.Second), s.window)
	slog.InfoContext(ctx, "scheduled run firing", "window", window.String())

	outcome, err := s.runner.Run(ctx, window, model.TriggerSchedule)
	switch {
	case errors.Is(err, model.ErrAlreadyRunning):
		slog.WarnContext(ctx, "scheduled run skipped, another run is in progress")
	case err != nil:
		slog.ErrorContext(ctx, "scheduled run failed", "error", err)
	default:
		slog.InfoContext(ctx, "scheduled run finished", "run_id", outcome.Run.ID)
	}
}

// NextTimes previews the next n fire times of spec after from.
func NextTimes(spec, timezone string, from time.Time, n int) ([]time.Time, error) {
	loc, err := loadLocation(timezone)
	if err != nil {
		return nil, err
	}
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}

	times := make([]time.Time, 0, n)
	t := from.In(loc)
	for range n {
		t = schedule.Next(t)
		if t.IsZero() {
			break
		}
		times = append(times, t)
	}
	return times, nil
}

func loadLocation(name string) (*time.Location, error) {
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", name, err)
	}
	return loc, nil
}

// slogAdapter satisfies cron.Logger.
type slogAdapter struct {
	logger *slog.Logger
}

func (a slogAdapter) Info(msg string, keysAndValues ...any) {
	a.logger.Debug(msg, keysAndValues...)
}

func (a slogAdapter) Error(err error, msg string, keysAndValues ...any) {
	a.logger.Error(msg, append(keysAndValues, "error", err)...)
}
