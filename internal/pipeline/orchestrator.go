// Package pipeline runs Fetch → Analyze → Format → Deliver as one atomic run
// guarded by a single run-lock shared by every trigger.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ShaurayaMohan/TARS-Windscribe/common/id"
	"github.com/ShaurayaMohan/TARS-Windscribe/common/logger"
	"github.com/ShaurayaMohan/TARS-Windscribe/internal/metrics"
	"github.com/ShaurayaMohan/TARS-Windscribe/internal/model"
	"github.com/ShaurayaMohan/TARS-Windscribe/internal/status"
)

type TicketSource interface {
	Fetch(ctx context.Context, window model.TimeWindow) ([]model.Ticket, error)
}

type Analyzer interface {
	Analyze(ctx context.Context, tickets []model.Ticket) (*model.Analysis, error)
}

type Formatter interface {
	Format(result *model.AnalysisResult) (model.MessagePayload, error)
	FormatFailure(run model.RunRecord) model.MessagePayload
}

type Notifier interface {
	Deliver(ctx context.Context, payload model.MessagePayload) (*model.DeliveryReceipt, error)
}

type Config struct {
	Source    TicketSource
	Analyzer  Analyzer
	Formatter Formatter
	Notifier  Notifier
	Alerter   Notifier         // operator channel; nil disables failure alerts
	Status    status.Publisher // nil discards status events

	// Optional whole-stage budgets on top of the adapters' per-attempt timeouts.
	FetchTimeout   time.Duration
	AnalyzeTimeout time.Duration
	DeliverTimeout time.Duration

	Now   func() time.Time
	NewID func() int64
}

// RunOptions carries per-run settings that are not part of Config.
type RunOptions struct {
	// FailureNotifiers each get one failure notice besides the operator alert.
	FailureNotifiers []Notifier
}

type RunOption func(*RunOptions)

// WithFailureNotifier tells n, once, when the run fails. A nil n is ignored.
func WithFailureNotifier(n Notifier) RunOption {
	return func(o *RunOptions) {
		if n != nil {
			o.FailureNotifiers = append(o.FailureNotifiers, n)
		}
	}
}

func NewRunOptions(opts ...RunOption) RunOptions {
	var ro RunOptions
	for _, opt := range opts {
		opt(&ro)
	}
	return ro
}

// Snapshot is a point-in-time view of the orchestrator for health surfaces.
type Snapshot struct {
	State   model.RunState   `json:"state"`
	Active  bool             `json:"active"`
	Current *model.RunRecord `json:"current,omitempty"`
	Last    *model.RunRecord `json:"last,omitempty"`
}

type Orchestrator struct {
	cfg Config

	// runLock is held for the whole lifetime of a run and only ever taken
	// with TryLock, so a second trigger is rejected instead of queued.
	runLock sync.Mutex

	mu      sync.RWMutex // guards current and last
	current *model.RunRecord
	last    *model.RunRecord

	detached sync.WaitGroup
}

func New(cfg Config) *Orchestrator {
	if cfg.Status == nil {
		cfg.Status = status.Nop{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = id.New
	}
	return &Orchestrator{cfg: cfg}
}

// Run executes one run synchronously. It returns model.ErrAlreadyRunning
// immediately when another run holds the lock. For a failed run the outcome
// is returned together with its error.
func (o *Orchestrator) Run(ctx context.Context, window model.TimeWindow, trigger model.Trigger) (*model.RunOutcome, error) {
	if !o.runLock.TryLock() {
		return nil, o.reject(ctx, trigger)
	}
	defer o.runLock.Unlock()

	outcome := o.execute(ctx, o.begin(window, trigger), RunOptions{})
	return outcome, outcome.Err
}

// Start acquires the lock synchronously and runs in the background, detached
// from ctx's cancellation. The caller gets the run id as acknowledgement.
func (o *Orchestrator) Start(ctx context.Context, window model.TimeWindow, trigger model.Trigger, opts ...RunOption) (int64, error) {
	if !o.runLock.TryLock() {
		return 0, o.reject(ctx, trigger)
	}

	ro := NewRunOptions(opts...)
	run := o.begin(window, trigger)
	runCtx := context.WithoutCancel(ctx)

	o.detached.Add(1)
	go func() {
		defer o.detached.Done()
		defer o.runLock.Unlock()
		o.execute(runCtx, run, ro)
	}()

	return run.ID, nil
}

// Wait blocks until every run started with Start has finished or ctx is done.
func (o *Orchestrator) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		o.detached.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) Status() Snapshot {
	o.mu.RLock()
	defer o.mu.RUnlock()

	snap := Snapshot{State: model.RunStateIdle}
	if o.current != nil {
		cur := *o.current
		snap.Current = &cur
		snap.State = cur.State
		snap.Active = true
	}
	if o.last != nil {
		last := *o.last
		snap.Last = &last
	}
	return snap
}

func (o *Orchestrator) reject(ctx context.Context, trigger model.Trigger) error {
	metrics.RunRejected(string(trigger))
	slog.InfoContext(ctx, "run rejected, another run is in progress", "trigger", trigger)
	return model.ErrAlreadyRunning
}

func (o *Orchestrator) begin(window model.TimeWindow, trigger model.Trigger) *model.RunRecord {
	run := &model.RunRecord{
		ID:        o.cfg.NewID(),
		Trigger:   trigger,
		State:     model.RunStateIdle,
		Window:    window,
		StartedAt: o.cfg.Now().UTC(),
	}

	o.mu.Lock()
	o.current = run
	o.mu.Unlock()

	metrics.SetRunActive(true)
	return run
}

func (o *Orchestrator) execute(ctx context.Context, run *model.RunRecord, ro RunOptions) *model.RunOutcome {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		RunID:     logger.Ptr(run.ID),
		Trigger:   logger.Ptr(string(run.Trigger)),
		Component: "tars.pipeline.orchestrator",
	})

	sc := logger.StartSpan(ctx, "pipeline.run", trace.WithAttributes(
		attribute.Int64("run.id", run.ID),
		attribute.String("run.trigger", string(run.Trigger)),
		attribute.String("run.window", run.Window.String()),
	))
	defer sc.End()
	ctx = sc.Context()

	slog.InfoContext(ctx, "run started", "window", run.Window.String())
	started := time.Now()

	outcome := o.runStages(ctx, run)
	if outcome.Err != nil {
		sc.RecordError(outcome.Err)
	}

	o.finish(ctx, run, outcome, time.Since(started), ro)
	return outcome
}

// runStages converts a panic inside any stage into a failure of that stage.
func (o *Orchestrator) runStages(ctx context.Context, run *model.RunRecord) (outcome *model.RunOutcome) {
	defer func() {
		if r := recover(); r != nil {
			stage := o.stateOf(run)
			slog.ErrorContext(ctx, "panic recovered in pipeline stage",
				"panic", r,
				"stage", stage,
				"stack", string(debug.Stack()))
			outcome = &model.RunOutcome{Err: o.failure(run, stage, fmt.Errorf("panic: %v", r))}
		}
	}()

	var tickets []model.Ticket
	err := o.stage(ctx, run, model.RunStateFetching, o.cfg.FetchTimeout, func(ctx context.Context) error {
		var err error
		tickets, err = o.cfg.Source.Fetch(ctx, run.Window)
		return err
	})
	if err != nil {
		return &model.RunOutcome{Err: o.failure(run, model.RunStateFetching, err)}
	}
	o.update(func(r *model.RunRecord) { r.TicketCount = len(tickets) })

	var analysis *model.Analysis
	err = o.stage(ctx, run, model.RunStateAnalyzing, o.cfg.AnalyzeTimeout, func(ctx context.Context) error {
		var err error
		analysis, err = o.cfg.Analyzer.Analyze(ctx, tickets)
		if err == nil && analysis == nil {
			err = fmt.Errorf("%w: analyzer returned no result", model.ErrAnalysisParse)
		}
		return err
	})
	if err != nil {
		return &model.RunOutcome{Err: o.failure(run, model.RunStateAnalyzing, err)}
	}
	o.update(func(r *model.RunRecord) { r.ClusterCount = len(analysis.Clusters) })

	result := &model.AnalysisResult{
		Window:          run.Window,
		Clusters:        analysis.Clusters,
		TotalTickets:    len(tickets),
		AnalyzedTickets: analysis.AnalyzedTickets,
		GeneratedAt:     o.cfg.Now().UTC(),
		Warnings:        analysis.Warnings,
	}

	var payload model.MessagePayload
	err = o.stage(ctx, run, model.RunStateFormatting, 0, func(context.Context) error {
		var err error
		payload, err = o.cfg.Formatter.Format(result)
		return err
	})
	if err != nil {
		return &model.RunOutcome{Result: result, Err: o.failure(run, model.RunStateFormatting, err)}
	}

	var receipt *model.DeliveryReceipt
	err = o.stage(ctx, run, model.RunStateDelivering, o.cfg.DeliverTimeout, func(ctx context.Context) error {
		var err error
		receipt, err = o.cfg.Notifier.Deliver(ctx, payload)
		return err
	})
	if err != nil {
		return &model.RunOutcome{Result: result, Err: o.failure(run, model.RunStateDelivering, err)}
	}

	return &model.RunOutcome{Result: result, Receipt: receipt}
}

func (o *Orchestrator) stage(ctx context.Context, run *model.RunRecord, state model.RunState, budget time.Duration, fn func(ctx context.Context) error) error {
	o.transition(ctx, run, state)

	ctx = logger.WithLogFields(ctx, logger.LogFields{Stage: logger.Ptr(string(state))})
	sc := logger.StartSpan(ctx, "pipeline.stage."+string(state))
	defer sc.End()
	ctx = sc.Context()

	if budget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, budget)
		defer cancel()
	}

	started := time.Now()
	err := fn(ctx)
	if err != nil {
		sc.RecordError(err)
		metrics.ObserveStage(string(state), time.Since(started), metrics.OutcomeError)
		return err
	}
	metrics.ObserveStage(string(state), time.Since(started), metrics.OutcomeSuccess)
	return nil
}

func (o *Orchestrator) failure(run *model.RunRecord, stage model.RunState, err error) error {
	o.update(func(r *model.RunRecord) {
		r.FailedStage = stage
		r.Error = err.Error()
	})
	return fmt.Errorf("%s: %w", stage, err)
}

func (o *Orchestrator) finish(ctx context.Context, run *model.RunRecord, outcome *model.RunOutcome, elapsed time.Duration, ro RunOptions) {
	finished := o.cfg.Now().UTC()
	terminal := model.RunStateSucceeded
	if outcome.Err != nil {
		terminal = model.RunStateFailed
	}
	o.update(func(r *model.RunRecord) {
		r.FinishedAt = &finished
	})
	o.transition(ctx, run, terminal)

	record := o.snapshotOf(run)
	outcome.Run = record

	if outcome.Err != nil {
		metrics.ObserveRun(string(run.Trigger), elapsed, metrics.OutcomeError)
		slog.ErrorContext(ctx, "run failed",
			"failed_stage", record.FailedStage,
			"error", outcome.Err,
			"duration_ms", elapsed.Milliseconds())
		o.alert(ctx, record)
		o.notifyRequester(ctx, record, ro.FailureNotifiers)
	} else {
		attempts := 0
		if outcome.Receipt != nil {
			attempts = outcome.Receipt.Attempts
		}
		metrics.ObserveRun(string(run.Trigger), elapsed, metrics.OutcomeSuccess)
		slog.InfoContext(ctx, "run succeeded",
			"tickets", record.TicketCount,
			"clusters", record.ClusterCount,
			"delivery_attempts", attempts,
			"duration_ms", elapsed.Milliseconds())
	}

	o.mu.Lock()
	o.last = &record
	o.current = nil
	o.mu.Unlock()
	metrics.SetRunActive(false)
}

// alert makes one best-effort attempt to tell the operator channel.
func (o *Orchestrator) alert(ctx context.Context, run model.RunRecord) {
	if o.cfg.Alerter == nil {
		slog.WarnContext(ctx, "no operator channel configured, failure alert skipped")
		return
	}
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "panic recovered while alerting", "panic", r)
		}
	}()

	payload := o.cfg.Formatter.FormatFailure(run)
	if _, err := o.cfg.Alerter.Deliver(context.WithoutCancel(ctx), payload); err != nil {
		slog.ErrorContext(ctx, "operator alert failed", "error", err)
		return
	}
	slog.InfoContext(ctx, "operator alerted of failed run")
}

// notifyRequester sends the failure notice to whoever asked for the run.
// Each notifier gets exactly one attempt.
func (o *Orchestrator) notifyRequester(ctx context.Context, run model.RunRecord, notifiers []Notifier) {
	if len(notifiers) == 0 {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "panic recovered while notifying requester", "panic", r)
		}
	}()

	payload := o.cfg.Formatter.FormatFailure(run)
	for _, n := range notifiers {
		if _, err := n.Deliver(context.WithoutCancel(ctx), payload); err != nil {
			slog.WarnContext(ctx, "requester failure notice failed", "error", err)
			continue
		}
		slog.InfoContext(ctx, "requester told of failed run")
	}
}

func (o *Orchestrator) transition(ctx context.Context, run *model.RunRecord, state model.RunState) {
	o.update(func(r *model.RunRecord) { r.State = state })
	slog.InfoContext(ctx, "run state changed", "state", state)

	event := status.EventFromRun(o.snapshotOf(run), o.cfg.Now())
	if err := o.cfg.Status.Publish(context.WithoutCancel(ctx), event); err != nil && !errors.Is(err, context.Canceled) {
		slog.WarnContext(ctx, "failed to publish run status", "error", err)
	}
}

func (o *Orchestrator) update(fn func(r *model.RunRecord)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.current != nil {
		fn(o.current)
	}
}

func (o *Orchestrator) stateOf(run *model.RunRecord) model.RunState {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return run.State
}

func (o *Orchestrator) snapshotOf(run *model.RunRecord) model.RunRecord {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return *run
}
