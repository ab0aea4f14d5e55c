package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/slack-go/slack"

	"github.com/ShaurayaMohan/TARS-Windscribe/internal/model"
	"github.com/ShaurayaMohan/TARS-Windscribe/internal/notifier"
	"github.com/ShaurayaMohan/TARS-Windscribe/internal/pipeline"
)

const responseTimeout = 10 * time.Second

// Runs is the slice of the orchestrator a slash command drives.
type Runs interface {
	Start(ctx context.Context, window model.TimeWindow, trigger model.Trigger, opts ...pipeline.RunOption) (int64, error)
	Status() pipeline.Snapshot
}

// Dispatcher answers a parsed /tars invocation, whichever transport it came in on.
type Dispatcher struct {
	runs      Runs
	maxWindow time.Duration
	now       func() time.Time

	// Responder builds the one-shot notifier that reports a failed run back
	// to the slash command's response_url.
	Responder func(responseURL string) pipeline.Notifier
}

func NewDispatcher(runs Runs, maxWindow time.Duration) *Dispatcher {
	if maxWindow <= 0 {
		maxWindow = model.DefaultMaxWindow
	}
	return &Dispatcher{
		runs:      runs,
		maxWindow: maxWindow,
		now:       time.Now,
		Responder: ResponseURLNotifier,
	}
}

// ResponseURLNotifier posts to a slash command response_url exactly once.
func ResponseURLNotifier(responseURL string) pipeline.Notifier {
	return notifier.New(notifier.Config{
		Name:        "slack-response",
		URL:         responseURL,
		Timeout:     responseTimeout,
		MaxAttempts: 1,
	})
}

// Dispatch always returns a reply; errors are rendered into it.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd slack.SlashCommand) *slack.Msg {
	slog.InfoContext(ctx, "slack command received",
		"command", cmd.Command,
		"text", cmd.Text,
		"user", cmd.UserName,
		"channel", cmd.ChannelName)

	parsed, err := Parse(cmd.Text, d.maxWindow)
	if err != nil {
		return rejection(cmd, err)
	}

	switch parsed.Kind {
	case KindHelp:
		return Help()
	case KindStatus:
		snap := d.runs.Status()
		return Status(snap.Active, snap.Current, snap.Last)
	default:
		return d.analyze(ctx, cmd, parsed.Window)
	}
}

func (d *Dispatcher) analyze(ctx context.Context, cmd slack.SlashCommand, span time.Duration) *slack.Msg {
	now := d.now()
	window := model.TrailingWindow(now, span)
	if err := window.Validate(now, d.maxWindow, model.DefaultClockSkew); err != nil {
		return Ephemeral(fmt.Sprintf(":warning: %s", err))
	}

	var opts []pipeline.RunOption
	if cmd.ResponseURL != "" && d.Responder != nil {
		opts = append(opts, pipeline.WithFailureNotifier(d.Responder(cmd.ResponseURL)))
	}

	runID, err := d.runs.Start(ctx, window, model.TriggerSlack, opts...)
	switch {
	case errors.Is(err, model.ErrAlreadyRunning):
		return AlreadyRunning()
	case err != nil:
		slog.ErrorContext(ctx, "failed to start run from slack", "error", err)
		return Ephemeral(":x: Could not start the analysis. Check the service logs.")
	default:
		slog.InfoContext(ctx, "run triggered from slack", "run_id", runID, "user", cmd.UserName, "window", window.String())
		return Started(cmd.UserName, span, runID)
	}
}

func rejection(cmd slack.SlashCommand, err error) *slack.Msg {
	name := cmd.Command
	if name == "" {
		name = "/tars"
	}
	if errors.Is(err, ErrUnknownCommand) {
		return Ephemeral(fmt.Sprintf("Unknown command `%s %s`. Try `%s help`.", name, cmd.Text, name))
	}
	return Ephemeral(fmt.Sprintf(":warning: %s. Try `%s analyze 24` or `%s analyze 7d`.", err, name, name))
}
