// Package slackapp serves /tars over Slack Socket Mode, so workspaces can use
// the slash command without exposing the HTTP endpoint publicly.
package slackapp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/socketmode"
	"golang.org/x/sync/errgroup"

	"github.com/ShaurayaMohan/TARS-Windscribe/common/logger"
	"github.com/ShaurayaMohan/TARS-Windscribe/internal/command"
)

type Config struct {
	AppToken string // xapp-
	BotToken string
}

// Acker acknowledges a Socket Mode envelope, optionally with a reply payload.
type Acker interface {
	Ack(req socketmode.Request, payload ...interface{})
}

type Listener struct {
	commands *command.Dispatcher
	events   <-chan socketmode.Event
	acker    Acker
	connect  func(ctx context.Context) error
}

func New(cfg Config, commands *command.Dispatcher) *Listener {
	api := slack.New(cfg.BotToken, slack.OptionAppLevelToken(cfg.AppToken))
	client := socketmode.New(api,
		socketmode.OptionLog(slog.NewLogLogger(slog.Default().Handler(), slog.LevelDebug)))

	return &Listener{
		commands: commands,
		events:   client.Events,
		acker:    client,
		connect:  client.RunContext,
	}
}

// Run holds the Socket Mode connection open until ctx is done.
func (l *Listener) Run(ctx context.Context) error {
	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "tars.slackapp"})

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return l.connect(ctx) })
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case evt, ok := <-l.events:
				if !ok {
					return nil
				}
				l.handle(ctx, evt)
			}
		}
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (l *Listener) handle(ctx context.Context, evt socketmode.Event) {
	switch evt.Type {
	case socketmode.EventTypeConnecting:
		slog.InfoContext(ctx, "connecting to slack socket mode")
	case socketmode.EventTypeConnected:
		slog.InfoContext(ctx, "connected to slack socket mode")
	case socketmode.EventTypeConnectionError:
		slog.WarnContext(ctx, "slack socket mode connection failed, retrying", "error", evt.Data)
	case socketmode.EventTypeInvalidAuth:
		slog.ErrorContext(ctx, "slack rejected the app-level token")
	case socketmode.EventTypeSlashCommand:
		l.slashCommand(ctx, evt)
	case socketmode.EventTypeEventsAPI, socketmode.EventTypeInteractive:
		// Unacked envelopes are redelivered.
		if evt.Request != nil {
			l.acker.Ack(*evt.Request)
		}
	default:
		slog.DebugContext(ctx, "ignoring socket mode event", "type", evt.Type)
	}
}

func (l *Listener) slashCommand(ctx context.Context, evt socketmode.Event) {
	cmd, ok := evt.Data.(slack.SlashCommand)
	if !ok || evt.Request == nil {
		slog.WarnContext(ctx, "malformed slash command envelope", "data_type", fmt.Sprintf("%T", evt.Data))
		if evt.Request != nil {
			l.acker.Ack(*evt.Request)
		}
		return
	}
	l.acker.Ack(*evt.Request, l.commands.Dispatch(ctx, cmd))
}
