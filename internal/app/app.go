// Package app wires configuration into a ready-to-run orchestrator.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/ShaurayaMohan/TARS-Windscribe/common/llm"
	"github.com/ShaurayaMohan/TARS-Windscribe/core/config"
	"github.com/ShaurayaMohan/TARS-Windscribe/internal/analyzer"
	"github.com/ShaurayaMohan/TARS-Windscribe/internal/metrics"
	"github.com/ShaurayaMohan/TARS-Windscribe/internal/notifier"
	"github.com/ShaurayaMohan/TARS-Windscribe/internal/pipeline"
	"github.com/ShaurayaMohan/TARS-Windscribe/internal/report"
	"github.com/ShaurayaMohan/TARS-Windscribe/internal/scheduler"
	"github.com/ShaurayaMohan/TARS-Windscribe/internal/status"
	"github.com/ShaurayaMohan/TARS-Windscribe/internal/ticketsource"
)

type Options struct {
	// DryRun prints the report to Out instead of posting it and disables alerts.
	DryRun bool
	Out    io.Writer

	// SkipRedis leaves status publishing off even when REDIS_URL is set.
	SkipRedis bool

	Registerer prometheus.Registerer
}

type App struct {
	cfg config.Config

	Orchestrator *pipeline.Orchestrator
	StatusReader status.Reader // nil without Redis

	stream *status.RedisStream // owns the redis client
}

func New(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	reg := opts.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if err := metrics.Register(reg); err != nil {
		return nil, fmt.Errorf("registering metrics: %w", err)
	}

	llmClient, err := llm.New(llm.Config{
		Provider: cfg.Analyzer.Provider,
		APIKey:   cfg.Analyzer.APIKey,
		BaseURL:  cfg.Analyzer.BaseURL,
		Model:    cfg.Analyzer.Model,
	})
	if err != nil {
		return nil, fmt.Errorf("creating llm client: %w", err)
	}

	catalog, err := analyzer.LoadCatalog(cfg.Analyzer.CategoriesFile)
	if err != nil {
		return nil, err
	}

	a := &App{cfg: cfg}

	var (
		deliver pipeline.Notifier
		alerter pipeline.Notifier
	)
	if opts.DryRun {
		out := opts.Out
		if out == nil {
			out = os.Stdout
		}
		deliver = notifier.NewWriter(out)
	} else {
		deliver = notifier.New(notifier.Config{
			Name:        "report",
			URL:         cfg.Slack.WebhookURL,
			Timeout:     cfg.Slack.Timeout,
			MaxAttempts: cfg.Retry.MaxAttempts,
			MinBackoff:  cfg.Retry.InitialBackoff,
			MaxBackoff:  cfg.Retry.MaxBackoff,
		})
		if cfg.Slack.OperatorWebhookURL != "" {
			// One shot: an alert about a failed run is never retried.
			alerter = notifier.New(notifier.Config{
				Name:        "operator",
				URL:         cfg.Slack.OperatorWebhookURL,
				Timeout:     cfg.Slack.Timeout,
				MaxAttempts: 1,
			})
		}
	}

	var publisher status.Publisher = status.Nop{}
	if cfg.Redis.Enabled() && !opts.SkipRedis {
		if err := a.connectRedis(ctx); err != nil {
			return nil, err
		}
		publisher = a.stream
		a.StatusReader = a.stream
	}

	a.Orchestrator = pipeline.New(pipeline.Config{
		Source: ticketsource.New(ticketsource.Config{
			APIURL:      cfg.SupportPal.APIURL,
			APIKey:      cfg.SupportPal.APIKey,
			PageSize:    cfg.SupportPal.PageSize,
			MaxPages:    cfg.SupportPal.MaxPages,
			Timeout:     cfg.SupportPal.Timeout,
			MaxWindow:   cfg.SupportPal.MaxWindow,
			MaxAttempts: cfg.Retry.MaxAttempts,
			MinBackoff:  cfg.Retry.InitialBackoff,
			MaxBackoff:  cfg.Retry.MaxBackoff,
		}),
		Analyzer: analyzer.New(llmClient, catalog, analyzer.Config{
			MaxTickets:     cfg.Analyzer.MaxTickets,
			MaxInputChars:  cfg.Analyzer.MaxInputChars,
			MaxTokens:      cfg.Analyzer.MaxTokens,
			AttemptTimeout: cfg.Analyzer.Timeout,
			MaxAttempts:    cfg.Retry.MaxAttempts,
			MinBackoff:     cfg.Retry.InitialBackoff,
			MaxBackoff:     cfg.Retry.MaxBackoff,
		}),
		Formatter: report.New(cfg.SupportPal.TicketBaseURL),
		Notifier:  deliver,
		Alerter:   alerter,
		Status:    publisher,
	})

	slog.InfoContext(ctx, "components wired",
		"llm_model", llmClient.Model(),
		"categories", catalog.Len(),
		"dry_run", opts.DryRun,
		"alerts", alerter != nil,
		"status_stream", a.StatusReader != nil)

	return a, nil
}

func (a *App) connectRedis(ctx context.Context) error {
	opts, err := redis.ParseURL(a.cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("parsing redis url: %w", err)
	}

	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return fmt.Errorf("connecting to redis: %w", err)
	}

	a.stream = status.NewRedisStream(client, a.cfg.Redis.StatusStream, a.cfg.Redis.StreamMaxLen,
		slog.Default().With("component", "tars.status"))
	slog.InfoContext(ctx, "redis connected", "stream", a.cfg.Redis.StatusStream)
	return nil
}

// NewScheduler builds the recurring trigger over the app's orchestrator.
func (a *App) NewScheduler() (*scheduler.Scheduler, error) {
	return scheduler.New(a.Orchestrator, scheduler.Config{
		Spec:     a.cfg.Schedule.Cron,
		Timezone: a.cfg.Schedule.Timezone,
		Window:   time.Duration(a.cfg.Schedule.WindowHours) * time.Hour,
	})
}

func (a *App) Close() error {
	if a.stream == nil {
		return nil
	}
	return a.stream.Close()
}
