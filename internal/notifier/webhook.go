// Package notifier posts formatted messages to Slack incoming webhooks.
package notifier

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/ShaurayaMohan/TARS-Windscribe/common/httpclient"
	"github.com/ShaurayaMohan/TARS-Windscribe/common/logger"
	"github.com/ShaurayaMohan/TARS-Windscribe/internal/metrics"
	"github.com/ShaurayaMohan/TARS-Windscribe/internal/model"
)

type Config struct {
	Name        string // for logs, e.g. "report" or "operator"
	URL         string
	Timeout     time.Duration // per attempt
	MaxAttempts int
	MinBackoff  time.Duration
	MaxBackoff  time.Duration
}

type Webhook struct {
	name   string
	url    string
	client *retryablehttp.Client
	now    func() time.Time
}

func New(cfg Config) *Webhook {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.Name == "" {
		cfg.Name = "webhook"
	}

	return &Webhook{
		name: cfg.Name,
		url:  cfg.URL,
		client: httpclient.New(httpclient.Config{
			Timeout:     cfg.Timeout,
			MaxAttempts: cfg.MaxAttempts,
			MinBackoff:  cfg.MinBackoff,
			MaxBackoff:  cfg.MaxBackoff,
			Logger:      slog.Default().With("component", "tars.notifier", "webhook", cfg.Name),
		}),
		now: time.Now,
	}
}

// Deliver posts payload.Body. Timeouts, transport errors, 429 and 5xx are
// retried; other statuses are terminal. Failures are *model.DeliveryError.
func (w *Webhook) Deliver(ctx context.Context, payload model.MessagePayload) (*model.DeliveryReceipt, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "tars.notifier"})
	ctx, attempts := httpclient.WithAttempts(ctx)

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, w.url, payload.Body)
	if err != nil {
		return nil, &model.DeliveryError{Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		derr := &model.DeliveryError{
			Retryable: ctx.Err() == nil || errors.Is(err, context.DeadlineExceeded),
			Attempts:  attempts.Count(),
			Err:       err,
		}
		w.record(ctx, derr.Attempts, derr)
		return nil, derr
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		derr := &model.DeliveryError{
			Retryable:  resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500,
			StatusCode: resp.StatusCode,
			Attempts:   attempts.Count(),
			Err:        fmt.Errorf("webhook responded %d: %s", resp.StatusCode, bytes.TrimSpace(body)),
		}
		w.record(ctx, derr.Attempts, derr)
		return nil, derr
	}

	receipt := &model.DeliveryReceipt{
		DeliveredAt: w.now().UTC(),
		Attempts:    attempts.Count(),
		StatusCode:  resp.StatusCode,
	}
	w.record(ctx, receipt.Attempts, nil)
	return receipt, nil
}

func (w *Webhook) record(ctx context.Context, attempts int, err error) {
	if err != nil {
		// Every attempt before the last one failed too.
		metrics.DeliveryAttempts(attempts, metrics.OutcomeError)
		slog.ErrorContext(ctx, "webhook delivery failed", "webhook", w.name, "attempts", attempts, "error", err)
		return
	}
	metrics.DeliveryAttempts(attempts-1, metrics.OutcomeError)
	metrics.DeliveryAttempts(1, metrics.OutcomeSuccess)
	slog.InfoContext(ctx, "webhook delivered", "webhook", w.name, "attempts", attempts)
}
