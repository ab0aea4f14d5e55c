// Package httpclient builds retrying HTTP clients for upstream APIs.
package httpclient

import (
	"context"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

type Config struct {
	Timeout     time.Duration // per attempt
	MaxAttempts int           // total attempts including the first
	MinBackoff  time.Duration
	MaxBackoff  time.Duration
	Logger      *slog.Logger
}

// New returns a client that retries transport errors, 429 and 5xx with
// exponential backoff. When attempts are exhausted the last response or error
// is handed back unchanged so callers can classify it.
func New(cfg Config) *retryablehttp.Client {
	client := retryablehttp.NewClient()
	client.HTTPClient.Timeout = cfg.Timeout
	client.RetryMax = max(cfg.MaxAttempts-1, 0)
	if cfg.MinBackoff > 0 {
		client.RetryWaitMin = cfg.MinBackoff
	}
	if cfg.MaxBackoff > 0 {
		client.RetryWaitMax = cfg.MaxBackoff
	}
	client.CheckRetry = retryablehttp.DefaultRetryPolicy
	client.Backoff = retryablehttp.DefaultBackoff
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	client.Logger = logger
	client.RequestLogHook = countAttempt

	return client
}

type attemptsKey struct{}

// Attempts counts the attempts made for requests sent with its context.
type Attempts struct {
	n atomic.Int32
}

func (a *Attempts) Count() int {
	if a == nil {
		return 0
	}
	return int(a.n.Load())
}

// WithAttempts attaches a fresh attempt counter to ctx.
func WithAttempts(ctx context.Context) (context.Context, *Attempts) {
	a := &Attempts{}
	return context.WithValue(ctx, attemptsKey{}, a), a
}

func countAttempt(_ retryablehttp.Logger, req *http.Request, attempt int) {
	if a, ok := req.Context().Value(attemptsKey{}).(*Attempts); ok {
		a.n.Store(int32(attempt + 1))
	}
}
