// Package analyzer clusters tickets by probable root cause with an LLM and
// validates the model's output before it reaches the report.
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/ShaurayaMohan/TARS-Windscribe/common/llm"
	"github.com/ShaurayaMohan/TARS-Windscribe/common/logger"
	"github.com/ShaurayaMohan/TARS-Windscribe/internal/metrics"
	"github.com/ShaurayaMohan/TARS-Windscribe/internal/model"
)

const schemaName = "ticket_clusters"

type Config struct {
	MaxTickets     int
	MaxInputChars  int
	MaxTokens      int
	AttemptTimeout time.Duration
	MaxAttempts    int
	MinBackoff     time.Duration
	MaxBackoff     time.Duration
}

// Analyzer holds no per-call state; one value serves every run.
type Analyzer struct {
	client  llm.Client
	catalog *Catalog
	cfg     Config
	schema  any
}

func New(client llm.Client, catalog *Catalog, cfg Config) *Analyzer {
	if cfg.MaxTickets <= 0 {
		cfg.MaxTickets = 400
	}
	if cfg.MaxInputChars <= 0 {
		cfg.MaxInputChars = 200_000
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 8192
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = 120 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.MinBackoff <= 0 {
		cfg.MinBackoff = time.Second
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 10 * time.Second
	}

	return &Analyzer{
		client:  client,
		catalog: catalog,
		cfg:     cfg,
		schema:  llm.GenerateSchema[clusterResponse](),
	}
}

// Analyze clusters tickets. An empty input returns an empty analysis without
// calling the model.
func (a *Analyzer) Analyze(ctx context.Context, tickets []model.Ticket) (*model.Analysis, error) {
	if len(tickets) == 0 {
		return &model.Analysis{Clusters: []model.Cluster{}}, nil
	}

	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "tars.analyzer"})

	selected, warnings := a.budget(tickets)
	known := model.TicketIDs(selected)

	req := llm.Request{
		SystemPrompt: systemPrompt,
		UserPrompt:   buildUserPrompt(selected, a.catalog),
		SchemaName:   schemaName,
		Schema:       a.schema,
		MaxTokens:    a.cfg.MaxTokens,
		Temperature:  llm.Temp(0.2),
	}

	slog.InfoContext(ctx, "analyzing tickets",
		"tickets", len(selected),
		"total", len(tickets),
		"model", a.client.Model())

	attempt := 0
	operation := func() ([]rawCluster, error) {
		attempt++
		raw, err := a.attempt(ctx, req)
		if err == nil {
			return raw, nil
		}
		if ctx.Err() != nil {
			return nil, backoff.Permanent(ctx.Err())
		}
		if errors.Is(err, model.ErrAnalysisParse) {
			return nil, backoff.Permanent(err)
		}
		if errors.Is(err, errUndecodable) || errors.Is(err, context.DeadlineExceeded) || llm.IsRetryable(ctx, err) {
			slog.WarnContext(ctx, "analysis attempt failed, will retry", "attempt", attempt, "error", err)
			return nil, err
		}
		return nil, backoff.Permanent(err)
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = a.cfg.MinBackoff
	expo.MaxInterval = a.cfg.MaxBackoff

	raw, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(expo),
		backoff.WithMaxTries(uint(a.cfg.MaxAttempts)),
	)
	if err != nil {
		if errors.Is(err, model.ErrAnalysisParse) {
			return nil, err
		}
		return nil, fmt.Errorf("%w after %d attempt(s): %w", model.ErrAnalysisUnavailable, attempt, err)
	}

	clusters, dropped := normalize(raw, known, a.catalog)
	if dropped > 0 {
		metrics.AnalyzerDroppedRefs(dropped)
		slog.WarnContext(ctx, "dropped invalid ticket references from model output", "dropped", dropped)
	}

	slog.InfoContext(ctx, "analysis complete",
		"clusters", len(clusters),
		"attempts", attempt,
		"warnings", len(warnings))

	return &model.Analysis{
		Clusters:        clusters,
		AnalyzedTickets: len(selected),
		Warnings:        warnings,
	}, nil
}

func (a *Analyzer) attempt(ctx context.Context, req llm.Request) ([]rawCluster, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, a.cfg.AttemptTimeout)
	defer cancel()

	resp, err := a.client.Complete(attemptCtx, req)
	if err != nil {
		return nil, err
	}
	if resp.FinishReason == llm.FinishLength {
		slog.WarnContext(ctx, "model output cut off by max tokens", "max_tokens", req.MaxTokens)
	}
	return decodeClusters(resp.Content)
}

// budget keeps the newest tickets that fit MaxTickets and MaxInputChars,
// dropping the oldest first.
func (a *Analyzer) budget(tickets []model.Ticket) ([]model.Ticket, []model.Warning) {
	ordered := make([]model.Ticket, len(tickets))
	copy(ordered, tickets)
	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].CreatedAt.Equal(ordered[j].CreatedAt) {
			return ordered[i].CreatedAt.After(ordered[j].CreatedAt)
		}
		return ordered[i].ID < ordered[j].ID
	})

	chars := 0
	n := 0
	for _, t := range ordered {
		size := len(renderTicket(t))
		if n >= a.cfg.MaxTickets || chars+size > a.cfg.MaxInputChars {
			break
		}
		chars += size
		n++
	}
	if n == 0 {
		n = 1
	}

	if n == len(ordered) {
		return ordered, nil
	}

	metrics.TruncatedInput()
	return ordered[:n], []model.Warning{{
		Code: model.WarningTruncatedInput,
		Message: fmt.Sprintf("Analyzed the newest %d of %d tickets; the oldest %d were left out to fit the analysis budget.",
			n, len(ordered), len(ordered)-n),
	}}
}
