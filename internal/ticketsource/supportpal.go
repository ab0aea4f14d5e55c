// Package ticketsource fetches helpdesk tickets from the SupportPal REST API.
package ticketsource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/sync/errgroup"

	"github.com/ShaurayaMohan/TARS-Windscribe/common/httpclient"
	"github.com/ShaurayaMohan/TARS-Windscribe/common/logger"
	"github.com/ShaurayaMohan/TARS-Windscribe/internal/model"
)

const (
	maxBodyBytes      = 4 << 10
	maxResponseBytes  = 16 << 20
	enrichConcurrency = 8
	messageTypeTicket = 0
	envelopeOK        = "success"
)

type Config struct {
	APIURL      string
	APIKey      string
	PageSize    int
	MaxPages    int
	Timeout     time.Duration // per attempt
	MaxWindow   time.Duration
	ClockSkew   time.Duration
	MaxAttempts int
	MinBackoff  time.Duration
	MaxBackoff  time.Duration
}

// SupportPal is a read-only client for tickets and their first message.
type SupportPal struct {
	cfg    Config
	client *retryablehttp.Client
	now    func() time.Time
}

func New(cfg Config) *SupportPal {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 50
	}
	if cfg.MaxWindow <= 0 {
		cfg.MaxWindow = model.DefaultMaxWindow
	}
	if cfg.ClockSkew <= 0 {
		cfg.ClockSkew = model.DefaultClockSkew
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")

	return &SupportPal{
		cfg: cfg,
		client: httpclient.New(httpclient.Config{
			Timeout:     cfg.Timeout,
			MaxAttempts: cfg.MaxAttempts,
			MinBackoff:  cfg.MinBackoff,
			MaxBackoff:  cfg.MaxBackoff,
			Logger:      slog.Default().With("component", "tars.ticketsource"),
		}),
		now: time.Now,
	}
}

type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Count   int             `json:"count"`
	Data    json.RawMessage `json:"data"`
}

type ticketDTO struct {
	ID           int64           `json:"id"`
	Number       json.RawMessage `json:"number"`
	Subject      string          `json:"subject"`
	CreatedAt    int64           `json:"created_at"`
	StatusName   string          `json:"status_name"`
	PriorityName string          `json:"priority_name"`
}

type messageDTO struct {
	ID   int64  `json:"id"`
	Text string `json:"text"`
}

// Fetch returns the tickets created inside window, newest first. The window is
// validated before any request is sent. An empty result is not an error.
func (s *SupportPal) Fetch(ctx context.Context, window model.TimeWindow) ([]model.Ticket, error) {
	if err := window.Validate(s.now(), s.cfg.MaxWindow, s.cfg.ClockSkew); err != nil {
		return nil, err
	}

	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "tars.ticketsource"})

	tickets, err := s.listTickets(ctx, window)
	if err != nil {
		return nil, err
	}
	if len(tickets) == 0 {
		slog.InfoContext(ctx, "no tickets in window", "window", window.String())
		return tickets, nil
	}

	if err := s.enrich(ctx, tickets); err != nil {
		return nil, err
	}

	sort.SliceStable(tickets, func(i, j int) bool {
		if !tickets[i].CreatedAt.Equal(tickets[j].CreatedAt) {
			return tickets[i].CreatedAt.After(tickets[j].CreatedAt)
		}
		return tickets[i].ID > tickets[j].ID
	})

	slog.InfoContext(ctx, "tickets fetched", "count", len(tickets), "window", window.String())
	return tickets, nil
}

func (s *SupportPal) listTickets(ctx context.Context, window model.TimeWindow) ([]model.Ticket, error) {
	seen := make(map[int64]struct{})
	var tickets []model.Ticket

	start := 1
	for page := 0; page < s.cfg.MaxPages; page++ {
		query := url.Values{}
		query.Set("created_at_min", strconv.FormatInt(window.Start.Unix(), 10))
		query.Set("created_at_max", strconv.FormatInt(window.End.Unix(), 10))
		query.Set("start", strconv.Itoa(start))
		query.Set("limit", strconv.Itoa(s.cfg.PageSize))
		query.Set("order_column", "created_at")
		query.Set("order_direction", "desc")

		var batch []ticketDTO
		if err := s.getJSON(ctx, "/ticket/ticket", query, &batch); err != nil {
			return nil, fmt.Errorf("list tickets (page %d): %w", page+1, err)
		}

		for _, dto := range batch {
			created := time.Unix(dto.CreatedAt, 0).UTC()
			if !window.Contains(created) {
				continue
			}
			if _, dup := seen[dto.ID]; dup {
				continue
			}
			seen[dto.ID] = struct{}{}
			tickets = append(tickets, dto.toTicket(created))
		}

		slog.DebugContext(ctx, "ticket page fetched", "page", page+1, "size", len(batch), "total", len(tickets))

		if len(batch) < s.cfg.PageSize {
			return tickets, nil
		}
		start += s.cfg.PageSize
	}

	slog.WarnContext(ctx, "ticket listing stopped at page limit", "max_pages", s.cfg.MaxPages, "total", len(tickets))
	return tickets, nil
}

// enrich fills each ticket's Body with its first customer message. A ticket
// whose message cannot be read keeps an empty body; credential rejection and
// cancellation fail the whole fetch.
func (s *SupportPal) enrich(ctx context.Context, tickets []model.Ticket) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(enrichConcurrency)

	for i := range tickets {
		g.Go(func() error {
			body, err := s.firstMessage(gctx, tickets[i].ID)
			if err != nil {
				if errors.Is(err, model.ErrSourceAuth) || gctx.Err() != nil {
					return err
				}
				slog.WarnContext(gctx, "first message unavailable, continuing without body",
					"ticket_id", tickets[i].ID, "error", err)
				return nil
			}
			tickets[i].Body = body
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("fetch ticket messages: %w", err)
	}
	return nil
}

func (s *SupportPal) firstMessage(ctx context.Context, ticketID int64) (string, error) {
	query := url.Values{}
	query.Set("ticket_id", strconv.FormatInt(ticketID, 10))
	query.Set("type", strconv.Itoa(messageTypeTicket))
	query.Set("include_draft", "0")
	query.Set("order_column", "created_at")
	query.Set("order_direction", "asc")
	query.Set("limit", "1")

	var messages []messageDTO
	if err := s.getJSON(ctx, "/ticket/message", query, &messages); err != nil {
		return "", err
	}
	if len(messages) == 0 {
		return "", nil
	}
	return capBytes(strings.TrimSpace(messages[0].Text), maxBodyBytes), nil
}

func (s *SupportPal) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	endpoint := s.cfg.APIURL + path + "?" + query.Encode()

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("%w: build request: %w", model.ErrSourceUnavailable, err)
	}
	req.SetBasicAuth(s.cfg.APIKey, "X")
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", model.ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("%w: read response: %w", model.ErrSourceUnavailable, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: status %d", model.ErrSourceAuth, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return fmt.Errorf("%w: status %d: %s", model.ErrSourceUnavailable, resp.StatusCode, logger.Truncate(string(raw), 200))
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("%w: decode envelope: %w", model.ErrSourceUnavailable, err)
	}
	if env.Status != envelopeOK {
		return fmt.Errorf("%w: api status %q: %s", model.ErrSourceUnavailable, env.Status, env.Message)
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("%w: decode data: %w", model.ErrSourceUnavailable, err)
	}
	return nil
}

func (d ticketDTO) toTicket(created time.Time) model.Ticket {
	number := strings.Trim(string(d.Number), `"`)
	if number == "" || number == "null" {
		number = strconv.FormatInt(d.ID, 10)
	}
	subject := strings.TrimSpace(d.Subject)
	if subject == "" {
		subject = "No Subject"
	}
	return model.Ticket{
		ID:        d.ID,
		Number:    number,
		Subject:   subject,
		CreatedAt: created,
		Status:    d.StatusName,
		Priority:  d.PriorityName,
	}
}

// capBytes cuts s to at most n bytes without splitting a rune.
func capBytes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
