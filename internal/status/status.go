// Package status publishes run state transitions to a Redis stream so that
// dashboards and the SSE endpoint can follow runs live.
package status

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ShaurayaMohan/TARS-Windscribe/internal/model"
)

// Event is one state transition of a run.
type Event struct {
	RunID        int64          `json:"run_id,string"`
	Trigger      model.Trigger  `json:"trigger"`
	State        model.RunState `json:"state"`
	Error        string         `json:"error,omitempty"`
	TicketCount  int            `json:"ticket_count"`
	ClusterCount int            `json:"cluster_count"`
	At           time.Time      `json:"at"`
}

func EventFromRun(run model.RunRecord, at time.Time) Event {
	return Event{
		RunID:        run.ID,
		Trigger:      run.Trigger,
		State:        run.State,
		Error:        run.Error,
		TicketCount:  run.TicketCount,
		ClusterCount: run.ClusterCount,
		At:           at.UTC(),
	}
}

// Values flattens the event into stream fields.
func (e Event) Values() map[string]any {
	values := map[string]any{
		"run_id":        e.RunID,
		"trigger":       string(e.Trigger),
		"state":         string(e.State),
		"ticket_count":  e.TicketCount,
		"cluster_count": e.ClusterCount,
		"at":            e.At.UTC().Format(time.RFC3339Nano),
	}
	if e.Error != "" {
		values["error"] = e.Error
	}
	return values
}

// EventFromValues is the inverse of Values. Unknown or malformed fields are
// left at their zero value.
func EventFromValues(values map[string]any) Event {
	str := func(key string) string {
		if v, ok := values[key]; ok {
			return fmt.Sprint(v)
		}
		return ""
	}
	num := func(key string) int64 {
		n, _ := strconv.ParseInt(str(key), 10, 64)
		return n
	}

	at, _ := time.Parse(time.RFC3339Nano, str("at"))
	return Event{
		RunID:        num("run_id"),
		Trigger:      model.Trigger(str("trigger")),
		State:        model.RunState(str("state")),
		Error:        str("error"),
		TicketCount:  int(num("ticket_count")),
		ClusterCount: int(num("cluster_count")),
		At:           at,
	}
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

type Message struct {
	ID    string `json:"id"`
	Event Event  `json:"event"`
}

// Reader blocks up to block for events after lastID ("$" for new events only).
// It returns no messages and no error when the block elapses.
//
// Latest returns the id of the newest event, or "0-0" when the stream is
// empty. Readers start from it rather than "$" so a retried Read does not skip
// events published while the previous one failed.
type Reader interface {
	Read(ctx context.Context, lastID string, block time.Duration) ([]Message, error)
	Latest(ctx context.Context) (string, error)
}

type RedisStream struct {
	client *redis.Client
	stream string
	maxLen int64
	logger *slog.Logger
}

func NewRedisStream(client *redis.Client, stream string, maxLen int64, logger *slog.Logger) *RedisStream {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisStream{
		client: client,
		stream: stream,
		maxLen: maxLen,
		logger: logger,
	}
}

func (s *RedisStream) Publish(ctx context.Context, event Event) error {
	if err := s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		MaxLen: s.maxLen,
		Approx: true,
		Values: event.Values(),
	}).Err(); err != nil {
		return fmt.Errorf("publish run status: %w", err)
	}

	s.logger.DebugContext(ctx, "published run status", "run_id", event.RunID, "state", event.State)
	return nil
}

func (s *RedisStream) Read(ctx context.Context, lastID string, block time.Duration) ([]Message, error) {
	if lastID == "" {
		lastID = "$"
	}

	res, err := s.client.XRead(ctx, &redis.XReadArgs{
		Streams: []string{s.stream, lastID},
		Block:   block,
		Count:   100,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("read run status: %w", err)
	}

	var messages []Message
	for _, streamRes := range res {
		for _, msg := range streamRes.Messages {
			messages = append(messages, Message{ID: msg.ID, Event: EventFromValues(msg.Values)})
		}
	}
	return messages, nil
}

func (s *RedisStream) Latest(ctx context.Context) (string, error) {
	msgs, err := s.client.XRevRangeN(ctx, s.stream, "+", "-", 1).Result()
	if err != nil {
		return "", fmt.Errorf("read latest run status: %w", err)
	}
	if len(msgs) == 0 {
		return "0-0", nil
	}
	return msgs[0].ID, nil
}

func (s *RedisStream) Close() error {
	return s.client.Close()
}

// Nop discards events. Used when Redis is not configured.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
