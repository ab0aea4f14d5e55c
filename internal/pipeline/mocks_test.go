package pipeline_test

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/ShaurayaMohan/TARS-Windscribe/internal/model"
	"github.com/ShaurayaMohan/TARS-Windscribe/internal/status"
)

type mockSource struct {
	calls   atomic.Int32
	fetchFn func(ctx context.Context, window model.TimeWindow) ([]model.Ticket, error)
}

func (m *mockSource) Fetch(ctx context.Context, window model.TimeWindow) ([]model.Ticket, error) {
	m.calls.Add(1)
	if m.fetchFn != nil {
		return m.fetchFn(ctx, window)
	}
	return nil, nil
}

type mockAnalyzer struct {
	calls     atomic.Int32
	analyzeFn func(ctx context.Context, tickets []model.Ticket) (*model.Analysis, error)
}

func (m *mockAnalyzer) Analyze(ctx context.Context, tickets []model.Ticket) (*model.Analysis, error) {
	m.calls.Add(1)
	if m.analyzeFn != nil {
		return m.analyzeFn(ctx, tickets)
	}
	return &model.Analysis{}, nil
}

// countingFormatter wraps a real formatter and counts Format calls.
type countingFormatter struct {
	calls    atomic.Int32
	failures atomic.Int32
	inner    interface {
		Format(result *model.AnalysisResult) (model.MessagePayload, error)
		FormatFailure(run model.RunRecord) model.MessagePayload
	}
}

func (f *countingFormatter) Format(result *model.AnalysisResult) (model.MessagePayload, error) {
	f.calls.Add(1)
	return f.inner.Format(result)
}

func (f *countingFormatter) FormatFailure(run model.RunRecord) model.MessagePayload {
	f.failures.Add(1)
	return f.inner.FormatFailure(run)
}

type mockNotifier struct {
	mu        sync.Mutex
	payloads  []model.MessagePayload
	deliverFn func(ctx context.Context, payload model.MessagePayload) (*model.DeliveryReceipt, error)
}

func (m *mockNotifier) Deliver(ctx context.Context, payload model.MessagePayload) (*model.DeliveryReceipt, error) {
	m.mu.Lock()
	m.payloads = append(m.payloads, payload)
	m.mu.Unlock()
	if m.deliverFn != nil {
		return m.deliverFn(ctx, payload)
	}
	return &model.DeliveryReceipt{Attempts: 1, StatusCode: 200}, nil
}

func (m *mockNotifier) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.payloads)
}

func (m *mockNotifier) Last() model.MessagePayload {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.payloads[len(m.payloads)-1]
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []status.Event
}

func (p *recordingPublisher) Publish(_ context.Context, event status.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) States() []model.RunState {
	p.mu.Lock()
	defer p.mu.Unlock()
	states := make([]model.RunState, 0, len(p.events))
	for _, e := range p.events {
		states = append(states, e.State)
	}
	return states
}
