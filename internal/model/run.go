package model

import "time"

type RunState string

const (
	RunStateIdle       RunState = "idle"
	RunStateFetching   RunState = "fetching"
	RunStateAnalyzing  RunState = "analyzing"
	RunStateFormatting RunState = "formatting"
	RunStateDelivering RunState = "delivering"
	RunStateSucceeded  RunState = "succeeded"
	RunStateFailed     RunState = "failed"
)

func (s RunState) Terminal() bool {
	return s == RunStateSucceeded || s == RunStateFailed
}

type Trigger string

const (
	TriggerManual   Trigger = "manual"
	TriggerSchedule Trigger = "schedule"
	TriggerSlack    Trigger = "slack"
	TriggerCLI      Trigger = "cli"
)

// RunRecord is the in-memory record of one run. Only the orchestrator mutates it.
type RunRecord struct {
	ID           int64      `json:"id"`
	Trigger      Trigger    `json:"trigger"`
	State        RunState   `json:"state"`
	FailedStage  RunState   `json:"failed_stage,omitempty"`
	Window       TimeWindow `json:"window"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	Error        string     `json:"error,omitempty"`
	TicketCount  int        `json:"ticket_count"`
	ClusterCount int        `json:"cluster_count"`
}

func (r RunRecord) Duration() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

type DeliveryReceipt struct {
	DeliveredAt time.Time `json:"delivered_at"`
	Attempts    int       `json:"attempts"`
	StatusCode  int       `json:"status_code"`
}

// RunOutcome is either Succeeded(Result, Receipt) or Failed(Run.FailedStage, Err).
type RunOutcome struct {
	Run     RunRecord
	Result  *AnalysisResult
	Receipt *DeliveryReceipt
	Err     error
}

func (o *RunOutcome) Succeeded() bool {
	return o != nil && o.Err == nil && o.Run.State == RunStateSucceeded
}
