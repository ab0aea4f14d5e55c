package dto

import (
	"github.com/ShaurayaMohan/TARS-Windscribe/internal/model"
	"github.com/ShaurayaMohan/TARS-Windscribe/internal/pipeline"
)

type TriggerRunRequest struct {
	// Hours defaults to 24 when omitted.
	Hours *int `json:"hours"`
}

type TriggerRunResponse struct {
	RunID  int64            `json:"run_id,string"`
	Status string           `json:"status"`
	Window model.TimeWindow `json:"window"`
}

type RunStatusResponse struct {
	State   model.RunState   `json:"state"`
	Active  bool             `json:"active"`
	Current *model.RunRecord `json:"current,omitempty"`
	Last    *model.RunRecord `json:"last,omitempty"`
}

func ToRunStatusResponse(snap pipeline.Snapshot) RunStatusResponse {
	return RunStatusResponse{
		State:   snap.State,
		Active:  snap.Active,
		Current: snap.Current,
		Last:    snap.Last,
	}
}

type HealthResponse struct {
	Status   string         `json:"status"`
	Service  string         `json:"service"`
	RunState model.RunState `json:"run_state"`
	Active   bool           `json:"active"`
}
