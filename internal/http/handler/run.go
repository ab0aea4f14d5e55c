package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ShaurayaMohan/TARS-Windscribe/internal/http/dto"
	"github.com/ShaurayaMohan/TARS-Windscribe/internal/model"
	"github.com/ShaurayaMohan/TARS-Windscribe/internal/pipeline"
)

// RunService is the slice of the orchestrator the HTTP surface needs.
type RunService interface {
	Start(ctx context.Context, window model.TimeWindow, trigger model.Trigger, opts ...pipeline.RunOption) (int64, error)
	Status() pipeline.Snapshot
}

type RunHandler struct {
	runs      RunService
	maxWindow time.Duration
	now       func() time.Time
}

func NewRunHandler(runs RunService, maxWindow time.Duration) *RunHandler {
	if maxWindow <= 0 {
		maxWindow = model.DefaultMaxWindow
	}
	return &RunHandler{runs: runs, maxWindow: maxWindow, now: time.Now}
}

func (h *RunHandler) Trigger(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.TriggerRunRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			slog.WarnContext(ctx, "invalid request body", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	hours := int(model.DefaultWindow / time.Hour)
	if req.Hours != nil {
		hours = *req.Hours
	}

	now := h.now()
	window, err := model.HoursWindow(now, hours, h.maxWindow)
	if err == nil {
		err = window.Validate(now, h.maxWindow, model.DefaultClockSkew)
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	runID, err := h.runs.Start(ctx, window, model.TriggerManual)
	if err != nil {
		if errors.Is(err, model.ErrAlreadyRunning) {
			c.JSON(http.StatusConflict, gin.H{"error": "a run is already in progress"})
			return
		}
		slog.ErrorContext(ctx, "failed to start run", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start run"})
		return
	}

	slog.InfoContext(ctx, "run triggered over http", "run_id", runID, "hours", hours)
	c.JSON(http.StatusAccepted, dto.TriggerRunResponse{
		RunID:  runID,
		Status: "started",
		Window: window,
	})
}

func (h *RunHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, dto.ToRunStatusResponse(h.runs.Status()))
}
