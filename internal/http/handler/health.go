package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ShaurayaMohan/TARS-Windscribe/internal/http/dto"
	"github.com/ShaurayaMohan/TARS-Windscribe/internal/pipeline"
)

type StatusSource interface {
	Status() pipeline.Snapshot
}

type HealthHandler struct {
	runs    StatusSource
	service string
}

func NewHealthHandler(runs StatusSource, service string) *HealthHandler {
	return &HealthHandler{runs: runs, service: service}
}

func (h *HealthHandler) Health(c *gin.Context) {
	snap := h.runs.Status()
	c.JSON(http.StatusOK, dto.HealthResponse{
		Status:   "ok",
		Service:  h.service,
		RunState: snap.State,
		Active:   snap.Active,
	})
}

func (h *HealthHandler) Info(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": h.service,
		"endpoints": []string{
			"GET /health",
			"GET /metrics",
			"POST /api/v1/runs",
			"GET /api/v1/runs/status",
			"GET /api/v1/runs/stream",
			"POST /slack/command",
		},
	})
}
