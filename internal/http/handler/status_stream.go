package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ShaurayaMohan/TARS-Windscribe/internal/status"
)

const streamBlock = 25 * time.Second

type StatusStreamHandler struct {
	reader status.Reader
	block  time.Duration
}

// NewStatusStreamHandler accepts a nil reader; Stream then answers 503.
func NewStatusStreamHandler(reader status.Reader) *StatusStreamHandler {
	return &StatusStreamHandler{reader: reader, block: streamBlock}
}

func (h *StatusStreamHandler) Stream(c *gin.Context) {
	ctx := c.Request.Context()
	if h.reader == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "status stream not configured"})
		return
	}

	lastID := c.Query("last_id")
	if lastID == "" {
		lastID = "$"
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming not supported"})
		return
	}

	setSSEHeaders(c.Writer)
	c.Status(http.StatusOK)

	sseWrite(c.Writer, "ping", "ready")
	flusher.Flush()

	if lastID == "$" {
		lastID = h.tail(ctx)
	}

	for {
		if ctx.Err() != nil {
			return
		}

		msgs, err := h.reader.Read(ctx, lastID, h.block)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			sseWrite(c.Writer, "error", map[string]string{"error": err.Error()})
			flusher.Flush()
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		if len(msgs) == 0 {
			sseWrite(c.Writer, "ping", time.Now().UTC().Format(time.RFC3339Nano))
			flusher.Flush()
			continue
		}

		for _, msg := range msgs {
			lastID = msg.ID
			sseWrite(c.Writer, "status", msg)
		}
		flusher.Flush()
	}
}

// tail pins "$" to a concrete id, falling back to "$" when the lookup fails.
func (h *StatusStreamHandler) tail(ctx context.Context) string {
	id, err := h.reader.Latest(ctx)
	if err != nil {
		slog.WarnContext(ctx, "resolving status stream tail failed", "error", err)
		return "$"
	}
	return id
}

func setSSEHeaders(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
}

// sseWrite writes one event. Strings go out as-is, anything else as JSON.
func sseWrite(w io.Writer, event string, data any) {
	payload, ok := data.(string)
	if !ok {
		raw, err := json.Marshal(data)
		if err != nil {
			raw, _ = json.Marshal(map[string]string{"error": err.Error()})
			event = "error"
		}
		payload = string(raw)
	}

	fmt.Fprintf(w, "event: %s\n", event)
	for _, line := range strings.Split(payload, "\n") {
		fmt.Fprintf(w, "data: %s\n", line)
	}
	fmt.Fprint(w, "\n")
}
