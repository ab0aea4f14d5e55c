package handler

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/slack-go/slack"

	"github.com/ShaurayaMohan/TARS-Windscribe/internal/command"
)

const maxSlackBody = 64 << 10

// SlackCommandHandler serves the /tars slash command. Slack shows whatever
// JSON message we answer with, so every handled command replies 200.
type SlackCommandHandler struct {
	dispatcher    *command.Dispatcher
	signingSecret string
}

func NewSlackCommandHandler(dispatcher *command.Dispatcher, signingSecret string) *SlackCommandHandler {
	return &SlackCommandHandler{dispatcher: dispatcher, signingSecret: signingSecret}
}

func (h *SlackCommandHandler) Handle(c *gin.Context) {
	ctx := c.Request.Context()

	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxSlackBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}

	if err := h.verify(c.Request.Header, body); err != nil {
		slog.WarnContext(ctx, "rejected slack command", "error", err)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid slack signature"})
		return
	}

	c.Request.Body = io.NopCloser(bytes.NewReader(body))
	cmd, err := slack.SlashCommandParse(c.Request)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid slash command payload"})
		return
	}

	c.JSON(http.StatusOK, h.dispatcher.Dispatch(ctx, cmd))
}

func (h *SlackCommandHandler) verify(header http.Header, body []byte) error {
	sv, err := slack.NewSecretsVerifier(header, h.signingSecret)
	if err != nil {
		return err
	}
	if _, err := sv.Write(body); err != nil {
		return err
	}
	return sv.Ensure()
}
