package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

type anthropicClient struct {
	client anthropic.Client
	model  string
}

func newAnthropicClient(cfg Config) *anthropicClient {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	model := cfg.Model
	if model == "" {
		model = "claude-sonnet-4-5"
	}

	return &anthropicClient{
		client: anthropic.NewClient(opts...),
		model:  model,
	}
}

// Complete asks for JSON through the system prompt; Anthropic has no strict
// schema response format, so the schema is embedded as instructions.
func (c *anthropicClient) Complete(ctx context.Context, req Request) (*Response, error) {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}

	system, err := systemWithSchema(req)
	if err != nil {
		return nil, err
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: int64(maxTokens),
		System: []anthropic.TextBlockParam{
			{Type: "text", Text: system},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.UserPrompt)),
		},
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}

	start := time.Now()
	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic messages: %w", err)
	}

	var content strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			content.WriteString(block.Text)
		}
	}

	slog.InfoContext(ctx, "llm completion finished",
		"provider", ProviderAnthropic,
		"model", c.model,
		"duration_ms", time.Since(start).Milliseconds(),
		"stop_reason", resp.StopReason,
		"input_tokens", resp.Usage.InputTokens,
		"output_tokens", resp.Usage.OutputTokens)

	return &Response{
		Content:          content.String(),
		FinishReason:     mapStopReason(resp.StopReason),
		PromptTokens:     int(resp.Usage.InputTokens),
		CompletionTokens: int(resp.Usage.OutputTokens),
	}, nil
}

func (c *anthropicClient) Model() string {
	return c.model
}

func systemWithSchema(req Request) (string, error) {
	if req.Schema == nil {
		return req.SystemPrompt, nil
	}
	schema, err := json.Marshal(req.Schema)
	if err != nil {
		return "", fmt.Errorf("marshal schema: %w", err)
	}
	return req.SystemPrompt +
		"\n\nRespond with a single JSON object and nothing else. It must validate against this JSON schema:\n" +
		string(schema), nil
}

func mapStopReason(reason anthropic.StopReason) string {
	switch reason {
	case anthropic.StopReasonEndTurn, anthropic.StopReasonStopSequence:
		return FinishStop
	case anthropic.StopReasonMaxTokens:
		return FinishLength
	default:
		return string(reason)
	}
}
