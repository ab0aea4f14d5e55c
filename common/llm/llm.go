package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go"
)

// Provider constants for LLM provider selection.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Finish reasons normalized across providers.
const (
	FinishStop   = "stop"
	FinishLength = "length"
)

// Config holds LLM client configuration.
type Config struct {
	Provider string // "openai" or "anthropic"
	APIKey   string // Required: API key for the provider
	BaseURL  string // Optional: custom API endpoint
	Model    string // Model name (e.g., "gpt-4o", "claude-sonnet-4-5")
}

// Client requests a single structured completion. Content is returned raw so
// callers can treat it as untrusted input and validate it themselves.
type Client interface {
	Complete(ctx context.Context, req Request) (*Response, error)
	Model() string
}

type Request struct {
	SystemPrompt string
	UserPrompt   string
	SchemaName   string
	Schema       any // JSON schema the content must follow
	MaxTokens    int
	Temperature  *float64 // nil = model default, explicit 0 = deterministic
}

type Response struct {
	Content          string
	FinishReason     string // FinishStop, FinishLength or provider specific
	PromptTokens     int
	CompletionTokens int
}

// New creates a Client for cfg.Provider. Defaults to OpenAI.
// SDK-level retries are disabled; callers own the retry policy.
func New(cfg Config) (Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	switch cfg.Provider {
	case "", ProviderOpenAI:
		return newOpenAIClient(cfg), nil
	case ProviderAnthropic:
		return newAnthropicClient(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
}

func GenerateSchema[T any]() any {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	return reflector.Reflect(v)
}

func Temp(t float64) *float64 {
	return &t
}

// IsRetryable reports whether err is worth another attempt: rate limits,
// server errors and network failures are; client errors and cancellation are not.
// Deadline errors are not retryable here; callers that set per-attempt
// deadlines decide for themselves.
func IsRetryable(ctx context.Context, err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		slog.DebugContext(ctx, "llm error not retryable: context cancelled or deadline exceeded")
		return false
	}

	if status, ok := statusCode(err); ok {
		switch {
		case status == 408 || status == 409 || status == 429:
			slog.WarnContext(ctx, "llm rate limited or conflicted, will retry", "status_code", status)
			return true
		case status >= 500:
			slog.WarnContext(ctx, "llm server error, will retry", "status_code", status)
			return true
		default:
			slog.ErrorContext(ctx, "llm client error, not retryable", "status_code", status, "error", err)
			return false
		}
	}

	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return true
	}

	slog.WarnContext(ctx, "llm network error, will retry", "error", err)
	return true
}

func statusCode(err error) (int, bool) {
	var openaiErr *openai.Error
	if errors.As(err, &openaiErr) {
		return openaiErr.StatusCode, true
	}
	var anthropicErr *anthropic.Error
	if errors.As(err, &anthropicErr) {
		return anthropicErr.StatusCode, true
	}
	return 0, false
}
