package logger

import "context"

type contextKey string

const logFieldsKey contextKey = "log_fields"

// LogFields contains structured fields automatically added to all logs within a context.
// A run enriches its context once and every stage logs with run_id/trigger/stage attached.
type LogFields struct {
	RunID     *int64  // Pipeline run ID (snowflake)
	Trigger   *string // What started the run (e.g., "schedule", "slack")
	Stage     *string // Current pipeline stage (e.g., "fetching")
	Component string  // Component name (e.g., "tars.pipeline.orchestrator")
}

// WithLogFields enriches context with structured log fields.
// Multiple calls merge fields, with newer non-nil/non-empty values taking precedence.
func WithLogFields(ctx context.Context, fields LogFields) context.Context {
	merged := mergeFields(GetLogFields(ctx), fields)
	return context.WithValue(ctx, logFieldsKey, merged)
}

// GetLogFields retrieves log fields from context.
// Returns empty LogFields if none are set.
func GetLogFields(ctx context.Context) LogFields {
	if fields, ok := ctx.Value(logFieldsKey).(LogFields); ok {
		return fields
	}
	return LogFields{}
}

func mergeFields(existing, next LogFields) LogFields {
	result := existing

	if next.RunID != nil {
		result.RunID = next.RunID
	}
	if next.Trigger != nil {
		result.Trigger = next.Trigger
	}
	if next.Stage != nil {
		result.Stage = next.Stage
	}
	if next.Component != "" {
		result.Component = next.Component
	}

	return result
}

// Ptr is a helper to create a pointer from a value.
// Useful for setting LogFields inline: logger.WithLogFields(ctx, logger.LogFields{RunID: logger.Ptr(id)})
func Ptr[T any](v T) *T {
	return &v
}

// Truncate truncates a string to maxLen bytes, appending "..." if truncated.
// Useful for logging upstream response bodies.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
