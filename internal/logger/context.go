package logger

import "context"

type contextKey string

const logFieldsKey contextKey = "log_fields"

// LogFields are attached to every log line written with a context that
// carries them.
type LogFields struct {
	Component string
	TaskID    *int64
	UserID    *int64
	ChatID    *int64
	UpdateID  *int
}

// WithLogFields merges fields into the context. Newer non-empty values win.
func WithLogFields(ctx context.Context, fields LogFields) context.Context {
	merged := mergeFields(GetLogFields(ctx), fields)
	return context.WithValue(ctx, logFieldsKey, merged)
}

func GetLogFields(ctx context.Context) LogFields {
	if fields, ok := ctx.Value(logFieldsKey).(LogFields); ok {
		return fields
	}
	return LogFields{}
}

func mergeFields(existing, next LogFields) LogFields {
	result := existing

	if next.Component != "" {
		result.Component = next.Component
	}
	if next.TaskID != nil {
		result.TaskID = next.TaskID
	}
	if next.UserID != nil {
		result.UserID = next.UserID
	}
	if next.ChatID != nil {
		result.ChatID = next.ChatID
	}
	if next.UpdateID != nil {
		result.UpdateID = next.UpdateID
	}

	return result
}

// Ptr returns a pointer to v, for inline LogFields literals.
func Ptr[T any](v T) *T {
	return &v
}

// Truncate shortens s to maxLen bytes for log output.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
