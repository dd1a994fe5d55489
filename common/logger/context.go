package logger

import "context"

type contextKey string

const logFieldsKey contextKey = "log_fields"

// LogFields contains structured fields automatically added to all logs
// within a context. Business context (job iid, canonical id) flows through
// context enrichment so individual log statements stay terse.
type LogFields struct {
	JobIID      *int64  // tracker-assigned issue iid
	CanonicalID *string // derived wake-word id
	Lang        *string // detected language tag
	Component   string  // e.g. "watcher.loop", "watcher.publisher"
}

// WithLogFields enriches context with structured log fields. Multiple
// calls merge fields, with newer non-nil/non-empty values taking
// precedence.
func WithLogFields(ctx context.Context, fields LogFields) context.Context {
	merged := mergeFields(GetLogFields(ctx), fields)
	return context.WithValue(ctx, logFieldsKey, merged)
}

// GetLogFields retrieves log fields from context. Returns empty LogFields
// if none are set.
func GetLogFields(ctx context.Context) LogFields {
	if fields, ok := ctx.Value(logFieldsKey).(LogFields); ok {
		return fields
	}
	return LogFields{}
}

func mergeFields(existing, update LogFields) LogFields {
	result := existing

	if update.JobIID != nil {
		result.JobIID = update.JobIID
	}
	if update.CanonicalID != nil {
		result.CanonicalID = update.CanonicalID
	}
	if update.Lang != nil {
		result.Lang = update.Lang
	}
	if update.Component != "" {
		result.Component = update.Component
	}

	return result
}

// Ptr is a helper to create a pointer from a value, for setting LogFields
// inline.
func Ptr[T any](v T) *T {
	return &v
}

// Truncate truncates a string to maxLen characters, appending "..." if
// truncated. Useful for logging trainer output or error messages.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
