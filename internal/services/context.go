package services

import "context"

type contextKey string

const (
	jobIDKey     contextKey = "job_id"
	stageKey     contextKey = "stage"
	laneKey      contextKey = "lane"
	languageKey  contextKey = "language"
	requestIDKey contextKey = "request_id"
)

// withString stores a non-empty value under key. Empty values leave the
// context untouched so absent metadata never shadows an earlier annotation.
func withString(ctx context.Context, key contextKey, value string) context.Context {
	if value == "" {
		return ctx
	}
	return context.WithValue(ctx, key, value)
}

func stringFrom(ctx context.Context, key contextKey) (string, bool) {
	value, ok := ctx.Value(key).(string)
	return value, ok && value != ""
}

// WithJobID annotates ctx with the dubbing job identifier.
func WithJobID(ctx context.Context, id string) context.Context {
	return withString(ctx, jobIDKey, id)
}

// JobIDFromContext reports the dubbing job identifier, if any.
func JobIDFromContext(ctx context.Context) (string, bool) {
	return stringFrom(ctx, jobIDKey)
}

// WithStage annotates ctx with the pipeline stage name.
func WithStage(ctx context.Context, stage string) context.Context {
	return withString(ctx, stageKey, stage)
}

// StageFromContext reports the pipeline stage name, if any.
func StageFromContext(ctx context.Context) (string, bool) {
	return stringFrom(ctx, stageKey)
}

// WithLane annotates ctx with the lane (network or compute) running the job.
func WithLane(ctx context.Context, lane string) context.Context {
	return withString(ctx, laneKey, lane)
}

// LaneFromContext reports the lane name, if any.
func LaneFromContext(ctx context.Context) (string, bool) {
	return stringFrom(ctx, laneKey)
}

// WithLanguage annotates ctx with the target language being produced.
func WithLanguage(ctx context.Context, tag string) context.Context {
	return withString(ctx, languageKey, tag)
}

// LanguageFromContext reports the target language, if any.
func LanguageFromContext(ctx context.Context) (string, bool) {
	return stringFrom(ctx, languageKey)
}

// WithRequestID annotates ctx with a correlation identifier for provider calls.
func WithRequestID(ctx context.Context, id string) context.Context {
	return withString(ctx, requestIDKey, id)
}

// RequestIDFromContext reports the correlation identifier, if any.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	return stringFrom(ctx, requestIDKey)
}
