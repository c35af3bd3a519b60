package logging

import (
	"context"
	"log/slog"

	"mockingbird/internal/services"
)

// Shared structured logging field names.
const (
	FieldComponent     = "component"
	FieldJobID         = "job_id"
	FieldStage         = "stage"
	FieldLane          = "lane"
	FieldLanguage      = "language"
	FieldProvider      = "provider"
	FieldCorrelationID = "correlation_id"
)

// ContextFields extracts request-scoped metadata into log attributes.
func ContextFields(ctx context.Context) []Attr {
	if ctx == nil {
		return nil
	}
	attrs := make([]Attr, 0, 5)
	if jobID, ok := services.JobIDFromContext(ctx); ok {
		attrs = append(attrs, String(FieldJobID, jobID))
	}
	if stage, ok := services.StageFromContext(ctx); ok {
		attrs = append(attrs, String(FieldStage, stage))
	}
	if lane, ok := services.LaneFromContext(ctx); ok {
		attrs = append(attrs, String(FieldLane, lane))
	}
	if language, ok := services.LanguageFromContext(ctx); ok {
		attrs = append(attrs, String(FieldLanguage, language))
	}
	if requestID, ok := services.RequestIDFromContext(ctx); ok {
		attrs = append(attrs, String(FieldCorrelationID, requestID))
	}
	return attrs
}

// WithContext returns a child logger carrying the context's metadata.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	args := make([]any, len(fields))
	for i, attr := range fields {
		args[i] = attr
	}
	return logger.With(args...)
}
