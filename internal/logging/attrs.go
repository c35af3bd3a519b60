package logging

import (
	"context"
	"log/slog"
	"time"
)

// Attr mirrors slog.Attr so call sites can stay on the logging package.
type Attr = slog.Attr

// Value mirrors slog.Value.
type Value = slog.Value

// Any builds an attribute holding an arbitrary value.
func Any(key string, value any) Attr { return slog.Any(key, value) }

// Bool builds a boolean attribute.
func Bool(key string, value bool) Attr { return slog.Bool(key, value) }

// Duration builds a duration attribute.
func Duration(key string, value time.Duration) Attr { return slog.Duration(key, value) }

// Float64 builds a float attribute.
func Float64(key string, value float64) Attr { return slog.Float64(key, value) }

// Int builds an int attribute.
func Int(key string, value int) Attr { return slog.Int(key, value) }

// Int64 builds an int64 attribute.
func Int64(key string, value int64) Attr { return slog.Int64(key, value) }

// Uint64 builds a uint64 attribute.
func Uint64(key string, value uint64) Attr { return slog.Uint64(key, value) }

// String builds a string attribute.
func String(key, value string) Attr { return slog.String(key, value) }

// Group builds a grouped attribute.
func Group(key string, args ...any) Attr { return slog.Group(key, args...) }

// Error builds a standard error attribute.
func Error(err error) Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// Args converts alternating key/value pairs into attributes.
func Args(args ...any) []Attr {
	if len(args) == 0 {
		return nil
	}
	record := slog.NewRecord(time.Time{}, slog.LevelInfo, "", 0)
	record.Add(args...)
	attrs := make([]Attr, 0, record.NumAttrs())
	record.Attrs(func(attr slog.Attr) bool {
		attrs = append(attrs, attr)
		return true
	})
	return attrs
}

// NewNop returns a logger that discards everything.
func NewNop() *slog.Logger {
	return slog.New(NoopHandler{})
}

// NoopHandler discards all records.
type NoopHandler struct{}

func (NoopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (NoopHandler) Handle(context.Context, slog.Record) error { return nil }
func (NoopHandler) WithAttrs([]slog.Attr) slog.Handler        { return NoopHandler{} }
func (NoopHandler) WithGroup(string) slog.Handler             { return NoopHandler{} }

// NewComponentLogger tags a child logger with a component name so the pretty
// handler can surface it as a prefix.
func NewComponentLogger(logger *slog.Logger, component string) *slog.Logger {
	if logger == nil {
		return NewNop()
	}
	if component == "" {
		return logger
	}
	return logger.With(String(FieldComponent, component))
}
