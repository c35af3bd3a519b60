package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrService       = errors.New("service error")
	ErrResource      = errors.New("resource error")
	ErrSync          = errors.New("sync error")
	ErrTransient     = errors.New("transient failure")
)

// Wrap tags err with marker so Classify and Fatal can route the failure
// later, and prefixes the message with whatever stage, operation, and detail
// context the caller has. A nil marker counts as transient.
func Wrap(marker error, stage, operation, message string, err error) error {
	if marker == nil {
		marker = ErrTransient
	}
	detail := joinDetail(stage, operation, message)
	if err == nil {
		return fmt.Errorf("%w: %s", marker, detail)
	}
	return fmt.Errorf("%w: %s: %w", marker, detail, err)
}

// Fatal reports whether an error should fail the job outright rather than be
// retried or absorbed as a per-segment failure.
func Fatal(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrConfiguration) ||
		errors.Is(err, ErrNotFound)
}

// Classify maps an error to the label recorded in a job's error history.
func Classify(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrResource):
		return "resource"
	case errors.Is(err, ErrSync):
		return "sync"
	case errors.Is(err, ErrService):
		return "service"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrTransient):
		return "transient"
	default:
		return "internal"
	}
}

func joinDetail(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			kept = append(kept, part)
		}
	}
	if len(kept) == 0 {
		return "service failure"
	}
	return strings.Join(kept, ": ")
}
