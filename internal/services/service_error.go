package services

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind classifies a provider failure for retry and fallback decisions.
type ErrorKind int

const (
	// KindUnknown covers failures the provider could not classify.
	KindUnknown ErrorKind = iota
	// KindUnavailable marks outages, timeouts, and connection failures.
	KindUnavailable
	// KindRateLimited marks throttling responses; Hold may carry the
	// provider-requested wait.
	KindRateLimited
	// KindInvalidInput marks requests the provider rejected as malformed.
	// These never retry and never fall back.
	KindInvalidInput
)

func (k ErrorKind) String() string {
	switch k {
	case KindUnavailable:
		return "unavailable"
	case KindRateLimited:
		return "rate_limited"
	case KindInvalidInput:
		return "invalid_input"
	default:
		return "unknown"
	}
}

// ServiceError is the uniform failure value returned by capability providers.
type ServiceError struct {
	Provider string
	Kind     ErrorKind
	Hold     time.Duration
	Cause    error
}

func (e *ServiceError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Provider, e.Kind, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Kind)
}

func (e *ServiceError) Unwrap() error { return e.Cause }

// Unavailable builds a ServiceError for outages and connectivity failures.
func Unavailable(provider string, cause error) *ServiceError {
	return &ServiceError{Provider: provider, Kind: KindUnavailable, Cause: cause}
}

// RateLimited builds a ServiceError for throttling. hold is the wait hint the
// provider supplied, zero when absent.
func RateLimited(provider string, hold time.Duration, cause error) *ServiceError {
	return &ServiceError{Provider: provider, Kind: KindRateLimited, Hold: hold, Cause: cause}
}

// InvalidInput builds a ServiceError for requests the provider rejected.
func InvalidInput(provider string, cause error) *ServiceError {
	return &ServiceError{Provider: provider, Kind: KindInvalidInput, Cause: cause}
}

// Unclassified builds a ServiceError of unknown kind.
func Unclassified(provider string, cause error) *ServiceError {
	return &ServiceError{Provider: provider, Kind: KindUnknown, Cause: cause}
}

// KindOf extracts the error kind, treating plain errors as unknown.
func KindOf(err error) ErrorKind {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return svcErr.Kind
	}
	return KindUnknown
}

// HoldOf extracts the rate-limit hold hint, zero when absent.
func HoldOf(err error) time.Duration {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return svcErr.Hold
	}
	return 0
}
