package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrorKind classifies a provider failure for retry decisions and for the
// report's error histogram. Classification is the only signal the retry
// policy consumes; it has no provider-specific knowledge.
type ErrorKind string

// Error kinds, aligned with the execution core's error taxonomy.
const (
	// KindTransientNetwork covers timeouts and connection resets.
	KindTransientNetwork ErrorKind = "transient_network"

	// KindProviderThrottle is an explicit rate-limit signal from the
	// provider. The rate limiter treats it as ground truth and forces a
	// cooldown.
	KindProviderThrottle ErrorKind = "provider_throttle"

	// KindProviderUnavailable covers 5xx-class upstream failures.
	KindProviderUnavailable ErrorKind = "provider_unavailable"

	// KindRequestRejected covers malformed payloads, authentication
	// failures, and not-found signals. Never retried.
	KindRequestRejected ErrorKind = "request_rejected"

	// KindIntegrityFailure marks a corrupt or short download. Terminal for
	// the attempt; the job is re-queueable only by explicit operator action.
	KindIntegrityFailure ErrorKind = "integrity_failure"

	// KindGenerationFailed is a terminal failure reported by the provider
	// for an accepted job. The submission was valid; the generation was not.
	KindGenerationFailed ErrorKind = "generation_failed"

	// KindTimeout marks a poll deadline exceeded locally. Distinct from
	// failure since the remote job may still complete after abandonment.
	KindTimeout ErrorKind = "timeout"

	// KindUnknown is used when no more specific classification applies.
	KindUnknown ErrorKind = "unknown"
)

// Retryable reports whether an operation failing with this kind should be
// retried with backoff.
func (k ErrorKind) Retryable() bool {
	switch k {
	case KindTransientNetwork, KindProviderThrottle, KindProviderUnavailable:
		return true
	}
	return false
}

// Error is a classified provider failure. It wraps the underlying cause so
// errors.Is/As keep working through it.
type Error struct {
	Kind     ErrorKind
	Provider string
	Err      error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Provider, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Kind)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a classified provider error wrapping cause.
func NewError(kind ErrorKind, providerName string, cause error) *Error {
	return &Error{Kind: kind, Provider: providerName, Err: cause}
}

// Errorf creates a classified provider error from a format string.
func Errorf(kind ErrorKind, providerName, format string, args ...any) *Error {
	return &Error{Kind: kind, Provider: providerName, Err: fmt.Errorf(format, args...)}
}

// KindOf extracts the ErrorKind from err. Unclassified network-level errors
// are treated as transient; everything else unclassified is unknown.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}

	var perr *Error
	if errors.As(err, &perr) {
		return perr.Kind
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return KindTransientNetwork
	}

	var nerr net.Error
	if errors.As(err, &nerr) {
		return KindTransientNetwork
	}

	return KindUnknown
}

// KindFromHTTPStatus maps an HTTP response code to an ErrorKind. Shared by
// the JSON-over-HTTP adapters.
func KindFromHTTPStatus(code int) ErrorKind {
	switch {
	case code == 429:
		return KindProviderThrottle
	case code >= 500:
		return KindProviderUnavailable
	case code == 400 || code == 401 || code == 403 || code == 404 || code == 422:
		return KindRequestRejected
	default:
		return KindUnknown
	}
}
