// Package failover sends chat completions across an ordered list of
// models, moving to the next model when one fails and remembering that
// position between calls.
package failover

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a failure for failover and propagation decisions.
type Kind string

const (
	// KindConfiguration: missing credential or unusable setup. Never retried.
	KindConfiguration Kind = "configuration"
	// KindRetryable: timeout, connection failure, 429, 5xx or an empty
	// completion. Triggers failover to the next model.
	KindRetryable Kind = "retryable"
	// KindNonRetryable: the request itself is wrong. Never retried.
	KindNonRetryable Kind = "non_retryable"
	// KindExhausted: every candidate model failed.
	KindExhausted Kind = "exhausted"
	// KindCancelled: the caller's context ended between attempts. The
	// context error is wrapped.
	KindCancelled Kind = "cancelled"
)

// ErrMissingCredential is returned when no provider API key is configured.
var ErrMissingCredential = errors.New("provider API key is not configured")

// Error is a classified failure of a single attempt or of the request as
// a whole.
type Error struct {
	Kind       Kind
	Model      string
	StatusCode int
	Reason     string
	Err        error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Model != "" {
		fmt.Fprintf(&b, " [%s]", e.Model)
	}
	b.WriteString(": ")
	b.WriteString(e.Reason)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether the failure should move on to the next model.
func (e *Error) Retryable() bool {
	return e.Kind == KindRetryable
}

// ConfigurationError creates a configuration failure.
func ConfigurationError(err error) *Error {
	return &Error{Kind: KindConfiguration, Reason: "invalid configuration", Err: err}
}

// RequestError creates a non-retryable failure for a malformed request.
func RequestError(reason string) *Error {
	return &Error{Kind: KindNonRetryable, Reason: reason}
}

// cancelledError wraps a context error observed after n attempts.
func cancelledError(n int, err error) *Error {
	return &Error{Kind: KindCancelled, Reason: fmt.Sprintf("cancelled after %d attempts", n), Err: err}
}

// ExhaustedError reports that every attempted model failed.
type ExhaustedError struct {
	Attempted []string
	Last      *Error
}

// Error implements the error interface.
func (e *ExhaustedError) Error() string {
	msg := fmt.Sprintf("all %d models failed (%s)", len(e.Attempted), strings.Join(e.Attempted, ", "))
	if e.Last != nil {
		msg += ": last error: " + e.Last.Error()
	}
	return msg
}

// Unwrap returns the last classified attempt error.
func (e *ExhaustedError) Unwrap() error {
	if e.Last == nil {
		return nil
	}
	return e.Last
}

// KindOf returns the Kind of err, or "" when err carries none.
func KindOf(err error) Kind {
	var ex *ExhaustedError
	if errors.As(err, &ex) {
		return KindExhausted
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}
