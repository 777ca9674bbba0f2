package session

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// Error type constants for classification and matching
const (
	// ErrorTypeAll acts as a wildcard that matches any error except
	// user-destructive errors
	ErrorTypeAll = "all"

	// ErrorTypeTransientNetwork matches heartbeat, upload, or classification
	// failures caused by timeouts or transport errors. These are retried via
	// queue flush and are never fatal to a session.
	ErrorTypeTransientNetwork = "transient_network"

	// ErrorTypeLinkLoss indicates a sensor link disconnect. Recoverable by
	// reconnection or explicit user cancellation.
	ErrorTypeLinkLoss = "link_loss"

	// ErrorTypeDataIntegrity indicates inconsistent local state, such as a
	// missing checkpoint when one is expected. The fallback is to discard
	// the in-progress repetition rather than risk corrupt data.
	ErrorTypeDataIntegrity = "data_integrity"

	// ErrorTypeUserDestructive indicates a deliberate cancel/discard. These
	// are always honored immediately and must never block on the network.
	ErrorTypeUserDestructive = "user_destructive"
)

// SessionError represents a structured error with classification.
// It supports Go's error wrapping patterns with Unwrap().
type SessionError struct {
	Type    string `json:"type"`
	Cause   string `json:"cause"`
	Wrapped error  `json:"-"`
}

// Error implements the error interface
func (e *SessionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Cause)
}

// Unwrap implements the error unwrapping interface for errors.Is and errors.As
func (e *SessionError) Unwrap() error {
	return e.Wrapped
}

// NewSessionError creates a new SessionError with the specified type and cause.
func NewSessionError(errorType, cause string) *SessionError {
	return &SessionError{Type: errorType, Cause: cause}
}

// ClassifyError maps an arbitrary error into the session error taxonomy.
// Timeouts and transport-level failures classify as transient-network, since
// the default posture is to leave the work in the queue for a later flush.
func ClassifyError(err error) *SessionError {
	var sessionError *SessionError
	if errors.As(err, &sessionError) {
		return sessionError
	}
	if isTransportError(err) {
		return &SessionError{
			Type:    ErrorTypeTransientNetwork,
			Cause:   err.Error(),
			Wrapped: err,
		}
	}
	// Unknown errors default to data-integrity: local state is suspect and
	// the safe fallback is to discard unconfirmed progress.
	return &SessionError{
		Type:    ErrorTypeDataIntegrity,
		Cause:   err.Error(),
		Wrapped: err,
	}
}

// MatchesErrorType checks if an error matches a specified error type pattern
func MatchesErrorType(err error, errorType string) bool {
	sErr := ClassifyError(err)
	// User-destructive errors are only matched by their own pattern, so a
	// deliberate discard is never swallowed by a wildcard retry.
	if sErr.Type == ErrorTypeUserDestructive {
		return errorType == ErrorTypeUserDestructive
	}
	if errorType == ErrorTypeAll {
		return true
	}
	return sErr.Type == errorType
}

// isTransportError reports whether an error looks like a network transport
// failure rather than a local logic error.
func isTransportError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr *net.OpError
	if errors.As(err, &netErr) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	errStr := strings.ToLower(err.Error())
	transportPatterns := []string{
		"timeout",
		"connection refused",
		"connection reset",
		"no such host",
		"network is unreachable",
		"service unavailable",
		"bad gateway",
		"gateway timeout",
	}
	for _, pattern := range transportPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}
