package main

import (
	"errors"
	"fmt"
)

// ErrSessionExpired signals that the provider rejected the login token.
// It is not a failure by itself: the orchestration layer catches it once at
// startup and falls back to a fresh login. A token that goes stale mid-run
// is wrapped fatal instead, since no call-level re-login loop exists.
var ErrSessionExpired = errors.New("session expired")

// =============================================================================
// Fatal Errors
// =============================================================================

// FatalError represents an error that should stop the run immediately.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string {
	return e.Err.Error()
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// NewFatalError wraps an error as fatal.
func NewFatalError(err error) error {
	return &FatalError{Err: err}
}

// IsFatalError checks if the error is a fatal error that should stop the run.
func IsFatalError(err error) bool {
	if err == nil {
		return false
	}
	var fe *FatalError
	return errors.As(err, &fe)
}

// =============================================================================
// Provider Errors
// =============================================================================

// AppError is a provider-reported failure: the response envelope carried a
// non-success, non-expired code together with a human-readable tip.
type AppError struct {
	Code string
	Tip  string
}

func (e *AppError) Error() string {
	if e.Tip == "" {
		return fmt.Sprintf("provider error (code %s)", e.Code)
	}
	return fmt.Sprintf("%s (code %s)", e.Tip, e.Code)
}

// TransportError is a non-success HTTP status from the provider.
type TransportError struct {
	Status int
	URL    string
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("HTTP request failed, code: %d, url: %s", e.Status, e.URL)
}

// DecodeError is a malformed ciphertext or JSON body.
type DecodeError struct {
	Op  string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Op, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
