// Package errors defines the error taxonomy shared by every telemetry component.
//
// This file provides:
// - Machine-readable response codes
// - Sentinel errors for all error conditions
// - Error category checking functions
// - ErrorToCode and HTTPStatus mapping
// - Error wrapping utilities
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ============================================================================
// Response codes - used in the "errors" array of the response envelope
// ============================================================================

// Code is a stable, machine-readable error code.
type Code string

const (
	CodeUnknown          Code = "UNKNOWN"
	CodePayloadTooLarge  Code = "PAYLOAD_TOO_LARGE"
	CodeMalformedPayload Code = "MALFORMED_PAYLOAD"
	CodeStoreUnavailable Code = "STORE_UNAVAILABLE"
	CodeClockRegression  Code = "CLOCK_REGRESSION"
	CodeRateLimited      Code = "RATE_LIMITED"
	CodeNotFound         Code = "NOT_FOUND"
	CodeMethodNotAllowed Code = "METHOD_NOT_ALLOWED"
)

// ============================================================================
// Sentinel errors
// ============================================================================

var (
	// Request errors (per-request, recoverable, 4xx)
	ErrPayloadTooLarge  = errors.New("payload too large")
	ErrMalformedPayload = errors.New("malformed payload")
	ErrMissingField     = fmt.Errorf("missing required field: %w", ErrMalformedPayload)
	ErrInvalidField     = fmt.Errorf("invalid field: %w", ErrMalformedPayload)
	ErrRateLimited      = errors.New("rate limited")
	ErrNotFound         = errors.New("not found")
	ErrMethodNotAllowed = errors.New("method not allowed")

	// Store errors
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrStoreClosed      = fmt.Errorf("store is closed: %w", ErrStoreUnavailable)
	ErrInvalidBlock     = errors.New("invalid column block")

	// Identifier errors
	ErrClockRegression = errors.New("clock moved backwards")

	// Internal errors
	ErrInternal      = errors.New("internal error")
	ErrInvalidConfig = errors.New("invalid configuration")
)

// ============================================================================
// Helper functions for error checking
// ============================================================================

// Is is a convenience wrapper for errors.Is
var Is = errors.Is

// As is a convenience wrapper for errors.As
var As = errors.As

// Join is a convenience wrapper for errors.Join
var Join = errors.Join

// New is a convenience wrapper for errors.New
var New = errors.New

// IsClientError returns true if err was caused by the request itself.
func IsClientError(err error) bool {
	return errors.Is(err, ErrPayloadTooLarge) ||
		errors.Is(err, ErrMalformedPayload) ||
		errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrMethodNotAllowed)
}

// IsRetriable returns true if the same request may succeed later.
func IsRetriable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable) ||
		errors.Is(err, ErrClockRegression) ||
		errors.Is(err, ErrRateLimited)
}

// ============================================================================
// Error to response mapping
// ============================================================================

// ErrorToCode maps an error to its response code.
func ErrorToCode(err error) Code {
	switch {
	case err == nil:
		return CodeUnknown
	case Is(err, ErrPayloadTooLarge):
		return CodePayloadTooLarge
	case Is(err, ErrMalformedPayload):
		return CodeMalformedPayload
	case Is(err, ErrRateLimited):
		return CodeRateLimited
	case Is(err, ErrNotFound):
		return CodeNotFound
	case Is(err, ErrMethodNotAllowed):
		return CodeMethodNotAllowed
	case Is(err, ErrStoreUnavailable):
		return CodeStoreUnavailable
	case Is(err, ErrClockRegression):
		return CodeClockRegression
	default:
		return CodeUnknown
	}
}

// HTTPStatus maps an error to the HTTP status used to report it.
func HTTPStatus(err error) int {
	switch ErrorToCode(err) {
	case CodePayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case CodeMalformedPayload:
		return http.StatusBadRequest
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeNotFound:
		return http.StatusNotFound
	case CodeMethodNotAllowed:
		return http.StatusMethodNotAllowed
	default:
		return http.StatusInternalServerError
	}
}

// ============================================================================
// Error wrapping utilities
// ============================================================================

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// NewMissingField creates a missing field error.
func NewMissingField(field string) error {
	return fmt.Errorf("%q: %w", field, ErrMissingField)
}

// NewMalformed creates a malformed payload error for a specific field.
func NewMalformed(field, reason string) error {
	return fmt.Errorf("%q %s: %w", field, reason, ErrInvalidField)
}

// NewStoreError wraps a driver failure for the named store operation.
func NewStoreError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}
