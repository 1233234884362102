// Package wire provides the JSON response envelope shared by every endpoint.
//
// Every response body has the shape
//
//	{"success": bool, "data": ..., "errors": [{"code": "...", "message": "..."}]}
//
// with data and errors omitted when empty.
package wire

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/xtxerr/telemetry/internal/errors"
)

// ContentType is set on every envelope response.
const ContentType = "application/json; charset=utf-8"

// Error is one entry of the envelope's errors array.
type Error struct {
	Code    errors.Code `json:"code"`
	Message string      `json:"message"`
}

// Envelope is the response body of every endpoint.
type Envelope struct {
	Success bool    `json:"success"`
	Data    any     `json:"data,omitempty"`
	Errors  []Error `json:"errors,omitempty"`
}

// Response is an envelope decoded with a typed data field.
type Response[T any] struct {
	Success bool    `json:"success"`
	Data    T       `json:"data"`
	Errors  []Error `json:"errors"`
}

// OK creates a success envelope. A nil data is omitted.
func OK(data any) Envelope {
	return Envelope{Success: true, Data: data}
}

// =============================================================================
// Error Envelope Helpers
// =============================================================================

// NewError creates an error envelope with the given code and message.
func NewError(code errors.Code, msg string) Envelope {
	return Envelope{
		Errors: []Error{{Code: code, Message: msg}},
	}
}

// NewErrorf creates an error envelope with a formatted message.
func NewErrorf(code errors.Code, format string, args ...any) Envelope {
	return NewError(code, fmt.Sprintf(format, args...))
}

// NewErrorFromErr creates an error envelope from a Go error. Client errors
// carry the full message. Server errors carry only the sentinel's text so
// driver details and addresses stay in the logs.
func NewErrorFromErr(err error) Envelope {
	return NewError(errors.ErrorToCode(err), Message(err))
}

// Message returns the text reported to callers for err.
func Message(err error) string {
	if errors.IsClientError(err) {
		return err.Error()
	}

	switch errors.ErrorToCode(err) {
	case errors.CodeStoreUnavailable:
		return errors.ErrStoreUnavailable.Error()
	case errors.CodeClockRegression:
		return errors.ErrClockRegression.Error()
	default:
		return errors.ErrInternal.Error()
	}
}

// =============================================================================
// Writing and Reading
// =============================================================================

// Write encodes env with the given status.
func Write(w http.ResponseWriter, status int, env Envelope) error {
	w.Header().Set("Content-Type", ContentType)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(env); err != nil {
		return fmt.Errorf("write envelope: %w", err)
	}
	return nil
}

// RetryAfter is the delay, in seconds, advertised on retriable errors.
const RetryAfter = "1"

// WriteError writes err with the status errors.HTTPStatus assigns to it.
// Retriable errors carry a Retry-After header.
func WriteError(w http.ResponseWriter, err error) error {
	if errors.IsRetriable(err) && w.Header().Get("Retry-After") == "" {
		w.Header().Set("Retry-After", RetryAfter)
	}
	return Write(w, errors.HTTPStatus(err), NewErrorFromErr(err))
}

// Decode reads one envelope from r.
func Decode[T any](r io.Reader) (Response[T], error) {
	var resp Response[T]
	if err := json.NewDecoder(r).Decode(&resp); err != nil {
		return resp, fmt.Errorf("read envelope: %w", err)
	}
	return resp, nil
}
