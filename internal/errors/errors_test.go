package errors

import (
	"context"
	"fmt"
	"net/http"
	"testing"
)

func TestErrorToCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Code
	}{
		{"nil", nil, CodeUnknown},
		{"too large", ErrPayloadTooLarge, CodePayloadTooLarge},
		{"missing field", NewMissingField("product"), CodeMalformedPayload},
		{"invalid field", NewMalformed("os", "contains control characters"), CodeMalformedPayload},
		{"store", NewStoreError("insert", context.DeadlineExceeded), CodeStoreUnavailable},
		{"store closed", ErrStoreClosed, CodeStoreUnavailable},
		{"clock", Wrap(ErrClockRegression, "generate id"), CodeClockRegression},
		{"rate", ErrRateLimited, CodeRateLimited},
		{"not found", ErrNotFound, CodeNotFound},
		{"method", ErrMethodNotAllowed, CodeMethodNotAllowed},
		{"other", fmt.Errorf("boom"), CodeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ErrorToCode(tt.err); got != tt.want {
				t.Errorf("ErrorToCode(%v) = %s, want %s", tt.err, got, tt.want)
			}
		})
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{ErrPayloadTooLarge, http.StatusRequestEntityTooLarge},
		{NewMissingField("vendor"), http.StatusBadRequest},
		{ErrRateLimited, http.StatusTooManyRequests},
		{ErrNotFound, http.StatusNotFound},
		{ErrMethodNotAllowed, http.StatusMethodNotAllowed},
		{NewStoreError("query", fmt.Errorf("connection refused")), http.StatusInternalServerError},
		{ErrClockRegression, http.StatusInternalServerError},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		if got := HTTPStatus(tt.err); got != tt.want {
			t.Errorf("HTTPStatus(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestNewStoreErrorKeepsCause(t *testing.T) {
	err := NewStoreError("ping", context.Canceled)

	if !Is(err, ErrStoreUnavailable) {
		t.Error("expected ErrStoreUnavailable")
	}
	if !Is(err, context.Canceled) {
		t.Error("expected driver cause to be preserved")
	}
	if !IsRetriable(err) {
		t.Error("store errors should be retriable")
	}
	if IsClientError(err) {
		t.Error("store errors are not client errors")
	}
}

func TestWrapNil(t *testing.T) {
	if Wrap(nil, "context") != nil {
		t.Error("Wrap(nil) should be nil")
	}
	if Wrapf(nil, "context %d", 1) != nil {
		t.Error("Wrapf(nil) should be nil")
	}
}
