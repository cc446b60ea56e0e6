package domain

import (
	"errors"
	"testing"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		appErr   *AppError
		expected string
	}{
		{
			name:     "error without wrapped error",
			appErr:   ErrEventNotFound,
			expected: "Event not found",
		},
		{
			name: "error with wrapped error",
			appErr: &AppError{
				Code:       "TEST_ERROR",
				Message:    "Test message",
				StatusCode: 500,
				Err:        errors.New("underlying error"),
			},
			expected: "Test message: underlying error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.appErr.Error(); got != tt.expected {
				t.Errorf("Error() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	underlying := errors.New("underlying error")
	appErr := &AppError{
		Code:       "TEST",
		Message:    "test",
		StatusCode: 500,
		Err:        underlying,
	}

	if got := appErr.Unwrap(); got != underlying {
		t.Errorf("Unwrap() = %v, want %v", got, underlying)
	}

	if got := ErrEventNotFound.Unwrap(); got != nil {
		t.Errorf("Unwrap() = %v, want nil", got)
	}
}

func TestAppError_WithError(t *testing.T) {
	underlying := errors.New("db connection failed")
	newErr := ErrEventNotRecorded.WithError(underlying)

	if newErr.Code != ErrEventNotRecorded.Code {
		t.Errorf("Code = %v, want %v", newErr.Code, ErrEventNotRecorded.Code)
	}

	if newErr.StatusCode != 503 {
		t.Errorf("StatusCode = %v, want 503", newErr.StatusCode)
	}

	if !errors.Is(newErr, underlying) {
		t.Errorf("errors.Is should return true for wrapped error")
	}

	if !errors.Is(newErr, ErrEventNotRecorded) {
		t.Errorf("errors.Is should match the predefined error by code")
	}

	if errors.Is(newErr, ErrEventNotFound) {
		t.Errorf("errors.Is should not match a different code")
	}
}

func TestPredefinedErrors(t *testing.T) {
	tests := []struct {
		err        *AppError
		code       string
		statusCode int
	}{
		{ErrInternal, "INTERNAL_ERROR", 500},
		{ErrBadRequest, "BAD_REQUEST", 400},
		{ErrNotFound, "NOT_FOUND", 404},
		{ErrValidationFailed, "VALIDATION_FAILED", 422},
		{ErrEventNotRecorded, "EVENT_NOT_RECORDED", 503},
		{ErrEventNotFound, "EVENT_NOT_FOUND", 404},
		{ErrEndpointNotFound, "ENDPOINT_NOT_FOUND", 404},
		{ErrEndpointExists, "ENDPOINT_ALREADY_EXISTS", 409},
		{ErrRetryEntryNotFound, "RETRY_ENTRY_NOT_FOUND", 404},
		{ErrDeadLetterNotFound, "DEAD_LETTER_NOT_FOUND", 404},
		{ErrDeadLetterReplayed, "DEAD_LETTER_ALREADY_REPLAYED", 409},
		{ErrUnknownSyncJob, "UNKNOWN_SYNC_JOB", 404},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			if tt.err.Code != tt.code {
				t.Errorf("Code = %v, want %v", tt.err.Code, tt.code)
			}
			if tt.err.StatusCode != tt.statusCode {
				t.Errorf("StatusCode = %v, want %v", tt.err.StatusCode, tt.statusCode)
			}
		})
	}
}
