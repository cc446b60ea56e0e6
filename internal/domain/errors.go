package domain

import (
	"fmt"
)

type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Err        error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func (e *AppError) WithError(err error) *AppError {
	return &AppError{
		Code:       e.Code,
		Message:    e.Message,
		StatusCode: e.StatusCode,
		Err:        err,
	}
}

// Is matches by code so that WithError copies still satisfy errors.Is
// against the predefined value.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// Pre-defined errors
var (
	ErrInternal = &AppError{
		Code:       "INTERNAL_ERROR",
		Message:    "An unexpected error occurred",
		StatusCode: 500,
	}

	ErrBadRequest = &AppError{
		Code:       "BAD_REQUEST",
		Message:    "Invalid request",
		StatusCode: 400,
	}

	ErrNotFound = &AppError{
		Code:       "NOT_FOUND",
		Message:    "Resource not found",
		StatusCode: 404,
	}

	ErrValidationFailed = &AppError{
		Code:       "VALIDATION_FAILED",
		Message:    "Request validation failed",
		StatusCode: 422,
	}

	ErrRateLimitExceeded = &AppError{
		Code:       "RATE_LIMIT_EXCEEDED",
		Message:    "Too many events submitted, slow down",
		StatusCode: 429,
	}

	// Intake errors
	ErrEventNotRecorded = &AppError{
		Code:       "EVENT_NOT_RECORDED",
		Message:    "Event could not be recorded, it is safe to retry the submission",
		StatusCode: 503,
	}

	ErrEventNotFound = &AppError{
		Code:       "EVENT_NOT_FOUND",
		Message:    "Event not found",
		StatusCode: 404,
	}

	// Endpoint errors
	ErrEndpointNotFound = &AppError{
		Code:       "ENDPOINT_NOT_FOUND",
		Message:    "Webhook endpoint not found",
		StatusCode: 404,
	}

	ErrEndpointExists = &AppError{
		Code:       "ENDPOINT_ALREADY_EXISTS",
		Message:    "An endpoint with this system and url is already registered",
		StatusCode: 409,
	}

	ErrDeliveryNotFound = &AppError{
		Code:       "DELIVERY_NOT_FOUND",
		Message:    "Webhook delivery not found",
		StatusCode: 404,
	}

	// Retry / dead-letter errors
	ErrRetryEntryNotFound = &AppError{
		Code:       "RETRY_ENTRY_NOT_FOUND",
		Message:    "Event is not in the retry queue",
		StatusCode: 404,
	}

	ErrDeadLetterNotFound = &AppError{
		Code:       "DEAD_LETTER_NOT_FOUND",
		Message:    "Dead letter not found",
		StatusCode: 404,
	}

	ErrDeadLetterReplayed = &AppError{
		Code:       "DEAD_LETTER_ALREADY_REPLAYED",
		Message:    "Dead letter was already replayed",
		StatusCode: 409,
	}

	// Sync errors
	ErrUnknownSyncJob = &AppError{
		Code:       "UNKNOWN_SYNC_JOB",
		Message:    "Sync job type is not configured",
		StatusCode: 404,
	}

	ErrSystemNotConfigured = &AppError{
		Code:       "SYSTEM_NOT_CONFIGURED",
		Message:    "No base url configured for system",
		StatusCode: 422,
	}
)
