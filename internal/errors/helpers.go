package errors

import (
	"fmt"
)

// Common error creators for frequent use cases

// NewValidationError creates a validation error with field context
func NewValidationError(field, message string) *AppError {
	return New(ErrCodeValidationFailed, message).
		WithContext("field", field).
		WithUserMessage(fmt.Sprintf("Invalid %s: %s", field, message))
}

// NewAuthError creates an authentication error
func NewAuthError(reason string) *AppError {
	return New(ErrCodeAuthentication, "not authenticated").
		WithContext("reason", reason).
		WithUserMessage("You must be signed in to send messages")
}

// NewStorageError creates a local storage error with operation context
func NewStorageError(operation string, err error) *AppError {
	return Wrap(err, ErrCodeStorageWrite, fmt.Sprintf("storage %s failed", operation)).
		WithContext("operation", operation).
		WithUserMessage("Local storage operation failed")
}

// NewBackendError creates an error for a persist-RPC call. The backend's
// machine-readable code decides the local code and retryability: FORBIDDEN
// and NOT_FOUND are never retryable, everything else follows the HTTP
// status (5xx, 429 and 408 are transient).
func NewBackendError(endpoint, backendCode string, statusCode int, err error) *AppError {
	var code ErrorCode
	switch backendCode {
	case "FORBIDDEN":
		code = ErrCodeForbidden
	case "NOT_FOUND":
		code = ErrCodeNotFound
	case "VALIDATION_FAILED":
		code = ErrCodeValidationFailed
	default:
		code = ErrCodeBackendAPI
	}

	retryable := code == ErrCodeBackendAPI &&
		(statusCode >= 500 || statusCode == 429 || statusCode == 408 || statusCode == 0)

	appErr := Wrap(err, code, "backend call failed").
		WithContext("endpoint", endpoint).
		WithContext("status_code", statusCode)
	appErr.Retryable = retryable
	return appErr
}

// NewFeedError creates a subscription channel error
func NewFeedError(roomID string, err error) *AppError {
	appErr := Wrap(err, ErrCodeFeedChannel, "room feed channel error").
		WithContext("chat_room_id", roomID).
		WithUserMessage("Connection lost, reconnecting")
	appErr.Retryable = true
	return appErr
}

// NewTimeoutError creates a timeout error with context
func NewTimeoutError(operation string, duration string) *AppError {
	return New(ErrCodeTimeout, fmt.Sprintf("%s timed out after %s", operation, duration)).
		WithContext("operation", operation).
		WithContext("timeout", duration).
		WithUserMessage("Operation timed out, please try again")
}
