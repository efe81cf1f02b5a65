// Package apperror defines the error vocabulary shared by every layer.
//
// Services return (or wrap) these values; the HTTP layer maps them to status
// codes and the task runner logs them. Callers test with errors.Is against
// the sentinels, never by comparing messages.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation error")
	ErrConflict   = errors.New("conflict")
	ErrForbidden  = errors.New("forbidden")

	// ErrUnauthorized means the remote directory rejected the credentials.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRemote covers every failed exchange with the remote directory:
	// transport errors, timeouts, non-200 responses and broken envelopes.
	ErrRemote = errors.New("remote directory failure")

	// ErrAuthFailed is fatal to a login attempt during completion.
	ErrAuthFailed = errors.New("authentication failed")

	// ErrCreationBlocked is returned when a verified user has no local
	// account and automatic account creation is disabled.
	ErrCreationBlocked = errors.New("account creation blocked")

	// ErrAlreadyRunning is returned when a task is triggered while a
	// previous invocation is still in flight.
	ErrAlreadyRunning = errors.New("already running")
)

type AppError struct {
	Err     error  // sentinel the error matches with errors.Is
	Message string // safe to show to the caller
	Field   string // optional: field causing the error
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

func Conflict(resource, id string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s conflict with id %s", resource, id),
	}
}

// Forbidden returns an AppError indicating the caller lacks permission.
// HTTP handlers map this to 403 Forbidden.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

// Unauthorized is returned for rejected credentials. The message is generic on
// purpose: end users never see remote-service detail.
func Unauthorized() *AppError {
	return &AppError{
		Err:     ErrUnauthorized,
		Message: "invalid username or password",
	}
}

// Remote wraps a remote directory failure. op names the endpoint that failed
// and cause carries the underlying detail for logs.
func Remote(op string, cause error) error {
	return fmt.Errorf("%s: %w", op, &AppError{
		Err:     ErrRemote,
		Message: fmt.Sprintf("remote directory %s failed: %v", op, cause),
	})
}

// AuthFailed marks a fatal failure while completing a login. reason is one of
// "token", "api" or "response" and ends up in logs only.
func AuthFailed(reason string) *AppError {
	return &AppError{
		Err:     ErrAuthFailed,
		Message: "authentication failed: " + reason,
	}
}

// CreationBlocked is returned when provisioning a new account is disabled.
func CreationBlocked(username string) *AppError {
	return &AppError{
		Err:     ErrCreationBlocked,
		Message: fmt.Sprintf("account creation is disabled, cannot provision %s", username),
	}
}
