// Package apperror defines the error taxonomy shared by the execution service,
// its HTTP handlers and the history store.
//
// Every error that reaches a handler is either an *AppError (a classified,
// user-safe message) or something unanticipated. Handlers map the former to a
// status code with errors.Is and collapse the latter into a generic 500.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput         = errors.New("invalid input")
	ErrUnsupportedLanguage  = errors.New("unsupported language")
	ErrToolchainUnavailable = errors.New("toolchain unavailable")
	ErrRuntimeFault         = errors.New("runtime fault")
	ErrBusy                 = errors.New("busy")
	ErrNotFound             = errors.New("not found")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrInternal             = errors.New("internal error")
)

type AppError struct {
	Err     error  // actual error
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// InvalidInput is returned for requests that can never be executed, such as
// empty source code. HTTP handlers map it to 400.
func InvalidInput(field, message string) *AppError {
	return &AppError{
		Err:     ErrInvalidInput,
		Message: message,
		Field:   field,
	}
}

func UnsupportedLanguage(key string) *AppError {
	return &AppError{
		Err:     ErrUnsupportedLanguage,
		Message: fmt.Sprintf("Unsupported language: %s", key),
		Field:   "language",
	}
}

// ToolchainUnavailable reports that a language is configured but its compiler
// or interpreter binary is missing on this host.
func ToolchainUnavailable(key string) *AppError {
	return &AppError{
		Err:     ErrToolchainUnavailable,
		Message: fmt.Sprintf("The %s toolchain is not available on this server", key),
	}
}

// RuntimeFault wraps a failure to even start a program. The cause is kept for
// logs; Message is what the caller sees.
func RuntimeFault(message string, cause error) *AppError {
	err := ErrRuntimeFault
	if cause != nil {
		err = fmt.Errorf("%w: %w", ErrRuntimeFault, cause)
	}
	return &AppError{
		Err:     err,
		Message: message,
	}
}

func Busy() *AppError {
	return &AppError{
		Err:     ErrBusy,
		Message: "too many executions in progress, try again shortly",
	}
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func Unauthorized(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthorized,
		Message: message,
	}
}

// Internal hides an unanticipated failure behind a generic message. The
// cause stays in the chain for server-side logs.
func Internal(cause error) *AppError {
	err := ErrInternal
	if cause != nil {
		err = fmt.Errorf("%w: %w", ErrInternal, cause)
	}
	return &AppError{
		Err:     err,
		Message: "An internal error occurred",
	}
}
