package common

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Common application errors
var (
	ErrNotFound     = errors.New("resource not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrInternal     = errors.New("internal error")
	ErrDatabase     = errors.New("database error")
	ErrValidation   = errors.New("validation failed")
)

// Session processing errors
var (
	// ErrExtraction is a per-page failure: inference error, unparseable response or unsupported format.
	ErrExtraction = errors.New("extraction failed")
	// ErrMissingReference means no reference record could be extracted for the session.
	ErrMissingReference = errors.New("no reference record extracted")
	// ErrAssessment is a per-record failure of the external qualitative assessment.
	ErrAssessment = errors.New("assessment unavailable")
	// ErrTransport is a collaborator boundary failure (storage, network, source listing).
	ErrTransport = errors.New("transport failure")
	// ErrInvalidTransition is returned when a stage runs out of order or after a terminal state.
	ErrInvalidTransition = errors.New("invalid state transition")
)

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// ErrorCode returns the AppError code of err, or a code derived from the sentinel it wraps.
func ErrorCode(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrValidation):
		return "INVALID_INPUT"
	case errors.Is(err, ErrMissingReference):
		return "MISSING_REFERENCE"
	case errors.Is(err, ErrTransport):
		return "TRANSPORT_FAILURE"
	default:
		return "INTERNAL"
	}
}

// HTTPStatus maps an error class onto the status code returned by the API.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrMissingReference):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrTransport), errors.Is(err, ErrDatabase):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func InvalidInputf(format string, args ...any) error {
	return NewAppError("INVALID_INPUT", fmt.Sprintf(format, args...), ErrInvalidInput)
}

func NotFoundf(format string, args ...any) error {
	return NewAppError("NOT_FOUND", fmt.Sprintf(format, args...), ErrNotFound)
}

// Transport wraps a collaborator failure so it is classified as ErrTransport.
func Transport(message string, cause error) error {
	return NewAppError("TRANSPORT_FAILURE", message, errors.Join(ErrTransport, cause))
}
