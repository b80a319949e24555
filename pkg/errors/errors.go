package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Standard error types
var (
	ErrConfiguration          = errors.New("configuration error")
	ErrImageProcessing        = errors.New("image processing error")
	ErrRecognitionUnavailable = errors.New("recognition engine unavailable")
	ErrRecognitionTimeout     = errors.New("recognition engine timeout")
	ErrBadRequest             = errors.New("bad request")
	ErrNotFound               = errors.New("resource not found")
	ErrValidation             = errors.New("validation error")
	ErrInternal               = errors.New("internal server error")
)

// AppError represents an application error with context
type AppError struct {
	Err        error             `json:"-"`
	Message    string            `json:"message"`
	Code       string            `json:"code"`
	StatusCode int               `json:"status_code"`
	Details    map[string]string `json:"details,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError
func New(code string, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// Wrap wraps an error with additional context
func Wrap(err error, code string, message string, statusCode int) *AppError {
	return &AppError{
		Err:        err,
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// WithDetails adds details to an AppError
func (e *AppError) WithDetails(details map[string]string) *AppError {
	e.Details = details
	return e
}

// Common error constructors

// Configuration signals an invalid pipeline/schema configuration supplied by
// the caller (unknown step name, malformed schema). Client-facing 400.
func Configuration(message string) *AppError {
	return &AppError{
		Err:        ErrConfiguration,
		Code:       "CONFIGURATION_ERROR",
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

// ImageProcessing signals a corrupt or undecodable image, or a pipeline step
// failure without a safe fallback. Client-facing 422.
func ImageProcessing(message string, err error) *AppError {
	return &AppError{
		Err:        errors.Join(ErrImageProcessing, err),
		Code:       "IMAGE_PROCESSING_ERROR",
		Message:    message,
		StatusCode: http.StatusUnprocessableEntity,
	}
}

// RecognitionUnavailable signals that the recognition engine cannot be
// reached or has not finished initializing.
func RecognitionUnavailable(err error) *AppError {
	return &AppError{
		Err:        errors.Join(ErrRecognitionUnavailable, err),
		Code:       "RECOGNITION_UNAVAILABLE",
		Message:    "recognition engine is not available",
		StatusCode: http.StatusServiceUnavailable,
	}
}

// RecognitionTimeout signals that the recognition engine exceeded its
// configured deadline.
func RecognitionTimeout(err error) *AppError {
	return &AppError{
		Err:        errors.Join(ErrRecognitionTimeout, err),
		Code:       "RECOGNITION_TIMEOUT",
		Message:    "recognition engine timed out",
		StatusCode: http.StatusGatewayTimeout,
	}
}

func BadRequest(message string) *AppError {
	return &AppError{
		Err:        ErrBadRequest,
		Code:       "BAD_REQUEST",
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

func NotFound(resource string) *AppError {
	return &AppError{
		Err:        ErrNotFound,
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		StatusCode: http.StatusNotFound,
	}
}

func Internal(message string) *AppError {
	return &AppError{
		Err:        ErrInternal,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
	}
}

func Validation(details map[string]string) *AppError {
	return &AppError{
		Err:        ErrValidation,
		Code:       "VALIDATION_ERROR",
		Message:    "validation failed",
		StatusCode: http.StatusBadRequest,
		Details:    details,
	}
}

// Is checks if the error matches a target error
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// IsConfiguration reports whether err is a configuration error
func IsConfiguration(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

// IsImageProcessing reports whether err is an image processing error
func IsImageProcessing(err error) bool {
	return errors.Is(err, ErrImageProcessing)
}

// As attempts to convert an error to a specific type
func As(err error, target any) bool {
	return errors.As(err, target)
}
