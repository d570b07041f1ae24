// Package errors provides the service error type and its JSON rendering.
package errors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
)

// Error codes.
const (
	// Client errors (4xx).
	CodeValidation     = "VALIDATION_ERROR"
	CodeInvalidRequest = "INVALID_REQUEST"
	CodeUnauthorized   = "UNAUTHORIZED"
	CodeRateLimited    = "RATE_LIMITED"

	// Server errors (5xx).
	CodeInternal    = "INTERNAL_ERROR"
	CodeUnavailable = "SERVICE_UNAVAILABLE"
	CodeTimeout     = "TIMEOUT"
	CodeSearchError = "SEARCH_ERROR"
	CodeCacheError  = "CACHE_ERROR"
	CodeBusError    = "BUS_ERROR"
)

// detailRetryAfter carries the Retry-After seconds of a rate limited error.
const detailRetryAfter = "retry_after"

// AppError is an error with a stable code for API clients.
type AppError struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
	Err     error             `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the HTTP status code for this error.
func (e *AppError) HTTPStatus() int {
	switch e.Code {
	case CodeValidation, CodeInvalidRequest:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeUnavailable:
		return http.StatusServiceUnavailable
	case CodeTimeout:
		return http.StatusGatewayTimeout
	case CodeSearchError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// New creates a new AppError.
func New(code, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// Wrap wraps err with a code and message.
func Wrap(code, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

// WithDetail adds a single detail to the error.
func (e *AppError) WithDetail(key, value string) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// ValidationError creates a validation error.
func ValidationError(message string) *AppError {
	return New(CodeValidation, message)
}

// InvalidRequestError is for bodies that cannot be decoded at all.
func InvalidRequestError(message string) *AppError {
	return New(CodeInvalidRequest, message)
}

// UnauthorizedError creates an unauthorized error.
func UnauthorizedError() *AppError {
	return New(CodeUnauthorized, "unauthorized")
}

// RateLimitedError creates a rate limited error with retry information.
func RateLimitedError(retryAfterSeconds int) *AppError {
	err := New(CodeRateLimited, "rate limit exceeded")
	if retryAfterSeconds > 0 {
		err = err.WithDetail(detailRetryAfter, strconv.Itoa(retryAfterSeconds))
	}
	return err
}

// InternalError creates an internal error.
func InternalError(message string, err error) *AppError {
	return Wrap(CodeInternal, message, err)
}

// SearchError creates a web search provider error.
func SearchError(message string, err error) *AppError {
	return Wrap(CodeSearchError, message, err)
}

// CacheError creates a result cache error.
func CacheError(message string, err error) *AppError {
	return Wrap(CodeCacheError, message, err)
}

// BusError creates an event bus error.
func BusError(message string, err error) *AppError {
	return Wrap(CodeBusError, message, err)
}

// TimeoutError creates a timeout error for a specific operation.
func TimeoutError(operation string) *AppError {
	message := "operation timed out"
	if operation != "" {
		message = fmt.Sprintf("%s timed out", operation)
	}
	return New(CodeTimeout, message)
}

// ServiceUnavailableError creates a service unavailable error.
func ServiceUnavailableError(service string) *AppError {
	message := "service unavailable"
	if service != "" {
		message = fmt.Sprintf("%s is unavailable", service)
	}
	return New(CodeUnavailable, message)
}

// IsValidation reports whether err is a validation error.
func IsValidation(err error) bool {
	return HasCode(err, CodeValidation)
}

// HasCode reports whether err, or any error it wraps, is an AppError with
// the given code.
func HasCode(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// ErrorResponse is the JSON error body.
type ErrorResponse struct {
	Error   string            `json:"error"`
	Code    string            `json:"code"`
	Message string            `json:"message,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

// WriteJSON writes a JSON error response.
func WriteJSON(w http.ResponseWriter, status int, resp ErrorResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Headers are already sent.
	_ = json.NewEncoder(w).Encode(resp)
}

// WriteError writes err as a JSON response. AppErrors, also when wrapped,
// keep their code and message; anything else is reported as an internal
// error without details.
func WriteError(w http.ResponseWriter, err error) {
	var appErr *AppError
	switch {
	case errors.As(err, &appErr):
	case errors.Is(err, context.DeadlineExceeded):
		appErr = TimeoutError("request")
	default:
		WriteJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error:   "internal server error",
			Code:    CodeInternal,
			Message: "An unexpected error occurred",
		})
		return
	}

	if retry := appErr.Details[detailRetryAfter]; retry != "" {
		w.Header().Set("Retry-After", retry)
	}

	status := appErr.HTTPStatus()
	message := appErr.Message
	if status >= http.StatusInternalServerError && appErr.Code == CodeInternal {
		// Internal messages may name files or hosts.
		message = "An unexpected error occurred"
	}
	WriteJSON(w, status, ErrorResponse{
		Error:   message,
		Code:    appErr.Code,
		Message: message,
		Details: appErr.Details,
	})
}
