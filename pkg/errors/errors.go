package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"

	"syncplay/internal/core/domain"
)

// ErrorCode represents application error codes
type ErrorCode string

const (
	ErrCodeMalformedInput     ErrorCode = "MALFORMED_INPUT"
	ErrCodeUnknownMessageType ErrorCode = "UNKNOWN_MESSAGE_TYPE"
	ErrCodeValidation         ErrorCode = "VALIDATION_ERROR"
	ErrCodeNameTaken          ErrorCode = "NAME_TAKEN"
	ErrCodeRoomNotFound       ErrorCode = "ROOM_NOT_FOUND"
	ErrCodeNotHost            ErrorCode = "NOT_HOST"
	ErrCodeNotJoined          ErrorCode = "NOT_JOINED"
	ErrCodeNotFound           ErrorCode = "NOT_FOUND"
	ErrCodeRateLimit          ErrorCode = "RATE_LIMITED"
	ErrCodeInternal           ErrorCode = "INTERNAL_ERROR"
	ErrCodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
)

// AppError represents an application error with code and context
type AppError struct {
	Code       ErrorCode
	Message    string
	HTTPStatus int
	Cause      error
	Context    map[string]interface{}
}

// Error implements error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// NewAppError creates a new application error
func NewAppError(code ErrorCode, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Context:    make(map[string]interface{}),
	}
}

// WrapError wraps an existing error with application error
func WrapError(err error, code ErrorCode, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Cause:      err,
		Context:    make(map[string]interface{}),
	}
}

// Common error constructors
func NewMalformedInputError(message string) *AppError {
	return NewAppError(ErrCodeMalformedInput, message, http.StatusBadRequest)
}

func NewUnknownMessageTypeError(messageType string) *AppError {
	return NewAppError(ErrCodeUnknownMessageType, fmt.Sprintf("Unknown message type: %s", messageType), http.StatusBadRequest).
		WithContext("type", messageType)
}

func NewValidationError(message string) *AppError {
	return NewAppError(ErrCodeValidation, message, http.StatusBadRequest)
}

func NewNameTakenError() *AppError {
	return NewAppError(ErrCodeNameTaken, "User name already taken", http.StatusConflict)
}

func NewRoomNotFoundError() *AppError {
	return NewAppError(ErrCodeRoomNotFound, "Room not found", http.StatusNotFound)
}

func NewNotHostError() *AppError {
	return NewAppError(ErrCodeNotHost, "Only the host can control playback", http.StatusForbidden)
}

func NewNotJoinedError() *AppError {
	return NewAppError(ErrCodeNotJoined, "Join the room first", http.StatusForbidden)
}

func NewNotFoundError(resource string) *AppError {
	return NewAppError(ErrCodeNotFound, fmt.Sprintf("%s not found", resource), http.StatusNotFound)
}

func NewRateLimitError() *AppError {
	return NewAppError(ErrCodeRateLimit, "rate limit exceeded", http.StatusTooManyRequests)
}

func NewInternalError(message string) *AppError {
	return NewAppError(ErrCodeInternal, message, http.StatusInternalServerError)
}

func NewServiceUnavailableError(message string) *AppError {
	return NewAppError(ErrCodeServiceUnavailable, message, http.StatusServiceUnavailable)
}

// FromDomain converts any error into an AppError. Domain sentinels map to
// their protocol codes; everything else becomes a generic internal error
// that keeps the original as its cause.
func FromDomain(err error) *AppError {
	if err == nil {
		return nil
	}
	if appErr := GetAppError(err); appErr != nil {
		return appErr
	}

	switch {
	case stderrors.Is(err, domain.ErrRoomNotFound):
		return NewRoomNotFoundError()
	case stderrors.Is(err, domain.ErrNameTaken):
		return NewNameTakenError()
	case stderrors.Is(err, domain.ErrNotHost):
		return NewNotHostError()
	case stderrors.Is(err, domain.ErrParticipantNotFound), stderrors.Is(err, domain.ErrNotJoined):
		return NewNotJoinedError()
	case stderrors.Is(err, domain.ErrSessionBound):
		return NewValidationError(err.Error())
	}

	return WrapError(err, ErrCodeInternal, "Internal server error", http.StatusInternalServerError)
}

// IsAppError checks if error is an AppError
func IsAppError(err error) bool {
	_, ok := err.(*AppError)
	return ok
}

// GetAppError extracts AppError from error chain
func GetAppError(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return nil
}
