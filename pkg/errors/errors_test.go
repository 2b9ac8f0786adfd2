package errors

import (
	"errors"
	"fmt"
	"testing"

	"syncplay/internal/core/domain"
)

func TestAppError_Error(t *testing.T) {
	err := NewAppError(ErrCodeValidation, "test error", 400)
	expected := "VALIDATION_ERROR: test error"
	if err.Error() != expected {
		t.Errorf("Error() = %v, want %v", err.Error(), expected)
	}
}

func TestAppError_WithCause(t *testing.T) {
	originalErr := errors.New("original error")
	err := WrapError(originalErr, ErrCodeInternal, "wrapped error", 500)

	if err.Cause != originalErr {
		t.Errorf("Cause = %v, want %v", err.Cause, originalErr)
	}

	// Check error message includes cause
	errorMsg := err.Error()
	if !contains(errorMsg, "original error") {
		t.Errorf("Error() should contain cause, got: %v", errorMsg)
	}
}

func TestAppError_WithContext(t *testing.T) {
	err := NewAppError(ErrCodeValidation, "test error", 400)
	err.WithContext("field", "value").WithContext("count", 42)

	if err.Context["field"] != "value" {
		t.Errorf("Context[field] = %v, want 'value'", err.Context["field"])
	}
	if err.Context["count"] != 42 {
		t.Errorf("Context[count] = %v, want 42", err.Context["count"])
	}
}

func TestNewValidationError(t *testing.T) {
	err := NewValidationError("missing position")
	if err.Code != ErrCodeValidation {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeValidation)
	}
	if err.HTTPStatus != 400 {
		t.Errorf("HTTPStatus = %v, want 400", err.HTTPStatus)
	}
}

func TestNewNotFoundError(t *testing.T) {
	err := NewNotFoundError("room")
	if err.Code != ErrCodeNotFound {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeNotFound)
	}
	if err.HTTPStatus != 404 {
		t.Errorf("HTTPStatus = %v, want 404", err.HTTPStatus)
	}
}

func TestIsAppError(t *testing.T) {
	appErr := NewAppError(ErrCodeValidation, "test", 400)
	regularErr := errors.New("regular error")

	if !IsAppError(appErr) {
		t.Error("IsAppError() should return true for AppError")
	}
	if IsAppError(regularErr) {
		t.Error("IsAppError() should return false for regular error")
	}
}

func TestGetAppError(t *testing.T) {
	appErr := NewAppError(ErrCodeValidation, "test", 400)

	// Direct AppError
	result := GetAppError(appErr)
	if result != appErr {
		t.Errorf("GetAppError() = %v, want %v", result, appErr)
	}

	// Wrapped error
	wrapped := WrapError(errors.New("cause"), ErrCodeInternal, "wrapped", 500)
	result = GetAppError(wrapped)
	if result == nil {
		t.Error("GetAppError() should extract AppError from wrapped error")
	}

	// Regular error
	regularErr := errors.New("regular error")
	result = GetAppError(regularErr)
	if result != nil {
		t.Error("GetAppError() should return nil for regular error")
	}
}

func TestFromDomain(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		code   ErrorCode
		status int
	}{
		{"room not found", domain.ErrRoomNotFound, ErrCodeRoomNotFound, 404},
		{"wrapped name taken", fmt.Errorf("join: %w", domain.ErrNameTaken), ErrCodeNameTaken, 409},
		{"not host", domain.ErrNotHost, ErrCodeNotHost, 403},
		{"unknown participant", domain.ErrParticipantNotFound, ErrCodeNotJoined, 403},
		{"not joined", domain.ErrNotJoined, ErrCodeNotJoined, 403},
		{"rebinding", domain.ErrSessionBound, ErrCodeValidation, 400},
		{"unexpected", errors.New("disk on fire"), ErrCodeInternal, 500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			appErr := FromDomain(tt.err)
			if appErr.Code != tt.code {
				t.Errorf("Code = %v, want %v", appErr.Code, tt.code)
			}
			if appErr.HTTPStatus != tt.status {
				t.Errorf("HTTPStatus = %v, want %v", appErr.HTTPStatus, tt.status)
			}
		})
	}
}

func TestFromDomain_InternalHidesCause(t *testing.T) {
	appErr := FromDomain(errors.New("redis: connection refused"))
	if appErr.Message != "Internal server error" {
		t.Errorf("Message = %q, want generic message", appErr.Message)
	}
	if appErr.Cause == nil {
		t.Error("Cause should be kept for server-side logging")
	}
}

func TestFromDomain_KeepsAppError(t *testing.T) {
	original := NewValidationError("position must be a number")
	if got := FromDomain(fmt.Errorf("decode: %w", original)); got != original {
		t.Errorf("FromDomain() = %v, want %v", got, original)
	}
	if FromDomain(nil) != nil {
		t.Error("FromDomain(nil) should be nil")
	}
}

func contains(s, substr string) bool {
	return len(s) >= len(substr) && (s == substr || len(s) > len(substr) && containsHelper(s, substr))
}

func containsHelper(s, substr string) bool {
	for i := 0; i <= len(s)-len(substr); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
