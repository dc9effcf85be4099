package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError(t *testing.T) {
	t.Run("Error returns formatted string", func(t *testing.T) {
		err := New(ErrCodeNotFound, "Session not found")
		assert.Equal(t, "NOT_FOUND: Session not found", err.Error())
	})

	t.Run("Error with cause includes cause", func(t *testing.T) {
		cause := errors.New("database connection failed")
		err := Wrap(ErrCodeInternal, "Store failure", cause)
		assert.Contains(t, err.Error(), "INTERNAL_ERROR")
		assert.Contains(t, err.Error(), "Store failure")
		assert.Contains(t, err.Error(), "database connection failed")
	})

	t.Run("WithCause adds cause to error", func(t *testing.T) {
		cause := errors.New("original error")
		err := New(ErrCodeInternal, "Something went wrong").WithCause(cause)
		assert.Equal(t, cause, err.Unwrap())
	})

	t.Run("WithDetails adds details to error", func(t *testing.T) {
		details := map[string]string{"field": "guestId", "reason": "invalid format"}
		err := New(ErrCodeValidation, "Validation failed").WithDetails(details)
		assert.Equal(t, details, err.Details)
	})
}

func TestErrorConstructors(t *testing.T) {
	tests := []struct {
		name         string
		constructor  func() *AppError
		expectedCode ErrorCode
	}{
		{"Unauthorized", func() *AppError { return Unauthorized("test") }, ErrCodeUnauthorized},
		{"Forbidden", func() *AppError { return Forbidden("test") }, ErrCodeForbidden},
		{"InvalidToken", func() *AppError { return InvalidToken("test") }, ErrCodeInvalidToken},
		{"NotFound", func() *AppError { return NotFound("Session") }, ErrCodeNotFound},
		{"Conflict", func() *AppError { return Conflict("test") }, ErrCodeConflict},
		{"InvalidState", func() *AppError { return InvalidState("test") }, ErrCodeInvalidState},
		{"SelfInvite", func() *AppError { return SelfInvite() }, ErrCodeSelfInvite},
		{"DuplicateSession", func() *AppError { return DuplicateSession("s-1", "room-1") }, ErrCodeDuplicateSession},
		{"ValidationError", func() *AppError { return ValidationError("test") }, ErrCodeValidation},
		{"InvalidInput", func() *AppError { return InvalidInput("guestId", "invalid") }, ErrCodeInvalidInput},
		{"MissingRequired", func() *AppError { return MissingRequired("guestId") }, ErrCodeMissingRequired},
		{"RateLimitExceeded", func() *AppError { return RateLimitExceeded() }, ErrCodeRateLimitExceeded},
		{"ServiceUnavailable", func() *AppError { return ServiceUnavailable(nil) }, ErrCodeServiceUnavailable},
		{"Internal", func() *AppError { return Internal("test") }, ErrCodeInternal},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.constructor()
			assert.Equal(t, tc.expectedCode, err.Code)
			assert.NotEmpty(t, err.Message)
		})
	}
}

func TestDuplicateSession(t *testing.T) {
	t.Run("carries the existing session identity", func(t *testing.T) {
		err := DuplicateSession("s-1", "room-1")
		details, ok := err.Details.(DuplicateDetails)
		assert.True(t, ok)
		assert.Equal(t, "s-1", details.SessionID)
		assert.Equal(t, "room-1", details.RoomID)
	})
}

func TestServiceUnavailable(t *testing.T) {
	t.Run("wraps the dependency failure", func(t *testing.T) {
		cause := errors.New("timeout")
		err := ServiceUnavailable(cause)
		assert.Equal(t, ErrCodeServiceUnavailable, err.Code)
		assert.ErrorIs(t, err, cause)
	})
}

func TestIsAppError(t *testing.T) {
	t.Run("returns true for AppError", func(t *testing.T) {
		err := New(ErrCodeNotFound, "test")
		assert.True(t, IsAppError(err))
	})

	t.Run("returns false for standard error", func(t *testing.T) {
		err := errors.New("standard error")
		assert.False(t, IsAppError(err))
	})

	t.Run("returns true for fmt-wrapped AppError", func(t *testing.T) {
		wrapped := fmt.Errorf("accept: %w", Forbidden("nope"))
		assert.True(t, IsAppError(wrapped))
	})
}

func TestAsAppError(t *testing.T) {
	t.Run("extracts AppError", func(t *testing.T) {
		original := New(ErrCodeNotFound, "Session not found")
		extracted, ok := AsAppError(original)
		assert.True(t, ok)
		assert.Equal(t, original, extracted)
	})

	t.Run("returns false for non-AppError", func(t *testing.T) {
		err := errors.New("standard error")
		extracted, ok := AsAppError(err)
		assert.False(t, ok)
		assert.Nil(t, extracted)
	})
}

func TestGetCode(t *testing.T) {
	t.Run("returns code for AppError", func(t *testing.T) {
		err := New(ErrCodeNotFound, "test")
		assert.Equal(t, ErrCodeNotFound, GetCode(err))
	})

	t.Run("returns ErrCodeInternal for standard error", func(t *testing.T) {
		err := errors.New("standard error")
		assert.Equal(t, ErrCodeInternal, GetCode(err))
	})
}

func TestIs(t *testing.T) {
	assert.True(t, Is(InvalidState("x"), ErrCodeInvalidState))
	assert.False(t, Is(InvalidState("x"), ErrCodeForbidden))
	assert.False(t, Is(errors.New("plain"), ErrCodeInvalidState))
}

func TestNotFoundMessage(t *testing.T) {
	t.Run("formats resource name correctly", func(t *testing.T) {
		err := NotFound("Session")
		assert.Equal(t, "Session not found", err.Message)

		err = NotFound("User")
		assert.Equal(t, "User not found", err.Message)
	})
}
