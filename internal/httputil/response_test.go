package httputil

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/skillsync/session-server/internal/errors"
)

func TestStatusFromCode(t *testing.T) {
	tests := []struct {
		code apperrors.ErrorCode
		want int
	}{
		{apperrors.ErrCodeSelfInvite, http.StatusBadRequest},
		{apperrors.ErrCodeInvalidInput, http.StatusBadRequest},
		{apperrors.ErrCodeUnauthorized, http.StatusUnauthorized},
		{apperrors.ErrCodeForbidden, http.StatusForbidden},
		{apperrors.ErrCodeNotFound, http.StatusNotFound},
		{apperrors.ErrCodeInvalidState, http.StatusConflict},
		{apperrors.ErrCodeDuplicateSession, http.StatusConflict},
		{apperrors.ErrCodeRateLimitExceeded, http.StatusTooManyRequests},
		{apperrors.ErrCodeServiceUnavailable, http.StatusServiceUnavailable},
	}

	for _, tc := range tests {
		t.Run(string(tc.code), func(t *testing.T) {
			assert.Equal(t, tc.want, StatusFromCode(tc.code))
		})
	}
}

func TestWriteError(t *testing.T) {
	t.Run("writes duplicate session details", func(t *testing.T) {
		rec := httptest.NewRecorder()
		WriteError(rec, apperrors.DuplicateSession("s-1", "room-1"))

		assert.Equal(t, http.StatusConflict, rec.Code)
		var body map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "DUPLICATE_SESSION", body["code"])
		details := body["details"].(map[string]any)
		assert.Equal(t, "s-1", details["sessionId"])
	})

	t.Run("hides unknown errors", func(t *testing.T) {
		rec := httptest.NewRecorder()
		WriteError(rec, errors.New("pq: connection refused"))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.NotContains(t, rec.Body.String(), "pq:")
	})
}
