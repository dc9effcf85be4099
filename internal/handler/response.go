package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/skillsync/session-server/internal/errors"
	"github.com/skillsync/session-server/internal/httputil"
	"github.com/skillsync/session-server/internal/util"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	httputil.WriteJSON(w, status, data)
}

func writeError(w http.ResponseWriter, err error) {
	httputil.WriteError(w, err)
}

func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperrors.ValidationError("Request body is required")
		}
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return apperrors.ValidationError("Request body too large")
		}
		return apperrors.ValidationError("Invalid JSON body")
	}
	return nil
}

// sessionIDParam returns the {sessionId} path parameter once it is a UUID.
func sessionIDParam(r *http.Request) (string, error) {
	sessionID := chi.URLParam(r, "sessionId")
	if !util.IsValidUUID(sessionID) {
		return "", apperrors.InvalidInput("sessionId", "must be a UUID")
	}
	return sessionID, nil
}
