package handler

import (
	"net/http"
	"strconv"

	"github.com/skillsync/session-server/internal/config"
	apperrors "github.com/skillsync/session-server/internal/errors"
)

// ParseLimit reads ?limit=. Absent means 0, which lets the service apply its
// default. Values above the maximum are capped.
func ParseLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, nil
	}

	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 {
		return 0, apperrors.InvalidInput("limit", "must be a positive integer")
	}
	if limit > config.MaxHistoryLimit {
		limit = config.MaxHistoryLimit
	}
	return limit, nil
}
