package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/skillsync/session-server/internal/audit"
	apperrors "github.com/skillsync/session-server/internal/errors"
	"github.com/skillsync/session-server/internal/httputil"
)

type contextKey string

const UserIDContextKey contextKey = "userID"

func GetUserID(ctx context.Context) string {
	if userID, ok := ctx.Value(UserIDContextKey).(string); ok {
		return userID
	}
	return ""
}

func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDContextKey, userID)
}

const requestUserContextKey contextKey = "requestUser"

// requestUser lets RequestLogger see the user id that AuthMiddleware
// attaches to a request derived further down the chain.
type requestUser struct {
	id string
}

func withRequestUser(ctx context.Context) (context.Context, *requestUser) {
	holder := &requestUser{}
	return context.WithValue(ctx, requestUserContextKey, holder), holder
}

func recordRequestUser(ctx context.Context, userID string) {
	if holder, ok := ctx.Value(requestUserContextKey).(*requestUser); ok {
		holder.id = userID
	}
}

type TokenVerifier interface {
	Verify(token string) (string, error)
}

type AuthMiddleware struct {
	verifier TokenVerifier
}

func NewAuthMiddleware(verifier TokenVerifier) *AuthMiddleware {
	return &AuthMiddleware{verifier: verifier}
}

func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractToken(r)
		if token == "" {
			httputil.WriteError(w, apperrors.Unauthorized("Missing authentication token"))
			return
		}

		userID, err := m.verifier.Verify(token)
		if err != nil {
			log.Warn().Err(err).Msg("auth middleware: invalid token attempt")
			audit.LogFromRequest(r, audit.Event{Type: audit.EventAuthFailure})
			httputil.WriteError(w, apperrors.InvalidToken("The authentication token is invalid or expired"))
			return
		}

		recordRequestUser(r.Context(), userID)
		next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
	})
}

// extractToken prefers the Authorization header; EventSource and WebSocket
// clients cannot set headers and pass ?token= instead.
func extractToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}

	return r.URL.Query().Get("token")
}
