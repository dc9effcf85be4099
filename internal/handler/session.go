package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/skillsync/session-server/internal/errors"
	"github.com/skillsync/session-server/internal/middleware"
	"github.com/skillsync/session-server/internal/model"
	"github.com/skillsync/session-server/internal/util"
)

type SessionLifecycle interface {
	Start(ctx context.Context, requesterID, targetID, topic string) (*model.SessionView, error)
	Accept(ctx context.Context, sessionID, requesterID string) (*model.SessionView, error)
	Decline(ctx context.Context, sessionID, requesterID string) (*model.SessionView, error)
	Join(ctx context.Context, sessionID, requesterID string) (*model.SessionView, error)
	End(ctx context.Context, sessionID, requesterID string) (*model.SessionView, error)
	Get(ctx context.Context, sessionID, requesterID string) (*model.SessionView, error)
	ListPendingInvites(ctx context.Context, userID string) ([]model.SessionView, error)
	ListActive(ctx context.Context, userID string) ([]model.SessionView, error)
	ListHistory(ctx context.Context, userID string, limit int) ([]model.SessionView, error)
}

type SessionHandler struct {
	sessions SessionLifecycle
}

func NewSessionHandler(sessions SessionLifecycle) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

func (h *SessionHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/start", h.Start)
	r.Get("/pending", h.ListPending)
	r.Get("/active", h.ListActive)
	r.Get("/history", h.ListHistory)

	r.Route("/{sessionId}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Post("/accept", h.transition(h.sessions.Accept))
		r.Post("/decline", h.transition(h.sessions.Decline))
		r.Post("/join", h.transition(h.sessions.Join))
		r.Post("/end", h.transition(h.sessions.End))
	})

	return r
}

type startSessionRequest struct {
	GuestID string `json:"guestId"`
	Topic   string `json:"topic"`
}

type sessionResponse struct {
	Session *model.SessionView `json:"session"`
}

type sessionsResponse struct {
	Sessions []model.SessionView `json:"sessions"`
}

type invitesResponse struct {
	Invites []model.SessionView `json:"invites"`
}

// POST /v1/sessions/start
func (h *SessionHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	req.GuestID = strings.TrimSpace(req.GuestID)
	if req.GuestID == "" {
		writeError(w, apperrors.MissingRequired("guestId"))
		return
	}
	if !util.IsValidUUID(req.GuestID) {
		writeError(w, apperrors.InvalidInput("guestId", "must be a UUID"))
		return
	}

	userID := middleware.GetUserID(r.Context())
	view, err := h.sessions.Start(r.Context(), userID, req.GuestID, req.Topic)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, sessionResponse{Session: view})
}

// GET /v1/sessions/pending
func (h *SessionHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	invites, err := h.sessions.ListPendingInvites(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, invitesResponse{Invites: nonNil(invites)})
}

// GET /v1/sessions/active
func (h *SessionHandler) ListActive(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.sessions.ListActive(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionsResponse{Sessions: nonNil(sessions)})
}

// GET /v1/sessions/history?limit=n
func (h *SessionHandler) ListHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := ParseLimit(r)
	if err != nil {
		writeError(w, err)
		return
	}

	sessions, err := h.sessions.ListHistory(r.Context(), middleware.GetUserID(r.Context()), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionsResponse{Sessions: nonNil(sessions)})
}

// GET /v1/sessions/{sessionId}
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	h.transition(h.sessions.Get)(w, r)
}

type sessionAction func(ctx context.Context, sessionID, requesterID string) (*model.SessionView, error)

func (h *SessionHandler) transition(action sessionAction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID, err := sessionIDParam(r)
		if err != nil {
			writeError(w, err)
			return
		}

		view, err := action(r.Context(), sessionID, middleware.GetUserID(r.Context()))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sessionResponse{Session: view})
	}
}

func nonNil(views []model.SessionView) []model.SessionView {
	if views == nil {
		return []model.SessionView{}
	}
	return views
}
