package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/skillsync/session-server/internal/errors"
	"github.com/skillsync/session-server/internal/middleware"
	"github.com/skillsync/session-server/internal/realtime"
)

// ChannelRegistry registers and removes a user's real-time channels.
type ChannelRegistry interface {
	Subscribe(userID string) *realtime.Client
	Unsubscribe(client *realtime.Client)
}

type EventsHandler struct {
	broker            ChannelRegistry
	heartbeatInterval time.Duration
}

func NewEventsHandler(broker ChannelRegistry) *EventsHandler {
	return &EventsHandler{
		broker:            broker,
		heartbeatInterval: realtime.HeartbeatInterval,
	}
}

// GET /v1/events
func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		writeError(w, apperrors.Unauthorized("Unauthorized"))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, apperrors.Internal("Streaming not supported"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	client := h.broker.Subscribe(userID)
	defer h.broker.Unsubscribe(client)

	log.Info().
		Str("userId", userID).
		Msg("sse connection established")

	if err := h.sendEvent(w, flusher, "connected", map[string]any{
		"userId": userID,
	}); err != nil {
		return
	}

	ctx := r.Context()
	heartbeat := time.NewTicker(h.heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().
				Str("userId", userID).
				Msg("sse connection closed by client")
			return

		case <-client.Done:
			log.Info().
				Str("userId", userID).
				Msg("sse connection closed by broker")
			return

		case event := <-client.Events:
			if err := h.sendRawEvent(w, flusher, event); err != nil {
				log.Error().Err(err).Msg("failed to send event")
				return
			}

		case <-heartbeat.C:
			if _, err := fmt.Fprintf(w, ": ping\n\n"); err != nil {
				log.Debug().
					Str("userId", userID).
					Msg("heartbeat failed, closing connection")
				return
			}
			flusher.Flush()
		}
	}
}

func (h *EventsHandler) sendEvent(w http.ResponseWriter, flusher http.Flusher, eventType string, data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	return h.sendRawEvent(w, flusher, realtime.Event{Type: eventType, Data: jsonData})
}

func (h *EventsHandler) sendRawEvent(w http.ResponseWriter, flusher http.Flusher, event realtime.Event) error {
	if _, err := fmt.Fprintf(w, "event: %s\n", event.Type); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", event.Data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
