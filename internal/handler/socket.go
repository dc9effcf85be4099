package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	apperrors "github.com/skillsync/session-server/internal/errors"
	"github.com/skillsync/session-server/internal/middleware"
	"github.com/skillsync/session-server/internal/realtime"
	"github.com/skillsync/session-server/internal/service"
)

const (
	wsWriteWait    = 10 * time.Second
	wsPongWait     = 70 * time.Second
	wsPingPeriod   = 30 * time.Second
	wsMaxFrameSize = 8 << 10
	wsReplyBuffer  = 16
)

type SignalRelay interface {
	Relay(ctx context.Context, senderID string, signal service.Signal) error
}

// wsEnvelope is the frame shape in both directions.
type wsEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type wsSignalData struct {
	SessionID string `json:"sessionId"`
	Reason    string `json:"reason,omitempty"`
}

type wsErrorData struct {
	Code    apperrors.ErrorCode `json:"code"`
	Message string              `json:"message"`
	Signal  string              `json:"signal,omitempty"`
}

type wsConn struct {
	conn      *websocket.Conn
	userID    string
	channel   *realtime.Client
	replies   chan []byte
	closeOnce sync.Once
}

func (c *wsConn) trySend(payload []byte) bool {
	select {
	case c.replies <- payload:
		return true
	default:
		return false
	}
}

func (c *wsConn) close() {
	c.closeOnce.Do(func() {
		_ = c.conn.Close()
	})
}

type SocketHandler struct {
	broker   ChannelRegistry
	relay    SignalRelay
	upgrader websocket.Upgrader
}

// NewSocketHandler accepts any origin when allowedOrigins is empty.
func NewSocketHandler(broker ChannelRegistry, relay SignalRelay, allowedOrigins []string) *SocketHandler {
	origins := make(map[string]bool, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		origins[origin] = true
	}

	return &SocketHandler{
		broker: broker,
		relay:  relay,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if len(origins) == 0 {
					return true
				}
				return origins[r.Header.Get("Origin")]
			},
		},
	}
}

// GET /v1/ws
func (h *SocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		writeError(w, apperrors.Unauthorized("Unauthorized"))
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("userId", userID).Msg("ws upgrade failed")
		return
	}

	client := &wsConn{
		conn:    conn,
		userID:  userID,
		channel: h.broker.Subscribe(userID),
		replies: make(chan []byte, wsReplyBuffer),
	}

	log.Info().Str("userId", userID).Msg("ws connection established")

	client.trySend(envelope("connected", map[string]string{"userId": userID}))

	go h.writePump(client)
	h.readPump(r.Context(), client)
}

func (h *SocketHandler) readPump(ctx context.Context, client *wsConn) {
	defer func() {
		log.Info().Str("userId", client.userID).Msg("ws connection closed")
		client.close()
		h.broker.Unsubscribe(client.channel)
	}()

	client.conn.SetReadLimit(wsMaxFrameSize)
	_ = client.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	client.conn.SetPongHandler(func(string) error {
		_ = client.conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	for {
		_, payload, err := client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Str("userId", client.userID).Msg("ws read error")
			}
			return
		}

		var msg wsEnvelope
		if err := json.Unmarshal(payload, &msg); err != nil {
			client.trySend(errorFrame(apperrors.ValidationError("Invalid JSON frame"), ""))
			continue
		}

		if msg.Type == "ping" {
			continue
		}

		var data wsSignalData
		if len(msg.Data) > 0 {
			if err := json.Unmarshal(msg.Data, &data); err != nil {
				client.trySend(errorFrame(apperrors.ValidationError("Invalid signal data"), msg.Type))
				continue
			}
		}

		log.Debug().
			Str("userId", client.userID).
			Str("type", msg.Type).
			Str("sessionId", data.SessionID).
			Msg("ws signal received")

		err = h.relay.Relay(ctx, client.userID, service.Signal{
			Type:      msg.Type,
			SessionID: data.SessionID,
			Reason:    data.Reason,
		})
		if err != nil {
			client.trySend(errorFrame(err, msg.Type))
		}
	}
}

func (h *SocketHandler) writePump(client *wsConn) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		client.close()
	}()

	write := func(messageType int, payload []byte) bool {
		_ = client.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		return client.conn.WriteMessage(messageType, payload) == nil
	}

	for {
		select {
		case <-client.channel.Done:
			_ = client.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			_ = client.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
			return

		case event := <-client.channel.Events:
			payload, err := json.Marshal(wsEnvelope{Type: event.Type, Data: event.Data})
			if err != nil {
				continue
			}
			if !write(websocket.TextMessage, payload) {
				return
			}

		case reply := <-client.replies:
			if !write(websocket.TextMessage, reply) {
				return
			}

		case <-ticker.C:
			if !write(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func envelope(eventType string, data any) []byte {
	raw, _ := json.Marshal(data)
	payload, _ := json.Marshal(wsEnvelope{Type: eventType, Data: raw})
	return payload
}

func errorFrame(err error, signal string) []byte {
	appErr, ok := apperrors.AsAppError(err)
	if !ok {
		log.Error().Err(err).Msg("ws signal relay failed")
		appErr = apperrors.Internal("Signal could not be delivered")
	}
	return envelope("error", wsErrorData{
		Code:    appErr.Code,
		Message: appErr.Message,
		Signal:  signal,
	})
}
