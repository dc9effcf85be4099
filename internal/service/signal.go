package service

import (
	"context"

	"github.com/skillsync/session-server/internal/audit"
	apperrors "github.com/skillsync/session-server/internal/errors"
	"github.com/skillsync/session-server/internal/model"
	"github.com/skillsync/session-server/internal/util"
)

// Meeting signals sent by a client over its socket.
const (
	SignalModeratorJoined = "moderator_joined"
	SignalGuestJoined     = "guest_joined"
	SignalMeetingEnded    = "meeting_ended"
)

// Signals relayed to the other party.
const (
	SignalModeratorReady    = "moderator_ready"
	SignalGuestReady        = "guest_ready"
	SignalMeetingTerminated = "meeting_terminated"
)

type Signal struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	Reason    string `json:"reason,omitempty"`
}

type RelayedSignal struct {
	SessionID string     `json:"sessionId"`
	From      model.Role `json:"from"`
	Reason    string     `json:"reason,omitempty"`
}

// Relay forwards a meeting signal to the sender's counterpart. Only a party
// of the session may signal, and each join signal only from its own role.
// Relaying does not change session state.
func (s *SessionService) Relay(ctx context.Context, senderID string, signal Signal) error {
	relayed, ok := relayedType(signal.Type)
	if !ok {
		return apperrors.InvalidInput("type", "unknown signal")
	}
	if signal.SessionID == "" {
		return apperrors.MissingRequired("sessionId")
	}
	if !util.IsValidUUID(signal.SessionID) {
		return apperrors.InvalidInput("sessionId", "must be a UUID")
	}

	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()

	session, err := s.findSession(storeCtx, signal.SessionID)
	if err != nil {
		return err
	}

	role, ok := session.RoleOf(senderID)
	if !ok || !roleMaySend(role, signal.Type) {
		audit.Log(ctx, audit.Event{
			Type:      audit.EventSignalRejected,
			UserID:    senderID,
			SessionID: signal.SessionID,
			Details: map[string]interface{}{
				"signal": signal.Type,
			},
		})
		return apperrors.Forbidden("You cannot send this signal for this session")
	}

	s.notifier.Send(ctx, session.Counterpart(role), relayed, RelayedSignal{
		SessionID: session.ID,
		From:      role,
		Reason:    signal.Reason,
	})
	return nil
}

func relayedType(signalType string) (string, bool) {
	switch signalType {
	case SignalModeratorJoined:
		return SignalModeratorReady, true
	case SignalGuestJoined:
		return SignalGuestReady, true
	case SignalMeetingEnded:
		return SignalMeetingTerminated, true
	}
	return "", false
}

func roleMaySend(role model.Role, signalType string) bool {
	switch signalType {
	case SignalModeratorJoined:
		return role == model.RoleHost
	case SignalGuestJoined:
		return role == model.RoleGuest
	}
	return true
}
