package service

import (
	"time"

	"github.com/skillsync/session-server/internal/model"
)

// Lifecycle events pushed to a user's real-time channels.
const (
	EventSessionInvite     = "session_invite"
	EventSessionAccepted   = "session_accepted"
	EventSessionDeclined   = "session_declined"
	EventSessionUserJoined = "session_user_joined"
	EventSessionEnded      = "session_ended"
)

type InvitePayload struct {
	SessionID string            `json:"sessionId"`
	Host      model.UserSummary `json:"host"`
	Topic     string            `json:"topic"`
	CreatedAt time.Time         `json:"createdAt"`
}

type AcceptedPayload struct {
	SessionID string              `json:"sessionId"`
	Guest     model.UserSummary   `json:"guest"`
	Status    model.SessionStatus `json:"status"`
}

type DeclinedPayload struct {
	SessionID string              `json:"sessionId"`
	Status    model.SessionStatus `json:"status"`
}

type UserJoinedPayload struct {
	SessionID   string              `json:"sessionId"`
	UserType    model.Role          `json:"userType"`
	HostJoined  bool                `json:"hostJoined"`
	GuestJoined bool                `json:"guestJoined"`
	Status      model.SessionStatus `json:"status"`
}

type EndedPayload struct {
	SessionID string     `json:"sessionId"`
	EndedBy   model.Role `json:"endedBy"`
	EndedAt   *time.Time `json:"endedAt"`
}
