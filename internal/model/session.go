package model

import (
	"math"
	"time"
)

const DefaultTopic = "Learning Session"

type Session struct {
	ID          string        `db:"id" json:"id"`
	RoomID      string        `db:"room_id" json:"roomId"`
	HostID      string        `db:"host_id" json:"hostId"`
	GuestID     string        `db:"guest_id" json:"guestId"`
	Status      SessionStatus `db:"status" json:"status"`
	HostJoined  bool          `db:"host_joined" json:"hostJoined"`
	GuestJoined bool          `db:"guest_joined" json:"guestJoined"`
	Topic       string        `db:"topic" json:"topic"`
	HostToken   string        `db:"host_token" json:"-"`
	GuestToken  string        `db:"guest_token" json:"-"`
	HostURL     string        `db:"host_url" json:"-"`
	GuestURL    string        `db:"guest_url" json:"-"`
	PublicURL   string        `db:"public_url" json:"-"`
	Domain      string        `db:"domain" json:"-"`
	CreatedAt   time.Time     `db:"created_at" json:"createdAt"`
	StartedAt   *time.Time    `db:"started_at" json:"startedAt,omitempty"`
	EndedAt     *time.Time    `db:"ended_at" json:"endedAt,omitempty"`
	UpdatedAt   time.Time     `db:"updated_at" json:"updatedAt"`
}

type CreateSessionParams struct {
	RoomID     string
	HostID     string
	GuestID    string
	Topic      string
	HostToken  string
	GuestToken string
	HostURL    string
	GuestURL   string
	PublicURL  string
	Domain     string
}

// RoleOf returns the caller's role in the session and false when the caller is not a party.
func (s *Session) RoleOf(userID string) (Role, bool) {
	switch userID {
	case s.HostID:
		return RoleHost, true
	case s.GuestID:
		return RoleGuest, true
	}
	return "", false
}

// Counterpart returns the other party's id.
func (s *Session) Counterpart(role Role) string {
	if role == RoleHost {
		return s.GuestID
	}
	return s.HostID
}

// DurationMinutes is nil unless the session both started and ended.
func (s *Session) DurationMinutes() *int {
	if s.StartedAt == nil || s.EndedAt == nil {
		return nil
	}
	minutes := int(math.Round(s.EndedAt.Sub(*s.StartedAt).Minutes()))
	return &minutes
}
