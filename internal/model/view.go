package model

import "time"

// MeetingView carries only the caller's own credential.
type MeetingView struct {
	Domain    string `json:"domain"`
	URL       string `json:"url"`
	Token     string `json:"token,omitempty"`
	PublicURL string `json:"publicUrl"`
	Fallback  bool   `json:"fallback"`
}

type SessionView struct {
	ID              string        `json:"id"`
	RoomID          string        `json:"roomId"`
	Host            UserSummary   `json:"host"`
	Guest           UserSummary   `json:"guest"`
	Topic           string        `json:"topic"`
	Status          SessionStatus `json:"status"`
	Role            Role          `json:"role,omitempty"`
	HostJoined      bool          `json:"hostJoined"`
	GuestJoined     bool          `json:"guestJoined"`
	CreatedAt       time.Time     `json:"createdAt"`
	StartedAt       *time.Time    `json:"startedAt,omitempty"`
	EndedAt         *time.Time    `json:"endedAt,omitempty"`
	DurationMinutes *int          `json:"durationMinutes"`
	Meeting         *MeetingView  `json:"meeting,omitempty"`
}

// ViewFor projects the session for userID. host and guest may be nil when the
// profile lookup was skipped; the ids are always filled in.
func (s *Session) ViewFor(userID string, host, guest *User) SessionView {
	view := SessionView{
		ID:              s.ID,
		RoomID:          s.RoomID,
		Host:            host.Summary(),
		Guest:           guest.Summary(),
		Topic:           s.Topic,
		Status:          s.Status,
		HostJoined:      s.HostJoined,
		GuestJoined:     s.GuestJoined,
		CreatedAt:       s.CreatedAt,
		StartedAt:       s.StartedAt,
		EndedAt:         s.EndedAt,
		DurationMinutes: s.DurationMinutes(),
	}
	view.Host.ID = s.HostID
	view.Guest.ID = s.GuestID

	role, ok := s.RoleOf(userID)
	if !ok {
		return view
	}
	view.Role = role

	meeting := &MeetingView{
		Domain:    s.Domain,
		PublicURL: s.PublicURL,
	}
	if role == RoleHost {
		meeting.URL = s.HostURL
		meeting.Token = s.HostToken
	} else {
		meeting.URL = s.GuestURL
		meeting.Token = s.GuestToken
	}
	meeting.Fallback = meeting.Token == ""
	if meeting.URL == "" {
		meeting.URL = s.PublicURL
	}
	view.Meeting = meeting
	return view
}
