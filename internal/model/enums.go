package model

type SessionStatus string

const (
	SessionStatusPending  SessionStatus = "pending"
	SessionStatusAccepted SessionStatus = "accepted"
	SessionStatusDeclined SessionStatus = "declined"
	SessionStatusActive   SessionStatus = "active"
	SessionStatusEnded    SessionStatus = "ended"
)

// LiveStatuses are the statuses that count toward the one-live-session-per-pair rule.
var LiveStatuses = []SessionStatus{SessionStatusPending, SessionStatusAccepted, SessionStatusActive}

// OngoingStatuses are listed by the active sessions query.
var OngoingStatuses = []SessionStatus{SessionStatusAccepted, SessionStatusActive}

// TerminalStatuses are listed by the history query.
var TerminalStatuses = []SessionStatus{SessionStatusEnded, SessionStatusDeclined}

// IsLive reports whether s blocks a new session between the same pair.
func (s SessionStatus) IsLive() bool {
	for _, live := range LiveStatuses {
		if s == live {
			return true
		}
	}
	return false
}

func (s SessionStatus) IsTerminal() bool {
	return s == SessionStatusEnded || s == SessionStatusDeclined
}

// CanTransitionTo reports whether next is reachable from s in one step.
func (s SessionStatus) CanTransitionTo(next SessionStatus) bool {
	switch s {
	case SessionStatusPending:
		return next == SessionStatusAccepted || next == SessionStatusDeclined
	case SessionStatusAccepted:
		return next == SessionStatusActive || next == SessionStatusEnded
	case SessionStatusActive:
		return next == SessionStatusEnded
	default:
		return false
	}
}

type Role string

const (
	RoleHost   Role = "host"
	RoleGuest  Role = "guest"
	RoleSystem Role = "system"
)
