package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/skillsync/session-server/internal/errors"
	"github.com/skillsync/session-server/internal/model"
)

func TestSessionService_Relay(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "jitsi-secret")
	session := f.accepted(t)

	tests := []struct {
		name      string
		sender    string
		signal    Signal
		recipient string
		relayed   string
		from      model.Role
	}{
		{
			name:      "host announces the room",
			sender:    aliceID,
			signal:    Signal{Type: SignalModeratorJoined, SessionID: session.ID},
			recipient: bobID,
			relayed:   SignalModeratorReady,
			from:      model.RoleHost,
		},
		{
			name:      "guest arrives",
			sender:    bobID,
			signal:    Signal{Type: SignalGuestJoined, SessionID: session.ID},
			recipient: aliceID,
			relayed:   SignalGuestReady,
			from:      model.RoleGuest,
		},
		{
			name:      "either party hangs up",
			sender:    bobID,
			signal:    Signal{Type: SignalMeetingEnded, SessionID: session.ID, Reason: "left"},
			recipient: aliceID,
			relayed:   SignalMeetingTerminated,
			from:      model.RoleGuest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, f.svc.Relay(ctx, tt.sender, tt.signal))

			event := f.notifier.last()
			assert.Equal(t, tt.recipient, event.UserID)
			assert.Equal(t, tt.relayed, event.Type)
			payload := event.Payload.(RelayedSignal)
			assert.Equal(t, session.ID, payload.SessionID)
			assert.Equal(t, tt.from, payload.From)
			assert.Equal(t, tt.signal.Reason, payload.Reason)
		})
	}

	t.Run("relaying never changes session state", func(t *testing.T) {
		view, err := f.svc.Get(ctx, session.ID, aliceID)
		require.NoError(t, err)
		assert.Equal(t, model.SessionStatusAccepted, view.Status)
		assert.False(t, view.HostJoined)
	})

	t.Run("rejects", func(t *testing.T) {
		cases := []struct {
			name   string
			sender string
			signal Signal
			code   apperrors.ErrorCode
		}{
			{"third party", carolID, Signal{Type: SignalMeetingEnded, SessionID: session.ID}, apperrors.ErrCodeForbidden},
			{"guest posing as moderator", bobID, Signal{Type: SignalModeratorJoined, SessionID: session.ID}, apperrors.ErrCodeForbidden},
			{"host posing as guest", aliceID, Signal{Type: SignalGuestJoined, SessionID: session.ID}, apperrors.ErrCodeForbidden},
			{"unknown type", aliceID, Signal{Type: "dance", SessionID: session.ID}, apperrors.ErrCodeInvalidInput},
			{"missing session", aliceID, Signal{Type: SignalMeetingEnded}, apperrors.ErrCodeMissingRequired},
			{"malformed session id", aliceID, Signal{Type: SignalGuestJoined, SessionID: "x"}, apperrors.ErrCodeInvalidInput},
			{"unknown session", aliceID, Signal{Type: SignalMeetingEnded, SessionID: "66666666-6666-4666-8666-666666666666"}, apperrors.ErrCodeNotFound},
		}

		for _, c := range cases {
			t.Run(c.name, func(t *testing.T) {
				before := len(f.notifier.sent())
				err := f.svc.Relay(ctx, c.sender, c.signal)
				requireCode(t, err, c.code)
				assert.Len(t, f.notifier.sent(), before)
			})
		}
	})

	t.Run("malformed session id never reaches the store", func(t *testing.T) {
		f.sessions.err = errors.New("invalid input syntax for type uuid")
		defer func() { f.sessions.err = nil }()

		err := f.svc.Relay(ctx, aliceID, Signal{Type: SignalMeetingEnded, SessionID: "not-a-session"})
		requireCode(t, err, apperrors.ErrCodeInvalidInput)
	})
}
