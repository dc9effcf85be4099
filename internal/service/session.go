package service

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"github.com/skillsync/session-server/internal/audit"
	"github.com/skillsync/session-server/internal/config"
	apperrors "github.com/skillsync/session-server/internal/errors"
	"github.com/skillsync/session-server/internal/meeting"
	"github.com/skillsync/session-server/internal/metrics"
	"github.com/skillsync/session-server/internal/model"
	"github.com/skillsync/session-server/internal/repository"
)

const (
	DefaultHistoryLimit = 20
	DefaultStoreTimeout = 5 * time.Second
	MaxTopicLength      = 200
)

// Notifier pushes an event to every channel a user has open. Delivery is
// best-effort and never reported back.
type Notifier interface {
	Send(ctx context.Context, userID string, eventType string, payload any)
}

type CredentialIssuer interface {
	Issue(roomSeed string, host, guest meeting.Identity) (*meeting.Credentials, error)
}

type SessionServiceConfig struct {
	StoreTimeout time.Duration
	HistoryLimit int
}

type SessionService struct {
	sessionRepo  repository.SessionRepository
	userRepo     repository.UserRepository
	issuer       CredentialIssuer
	notifier     Notifier
	storeTimeout time.Duration
	historyLimit int
	now          func() time.Time
}

func NewSessionService(
	sessionRepo repository.SessionRepository,
	userRepo repository.UserRepository,
	issuer CredentialIssuer,
	notifier Notifier,
	cfg SessionServiceConfig,
) *SessionService {
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = DefaultStoreTimeout
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = DefaultHistoryLimit
	}
	return &SessionService{
		sessionRepo:  sessionRepo,
		userRepo:     userRepo,
		issuer:       issuer,
		notifier:     notifier,
		storeTimeout: cfg.StoreTimeout,
		historyLimit: cfg.HistoryLimit,
		now:          time.Now,
	}
}

func (s *SessionService) Start(ctx context.Context, requesterID, targetID, topic string) (*model.SessionView, error) {
	if requesterID == targetID {
		return nil, apperrors.SelfInvite()
	}

	topic = strings.TrimSpace(topic)
	if topic == "" {
		topic = model.DefaultTopic
	}
	if utf8.RuneCountInString(topic) > MaxTopicLength {
		return nil, apperrors.InvalidInput("topic", "must be at most 200 characters")
	}

	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()

	target, err := s.userRepo.FindByID(storeCtx, targetID)
	if err != nil {
		return nil, s.storeError("find target user", err)
	}
	if target == nil {
		return nil, apperrors.NotFound("User")
	}

	host, err := s.userRepo.FindByID(storeCtx, requesterID)
	if err != nil {
		return nil, s.storeError("find host user", err)
	}
	if host == nil {
		return nil, apperrors.NotFound("User")
	}

	existing, err := s.sessionRepo.FindActiveBetween(storeCtx, requesterID, targetID)
	if err != nil {
		return nil, s.storeError("find active session", err)
	}
	if existing != nil {
		return nil, s.duplicate(ctx, requesterID, existing)
	}

	creds, err := s.issuer.Issue(roomSeed(requesterID, targetID),
		meeting.Identity{Name: host.Name, Email: host.Email},
		meeting.Identity{Name: target.Name, Email: target.Email},
	)
	if err != nil {
		log.Error().Err(err).Msg("issue meeting credentials")
		return nil, apperrors.ServiceUnavailable(err)
	}

	session, err := s.sessionRepo.Create(storeCtx, model.CreateSessionParams{
		RoomID:     creds.RoomID,
		HostID:     requesterID,
		GuestID:    targetID,
		Topic:      topic,
		HostToken:  creds.Host.Token,
		GuestToken: creds.Guest.Token,
		HostURL:    creds.Host.URL,
		GuestURL:   creds.Guest.URL,
		PublicURL:  creds.PublicURL,
		Domain:     creds.Domain,
	})
	if errors.Is(err, repository.ErrDuplicateActivePair) {
		// Lost the race against a concurrent start for the same pair.
		winner, findErr := s.sessionRepo.FindActiveBetween(storeCtx, requesterID, targetID)
		if findErr != nil {
			return nil, s.storeError("find winning session", findErr)
		}
		if winner == nil {
			return nil, apperrors.Conflict("The session changed while starting, please retry")
		}
		return nil, s.duplicate(ctx, requesterID, winner)
	}
	if err != nil {
		return nil, s.storeError("create session", err)
	}

	metrics.RecordTransition("start")
	audit.Log(ctx, audit.Event{
		Type:      audit.EventSessionStart,
		UserID:    requesterID,
		SessionID: session.ID,
		Details: map[string]interface{}{
			"guestId": targetID,
			"roomId":  session.RoomID,
			"signed":  !creds.Degraded(),
		},
	})

	s.notifier.Send(ctx, targetID, EventSessionInvite, InvitePayload{
		SessionID: session.ID,
		Host:      host.Summary(),
		Topic:     session.Topic,
		CreatedAt: session.CreatedAt,
	})

	view := session.ViewFor(requesterID, host, target)
	return &view, nil
}

func (s *SessionService) Accept(ctx context.Context, sessionID, requesterID string) (*model.SessionView, error) {
	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()

	session, err := s.findSession(storeCtx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.GuestID != requesterID {
		s.auditForbidden(ctx, requesterID, sessionID, "accept")
		return nil, apperrors.Forbidden("Only the invited guest can accept this session")
	}
	if !session.Status.CanTransitionTo(model.SessionStatusAccepted) {
		return nil, apperrors.InvalidState("This session is no longer pending")
	}

	accepted, err := s.sessionRepo.Accept(storeCtx, sessionID, s.now())
	if err != nil {
		return nil, s.storeError("accept session", err)
	}
	if accepted == nil {
		return nil, apperrors.InvalidState("This session is no longer pending")
	}

	host, guest, err := s.loadParties(storeCtx, accepted)
	if err != nil {
		return nil, err
	}

	metrics.RecordTransition("accept")
	audit.Log(ctx, audit.Event{
		Type:      audit.EventSessionAccept,
		UserID:    requesterID,
		SessionID: sessionID,
	})

	s.notifier.Send(ctx, accepted.HostID, EventSessionAccepted, AcceptedPayload{
		SessionID: accepted.ID,
		Guest:     guestSummary(accepted, guest),
		Status:    accepted.Status,
	})

	view := accepted.ViewFor(requesterID, host, guest)
	return &view, nil
}

func (s *SessionService) Decline(ctx context.Context, sessionID, requesterID string) (*model.SessionView, error) {
	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()

	session, err := s.findSession(storeCtx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.GuestID != requesterID {
		s.auditForbidden(ctx, requesterID, sessionID, "decline")
		return nil, apperrors.Forbidden("Only the invited guest can decline this session")
	}
	if !session.Status.CanTransitionTo(model.SessionStatusDeclined) {
		return nil, apperrors.InvalidState("This session is no longer pending")
	}

	declined, err := s.sessionRepo.Decline(storeCtx, sessionID, s.now())
	if err != nil {
		return nil, s.storeError("decline session", err)
	}
	if declined == nil {
		return nil, apperrors.InvalidState("This session is no longer pending")
	}

	host, guest, err := s.loadParties(storeCtx, declined)
	if err != nil {
		return nil, err
	}

	metrics.RecordTransition("decline")
	audit.Log(ctx, audit.Event{
		Type:      audit.EventSessionDecline,
		UserID:    requesterID,
		SessionID: sessionID,
	})

	s.notifier.Send(ctx, declined.HostID, EventSessionDeclined, DeclinedPayload{
		SessionID: declined.ID,
		Status:    declined.Status,
	})

	view := declined.ViewFor(requesterID, host, guest)
	return &view, nil
}

// Join marks the caller as present in the meeting. Repeating it is a no-op.
// The host may join while the invite is still pending; the guest only after
// accepting.
func (s *SessionService) Join(ctx context.Context, sessionID, requesterID string) (*model.SessionView, error) {
	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()

	session, err := s.findSession(storeCtx, sessionID)
	if err != nil {
		return nil, err
	}
	role, ok := session.RoleOf(requesterID)
	if !ok {
		s.auditForbidden(ctx, requesterID, sessionID, "join")
		return nil, apperrors.Forbidden("You are not a participant of this session")
	}
	if err := joinableFor(session.Status, role); err != nil {
		return nil, err
	}

	joined, err := s.sessionRepo.Join(storeCtx, sessionID, role, s.now())
	if err != nil {
		return nil, s.storeError("join session", err)
	}
	if joined == nil {
		current, err := s.findSession(storeCtx, sessionID)
		if err != nil {
			return nil, err
		}
		if err := joinableFor(current.Status, role); err != nil {
			return nil, err
		}
		return nil, apperrors.InvalidState("This session can no longer be joined")
	}

	host, guest, err := s.loadParties(storeCtx, joined)
	if err != nil {
		return nil, err
	}

	changed := joined.Status != session.Status || joinedFlag(joined, role) != joinedFlag(session, role)
	if changed {
		metrics.RecordTransition("join")
		if joined.Status == model.SessionStatusActive && session.Status != model.SessionStatusActive {
			metrics.RecordTransition("activate")
		}
		audit.Log(ctx, audit.Event{
			Type:      audit.EventSessionJoin,
			UserID:    requesterID,
			SessionID: sessionID,
			Details: map[string]interface{}{
				"role":   string(role),
				"status": string(joined.Status),
			},
		})

		s.notifier.Send(ctx, joined.Counterpart(role), EventSessionUserJoined, UserJoinedPayload{
			SessionID:   joined.ID,
			UserType:    role,
			HostJoined:  joined.HostJoined,
			GuestJoined: joined.GuestJoined,
			Status:      joined.Status,
		})
	}

	view := joined.ViewFor(requesterID, host, guest)
	return &view, nil
}

// End terminates an accepted or active session. Ending an ended session
// succeeds without side effects.
func (s *SessionService) End(ctx context.Context, sessionID, requesterID string) (*model.SessionView, error) {
	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()

	session, err := s.findSession(storeCtx, sessionID)
	if err != nil {
		return nil, err
	}
	role, ok := session.RoleOf(requesterID)
	if !ok {
		s.auditForbidden(ctx, requesterID, sessionID, "end")
		return nil, apperrors.Forbidden("You are not a participant of this session")
	}

	ended := session
	if session.Status != model.SessionStatusEnded {
		if err := endableFrom(session.Status); err != nil {
			return nil, err
		}

		ended, err = s.sessionRepo.End(storeCtx, sessionID, s.now())
		if err != nil {
			return nil, s.storeError("end session", err)
		}
		if ended == nil {
			// Another writer got there first; an end by the other party is fine.
			ended, err = s.findSession(storeCtx, sessionID)
			if err != nil {
				return nil, err
			}
			if ended.Status != model.SessionStatusEnded {
				if err := endableFrom(ended.Status); err != nil {
					return nil, err
				}
				return nil, apperrors.InvalidState("This session could not be ended, please retry")
			}
		} else {
			metrics.RecordTransition("end")
			audit.Log(ctx, audit.Event{
				Type:      audit.EventSessionEnd,
				UserID:    requesterID,
				SessionID: sessionID,
				Details: map[string]interface{}{
					"role": string(role),
				},
			})

			s.notifier.Send(ctx, ended.Counterpart(role), EventSessionEnded, EndedPayload{
				SessionID: ended.ID,
				EndedBy:   role,
				EndedAt:   ended.EndedAt,
			})
		}
	}

	host, guest, err := s.loadParties(storeCtx, ended)
	if err != nil {
		return nil, err
	}

	view := ended.ViewFor(requesterID, host, guest)
	return &view, nil
}

// Get returns a single session to one of its parties.
func (s *SessionService) Get(ctx context.Context, sessionID, requesterID string) (*model.SessionView, error) {
	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()

	session, err := s.findSession(storeCtx, sessionID)
	if err != nil {
		return nil, err
	}
	if _, ok := session.RoleOf(requesterID); !ok {
		return nil, apperrors.Forbidden("You are not a participant of this session")
	}

	host, guest, err := s.loadParties(storeCtx, session)
	if err != nil {
		return nil, err
	}

	view := session.ViewFor(requesterID, host, guest)
	return &view, nil
}

func (s *SessionService) ListPendingInvites(ctx context.Context, userID string) ([]model.SessionView, error) {
	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()

	sessions, err := s.sessionRepo.ListPendingForGuest(storeCtx, userID)
	if err != nil {
		return nil, s.storeError("list pending invites", err)
	}
	return s.views(storeCtx, userID, sessions)
}

func (s *SessionService) ListActive(ctx context.Context, userID string) ([]model.SessionView, error) {
	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()

	sessions, err := s.sessionRepo.ListOngoingForUser(storeCtx, userID)
	if err != nil {
		return nil, s.storeError("list active sessions", err)
	}
	return s.views(storeCtx, userID, sessions)
}

// ListHistory returns terminal sessions newest first. A non-positive limit
// selects the configured default; larger limits are capped.
func (s *SessionService) ListHistory(ctx context.Context, userID string, limit int) ([]model.SessionView, error) {
	if limit <= 0 {
		limit = s.historyLimit
	}
	if limit > config.MaxHistoryLimit {
		limit = config.MaxHistoryLimit
	}

	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()

	sessions, err := s.sessionRepo.ListHistoryForUser(storeCtx, userID, limit)
	if err != nil {
		return nil, s.storeError("list session history", err)
	}
	return s.views(storeCtx, userID, sessions)
}

// EndStale ends ongoing sessions that started before cutoff and notifies both
// parties. It returns how many sessions this call ended.
func (s *SessionService) EndStale(ctx context.Context, cutoff time.Time) (int, error) {
	findCtx, cancel := s.storeContext(ctx)
	stale, err := s.sessionRepo.FindStale(findCtx, cutoff)
	cancel()
	if err != nil {
		return 0, s.storeError("find stale sessions", err)
	}

	count := 0
	for _, candidate := range stale {
		ended, err := s.endStale(ctx, candidate.ID)
		if err != nil {
			return count, s.storeError("end stale session", err)
		}
		if ended == nil {
			continue
		}
		count++

		metrics.RecordTransition("sweep")
		audit.Log(ctx, audit.Event{
			Type:      audit.EventSessionSweep,
			SessionID: ended.ID,
			Details: map[string]interface{}{
				"startedAt": ended.StartedAt,
			},
		})

		payload := EndedPayload{
			SessionID: ended.ID,
			EndedBy:   model.RoleSystem,
			EndedAt:   ended.EndedAt,
		}
		s.notifier.Send(ctx, ended.HostID, EventSessionEnded, payload)
		s.notifier.Send(ctx, ended.GuestID, EventSessionEnded, payload)
	}

	return count, nil
}

// endStale runs each end under its own store timeout so a long backlog does
// not share one deadline.
func (s *SessionService) endStale(ctx context.Context, sessionID string) (*model.Session, error) {
	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()
	return s.sessionRepo.End(storeCtx, sessionID, s.now())
}

func (s *SessionService) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.storeTimeout)
}

func (s *SessionService) storeError(op string, err error) error {
	if appErr, ok := apperrors.AsAppError(err); ok {
		return appErr
	}
	log.Error().Err(err).Str("op", op).Msg("session store failure")
	return apperrors.ServiceUnavailable(err)
}

func (s *SessionService) findSession(ctx context.Context, sessionID string) (*model.Session, error) {
	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, s.storeError("find session", err)
	}
	if session == nil {
		return nil, apperrors.NotFound("Session")
	}
	return session, nil
}

func (s *SessionService) loadParties(ctx context.Context, session *model.Session) (*model.User, *model.User, error) {
	host, err := s.userRepo.FindByID(ctx, session.HostID)
	if err != nil {
		return nil, nil, s.storeError("find host user", err)
	}
	guest, err := s.userRepo.FindByID(ctx, session.GuestID)
	if err != nil {
		return nil, nil, s.storeError("find guest user", err)
	}
	return host, guest, nil
}

func (s *SessionService) views(ctx context.Context, userID string, sessions []model.Session) ([]model.SessionView, error) {
	users := make(map[string]*model.User)
	lookup := func(id string) (*model.User, error) {
		if user, ok := users[id]; ok {
			return user, nil
		}
		user, err := s.userRepo.FindByID(ctx, id)
		if err != nil {
			return nil, s.storeError("find user", err)
		}
		users[id] = user
		return user, nil
	}

	views := make([]model.SessionView, 0, len(sessions))
	for i := range sessions {
		host, err := lookup(sessions[i].HostID)
		if err != nil {
			return nil, err
		}
		guest, err := lookup(sessions[i].GuestID)
		if err != nil {
			return nil, err
		}
		views = append(views, sessions[i].ViewFor(userID, host, guest))
	}
	return views, nil
}

func (s *SessionService) duplicate(ctx context.Context, requesterID string, existing *model.Session) error {
	audit.Log(ctx, audit.Event{
		Type:      audit.EventDuplicateStart,
		UserID:    requesterID,
		SessionID: existing.ID,
	})
	return apperrors.DuplicateSession(existing.ID, existing.RoomID)
}

func (s *SessionService) auditForbidden(ctx context.Context, userID, sessionID, op string) {
	audit.Log(ctx, audit.Event{
		Type:      audit.EventForbidden,
		UserID:    userID,
		SessionID: sessionID,
		Details: map[string]interface{}{
			"op": op,
		},
	})
}

func joinableFor(status model.SessionStatus, role model.Role) error {
	switch {
	case status == model.SessionStatusDeclined:
		return apperrors.InvalidState("This session was declined")
	case status.IsTerminal():
		return apperrors.InvalidState("This session has already ended")
	case status == model.SessionStatusPending && role != model.RoleHost:
		return apperrors.InvalidState("Accept the invite before joining")
	}
	return nil
}

func endableFrom(status model.SessionStatus) error {
	switch {
	case status == model.SessionStatusEnded, status.CanTransitionTo(model.SessionStatusEnded):
		return nil
	case status == model.SessionStatusPending:
		return apperrors.InvalidState("This session has not been accepted yet")
	}
	return apperrors.InvalidState("This session was declined")
}

func joinedFlag(session *model.Session, role model.Role) bool {
	if role == model.RoleHost {
		return session.HostJoined
	}
	return session.GuestJoined
}

func guestSummary(session *model.Session, guest *model.User) model.UserSummary {
	summary := guest.Summary()
	summary.ID = session.GuestID
	return summary
}

func roomSeed(hostID, guestID string) string {
	return shortID(hostID) + "-" + shortID(guestID)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
