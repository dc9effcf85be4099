package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/skillsync/session-server/internal/model"
	"github.com/skillsync/session-server/internal/repository"
)

// fakeSessionRepo mirrors the store's guarantees: the live-pair uniqueness
// check and every conditional transition run under one lock.
type fakeSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]*model.Session
	clock    time.Time
	err      error
	block    bool
	delay    time.Duration
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{
		sessions: make(map[string]*model.Session),
		clock:    time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func (r *fakeSessionRepo) WithTx(tx *sqlx.Tx) repository.SessionRepository {
	return r
}

func (r *fakeSessionRepo) fail(ctx context.Context) error {
	if r.block {
		<-ctx.Done()
		return ctx.Err()
	}
	if r.delay > 0 {
		select {
		case <-time.After(r.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return r.err
}

func (r *fakeSessionRepo) tick() time.Time {
	r.clock = r.clock.Add(time.Second)
	return r.clock
}

func (r *fakeSessionRepo) Create(ctx context.Context, params model.CreateSessionParams) (*model.Session, error) {
	if err := r.fail(ctx); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range r.sessions {
		if s.Status.IsLive() && samePair(s, params.HostID, params.GuestID) {
			return nil, repository.ErrDuplicateActivePair
		}
	}

	now := r.tick()
	session := &model.Session{
		ID:         uuid.NewString(),
		RoomID:     params.RoomID,
		HostID:     params.HostID,
		GuestID:    params.GuestID,
		Status:     model.SessionStatusPending,
		Topic:      params.Topic,
		HostToken:  params.HostToken,
		GuestToken: params.GuestToken,
		HostURL:    params.HostURL,
		GuestURL:   params.GuestURL,
		PublicURL:  params.PublicURL,
		Domain:     params.Domain,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	r.sessions[session.ID] = session
	return copySession(session), nil
}

func (r *fakeSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	if err := r.fail(ctx); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[id]; ok {
		return copySession(s), nil
	}
	return nil, nil
}

func (r *fakeSessionRepo) FindActiveBetween(ctx context.Context, userA, userB string) (*model.Session, error) {
	if err := r.fail(ctx); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range r.sessions {
		if s.Status.IsLive() && samePair(s, userA, userB) {
			return copySession(s), nil
		}
	}
	return nil, nil
}

func (r *fakeSessionRepo) transition(ctx context.Context, id string, allowed []model.SessionStatus, apply func(*model.Session, time.Time)) (*model.Session, error) {
	if err := r.fail(ctx); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok || !containsStatus(allowed, s.Status) {
		return nil, nil
	}
	at := r.tick()
	apply(s, at)
	s.UpdatedAt = at
	return copySession(s), nil
}

func (r *fakeSessionRepo) Accept(ctx context.Context, id string, _ time.Time) (*model.Session, error) {
	return r.transition(ctx, id, []model.SessionStatus{model.SessionStatusPending}, func(s *model.Session, at time.Time) {
		s.Status = model.SessionStatusAccepted
		s.StartedAt = &at
	})
}

func (r *fakeSessionRepo) Decline(ctx context.Context, id string, _ time.Time) (*model.Session, error) {
	return r.transition(ctx, id, []model.SessionStatus{model.SessionStatusPending}, func(s *model.Session, at time.Time) {
		s.Status = model.SessionStatusDeclined
		s.EndedAt = &at
	})
}

func (r *fakeSessionRepo) Join(ctx context.Context, id string, role model.Role, _ time.Time) (*model.Session, error) {
	allowed := model.OngoingStatuses
	if role == model.RoleHost {
		allowed = model.LiveStatuses
	}
	return r.transition(ctx, id, allowed, func(s *model.Session, _ time.Time) {
		if role == model.RoleHost {
			s.HostJoined = true
		} else {
			s.GuestJoined = true
		}
		if s.Status == model.SessionStatusAccepted && s.HostJoined && s.GuestJoined {
			s.Status = model.SessionStatusActive
		}
	})
}

func (r *fakeSessionRepo) End(ctx context.Context, id string, _ time.Time) (*model.Session, error) {
	return r.transition(ctx, id, model.OngoingStatuses, func(s *model.Session, at time.Time) {
		s.Status = model.SessionStatusEnded
		s.EndedAt = &at
	})
}

func (r *fakeSessionRepo) list(ctx context.Context, match func(*model.Session) bool, key func(*model.Session) time.Time) ([]model.Session, error) {
	if err := r.fail(ctx); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []model.Session
	for _, s := range r.sessions {
		if match(s) {
			out = append(out, *copySession(s))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return key(&out[i]).After(key(&out[j]))
	})
	return out, nil
}

func (r *fakeSessionRepo) ListPendingForGuest(ctx context.Context, guestID string) ([]model.Session, error) {
	return r.list(ctx, func(s *model.Session) bool {
		return s.GuestID == guestID && s.Status == model.SessionStatusPending
	}, func(s *model.Session) time.Time { return s.CreatedAt })
}

func (r *fakeSessionRepo) ListOngoingForUser(ctx context.Context, userID string) ([]model.Session, error) {
	return r.list(ctx, func(s *model.Session) bool {
		return (s.HostID == userID || s.GuestID == userID) && containsStatus(model.OngoingStatuses, s.Status)
	}, func(s *model.Session) time.Time { return coalesce(s.StartedAt, s.CreatedAt) })
}

func (r *fakeSessionRepo) ListHistoryForUser(ctx context.Context, userID string, limit int) ([]model.Session, error) {
	out, err := r.list(ctx, func(s *model.Session) bool {
		return (s.HostID == userID || s.GuestID == userID) && s.Status.IsTerminal()
	}, func(s *model.Session) time.Time { return coalesce(s.EndedAt, s.UpdatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, err
}

func (r *fakeSessionRepo) FindStale(ctx context.Context, startedBefore time.Time) ([]model.Session, error) {
	return r.list(ctx, func(s *model.Session) bool {
		return containsStatus(model.OngoingStatuses, s.Status) && s.StartedAt != nil && s.StartedAt.Before(startedBefore)
	}, func(s *model.Session) time.Time { return *s.StartedAt })
}

// set overwrites a stored session field for test setup.
func (r *fakeSessionRepo) set(id string, mutate func(*model.Session)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	mutate(r.sessions[id])
}

// coalesce matches the store's COALESCE ordering keys.
func coalesce(t *time.Time, fallback time.Time) time.Time {
	if t != nil {
		return *t
	}
	return fallback
}

func samePair(s *model.Session, a, b string) bool {
	return (s.HostID == a && s.GuestID == b) || (s.HostID == b && s.GuestID == a)
}

func containsStatus(statuses []model.SessionStatus, status model.SessionStatus) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

func copySession(s *model.Session) *model.Session {
	c := *s
	return &c
}

type fakeUserRepo struct {
	users map[string]*model.User
	err   error
}

func newFakeUserRepo(users ...*model.User) *fakeUserRepo {
	repo := &fakeUserRepo{users: make(map[string]*model.User)}
	for _, u := range users {
		repo.users[u.ID] = u
	}
	return repo
}

func (r *fakeUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.users[id], nil
}

type sentEvent struct {
	UserID  string
	Type    string
	Payload any
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []sentEvent
}

func (n *fakeNotifier) Send(ctx context.Context, userID string, eventType string, payload any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, sentEvent{UserID: userID, Type: eventType, Payload: payload})
}

func (n *fakeNotifier) sent() []sentEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]sentEvent(nil), n.events...)
}

func (n *fakeNotifier) last() sentEvent {
	events := n.sent()
	if len(events) == 0 {
		return sentEvent{}
	}
	return events[len(events)-1]
}
