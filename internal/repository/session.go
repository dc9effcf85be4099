package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/skillsync/session-server/internal/model"
)

const activePairConstraint = "sessions_active_pair_key"

// ErrDuplicateActivePair is returned by Create when the pair already has a
// pending, accepted or active session.
var ErrDuplicateActivePair = errors.New("live session already exists for pair")

// SessionRepository is the session store. Transition methods are conditional
// on the current status and return nil when the row is missing or no longer
// in a state the transition applies to.
type SessionRepository interface {
	Create(ctx context.Context, params model.CreateSessionParams) (*model.Session, error)
	FindByID(ctx context.Context, id string) (*model.Session, error)
	FindActiveBetween(ctx context.Context, userA, userB string) (*model.Session, error)
	Accept(ctx context.Context, id string, at time.Time) (*model.Session, error)
	Decline(ctx context.Context, id string, at time.Time) (*model.Session, error)
	Join(ctx context.Context, id string, role model.Role, at time.Time) (*model.Session, error)
	End(ctx context.Context, id string, at time.Time) (*model.Session, error)
	ListPendingForGuest(ctx context.Context, guestID string) ([]model.Session, error)
	ListOngoingForUser(ctx context.Context, userID string) ([]model.Session, error)
	ListHistoryForUser(ctx context.Context, userID string, limit int) ([]model.Session, error)
	FindStale(ctx context.Context, startedBefore time.Time) ([]model.Session, error)
	// WithTx returns a new repository that uses the given transaction
	WithTx(tx *sqlx.Tx) SessionRepository
}

// sessionDB is an interface satisfied by both *sqlx.DB and *sqlx.Tx
type sessionDB interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

type sessionRepo struct {
	db sessionDB
}

func NewSessionRepository(db *sqlx.DB) SessionRepository {
	return &sessionRepo{db: db}
}

func (r *sessionRepo) WithTx(tx *sqlx.Tx) SessionRepository {
	return &sessionRepo{db: tx}
}

func (r *sessionRepo) Create(ctx context.Context, params model.CreateSessionParams) (*model.Session, error) {
	var session model.Session
	err := r.db.GetContext(ctx, &session, `
		INSERT INTO sessions (
			room_id, host_id, guest_id, status, topic,
			host_token, guest_token, host_url, guest_url, public_url, domain
		)
		VALUES ($1, $2, $3, 'pending', $4, $5, $6, $7, $8, $9, $10)
		RETURNING *
	`, params.RoomID, params.HostID, params.GuestID, params.Topic,
		params.HostToken, params.GuestToken, params.HostURL, params.GuestURL,
		params.PublicURL, params.Domain)
	if isUniqueViolation(err, activePairConstraint) {
		return nil, ErrDuplicateActivePair
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *sessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	var session model.Session
	err := r.db.GetContext(ctx, &session, `
		SELECT * FROM sessions WHERE id = $1
	`, id)
	return HandleNotFound(&session, err)
}

func (r *sessionRepo) FindActiveBetween(ctx context.Context, userA, userB string) (*model.Session, error) {
	var session model.Session
	err := r.db.GetContext(ctx, &session, `
		SELECT * FROM sessions
		WHERE ((host_id = $1 AND guest_id = $2) OR (host_id = $2 AND guest_id = $1))
		AND status = ANY($3)
		ORDER BY created_at DESC
		LIMIT 1
	`, userA, userB, statusArray(model.LiveStatuses))
	return HandleNotFound(&session, err)
}

func (r *sessionRepo) Accept(ctx context.Context, id string, at time.Time) (*model.Session, error) {
	var session model.Session
	err := r.db.GetContext(ctx, &session, `
		UPDATE sessions SET
			status = 'accepted',
			started_at = $2,
			updated_at = $2
		WHERE id = $1 AND status = 'pending'
		RETURNING *
	`, id, at)
	return HandleNotFound(&session, err)
}

func (r *sessionRepo) Decline(ctx context.Context, id string, at time.Time) (*model.Session, error) {
	var session model.Session
	err := r.db.GetContext(ctx, &session, `
		UPDATE sessions SET
			status = 'declined',
			ended_at = $2,
			updated_at = $2
		WHERE id = $1 AND status = 'pending'
		RETURNING *
	`, id, at)
	return HandleNotFound(&session, err)
}

// Join sets the party's flag and promotes accepted to active once both flags
// are set. The SET expressions read the row version the WHERE clause locked,
// so two concurrent joins cannot both miss the promotion.
func (r *sessionRepo) Join(ctx context.Context, id string, role model.Role, at time.Time) (*model.Session, error) {
	hostJoins := role == model.RoleHost
	guestJoins := role == model.RoleGuest

	allowed := []model.SessionStatus{model.SessionStatusAccepted, model.SessionStatusActive}
	if hostJoins {
		allowed = model.LiveStatuses
	}

	var session model.Session
	err := r.db.GetContext(ctx, &session, `
		UPDATE sessions SET
			host_joined = host_joined OR $2,
			guest_joined = guest_joined OR $3,
			status = CASE
				WHEN status = 'accepted' AND (host_joined OR $2) AND (guest_joined OR $3) THEN 'active'
				ELSE status
			END,
			updated_at = $4
		WHERE id = $1 AND status = ANY($5)
		RETURNING *
	`, id, hostJoins, guestJoins, at, statusArray(allowed))
	return HandleNotFound(&session, err)
}

func (r *sessionRepo) End(ctx context.Context, id string, at time.Time) (*model.Session, error) {
	var session model.Session
	err := r.db.GetContext(ctx, &session, `
		UPDATE sessions SET
			status = 'ended',
			ended_at = $2,
			updated_at = $2
		WHERE id = $1 AND status IN ('accepted', 'active')
		RETURNING *
	`, id, at)
	return HandleNotFound(&session, err)
}

func (r *sessionRepo) ListPendingForGuest(ctx context.Context, guestID string) ([]model.Session, error) {
	var sessions []model.Session
	err := r.db.SelectContext(ctx, &sessions, `
		SELECT * FROM sessions
		WHERE guest_id = $1 AND status = 'pending'
		ORDER BY created_at DESC
	`, guestID)
	return sessions, err
}

func (r *sessionRepo) ListOngoingForUser(ctx context.Context, userID string) ([]model.Session, error) {
	var sessions []model.Session
	err := r.db.SelectContext(ctx, &sessions, `
		SELECT * FROM sessions
		WHERE (host_id = $1 OR guest_id = $1)
		AND status = ANY($2)
		ORDER BY COALESCE(started_at, created_at) DESC
	`, userID, statusArray(model.OngoingStatuses))
	return sessions, err
}

func (r *sessionRepo) ListHistoryForUser(ctx context.Context, userID string, limit int) ([]model.Session, error) {
	var sessions []model.Session
	err := r.db.SelectContext(ctx, &sessions, `
		SELECT * FROM sessions
		WHERE (host_id = $1 OR guest_id = $1)
		AND status = ANY($2)
		ORDER BY COALESCE(ended_at, updated_at) DESC
		LIMIT $3
	`, userID, statusArray(model.TerminalStatuses), limit)
	return sessions, err
}

func (r *sessionRepo) FindStale(ctx context.Context, startedBefore time.Time) ([]model.Session, error) {
	var sessions []model.Session
	err := r.db.SelectContext(ctx, &sessions, `
		SELECT * FROM sessions
		WHERE status = ANY($1)
		AND started_at < $2
		ORDER BY started_at
	`, statusArray(model.OngoingStatuses), startedBefore)
	return sessions, err
}

func statusArray(statuses []model.SessionStatus) pq.StringArray {
	out := make(pq.StringArray, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
