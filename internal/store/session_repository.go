package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/teresa-solution/tenant-isolation-service/internal/apperr"
	"github.com/teresa-solution/tenant-isolation-service/internal/model"
	"github.com/teresa-solution/tenant-isolation-service/internal/rls"
)

const sessionColumns = `session_id, user_id, tenant_id, role, onboarding_complete, created_at, expires_at,
	last_activity_at, is_active, client_ip, user_agent`

// SessionRepository is the durable, authoritative session store.
type SessionRepository struct {
	db *DB
}

func NewSessionRepository(db *DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func scanSession(row pgx.Row) (*model.Session, error) {
	s := &model.Session{}
	var role string
	err := row.Scan(&s.ID, &s.UserID, &s.TenantID, &role, &s.OnboardingComplete, &s.CreatedAt,
		&s.ExpiresAt, &s.LastActivityAt, &s.IsActive, &s.ClientIP, &s.UserAgent)
	if err != nil {
		return nil, err
	}
	s.Role = model.Role(role)
	return s, nil
}

func collectSessions(rows pgx.Rows) ([]model.Session, error) {
	defer rows.Close()
	var out []model.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

// Insert persists a new session. A session bound to a tenant is only
// written while that tenant is active; the tenant row is share-locked so a
// concurrent deactivation either sees the new session or prevents it.
// Otherwise it fails with ErrAuthentication.
func (r *SessionRepository) Insert(ctx context.Context, s *model.Session) error {
	return r.db.Do(ctx, func(q rls.Querier) error {
		query := `INSERT INTO sessions (` + sessionColumns + `)
		          SELECT $1::varchar, $2::uuid, $3::uuid, $4::varchar, $5::boolean, $6::timestamptz,
		                 $7::timestamptz, $8::timestamptz, $9::boolean, $10::varchar, $11::varchar
		          WHERE $3::uuid IS NULL
		             OR EXISTS (SELECT 1 FROM tenants WHERE id = $3::uuid AND is_active FOR SHARE)`
		tag, err := q.Exec(ctx, query, s.ID, s.UserID, s.TenantID, string(s.Role), s.OnboardingComplete,
			s.CreatedAt, s.ExpiresAt, s.LastActivityAt, s.IsActive, s.ClientIP, s.UserAgent)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return apperr.ErrAuthentication
		}
		return nil
	})
}

// Get returns the session row, active or not, or nil if there is none.
func (r *SessionRepository) Get(ctx context.Context, id string) (*model.Session, error) {
	var s *model.Session
	err := r.db.Do(ctx, func(q rls.Querier) error {
		var err error
		s, err = scanSession(q.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE session_id = $1`, id))
		return err
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return s, err
}

// Touch records activity at. A non-nil expiresAt slides the expiry.
// Inactive sessions are left alone.
func (r *SessionRepository) Touch(ctx context.Context, id string, at time.Time, expiresAt *time.Time) (*model.Session, error) {
	var s *model.Session
	err := r.db.Do(ctx, func(q rls.Querier) error {
		query := `UPDATE sessions
		          SET last_activity_at = GREATEST(last_activity_at, $2),
		              expires_at = COALESCE($3, expires_at)
		          WHERE session_id = $1 AND is_active AND expires_at > $2
		          RETURNING ` + sessionColumns
		var err error
		s, err = scanSession(q.QueryRow(ctx, query, id, at, expiresAt))
		return err
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return s, err
}

// Deactivate marks one session inactive and returns it, or nil if unknown.
func (r *SessionRepository) Deactivate(ctx context.Context, id string) (*model.Session, error) {
	var s *model.Session
	err := r.db.Do(ctx, func(q rls.Querier) error {
		query := `UPDATE sessions SET is_active = FALSE WHERE session_id = $1 RETURNING ` + sessionColumns
		var err error
		s, err = scanSession(q.QueryRow(ctx, query, id))
		return err
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return s, err
}

// DeactivateForUser marks every active session of a user inactive.
func (r *SessionRepository) DeactivateForUser(ctx context.Context, userID uuid.UUID) ([]model.Session, error) {
	var out []model.Session
	err := r.db.Do(ctx, func(q rls.Querier) error {
		rows, err := q.Query(ctx, `UPDATE sessions SET is_active = FALSE
		    WHERE user_id = $1 AND is_active RETURNING `+sessionColumns, userID)
		if err != nil {
			return err
		}
		out, err = collectSessions(rows)
		return err
	})
	return out, err
}

// DeactivateForTenant marks every active session snapshotting a tenant
// inactive.
func (r *SessionRepository) DeactivateForTenant(ctx context.Context, tenantID uuid.UUID) ([]model.Session, error) {
	var out []model.Session
	err := r.db.Do(ctx, func(q rls.Querier) error {
		rows, err := q.Query(ctx, `UPDATE sessions SET is_active = FALSE
		    WHERE tenant_id = $1 AND is_active RETURNING `+sessionColumns, tenantID)
		if err != nil {
			return err
		}
		out, err = collectSessions(rows)
		return err
	})
	return out, err
}

// PurgeExpired deletes sessions that expired before cutoff, and revoked
// sessions last used before it.
func (r *SessionRepository) PurgeExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	var n int64
	err := r.db.Do(ctx, func(q rls.Querier) error {
		tag, err := q.Exec(ctx, `DELETE FROM sessions
		    WHERE expires_at < $1 OR (NOT is_active AND last_activity_at < $1)`, cutoff)
		if err != nil {
			return err
		}
		n = tag.RowsAffected()
		return nil
	})
	return n, err
}
