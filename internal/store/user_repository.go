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

const userColumns = `id, subject, email, display_name, tenant_id, role, onboarding_complete, is_active, created_at, updated_at`

// UserRepository handles database operations for users.
type UserRepository struct {
	db *DB
}

func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

func scanUser(row pgx.Row) (*model.User, error) {
	u := &model.User{}
	var role string
	err := row.Scan(&u.ID, &u.Subject, &u.Email, &u.DisplayName, &u.TenantID, &role,
		&u.OnboardingComplete, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	u.Role = model.Role(role)
	return u, nil
}

func (r *UserRepository) getOne(ctx context.Context, where string, arg any) (*model.User, error) {
	var u *model.User
	err := r.db.Do(ctx, func(q rls.Querier) error {
		var err error
		u, err = scanUser(q.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE `+where, arg))
		return err
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return u, err
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	return r.getOne(ctx, "id = $1", id)
}

// EnsureBySubject returns the user for subject, creating it on first
// login. Concurrent first logins converge on one row.
func (r *UserRepository) EnsureBySubject(ctx context.Context, subject, email, displayName string) (*model.User, error) {
	now := time.Now().UTC()
	var u *model.User
	err := r.db.Do(ctx, func(q rls.Querier) error {
		query := `INSERT INTO users (id, subject, email, display_name, role, onboarding_complete, is_active, created_at, updated_at)
		          VALUES ($1, $2, $3, $4, $5, FALSE, TRUE, $6, $6)
		          ON CONFLICT (subject) DO UPDATE SET subject = EXCLUDED.subject
		          RETURNING ` + userColumns
		var err error
		u, err = scanUser(q.QueryRow(ctx, query, uuid.New(), subject, email, displayName, string(model.RoleMember), now))
		return err
	})
	if err != nil {
		return nil, err
	}
	return u, nil
}

// SetActive activates or deactivates a user.
func (r *UserRepository) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	return r.db.Do(ctx, func(q rls.Querier) error {
		tag, err := q.Exec(ctx, `UPDATE users SET is_active = $2, updated_at = now() WHERE id = $1`, id, active)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return apperr.ErrUserNotFound
		}
		return nil
	})
}
