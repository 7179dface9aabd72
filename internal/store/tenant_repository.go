package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/teresa-solution/tenant-isolation-service/internal/apperr"
	"github.com/teresa-solution/tenant-isolation-service/internal/model"
	"github.com/teresa-solution/tenant-isolation-service/internal/rls"
)

const tenantColumns = `id, name, owner_user_id, is_active, created_at, updated_at, deactivated_at`

// tenantCacheTTL bounds how long a tenant row may be served from Redis
// after an invalidation was lost.
const tenantCacheTTL = time.Minute

// TenantRepository handles database operations for tenants. The tenants
// table is global reference data and carries no row-level policy.
type TenantRepository struct {
	db    *DB
	redis RedisClient
}

// NewTenantRepository creates a new TenantRepository
func NewTenantRepository(db *DB, redis RedisClient) *TenantRepository {
	return &TenantRepository{db: db, redis: redis}
}

func tenantKey(id uuid.UUID) string {
	return fmt.Sprintf("tenant:%s", id.String())
}

func scanTenant(row pgx.Row) (*model.Tenant, error) {
	t := &model.Tenant{}
	err := row.Scan(&t.ID, &t.Name, &t.OwnerUserID, &t.IsActive, &t.CreatedAt, &t.UpdatedAt, &t.DeactivatedAt)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// Onboard creates tenant t and makes owner its owner in one transaction.
// It fails with ErrTenantAlreadyAssigned if the user already completed
// onboarding into a tenant.
func (r *TenantRepository) Onboard(ctx context.Context, t *model.Tenant, ownerID uuid.UUID) error {
	t.ID = uuid.New()
	t.OwnerUserID = &ownerID
	t.IsActive = true
	t.CreatedAt = time.Now().UTC()
	t.UpdatedAt = t.CreatedAt

	err := r.db.Tx(ctx, func(tx pgx.Tx) error {
		query := `INSERT INTO tenants (` + tenantColumns + `) VALUES ($1, $2, $3, $4, $5, $6, NULL)`
		if _, err := tx.Exec(ctx, query, t.ID, t.Name, t.OwnerUserID, t.IsActive, t.CreatedAt, t.UpdatedAt); err != nil {
			return err
		}

		tag, err := tx.Exec(ctx, `UPDATE users
		    SET tenant_id = $2, role = $3, onboarding_complete = TRUE, updated_at = $4
		    WHERE id = $1 AND is_active AND (tenant_id IS NULL OR NOT onboarding_complete)`,
			ownerID, t.ID, string(model.RoleOwner), t.UpdatedAt)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return apperr.ErrTenantAlreadyAssigned
		}
		return nil
	})
	if err != nil {
		return err
	}

	r.invalidate(ctx, t.ID)
	return nil
}

// GetByID retrieves a tenant, consulting the cache first.
func (r *TenantRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Tenant, error) {
	key := tenantKey(id)
	if cached, err := r.redis.Get(ctx, key).Result(); err == nil {
		tenant := &model.Tenant{}
		if err := json.Unmarshal([]byte(cached), tenant); err == nil {
			return tenant, nil
		}
	}

	var tenant *model.Tenant
	err := r.db.Do(ctx, func(q rls.Querier) error {
		var err error
		tenant, err = scanTenant(q.QueryRow(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE id = $1`, id))
		return err
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(tenant); err == nil {
		if err := r.redis.SetEx(ctx, key, data, tenantCacheTTL).Err(); err != nil {
			zerolog.Ctx(ctx).Debug().Err(err).Msg("Failed to cache tenant")
		}
	}
	return tenant, nil
}

// SetActive soft-activates or soft-deactivates a tenant.
func (r *TenantRepository) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	err := r.db.Do(ctx, func(q rls.Querier) error {
		tag, err := q.Exec(ctx, `UPDATE tenants
		    SET is_active = $2,
		        deactivated_at = CASE WHEN $2 THEN NULL ELSE now() END,
		        updated_at = now()
		    WHERE id = $1`, id, active)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return apperr.ErrTenantNotFound
		}
		return nil
	})
	if err != nil {
		return err
	}

	r.invalidate(ctx, id)
	return nil
}

// invalidate drops the cached tenant, retrying once.
func (r *TenantRepository) invalidate(ctx context.Context, id uuid.UUID) {
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		if err = r.redis.Del(ctx, tenantKey(id)).Err(); err == nil {
			return
		}
	}
	zerolog.Ctx(ctx).Warn().Err(err).Str("tenant_id", id.String()).Msg("Failed to invalidate cached tenant")
}
