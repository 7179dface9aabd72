package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/teresa-solution/tenant-isolation-service/internal/model"
	"github.com/teresa-solution/tenant-isolation-service/internal/tenancy"
)

// EventRepository appends to and reads the per-tenant lifecycle log.
type EventRepository struct {
	db *DB
}

func NewEventRepository(db *DB) *EventRepository {
	return &EventRepository{db: db}
}

// Append records one step for the scope's tenant.
func (r *EventRepository) Append(ctx context.Context, scope tenancy.Scope, step, status string, details any) (*model.TenantEvent, error) {
	ev := &model.TenantEvent{Step: step, Status: status}
	tenantID, err := stampTenant(ctx, scope, ev)
	if err != nil {
		return nil, err
	}
	if details != nil {
		detailsJSON, err := json.Marshal(details)
		if err != nil {
			return nil, err
		}
		ev.Details = detailsJSON
	}
	ev.ID = uuid.New()
	ev.CreatedAt = time.Now().UTC()
	ev.UpdatedAt = ev.CreatedAt

	err = r.db.InTenant(ctx, scope, func(tx pgx.Tx) error {
		query := `INSERT INTO tenant_events (id, tenant_id, step, status, details, created_at, updated_at)
		          VALUES ($1, $2, $3, $4, $5, $6, $7)`
		_, err := tx.Exec(ctx, query, ev.ID, tenantID, ev.Step, ev.Status, []byte(ev.Details), ev.CreatedAt, ev.UpdatedAt)
		return err
	})
	if err != nil {
		return nil, err
	}
	return ev, nil
}

// List returns the newest events of the scope's tenant first.
func (r *EventRepository) List(ctx context.Context, scope tenancy.Scope, limit int) ([]model.TenantEvent, error) {
	tenantID, ok := scope.TenantID()
	if !ok {
		return []model.TenantEvent{}, nil
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	out := []model.TenantEvent{}
	err := r.db.InTenant(ctx, scope, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `SELECT id, tenant_id, step, status, details, created_at, updated_at
		                            FROM tenant_events WHERE tenant_id = $1
		                            ORDER BY created_at DESC LIMIT $2`, tenantID, limit)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var ev model.TenantEvent
			var details []byte
			if err := rows.Scan(&ev.ID, &ev.TenantID, &ev.Step, &ev.Status, &details, &ev.CreatedAt, &ev.UpdatedAt); err != nil {
				return err
			}
			ev.Details = details
			out = append(out, ev)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
