package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/teresa-solution/tenant-isolation-service/internal/apperr"
	"github.com/teresa-solution/tenant-isolation-service/internal/model"
	"github.com/teresa-solution/tenant-isolation-service/internal/monitoring"
	"github.com/teresa-solution/tenant-isolation-service/internal/rls"
)

// Admin is the cross-tenant maintenance path. It must be built on a pool
// that connects as a role with BYPASSRLS, and every call is audit-logged
// with the caller's reason. Nothing on the request path holds an Admin.
type Admin struct {
	db *DB
}

// NewAdmin wraps a maintenance DB.
func NewAdmin(db *DB) *Admin {
	return &Admin{db: db}
}

func requireReason(reason string) error {
	if reason == "" {
		return &apperr.ValidationError{Field: "reason", Message: "a reason is required for privileged operations"}
	}
	return nil
}

// TenantDeletion summarises what DeleteTenant removed.
type TenantDeletion struct {
	TenantID        uuid.UUID `json:"tenant_id"`
	UsersDetached   int64     `json:"users_detached"`
	SessionsRemoved int64     `json:"sessions_removed"`
	RowsRemoved     int64     `json:"rows_removed"`
}

// DeleteTenant hard-deletes a tenant. Members are detached and reset to
// pre-onboarding state; sessions and all tenant-owned rows cascade.
func (a *Admin) DeleteTenant(ctx context.Context, tenantID uuid.UUID, reason string) (*TenantDeletion, error) {
	if err := requireReason(reason); err != nil {
		return nil, err
	}
	monitoring.Audit(ctx, "delete_tenant", reason, map[string]any{"tenant_id": tenantID.String()})

	res := &TenantDeletion{TenantID: tenantID}
	err := a.db.Tx(ctx, func(tx pgx.Tx) error {
		for _, p := range rls.Protected {
			var n int64
			q := fmt.Sprintf(`SELECT count(*) FROM %s WHERE tenant_id = $1`, p.Table)
			if err := tx.QueryRow(ctx, q, tenantID).Scan(&n); err != nil {
				return err
			}
			res.RowsRemoved += n
		}

		tag, err := tx.Exec(ctx, `DELETE FROM sessions WHERE tenant_id = $1`, tenantID)
		if err != nil {
			return err
		}
		res.SessionsRemoved = tag.RowsAffected()

		tag, err = tx.Exec(ctx, `UPDATE users
		    SET tenant_id = NULL, role = 'member', onboarding_complete = FALSE, updated_at = now()
		    WHERE tenant_id = $1`, tenantID)
		if err != nil {
			return err
		}
		res.UsersDetached = tag.RowsAffected()

		tag, err = tx.Exec(ctx, `DELETE FROM tenants WHERE id = $1`, tenantID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return apperr.ErrTenantNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// ReassignUser moves a user to another tenant. This is the only way a
// user's tenant changes after onboarding; callers must revoke the user's
// sessions afterwards.
func (a *Admin) ReassignUser(ctx context.Context, userID, tenantID uuid.UUID, role model.Role, reason string) error {
	if err := requireReason(reason); err != nil {
		return err
	}
	if !role.Valid() {
		return &apperr.ValidationError{Field: "role", Message: "unknown role"}
	}
	monitoring.Audit(ctx, "reassign_user", reason, map[string]any{
		"user_id": userID.String(), "tenant_id": tenantID.String(), "role": string(role),
	})

	return a.db.Tx(ctx, func(tx pgx.Tx) error {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM tenants WHERE id = $1)`, tenantID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return apperr.ErrTenantNotFound
		}
		tag, err := tx.Exec(ctx, `UPDATE users
		    SET tenant_id = $2, role = $3, onboarding_complete = TRUE, updated_at = now()
		    WHERE id = $1`, userID, tenantID, string(role))
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return apperr.ErrUserNotFound
		}
		return nil
	})
}

// TenantRowCount is one line of a cross-tenant usage report.
type TenantRowCount struct {
	TenantID uuid.UUID `json:"tenant_id"`
	Table    string    `json:"table"`
	Rows     int64     `json:"rows"`
}

// RowCounts reports the number of rows per tenant in every protected table.
func (a *Admin) RowCounts(ctx context.Context, reason string) ([]TenantRowCount, error) {
	if err := requireReason(reason); err != nil {
		return nil, err
	}
	monitoring.Audit(ctx, "row_counts", reason, nil)

	var out []TenantRowCount
	err := a.db.Do(ctx, func(q rls.Querier) error {
		for _, p := range rls.Protected {
			rows, err := q.Query(ctx, fmt.Sprintf(
				`SELECT tenant_id, count(*) FROM %s GROUP BY tenant_id ORDER BY tenant_id`, p.Table))
			if err != nil {
				return err
			}
			for rows.Next() {
				rc := TenantRowCount{Table: p.Table}
				if err := rows.Scan(&rc.TenantID, &rc.Rows); err != nil {
					rows.Close()
					return err
				}
				out = append(out, rc)
			}
			rows.Close()
			if err := rows.Err(); err != nil {
				return err
			}
		}
		return nil
	})
	return out, err
}

// RLSStatus inspects the policies of every protected table.
func (a *Admin) RLSStatus(ctx context.Context) ([]rls.TableStatus, error) {
	var out []rls.TableStatus
	err := a.db.Do(ctx, func(q rls.Querier) error {
		var err error
		out, err = rls.Inspect(ctx, q, rls.Protected)
		return err
	})
	return out, err
}

// ApplyPolicy installs the tenant_isolation policy on an additional table.
func (a *Admin) ApplyPolicy(ctx context.Context, p rls.Policy, reason string) error {
	if err := requireReason(reason); err != nil {
		return err
	}
	monitoring.Audit(ctx, "apply_policy", reason, map[string]any{"table": p.Table})

	return a.db.Tx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, rls.FunctionSQL()); err != nil {
			return err
		}
		for _, stmt := range p.EnableSQL() {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("%s: %w", stmt, err)
			}
		}
		return nil
	})
}

// IsAdminNotFound reports whether err is a not-found from an admin call.
func IsAdminNotFound(err error) bool {
	return errors.Is(err, apperr.ErrTenantNotFound) || errors.Is(err, apperr.ErrUserNotFound)
}
