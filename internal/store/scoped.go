package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/teresa-solution/tenant-isolation-service/internal/apperr"
	"github.com/teresa-solution/tenant-isolation-service/internal/model"
	"github.com/teresa-solution/tenant-isolation-service/internal/monitoring"
	"github.com/teresa-solution/tenant-isolation-service/internal/tenancy"
)

// stampTenant prepares a tenant-owned row for writing in scope. A row with
// no tenant is stamped with the active one; a row that already belongs to a
// different tenant is refused, never overwritten.
func stampTenant(ctx context.Context, scope tenancy.Scope, row model.TenantOwned) (uuid.UUID, error) {
	active, ok := scope.TenantID()
	if !ok {
		return uuid.Nil, apperr.ErrMissingTenant
	}

	owner := row.OwnerTenant()
	switch {
	case owner == uuid.Nil:
		row.StampTenant(active)
	case owner != active:
		err := &apperr.TenantMismatchError{Entity: row.EntityName(), Active: active, Row: owner}
		monitoring.SecurityAlert(ctx, monitoring.EventTenantMismatch,
			"write attempted outside the active tenant",
			map[string]any{"entity": row.EntityName(), "active_tenant": active.String(), "row_tenant": owner.String()})
		return uuid.Nil, err
	}
	return active, nil
}
