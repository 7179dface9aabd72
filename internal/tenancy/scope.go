package tenancy

import (
	"context"

	"github.com/google/uuid"
)

// Scope is the tenant boundary a repository call runs in. Every tenant-owned
// repository method takes one, so a query without tenant scoping does not
// compile. The zero Scope is empty: reads return nothing and writes fail.
type Scope struct {
	tenant uuid.UUID
}

// ScopeFrom returns the scope of the active tenant in ctx.
func ScopeFrom(ctx context.Context) Scope {
	id, _ := Get(ctx)
	return Scope{tenant: id}
}

// ScopeOf builds a scope for an explicit tenant.
func ScopeOf(id uuid.UUID) Scope {
	return Scope{tenant: id}
}

// TenantID returns the scoped tenant and whether the scope is non-empty.
func (s Scope) TenantID() (uuid.UUID, bool) {
	return s.tenant, s.tenant != uuid.Nil
}

// Empty reports whether there is no tenant behind the scope.
func (s Scope) Empty() bool { return s.tenant == uuid.Nil }

func (s Scope) String() string {
	if s.Empty() {
		return "<none>"
	}
	return s.tenant.String()
}

// Run executes fn in a fresh context bound to tenant id, derived from parent
// only for cancellation. It is how background tasks establish their own
// tenant instead of inheriting one.
func Run(parent context.Context, id uuid.UUID, fn func(ctx context.Context) error) error {
	ctx := Clear(parent)
	if id != uuid.Nil {
		ctx = MustSet(ctx, id)
	}
	return fn(ctx)
}
