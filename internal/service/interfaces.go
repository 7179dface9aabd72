package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/teresa-solution/tenant-isolation-service/internal/authn"
	"github.com/teresa-solution/tenant-isolation-service/internal/model"
	"github.com/teresa-solution/tenant-isolation-service/internal/tenancy"
	"github.com/teresa-solution/tenant-isolation-service/internal/worker"
)

// TenantStore is implemented by store.TenantRepository.
type TenantStore interface {
	Onboard(ctx context.Context, t *model.Tenant, ownerID uuid.UUID) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Tenant, error)
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
}

// UserStore is implemented by store.UserRepository.
type UserStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	EnsureBySubject(ctx context.Context, subject, email, displayName string) (*model.User, error)
}

// EventStore is implemented by store.EventRepository.
type EventStore interface {
	Append(ctx context.Context, scope tenancy.Scope, step, status string, details any) (*model.TenantEvent, error)
	List(ctx context.Context, scope tenancy.Scope, limit int) ([]model.TenantEvent, error)
}

// EmployeeStore is implemented by store.EmployeeRepository.
type EmployeeStore interface {
	Create(ctx context.Context, scope tenancy.Scope, e *model.Employee) error
	GetByID(ctx context.Context, scope tenancy.Scope, id uuid.UUID) (*model.Employee, error)
	List(ctx context.Context, scope tenancy.Scope, limit, offset int) ([]model.Employee, error)
	Update(ctx context.Context, scope tenancy.Scope, e *model.Employee) error
	Delete(ctx context.Context, scope tenancy.Scope, id uuid.UUID) error
}

// Sessions is implemented by session.Service.
type Sessions interface {
	Create(ctx context.Context, user *model.User, meta model.ClientMeta) (*model.Session, error)
	RevokeAllForUser(ctx context.Context, userID uuid.UUID) (int, error)
	RevokeAllForTenant(ctx context.Context, tenantID uuid.UUID) (int, error)
}

// TokenVerifier is implemented by authn.Verifier.
type TokenVerifier interface {
	Verify(token string) (*authn.Identity, error)
}

// Dispatcher is implemented by worker.Dispatcher.
type Dispatcher interface {
	Submit(t worker.Task) error
}
