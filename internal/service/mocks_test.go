package service

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/teresa-solution/tenant-isolation-service/internal/authn"
	"github.com/teresa-solution/tenant-isolation-service/internal/model"
	"github.com/teresa-solution/tenant-isolation-service/internal/tenancy"
	"github.com/teresa-solution/tenant-isolation-service/internal/worker"
)

type MockTenantStore struct {
	mock.Mock
}

func (m *MockTenantStore) Onboard(ctx context.Context, t *model.Tenant, ownerID uuid.UUID) error {
	args := m.Called(ctx, t, ownerID)
	if args.Error(0) == nil && t.ID == uuid.Nil {
		t.ID = uuid.New()
		t.OwnerUserID = &ownerID
		t.IsActive = true
	}
	return args.Error(0)
}

func (m *MockTenantStore) GetByID(ctx context.Context, id uuid.UUID) (*model.Tenant, error) {
	args := m.Called(ctx, id)
	tenant, _ := args.Get(0).(*model.Tenant)
	return tenant, args.Error(1)
}

func (m *MockTenantStore) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	args := m.Called(ctx, id, active)
	return args.Error(0)
}

type MockUserStore struct {
	mock.Mock
}

func (m *MockUserStore) GetByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	args := m.Called(ctx, id)
	user, _ := args.Get(0).(*model.User)
	return user, args.Error(1)
}

func (m *MockUserStore) EnsureBySubject(ctx context.Context, subject, email, displayName string) (*model.User, error) {
	args := m.Called(ctx, subject, email, displayName)
	user, _ := args.Get(0).(*model.User)
	return user, args.Error(1)
}

type MockEventStore struct {
	mock.Mock
}

func (m *MockEventStore) Append(ctx context.Context, scope tenancy.Scope, step, status string, details any) (*model.TenantEvent, error) {
	args := m.Called(ctx, scope, step, status, details)
	event, _ := args.Get(0).(*model.TenantEvent)
	return event, args.Error(1)
}

func (m *MockEventStore) List(ctx context.Context, scope tenancy.Scope, limit int) ([]model.TenantEvent, error) {
	args := m.Called(ctx, scope, limit)
	events, _ := args.Get(0).([]model.TenantEvent)
	return events, args.Error(1)
}

type MockEmployeeStore struct {
	mock.Mock
}

func (m *MockEmployeeStore) Create(ctx context.Context, scope tenancy.Scope, e *model.Employee) error {
	args := m.Called(ctx, scope, e)
	return args.Error(0)
}

func (m *MockEmployeeStore) GetByID(ctx context.Context, scope tenancy.Scope, id uuid.UUID) (*model.Employee, error) {
	args := m.Called(ctx, scope, id)
	e, _ := args.Get(0).(*model.Employee)
	return e, args.Error(1)
}

func (m *MockEmployeeStore) List(ctx context.Context, scope tenancy.Scope, limit, offset int) ([]model.Employee, error) {
	args := m.Called(ctx, scope, limit, offset)
	out, _ := args.Get(0).([]model.Employee)
	return out, args.Error(1)
}

func (m *MockEmployeeStore) Update(ctx context.Context, scope tenancy.Scope, e *model.Employee) error {
	args := m.Called(ctx, scope, e)
	return args.Error(0)
}

func (m *MockEmployeeStore) Delete(ctx context.Context, scope tenancy.Scope, id uuid.UUID) error {
	args := m.Called(ctx, scope, id)
	return args.Error(0)
}

type MockSessions struct {
	mock.Mock
}

func (m *MockSessions) Create(ctx context.Context, user *model.User, meta model.ClientMeta) (*model.Session, error) {
	args := m.Called(ctx, user, meta)
	s, _ := args.Get(0).(*model.Session)
	return s, args.Error(1)
}

func (m *MockSessions) RevokeAllForUser(ctx context.Context, userID uuid.UUID) (int, error) {
	args := m.Called(ctx, userID)
	return args.Int(0), args.Error(1)
}

func (m *MockSessions) RevokeAllForTenant(ctx context.Context, tenantID uuid.UUID) (int, error) {
	args := m.Called(ctx, tenantID)
	return args.Int(0), args.Error(1)
}

type MockVerifier struct {
	mock.Mock
}

func (m *MockVerifier) Verify(token string) (*authn.Identity, error) {
	args := m.Called(token)
	id, _ := args.Get(0).(*authn.Identity)
	return id, args.Error(1)
}

// syncDispatcher runs each task immediately in the task's own tenant, the
// way worker.Dispatcher does.
type syncDispatcher struct {
	mu    sync.Mutex
	tasks []worker.Task
	err   error
	fails []error
}

func (d *syncDispatcher) Submit(t worker.Task) error {
	if d.err != nil {
		return d.err
	}
	err := tenancy.Run(context.Background(), t.TenantID, t.Run)
	d.mu.Lock()
	d.tasks = append(d.tasks, t)
	if err != nil {
		d.fails = append(d.fails, err)
	}
	d.mu.Unlock()
	return nil
}
