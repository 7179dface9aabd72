package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/teresa-solution/tenant-isolation-service/internal/apperr"
	"github.com/teresa-solution/tenant-isolation-service/internal/model"
	"github.com/teresa-solution/tenant-isolation-service/internal/tenancy"
)

func TestEmployeeService_CreateUsesContextTenant(t *testing.T) {
	repo := new(MockEmployeeStore)
	svc := NewEmployeeService(repo, NewValidator())
	tenantID := uuid.New()
	ctx := tenancy.MustSet(context.Background(), tenantID)

	repo.On("Create", mock.Anything, tenancy.ScopeOf(tenantID), mock.AnythingOfType("*model.Employee")).Return(nil)

	e, err := svc.Create(ctx, &EmployeeRequest{FullName: "Ada Lovelace", Email: "ada@example.com"})

	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", e.FullName)
	repo.AssertExpectations(t)
}

func TestEmployeeService_CreateWithoutTenantPassesEmptyScope(t *testing.T) {
	repo := new(MockEmployeeStore)
	svc := NewEmployeeService(repo, NewValidator())

	repo.On("Create", mock.Anything, tenancy.Scope{}, mock.Anything).Return(apperr.ErrMissingTenant)

	_, err := svc.Create(context.Background(), &EmployeeRequest{FullName: "Ada"})

	assert.ErrorIs(t, err, apperr.ErrMissingTenant)
}

func TestEmployeeService_Validation(t *testing.T) {
	svc := NewEmployeeService(new(MockEmployeeStore), NewValidator())

	tests := []struct {
		name  string
		req   EmployeeRequest
		field string
	}{
		{"missing name", EmployeeRequest{}, "full_name"},
		{"bad email", EmployeeRequest{FullName: "Ada", Email: "nope"}, "email"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), &tt.req)
			var ve *apperr.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestEmployeeService_GetMissing(t *testing.T) {
	repo := new(MockEmployeeStore)
	svc := NewEmployeeService(repo, NewValidator())
	id := uuid.New()

	repo.On("GetByID", mock.Anything, mock.Anything, id).Return(nil, nil)

	_, err := svc.Get(tenancy.MustSet(context.Background(), uuid.New()), id)

	assert.ErrorIs(t, err, apperr.ErrEmployeeNotFound)
}

func TestEmployeeService_Update(t *testing.T) {
	repo := new(MockEmployeeStore)
	svc := NewEmployeeService(repo, NewValidator())
	tenantID := uuid.New()
	id := uuid.New()
	ctx := tenancy.MustSet(context.Background(), tenantID)
	existing := &model.Employee{FullName: "Old"}
	existing.ID = id
	existing.TenantID = tenantID

	repo.On("GetByID", mock.Anything, tenancy.ScopeOf(tenantID), id).Return(existing, nil)
	repo.On("Update", mock.Anything, tenancy.ScopeOf(tenantID), existing).Return(nil)

	e, err := svc.Update(ctx, id, &EmployeeRequest{FullName: "New", JobTitle: "Engineer"})

	require.NoError(t, err)
	assert.Equal(t, "New", e.FullName)
	assert.Equal(t, "Engineer", e.JobTitle)
	repo.AssertExpectations(t)
}

func TestEmployeeService_ListClampsOffset(t *testing.T) {
	repo := new(MockEmployeeStore)
	svc := NewEmployeeService(repo, NewValidator())

	repo.On("List", mock.Anything, mock.Anything, 10, 0).Return([]model.Employee{}, nil)

	_, err := svc.List(tenancy.MustSet(context.Background(), uuid.New()), 10, -5)

	require.NoError(t, err)
	repo.AssertExpectations(t)
}
