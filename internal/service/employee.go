package service

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/teresa-solution/tenant-isolation-service/internal/apperr"
	"github.com/teresa-solution/tenant-isolation-service/internal/model"
	"github.com/teresa-solution/tenant-isolation-service/internal/tenancy"
)

// EmployeeRequest represents the request to create or update an employee
type EmployeeRequest struct {
	FullName string `json:"full_name" validate:"required,min=1,max=200"`
	Email    string `json:"email" validate:"omitempty,email,max=254"`
	JobTitle string `json:"job_title" validate:"max=120"`
}

// EmployeeService is business logic for the employees of the active tenant.
// The tenant always comes from the context.
type EmployeeService struct {
	repo      EmployeeStore
	validator *validator.Validate
}

// NewEmployeeService creates a new EmployeeService
func NewEmployeeService(repo EmployeeStore, validator *validator.Validate) *EmployeeService {
	return &EmployeeService{repo: repo, validator: validator}
}

// Create adds an employee to the active tenant.
func (s *EmployeeService) Create(ctx context.Context, req *EmployeeRequest) (*model.Employee, error) {
	if err := validateStruct(s.validator, req); err != nil {
		return nil, err
	}
	e := &model.Employee{FullName: req.FullName, Email: req.Email, JobTitle: req.JobTitle}
	if err := s.repo.Create(ctx, tenancy.ScopeFrom(ctx), e); err != nil {
		return nil, err
	}
	return e, nil
}

// Get returns an employee of the active tenant.
func (s *EmployeeService) Get(ctx context.Context, id uuid.UUID) (*model.Employee, error) {
	e, err := s.repo.GetByID(ctx, tenancy.ScopeFrom(ctx), id)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, apperr.ErrEmployeeNotFound
	}
	return e, nil
}

// List returns a page of employees of the active tenant.
func (s *EmployeeService) List(ctx context.Context, limit, offset int) ([]model.Employee, error) {
	if offset < 0 {
		offset = 0
	}
	return s.repo.List(ctx, tenancy.ScopeFrom(ctx), limit, offset)
}

// Update replaces the mutable fields of an employee.
func (s *EmployeeService) Update(ctx context.Context, id uuid.UUID, req *EmployeeRequest) (*model.Employee, error) {
	if err := validateStruct(s.validator, req); err != nil {
		return nil, err
	}
	e, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	e.FullName, e.Email, e.JobTitle = req.FullName, req.Email, req.JobTitle
	if err := s.repo.Update(ctx, tenancy.ScopeFrom(ctx), e); err != nil {
		return nil, err
	}
	return e, nil
}

// Delete removes an employee of the active tenant.
func (s *EmployeeService) Delete(ctx context.Context, id uuid.UUID) error {
	return s.repo.Delete(ctx, tenancy.ScopeFrom(ctx), id)
}
