package service

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/teresa-solution/tenant-isolation-service/internal/apperr"
	"github.com/teresa-solution/tenant-isolation-service/internal/model"
	"github.com/teresa-solution/tenant-isolation-service/internal/tenancy"
)

// OnboardRequest represents the request to create the caller's tenant
type OnboardRequest struct {
	Name string `json:"name" validate:"required,min=2,max=100"`
}

// OnboardResult is the new tenant and the session replacing the caller's
// pre-onboarding session.
type OnboardResult struct {
	Tenant  *model.Tenant  `json:"tenant"`
	Session *model.Session `json:"session"`
}

// TenantService handles the tenant lifecycle.
type TenantService struct {
	tenants   TenantStore
	users     UserStore
	sessions  Sessions
	events    EventStore
	recorder  *EventRecorder
	validator *validator.Validate
}

// NewTenantService creates a new TenantService
func NewTenantService(tenants TenantStore, users UserStore, sessions Sessions, events EventStore,
	recorder *EventRecorder, validator *validator.Validate) *TenantService {
	return &TenantService{
		tenants:   tenants,
		users:     users,
		sessions:  sessions,
		events:    events,
		recorder:  recorder,
		validator: validator,
	}
}

// Onboard creates a tenant owned by the caller. Sessions never change
// tenant, so the caller's existing sessions are revoked and a fresh one
// carrying the new tenant is issued.
func (s *TenantService) Onboard(ctx context.Context, caller *model.Session, req *OnboardRequest, meta model.ClientMeta) (*OnboardResult, error) {
	if err := validateStruct(s.validator, req); err != nil {
		return nil, err
	}
	if _, ok := caller.Tenant(); ok || caller.OnboardingComplete {
		return nil, apperr.ErrTenantAlreadyAssigned
	}

	tenant := &model.Tenant{Name: req.Name}
	if err := s.tenants.Onboard(ctx, tenant, caller.UserID); err != nil {
		return nil, err
	}

	if _, err := s.sessions.RevokeAllForUser(ctx, caller.UserID); err != nil {
		return nil, err
	}
	user, err := s.users.GetByID(ctx, caller.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, apperr.ErrUserNotFound
	}
	sess, err := s.sessions.Create(ctx, user, meta)
	if err != nil {
		return nil, err
	}

	zerolog.Ctx(ctx).Info().
		Str("tenant_id", tenant.ID.String()).
		Str("user_id", user.ID.String()).
		Msg("Tenant onboarded")
	s.recorder.Record(ctx, tenant.ID, StepOnboarded, StatusCompleted, map[string]any{
		"owner_user_id": user.ID.String(),
		"name":          tenant.Name,
	})
	return &OnboardResult{Tenant: tenant, Session: sess}, nil
}

// Get returns the caller's own tenant.
func (s *TenantService) Get(ctx context.Context) (*model.Tenant, error) {
	tenantID, ok := tenancy.Get(ctx)
	if !ok {
		return nil, apperr.ErrMissingTenant
	}
	tenant, err := s.tenants.GetByID(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if tenant == nil {
		return nil, apperr.ErrTenantNotFound
	}
	return tenant, nil
}

// Deactivate soft-deactivates a tenant and revokes every session of its
// members. Data is kept.
func (s *TenantService) Deactivate(ctx context.Context, tenantID uuid.UUID) (int, error) {
	if err := s.tenants.SetActive(ctx, tenantID, false); err != nil {
		return 0, err
	}
	n, err := s.sessions.RevokeAllForTenant(ctx, tenantID)
	if err != nil {
		return 0, err
	}
	s.recorder.Record(ctx, tenantID, StepDeactivated, StatusCompleted, map[string]any{"sessions_revoked": n})
	return n, nil
}

// Reactivate undoes Deactivate. Members must log in again.
func (s *TenantService) Reactivate(ctx context.Context, tenantID uuid.UUID) error {
	if err := s.tenants.SetActive(ctx, tenantID, true); err != nil {
		return err
	}
	s.recorder.Record(ctx, tenantID, StepReactivated, StatusCompleted, nil)
	return nil
}

// RevokeMemberSessions revokes all sessions of a member of the caller's
// tenant. Only owners and admins may do this.
func (s *TenantService) RevokeMemberSessions(ctx context.Context, caller *model.Session, userID uuid.UUID) (int, error) {
	tenantID, ok := caller.Tenant()
	if !ok {
		return 0, apperr.ErrMissingTenant
	}
	if caller.UserID != userID && !caller.Role.CanManageSessions() {
		return 0, apperr.ErrForbidden
	}

	target, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return 0, err
	}
	// Members of other tenants look exactly like unknown users.
	if target == nil {
		return 0, apperr.ErrUserNotFound
	}
	if targetTenant, ok := target.EffectiveTenant(); !ok || targetTenant != tenantID {
		return 0, apperr.ErrUserNotFound
	}

	n, err := s.sessions.RevokeAllForUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	s.recorder.Record(ctx, tenantID, StepSessionsRevoked, StatusCompleted, map[string]any{
		"user_id":    userID.String(),
		"revoked_by": caller.UserID.String(),
		"count":      n,
	})
	return n, nil
}

// Events lists the lifecycle log of the caller's tenant.
func (s *TenantService) Events(ctx context.Context, limit int) ([]model.TenantEvent, error) {
	return s.events.List(ctx, tenancy.ScopeFrom(ctx), limit)
}
