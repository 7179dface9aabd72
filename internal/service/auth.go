package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/teresa-solution/tenant-isolation-service/internal/apperr"
	"github.com/teresa-solution/tenant-isolation-service/internal/model"
)

// AuthService turns a verified identity provider token into a session.
type AuthService struct {
	verifier TokenVerifier
	users    UserStore
	tenants  TenantStore
	sessions Sessions
}

// NewAuthService creates a new AuthService
func NewAuthService(verifier TokenVerifier, users UserStore, tenants TenantStore, sessions Sessions) *AuthService {
	return &AuthService{verifier: verifier, users: users, tenants: tenants, sessions: sessions}
}

// Login verifies token, provisions the user on first sight and issues a
// session. Every rejection is ErrAuthentication.
func (s *AuthService) Login(ctx context.Context, token string, meta model.ClientMeta) (*model.Session, error) {
	identity, err := s.verifier.Verify(token)
	if err != nil {
		zerolog.Ctx(ctx).Info().Err(err).Msg("Rejected identity token")
		return nil, apperr.ErrAuthentication
	}

	user, err := s.users.EnsureBySubject(ctx, identity.Subject, identity.Email, identity.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to provision user: %w", err)
	}
	if !user.IsActive {
		return nil, apperr.ErrAuthentication
	}

	if tenantID, ok := user.EffectiveTenant(); ok {
		tenant, err := s.tenants.GetByID(ctx, tenantID)
		if err != nil {
			return nil, err
		}
		if tenant == nil || !tenant.IsActive {
			zerolog.Ctx(ctx).Info().
				Str("user_id", user.ID.String()).
				Str("tenant_id", tenantID.String()).
				Msg("Login refused for inactive tenant")
			return nil, apperr.ErrAuthentication
		}
	}

	return s.sessions.Create(ctx, user, meta)
}
