package model

import (
	"time"

	"github.com/google/uuid"
)

// Tenant represents the tenants table
type Tenant struct {
	ID            uuid.UUID  `json:"id"`
	Name          string     `json:"name"`
	OwnerUserID   *uuid.UUID `json:"owner_user_id,omitempty"`
	IsActive      bool       `json:"is_active"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	DeactivatedAt *time.Time `json:"deactivated_at,omitempty"`
}

// Role of a user inside its tenant.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleMember:
		return true
	}
	return false
}

// CanManageSessions reports whether r may revoke other users' sessions.
func (r Role) CanManageSessions() bool {
	return r == RoleOwner || r == RoleAdmin
}

// User represents the users table. Subject is the identity provider's
// subject identifier.
type User struct {
	ID                 uuid.UUID  `json:"id"`
	Subject            string     `json:"subject"`
	Email              string     `json:"email"`
	DisplayName        string     `json:"display_name"`
	TenantID           *uuid.UUID `json:"tenant_id,omitempty"`
	Role               Role       `json:"role"`
	OnboardingComplete bool       `json:"onboarding_complete"`
	IsActive           bool       `json:"is_active"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// EffectiveTenant returns the user's tenant once onboarding completed.
func (u *User) EffectiveTenant() (uuid.UUID, bool) {
	if u.TenantID == nil || *u.TenantID == uuid.Nil {
		return uuid.Nil, false
	}
	return *u.TenantID, true
}
