package model

import (
	"time"

	"github.com/google/uuid"
)

// ClientMeta is what the transport knows about the caller at login.
type ClientMeta struct {
	IP        string `json:"client_ip"`
	UserAgent string `json:"user_agent"`
}

// Session represents the sessions table and the cached snapshot of it.
// TenantID is copied from the user at creation and never changes.
type Session struct {
	ID                 string     `json:"session_id"`
	UserID             uuid.UUID  `json:"user_id"`
	TenantID           *uuid.UUID `json:"tenant_id,omitempty"`
	Role               Role       `json:"role"`
	OnboardingComplete bool       `json:"onboarding_complete"`
	CreatedAt          time.Time  `json:"created_at"`
	ExpiresAt          time.Time  `json:"expires_at"`
	LastActivityAt     time.Time  `json:"last_activity_at"`
	IsActive           bool       `json:"is_active"`
	ClientIP           string     `json:"client_ip"`
	UserAgent          string     `json:"user_agent"`
}

// Expired reports whether the absolute expiry has passed at now.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Idle reports whether the session has seen no activity for longer than
// timeout. A zero timeout disables the check.
func (s *Session) Idle(now time.Time, timeout time.Duration) bool {
	return timeout > 0 && now.Sub(s.LastActivityAt) > timeout
}

// Valid reports whether the session can authenticate a request at now.
func (s *Session) Valid(now time.Time, idleTimeout time.Duration) bool {
	return s.IsActive && !s.Expired(now) && !s.Idle(now, idleTimeout)
}

// Tenant returns the snapshotted tenant, if any.
func (s *Session) Tenant() (uuid.UUID, bool) {
	if s.TenantID == nil || *s.TenantID == uuid.Nil {
		return uuid.Nil, false
	}
	return *s.TenantID, true
}
