// Package httpapi is the public HTTP surface. Every route under /api runs as
// one governed unit of work, and authenticated routes carry the session's
// tenant in the request context.
package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/teresa-solution/tenant-isolation-service/internal/apperr"
	"github.com/teresa-solution/tenant-isolation-service/internal/model"
	"github.com/teresa-solution/tenant-isolation-service/internal/service"
)

// SessionService is implemented by session.Service.
type SessionService interface {
	Get(ctx context.Context, id string) (*model.Session, error)
	TouchStale(ctx context.Context, sess *model.Session)
	Revoke(ctx context.Context, id string) error
}

// AuthService is implemented by service.AuthService.
type AuthService interface {
	Login(ctx context.Context, token string, meta model.ClientMeta) (*model.Session, error)
}

// TenantService is implemented by service.TenantService.
type TenantService interface {
	Onboard(ctx context.Context, caller *model.Session, req *service.OnboardRequest, meta model.ClientMeta) (*service.OnboardResult, error)
	Get(ctx context.Context) (*model.Tenant, error)
	RevokeMemberSessions(ctx context.Context, caller *model.Session, userID uuid.UUID) (int, error)
	Events(ctx context.Context, limit int) ([]model.TenantEvent, error)
}

// EmployeeService is implemented by service.EmployeeService.
type EmployeeService interface {
	Create(ctx context.Context, req *service.EmployeeRequest) (*model.Employee, error)
	Get(ctx context.Context, id uuid.UUID) (*model.Employee, error)
	List(ctx context.Context, limit, offset int) ([]model.Employee, error)
	Update(ctx context.Context, id uuid.UUID, req *service.EmployeeRequest) (*model.Employee, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// CookieConfig controls the session cookie.
type CookieConfig struct {
	Name   string
	Secure bool
}

// Handler handles HTTP requests for sessions, tenants and employees
type Handler struct {
	sessions  SessionService
	auth      AuthService
	tenants   TenantService
	employees EmployeeService
	cookie    CookieConfig
	now       func() time.Time
}

// NewHandler creates a new handler
func NewHandler(sessions SessionService, auth AuthService, tenants TenantService, employees EmployeeService, cookie CookieConfig) *Handler {
	if cookie.Name == "" {
		cookie.Name = "session_id"
	}
	return &Handler{
		sessions:  sessions,
		auth:      auth,
		tenants:   tenants,
		employees: employees,
		cookie:    cookie,
		now:       time.Now,
	}
}

// SessionResponse is the public view of a session.
type SessionResponse struct {
	SessionID          string     `json:"session_id"`
	UserID             uuid.UUID  `json:"user_id"`
	TenantID           *uuid.UUID `json:"tenant_id,omitempty"`
	Role               model.Role `json:"role"`
	OnboardingComplete bool       `json:"onboarding_complete"`
	ExpiresAt          time.Time  `json:"expires_at"`
}

func toSessionResponse(s *model.Session) SessionResponse {
	return SessionResponse{
		SessionID:          s.ID,
		UserID:             s.UserID,
		TenantID:           s.TenantID,
		Role:               s.Role,
		OnboardingComplete: s.OnboardingComplete,
		ExpiresAt:          s.ExpiresAt,
	}
}

func clientMeta(c *gin.Context) model.ClientMeta {
	return model.ClientMeta{IP: c.ClientIP(), UserAgent: c.Request.UserAgent()}
}

func (h *Handler) setSessionCookie(c *gin.Context, s *model.Session) {
	maxAge := int(s.ExpiresAt.Sub(h.now()).Seconds())
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookie.Name, s.ID, max(maxAge, 1), "/", "", h.cookie.Secure, true)
}

func (h *Handler) clearSessionCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookie.Name, "", -1, "/", "", h.cookie.Secure, true)
}

func pathUUID(c *gin.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, &apperr.ValidationError{Field: name, Message: "must be a UUID"}
	}
	return id, nil
}

func pagination(c *gin.Context) (limit, offset int) {
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit < 1 || limit > 200 {
		limit = 50
	}
	return limit, max(offset, 0)
}

// Login handles POST /api/v1/sessions
func (h *Handler) Login(c *gin.Context) {
	authz := c.GetHeader("Authorization")
	token := strings.TrimSpace(strings.TrimPrefix(authz, "Bearer "))
	if !strings.HasPrefix(authz, "Bearer ") || token == "" {
		respondError(c, apperr.ErrAuthentication)
		return
	}

	sess, err := h.auth.Login(c.Request.Context(), token, clientMeta(c))
	if err != nil {
		respondError(c, err)
		return
	}
	h.setSessionCookie(c, sess)
	c.JSON(http.StatusCreated, toSessionResponse(sess))
}

// CurrentSession handles GET /api/v1/sessions/current
func (h *Handler) CurrentSession(c *gin.Context) {
	c.JSON(http.StatusOK, toSessionResponse(currentSession(c)))
}

// Logout handles DELETE /api/v1/sessions/current
func (h *Handler) Logout(c *gin.Context) {
	if err := h.sessions.Revoke(c.Request.Context(), currentSession(c).ID); err != nil {
		respondError(c, err)
		return
	}
	h.clearSessionCookie(c)
	c.Status(http.StatusNoContent)
}

// OnboardResponse is returned after onboarding.
type OnboardResponse struct {
	Tenant  *model.Tenant   `json:"tenant"`
	Session SessionResponse `json:"session"`
}

// Onboard handles POST /api/v1/tenants
func (h *Handler) Onboard(c *gin.Context) {
	var req service.OnboardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, &apperr.ValidationError{Message: "invalid request body"})
		return
	}

	result, err := h.tenants.Onboard(c.Request.Context(), currentSession(c), &req, clientMeta(c))
	if err != nil {
		respondError(c, err)
		return
	}
	h.setSessionCookie(c, result.Session)
	c.JSON(http.StatusCreated, OnboardResponse{Tenant: result.Tenant, Session: toSessionResponse(result.Session)})
}

// CurrentTenant handles GET /api/v1/tenants/current
func (h *Handler) CurrentTenant(c *gin.Context) {
	tenant, err := h.tenants.Get(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tenant)
}

// RevokeUserSessions handles POST /api/v1/users/:id/sessions/revoke
func (h *Handler) RevokeUserSessions(c *gin.Context) {
	userID, err := pathUUID(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}
	n, err := h.tenants.RevokeMemberSessions(c.Request.Context(), currentSession(c), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"revoked": n})
}

// ListEvents handles GET /api/v1/events
func (h *Handler) ListEvents(c *gin.Context) {
	limit, _ := pagination(c)
	events, err := h.tenants.Events(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

// ListEmployees handles GET /api/v1/employees
func (h *Handler) ListEmployees(c *gin.Context) {
	limit, offset := pagination(c)
	employees, err := h.employees.List(c.Request.Context(), limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"employees": employees, "limit": limit, "offset": offset})
}

// CreateEmployee handles POST /api/v1/employees
func (h *Handler) CreateEmployee(c *gin.Context) {
	var req service.EmployeeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, &apperr.ValidationError{Message: "invalid request body"})
		return
	}
	e, err := h.employees.Create(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, e)
}

// GetEmployee handles GET /api/v1/employees/:id
func (h *Handler) GetEmployee(c *gin.Context) {
	id, err := pathUUID(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}
	e, err := h.employees.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, e)
}

// UpdateEmployee handles PUT /api/v1/employees/:id
func (h *Handler) UpdateEmployee(c *gin.Context) {
	id, err := pathUUID(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}
	var req service.EmployeeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, &apperr.ValidationError{Message: "invalid request body"})
		return
	}
	e, err := h.employees.Update(c.Request.Context(), id, &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, e)
}

// DeleteEmployee handles DELETE /api/v1/employees/:id
func (h *Handler) DeleteEmployee(c *gin.Context) {
	id, err := pathUUID(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}
	if err := h.employees.Delete(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
