package httpapi

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/teresa-solution/tenant-isolation-service/internal/governor"
)

// RouterConfig holds the dependencies of the HTTP surface.
type RouterConfig struct {
	Handler    *Handler
	Sessions   SessionService
	Governor   *governor.Governor
	RetryAfter time.Duration
	LoginLimit RateLimitConfig
}

// NewRouter configures all the routes for the application
func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestID())
	router.Use(Metrics())

	h := cfg.Handler
	admit := Governor(cfg.Governor, cfg.RetryAfter)
	api := router.Group("/api/v1")

	// Throttled logins are turned away before they take a permit.
	api.POST("/sessions", RateLimit(cfg.LoginLimit), admit, h.Login)

	authed := api.Group("")
	authed.Use(admit, RequireSession(cfg.Sessions, h.cookie.Name))
	{
		authed.GET("/sessions/current", h.CurrentSession)
		authed.DELETE("/sessions/current", h.Logout)
		authed.POST("/tenants", h.Onboard)
	}

	tenant := authed.Group("")
	tenant.Use(RequireTenant())
	{
		tenant.GET("/tenants/current", h.CurrentTenant)
		tenant.POST("/users/:id/sessions/revoke", h.RevokeUserSessions)
		tenant.GET("/events", h.ListEvents)

		tenant.GET("/employees", h.ListEmployees)
		tenant.POST("/employees", h.CreateEmployee)
		tenant.GET("/employees/:id", h.GetEmployee)
		tenant.PUT("/employees/:id", h.UpdateEmployee)
		tenant.DELETE("/employees/:id", h.DeleteEmployee)
	}

	return router
}
