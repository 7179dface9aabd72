package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/teresa-solution/tenant-isolation-service/internal/apperr"
	"github.com/teresa-solution/tenant-isolation-service/internal/crypto"
	"github.com/teresa-solution/tenant-isolation-service/internal/governor"
	"github.com/teresa-solution/tenant-isolation-service/internal/model"
	"github.com/teresa-solution/tenant-isolation-service/internal/monitoring"
	"github.com/teresa-solution/tenant-isolation-service/internal/tenancy"
)

const (
	HeaderRequestID    = "X-Request-ID"
	HeaderSessionToken = "X-Session-Token"

	sessionKey = "session"
)

// RequestID tags the request with a ULID, attaches a request-scoped logger
// to the context and writes one access log line when the request ends.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if _, err := ulid.ParseStrict(id); err != nil {
			id = ulid.Make().String()
		}
		c.Header(HeaderRequestID, id)

		logger := log.With().Str("request_id", id).Logger()
		c.Request = c.Request.WithContext(logger.WithContext(c.Request.Context()))

		start := time.Now()
		c.Next()

		zerolog.Ctx(c.Request.Context()).Info().
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Msg("Request handled")
	}
}

// Metrics records request counts and latency per route.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		monitoring.HTTPRequests.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		monitoring.HTTPDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// Governor admits each request as one unit of work. At the limit the
// request is turned away with 503 and a retry hint instead of queueing.
func Governor(gov *governor.Governor, retryAfter time.Duration) gin.HandlerFunc {
	seconds := strconv.Itoa(max(1, int(retryAfter.Seconds())))
	return func(c *gin.Context) {
		permit, err := gov.Acquire()
		if err != nil {
			c.Header("Retry-After", seconds)
			respondError(c, err)
			return
		}
		defer permit.Release()

		c.Request = c.Request.WithContext(governor.WithPermit(c.Request.Context(), permit))
		c.Next()
	}
}

// sessionToken reads the session id from the header or the cookie.
func sessionToken(c *gin.Context, cookieName string) string {
	if t := strings.TrimSpace(c.GetHeader(HeaderSessionToken)); t != "" {
		return t
	}
	if cookie, err := c.Cookie(cookieName); err == nil {
		return cookie
	}
	return ""
}

// RequireSession authenticates the request with its session and makes the
// session's tenant the active tenant for the rest of the request.
func RequireSession(sessions SessionService, cookieName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		token := sessionToken(c, cookieName)
		if token == "" {
			respondError(c, apperr.ErrAuthentication)
			return
		}
		sess, err := sessions.Get(ctx, token)
		if err != nil {
			respondError(c, err)
			return
		}
		if sess == nil {
			zerolog.Ctx(ctx).Debug().Str("session", crypto.Fingerprint(token)).Msg("Rejected session")
			respondError(c, apperr.ErrAuthentication)
			return
		}

		// Never trust a tenant already present on the context.
		ctx = tenancy.Clear(ctx)
		logCtx := zerolog.Ctx(ctx).With().Str("user_id", sess.UserID.String())
		if tenantID, ok := sess.Tenant(); ok {
			ctx = tenancy.MustSet(ctx, tenantID)
			logCtx = logCtx.Str("tenant_id", tenantID.String())
		}
		logger := logCtx.Logger()
		ctx = logger.WithContext(ctx)

		c.Set(sessionKey, sess)
		c.Request = c.Request.WithContext(ctx)
		sessions.TouchStale(ctx, sess)
		c.Next()
	}
}

// RequireTenant rejects sessions that have not completed onboarding.
func RequireTenant() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := tenancy.Get(c.Request.Context()); !ok {
			respondError(c, apperr.ErrMissingTenant)
			return
		}
		c.Next()
	}
}

// currentSession returns the session set by RequireSession.
func currentSession(c *gin.Context) *model.Session {
	v, ok := c.Get(sessionKey)
	if !ok {
		return nil
	}
	sess, _ := v.(*model.Session)
	return sess
}

// respondError aborts the request with the status and public message for
// err. Authentication failures always get the same body.
func respondError(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		zerolog.Ctx(c.Request.Context()).Error().Err(err).Msg("Request failed")
	}
	c.AbortWithStatusJSON(status, gin.H{"error": apperr.PublicMessage(err)})
}
