package monitoring

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Security event kinds.
const (
	EventTenantMismatch = "tenant_mismatch"
	EventRLSViolation   = "rls_violation"
	EventPolicyBypass   = "policy_bypass"
	EventMissingPolicy  = "missing_policy"
)

// SecurityAlert records a tenant isolation incident. It is logged at error
// level on the request logger and counted, never swallowed.
func SecurityAlert(ctx context.Context, kind, message string, fields map[string]any) {
	SecurityEvents.WithLabelValues(kind).Inc()
	logger := zerolog.Ctx(ctx)
	if logger.GetLevel() == zerolog.Disabled {
		logger = &log.Logger
	}
	logger.Error().
		Str("alert", kind).
		Fields(fields).
		Msg("SECURITY: " + message)
}

// Audit records use of a privileged path that skips tenant isolation.
func Audit(ctx context.Context, operation, reason string, fields map[string]any) {
	SecurityEvents.WithLabelValues(EventPolicyBypass).Inc()
	logger := zerolog.Ctx(ctx)
	if logger.GetLevel() == zerolog.Disabled {
		logger = &log.Logger
	}
	logger.Warn().
		Str("audit", operation).
		Str("reason", reason).
		Fields(fields).
		Msg("AUDIT: row-level security bypass")
}
