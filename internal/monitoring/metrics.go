package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

var (
	SessionLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_lookups_total",
			Help: "Session lookups by the tier that answered and the outcome",
		},
		[]string{"source", "outcome"},
	)
	SessionCacheErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_cache_errors_total",
			Help: "Fast-store failures degraded to a miss, by operation",
		},
		[]string{"op"},
	)
	SessionsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sessions_created_total",
			Help: "Total number of sessions created",
		},
	)
	SessionsRevoked = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sessions_revoked_total",
			Help: "Total number of sessions revoked by reason",
		},
		[]string{"reason"},
	)
	GovernorInUse = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "governor_units_in_use",
			Help: "Units of work currently holding a database permit",
		},
	)
	GovernorRejections = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "governor_rejections_total",
			Help: "Units of work rejected because the permit limit was reached",
		},
	)
	SecurityEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenant_security_events_total",
			Help: "Tenant isolation incidents by kind",
		},
		[]string{"kind"},
	)
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

func collectors() []prometheus.Collector {
	return []prometheus.Collector{
		SessionLookups, SessionCacheErrors, SessionsCreated, SessionsRevoked,
		GovernorInUse, GovernorRejections, SecurityEvents,
		HTTPRequests, HTTPDuration,
	}
}

// InitMetrics registers all collectors with the default registry.
func InitMetrics() {
	for _, c := range collectors() {
		if err := prometheus.Register(c); err != nil {
			log.Error().Err(err).Msg("Failed to register metric")
		}
	}
}
