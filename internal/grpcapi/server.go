package grpcapi

import (
	"time"

	"github.com/rs/zerolog/log"
	"github.com/teresa-solution/tenant-isolation-service/internal/governor"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// Options configures NewServer.
type Options struct {
	// RetryAfter is the hint attached to ResourceExhausted errors.
	RetryAfter time.Duration
	// NoTenantMethods may be called by sessions that have not onboarded.
	NoTenantMethods []string
	// ServerOptions are appended to the interceptor options.
	ServerOptions []grpc.ServerOption
}

// NewServer returns a gRPC server whose every non-health call passes through
// the governor, session and tenant checks. The health server is returned so
// the caller can flip serving status on shutdown.
func NewServer(gov *governor.Governor, sessions SessionLookup, opts Options) (*grpc.Server, *health.Server) {
	if opts.RetryAfter <= 0 {
		opts.RetryAfter = time.Second
	}
	i := &interceptor{
		gov:        gov,
		sessions:   sessions,
		retryAfter: opts.RetryAfter,
		noTenant:   make(map[string]bool, len(opts.NoTenantMethods)),
	}
	for _, m := range opts.NoTenantMethods {
		i.noTenant[m] = true
	}

	serverOpts := append([]grpc.ServerOption{
		grpc.ChainUnaryInterceptor(i.unary),
		grpc.ChainStreamInterceptor(i.stream),
	}, opts.ServerOptions...)
	server := grpc.NewServer(serverOpts...)

	hs := health.NewServer()
	healthpb.RegisterHealthServer(server, hs)
	reflection.Register(server)

	log.Debug().Int("no_tenant_methods", len(opts.NoTenantMethods)).Msg("gRPC server configured")
	return server, hs
}
