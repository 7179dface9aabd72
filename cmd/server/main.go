package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/teresa-solution/tenant-isolation-service/internal/authn"
	"github.com/teresa-solution/tenant-isolation-service/internal/config"
	"github.com/teresa-solution/tenant-isolation-service/internal/governor"
	"github.com/teresa-solution/tenant-isolation-service/internal/grpcapi"
	"github.com/teresa-solution/tenant-isolation-service/internal/httpapi"
	"github.com/teresa-solution/tenant-isolation-service/internal/logging"
	"github.com/teresa-solution/tenant-isolation-service/internal/monitoring"
	"github.com/teresa-solution/tenant-isolation-service/internal/rls"
	"github.com/teresa-solution/tenant-isolation-service/internal/service"
	"github.com/teresa-solution/tenant-isolation-service/internal/session"
	"github.com/teresa-solution/tenant-isolation-service/internal/store"
	"github.com/teresa-solution/tenant-isolation-service/internal/worker"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (default: ./config.yaml if present)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logging.Setup(cfg.Environment, cfg.LogLevel)
	monitoring.InitMetrics()
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx := context.Background()

	pool, err := store.NewPool(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	gov := governor.New(cfg.Governor.MaxUnits)
	db := store.New(pool, gov)
	defer db.Close()

	// Refuse to serve tenant data unless every tenant-owned table is isolated.
	if err := db.Do(ctx, func(q rls.Querier) error {
		return rls.Verify(ctx, q, rls.Protected)
	}); err != nil {
		log.Fatal().Err(err).Msg("Row-level security check failed")
	}

	redisClient := store.NewRedis(store.RedisOptions{
		Addr:      cfg.Redis.Addr,
		Password:  cfg.Redis.Password,
		DB:        cfg.Redis.DB,
		OpTimeout: cfg.Redis.OpTimeout,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Warn().Err(err).Msg("Redis unavailable, sessions will be served from the database")
	}

	tasks := worker.NewDispatcher(ctx, worker.Options{
		Workers:     cfg.Worker.Workers,
		QueueSize:   cfg.Worker.QueueSize,
		TaskTimeout: cfg.Worker.TaskTimeout,
	})

	sessions := session.NewService(store.NewSessionRepository(db), store.NewSessionCache(redisClient), tasks, session.Config{
		TTL:           cfg.Session.TTL,
		IdleTimeout:   cfg.Session.IdleTimeout,
		Sliding:       cfg.Session.Sliding,
		TouchInterval: cfg.Session.TouchInterval,
		CacheTimeout:  cfg.Redis.OpTimeout,
		PurgeGrace:    cfg.Session.PurgeGrace,
	})
	housekeeper := session.NewHousekeeper(sessions, cfg.Session.PurgeInterval)
	housekeeper.Start()

	publicKey, err := cfg.Auth.PublicKeyPEM()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read identity provider public key")
	}
	verifier, err := authn.NewVerifier(authn.Options{
		Issuer:       cfg.Auth.Issuer,
		Audience:     cfg.Auth.Audience,
		Secret:       []byte(cfg.Auth.Secret),
		PublicKeyPEM: publicKey,
		Leeway:       cfg.Auth.Leeway,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to configure token verifier")
	}

	tenantRepo := store.NewTenantRepository(db, redisClient)
	userRepo := store.NewUserRepository(db)
	eventRepo := store.NewEventRepository(db)
	employeeRepo := store.NewEmployeeRepository(db)

	validator := service.NewValidator()
	recorder := service.NewEventRecorder(eventRepo, tasks)
	authService := service.NewAuthService(verifier, userRepo, tenantRepo, sessions)
	tenantService := service.NewTenantService(tenantRepo, userRepo, sessions, eventRepo, recorder, validator)
	employeeService := service.NewEmployeeService(employeeRepo, validator)

	handler := httpapi.NewHandler(sessions, authService, tenantService, employeeService, httpapi.CookieConfig{
		Name:   cfg.Session.CookieName,
		Secure: cfg.Session.CookieSecure,
	})
	router := httpapi.NewRouter(httpapi.RouterConfig{
		Handler:    handler,
		Sessions:   sessions,
		Governor:   gov,
		RetryAfter: time.Second,
		LoginLimit: httpapi.RateLimitConfig{
			RequestsPerMinute: cfg.RateLimit.LoginPerMinute,
			Burst:             cfg.RateLimit.LoginBurst,
		},
	})
	apiServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("HTTP API listening")
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP API server error")
		}
	}()

	grpcServer, healthServer := grpcapi.NewServer(gov, sessions, grpcapi.Options{
		RetryAfter:      time.Second,
		NoTenantMethods: grpcapi.SessionsNoTenantMethods,
	})
	grpcapi.RegisterSessions(grpcServer, grpcapi.NewSessionsServer(sessions, tenantService, employeeService))
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to listen")
	}
	go func() {
		log.Info().Msgf("gRPC server listening at %v", lis.Addr())
		if err := grpcServer.Serve(lis); err != nil {
			log.Fatal().Err(err).Msg("Failed to start gRPC server")
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := db.Ping(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("database unavailable"))
			return
		}
		// The cache is optional; report it without failing the check.
		if err := redisClient.Ping(ctx).Err(); err != nil {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("OK (cache degraded)"))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	mux.Handle("/metrics", promhttp.Handler())
	opsServer := &http.Server{
		Addr:              cfg.OpsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info().Str("addr", cfg.OpsAddr).Msg("HTTP server for health checks and metrics started")
		if err := opsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	healthServer.Shutdown()
	grpcServer.GracefulStop()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP API shutdown error")
	}
	if err := opsServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}
	housekeeper.Stop()
	log.Info().Int("pending_tasks", tasks.Pending()).Msg("Draining background tasks")
	if err := tasks.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Background tasks did not drain")
	}
	log.Info().Msg("Server exiting")
}
