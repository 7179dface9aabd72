package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/teresa-solution/tenant-isolation-service/internal/config"
	"github.com/teresa-solution/tenant-isolation-service/internal/governor"
	"github.com/teresa-solution/tenant-isolation-service/internal/logging"
	"github.com/teresa-solution/tenant-isolation-service/internal/service"
	"github.com/teresa-solution/tenant-isolation-service/internal/session"
	"github.com/teresa-solution/tenant-isolation-service/internal/store"
	"github.com/teresa-solution/tenant-isolation-service/internal/worker"
)

// app holds the maintenance connections for one command run.
type app struct {
	cfg      *config.Config
	db       *store.DB
	redis    *redis.Client
	admin    *store.Admin
	users    *store.UserRepository
	sessions *session.Service
	tenants  *service.TenantService
	tasks    *worker.Dispatcher
}

var (
	configPath string
	reason     string
)

func newRootCommand() *cobra.Command {
	var a *app

	root := &cobra.Command{
		Use:   "tenantctl",
		Short: "Audited maintenance for the tenant isolation service",
		Long: `tenantctl performs cross-tenant maintenance that the request path can never do:
purging sessions, deleting tenants, moving users and inspecting row-level security.

It connects with database.admin_url, a role that bypasses row-level security.
Every mutating command is audit-logged together with --reason.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Annotations["offline"] == "true" {
				return nil
			}
			var err error
			a, err = openApp(cmd.Context())
			return err
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			if a == nil {
				return nil
			}
			return a.close(cmd.Context())
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file")
	root.PersistentFlags().StringVar(&reason, "reason", "", "Why this privileged operation is run (audit log)")

	get := func() *app { return a }
	root.AddCommand(newSessionsCommand(get))
	root.AddCommand(newTenantsCommand(get))
	root.AddCommand(newUsersCommand(get))
	root.AddCommand(newRLSCommand(get))
	return root
}

func openApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logging.Setup(cfg.Environment, cfg.LogLevel)
	if cfg.Database.AdminURL == "" {
		return nil, errors.New("database.admin_url is required for maintenance commands")
	}

	pool, err := store.NewPool(ctx, cfg.Database.AdminURL, 4)
	if err != nil {
		return nil, err
	}
	db := store.New(pool, governor.New(4))
	redisClient := store.NewRedis(store.RedisOptions{
		Addr:      cfg.Redis.Addr,
		Password:  cfg.Redis.Password,
		DB:        cfg.Redis.DB,
		OpTimeout: cfg.Redis.OpTimeout,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Warn().Err(err).Msg("Redis unavailable, cached sessions cannot be tombstoned")
	}

	tasks := worker.NewDispatcher(context.Background(), worker.Options{Workers: 1, QueueSize: 16})
	sessions := session.NewService(store.NewSessionRepository(db), store.NewSessionCache(redisClient), nil, session.Config{
		TTL:          cfg.Session.TTL,
		IdleTimeout:  cfg.Session.IdleTimeout,
		CacheTimeout: cfg.Redis.OpTimeout,
		PurgeGrace:   cfg.Session.PurgeGrace,
	})
	eventRepo := store.NewEventRepository(db)
	userRepo := store.NewUserRepository(db)
	tenants := service.NewTenantService(store.NewTenantRepository(db, redisClient), userRepo,
		sessions, eventRepo, service.NewEventRecorder(eventRepo, tasks), service.NewValidator())

	return &app{
		cfg:      cfg,
		db:       db,
		redis:    redisClient,
		admin:    store.NewAdmin(db),
		users:    userRepo,
		sessions: sessions,
		tenants:  tenants,
		tasks:    tasks,
	}, nil
}

func (a *app) close(ctx context.Context) error {
	err := a.tasks.Stop(ctx)
	a.redis.Close()
	a.db.Close()
	return err
}

func requireReason() error {
	if reason == "" {
		return errors.New("--reason is required")
	}
	return nil
}

func parseID(name, value string) (uuid.UUID, error) {
	id, err := uuid.Parse(value)
	if err != nil {
		return uuid.Nil, fmt.Errorf("--%s must be a UUID: %w", name, err)
	}
	return id, nil
}
