package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/teresa-solution/tenant-isolation-service/internal/apperr"
	"github.com/teresa-solution/tenant-isolation-service/internal/governor"
	"github.com/teresa-solution/tenant-isolation-service/internal/monitoring"
	"github.com/teresa-solution/tenant-isolation-service/internal/rls"
	"github.com/teresa-solution/tenant-isolation-service/internal/tenancy"
)

// NewPool opens a pgx pool sized to maxConns. Every connection handed back
// to the pool has the tenant setting reset; a connection that cannot be
// reset is destroyed instead of reused.
func NewPool(ctx context.Context, dsn string, maxConns int) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DSN: %w", err)
	}
	config.MaxConns = int32(maxConns)
	config.MinConns = min(5, int32(maxConns))
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute
	config.AfterRelease = func(conn *pgx.Conn) bool {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := rls.Reset(ctx, conn); err != nil {
			log.Warn().Err(err).Msg("Failed to reset tenant setting, discarding connection")
			return false
		}
		return true
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}
	return pool, nil
}

// DB hands out database access per unit of work. A unit of work holds a
// governor permit and at most one pooled connection, which goes back to the
// pool when the permit is released.
type DB struct {
	pool  *pgxpool.Pool
	gov   *governor.Governor
	units sync.Map // *governor.Permit -> *unitConn
}

// New wraps pool; gov gates every unit of work that touches it.
func New(pool *pgxpool.Pool, gov *governor.Governor) *DB {
	return &DB{pool: pool, gov: gov}
}

// Close closes the underlying pool.
func (d *DB) Close() {
	d.pool.Close()
}

// Ping checks connectivity outside of any unit of work.
func (d *DB) Ping(ctx context.Context) error {
	return d.pool.Ping(ctx)
}

type unitConn struct {
	mu     sync.Mutex
	conn   *pgxpool.Conn
	closed bool
}

func (u *unitConn) release() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.closed = true
	if u.conn != nil {
		u.conn.Release()
		u.conn = nil
	}
}

func (d *DB) unit(p *governor.Permit) *unitConn {
	if v, ok := d.units.Load(p); ok {
		return v.(*unitConn)
	}
	u := &unitConn{}
	actual, loaded := d.units.LoadOrStore(p, u)
	if !loaded {
		p.OnRelease(func() {
			d.units.Delete(p)
			u.release()
		})
	}
	return actual.(*unitConn)
}

// withConn runs fn on the connection of the unit of work in ctx. Work that
// arrives without a permit, such as background tasks, is admitted as its own
// unit of work for the duration of fn.
func (d *DB) withConn(ctx context.Context, fn func(conn *pgxpool.Conn) error) error {
	p, ok := governor.PermitFrom(ctx)
	if !ok {
		return d.gov.Run(ctx, func(ctx context.Context) error {
			return d.withConn(ctx, fn)
		})
	}

	u := d.unit(p)
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closed {
		return fmt.Errorf("unit of work already finished")
	}
	if u.conn == nil {
		conn, err := d.pool.Acquire(ctx)
		if err != nil {
			return fmt.Errorf("failed to acquire connection: %w", err)
		}
		u.conn = conn
	}
	return fn(u.conn)
}

// Do runs fn against tables that are not tenant-owned.
func (d *DB) Do(ctx context.Context, fn func(q rls.Querier) error) error {
	return d.withConn(ctx, func(conn *pgxpool.Conn) error {
		return fn(conn)
	})
}

// Tx runs fn in a transaction on tables that are not tenant-owned.
func (d *DB) Tx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	return d.withConn(ctx, func(conn *pgxpool.Conn) error {
		return pgx.BeginFunc(ctx, conn, fn)
	})
}

// InTenant runs fn in a transaction bound to the scope's tenant. Row-level
// security sees the tenant for exactly the lifetime of the transaction.
func (d *DB) InTenant(ctx context.Context, scope tenancy.Scope, fn func(tx pgx.Tx) error) error {
	tenantID, ok := scope.TenantID()
	if !ok {
		return apperr.ErrMissingTenant
	}
	err := d.withConn(ctx, func(conn *pgxpool.Conn) error {
		return pgx.BeginFunc(ctx, conn, func(tx pgx.Tx) error {
			if err := rls.SetTenant(ctx, tx, tenantID); err != nil {
				return err
			}
			return fn(tx)
		})
	})
	if rls.IsViolation(err) {
		monitoring.SecurityAlert(ctx, monitoring.EventRLSViolation,
			"database rejected a row outside the active tenant",
			map[string]any{"tenant_id": tenantID.String(), "error": err.Error()})
		return fmt.Errorf("%w: %v", apperr.ErrRLSViolation, err)
	}
	return err
}
