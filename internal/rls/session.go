package rls

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the subset of pgx shared by pools, connections and transactions.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// SQLSTATE raised by Postgres when a policy rejects a statement.
const insufficientPrivilege = "42501"

// SetTenant binds the active tenant for the rest of the transaction tx. The
// setting is transaction-local and disappears on commit or rollback.
func SetTenant(ctx context.Context, tx pgx.Tx, tenantID uuid.UUID) error {
	if tenantID == uuid.Nil {
		return errors.New("rls: tenant id is required")
	}
	if _, err := tx.Exec(ctx, "SELECT set_config($1, $2, true)", Setting, tenantID.String()); err != nil {
		return fmt.Errorf("rls: failed to set %s: %w", Setting, err)
	}
	return nil
}

// Reset clears any session-level value of the setting. Called on every
// connection handed back to the pool.
func Reset(ctx context.Context, conn *pgx.Conn) error {
	_, err := conn.Exec(ctx, "RESET "+Setting)
	return err
}

// CurrentTenant reads the setting as seen by q. It returns uuid.Nil when
// unset.
func CurrentTenant(ctx context.Context, q Querier) (uuid.UUID, error) {
	var raw *string
	if err := q.QueryRow(ctx, "SELECT NULLIF(current_setting($1, true), '')", Setting).Scan(&raw); err != nil {
		return uuid.Nil, err
	}
	if raw == nil {
		return uuid.Nil, nil
	}
	return uuid.Parse(*raw)
}

// IsViolation reports whether err is Postgres rejecting a row under a
// row-level-security policy.
func IsViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == insufficientPrivilege
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
