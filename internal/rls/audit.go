package rls

import (
	"context"
	"fmt"
	"strings"
)

// TableStatus is the observed RLS state of one table.
type TableStatus struct {
	Schema    string `json:"schema"`
	Table     string `json:"table"`
	Exists    bool   `json:"exists"`
	Enabled   bool   `json:"enabled"`
	Forced    bool   `json:"forced"`
	HasPolicy bool   `json:"has_policy"`
}

// Protected reports whether the table is fully covered.
func (s TableStatus) Protected() bool {
	return s.Exists && s.Enabled && s.Forced && s.HasPolicy
}

const statusQuery = `
	SELECT c.relrowsecurity, c.relforcerowsecurity,
	       EXISTS (
	           SELECT 1 FROM pg_policies p
	           WHERE p.schemaname = n.nspname AND p.tablename = c.relname AND p.policyname = $3
	       )
	FROM pg_class c
	JOIN pg_namespace n ON n.oid = c.relnamespace
	WHERE n.nspname = $1 AND c.relname = $2 AND c.relkind = 'r'`

// Inspect returns the RLS state of every policy's table.
func Inspect(ctx context.Context, q Querier, policies []Policy) ([]TableStatus, error) {
	out := make([]TableStatus, 0, len(policies))
	for _, p := range policies {
		schema := p.Schema
		if schema == "" {
			schema = "public"
		}
		st := TableStatus{Schema: schema, Table: p.Table}
		err := q.QueryRow(ctx, statusQuery, schema, p.Table, PolicyName).
			Scan(&st.Enabled, &st.Forced, &st.HasPolicy)
		switch {
		case err == nil:
			st.Exists = true
		case isNoRows(err):
		default:
			return nil, fmt.Errorf("rls: failed to inspect %s.%s: %w", schema, p.Table, err)
		}
		out = append(out, st)
	}
	return out, nil
}

// Verify fails unless every table in policies is protected.
func Verify(ctx context.Context, q Querier, policies []Policy) error {
	statuses, err := Inspect(ctx, q, policies)
	if err != nil {
		return err
	}
	var missing []string
	for _, st := range statuses {
		if !st.Protected() {
			missing = append(missing, st.Schema+"."+st.Table)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("rls: tables without tenant isolation: %s", strings.Join(missing, ", "))
	}
	return nil
}
