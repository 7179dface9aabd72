// Package rls defines the Postgres row-level-security objects that back the
// tenant boundary and the helpers the data layer uses to drive them.
package rls

import (
	"fmt"
	"strings"

	"github.com/lib/pq"
)

// Setting is the session configuration parameter holding the active tenant.
const Setting = "app.current_tenant"

// PolicyName is the name of the policy installed on every protected table.
const PolicyName = "tenant_isolation"

// CurrentTenantFunc returns the active tenant as uuid, or NULL when the
// setting is missing or empty, which makes every policy predicate false.
const CurrentTenantFunc = "app_current_tenant"

// Policy describes one tenant-owned table.
type Policy struct {
	Schema string
	Table  string
	Column string
}

// Protected lists the tables created by the migrations that must carry the
// tenant_isolation policy. The server refuses to start if any is missing.
var Protected = []Policy{
	{Schema: "public", Table: "employees", Column: "tenant_id"},
	{Schema: "public", Table: "tenant_events", Column: "tenant_id"},
}

func (p Policy) qualified() string {
	schema := p.Schema
	if schema == "" {
		schema = "public"
	}
	return pq.QuoteIdentifier(schema) + "." + pq.QuoteIdentifier(p.Table)
}

func (p Policy) column() string {
	if p.Column == "" {
		return pq.QuoteIdentifier("tenant_id")
	}
	return pq.QuoteIdentifier(p.Column)
}

// FunctionSQL creates the helper used by every policy predicate.
func FunctionSQL() string {
	return fmt.Sprintf(`CREATE OR REPLACE FUNCTION %s() RETURNS uuid
    LANGUAGE sql STABLE
    AS $$ SELECT NULLIF(current_setting(%s, true), '')::uuid $$`,
		CurrentTenantFunc, pq.QuoteLiteral(Setting))
}

// EnableSQL renders the statements that protect the table. FORCE applies the
// policy to the table owner as well; only BYPASSRLS roles skip it.
func (p Policy) EnableSQL() []string {
	table := p.qualified()
	pred := fmt.Sprintf("%s = %s()", p.column(), CurrentTenantFunc)
	return []string{
		fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s SET NOT NULL", table, p.column()),
		fmt.Sprintf("ALTER TABLE %s ENABLE ROW LEVEL SECURITY", table),
		fmt.Sprintf("ALTER TABLE %s FORCE ROW LEVEL SECURITY", table),
		fmt.Sprintf("DROP POLICY IF EXISTS %s ON %s", pq.QuoteIdentifier(PolicyName), table),
		fmt.Sprintf("CREATE POLICY %s ON %s FOR ALL USING (%s) WITH CHECK (%s)",
			pq.QuoteIdentifier(PolicyName), table, pred, pred),
	}
}

// DisableSQL reverts EnableSQL.
func (p Policy) DisableSQL() []string {
	table := p.qualified()
	return []string{
		fmt.Sprintf("DROP POLICY IF EXISTS %s ON %s", pq.QuoteIdentifier(PolicyName), table),
		fmt.Sprintf("ALTER TABLE %s NO FORCE ROW LEVEL SECURITY", table),
		fmt.Sprintf("ALTER TABLE %s DISABLE ROW LEVEL SECURITY", table),
	}
}

// Script joins statements into one SQL script.
func Script(stmts ...[]string) string {
	var b strings.Builder
	for _, group := range stmts {
		for _, s := range group {
			b.WriteString(s)
			b.WriteString(";\n")
		}
	}
	return b.String()
}
