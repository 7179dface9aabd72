package main

import (
	"fmt"

	"github.com/go-extras/cobraflags"
	"github.com/spf13/cobra"
	"github.com/teresa-solution/tenant-isolation-service/internal/monitoring"
)

const tenantFlag = "tenant"

func tenantFlags() map[string]cobraflags.Flag {
	return map[string]cobraflags.Flag{
		tenantFlag: &cobraflags.StringFlag{
			Name:  tenantFlag,
			Usage: "Tenant id",
		},
	}
}

func newTenantsCommand(get func() *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenants",
		Short: "Manage tenants",
	}

	deleteFlags := tenantFlags()
	deleteCmd := &cobra.Command{
		Use:   "delete",
		Short: "Hard-delete a tenant and everything it owns",
		Long: `Revokes every session of the tenant, detaches its users and deletes the tenant.
Tenant-owned rows cascade. This cannot be undone.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := requireReason(); err != nil {
				return err
			}
			tenantID, err := parseID(tenantFlag, deleteFlags[tenantFlag].GetString())
			if err != nil {
				return err
			}
			a := get()
			// Revoke first so cached snapshots are tombstoned before the rows go.
			if _, err := a.sessions.RevokeAllForTenant(cmd.Context(), tenantID); err != nil {
				return err
			}
			res, err := a.admin.DeleteTenant(cmd.Context(), tenantID, reason)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted tenant %s: %d users detached, %d sessions removed, %d rows removed\n",
				res.TenantID, res.UsersDetached, res.SessionsRemoved, res.RowsRemoved)
			return nil
		},
	}
	cobraflags.RegisterMap(deleteCmd, deleteFlags)

	deactivateFlags := tenantFlags()
	deactivateCmd := &cobra.Command{
		Use:   "deactivate",
		Short: "Deactivate a tenant and sign out its members",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := requireReason(); err != nil {
				return err
			}
			tenantID, err := parseID(tenantFlag, deactivateFlags[tenantFlag].GetString())
			if err != nil {
				return err
			}
			monitoring.Audit(cmd.Context(), "deactivate_tenant", reason, map[string]any{"tenant_id": tenantID.String()})
			n, err := get().tenants.Deactivate(cmd.Context(), tenantID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deactivated tenant %s, revoked %d sessions\n", tenantID, n)
			return nil
		},
	}
	cobraflags.RegisterMap(deactivateCmd, deactivateFlags)

	reactivateFlags := tenantFlags()
	reactivateCmd := &cobra.Command{
		Use:   "reactivate",
		Short: "Reactivate a deactivated tenant",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := requireReason(); err != nil {
				return err
			}
			tenantID, err := parseID(tenantFlag, reactivateFlags[tenantFlag].GetString())
			if err != nil {
				return err
			}
			monitoring.Audit(cmd.Context(), "reactivate_tenant", reason, map[string]any{"tenant_id": tenantID.String()})
			if err := get().tenants.Reactivate(cmd.Context(), tenantID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "reactivated tenant %s\n", tenantID)
			return nil
		},
	}
	cobraflags.RegisterMap(reactivateCmd, reactivateFlags)

	rowsCmd := &cobra.Command{
		Use:   "rows",
		Short: "Count tenant-owned rows per tenant and table",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := requireReason(); err != nil {
				return err
			}
			counts, err := get().admin.RowCounts(cmd.Context(), reason)
			if err != nil {
				return err
			}
			w := newTable(cmd.OutOrStdout())
			fmt.Fprintln(w, "TENANT\tTABLE\tROWS")
			for _, c := range counts {
				fmt.Fprintf(w, "%s\t%s\t%d\n", c.TenantID, c.Table, c.Rows)
			}
			return w.Flush()
		},
	}

	cmd.AddCommand(deleteCmd, deactivateCmd, reactivateCmd, rowsCmd)
	return cmd
}
