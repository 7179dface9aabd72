package main

import (
	"fmt"

	"github.com/go-extras/cobraflags"
	"github.com/spf13/cobra"
	"github.com/teresa-solution/tenant-isolation-service/internal/model"
	"github.com/teresa-solution/tenant-isolation-service/internal/monitoring"
)

const roleFlag = "role"

func newUsersCommand(get func() *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage users",
	}

	reassignFlags := map[string]cobraflags.Flag{
		userFlag: &cobraflags.StringFlag{
			Name:  userFlag,
			Usage: "User to move",
		},
		tenantFlag: &cobraflags.StringFlag{
			Name:  tenantFlag,
			Usage: "Destination tenant",
		},
		roleFlag: &cobraflags.StringFlag{
			Name:  roleFlag,
			Value: string(model.RoleMember),
			Usage: "Role in the destination tenant (owner, admin, member)",
		},
	}
	reassignCmd := &cobra.Command{
		Use:   "reassign",
		Short: "Move a user to another tenant",
		Long: `Moves a user to another tenant. Sessions never change tenant, so every
session of the user is revoked and the user must log in again.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := requireReason(); err != nil {
				return err
			}
			userID, err := parseID(userFlag, reassignFlags[userFlag].GetString())
			if err != nil {
				return err
			}
			tenantID, err := parseID(tenantFlag, reassignFlags[tenantFlag].GetString())
			if err != nil {
				return err
			}
			role := model.Role(reassignFlags[roleFlag].GetString())

			a := get()
			if err := a.admin.ReassignUser(cmd.Context(), userID, tenantID, role, reason); err != nil {
				return err
			}
			n, err := a.sessions.RevokeAllForUser(cmd.Context(), userID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "moved user %s to tenant %s as %s, revoked %d sessions\n", userID, tenantID, role, n)
			return nil
		},
	}
	cobraflags.RegisterMap(reassignCmd, reassignFlags)

	deactivateFlags := map[string]cobraflags.Flag{
		userFlag: &cobraflags.StringFlag{
			Name:  userFlag,
			Usage: "User to deactivate",
		},
	}
	deactivateCmd := &cobra.Command{
		Use:   "deactivate",
		Short: "Close a user account and sign it out everywhere",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := requireReason(); err != nil {
				return err
			}
			userID, err := parseID(userFlag, deactivateFlags[userFlag].GetString())
			if err != nil {
				return err
			}
			monitoring.Audit(cmd.Context(), "deactivate_user", reason, map[string]any{"user_id": userID.String()})

			a := get()
			if err := a.users.SetActive(cmd.Context(), userID, false); err != nil {
				return err
			}
			n, err := a.sessions.RevokeAllForUser(cmd.Context(), userID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deactivated user %s, revoked %d sessions\n", userID, n)
			return nil
		},
	}
	cobraflags.RegisterMap(deactivateCmd, deactivateFlags)

	cmd.AddCommand(reassignCmd, deactivateCmd)
	return cmd
}
