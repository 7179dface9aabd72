package main

import (
	"fmt"

	"github.com/go-extras/cobraflags"
	"github.com/spf13/cobra"
	"github.com/teresa-solution/tenant-isolation-service/internal/monitoring"
)

const userFlag = "user"

func newSessionsCommand(get func() *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Manage sessions",
	}

	purgeCmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete expired and long-revoked sessions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			n, err := get().sessions.PurgeExpired(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "purged %d sessions\n", n)
			return nil
		},
	}

	revokeFlags := map[string]cobraflags.Flag{
		userFlag: &cobraflags.StringFlag{
			Name:  userFlag,
			Usage: "User whose sessions are revoked",
		},
	}
	revokeCmd := &cobra.Command{
		Use:   "revoke-user",
		Short: "Revoke every session of a user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := requireReason(); err != nil {
				return err
			}
			userID, err := parseID(userFlag, revokeFlags[userFlag].GetString())
			if err != nil {
				return err
			}
			monitoring.Audit(cmd.Context(), "revoke_user_sessions", reason, map[string]any{"user_id": userID.String()})
			n, err := get().sessions.RevokeAllForUser(cmd.Context(), userID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "revoked %d sessions\n", n)
			return nil
		},
	}
	cobraflags.RegisterMap(revokeCmd, revokeFlags)

	cmd.AddCommand(purgeCmd, revokeCmd)
	return cmd
}
