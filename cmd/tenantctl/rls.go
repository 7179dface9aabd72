package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/teresa-solution/tenant-isolation-service/internal/rls"
)

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}

// renderPolicies returns the DDL that installs every tenant_isolation policy.
func renderPolicies() string {
	stmts := [][]string{{rls.FunctionSQL()}}
	for _, p := range rls.Protected {
		stmts = append(stmts, p.EnableSQL())
	}
	return rls.Script(stmts...)
}

func newRLSCommand(get func() *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rls",
		Short: "Inspect and install row-level security policies",
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show the row-level security state of every tenant-owned table",
		RunE: func(cmd *cobra.Command, _ []string) error {
			statuses, err := get().admin.RLSStatus(cmd.Context())
			if err != nil {
				return err
			}
			w := newTable(cmd.OutOrStdout())
			fmt.Fprintln(w, "TABLE\tEXISTS\tENABLED\tFORCED\tPOLICY\tPROTECTED")
			unprotected := 0
			for _, st := range statuses {
				fmt.Fprintf(w, "%s.%s\t%t\t%t\t%t\t%t\t%t\n",
					st.Schema, st.Table, st.Exists, st.Enabled, st.Forced, st.HasPolicy, st.Protected())
				if !st.Protected() {
					unprotected++
				}
			}
			if err := w.Flush(); err != nil {
				return err
			}
			if unprotected > 0 {
				return fmt.Errorf("%d tables without tenant isolation", unprotected)
			}
			return nil
		},
	}

	renderCmd := &cobra.Command{
		Use:         "render",
		Short:       "Print the policy DDL without connecting",
		Annotations: map[string]string{"offline": "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := io.WriteString(cmd.OutOrStdout(), renderPolicies())
			return err
		},
	}

	applyCmd := &cobra.Command{
		Use:   "apply",
		Short: "Install or repair every tenant_isolation policy",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := requireReason(); err != nil {
				return err
			}
			a := get()
			for _, p := range rls.Protected {
				if err := a.admin.ApplyPolicy(cmd.Context(), p, reason); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "applied %s to %s.%s\n", rls.PolicyName, p.Schema, p.Table)
			}
			return nil
		},
	}

	cmd.AddCommand(statusCmd, renderCmd, applyCmd)
	return cmd
}
