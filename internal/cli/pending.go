package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var pendingTenant string

func init() {
	pendingCmd.Flags().StringVar(&pendingTenant, "tenant", "", "Only show requests for this tenant")
}

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List pending file transfer requests",
	Long:  "Shows PENDING file transfer requests, oldest first. Requests past their expiry are not listed.",
	RunE:  runPending,
}

func runPending(cmd *cobra.Command, args []string) error {
	a, done, err := openApprovals()
	if err != nil {
		return err
	}
	defer done()

	list, err := a.Pending(cmd.Context(), pendingTenant)
	if err != nil {
		return fmt.Errorf("failed to list pending requests: %w", err)
	}

	w := cmd.OutOrStdout()
	if len(list) == 0 {
		fmt.Fprintln(w, "No pending requests.")
		return nil
	}

	fmt.Fprintf(w, "%-36s %-10s %-12s %-9s %-30s %s\n", "ID", "TENANT", "USER", "DIRECTION", "FILE", "EXPIRES")
	for _, r := range list {
		fmt.Fprintf(w, "%-36s %-10s %-12s %-9s %-30s %s\n",
			r.ID,
			truncate(r.TenantID, 10),
			truncate(r.UserID, 12),
			r.Direction,
			truncate(r.FileName, 30),
			r.ExpiresAt.Local().Format("2006-01-02 15:04"),
		)
	}
	return nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
