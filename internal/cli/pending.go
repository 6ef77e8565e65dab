package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(pendingCmd)
}

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List confirmation requests",
	Long:  "Shows all confirmation requests in the store with their status, target, and timestamps.",
	RunE:  runPending,
}

func runPending(cmd *cobra.Command, args []string) error {
	store, err := openApprovals()
	if err != nil {
		return err
	}

	list, err := store.List()
	if err != nil {
		return fmt.Errorf("list approvals: %w", err)
	}

	if len(list) == 0 {
		fmt.Println("No pending confirmations.")
		return nil
	}

	fmt.Printf("%-30s %-12s %-25s %-14s %s\n", "KEY", "STATUS", "APP", "VERB", "CREATED")
	for _, a := range list {
		fmt.Printf("%-30s %-12s %-25s %-14s %s\n",
			truncate(a.Key, 30),
			a.Status,
			truncate(a.App, 25),
			a.Verb,
			a.CreatedAt.Format("15:04:05"),
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
