package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"screenpilot/internal/approval"
	"screenpilot/internal/config"
)

var approveDuration time.Duration

func init() {
	rootCmd.AddCommand(approveCmd)
	approveCmd.Flags().DurationVar(&approveDuration, "duration", 0, "Validity period (e.g., 5m, 1h). Default: one-time use")
}

var approveCmd = &cobra.Command{
	Use:   "approve <key>",
	Short: "Grant a pending confirmation",
	Long:  "Approves a pending confirmation request. Without --duration, the grant is one-time (consumed on first use).\nWith --duration, the grant is valid for the specified period and can be reused.",
	Args:  cobra.ExactArgs(1),
	RunE:  runApprove,
}

func runApprove(cmd *cobra.Command, args []string) error {
	store, err := openApprovals()
	if err != nil {
		return err
	}

	key := args[0]
	if err := store.Approve(key, approveDuration); err != nil {
		return err
	}

	if approveDuration > 0 {
		fmt.Printf("Approved %q for %s\n", key, approveDuration)
	} else {
		fmt.Printf("Approved %q (one-time use)\n", key)
	}
	return nil
}

func openApprovals() (*approval.Store, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	store, err := approval.NewStore(cfg.ApprovalDir)
	if err != nil {
		return nil, fmt.Errorf("open approval store: %w", err)
	}
	return store, nil
}
