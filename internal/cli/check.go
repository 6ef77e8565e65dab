package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"screenpilot/internal/model"
)

func init() {
	rootCmd.AddCommand(checkCmd)
}

var checkCmd = &cobra.Command{
	Use:   "check <app> <verb>",
	Short: "Dry-run a policy decision without executing anything",
	Long:  "Evaluates whether the given verb against the given app package would be allowed under current policy and operating mode. No counters are spent and no approval request is filed.",
	Args:  cobra.ExactArgs(2),
	RunE:  runCheck,
}

func runCheck(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	s, err := buildSession(ctx)
	if err != nil {
		return err
	}
	defer s.close()

	mode := s.monitor.Mode(ctx)
	d := s.engine.Check(model.Action{App: args[0], Verb: args[1]}, mode)

	fmt.Printf("decision: %s\n", d.Decision)
	if d.Reason != "" {
		fmt.Printf("reason:   %s\n", d.Reason)
	}
	if d.RuleID != "" {
		fmt.Printf("rule:     %s\n", d.RuleID)
	}
	if d.ApprovalKey != "" {
		fmt.Printf("approval: %s\n", d.ApprovalKey)
	}
	fmt.Printf("mode:     %s\n", mode)

	if d.Decision == model.Denied {
		os.Exit(1)
	}
	return nil
}
