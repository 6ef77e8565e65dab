package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"screenpilot/internal/approval"
	"screenpilot/internal/model"

	"github.com/spf13/cobra"
)

var (
	taskJSON bool
	taskWait time.Duration
)

func init() {
	rootCmd.AddCommand(taskCmd)
	taskCmd.Flags().BoolVar(&taskJSON, "json", false, "Print the full interaction record as JSON")
	taskCmd.Flags().DurationVar(&taskWait, "wait", 0, "Block up to this long for a pending confirmation, then retry the task once approved")
}

var taskCmd = &cobra.Command{
	Use:   "task <intent...>",
	Short: "Run a single task through the agent",
	Long:  "Runs one decision cycle for the given task and prints per-action outcomes. Denied actions show the policy reason.\nWith --wait, a cycle that stops on NEEDS_CONFIRMATION blocks until the request is approved (from another terminal) and then retries once.",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runTask,
}

func runTask(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	s, err := buildSession(ctx)
	if err != nil {
		return err
	}
	defer s.close()

	intent := strings.Join(args, " ")
	rec, cycleErr := s.loop.Cycle(ctx, intent)
	printRecord(rec)

	if cycleErr == nil && taskWait > 0 {
		if key, reason := pendingApproval(rec); key != "" {
			fmt.Fprintf(os.Stderr, "waiting for approval of %s (up to %s)\n", key, taskWait)
			wctx, cancel := context.WithTimeout(ctx, taskWait)
			st, werr := s.approvals.WaitResolved(wctx, key)
			cancel()
			if werr != nil || st != approval.StatusApproved {
				return &model.BlockedError{
					Decision:    model.NeedsConfirmation,
					Reason:      reason,
					ApprovalKey: key,
				}
			}
			rec, cycleErr = s.loop.Cycle(ctx, intent)
			printRecord(rec)
		}
	}

	if cycleErr != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", cycleErr)
		os.Exit(1)
	}
	return nil
}

// pendingApproval finds the first outcome that stopped on a
// confirmation request.
func pendingApproval(rec model.InteractionRecord) (key, reason string) {
	for _, o := range rec.Outcomes {
		if o.Decision.Decision == model.NeedsConfirmation && o.Decision.ApprovalKey != "" {
			return o.Decision.ApprovalKey, o.Decision.Reason
		}
	}
	return "", ""
}

func printRecord(rec model.InteractionRecord) {
	if taskJSON {
		out, _ := json.MarshalIndent(rec, "", "  ")
		fmt.Println(string(out))
		return
	}
	fmt.Printf("cycle %s  mode=%s tier=%s backend=%s\n", rec.ID, rec.Mode, rec.Tier, rec.Backend)
	if rec.Reasoning != "" {
		fmt.Printf("plan: %s\n", rec.Reasoning)
	}
	for i, o := range rec.Outcomes {
		status := string(o.Decision.Decision)
		if o.Dispatched {
			if o.Success {
				status = "ok"
			} else {
				status = "failed"
			}
		}
		fmt.Printf("%2d. %-14s %-30s %s", i+1, o.Action.Verb, o.Action.App, status)
		if o.Decision.Reason != "" {
			fmt.Printf(" (%s)", o.Decision.Reason)
		}
		if o.Decision.ApprovalKey != "" {
			fmt.Printf(" approval_key=%s", o.Decision.ApprovalKey)
		}
		fmt.Println()
	}
	if rec.Aborted {
		fmt.Println("cycle aborted by emergency stop")
	}
}
