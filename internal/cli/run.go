package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"screenpilot/internal/agent"
	"screenpilot/internal/scheduler"
)

func init() {
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the interactive agent loop",
	Long:  "Reads tasks from stdin, one per line, and runs each through the full decision cycle. Scheduled tasks from the schedule file (if configured) feed the same queue. Type the emergency keyword to halt the agent.",
	RunE:  runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nshutting down")
		cancel()
	}()

	s, err := buildSession(ctx)
	if err != nil {
		return err
	}
	defer s.close()

	if s.cfg.SchedulePath != "" {
		sched, err := scheduler.Load(s.cfg.SchedulePath)
		if err != nil {
			return err
		}
		if len(sched.Tasks) > 0 {
			fmt.Fprintf(os.Stderr, "scheduler: %d task(s) loaded\n", len(sched.Tasks))
			go scheduler.NewRunner(sched, s.loop).Run(ctx)
		}
	}

	loopDone := make(chan error, 1)
	go func() { loopDone <- s.loop.Run(ctx) }()

	fmt.Fprintf(os.Stderr, "screenpilot ready; emergency keyword is %q\n", s.cfg.EmergencyKeyword)

	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			text := strings.TrimSpace(scanner.Text())
			if text == "" {
				continue
			}
			if err := s.loop.Submit(ctx, agent.Intent{Text: text, Source: "cli"}); err != nil {
				fmt.Fprintf(os.Stderr, "submit: %v\n", err)
				return
			}
		}
	}()

	err = <-loopDone
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
