package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	pilotmcp "screenpilot/internal/mcp"
)

func init() {
	rootCmd.AddCommand(mcpCmd)
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP tool server for assistant integration",
	Long:  "Runs screenpilot as an MCP (Model Context Protocol) server over stdio.\nExposes policy-enforced tools: task, check, approve, pending, history.",
	RunE:  runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nshutting down MCP server")
		cancel()
	}()

	s, err := buildSession(ctx)
	if err != nil {
		return err
	}
	defer s.close()

	srv := pilotmcp.New(s.loop, s.engine, s.approvals, s.mem, s.monitor)

	fmt.Fprintln(os.Stderr, "screenpilot MCP server running on stdio")
	return srv.Run(ctx)
}
