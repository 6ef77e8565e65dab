// Package cli implements the screenpilot command tree.
package cli

import (
	"fmt"
	"os"

	"screenpilot/internal/integrity"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "screenpilot",
	Short: "Policy-enforced autonomous device control",
	Long:  "Drives an Android device from natural-language tasks while enforcing app access policy, privacy routing, rate limits, and low-battery stealth restrictions on every action.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := integrity.Verify(); err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
			os.Exit(78) // EX_CONFIG
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to session config YAML (default ~/.screenpilot/config.yaml)")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
