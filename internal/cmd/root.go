package cmd

import (
	"github.com/spf13/cobra"
)

// Version is injected at build time via -ldflags
var Version = "dev"

// NewRootCommand creates and returns the root cobra command for soundcheck
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "soundcheck",
		Short: "USB audio device verification bench",
		Long: `Soundcheck runs USB audio devices through analyzer-backed test cases:
it sets up the device under test, captures the signal analyzer's output
while driving volume controls, and verifies the captured transcript
against per-channel expectations.

It executes test plans (Markdown or YAML), archives raw analyzer
transcripts for offline re-verification, and records every run in a
local history database.`,
		Version: Version,
		// Silence usage on errors to avoid duplicate help text
		SilenceUsage: true,
	}

	// Add subcommands
	cmd.AddCommand(NewRunCommand())
	cmd.AddCommand(NewVerifyCommand())
	cmd.AddCommand(NewValidateCommand())
	cmd.AddCommand(NewHistoryCommand())

	return cmd
}
