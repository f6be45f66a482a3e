package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/mstaack/sw-usb-audio/internal/config"
	"github.com/mstaack/sw-usb-audio/internal/history"
	"github.com/mstaack/sw-usb-audio/internal/models"
)

// NewHistoryCommand creates the history command
func NewHistoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded run history",
		Long: `Display run records from the history database.

By default the most recent runs are listed across all devices. Filters
narrow the listing to one device or one case number, and --stats
aggregates per-device pass rates instead of listing individual runs.

Examples:
  soundcheck history                       # Recent runs
  soundcheck history --limit 50            # More of them
  soundcheck history --device xk_216_mc    # One device
  soundcheck history --case 4              # One case across runs
  soundcheck history --failures            # Include failure details
  soundcheck history --stats               # Per-device aggregates`,
		Args: cobra.NoArgs,
		RunE: runHistory,
	}

	cmd.Flags().IntP("limit", "n", 20, "Maximum number of runs to list")
	cmd.Flags().String("device", "", "Only show runs for this device")
	cmd.Flags().String("case", "", "Only show runs for this case number")
	cmd.Flags().String("db", "", "Path to the run-history database")
	cmd.Flags().Bool("stats", false, "Show per-device aggregates instead of runs")
	cmd.Flags().Bool("failures", false, "Show failure details under each run")

	return cmd
}

// runHistory executes the history command
func runHistory(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")
	device, _ := cmd.Flags().GetString("device")
	caseNumber, _ := cmd.Flags().GetString("case")
	dbPath, _ := cmd.Flags().GetString("db")
	showStats, _ := cmd.Flags().GetBool("stats")
	showFailures, _ := cmd.Flags().GetBool("failures")
	output := cmd.OutOrStdout()

	if device != "" && caseNumber != "" {
		return fmt.Errorf("cannot use both --device and --case")
	}

	// Use centralized soundcheck home database location unless overridden
	if dbPath == "" {
		var err error
		dbPath, err = config.GetHistoryDBPath()
		if err != nil {
			return fmt.Errorf("failed to resolve history database path: %w", err)
		}
	}

	// Check if database exists
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		fmt.Fprintf(output, "No run history found.\n")
		fmt.Fprintf(output, "Database path: %s\n", dbPath)
		return nil
	}

	store, err := history.NewStore(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open history database: %w", err)
	}
	defer store.Close()

	ctx := context.Background()

	if showStats {
		stats, err := store.Stats(ctx)
		if err != nil {
			return fmt.Errorf("failed to query device stats: %w", err)
		}
		if len(stats) == 0 {
			fmt.Fprintf(output, "No runs recorded.\n")
			return nil
		}
		printDeviceStats(output, stats)
		return nil
	}

	var runs []*history.Record
	switch {
	case device != "":
		runs, err = store.RunsForDevice(ctx, device, limit)
	case caseNumber != "":
		runs, err = store.RunsForCase(ctx, caseNumber, limit)
	default:
		runs, err = store.RecentRuns(ctx, limit)
	}
	if err != nil {
		return fmt.Errorf("failed to query run history: %w", err)
	}

	if len(runs) == 0 {
		fmt.Fprintf(output, "No runs recorded.\n")
		return nil
	}

	printRuns(output, runs, showFailures)
	return nil
}

// printRuns lists run records as a table, newest first
func printRuns(w io.Writer, runs []*history.Record, showFailures bool) {
	// Detect if we're in a terminal (for color output)
	colorOutput := isatty.IsTerminal(os.Stdout.Fd())

	deviceWidth := len("DEVICE")
	for _, rec := range runs {
		if len(rec.Device) > deviceWidth {
			deviceWidth = len(rec.Device)
		}
	}

	header := fmt.Sprintf("%-8s  %-6s  %-*s  %-6s  %-8s  %s",
		"RUN", "CASE", deviceWidth, "DEVICE", "STATUS", "TIME", "STARTED")
	fmt.Fprintln(w, header)
	fmt.Fprintln(w, strings.Repeat("-", len(header)))

	for _, rec := range runs {
		row := fmt.Sprintf("%-8s  %-6s  %-*s  %-6s  %-8s  %s",
			shortRunID(rec.RunID), rec.CaseNumber, deviceWidth, rec.Device, rec.Status,
			fmt.Sprintf("%.1fs", rec.DurationSecs),
			rec.StartedAt.Format("2006-01-02 15:04:05"))

		if colorOutput {
			switch rec.Status {
			case models.StatusPassed:
				row = color.GreenString(row)
			case models.StatusFailed:
				row = color.RedString(row)
			default:
				row = color.YellowString(row)
			}
		}
		fmt.Fprintln(w, row)

		if showFailures {
			if rec.ErrorMessage != "" {
				fmt.Fprintf(w, "          %s\n", rec.ErrorMessage)
			}
			for _, failure := range rec.Failures {
				fmt.Fprintf(w, "          - %s\n", failure)
			}
		}
	}
}

// printDeviceStats lists per-device aggregates
func printDeviceStats(w io.Writer, stats []history.DeviceStats) {
	deviceWidth := len("DEVICE")
	for _, ds := range stats {
		if len(ds.Device) > deviceWidth {
			deviceWidth = len(ds.Device)
		}
	}

	header := fmt.Sprintf("%-*s  %-5s  %-6s  %-6s  %-6s  %-9s  %s",
		deviceWidth, "DEVICE", "RUNS", "PASSED", "FAILED", "ERRORS", "PASS RATE", "LAST RUN")
	fmt.Fprintln(w, header)
	fmt.Fprintln(w, strings.Repeat("-", len(header)))

	for _, ds := range stats {
		lastRun := "-"
		if !ds.LastRun.IsZero() {
			lastRun = ds.LastRun.Format("2006-01-02 15:04:05")
		}
		fmt.Fprintf(w, "%-*s  %-5d  %-6d  %-6d  %-6d  %-9s  %s\n",
			deviceWidth, ds.Device, ds.TotalRuns, ds.Passed, ds.Failed, ds.Errors,
			fmt.Sprintf("%.0f%%", ds.PassRate*100), lastRun)
	}
}

// shortRunID abbreviates a run UUID for display
func shortRunID(runID string) string {
	if len(runID) > 8 {
		return runID[:8]
	}
	return runID
}
