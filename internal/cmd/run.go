package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mstaack/sw-usb-audio/internal/artifact"
	"github.com/mstaack/sw-usb-audio/internal/config"
	"github.com/mstaack/sw-usb-audio/internal/devicelock"
	"github.com/mstaack/sw-usb-audio/internal/harness"
	"github.com/mstaack/sw-usb-audio/internal/history"
	"github.com/mstaack/sw-usb-audio/internal/logger"
	"github.com/mstaack/sw-usb-audio/internal/models"
	"github.com/mstaack/sw-usb-audio/internal/testplan"
)

// NewRunCommand creates the run command
func NewRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <plan-file-or-directory>...",
		Short: "Run a test plan against hardware",
		Long: `Run the test cases of a plan against real hardware.

The run command parses the specified plan file(s) or directory (Markdown
or YAML format), selects the cases for the requested test level, and runs
each one: device setup, analyzer capture, volume control, verification.
Raw analyzer transcripts are archived and every run is recorded in the
history database.

Multiple plan files or directories are merged into a single plan;
duplicate case numbers across files are rejected.

Configuration is loaded from .soundcheck/config.yaml if present.
CLI flags override configuration file settings.

Examples:
  # Single plan file
  soundcheck run plan.yaml

  # Directory of plan files
  soundcheck run plans/nightly/

  # Only the smoke-level cases
  soundcheck run --level smoke plan.yaml

  # Only one device
  soundcheck run --device xk_evk_xu316 plan.yaml

  # Other options
  soundcheck run --dry-run plan.yaml       # List selected cases without running
  soundcheck run --duration 10s plan.yaml  # Shorter analyzer runs
  soundcheck run --verbose plan.yaml       # Show detailed progress
  soundcheck run --log-dir ./logs plan.md  # Use custom log directory
  soundcheck run --config custom.yaml plan.md  # Use custom config file`,
		Args: cobra.MinimumNArgs(1),
		RunE: runCommand,
	}

	// Add flags
	cmd.Flags().String("config", "", "Path to config file (default: .soundcheck/config.yaml)")
	cmd.Flags().Bool("dry-run", false, "List the selected cases without touching hardware")
	cmd.Flags().String("level", "", "Test level to run at (smoke, nightly, weekend)")
	cmd.Flags().String("device", "", "Only run cases for this device")
	cmd.Flags().String("duration", "", "Analyzer run time per case (e.g. 25s, 2m)")
	cmd.Flags().String("analyzer", "", "Path to the signal-analyzer binary")
	cmd.Flags().String("volcontrol", "", "Path to the volume-control binary")
	cmd.Flags().String("log-dir", "", "Directory for log files")
	cmd.Flags().Bool("verbose", false, "Show detailed execution information")
	cmd.Flags().String("db", "", "Path to the run-history database")
	cmd.Flags().Bool("no-history", false, "Do not record runs in the history database")
	cmd.Flags().Bool("no-lock", false, "Skip per-device locking (single-user bench)")

	return cmd
}

// runCommand implements the run command logic
func runCommand(cmd *cobra.Command, args []string) error {
	// Load configuration from file
	configPath, _ := cmd.Flags().GetString("config")
	var cfg *config.Config
	var err error

	if configPath != "" {
		// Load from explicit config path
		cfg, err = config.LoadConfig(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config from %s: %w", configPath, err)
		}
	} else {
		// Load from default .soundcheck/config.yaml
		cfg, err = config.LoadConfigFromDir(".")
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
	}

	// Get flag values
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	level, _ := cmd.Flags().GetString("level")
	deviceFilter, _ := cmd.Flags().GetString("device")
	durationStr, _ := cmd.Flags().GetString("duration")
	verbose, _ := cmd.Flags().GetBool("verbose")
	noHistory, _ := cmd.Flags().GetBool("no-history")
	noLock, _ := cmd.Flags().GetBool("no-lock")

	if level != "" && !models.ValidLevel(level) {
		return fmt.Errorf("unknown level %q (want %s, %s or %s)",
			level, models.LevelSmoke, models.LevelNightly, models.LevelWeekend)
	}

	// Build flag pointers for merge (only non-default values)
	var durationPtr *time.Duration
	if cmd.Flags().Changed("duration") {
		duration, err := time.ParseDuration(durationStr)
		if err != nil {
			return fmt.Errorf("invalid duration format %q: %w", durationStr, err)
		}
		durationPtr = &duration
	}

	var logDirPtr *string
	if cmd.Flags().Changed("log-dir") {
		logDir, _ := cmd.Flags().GetString("log-dir")
		logDirPtr = &logDir
	}

	var analyzerPtr *string
	if cmd.Flags().Changed("analyzer") {
		analyzer, _ := cmd.Flags().GetString("analyzer")
		analyzerPtr = &analyzer
	}

	var volcontrolPtr *string
	if cmd.Flags().Changed("volcontrol") {
		volcontrol, _ := cmd.Flags().GetString("volcontrol")
		volcontrolPtr = &volcontrol
	}

	// Verbose flag overrides the configured log level
	var logLevelPtr *string
	if verbose {
		debugLevel := "debug"
		logLevelPtr = &debugLevel
	}

	// Merge CLI flags with config (flags take precedence)
	cfg.MergeWithFlags(logLevelPtr, logDirPtr, durationPtr, analyzerPtr, volcontrolPtr)

	// Validate merged configuration
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if dbPath, _ := cmd.Flags().GetString("db"); dbPath != "" {
		cfg.HistoryDB = dbPath
	}

	// Load and parse plan file(s)
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Loading plan from %s...\n", strings.Join(args, ", "))
	plan, err := testplan.ParsePaths(args)
	if err != nil {
		return fmt.Errorf("failed to load plan: %w", err)
	}

	if len(plan.Cases) == 0 {
		fmt.Fprintf(out, "Plan is valid but contains no cases.\n")
		return nil
	}
	if err := plan.Validate(); err != nil {
		return fmt.Errorf("invalid plan: %w", err)
	}

	// Select cases for this invocation
	cases := plan.CasesAtLevel(level)
	if deviceFilter != "" {
		var filtered []models.Case
		for _, c := range cases {
			if c.Device == deviceFilter {
				filtered = append(filtered, c)
			}
		}
		cases = filtered
	}

	// Every selected case must name a device the bench knows
	for _, c := range cases {
		if _, ok := cfg.Device(c.Device); !ok {
			return fmt.Errorf("case %s: device %q not in the device table (known: %s)",
				c.Number, c.Device, strings.Join(cfg.DeviceNames(), ", "))
		}
	}

	// Display plan summary
	fmt.Fprintf(out, "\nPlan Summary:\n")
	fmt.Fprintf(out, "  Plan: %s\n", plan.Name)
	fmt.Fprintf(out, "  Cases selected: %d of %d\n", len(cases), len(plan.Cases))
	if level != "" {
		fmt.Fprintf(out, "  Level: %s\n", level)
	}
	if deviceFilter != "" {
		fmt.Fprintf(out, "  Device: %s\n", deviceFilter)
	}
	fmt.Fprintf(out, "  Default duration: %s\n", cfg.Duration)
	if configPath != "" {
		fmt.Fprintf(out, "  Config: %s\n", configPath)
	}

	if len(cases) == 0 {
		fmt.Fprintf(out, "\nNo cases selected.\n")
		return nil
	}

	// Dry-run mode: list only
	if dryRun {
		fmt.Fprintf(out, "\nDry-run mode: cases that would run:\n")
		for _, c := range cases {
			fmt.Fprintf(out, "  - Case %s: %s (%s @ %d Hz%s)\n",
				c.Number, c.Name, c.Device, c.SampleRate, describeVolume(c))
		}
		return nil
	}

	// Full execution mode: assemble the harness and run
	fmt.Fprintf(out, "\nStarting run...\n\n")

	// Create console logger for real-time progress
	consoleLog := logger.NewConsoleLogger(os.Stdout, cfg.LogLevel)

	// Create file logger for detailed logs
	fileLog, err := logger.NewFileLoggerWithDirAndLevel(cfg.LogDir, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	defer fileLog.Close()

	// Create multi-logger that writes to both console and file
	multiLog := &multiLogger{
		loggers: []harness.Logger{consoleLog, fileLog},
	}

	h := harness.New(cfg)
	h.Logger = multiLog

	if !noLock {
		lockDir := cfg.LockDir
		if lockDir == "" {
			lockDir, err = config.GetLocksDir()
			if err != nil {
				return fmt.Errorf("failed to resolve lock directory: %w", err)
			}
		}
		h.Locks = func(device string) harness.DeviceLocker {
			return devicelock.New(lockDir, device)
		}
	}

	artifactsDir := cfg.ArtifactsDir
	if artifactsDir == "" {
		artifactsDir, err = config.GetArtifactsDir()
		if err != nil {
			return fmt.Errorf("failed to resolve artifacts directory: %w", err)
		}
	}
	archive := artifact.NewStore(artifactsDir)
	h.Archive = archive

	var store *history.Store
	if !noHistory {
		dbPath := cfg.HistoryDB
		if dbPath == "" {
			dbPath, err = config.GetHistoryDBPath()
			if err != nil {
				return fmt.Errorf("failed to resolve history database path: %w", err)
			}
		}
		store, err = history.NewStore(dbPath)
		if err != nil {
			return fmt.Errorf("failed to open history database: %w", err)
		}
		defer store.Close()
		h.History = store
	}

	// Execute the plan
	summary, runErr := h.Run(context.Background(), cases)

	// Retention housekeeping is best effort; the run outcome stands on its own
	if cfg.RetentionDays > 0 {
		if _, err := archive.PruneOlderThan(time.Duration(cfg.RetentionDays) * 24 * time.Hour); err != nil {
			consoleLog.LogWarn(fmt.Sprintf("Failed to prune old transcripts: %v", err))
		}
		if store != nil {
			if _, err := store.PruneOlderThan(context.Background(), cfg.RetentionDays); err != nil {
				consoleLog.LogWarn(fmt.Sprintf("Failed to prune old history records: %v", err))
			}
		}
	}

	if runErr != nil {
		return runErr
	}

	// Display completion message
	notPassed := summary.Failed + summary.Errors
	if notPassed > 0 {
		fmt.Fprintf(out, "\nRun completed with %d case(s) not passing.\n", notPassed)
		return fmt.Errorf("%d of %d case(s) did not pass", notPassed, summary.TotalCases)
	}

	fmt.Fprintf(out, "\nRun completed successfully!\n")
	fmt.Fprintf(out, "Logs written to: %s\n", cfg.LogDir)

	return nil
}

// describeVolume renders the volume-control part of a dry-run case line.
func describeVolume(c models.Case) string {
	switch {
	case c.IsMaster():
		return ", master volume"
	case c.HasVolumeControl():
		return fmt.Sprintf(", volume channel %s", c.Channel)
	default:
		return ""
	}
}

// multiLogger implements harness.Logger by delegating to multiple loggers
type multiLogger struct {
	loggers []harness.Logger
}

// LogCaseStart forwards to all loggers
func (ml *multiLogger) LogCaseStart(c models.Case) {
	for _, logger := range ml.loggers {
		logger.LogCaseStart(c)
	}
}

// LogCaseResult forwards to all loggers
func (ml *multiLogger) LogCaseResult(result models.RunResult) error {
	var lastErr error
	for _, logger := range ml.loggers {
		if err := logger.LogCaseResult(result); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// LogSummary forwards to all loggers
func (ml *multiLogger) LogSummary(summary models.RunSummary) {
	for _, logger := range ml.loggers {
		logger.LogSummary(summary)
	}
}

// LogProgress forwards to all loggers
func (ml *multiLogger) LogProgress(results []models.RunResult, total int) {
	for _, logger := range ml.loggers {
		logger.LogProgress(results, total)
	}
}

// LogWarn forwards to all loggers
func (ml *multiLogger) LogWarn(message string) {
	for _, logger := range ml.loggers {
		logger.LogWarn(message)
	}
}

// LogDebug forwards to all loggers
func (ml *multiLogger) LogDebug(message string) {
	for _, logger := range ml.loggers {
		logger.LogDebug(message)
	}
}
