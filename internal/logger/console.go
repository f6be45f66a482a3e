// Package logger provides logging implementations for soundcheck runs.
//
// The logger package offers structured logging of run progress at the
// case and summary levels. Implementations are thread-safe and support
// various output destinations (console, file, etc.).
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"

	"github.com/mstaack/sw-usb-audio/internal/models"
)

// Log level constants for filtering
const (
	levelTrace int = 0
	levelDebug int = 1
	levelInfo  int = 2
	levelWarn  int = 3
	levelError int = 4
)

// ConsoleLogger logs run progress to a writer with timestamps and thread safety.
// All output is prefixed with [HH:MM:SS] timestamps for tracking run flow.
// It supports log level filtering to control message verbosity.
// Color output is automatically enabled for terminal output (os.Stdout/os.Stderr).
type ConsoleLogger struct {
	writer      io.Writer
	logLevel    string
	mutex       sync.Mutex
	colorOutput bool
}

// NewConsoleLogger creates a ConsoleLogger that writes to the provided io.Writer.
// If writer is nil, messages are silently discarded.
// logLevel determines the minimum log level for messages to be output.
// Valid levels: trace, debug, info, warn, error (case-insensitive).
// If logLevel is empty or invalid, defaults to "info".
func NewConsoleLogger(writer io.Writer, logLevel string) *ConsoleLogger {
	return &ConsoleLogger{
		writer:      writer,
		logLevel:    normalizeLogLevel(logLevel),
		mutex:       sync.Mutex{},
		colorOutput: isTerminal(writer),
	}
}

// isTerminal checks if the writer is a terminal that supports colors.
// Returns true for os.Stdout and os.Stderr when they are TTYs.
func isTerminal(w io.Writer) bool {
	if w == nil {
		return false
	}

	if w == os.Stdout || w == os.Stderr {
		// The color library's detection also honors NO_COLOR.
		return !color.NoColor
	}

	return false
}

// normalizeLogLevel converts a log level string to lowercase and validates it.
// Returns "info" as default for empty or invalid levels.
func normalizeLogLevel(level string) string {
	normalized := strings.ToLower(strings.TrimSpace(level))

	validLevels := map[string]bool{
		"trace": true,
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}

	if validLevels[normalized] {
		return normalized
	}

	return "info" // Default level
}

// shouldLog checks if a message at the given level should be logged.
// Returns true if messageLevel >= configured logLevel.
func (cl *ConsoleLogger) shouldLog(messageLevel string) bool {
	return logLevelToInt(messageLevel) >= logLevelToInt(cl.logLevel)
}

// logLevelToInt converts a log level string to its numeric value.
func logLevelToInt(level string) int {
	switch level {
	case "trace":
		return levelTrace
	case "debug":
		return levelDebug
	case "info":
		return levelInfo
	case "warn":
		return levelWarn
	case "error":
		return levelError
	default:
		return levelInfo // Default to info if unknown
	}
}

// LogTrace logs a trace-level message (most verbose).
// Format: "[HH:MM:SS] [TRACE] <message>"
func (cl *ConsoleLogger) LogTrace(message string) {
	cl.logWithLevel("TRACE", message)
}

// LogDebug logs a debug-level message.
// Format: "[HH:MM:SS] [DEBUG] <message>"
func (cl *ConsoleLogger) LogDebug(message string) {
	cl.logWithLevel("DEBUG", message)
}

// LogInfo logs an info-level message.
// Format: "[HH:MM:SS] [INFO] <message>"
func (cl *ConsoleLogger) LogInfo(message string) {
	cl.logWithLevel("INFO", message)
}

// LogWarn logs a warning-level message.
// Format: "[HH:MM:SS] [WARN] <message>"
func (cl *ConsoleLogger) LogWarn(message string) {
	cl.logWithLevel("WARN", message)
}

// LogError logs an error-level message.
// Format: "[HH:MM:SS] [ERROR] <message>"
func (cl *ConsoleLogger) LogError(message string) {
	cl.logWithLevel("ERROR", message)
}

// logWithLevel is a helper that logs a message at the specified level if filtering allows it.
func (cl *ConsoleLogger) logWithLevel(level string, message string) {
	if cl.writer == nil {
		return
	}

	if !cl.shouldLog(strings.ToLower(level)) {
		return
	}

	cl.mutex.Lock()
	defer cl.mutex.Unlock()

	ts := timestamp()
	var formatted string

	if cl.colorOutput {
		formatted = cl.formatWithColor(ts, level, message)
	} else {
		formatted = fmt.Sprintf("[%s] [%s] %s\n", ts, level, message)
	}

	cl.writer.Write([]byte(formatted))
}

// formatWithColor formats a log message with ANSI color codes.
func (cl *ConsoleLogger) formatWithColor(ts, level, message string) string {
	var coloredLevel string

	switch strings.ToUpper(level) {
	case "TRACE":
		coloredLevel = color.New(color.FgHiBlack).Sprint(level)
	case "DEBUG":
		coloredLevel = color.New(color.FgCyan).Sprint(level)
	case "INFO":
		coloredLevel = color.New(color.FgBlue).Sprint(level)
	case "WARN":
		coloredLevel = color.New(color.FgYellow).Sprint(level)
	case "ERROR":
		coloredLevel = color.New(color.FgRed).Sprint(level)
	default:
		coloredLevel = level
	}

	return fmt.Sprintf("[%s] [%s] %s\n", ts, coloredLevel, message)
}

// LogCaseStart logs the start of a case run at INFO level.
// Format: "[HH:MM:SS] Starting case <number> (<name>) on <device>"
func (cl *ConsoleLogger) LogCaseStart(c models.Case) {
	if cl.writer == nil {
		return
	}

	if !cl.shouldLog("info") {
		return
	}

	cl.mutex.Lock()
	defer cl.mutex.Unlock()

	ts := timestamp()
	caseLabel := fmt.Sprintf("case %s (%s)", c.Number, c.Name)

	var message string
	if cl.colorOutput {
		message = fmt.Sprintf("[%s] Starting %s on %s\n", ts, color.New(color.Bold).Sprint(caseLabel), c.Device)
	} else {
		message = fmt.Sprintf("[%s] Starting %s on %s\n", ts, caseLabel, c.Device)
	}

	cl.writer.Write([]byte(message))
}

// LogCaseResult logs the outcome of a case run at INFO level, followed by
// one indented line per verification failure.
// Format: "[HH:MM:SS] Case <number> (<name>): <status> (<duration>)"
func (cl *ConsoleLogger) LogCaseResult(result models.RunResult) error {
	if cl.writer == nil {
		return nil
	}

	if !cl.shouldLog("info") {
		return nil
	}

	cl.mutex.Lock()
	defer cl.mutex.Unlock()

	ts := timestamp()
	caseInfo := fmt.Sprintf("Case %s (%s)", result.Case.Number, result.Case.Name)
	durationStr := formatDuration(result.Duration)

	scheme := newColorScheme()
	statusText := result.Status
	if cl.colorOutput {
		statusText = scheme.statusText(result.Status)
	}

	output := fmt.Sprintf("[%s] %s: %s (%s)\n", ts, caseInfo, statusText, durationStr)

	if result.Error != nil {
		errLine := fmt.Sprintf("  %v", result.Error)
		if cl.colorOutput {
			errLine = scheme.fail.Sprint(errLine)
		}
		output += fmt.Sprintf("[%s] %s\n", ts, errLine)
	}

	for _, failure := range result.Failures {
		line := fmt.Sprintf("  - %s", failure)
		if cl.colorOutput {
			line = scheme.fail.Sprint(line)
		}
		output += fmt.Sprintf("[%s] %s\n", ts, line)
	}

	_, err := cl.writer.Write([]byte(output))
	return err
}

// LogSummary logs the run summary with completion statistics at INFO level.
func (cl *ConsoleLogger) LogSummary(summary models.RunSummary) {
	if cl.writer == nil {
		return
	}

	if !cl.shouldLog("info") {
		return
	}

	cl.mutex.Lock()
	defer cl.mutex.Unlock()

	ts := timestamp()
	durationStr := formatDuration(summary.Duration)

	var output string

	if cl.colorOutput {
		scheme := newColorScheme()
		header := color.New(color.Bold).Sprint("=== Run Summary ===")
		output = fmt.Sprintf("[%s] %s\n", ts, header)
		output += fmt.Sprintf("[%s] Total cases: %d\n", ts, summary.TotalCases)
		output += fmt.Sprintf("[%s] %s\n", ts, scheme.success.Sprintf("Passed: %d", summary.Passed))

		if summary.Failed > 0 {
			output += fmt.Sprintf("[%s] %s\n", ts, scheme.fail.Sprintf("Failed: %d", summary.Failed))
		} else {
			output += fmt.Sprintf("[%s] Failed: %d\n", ts, summary.Failed)
		}
		if summary.Errors > 0 {
			output += fmt.Sprintf("[%s] %s\n", ts, scheme.fail.Sprintf("Errors: %d", summary.Errors))
		} else {
			output += fmt.Sprintf("[%s] Errors: %d\n", ts, summary.Errors)
		}

		output += fmt.Sprintf("[%s] Duration: %s\n", ts, durationStr)

		if len(summary.FailedRuns) > 0 {
			output += fmt.Sprintf("[%s] %s\n", ts, scheme.fail.Sprint("Failed cases:"))
			for _, run := range summary.FailedRuns {
				caseName := scheme.fail.Sprintf("%s (%s)", run.Case.Number, run.Case.Name)
				output += fmt.Sprintf("[%s]   - Case %s: %s\n", ts, caseName, run.Status)
			}
		}
	} else {
		output = fmt.Sprintf("[%s] === Run Summary ===\n", ts)
		output += fmt.Sprintf("[%s] Total cases: %d\n", ts, summary.TotalCases)
		output += fmt.Sprintf("[%s] Passed: %d\n", ts, summary.Passed)
		output += fmt.Sprintf("[%s] Failed: %d\n", ts, summary.Failed)
		output += fmt.Sprintf("[%s] Errors: %d\n", ts, summary.Errors)
		output += fmt.Sprintf("[%s] Duration: %s\n", ts, durationStr)

		if len(summary.FailedRuns) > 0 {
			output += fmt.Sprintf("[%s] Failed cases:\n", ts)
			for _, run := range summary.FailedRuns {
				output += fmt.Sprintf("[%s]   - Case %s (%s): %s\n", ts, run.Case.Number, run.Case.Name, run.Status)
			}
		}
	}

	cl.writer.Write([]byte(output))
}

// LogProgress logs plan progress with a bar, counts, and average case duration.
// Format: "[HH:MM:SS] Progress: [=====     ] 4/8 (50%) - Avg: 27s/case"
func (cl *ConsoleLogger) LogProgress(results []models.RunResult, total int) {
	if cl.writer == nil {
		return
	}

	if !cl.shouldLog("info") {
		return
	}

	cl.mutex.Lock()
	defer cl.mutex.Unlock()

	ts := timestamp()

	completed := len(results)
	totalDuration := time.Duration(0)
	for _, result := range results {
		totalDuration += result.Duration
	}

	pb := NewProgressBar(total, 10, cl.colorOutput)
	pb.Update(completed)

	var avgDurationStr string
	if completed > 0 {
		avgDuration := totalDuration / time.Duration(completed)
		avgDurationStr = fmt.Sprintf(" - Avg: %s/case", formatDuration(avgDuration))
	}

	output := fmt.Sprintf("[%s] Progress: %s%s\n", ts, pb.Render(), avgDurationStr)
	cl.writer.Write([]byte(output))
}

// timestamp returns the current time formatted as "15:04:05" (HH:MM:SS).
func timestamp() string {
	return time.Now().Format("15:04:05")
}

// formatDuration converts a time.Duration to a human-readable string.
// Examples: "5s", "1m30s", "2h15m"
func formatDuration(d time.Duration) string {
	switch {
	case d >= time.Hour:
		hours := d / time.Hour
		remainder := d % time.Hour
		if remainder == 0 {
			return fmt.Sprintf("%dh", hours)
		}
		minutes := remainder / time.Minute
		remainder = remainder % time.Minute
		if remainder == 0 {
			return fmt.Sprintf("%dh%dm", hours, minutes)
		}
		seconds := remainder / time.Second
		return fmt.Sprintf("%dh%dm%ds", hours, minutes, seconds)
	case d >= time.Minute:
		minutes := d / time.Minute
		remainder := d % time.Minute
		if remainder == 0 {
			return fmt.Sprintf("%dm", minutes)
		}
		seconds := remainder / time.Second
		return fmt.Sprintf("%dm%ds", minutes, seconds)
	default:
		return fmt.Sprintf("%ds", int64(d.Seconds()))
	}
}

// NoOpLogger is a Logger implementation that discards all log messages.
// Useful for testing or when logging is disabled.
type NoOpLogger struct{}

// NewNoOpLogger creates a NoOpLogger instance.
func NewNoOpLogger() *NoOpLogger {
	return &NoOpLogger{}
}

// LogCaseStart is a no-op implementation.
func (n *NoOpLogger) LogCaseStart(c models.Case) {
}

// LogCaseResult is a no-op implementation.
func (n *NoOpLogger) LogCaseResult(result models.RunResult) error {
	return nil
}

// LogSummary is a no-op implementation.
func (n *NoOpLogger) LogSummary(summary models.RunSummary) {
}

// LogProgress is a no-op implementation.
func (n *NoOpLogger) LogProgress(results []models.RunResult, total int) {
}

// LogInfo is a no-op implementation.
func (n *NoOpLogger) LogInfo(message string) {
}

// LogWarn is a no-op implementation.
func (n *NoOpLogger) LogWarn(message string) {
}

// LogError is a no-op implementation.
func (n *NoOpLogger) LogError(message string) {
}

// LogDebug is a no-op implementation.
func (n *NoOpLogger) LogDebug(message string) {
}

// LogTrace is a no-op implementation.
func (n *NoOpLogger) LogTrace(message string) {
}
