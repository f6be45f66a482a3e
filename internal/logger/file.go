package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/mstaack/sw-usb-audio/internal/models"
)

// FileLogger logs run events to files in .soundcheck/logs/.
// It creates timestamped per-run log files, per-case detailed logs,
// and maintains a latest.log symlink pointing to the most recent run.
// It is thread-safe and supports log level filtering.
type FileLogger struct {
	logDir   string
	runLog   *os.File
	runFile  string
	casesDir string
	logLevel string
	mu       sync.Mutex
}

// NewFileLogger creates a new FileLogger that writes to .soundcheck/logs/.
// It creates the log directory if it doesn't exist, opens a timestamped
// run log file, and creates/updates the latest.log symlink.
// Uses default log level "info".
func NewFileLogger() (*FileLogger, error) {
	logDir := filepath.Join(".soundcheck", "logs")
	return NewFileLoggerWithDirAndLevel(logDir, "info")
}

// NewFileLoggerWithDir creates a new FileLogger with a custom log directory.
// Uses default log level "info".
func NewFileLoggerWithDir(logDir string) (*FileLogger, error) {
	return NewFileLoggerWithDirAndLevel(logDir, "info")
}

// NewFileLoggerWithDirAndLevel creates a new FileLogger with a custom log
// directory and log level.
func NewFileLoggerWithDirAndLevel(logDir string, logLevel string) (*FileLogger, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	casesDir := filepath.Join(logDir, "cases")
	if err := os.MkdirAll(casesDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cases directory: %w", err)
	}

	// Timestamped filename: run-YYYYMMDD-HHMMSS.log
	timestamp := time.Now().Format("20060102-150405")
	runFile := filepath.Join(logDir, fmt.Sprintf("run-%s.log", timestamp))

	file, err := os.OpenFile(runFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create run log file: %w", err)
	}

	symlinkPath := filepath.Join(logDir, "latest.log")

	if _, err := os.Lstat(symlinkPath); err == nil {
		if err := os.Remove(symlinkPath); err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to remove old symlink: %w", err)
		}
	}

	if err := os.Symlink(filepath.Base(runFile), symlinkPath); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to create symlink: %w", err)
	}

	logger := &FileLogger{
		logDir:   logDir,
		runLog:   file,
		runFile:  runFile,
		casesDir: casesDir,
		logLevel: normalizeLogLevel(logLevel),
		mu:       sync.Mutex{},
	}

	logger.writeRunLog("=== Soundcheck Run Log ===\n")
	logger.writeRunLog(fmt.Sprintf("Started at: %s\n\n", time.Now().Format(time.RFC3339)))

	return logger, nil
}

// shouldLog checks if a message at the given level should be logged.
func (fl *FileLogger) shouldLog(messageLevel string) bool {
	return logLevelToInt(messageLevel) >= logLevelToInt(fl.logLevel)
}

// LogTrace logs a trace-level message (most verbose).
func (fl *FileLogger) LogTrace(message string) {
	fl.logWithLevel("TRACE", message)
}

// LogDebug logs a debug-level message.
func (fl *FileLogger) LogDebug(message string) {
	fl.logWithLevel("DEBUG", message)
}

// LogInfo logs an info-level message.
func (fl *FileLogger) LogInfo(message string) {
	fl.logWithLevel("INFO", message)
}

// LogWarn logs a warning-level message.
func (fl *FileLogger) LogWarn(message string) {
	fl.logWithLevel("WARN", message)
}

// LogError logs an error-level message.
func (fl *FileLogger) LogError(message string) {
	fl.logWithLevel("ERROR", message)
}

// logWithLevel is a helper that logs a message at the specified level if filtering allows it.
func (fl *FileLogger) logWithLevel(level string, message string) {
	if !fl.shouldLog(strings.ToLower(level)) {
		return
	}

	formatted := fmt.Sprintf("[%s] [%s] %s\n", time.Now().Format("15:04:05"), level, message)
	fl.writeRunLog(formatted)
}

// LogCaseStart logs the start of a case run at INFO level.
func (fl *FileLogger) LogCaseStart(c models.Case) {
	if !fl.shouldLog("info") {
		return
	}

	message := fmt.Sprintf(
		"[%s] Starting case %s (%s) on %s: config %s, %d Hz, channel %s\n",
		time.Now().Format("15:04:05"),
		c.Number,
		c.Name,
		c.Device,
		c.Config,
		c.SampleRate,
		c.Channel,
	)

	fl.writeRunLog(message)
}

// LogCaseResult writes a one-line outcome to the run log and a detailed
// per-case file under cases/.
func (fl *FileLogger) LogCaseResult(result models.RunResult) error {
	if fl.shouldLog("info") {
		message := fmt.Sprintf(
			"[%s] Case %s (%s): %s, duration %.1fs\n",
			time.Now().Format("15:04:05"),
			result.Case.Number,
			result.Case.Name,
			result.Status,
			result.Duration.Seconds(),
		)
		fl.writeRunLog(message)
	}

	return fl.writeCaseLog(result)
}

// writeCaseLog creates a detailed log file for one case run.
func (fl *FileLogger) writeCaseLog(result models.RunResult) error {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	caseLogPath := filepath.Join(fl.casesDir, fmt.Sprintf("case-%s.log", result.Case.Number))

	file, err := os.OpenFile(caseLogPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to create case log file: %w", err)
	}
	defer file.Close()

	content := fmt.Sprintf("=== Case %s: %s ===\n", result.Case.Number, result.Case.Name)
	content += fmt.Sprintf("Run ID: %s\n", result.RunID)
	content += fmt.Sprintf("Device: %s\n", result.Case.Device)
	content += fmt.Sprintf("Config: %s\n", result.Case.Config)
	content += fmt.Sprintf("Sample rate: %d\n", result.Case.SampleRate)
	content += fmt.Sprintf("Channel: %s\n", result.Case.Channel)
	content += fmt.Sprintf("Status: %s\n", result.Status)
	content += fmt.Sprintf("Duration: %.1fs\n", result.Duration.Seconds())
	content += "\n"

	if result.Error != nil {
		content += fmt.Sprintf("Error:\n%v\n\n", result.Error)
	}

	if len(result.Failures) > 0 {
		content += "Failures:\n"
		for _, failure := range result.Failures {
			content += fmt.Sprintf("  - %s\n", failure)
		}
		content += "\n"
	}

	if result.TranscriptPath != "" {
		content += fmt.Sprintf("Transcript: %s\n", result.TranscriptPath)
	}

	content += fmt.Sprintf("Completed at: %s\n", time.Now().Format(time.RFC3339))

	if _, err := file.WriteString(content); err != nil {
		return fmt.Errorf("failed to write case log: %w", err)
	}

	return nil
}

// LogSummary logs the run summary with final statistics at INFO level.
func (fl *FileLogger) LogSummary(summary models.RunSummary) {
	if !fl.shouldLog("info") {
		return
	}

	timestamp := time.Now().Format("15:04:05")

	status := "SUCCESS"
	if summary.Failed > 0 || summary.Errors > 0 {
		if summary.Passed == 0 {
			status = "FAILED"
		} else {
			status = "PARTIAL"
		}
	}

	message := fmt.Sprintf(
		"\n[%s] === RUN SUMMARY ===\n"+
			"[%s] Total cases:  %d\n"+
			"[%s] Passed:       %d\n"+
			"[%s] Failed:       %d\n"+
			"[%s] Errors:       %d\n"+
			"[%s] Total time:   %.1fs\n"+
			"[%s] Status:       %s (%d/%d cases passed)\n"+
			"[%s] Completed at: %s\n",
		timestamp,
		timestamp,
		summary.TotalCases,
		timestamp,
		summary.Passed,
		timestamp,
		summary.Failed,
		timestamp,
		summary.Errors,
		timestamp,
		summary.Duration.Seconds(),
		timestamp,
		status,
		summary.Passed,
		summary.TotalCases,
		timestamp,
		time.Now().Format(time.RFC3339),
	)

	fl.writeRunLog(message)
}

// LogProgress is a no-op for the file logger.
// Progress bars are console-only.
func (fl *FileLogger) LogProgress(results []models.RunResult, total int) {
}

// RunFile returns the path of the current run log file.
func (fl *FileLogger) RunFile() string {
	return fl.runFile
}

// Close flushes and closes the run log file.
// It should be called when the logger is no longer needed.
func (fl *FileLogger) Close() error {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	if fl.runLog != nil {
		if err := fl.runLog.Sync(); err != nil {
			return fmt.Errorf("failed to sync run log: %w", err)
		}
		if err := fl.runLog.Close(); err != nil {
			return fmt.Errorf("failed to close run log: %w", err)
		}
		fl.runLog = nil
	}

	return nil
}

// writeRunLog is a thread-safe helper to write to the run log file.
func (fl *FileLogger) writeRunLog(message string) {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	if fl.runLog != nil {
		fl.runLog.WriteString(message)
		// Flush after each write for real-time logging
		fl.runLog.Sync()
	}
}
