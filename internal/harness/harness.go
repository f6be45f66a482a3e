// Package harness runs test cases end to end against real hardware:
// device setup, analyzer capture, volume control, verification, and
// record keeping. It coordinates the other packages but owns no policy of
// its own beyond run ordering and cleanup.
package harness

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mstaack/sw-usb-audio/internal/config"
	"github.com/mstaack/sw-usb-audio/internal/expect"
	"github.com/mstaack/sw-usb-audio/internal/history"
	"github.com/mstaack/sw-usb-audio/internal/models"
	"github.com/mstaack/sw-usb-audio/internal/verify"
	"github.com/mstaack/sw-usb-audio/internal/volume"
)

// Fallbacks for a zero-configured harness. Loaded configs carry their own
// values; these only matter when a Harness is built by hand.
const (
	defaultReadyTimeout  = 30 * time.Second
	defaultReadyInterval = time.Second
)

// recordTimeout bounds the history write at the end of a case.
const recordTimeout = 5 * time.Second

// Logger defines the interface for logging harness progress and results.
type Logger interface {
	LogCaseStart(c models.Case)
	LogCaseResult(result models.RunResult) error
	LogSummary(summary models.RunSummary)
	LogProgress(results []models.RunResult, total int)
	LogWarn(message string)
	LogDebug(message string)
}

// Archiver persists raw analyzer transcripts. *artifact.Store satisfies it.
type Archiver interface {
	Save(runID string, lines []string) (string, error)
}

// Recorder persists completed runs. *history.Store satisfies it.
type Recorder interface {
	RecordRun(ctx context.Context, rec *history.Record) error
}

// DeviceLocker serializes access to one device under test.
// *devicelock.Lock satisfies it.
type DeviceLocker interface {
	Acquire(ctx context.Context) error
	Release() error
}

// LockFactory returns the lock handle for a device.
type LockFactory func(device string) DeviceLocker

// Harness runs test cases end to end. Create one with New and reuse it
// for the whole plan. Optional dependencies left nil disable the matching
// feature: a bare Harness still runs cases, it just doesn't lock, archive,
// or record them.
type Harness struct {
	// AnalyzerPath is the audio analyzer binary.
	AnalyzerPath string
	// VolcontrolPath is the volume-control binary, needed by cases that
	// drive a volume control.
	VolcontrolPath string

	// Devices maps device names to their configuration. Cases naming an
	// unknown device error out before touching hardware.
	Devices map[string]config.DeviceConfig

	// Duration is the analyzer run length for cases that don't set one.
	Duration time.Duration
	// SettleDelay is the pause after each volume command, giving the
	// analyzer time to observe the change.
	SettleDelay time.Duration
	// InitialSettle is the pause between analyzer start and the first
	// volume command.
	InitialSettle time.Duration
	// ReadyTimeout bounds readiness probing after device setup.
	ReadyTimeout time.Duration
	// ReadyInterval is the pause between readiness probe attempts.
	ReadyInterval time.Duration

	Starter AnalyzerStarter      // nil means ExecStarter
	Runner  volume.CommandRunner // nil means volume.ExecCommandRunner
	Locks   LockFactory          // nil disables device locking
	Archive Archiver             // nil disables transcript archiving
	History Recorder             // nil disables history recording
	Logger  Logger               // nil disables logging

	clock func() time.Time
}

// New creates a Harness from the loaded configuration. The optional
// dependencies (Locks, Archive, History, Logger) start unset.
func New(cfg *config.Config) *Harness {
	return &Harness{
		AnalyzerPath:   cfg.AnalyzerPath,
		VolcontrolPath: cfg.VolcontrolPath,
		Devices:        cfg.Devices,
		Duration:       cfg.Duration,
		SettleDelay:    cfg.SettleDelay,
		InitialSettle:  cfg.InitialSettle,
		ReadyTimeout:   cfg.ReadyTimeout,
		ReadyInterval:  cfg.ReadyInterval,
		clock:          time.Now,
	}
}

// Run executes the cases in order and returns the aggregate summary.
// SIGINT and SIGTERM cancel the run gracefully: the in-flight case is
// killed and recorded as an error, finished results are kept, and the
// summary still covers the full selection.
func (h *Harness) Run(ctx context.Context, cases []models.Case) (*models.RunSummary, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case <-sigChan:
			h.logWarn("Interrupt received, stopping after the current case")
			cancel()
		case <-ctx.Done():
		}
	}()

	start := h.now()
	results := make([]models.RunResult, 0, len(cases))
	for _, c := range cases {
		if ctx.Err() != nil {
			break
		}
		results = append(results, h.RunCase(ctx, c))
		h.logProgress(results, len(cases))
	}

	summary := summarize(cases, results, h.now().Sub(start))
	if h.Logger != nil {
		h.Logger.LogSummary(*summary)
	}
	if err := ctx.Err(); err != nil {
		return summary, fmt.Errorf("run interrupted: %w", err)
	}
	return summary, nil
}

// RunCase executes a single case and returns its result. The analyzer
// transcript is archived and the run recorded even when the case errors,
// so aborted runs stay diagnosable.
func (h *Harness) RunCase(ctx context.Context, c models.Case) models.RunResult {
	res := models.RunResult{
		Case:      c,
		RunID:     history.NewRunID(),
		StartedAt: h.now(),
	}
	if h.Logger != nil {
		h.Logger.LogCaseStart(c)
	}

	transcript, exps, runErr := h.execute(ctx, c)
	res.Duration = h.now().Sub(res.StartedAt)

	if runErr != nil {
		res.Status = models.StatusError
		res.Error = runErr
	} else if report, err := verify.Check(transcript, exps); err != nil {
		res.Status = models.StatusError
		res.Error = err
	} else if report.Failed() {
		res.Status = models.StatusFailed
		res.Failures = report.Failures()
	} else {
		res.Status = models.StatusPassed
	}

	h.archive(&res, transcript)
	h.record(&res)

	if h.Logger != nil {
		if err := h.Logger.LogCaseResult(res); err != nil {
			h.logWarn(fmt.Sprintf("Failed to log result for case %s: %v", c.Number, err))
		}
	}
	return res
}

// execute performs the hardware run for one case and returns the captured
// transcript plus the expectations to verify it against. The transcript
// is best effort on error paths: whatever the analyzer produced before
// the failure comes back for archiving.
func (h *Harness) execute(ctx context.Context, c models.Case) ([]string, []models.Expectation, error) {
	if err := c.Validate(); err != nil {
		return nil, nil, err
	}
	dev, ok := h.Devices[c.Device]
	if !ok {
		return nil, nil, fmt.Errorf("device %s is not configured", c.Device)
	}

	set, err := expect.ParseFile(h.resolveConfig(c))
	if err != nil {
		return nil, nil, err
	}

	side := c.Side()
	configPath := set.FilePath
	if c.HasVolumeControl() {
		if c.IsMaster() {
			set.MarkAllVolumeCheck(side)
		} else {
			idx, err := c.ChannelIndex()
			if err != nil {
				return nil, nil, err
			}
			if err := set.MarkVolumeCheck(side, idx); err != nil {
				return nil, nil, err
			}
		}
		// The analyzer must see the volcheck overrides, so the marked set
		// goes to a scratch file for this run.
		tmp, err := writeScratchSet(set)
		if err != nil {
			return nil, nil, err
		}
		defer os.Remove(tmp)
		configPath = tmp
	}
	exps := set.Side(side)

	if h.Locks != nil {
		lock := h.Locks(c.Device)
		if err := lock.Acquire(ctx); err != nil {
			return nil, nil, err
		}
		defer lock.Release()
	}

	if err := h.setupDevice(ctx, c.Device, dev); err != nil {
		return nil, nil, err
	}
	if err := h.waitReady(ctx, c.Device, dev); err != nil {
		return nil, nil, err
	}

	// Per-case context so an error mid-run kills the analyzer.
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	duration := c.Duration
	if duration == 0 {
		duration = h.Duration
	}
	args := []string{
		strconv.Itoa(c.SampleRate),
		strconv.FormatInt(duration.Milliseconds(), 10),
		configPath,
	}
	h.logDebug(fmt.Sprintf("Starting analyzer: %s %s", h.AnalyzerPath, strings.Join(args, " ")))
	proc, err := h.starter().Start(runCtx, h.AnalyzerPath, args...)
	if err != nil {
		return nil, nil, err
	}

	if err := h.driveCase(runCtx, c, dev); err != nil {
		// Kill the analyzer and keep whatever it printed so far.
		cancel()
		transcript, _ := proc.Wait()
		return transcript, nil, err
	}

	transcript, err := proc.Wait()
	if err != nil {
		return transcript, nil, err
	}
	return transcript, exps, nil
}

// driveCase covers the in-run activity between analyzer start and exit:
// the initial settle, then the volume script when the case drives a
// control.
func (h *Harness) driveCase(ctx context.Context, c models.Case, dev config.DeviceConfig) error {
	if err := sleepCtx(ctx, h.InitialSettle); err != nil {
		return err
	}
	if !c.HasVolumeControl() {
		return nil
	}

	ctrl, err := h.controller(c, dev)
	if err != nil {
		return err
	}
	return ctrl.RunScript(ctx, volume.DefaultScript())
}

// controller builds the volume controller for the case's channel, or the
// master control when the case says so.
func (h *Harness) controller(c models.Case, dev config.DeviceConfig) (*volume.Controller, error) {
	var ctrl *volume.Controller
	if c.IsMaster() {
		ctrl = volume.NewMasterController(h.VolcontrolPath, c.Side(), dev.Channels)
	} else {
		idx, err := c.ChannelIndex()
		if err != nil {
			return nil, err
		}
		ctrl, err = volume.NewController(h.VolcontrolPath, c.Side(), dev.Channels, idx)
		if err != nil {
			return nil, err
		}
	}
	ctrl.SettleDelay = h.SettleDelay
	ctrl.Runner = h.Runner
	return ctrl, nil
}

// setupDevice runs the configured setup commands, typically firmware
// flashing, before the analyzer starts.
func (h *Harness) setupDevice(ctx context.Context, device string, dev config.DeviceConfig) error {
	for _, argv := range dev.SetupCommands {
		if len(argv) == 0 {
			continue
		}
		h.logDebug(fmt.Sprintf("Running setup for %s: %s", device, strings.Join(argv, " ")))
		if out, err := h.runner().Run(ctx, argv[0], argv[1:]...); err != nil {
			return fmt.Errorf("setup command %q failed: %w (output: %s)",
				strings.Join(argv, " "), err, strings.TrimSpace(out))
		}
	}
	return nil
}

// waitReady polls the device readiness probe until it succeeds. Devices
// need time to re-enumerate after flashing; the probe decides when the
// audio interface is usable again.
func (h *Harness) waitReady(ctx context.Context, device string, dev config.DeviceConfig) error {
	if len(dev.ReadyCommand) == 0 {
		return nil
	}

	timeout := h.ReadyTimeout
	if timeout <= 0 {
		timeout = defaultReadyTimeout
	}
	interval := h.ReadyInterval
	if interval <= 0 {
		interval = defaultReadyInterval
	}

	deadline := h.now().Add(timeout)
	for {
		_, err := h.runner().Run(ctx, dev.ReadyCommand[0], dev.ReadyCommand[1:]...)
		if err == nil {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if h.now().After(deadline) {
			return fmt.Errorf("device %s not ready after %s: %w", device, timeout, err)
		}
		h.logDebug(fmt.Sprintf("Device %s not ready yet, retrying", device))
		if err := sleepCtx(ctx, interval); err != nil {
			return err
		}
	}
}

// resolveConfig locates the case's expectation file. Relative paths
// resolve against the plan file's directory, so plans can refer to
// configs that live next to them.
func (h *Harness) resolveConfig(c models.Case) string {
	if filepath.IsAbs(c.Config) || c.SourceFile == "" {
		return c.Config
	}
	return filepath.Join(filepath.Dir(c.SourceFile), c.Config)
}

// writeScratchSet writes a marked expectation set to a temp file for the
// analyzer to read. The caller removes the file after the run.
func writeScratchSet(set *expect.Set) (string, error) {
	f, err := os.CreateTemp("", "soundcheck-expect-*.json")
	if err != nil {
		return "", fmt.Errorf("create scratch expectation file: %w", err)
	}
	path := f.Name()
	if err := set.WriteJSON(f); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("write scratch expectation file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("close scratch expectation file: %w", err)
	}
	return path, nil
}

// archive saves the transcript and points the result at it. Archiving is
// best effort; a failed save downgrades to a warning so the verification
// outcome survives.
func (h *Harness) archive(res *models.RunResult, transcript []string) {
	if h.Archive == nil || len(transcript) == 0 {
		return
	}
	path, err := h.Archive.Save(res.RunID, transcript)
	if err != nil {
		h.logWarn(fmt.Sprintf("Failed to archive transcript for run %s: %v", res.RunID, err))
		return
	}
	res.TranscriptPath = path
}

// record persists the run. It uses a fresh context so an interrupt that
// killed the case cannot also suppress its history row.
func (h *Harness) record(res *models.RunResult) {
	if h.History == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()
	if err := h.History.RecordRun(ctx, history.RecordFromResult(res)); err != nil {
		h.logWarn(fmt.Sprintf("Failed to record run %s: %v", res.RunID, err))
	}
}

// summarize aggregates per-case results. Cases never started because the
// run was interrupted count as neither passed nor failed; TotalCases
// still reflects the full selection.
func summarize(cases []models.Case, results []models.RunResult, duration time.Duration) *models.RunSummary {
	summary := &models.RunSummary{
		TotalCases: len(cases),
		Duration:   duration,
	}
	for _, res := range results {
		switch res.Status {
		case models.StatusPassed:
			summary.Passed++
		case models.StatusFailed:
			summary.Failed++
			summary.FailedRuns = append(summary.FailedRuns, res)
		default:
			summary.Errors++
			summary.FailedRuns = append(summary.FailedRuns, res)
		}
	}
	return summary
}

func (h *Harness) starter() AnalyzerStarter {
	if h.Starter != nil {
		return h.Starter
	}
	return ExecStarter{}
}

func (h *Harness) runner() volume.CommandRunner {
	if h.Runner != nil {
		return h.Runner
	}
	return volume.ExecCommandRunner{}
}

func (h *Harness) now() time.Time {
	if h.clock != nil {
		return h.clock()
	}
	return time.Now()
}

func (h *Harness) logWarn(message string) {
	if h.Logger != nil {
		h.Logger.LogWarn(message)
	}
}

func (h *Harness) logDebug(message string) {
	if h.Logger != nil {
		h.Logger.LogDebug(message)
	}
}

func (h *Harness) logProgress(results []models.RunResult, total int) {
	if h.Logger != nil {
		h.Logger.LogProgress(results, total)
	}
}

// sleepCtx waits out d unless ctx is done first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
