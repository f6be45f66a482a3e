// Package volume drives a device's volume controls through the external
// volume-control binary. The binary numbers controls from 1 and reserves
// argument 0 for the master control; channel indices in the rest of this
// codebase start at 0, so the off-by-one lives here and nowhere else.
package volume

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"time"

	"github.com/mstaack/sw-usb-audio/internal/models"
)

// DefaultSettleDelay is how long the analyzer needs to observe a volume
// change before the next one is safe to apply.
const DefaultSettleDelay = 3 * time.Second

// CommandRunner abstracts execution of the volume-control binary
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) (output string, err error)
}

// ExecCommandRunner executes real commands via the OS
type ExecCommandRunner struct{}

// Run executes the command and returns combined stdout/stderr
func (ExecCommandRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	output, err := cmd.CombinedOutput()
	return string(output), err
}

// DefaultScript is the post-reset sequence of control settings a volume
// check drives: down to half scale, back to full, down a quarter, back to
// full. The analyzer sees each transition as one volume-change reading.
func DefaultScript() []float64 {
	return []float64{0.5, 1.0, 0.75, 1.0}
}

// Controller drives one volume control, either a single channel or the
// master control, for one side of the interface.
type Controller struct {
	Binary      string           // Path to the volume-control binary
	Direction   models.Direction // Side of the interface the control belongs to
	NumChannels int              // Channel count of the device side under test
	SettleDelay time.Duration    // Zero means DefaultSettleDelay
	Runner      CommandRunner    // Nil means ExecCommandRunner

	channelArg string
}

// NewController returns a controller for a single channel, numbered from 0.
func NewController(binary string, dir models.Direction, numChannels, channel int) (*Controller, error) {
	if channel < 0 || channel >= numChannels {
		return nil, fmt.Errorf("channel %d out of range for %d channels", channel, numChannels)
	}
	c := newController(binary, dir, numChannels)
	c.channelArg = strconv.Itoa(channel + 1)
	return c, nil
}

// NewMasterController returns a controller for the master control.
func NewMasterController(binary string, dir models.Direction, numChannels int) *Controller {
	c := newController(binary, dir, numChannels)
	c.channelArg = "0"
	return c
}

func newController(binary string, dir models.Direction, numChannels int) *Controller {
	return &Controller{
		Binary:      binary,
		Direction:   dir,
		NumChannels: numChannels,
		Runner:      ExecCommandRunner{},
	}
}

// Reset restores every control to full scale, then waits out the settle
// delay so the analyzer can observe the change.
func (c *Controller) Reset(ctx context.Context) error {
	resetChans := strconv.Itoa(c.NumChannels + 1)
	if _, err := c.runner().Run(ctx, c.Binary, "--resetall", resetChans); err != nil {
		return fmt.Errorf("volume reset failed: %w", err)
	}
	return c.settle(ctx)
}

// Set moves the control to value (a 0.0 to 1.0 fraction of full scale),
// then waits out the settle delay.
func (c *Controller) Set(ctx context.Context, value float64) error {
	arg := strconv.FormatFloat(value, 'g', -1, 64)
	if _, err := c.runner().Run(ctx, c.Binary, "--set", c.Direction.String(), c.channelArg, arg); err != nil {
		return fmt.Errorf("volume set %s failed: %w", arg, err)
	}
	return c.settle(ctx)
}

// RunScript resets the control and applies each step in order. This is the
// sequence a volume-check expectation verifies against.
func (c *Controller) RunScript(ctx context.Context, steps []float64) error {
	if err := c.Reset(ctx); err != nil {
		return err
	}
	for _, step := range steps {
		if err := c.Set(ctx, step); err != nil {
			return err
		}
	}
	return nil
}

func (c *Controller) runner() CommandRunner {
	if c.Runner != nil {
		return c.Runner
	}
	return ExecCommandRunner{}
}

func (c *Controller) settle(ctx context.Context) error {
	delay := c.SettleDelay
	if delay == 0 {
		delay = DefaultSettleDelay
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
