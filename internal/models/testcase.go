package models

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Test levels, in increasing order of coverage. A case tagged for a level
// also runs at every higher level; an untagged case runs everywhere.
const (
	LevelSmoke   = "smoke"
	LevelNightly = "nightly"
	LevelWeekend = "weekend"
)

// MasterChannel is the Channel value selecting the master volume control
// instead of a single channel.
const MasterChannel = "m"

// Case is one hardware verification run: a device playing a given analyzer
// config at a sample rate, optionally exercising one volume control.
type Case struct {
	Number     string        // Case number/identifier from the plan file
	Name       string        // Human-readable case name
	Device     string        // Device under test (must exist in the device table)
	Config     string        // Expectation set file the analyzer runs against
	SampleRate int           // Stream sample rate in Hz
	Direction  Direction     // Interface side under test ("" = output)
	Channel    string        // Volume channel index, or "m" for master ("" = no volume control)
	Level      string        // Test level gate (empty = always run)
	Duration   time.Duration // Analyzer run duration (zero = default from config)
	SourceFile string        // Plan file this case came from (for multi-file plans)
}

// Validate checks if the case has all required fields
func (c *Case) Validate() error {
	if c.Number == "" {
		return errors.New("case number is required")
	}
	if c.Name == "" {
		return errors.New("case name is required")
	}
	if c.Device == "" {
		return errors.New("case device is required")
	}
	if c.Config == "" {
		return errors.New("case config is required")
	}
	if c.SampleRate <= 0 {
		return fmt.Errorf("case sample rate must be positive, got %d", c.SampleRate)
	}
	if c.Direction != "" && c.Direction != DirectionInput && c.Direction != DirectionOutput {
		return fmt.Errorf("unknown direction %q (want %s or %s)",
			c.Direction, DirectionInput, DirectionOutput)
	}
	if c.Level != "" && levelRank(c.Level) < 0 {
		return fmt.Errorf("unknown test level %q (want %s, %s or %s)",
			c.Level, LevelSmoke, LevelNightly, LevelWeekend)
	}
	if c.Channel != "" && !c.IsMaster() {
		if _, err := strconv.Atoi(c.Channel); err != nil {
			return fmt.Errorf("case channel must be a number or %q, got %q", MasterChannel, c.Channel)
		}
	}
	return nil
}

// Side returns the interface side the case exercises. An unset direction
// means the output side, by far the common case in plan files.
func (c *Case) Side() Direction {
	if c.Direction == "" {
		return DirectionOutput
	}
	return c.Direction
}

// IsMaster returns true if the case exercises the master volume control
func (c *Case) IsMaster() bool {
	return c.Channel == MasterChannel
}

// HasVolumeControl returns true if the case drives a volume control at all
func (c *Case) HasVolumeControl() bool {
	return c.Channel != ""
}

// ChannelIndex returns the numeric channel index. It is an error to call
// this for master-control or no-volume cases.
func (c *Case) ChannelIndex() (int, error) {
	if c.Channel == "" || c.IsMaster() {
		return 0, fmt.Errorf("case %s has no numeric channel", c.Number)
	}
	return strconv.Atoi(c.Channel)
}

// RunsAtLevel reports whether the case is selected when running at level.
// An empty run level selects everything.
func (c *Case) RunsAtLevel(level string) bool {
	if level == "" || c.Level == "" {
		return true
	}
	return levelRank(c.Level) <= levelRank(level)
}

func levelRank(level string) int {
	switch level {
	case LevelSmoke:
		return 0
	case LevelNightly:
		return 1
	case LevelWeekend:
		return 2
	default:
		return -1
	}
}

// ValidLevel reports whether level names a known test level.
func ValidLevel(level string) bool {
	return levelRank(level) >= 0
}
