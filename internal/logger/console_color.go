package logger

import (
	"github.com/fatih/color"

	"github.com/mstaack/sw-usb-audio/internal/models"
)

// colorScheme defines consistent colors for run outcomes.
// Green: passed cases
// Red: failed and errored cases
// Yellow: warnings
// Cyan: labels and identifiers
type colorScheme struct {
	success *color.Color
	fail    *color.Color
	warn    *color.Color
	label   *color.Color
}

// newColorScheme creates the standard color scheme for run output.
func newColorScheme() *colorScheme {
	return &colorScheme{
		success: color.New(color.FgGreen),
		fail:    color.New(color.FgRed),
		warn:    color.New(color.FgYellow),
		label:   color.New(color.FgCyan),
	}
}

// statusText colors a run status string: green for PASSED, red for
// FAILED and ERROR. Unknown statuses pass through uncolored.
func (cs *colorScheme) statusText(status string) string {
	switch status {
	case models.StatusPassed:
		return cs.success.Sprint(status)
	case models.StatusFailed, models.StatusError:
		return cs.fail.Sprint(status)
	default:
		return status
	}
}
