// Package verify checks captured analyzer transcripts against per-channel
// signal expectations. Verification is exhaustive: every independent problem
// in a transcript becomes its own failure in the report, and nothing short
// of a malformed expectation list aborts a check.
package verify

import (
	"errors"
	"fmt"
	"math"

	"github.com/mstaack/sw-usb-audio/internal/analyzer"
	"github.com/mstaack/sw-usb-audio/internal/models"
)

// ErrNoExpectations indicates Check was called with an empty expectation
// list; there is no channel count to bucket the transcript against.
var ErrNoExpectations = errors.New("no channel expectations provided")

// After the initial volume and initial change, exactly these ratios of the
// initial change's magnitude must be observed, each within volumeTolerance
// of the reported integer value.
var volumeStepRatios = []float64{1.0, -0.5, 0.5}

const volumeTolerance = 2.0

// Check verifies a whole transcript against the declared per-channel
// expectations. The report lists global error markers first (in transcript
// order), then attribution and lost-signal failures (in transcript order),
// then each channel's expectation failures (in declaration order).
// Identical inputs always produce identical reports.
func Check(transcript []string, expectations []models.Expectation) (*Report, error) {
	if len(expectations) == 0 {
		return nil, ErrNoExpectations
	}

	classified := analyzer.ClassifyAll(transcript)
	report := NewReport()

	// Error markers fail the run wholesale; the marker line is the failure.
	for _, facts := range classified {
		for _, f := range facts {
			if f.Kind == analyzer.GlobalError {
				report.Add(f.Line)
			}
		}
	}

	// Attribute channel-tagged lines to their buckets. A line referencing
	// a channel outside the declared range is reported once and dropped,
	// so stray channels never contaminate a real bucket.
	numChannels := len(expectations)
	buckets := make([][]analyzer.Fact, numChannels)
	for _, facts := range classified {
		channel, tagged := taggedChannel(facts)
		if !tagged {
			continue
		}
		if channel < 0 || channel >= numChannels {
			report.Addf("Invalid channel number %d", channel)
			continue
		}
		for _, f := range facts {
			switch f.Kind {
			case analyzer.LostSignal:
				report.Add(f.Line)
			case analyzer.FrequencyReading, analyzer.VolumeChangeReading:
				buckets[channel] = append(buckets[channel], f)
			}
		}
	}

	for i, exp := range expectations {
		for _, failure := range VerifyChannel(i, exp, buckets[i]) {
			report.Add(failure)
		}
	}

	return report, nil
}

// VerifyChannel checks a single channel's readings against its expectation
// and returns the failures in the order they were found. A nil result means
// the channel verified clean. Unknown expectation kinds are reported as
// config failures, never as errors.
func VerifyChannel(channel int, exp models.Expectation, facts []analyzer.Fact) []string {
	switch exp.Kind {
	case models.KindSine:
		return verifySine(channel, exp.Frequency, facts)
	case models.KindVolumeCheck:
		return verifyVolumeSteps(channel, facts)
	default:
		return []string{fmt.Sprintf("Invalid channel config %s", exp.Config())}
	}
}

func verifySine(channel, frequency int, facts []analyzer.Fact) []string {
	var failures []string
	readings := 0
	for _, f := range facts {
		if f.Kind != analyzer.FrequencyReading {
			continue
		}
		readings++
		if f.Value != frequency {
			failures = append(failures, fmt.Sprintf(
				"Incorrect frequency on channel %d; got %d, expected %d",
				channel, f.Value, frequency))
		}
	}
	if readings == 0 {
		failures = append(failures, fmt.Sprintf("No signal seen on channel %d", channel))
	}
	return failures
}

func verifyVolumeSteps(channel int, facts []analyzer.Fact) []string {
	var changes []int
	for _, f := range facts {
		if f.Kind == analyzer.VolumeChangeReading {
			changes = append(changes, f.Value)
		}
	}

	// The first two readings are the level after reset and the first
	// step down; without both there is nothing to measure against.
	if len(changes) < 2 {
		return []string{fmt.Sprintf(
			"Initial volume and initial change not found on channel %d", channel)}
	}

	initialChange := changes[1]
	steps := changes[2:]

	var failures []string
	if initialChange >= 0 {
		failures = append(failures, fmt.Sprintf(
			"Initial change is not negative on channel %d: %d", channel, initialChange))
	}
	magnitude := math.Abs(float64(initialChange))

	if len(steps) != len(volumeStepRatios) {
		failures = append(failures, fmt.Sprintf(
			"Unexpected number of volume changes on channel %d: %v", channel, steps))
		return failures
	}

	for i, ratio := range volumeStepRatios {
		expected := magnitude * ratio
		if math.Abs(float64(steps[i])-expected) > volumeTolerance {
			failures = append(failures, fmt.Sprintf(
				"Volume change not as expected on channel %d: actual %d, expected %g",
				channel, steps[i], expected))
		}
	}
	return failures
}

func taggedChannel(facts []analyzer.Fact) (int, bool) {
	for _, f := range facts {
		if f.Kind == analyzer.ChannelTag {
			return f.Channel, true
		}
	}
	return 0, false
}
