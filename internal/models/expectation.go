package models

import (
	"fmt"
)

// ExpectationKind names the kind of signal a channel is expected to carry.
// Parsing keeps unknown kinds instead of rejecting them so verification can
// report a bad channel config as a failure rather than refusing the file.
type ExpectationKind string

const (
	KindSine        ExpectationKind = "sine"     // steady tone at a fixed frequency
	KindVolumeCheck ExpectationKind = "volcheck" // volume-step sequence check
)

// Expectation describes what one analyzer channel should observe.
// Frequency is only meaningful for KindSine. Raw preserves the config text
// the expectation was parsed from, for error reporting on unknown kinds.
type Expectation struct {
	Kind      ExpectationKind
	Frequency int
	Raw       string
}

// Sine returns an expectation for a steady tone at freq Hz.
func Sine(freq int) Expectation {
	return Expectation{Kind: KindSine, Frequency: freq}
}

// VolumeCheck returns an expectation for the volume-step sequence.
func VolumeCheck() Expectation {
	return Expectation{Kind: KindVolumeCheck}
}

// Config returns the config text to show when reporting this expectation.
func (e Expectation) Config() string {
	if e.Raw != "" {
		return e.Raw
	}
	if e.Kind == KindSine {
		return fmt.Sprintf("[%s, %d]", e.Kind, e.Frequency)
	}
	return string(e.Kind)
}

// Known reports whether the kind is one verification understands.
func (e Expectation) Known() bool {
	return e.Kind == KindSine || e.Kind == KindVolumeCheck
}

// Validate checks the expectation is well formed enough to verify against.
// Unknown kinds are deliberately valid; sine tones need a positive frequency.
func (e Expectation) Validate() error {
	if e.Kind == "" {
		return fmt.Errorf("expectation kind is required")
	}
	if e.Kind == KindSine && e.Frequency <= 0 {
		return fmt.Errorf("sine expectation requires a positive frequency, got %d", e.Frequency)
	}
	return nil
}
