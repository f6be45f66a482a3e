// Package analyzer classifies raw signal-analyzer transcript lines into
// typed facts. Classification is pure string matching: no I/O, no state,
// and no knowledge of how many channels a device actually has.
package analyzer

import (
	"regexp"
	"strconv"
	"strings"
)

// FactKind identifies what a transcript line (or part of it) reports.
type FactKind int

const (
	GlobalError         FactKind = iota // analyzer-wide error or problem marker
	ChannelTag                          // line is scoped to a channel ("Channel N: ...")
	LostSignal                          // channel reported signal loss
	FrequencyReading                    // channel reported a detected frequency
	VolumeChangeReading                 // channel reported a relative volume change
	Unclassified                        // line matched nothing we recognize
)

// String returns the string representation of FactKind
func (k FactKind) String() string {
	switch k {
	case GlobalError:
		return "GlobalError"
	case ChannelTag:
		return "ChannelTag"
	case LostSignal:
		return "LostSignal"
	case FrequencyReading:
		return "FrequencyReading"
	case VolumeChangeReading:
		return "VolumeChangeReading"
	case Unclassified:
		return "Unclassified"
	default:
		return "Unknown"
	}
}

// Fact is one classified observation extracted from a transcript line.
// Channel is only meaningful for channel-scoped kinds. Value carries the
// frequency in Hz for FrequencyReading and the signed delta for
// VolumeChangeReading; it is zero otherwise.
type Fact struct {
	Kind    FactKind
	Channel int
	Value   int
	Line    string
}

var (
	// The analyzer firmware is not consistent about capitalization, so
	// error markers match case-insensitively anywhere in the line.
	errorMarkerRegex = regexp.MustCompile(`(?i)error|problem`)

	channelTagRegex   = regexp.MustCompile(`^Channel (\d+): ?(.*)$`)
	frequencyRegex    = regexp.MustCompile(`^Channel \d+: Frequency (\d+)`)
	volumeChangeRegex = regexp.MustCompile(`Volume change by (-?\d+)`)
)

const lostSignalMarker = "Lost signal"

// ClassifyLine extracts every fact a single transcript line carries.
// A line can yield several facts (a channel tag plus a reading), exactly
// one Unclassified fact, or a GlobalError alongside nothing else. The
// returned order is stable: GlobalError, ChannelTag, then readings.
func ClassifyLine(line string) []Fact {
	var facts []Fact

	if errorMarkerRegex.MatchString(line) {
		facts = append(facts, Fact{Kind: GlobalError, Line: line})
	}

	tag := channelTagRegex.FindStringSubmatch(line)
	if tag == nil {
		if facts == nil {
			return []Fact{{Kind: Unclassified, Line: line}}
		}
		return facts
	}

	channel, err := strconv.Atoi(tag[1])
	if err != nil {
		// Digits too large for int; treat the line as untagged.
		if facts == nil {
			return []Fact{{Kind: Unclassified, Line: line}}
		}
		return facts
	}

	facts = append(facts, Fact{Kind: ChannelTag, Channel: channel, Line: line})

	rest := tag[2]
	if strings.Contains(rest, lostSignalMarker) {
		facts = append(facts, Fact{Kind: LostSignal, Channel: channel, Line: line})
	}

	if m := frequencyRegex.FindStringSubmatch(line); m != nil {
		// Anchored match, so Atoi cannot fail on the captured digits
		// except by overflow, which the analyzer never produces.
		if freq, err := strconv.Atoi(m[1]); err == nil {
			facts = append(facts, Fact{Kind: FrequencyReading, Channel: channel, Value: freq, Line: line})
		}
	}

	if m := volumeChangeRegex.FindStringSubmatch(line); m != nil {
		if delta, err := strconv.Atoi(m[1]); err == nil {
			facts = append(facts, Fact{Kind: VolumeChangeReading, Channel: channel, Value: delta, Line: line})
		}
	}

	return facts
}

// ClassifyAll classifies every line of a transcript, preserving order.
// Index i of the result holds the facts for transcript line i.
func ClassifyAll(transcript []string) [][]Fact {
	facts := make([][]Fact, len(transcript))
	for i, line := range transcript {
		facts[i] = ClassifyLine(line)
	}
	return facts
}
