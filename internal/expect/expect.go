// Package expect loads and writes per-channel signal expectation sets, the
// config files the signal analyzer runs against. The analyzer's native
// format is JSON; a YAML form is supported for hand-written files.
package expect

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/mstaack/sw-usb-audio/internal/models"
)

// Format represents the format of an expectation file
type Format int

const (
	// FormatUnknown represents an unknown or unsupported file format
	FormatUnknown Format = iota
	// FormatJSON represents an analyzer-native JSON (.json) expectation file
	FormatJSON
	// FormatYAML represents a YAML (.yaml, .yml) expectation file
	FormatYAML
)

// String returns the string representation of the Format
func (f Format) String() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatYAML:
		return "yaml"
	default:
		return "unknown"
	}
}

// Parser is the interface that all expectation parsers must implement
type Parser interface {
	// Parse reads from an io.Reader and returns a parsed Set
	Parse(r io.Reader) (*Set, error)
}

// DetectFormat automatically detects the expectation format from the file
// extension:
//   - .json -> FormatJSON
//   - .yaml, .yml -> FormatYAML
//   - all others -> FormatUnknown
func DetectFormat(filename string) Format {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".json":
		return FormatJSON
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatUnknown
	}
}

// NewParser creates a new parser instance for the specified format
// Returns an error if the format is unknown or unsupported
func NewParser(format Format) (Parser, error) {
	switch format {
	case FormatJSON:
		return NewJSONParser(), nil
	case FormatYAML:
		return NewYAMLParser(), nil
	default:
		return nil, fmt.Errorf("unsupported format: %v", format)
	}
}

// ParseFile auto-detects the format from the extension, opens the file and
// parses it, storing the original path in Set.FilePath.
func ParseFile(path string) (*Set, error) {
	format := DetectFormat(path)
	if format == FormatUnknown {
		return nil, fmt.Errorf("unknown file format: %s (supported: .json, .yaml, .yml)", path)
	}

	parser, err := NewParser(format)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	set, err := parser.Parse(file)
	if err != nil {
		return nil, fmt.Errorf("failed to parse expectation file %s: %w", path, err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}
	set.FilePath = absPath

	return set, nil
}

// Set holds the expectation lists for both sides of the interface. The
// list index is the channel number; list length is the channel count under
// test for that side.
type Set struct {
	In       []models.Expectation // Expectations for input (capture) channels
	Out      []models.Expectation // Expectations for output (playback) channels
	FilePath string               // Source file, when parsed from disk
}

// Side returns the expectation list for the given direction.
func (s *Set) Side(dir models.Direction) []models.Expectation {
	if dir == models.DirectionOutput {
		return s.Out
	}
	return s.In
}

// MarkVolumeCheck overrides the expectation on the given channels of one
// side to a volume check, the same edit a volume test applies to a stock
// tone config before a run. Channels out of range are an error; nothing is
// modified when any channel is invalid.
func (s *Set) MarkVolumeCheck(dir models.Direction, channels ...int) error {
	side := s.Side(dir)
	for _, ch := range channels {
		if ch < 0 || ch >= len(side) {
			return fmt.Errorf("channel %d out of range for %s side with %d channels", ch, dir, len(side))
		}
	}
	for _, ch := range channels {
		side[ch] = models.VolumeCheck()
	}
	return nil
}

// MarkAllVolumeCheck overrides every channel of one side to a volume check,
// the master-control variant of MarkVolumeCheck.
func (s *Set) MarkAllVolumeCheck(dir models.Direction) {
	side := s.Side(dir)
	for ch := range side {
		side[ch] = models.VolumeCheck()
	}
}

// Validate checks the set is usable for a run: at least one side declared
// and every entry well formed. Unknown kinds pass validation so that
// verification can report them instead.
func (s *Set) Validate() error {
	if len(s.In) == 0 && len(s.Out) == 0 {
		return fmt.Errorf("expectation set declares no channels")
	}
	for i, e := range s.In {
		if err := e.Validate(); err != nil {
			return fmt.Errorf("in channel %d: %w", i, err)
		}
	}
	for i, e := range s.Out {
		if err := e.Validate(); err != nil {
			return fmt.Errorf("out channel %d: %w", i, err)
		}
	}
	return nil
}
