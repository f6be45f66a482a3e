// Package testplan loads hardware test plans: the named cases (device,
// analyzer config, sample rate, volume channel) a run command executes.
// Plans are written as YAML or as markdown with per-case metadata fields.
package testplan

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/mstaack/sw-usb-audio/internal/models"
)

// Format represents the format of a plan file
type Format int

const (
	// FormatUnknown represents an unknown or unsupported file format
	FormatUnknown Format = iota
	// FormatMarkdown represents a Markdown (.md, .markdown) plan file
	FormatMarkdown
	// FormatYAML represents a YAML (.yaml, .yml) plan file
	FormatYAML
)

// String returns the string representation of the Format
func (f Format) String() string {
	switch f {
	case FormatMarkdown:
		return "markdown"
	case FormatYAML:
		return "yaml"
	default:
		return "unknown"
	}
}

// Parser is the interface that all plan parsers must implement
type Parser interface {
	// Parse reads from an io.Reader and returns a parsed Plan
	Parse(r io.Reader) (*Plan, error)
}

// Plan is an ordered collection of test cases from one plan file, or from
// several files merged together.
type Plan struct {
	Name     string        // Plan name from the file (or the file name)
	Cases    []models.Case // Cases in file order
	FilePath string        // Source file, when parsed from disk
}

// CasesAtLevel returns the cases selected when running at the given level,
// preserving plan order. An empty level selects every case.
func (p *Plan) CasesAtLevel(level string) []models.Case {
	var selected []models.Case
	for _, c := range p.Cases {
		if c.RunsAtLevel(level) {
			selected = append(selected, c)
		}
	}
	return selected
}

// Validate checks every case in the plan
func (p *Plan) Validate() error {
	if len(p.Cases) == 0 {
		return fmt.Errorf("plan has no cases")
	}
	for i := range p.Cases {
		if err := p.Cases[i].Validate(); err != nil {
			return fmt.Errorf("case %s: %w", p.Cases[i].Number, err)
		}
	}
	return nil
}

// DetectFormat automatically detects the plan format based on file extension
// Supported extensions:
//   - .md, .markdown -> FormatMarkdown
//   - .yaml, .yml -> FormatYAML
//   - all others -> FormatUnknown
func DetectFormat(filename string) Format {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".md", ".markdown":
		return FormatMarkdown
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
	case FormatMarkdown:
		return NewMarkdownParser(), nil
	case FormatYAML:
		return NewYAMLParser(), nil
	default:
		return nil, fmt.Errorf("unsupported format: %v", format)
	}
}

// ParseFile auto-detects the format from the extension, opens the file and
// parses it, storing the original path in Plan.FilePath.
func ParseFile(path string) (*Plan, error) {
	format := DetectFormat(path)
	if format == FormatUnknown {
		return nil, fmt.Errorf("unknown file format: %s (supported: .md, .markdown, .yaml, .yml)", path)
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

	plan, err := parser.Parse(file)
	if err != nil {
		return nil, fmt.Errorf("failed to parse plan %s: %w", path, err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}
	plan.FilePath = absPath
	if plan.Name == "" {
		plan.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	for i := range plan.Cases {
		plan.Cases[i].SourceFile = absPath
	}

	return plan, nil
}

// ParsePaths loads every given plan file or directory and merges the result
// into a single plan. Directories are scanned non-recursively for plan files
// in name order.
func ParsePaths(paths []string) (*Plan, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("no plan paths provided")
	}

	var files []string
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("failed to access path %q: %w", path, err)
		}
		if !info.IsDir() {
			files = append(files, path)
			continue
		}

		entries, err := os.ReadDir(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read directory %q: %w", path, err)
		}
		var found []string
		for _, entry := range entries {
			if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
				continue
			}
			if DetectFormat(entry.Name()) == FormatUnknown {
				continue
			}
			found = append(found, filepath.Join(path, entry.Name()))
		}
		sort.Strings(found)
		files = append(files, found...)
	}

	if len(files) == 0 {
		return nil, fmt.Errorf("no plan files found under %v", paths)
	}

	var plans []*Plan
	for _, file := range files {
		plan, err := ParseFile(file)
		if err != nil {
			return nil, err
		}
		plans = append(plans, plan)
	}

	return MergePlans(plans...)
}

// MergePlans combines multiple plans into one, rejecting duplicate case
// numbers across files. The merged plan takes the first plan's name.
func MergePlans(plans ...*Plan) (*Plan, error) {
	if len(plans) == 0 {
		return &Plan{Cases: []models.Case{}}, nil
	}

	seen := make(map[string]string)
	merged := &Plan{Name: plans[0].Name, FilePath: plans[0].FilePath}

	for _, plan := range plans {
		if plan == nil {
			continue
		}
		for _, c := range plan.Cases {
			if prev, dup := seen[c.Number]; dup {
				return nil, fmt.Errorf("duplicate case number %s (in %s and %s)", c.Number, prev, plan.FilePath)
			}
			seen[c.Number] = plan.FilePath
			merged.Cases = append(merged.Cases, c)
		}
	}

	return merged, nil
}

// caseDefaults carries plan-wide default fields that fill in whatever a
// case leaves unspecified.
type caseDefaults struct {
	Device     string
	Config     string
	SampleRate int
	Direction  models.Direction
	Level      string
	Duration   time.Duration
}

func (d caseDefaults) apply(c *models.Case) {
	if c.Device == "" {
		c.Device = d.Device
	}
	if c.Config == "" {
		c.Config = d.Config
	}
	if c.SampleRate == 0 {
		c.SampleRate = d.SampleRate
	}
	if c.Direction == "" {
		c.Direction = d.Direction
	}
	if c.Level == "" {
		c.Level = d.Level
	}
	if c.Duration == 0 {
		c.Duration = d.Duration
	}
}

// parseCaseDuration accepts Go duration strings ("25s", "2m") and bare
// integers, which mean seconds.
func parseCaseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if secs, err := strconv.Atoi(s); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return time.ParseDuration(s)
}

// scalarString renders a YAML scalar that may arrive as an int or string
// (case numbers and channels are written both ways in practice).
func scalarString(v interface{}) (string, error) {
	switch val := v.(type) {
	case nil:
		return "", nil
	case string:
		return strings.TrimSpace(val), nil
	case int:
		return strconv.Itoa(val), nil
	case float64:
		if val == float64(int(val)) {
			return strconv.Itoa(int(val)), nil
		}
		return "", fmt.Errorf("unsupported numeric value %v", val)
	default:
		return "", fmt.Errorf("unsupported value type %T", v)
	}
}
