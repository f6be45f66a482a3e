package testplan

import (
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"gopkg.in/yaml.v3"

	"github.com/mstaack/sw-usb-audio/internal/models"
)

// MarkdownParser parses markdown plan files. Each case is a level 2 heading
// of the form "## Case N: Name" followed by bold metadata fields:
//
//	**Device**: xk_216_mc
//	**Config**: mc_analogue_input_8ch.json
//	**Sample Rate**: 48000
//	**Channel**: 3
//	**Level**: smoke
//
// Plan-wide defaults may be given in YAML frontmatter under a `soundcheck`
// key. Content inside fenced code blocks never counts as metadata.
type MarkdownParser struct {
	markdown goldmark.Markdown
}

// NewMarkdownParser creates a new markdown plan parser
func NewMarkdownParser() *MarkdownParser {
	return &MarkdownParser{
		markdown: goldmark.New(),
	}
}

var caseHeadingRegex = regexp.MustCompile(`^Case\s+([\w.]+):\s+(.+)$`)

var (
	deviceFieldRegex    = regexp.MustCompile(`\*\*Device\*\*:\s*(\S+)`)
	configFieldRegex    = regexp.MustCompile(`\*\*Config\*\*:\s*(\S+)`)
	rateFieldRegex      = regexp.MustCompile(`\*\*Sample Rate\*\*:\s*(\d+)`)
	channelFieldRegex   = regexp.MustCompile(`\*\*Channel\*\*:\s*(\S+)`)
	directionFieldRegex = regexp.MustCompile(`\*\*Direction\*\*:\s*(\S+)`)
	levelFieldRegex     = regexp.MustCompile(`\*\*Level\*\*:\s*(\S+)`)
	durationFieldRegex  = regexp.MustCompile(`\*\*Duration\*\*:\s*(\S+)`)
)

// Parse reads a markdown plan
func (p *MarkdownParser) Parse(r io.Reader) (*Plan, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read content: %w", err)
	}

	plan := &Plan{}
	var defaults caseDefaults

	content, frontmatter := extractFrontmatter(content)
	if frontmatter != nil {
		name, d, err := parsePlanFrontmatter(frontmatter)
		if err != nil {
			return nil, fmt.Errorf("failed to parse frontmatter: %w", err)
		}
		plan.Name = name
		defaults = d
	}

	doc := p.markdown.Parser().Parse(text.NewReader(content))
	cases, err := p.extractCases(doc, content, defaults)
	if err != nil {
		return nil, err
	}

	plan.Cases = cases
	return plan, nil
}

type caseSection struct {
	number string
	name   string
	start  int // byte offset just past the heading text
}

// extractCases walks the AST for "## Case N: Name" headings and parses the
// metadata fields from the source text between one heading and the next.
func (p *MarkdownParser) extractCases(doc ast.Node, source []byte, defaults caseDefaults) ([]models.Case, error) {
	var sections []caseSection
	var headingStarts []int

	err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}

		heading, ok := n.(*ast.Heading)
		if !ok || heading.Level != 2 || heading.Lines().Len() == 0 {
			return ast.WalkContinue, nil
		}

		segment := heading.Lines().At(0)
		headingStarts = append(headingStarts, lineStart(source, segment.Start))

		headingText := extractText(heading, source)
		if matches := caseHeadingRegex.FindStringSubmatch(headingText); len(matches) == 3 {
			sections = append(sections, caseSection{
				number: matches[1],
				name:   strings.TrimSpace(matches[2]),
				start:  segment.Stop,
			})
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return nil, err
	}

	var cases []models.Case
	for _, s := range sections {
		end := len(source)
		for _, h := range headingStarts {
			if h > s.start && h < end {
				end = h
			}
		}

		body := removeCodeBlocks(string(source[s.start:end]))
		c := models.Case{Number: s.number, Name: s.name}
		if err := parseCaseMetadata(&c, body); err != nil {
			return nil, fmt.Errorf("case %s: %w", s.number, err)
		}
		defaults.apply(&c)
		cases = append(cases, c)
	}

	return cases, nil
}

func parseCaseMetadata(c *models.Case, content string) error {
	if m := deviceFieldRegex.FindStringSubmatch(content); m != nil {
		c.Device = m[1]
	}
	if m := configFieldRegex.FindStringSubmatch(content); m != nil {
		c.Config = m[1]
	}
	if m := rateFieldRegex.FindStringSubmatch(content); m != nil {
		rate, err := strconv.Atoi(m[1])
		if err != nil {
			return fmt.Errorf("invalid sample rate %q: %w", m[1], err)
		}
		c.SampleRate = rate
	}
	if m := channelFieldRegex.FindStringSubmatch(content); m != nil {
		c.Channel = m[1]
	}
	if m := directionFieldRegex.FindStringSubmatch(content); m != nil {
		dir, err := models.ParseDirection(m[1])
		if err != nil {
			return err
		}
		c.Direction = dir
	}
	if m := levelFieldRegex.FindStringSubmatch(content); m != nil {
		c.Level = m[1]
	}
	if m := durationFieldRegex.FindStringSubmatch(content); m != nil {
		d, err := parseCaseDuration(m[1])
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", m[1], err)
		}
		c.Duration = d
	}
	return nil
}

// extractText extracts plain text from an AST node
func extractText(n ast.Node, source []byte) string {
	var buf bytes.Buffer
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if t, ok := c.(*ast.Text); ok {
			buf.Write(t.Segment.Value(source))
		}
	}
	return strings.TrimSpace(buf.String())
}

// lineStart walks back from offset to the start of its line.
func lineStart(source []byte, offset int) int {
	for offset > 0 && source[offset-1] != '\n' {
		offset--
	}
	return offset
}

// removeCodeBlocks strips fenced code blocks so example snippets cannot be
// mistaken for metadata fields.
func removeCodeBlocks(content string) string {
	var kept []string
	inCodeBlock := false
	for _, line := range strings.Split(content, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inCodeBlock = !inCodeBlock
			continue
		}
		if !inCodeBlock {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}

// extractFrontmatter extracts YAML frontmatter from markdown content
// Returns the content without frontmatter and the frontmatter bytes
func extractFrontmatter(content []byte) ([]byte, []byte) {
	lines := bytes.Split(content, []byte("\n"))

	if len(lines) < 3 || !bytes.Equal(bytes.TrimSpace(lines[0]), []byte("---")) {
		return content, nil
	}

	for i := 1; i < len(lines); i++ {
		if bytes.Equal(bytes.TrimSpace(lines[i]), []byte("---")) {
			frontmatter := bytes.Join(lines[1:i], []byte("\n"))
			body := bytes.Join(lines[i+1:], []byte("\n"))
			return body, frontmatter
		}
	}

	// No closing delimiter found
	return content, nil
}

func parsePlanFrontmatter(frontmatter []byte) (string, caseDefaults, error) {
	var config struct {
		Soundcheck *struct {
			Name       string `yaml:"name"`
			Device     string `yaml:"device"`
			Config     string `yaml:"config"`
			SampleRate int    `yaml:"sample_rate"`
			Direction  string `yaml:"direction"`
			Level      string `yaml:"level"`
			Duration   string `yaml:"duration"`
		} `yaml:"soundcheck"`
	}

	if err := yaml.Unmarshal(frontmatter, &config); err != nil {
		return "", caseDefaults{}, err
	}
	if config.Soundcheck == nil {
		return "", caseDefaults{}, nil
	}

	defaults := caseDefaults{
		Device:     config.Soundcheck.Device,
		Config:     config.Soundcheck.Config,
		SampleRate: config.Soundcheck.SampleRate,
		Level:      config.Soundcheck.Level,
	}
	if config.Soundcheck.Direction != "" {
		dir, err := models.ParseDirection(config.Soundcheck.Direction)
		if err != nil {
			return "", caseDefaults{}, fmt.Errorf("invalid default direction: %w", err)
		}
		defaults.Direction = dir
	}
	if config.Soundcheck.Duration != "" {
		d, err := parseCaseDuration(config.Soundcheck.Duration)
		if err != nil {
			return "", caseDefaults{}, fmt.Errorf("invalid default duration %q: %w", config.Soundcheck.Duration, err)
		}
		defaults.Duration = d
	}

	return config.Soundcheck.Name, defaults, nil
}
