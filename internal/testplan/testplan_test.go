package testplan

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mstaack/sw-usb-audio/internal/models"
)

// TestDetectFormat tests format detection based on file extensions
func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		want     Format
	}{
		{
			name:     "markdown .md extension",
			filename: "plan.md",
			want:     FormatMarkdown,
		},
		{
			name:     "markdown .markdown extension",
			filename: "nightly.markdown",
			want:     FormatMarkdown,
		},
		{
			name:     "YAML .yaml extension",
			filename: "plan.yaml",
			want:     FormatYAML,
		},
		{
			name:     "YAML .yml extension",
			filename: "plan.yml",
			want:     FormatYAML,
		},
		{
			name:     "unsupported extension",
			filename: "plan.json",
			want:     FormatUnknown,
		},
		{
			name:     "no extension",
			filename: "plan",
			want:     FormatUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectFormat(tt.filename); got != tt.want {
				t.Errorf("DetectFormat(%q) = %v, want %v", tt.filename, got, tt.want)
			}
		})
	}
}

func TestYAMLParser_FullPlan(t *testing.T) {
	input := `
name: analogue input
defaults:
  device: xk_216_mc
  config: mc_analogue_input_8ch.json
  sample_rate: 48000
  duration: 25s
cases:
  - number: 1
    name: all tones
    level: smoke
  - number: 2
    name: master volume
    channel: m
    level: nightly
  - number: 3
    name: channel 4 volume at 96k
    sample_rate: 96000
    channel: 4
    duration: 40s
`

	plan, err := NewYAMLParser().Parse(strings.NewReader(input))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if plan.Name != "analogue input" {
		t.Errorf("plan name = %q", plan.Name)
	}
	if len(plan.Cases) != 3 {
		t.Fatalf("expected 3 cases, got %d", len(plan.Cases))
	}

	c := plan.Cases[0]
	if c.Number != "1" || c.Name != "all tones" {
		t.Errorf("case 0 = %+v", c)
	}
	if c.Device != "xk_216_mc" || c.Config != "mc_analogue_input_8ch.json" {
		t.Errorf("defaults not applied: %+v", c)
	}
	if c.SampleRate != 48000 || c.Duration != 25*time.Second {
		t.Errorf("default rate/duration not applied: %+v", c)
	}
	if c.HasVolumeControl() {
		t.Error("case 0 should not drive a volume control")
	}

	if got := plan.Cases[1].Channel; got != models.MasterChannel {
		t.Errorf("case 1 channel = %q, want master", got)
	}

	c = plan.Cases[2]
	if c.Channel != "4" {
		t.Errorf("case 2 channel = %q, want 4 (int coerced)", c.Channel)
	}
	if c.SampleRate != 96000 {
		t.Errorf("case override lost: rate = %d", c.SampleRate)
	}
	if c.Duration != 40*time.Second {
		t.Errorf("case duration = %v, want 40s", c.Duration)
	}

	if err := plan.Validate(); err != nil {
		t.Errorf("plan should validate: %v", err)
	}
}

func TestYAMLParser_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{
			name:  "invalid yaml",
			input: "cases: [",
		},
		{
			name:  "case without number",
			input: "cases:\n  - name: missing number\n",
		},
		{
			name:  "bad duration",
			input: "cases:\n  - number: 1\n    name: x\n    duration: soon\n",
		},
		{
			name:  "bad default duration",
			input: "defaults:\n  duration: whenever\ncases:\n  - number: 1\n    name: x\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewYAMLParser().Parse(strings.NewReader(tt.input)); err == nil {
				t.Errorf("expected parse error for %s", tt.name)
			}
		})
	}
}

func TestMarkdownParser_PlanWithFrontmatter(t *testing.T) {
	input := `---
soundcheck:
  name: analogue input
  device: xk_216_mc
  config: mc_analogue_input_8ch.json
  sample_rate: 48000
  duration: 25s
---
# Input verification

Background notes, ignored.

## Case 1: All channels tone check

**Level**: smoke

Plays the stock tone config and verifies every channel.

## Case 2: Master volume at 44.1k

**Sample Rate**: 44100
**Channel**: m
**Level**: nightly

## Notes

Not a case heading.
`

	plan, err := NewMarkdownParser().Parse(strings.NewReader(input))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if plan.Name != "analogue input" {
		t.Errorf("plan name = %q", plan.Name)
	}
	if len(plan.Cases) != 2 {
		t.Fatalf("expected 2 cases, got %d: %+v", len(plan.Cases), plan.Cases)
	}

	c := plan.Cases[0]
	if c.Number != "1" || c.Name != "All channels tone check" {
		t.Errorf("case 0 = %+v", c)
	}
	if c.Device != "xk_216_mc" || c.SampleRate != 48000 {
		t.Errorf("frontmatter defaults not applied: %+v", c)
	}
	if c.Level != "smoke" {
		t.Errorf("case 0 level = %q", c.Level)
	}
	if c.Duration != 25*time.Second {
		t.Errorf("case 0 duration = %v", c.Duration)
	}

	c = plan.Cases[1]
	if c.SampleRate != 44100 {
		t.Errorf("case 1 sample rate = %d, want override 44100", c.SampleRate)
	}
	if c.Channel != models.MasterChannel {
		t.Errorf("case 1 channel = %q, want m", c.Channel)
	}
	if c.Level != "nightly" {
		t.Errorf("case 1 level = %q", c.Level)
	}
}

func TestMarkdownParser_CodeBlocksIgnored(t *testing.T) {
	input := "## Case 1: Fenced fields\n\n" +
		"**Device**: xk_evk_xu316\n" +
		"**Config**: input_2ch.json\n" +
		"**Sample Rate**: 48000\n\n" +
		"```\n**Sample Rate**: 96000\n**Channel**: 7\n```\n"

	plan, err := NewMarkdownParser().Parse(strings.NewReader(input))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(plan.Cases) != 1 {
		t.Fatalf("expected 1 case, got %d", len(plan.Cases))
	}

	c := plan.Cases[0]
	if c.SampleRate != 48000 {
		t.Errorf("sample rate = %d; fenced value must not win", c.SampleRate)
	}
	if c.Channel != "" {
		t.Errorf("channel = %q; fenced field must be ignored", c.Channel)
	}
}

func TestMarkdownParser_NoCases(t *testing.T) {
	plan, err := NewMarkdownParser().Parse(strings.NewReader("# Just a title\n\nProse only.\n"))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(plan.Cases) != 0 {
		t.Errorf("expected no cases, got %d", len(plan.Cases))
	}
}

func TestMarkdownParser_BadFieldValue(t *testing.T) {
	input := "## Case 1: Bad duration\n\n**Duration**: soon\n"
	if _, err := NewMarkdownParser().Parse(strings.NewReader(input)); err == nil {
		t.Error("expected error for unparseable duration")
	}
}

func TestPlan_CasesAtLevel(t *testing.T) {
	plan := &Plan{Cases: []models.Case{
		{Number: "1", Level: models.LevelSmoke},
		{Number: "2", Level: models.LevelNightly},
		{Number: "3"},
		{Number: "4", Level: models.LevelWeekend},
	}}

	got := plan.CasesAtLevel(models.LevelNightly)
	if len(got) != 3 {
		t.Fatalf("expected 3 cases at nightly, got %d", len(got))
	}
	for i, want := range []string{"1", "2", "3"} {
		if got[i].Number != want {
			t.Errorf("selected[%d] = %s, want %s", i, got[i].Number, want)
		}
	}

	if got := plan.CasesAtLevel(""); len(got) != 4 {
		t.Errorf("empty level should select everything, got %d", len(got))
	}
}

func TestMergePlans_DuplicateNumbers(t *testing.T) {
	a := &Plan{FilePath: "a.yaml", Cases: []models.Case{{Number: "1"}, {Number: "2"}}}
	b := &Plan{FilePath: "b.yaml", Cases: []models.Case{{Number: "2"}}}

	if _, err := MergePlans(a, b); err == nil {
		t.Error("expected duplicate case number error")
	}

	merged, err := MergePlans(a)
	if err != nil {
		t.Fatalf("single plan merge: %v", err)
	}
	if len(merged.Cases) != 2 {
		t.Errorf("expected 2 cases, got %d", len(merged.Cases))
	}
}

func TestParseFile_SetsSourceAndName(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "smoke.yaml")
	content := "cases:\n  - number: 1\n    name: tones\n    device: xk_evk_xu316\n    config: input_2ch.json\n    sample_rate: 48000\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	plan, err := ParseFile(path)
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	if plan.Name != "smoke" {
		t.Errorf("plan name = %q, want file-derived smoke", plan.Name)
	}
	if plan.Cases[0].SourceFile == "" {
		t.Error("expected SourceFile to be recorded")
	}
}

func TestParsePaths_DirectoryMerge(t *testing.T) {
	dir := t.TempDir()
	first := "cases:\n  - number: 1\n    name: a\n    device: d\n    config: c.json\n    sample_rate: 48000\n"
	second := "cases:\n  - number: 2\n    name: b\n    device: d\n    config: c.json\n    sample_rate: 48000\n"
	if err := os.WriteFile(filepath.Join(dir, "01-first.yaml"), []byte(first), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "02-second.yaml"), []byte(second), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644); err != nil {
		t.Fatal(err)
	}

	plan, err := ParsePaths([]string{dir})
	if err != nil {
		t.Fatalf("ParsePaths: %v", err)
	}
	if len(plan.Cases) != 2 {
		t.Fatalf("expected 2 merged cases, got %d", len(plan.Cases))
	}
	if plan.Cases[0].Number != "1" || plan.Cases[1].Number != "2" {
		t.Errorf("cases out of order: %+v", plan.Cases)
	}
}

func TestParsePaths_MissingPath(t *testing.T) {
	if _, err := ParsePaths([]string{filepath.Join(t.TempDir(), "nope")}); err == nil {
		t.Error("expected error for missing path")
	}
	if _, err := ParsePaths(nil); err == nil {
		t.Error("expected error for empty path list")
	}
}
