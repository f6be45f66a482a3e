package testplan

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/mstaack/sw-usb-audio/internal/models"
)

// YAMLParser parses YAML plan files:
//
//	name: analogue input
//	defaults:
//	  device: xk_216_mc
//	  duration: 25s
//	cases:
//	  - number: 1
//	    name: stereo tones
//	    config: input_2ch.json
//	    sample_rate: 48000
//	    channel: m
//	    level: smoke
type YAMLParser struct{}

// NewYAMLParser creates a new YAML plan parser
func NewYAMLParser() *YAMLParser {
	return &YAMLParser{}
}

type yamlPlan struct {
	Name     string        `yaml:"name"`
	Defaults *yamlDefaults `yaml:"defaults"`
	Cases    []yamlCase    `yaml:"cases"`
}

type yamlDefaults struct {
	Device     string `yaml:"device"`
	Config     string `yaml:"config"`
	SampleRate int    `yaml:"sample_rate"`
	Direction  string `yaml:"direction"`
	Level      string `yaml:"level"`
	Duration   string `yaml:"duration"`
}

// Number and Channel accept bare YAML ints as well as strings; plan files
// in the wild write them both ways.
type yamlCase struct {
	Number     interface{} `yaml:"number"`
	Name       string      `yaml:"name"`
	Device     string      `yaml:"device"`
	Config     string      `yaml:"config"`
	SampleRate int         `yaml:"sample_rate"`
	Direction  string      `yaml:"direction"`
	Channel    interface{} `yaml:"channel"`
	Level      string      `yaml:"level"`
	Duration   string      `yaml:"duration"`
}

// Parse reads a YAML plan
func (p *YAMLParser) Parse(r io.Reader) (*Plan, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read content: %w", err)
	}

	var doc yamlPlan
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}

	var defaults caseDefaults
	if doc.Defaults != nil {
		defaults = caseDefaults{
			Device:     doc.Defaults.Device,
			Config:     doc.Defaults.Config,
			SampleRate: doc.Defaults.SampleRate,
			Level:      doc.Defaults.Level,
		}
		if doc.Defaults.Direction != "" {
			dir, err := models.ParseDirection(doc.Defaults.Direction)
			if err != nil {
				return nil, fmt.Errorf("invalid default direction: %w", err)
			}
			defaults.Direction = dir
		}
		if doc.Defaults.Duration != "" {
			d, err := parseCaseDuration(doc.Defaults.Duration)
			if err != nil {
				return nil, fmt.Errorf("invalid default duration %q: %w", doc.Defaults.Duration, err)
			}
			defaults.Duration = d
		}
	}

	plan := &Plan{Name: doc.Name}
	for i, yc := range doc.Cases {
		number, err := scalarString(yc.Number)
		if err != nil {
			return nil, fmt.Errorf("case %d: invalid number: %w", i, err)
		}
		if number == "" {
			return nil, fmt.Errorf("case %d: number is required", i)
		}
		channel, err := scalarString(yc.Channel)
		if err != nil {
			return nil, fmt.Errorf("case %s: invalid channel: %w", number, err)
		}

		c := models.Case{
			Number:     number,
			Name:       yc.Name,
			Device:     yc.Device,
			Config:     yc.Config,
			SampleRate: yc.SampleRate,
			Channel:    channel,
			Level:      yc.Level,
		}
		if yc.Direction != "" {
			dir, err := models.ParseDirection(yc.Direction)
			if err != nil {
				return nil, fmt.Errorf("case %s: %w", number, err)
			}
			c.Direction = dir
		}
		if yc.Duration != "" {
			d, err := parseCaseDuration(yc.Duration)
			if err != nil {
				return nil, fmt.Errorf("case %s: invalid duration %q: %w", number, yc.Duration, err)
			}
			c.Duration = d
		}
		defaults.apply(&c)
		plan.Cases = append(plan.Cases, c)
	}

	return plan, nil
}
