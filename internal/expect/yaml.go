package expect

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/mstaack/sw-usb-audio/internal/models"
)

// YAMLParser parses hand-written YAML expectation files:
//
//	in:
//	  - kind: sine
//	    frequency: 1000
//	  - kind: volcheck
type YAMLParser struct{}

// NewYAMLParser creates a new YAML parser
func NewYAMLParser() *YAMLParser {
	return &YAMLParser{}
}

type yamlChannel struct {
	Kind      string `yaml:"kind"`
	Frequency int    `yaml:"frequency,omitempty"`
}

// Parse reads a YAML expectation set
func (p *YAMLParser) Parse(r io.Reader) (*Set, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}

	var doc struct {
		In  []yamlChannel `yaml:"in"`
		Out []yamlChannel `yaml:"out"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}

	in, err := convertChannels(doc.In, "in")
	if err != nil {
		return nil, err
	}
	out, err := convertChannels(doc.Out, "out")
	if err != nil {
		return nil, err
	}

	return &Set{In: in, Out: out}, nil
}

func convertChannels(entries []yamlChannel, side string) ([]models.Expectation, error) {
	if entries == nil {
		return nil, nil
	}
	exps := make([]models.Expectation, len(entries))
	for i, entry := range entries {
		if entry.Kind == "" {
			return nil, fmt.Errorf("%s channel %d: kind is required", side, i)
		}
		exp := models.Expectation{
			Kind:      models.ExpectationKind(entry.Kind),
			Frequency: entry.Frequency,
		}
		if !exp.Known() {
			// Keep the source shape for the verification failure message.
			if entry.Frequency != 0 {
				exp.Raw = fmt.Sprintf("[%s, %d]", entry.Kind, entry.Frequency)
			} else {
				exp.Raw = entry.Kind
			}
		}
		exps[i] = exp
	}
	return exps, nil
}
