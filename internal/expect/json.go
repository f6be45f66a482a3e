package expect

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/mstaack/sw-usb-audio/internal/models"
)

// JSONParser parses analyzer-native expectation files: a JSON object whose
// "in" and "out" arrays hold one entry per channel, each entry an array
// opening with the kind tag, e.g. ["sine", 1000] or ["volcheck"].
type JSONParser struct{}

// NewJSONParser creates a new JSON parser
func NewJSONParser() *JSONParser {
	return &JSONParser{}
}

// Parse reads an analyzer-native JSON expectation set
func (p *JSONParser) Parse(r io.Reader) (*Set, error) {
	var doc struct {
		In  []json.RawMessage `json:"in"`
		Out []json.RawMessage `json:"out"`
	}

	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}

	in, err := decodeChannels(doc.In, "in")
	if err != nil {
		return nil, err
	}
	out, err := decodeChannels(doc.Out, "out")
	if err != nil {
		return nil, err
	}

	return &Set{In: in, Out: out}, nil
}

func decodeChannels(entries []json.RawMessage, side string) ([]models.Expectation, error) {
	if entries == nil {
		return nil, nil
	}
	exps := make([]models.Expectation, len(entries))
	for i, raw := range entries {
		exp, err := decodeChannel(raw)
		if err != nil {
			return nil, fmt.Errorf("%s channel %d: %w", side, i, err)
		}
		exps[i] = exp
	}
	return exps, nil
}

// decodeChannel accepts any kind tag so a typo in a config file surfaces
// as a verification failure rather than a parse error.
func decodeChannel(raw json.RawMessage) (models.Expectation, error) {
	var entry []interface{}
	if err := json.Unmarshal(raw, &entry); err != nil {
		return models.Expectation{}, fmt.Errorf("channel entry must be an array: %w", err)
	}
	if len(entry) == 0 {
		return models.Expectation{}, fmt.Errorf("channel entry is empty")
	}

	kind, ok := entry[0].(string)
	if !ok {
		return models.Expectation{}, fmt.Errorf("channel entry must open with a kind tag")
	}

	exp := models.Expectation{Kind: models.ExpectationKind(kind), Raw: compactJSON(raw)}
	if len(entry) > 1 {
		freq, ok := entry[1].(float64)
		if !ok {
			return models.Expectation{}, fmt.Errorf("%s frequency must be a number", kind)
		}
		exp.Frequency = int(freq)
	}
	return exp, nil
}

func compactJSON(raw json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}

// WriteJSON renders the set in the analyzer-native form the analyzer
// binary accepts as its config argument.
func (s *Set) WriteJSON(w io.Writer) error {
	doc := make(map[string][]json.RawMessage, 2)
	if s.In != nil {
		doc["in"] = encodeChannels(s.In)
	}
	if s.Out != nil {
		doc["out"] = encodeChannels(s.Out)
	}

	data, err := json.MarshalIndent(doc, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to encode expectation set: %w", err)
	}
	data = append(data, '\n')

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write expectation set: %w", err)
	}
	return nil
}

// WriteFile writes the set to path in the analyzer-native JSON form.
func (s *Set) WriteFile(path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create expectation file: %w", err)
	}

	if err := s.WriteJSON(file); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

func encodeChannels(exps []models.Expectation) []json.RawMessage {
	entries := make([]json.RawMessage, len(exps))
	for i, e := range exps {
		entries[i] = encodeChannel(e)
	}
	return entries
}

func encodeChannel(e models.Expectation) json.RawMessage {
	switch e.Kind {
	case models.KindSine:
		return json.RawMessage(fmt.Sprintf(`["sine", %d]`, e.Frequency))
	case models.KindVolumeCheck:
		return json.RawMessage(`["volcheck"]`)
	default:
		// Unknown kinds round-trip verbatim when the source text was JSON.
		if e.Raw != "" && json.Valid([]byte(e.Raw)) {
			return json.RawMessage(e.Raw)
		}
		entry, _ := json.Marshal([]string{string(e.Kind)})
		return entry
	}
}
