package analyzer

import "testing"

func kinds(facts []Fact) []FactKind {
	ks := make([]FactKind, len(facts))
	for i, f := range facts {
		ks[i] = f.Kind
	}
	return ks
}

func hasKind(facts []Fact, kind FactKind) bool {
	for _, f := range facts {
		if f.Kind == kind {
			return true
		}
	}
	return false
}

func factOf(t *testing.T, facts []Fact, kind FactKind) Fact {
	t.Helper()
	for _, f := range facts {
		if f.Kind == kind {
			return f
		}
	}
	t.Fatalf("no %v fact in %v", kind, kinds(facts))
	return Fact{}
}

func TestClassifyLine_FrequencyReading(t *testing.T) {
	facts := ClassifyLine("Channel 0: Frequency 997")

	if len(facts) != 2 {
		t.Fatalf("expected 2 facts (tag + frequency), got %d: %v", len(facts), kinds(facts))
	}

	tag := factOf(t, facts, ChannelTag)
	if tag.Channel != 0 {
		t.Errorf("expected channel 0, got %d", tag.Channel)
	}

	freq := factOf(t, facts, FrequencyReading)
	if freq.Channel != 0 {
		t.Errorf("expected frequency fact on channel 0, got %d", freq.Channel)
	}
	if freq.Value != 997 {
		t.Errorf("expected frequency 997, got %d", freq.Value)
	}
}

func TestClassifyLine_VolumeChange(t *testing.T) {
	facts := ClassifyLine("Channel 3: Volume change by -12")

	vol := factOf(t, facts, VolumeChangeReading)
	if vol.Channel != 3 {
		t.Errorf("expected channel 3, got %d", vol.Channel)
	}
	if vol.Value != -12 {
		t.Errorf("expected delta -12, got %d", vol.Value)
	}

	if hasKind(facts, FrequencyReading) {
		t.Error("volume line should not yield a frequency fact")
	}
}

func TestClassifyLine_LostSignal(t *testing.T) {
	facts := ClassifyLine("Channel 5: Lost signal")

	lost := factOf(t, facts, LostSignal)
	if lost.Channel != 5 {
		t.Errorf("expected channel 5, got %d", lost.Channel)
	}
	if lost.Line != "Channel 5: Lost signal" {
		t.Errorf("lost-signal fact should carry the raw line, got %q", lost.Line)
	}
}

func TestClassifyLine_LostSignalSubstring(t *testing.T) {
	// The marker does not have to open the message.
	facts := ClassifyLine("Channel 2: glitch detected, Lost signal for 40ms")
	if !hasKind(facts, LostSignal) {
		t.Errorf("expected LostSignal fact, got %v", kinds(facts))
	}
}

func TestClassifyLine_ErrorMarkers(t *testing.T) {
	cases := []struct {
		name string
		line string
		want bool
	}{
		{"upper", "ERROR: usb stream stalled", true},
		{"lower", "xscope error on probe 2", true},
		{"title", "Error reading device descriptor", true},
		{"problem", "Problem with clock recovery", true},
		{"problem lower", "problem draining buffer", true},
		{"mixed case", "eRRoR in DMA setup", true},
		{"embedded", "buffered 12 frames", false},
		{"clean reading", "Channel 1: Frequency 1000", false},
		{"empty", "", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := hasKind(ClassifyLine(tc.line), GlobalError)
			if got != tc.want {
				t.Errorf("line %q: expected error=%v, got %v", tc.line, tc.want, got)
			}
		})
	}
}

func TestClassifyLine_ErrorOnTaggedLine(t *testing.T) {
	// A channel-scoped error line yields both facts so the checker can
	// report the error and still attribute the line to its channel.
	facts := ClassifyLine("Channel 4: error in tone detection")

	if !hasKind(facts, GlobalError) {
		t.Error("expected GlobalError fact")
	}
	if !hasKind(facts, ChannelTag) {
		t.Error("expected ChannelTag fact")
	}
}

func TestClassifyLine_Unclassified(t *testing.T) {
	facts := ClassifyLine("starting tone detection on 8 channels")

	if len(facts) != 1 {
		t.Fatalf("expected single fact, got %d: %v", len(facts), kinds(facts))
	}
	if facts[0].Kind != Unclassified {
		t.Errorf("expected Unclassified, got %v", facts[0].Kind)
	}
	if facts[0].Line != "starting tone detection on 8 channels" {
		t.Errorf("unexpected raw line %q", facts[0].Line)
	}
}

func TestClassifyLine_TagRequiresColonAndStart(t *testing.T) {
	cases := []struct {
		name string
		line string
	}{
		{"lowercase tag", "channel 0: Frequency 997"},
		{"leading space", " Channel 0: Frequency 997"},
		{"missing colon", "Channel 0 Frequency 997"},
		{"tag mid-line", "see Channel 0: Frequency 997"},
		{"non-numeric channel", "Channel x: Frequency 997"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			facts := ClassifyLine(tc.line)
			if hasKind(facts, ChannelTag) {
				t.Errorf("line %q should not yield a channel tag", tc.line)
			}
			if hasKind(facts, FrequencyReading) {
				t.Errorf("line %q should not yield a frequency reading", tc.line)
			}
		})
	}
}

func TestClassifyLine_FrequencyMustFollowTag(t *testing.T) {
	// Frequency readings are anchored to the tag; a trailing mention
	// elsewhere in the message is not a reading.
	facts := ClassifyLine("Channel 1: tone locked, Frequency 997")
	if hasKind(facts, FrequencyReading) {
		t.Error("unanchored frequency text should not classify as a reading")
	}
	if !hasKind(facts, ChannelTag) {
		t.Error("expected the channel tag to survive")
	}
}

func TestClassifyLine_VolumeAnywhereAfterTag(t *testing.T) {
	facts := ClassifyLine("Channel 2: observed Volume change by 24 (post step)")
	vol := factOf(t, facts, VolumeChangeReading)
	if vol.Value != 24 {
		t.Errorf("expected delta 24, got %d", vol.Value)
	}
}

func TestClassifyLine_MultiDigitChannel(t *testing.T) {
	facts := ClassifyLine("Channel 12: Frequency 48000")
	tag := factOf(t, facts, ChannelTag)
	if tag.Channel != 12 {
		t.Errorf("expected channel 12, got %d", tag.Channel)
	}
	freq := factOf(t, facts, FrequencyReading)
	if freq.Value != 48000 {
		t.Errorf("expected frequency 48000, got %d", freq.Value)
	}
}

func TestClassifyAll_PreservesOrder(t *testing.T) {
	transcript := []string{
		"Channel 0: Frequency 997",
		"noise floor settled",
		"Channel 1: Volume change by -6",
	}

	all := ClassifyAll(transcript)
	if len(all) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(all))
	}
	if !hasKind(all[0], FrequencyReading) {
		t.Error("line 0 should classify as a frequency reading")
	}
	if all[1][0].Kind != Unclassified {
		t.Error("line 1 should be unclassified")
	}
	if !hasKind(all[2], VolumeChangeReading) {
		t.Error("line 2 should classify as a volume change")
	}
}

func TestClassifyAll_Empty(t *testing.T) {
	if got := ClassifyAll(nil); len(got) != 0 {
		t.Errorf("expected no entries for nil transcript, got %d", len(got))
	}
}

func TestFactKind_String(t *testing.T) {
	cases := map[FactKind]string{
		GlobalError:         "GlobalError",
		ChannelTag:          "ChannelTag",
		LostSignal:          "LostSignal",
		FrequencyReading:    "FrequencyReading",
		VolumeChangeReading: "VolumeChangeReading",
		Unclassified:        "Unclassified",
		FactKind(99):        "Unknown",
	}
	for kind, want := range cases {
		if got := kind.String(); got != want {
			t.Errorf("FactKind(%d).String() = %q, want %q", int(kind), got, want)
		}
	}
}
