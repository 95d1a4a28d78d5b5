package taxonomy

import (
	"math"
	"testing"
)

func TestSanitize(t *testing.T) {
	vocab := Default()

	raw := Labels{
		"HeadAway":      0.9,
		"Focused":       0.2,         // below threshold
		"Dancing":       0.99,        // not in vocabulary
		"PhoneLikely":   1.7,         // out of range
		"MicroSleep":    math.NaN(),  // out of range
		"VideoOnScreen": 0.95,        // screen label on a cam snapshot
	}

	kept, violations := vocab.Sanitize(KindCam, raw)

	if len(kept) != 1 {
		t.Fatalf("expected 1 kept label, got %d: %v", len(kept), kept)
	}
	if kept["HeadAway"] != 0.9 {
		t.Errorf("expected HeadAway=0.9, got %v", kept["HeadAway"])
	}

	reasons := make(map[Label]ViolationReason)
	for _, v := range violations {
		reasons[v.Label] = v.Reason
	}

	tests := []struct {
		label Label
		want  ViolationReason
	}{
		{"Focused", ReasonBelowThreshold},
		{"Dancing", ReasonUnknownLabel},
		{"PhoneLikely", ReasonOutOfRange},
		{"MicroSleep", ReasonOutOfRange},
		{"VideoOnScreen", ReasonUnknownLabel},
	}
	for _, tt := range tests {
		if got := reasons[tt.label]; got != tt.want {
			t.Errorf("label %s: reason = %q, want %q", tt.label, got, tt.want)
		}
	}
}

func TestNewVocabulary_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		specs []LabelSpec
	}{
		{"empty name", []LabelSpec{{Kind: KindCam, Threshold: 0.5}}},
		{"bad kind", []LabelSpec{{Name: "X", Kind: "mic", Threshold: 0.5}}},
		{"threshold too high", []LabelSpec{{Name: "X", Kind: KindCam, Threshold: 1.5}}},
		{"duplicate", []LabelSpec{{Name: "X", Kind: KindCam}, {Name: "X", Kind: KindCam}}},
		{"screen label with cam signal", []LabelSpec{{Name: "X", Kind: KindScreen, Signal: SignalPhone}}},
		{"cam label with screen signal", []LabelSpec{{Name: "X", Kind: KindCam, Signal: SignalScreenDistraction, Type: TypeVideo}}},
		{"screen distraction without type", []LabelSpec{{Name: "X", Kind: KindScreen, Signal: SignalScreenDistraction}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewVocabulary(tt.specs); err == nil {
				t.Errorf("expected error for %s", tt.name)
			}
		})
	}
}

func TestVocabulary_OrderAndRank(t *testing.T) {
	vocab := Default()

	screen := vocab.Labels(KindScreen)
	if len(screen) != 5 || screen[0] != "Productive" {
		t.Fatalf("unexpected screen labels: %v", screen)
	}
	if r := vocab.Rank(KindScreen, "Games"); r != 3 {
		t.Errorf("Rank(Games) = %d, want 3", r)
	}
	if r := vocab.Rank(KindScreen, "Nope"); r != -1 {
		t.Errorf("Rank(Nope) = %d, want -1", r)
	}

	spec, ok := vocab.Lookup(KindScreen, "Games")
	if !ok || spec.Type != TypeSocial {
		t.Errorf("Games should map to Social, got %+v", spec)
	}
}

func TestParseHelpers(t *testing.T) {
	if k, err := ParseKind("Camera"); err != nil || k != KindCam {
		t.Errorf("ParseKind(Camera) = %v, %v", k, err)
	}
	if _, err := ParseKind("mic"); err == nil {
		t.Error("expected error for unknown kind")
	}
	if s, err := ParseSignal(""); err != nil || s != SignalNeutral {
		t.Errorf("ParseSignal(\"\") = %v, %v", s, err)
	}
	if dt, err := ParseDistractionType("video"); err != nil || dt != TypeVideo {
		t.Errorf("ParseDistractionType(video) = %v, %v", dt, err)
	}
}
