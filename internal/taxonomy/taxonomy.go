package taxonomy

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Kind identifies the source of a snapshot.
type Kind string

const (
	KindCam    Kind = "cam"
	KindScreen Kind = "screen"
)

// Kinds lists every snapshot kind in evaluation order.
var Kinds = []Kind{KindCam, KindScreen}

// ParseKind normalizes a configured kind name.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case KindCam, "camera":
		return KindCam, nil
	case KindScreen:
		return KindScreen, nil
	default:
		return "", fmt.Errorf("unknown snapshot kind: %q", s)
	}
}

// Label is a taxonomy label returned by the classifier.
type Label string

// Labels maps a label to its confidence in [0,1].
type Labels map[Label]float64

// Signal is the role a label plays in the attention rules. Signals, not labels,
// carry the priority order, so labels can be added without touching the rules.
type Signal string

const (
	SignalNeutral           Signal = "neutral"
	SignalAbsent            Signal = "absent"
	SignalPhone             Signal = "phone"
	SignalMicroSleep        Signal = "microsleep"
	SignalGaze              Signal = "gaze"
	SignalScreenDistraction Signal = "screen_distraction"
)

// ParseSignal validates a configured signal name.
func ParseSignal(s string) (Signal, error) {
	switch sig := Signal(strings.ToLower(strings.TrimSpace(s))); sig {
	case SignalNeutral, SignalAbsent, SignalPhone, SignalMicroSleep, SignalGaze, SignalScreenDistraction:
		return sig, nil
	case "":
		return SignalNeutral, nil
	default:
		return "", fmt.Errorf("unknown label signal: %q", s)
	}
}

// DistractionType is the concrete kind of a distraction interval.
type DistractionType string

const (
	TypeAbsent     DistractionType = "Absent"
	TypePhone      DistractionType = "Phone"
	TypeMicroSleep DistractionType = "MicroSleep"
	TypeVideo      DistractionType = "Video"
	TypeSocial     DistractionType = "Social"
	TypeChat       DistractionType = "Chat"
	TypeLookAway   DistractionType = "LookAway"
	TypeUnknown    DistractionType = "Unknown"
)

// ParseDistractionType validates a configured distraction type.
func ParseDistractionType(s string) (DistractionType, error) {
	for _, t := range []DistractionType{TypeAbsent, TypePhone, TypeMicroSleep, TypeVideo, TypeSocial, TypeChat, TypeLookAway, TypeUnknown} {
		if strings.EqualFold(string(t), strings.TrimSpace(s)) {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown distraction type: %q", s)
}

// LabelSpec describes one entry of the vocabulary table.
type LabelSpec struct {
	Name      Label
	Kind      Kind
	Threshold float64
	Signal    Signal
	// Type is only meaningful for screen_distraction labels.
	Type DistractionType
}

// Vocabulary is the immutable set of valid labels per kind. It is built once at
// startup and only read afterwards, so it is safe to share between goroutines.
type Vocabulary struct {
	specs map[Kind]map[Label]LabelSpec
	order map[Kind][]Label
}

// NewVocabulary builds a vocabulary from a table. Table order is kept and used to
// break ties deterministically.
func NewVocabulary(specs []LabelSpec) (*Vocabulary, error) {
	v := &Vocabulary{
		specs: make(map[Kind]map[Label]LabelSpec),
		order: make(map[Kind][]Label),
	}

	for _, spec := range specs {
		if spec.Name == "" {
			return nil, fmt.Errorf("vocabulary label with empty name")
		}
		if spec.Kind != KindCam && spec.Kind != KindScreen {
			return nil, fmt.Errorf("label %s: unknown kind %q", spec.Name, spec.Kind)
		}
		if spec.Threshold < 0 || spec.Threshold > 1 {
			return nil, fmt.Errorf("label %s: threshold %.2f outside [0,1]", spec.Name, spec.Threshold)
		}
		if spec.Signal == "" {
			spec.Signal = SignalNeutral
		}
		if spec.Kind == KindScreen && spec.Signal != SignalNeutral && spec.Signal != SignalScreenDistraction {
			return nil, fmt.Errorf("label %s: screen labels must be neutral or screen_distraction, got %s", spec.Name, spec.Signal)
		}
		if spec.Kind == KindCam && spec.Signal == SignalScreenDistraction {
			return nil, fmt.Errorf("label %s: cam labels cannot carry the screen_distraction signal", spec.Name)
		}
		if spec.Signal == SignalScreenDistraction && spec.Type == "" {
			return nil, fmt.Errorf("label %s: screen_distraction label needs a distraction type", spec.Name)
		}

		byLabel, ok := v.specs[spec.Kind]
		if !ok {
			byLabel = make(map[Label]LabelSpec)
			v.specs[spec.Kind] = byLabel
		}
		if _, dup := byLabel[spec.Name]; dup {
			return nil, fmt.Errorf("label %s declared twice for kind %s", spec.Name, spec.Kind)
		}
		byLabel[spec.Name] = spec
		v.order[spec.Kind] = append(v.order[spec.Kind], spec.Name)
	}

	return v, nil
}

// Lookup returns the spec of a label for a kind.
func (v *Vocabulary) Lookup(kind Kind, label Label) (LabelSpec, bool) {
	spec, ok := v.specs[kind][label]
	return spec, ok
}

// Labels returns the labels of a kind in table order.
func (v *Vocabulary) Labels(kind Kind) []Label {
	out := make([]Label, len(v.order[kind]))
	copy(out, v.order[kind])
	return out
}

// Rank returns the table position of a label, or -1 if unknown.
func (v *Vocabulary) Rank(kind Kind, label Label) int {
	for i, l := range v.order[kind] {
		if l == label {
			return i
		}
	}
	return -1
}

// ViolationReason explains why a returned label was dropped.
type ViolationReason string

const (
	ReasonUnknownLabel   ViolationReason = "unknown_label"
	ReasonOutOfRange     ViolationReason = "out_of_range"
	ReasonBelowThreshold ViolationReason = "below_threshold"
)

// VocabularyViolation describes a label discarded while sanitizing classifier output.
type VocabularyViolation struct {
	Kind       Kind
	Label      Label
	Confidence float64
	Reason     ViolationReason
}

// Sanitize keeps only labels of the kind's vocabulary whose confidence is within
// [0,1] and at or above the label threshold. Dropped labels are reported so the
// caller can log them.
func (v *Vocabulary) Sanitize(kind Kind, raw Labels) (Labels, []VocabularyViolation) {
	kept := make(Labels, len(raw))
	var violations []VocabularyViolation

	// Iterate in sorted order so violation reports are stable.
	names := make([]string, 0, len(raw))
	for l := range raw {
		names = append(names, string(l))
	}
	sort.Strings(names)

	for _, name := range names {
		label := Label(name)
		conf := raw[label]

		spec, ok := v.Lookup(kind, label)
		switch {
		case !ok:
			violations = append(violations, VocabularyViolation{Kind: kind, Label: label, Confidence: conf, Reason: ReasonUnknownLabel})
		case math.IsNaN(conf) || conf < 0 || conf > 1:
			violations = append(violations, VocabularyViolation{Kind: kind, Label: label, Confidence: conf, Reason: ReasonOutOfRange})
		case conf < spec.Threshold:
			violations = append(violations, VocabularyViolation{Kind: kind, Label: label, Confidence: conf, Reason: ReasonBelowThreshold})
		default:
			kept[label] = conf
		}
	}

	return kept, violations
}

// DefaultSpecs returns the built-in label table.
func DefaultSpecs() []LabelSpec {
	return []LabelSpec{
		{Name: "Focused", Kind: KindCam, Threshold: 0.5, Signal: SignalNeutral},
		{Name: "Absent", Kind: KindCam, Threshold: 0.5, Signal: SignalAbsent},
		{Name: "PhoneLikely", Kind: KindCam, Threshold: 0.5, Signal: SignalPhone},
		{Name: "MicroSleep", Kind: KindCam, Threshold: 0.5, Signal: SignalMicroSleep},
		{Name: "HeadAway", Kind: KindCam, Threshold: 0.5, Signal: SignalGaze},
		{Name: "EyesOffScreen", Kind: KindCam, Threshold: 0.5, Signal: SignalGaze},

		{Name: "Productive", Kind: KindScreen, Threshold: 0.5, Signal: SignalNeutral},
		{Name: "VideoOnScreen", Kind: KindScreen, Threshold: 0.5, Signal: SignalScreenDistraction, Type: TypeVideo},
		{Name: "SocialFeed", Kind: KindScreen, Threshold: 0.5, Signal: SignalScreenDistraction, Type: TypeSocial},
		{Name: "Games", Kind: KindScreen, Threshold: 0.5, Signal: SignalScreenDistraction, Type: TypeSocial},
		{Name: "ChatWindow", Kind: KindScreen, Threshold: 0.5, Signal: SignalScreenDistraction, Type: TypeChat},
	}
}

// Default returns the built-in vocabulary.
func Default() *Vocabulary {
	v, err := NewVocabulary(DefaultSpecs())
	if err != nil {
		panic(fmt.Sprintf("taxonomy: invalid default vocabulary: %v", err))
	}
	return v
}
