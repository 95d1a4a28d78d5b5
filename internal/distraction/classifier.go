// Package distraction maps fused evidence to a distraction type.
package distraction

import (
	"github.com/Hilo-Hilo/Memories-AI-Hackathon-sub002/internal/fusion"
	"github.com/Hilo-Hilo/Memories-AI-Hackathon-sub002/internal/taxonomy"
)

// Evidence is the latest vote of each kind. Either may be nil.
type Evidence struct {
	Cam    *fusion.Vote
	Screen *fusion.Vote
}

// Verdict is the outcome of classifying evidence.
type Verdict struct {
	Type taxonomy.DistractionType
	// Label is the label that decided the type, empty for TypeUnknown.
	Label taxonomy.Label
	Kind  taxonomy.Kind
	Count int
	K     int
}

// Confidence returns majorityCount/K of the deciding label.
func (v Verdict) Confidence() float64 {
	if v.K <= 0 {
		return 0
	}
	return float64(v.Count) / float64(v.K)
}

// Classifier resolves distraction types over a vocabulary. Classify is total
// and has no side effects: equal evidence always yields an equal verdict.
type Classifier struct {
	vocabulary *taxonomy.Vocabulary
}

// NewClassifier creates a classifier.
func NewClassifier(vocabulary *taxonomy.Vocabulary) *Classifier {
	return &Classifier{vocabulary: vocabulary}
}

// Classify applies the priority order absent, phone, microsleep, gaze with a
// corroborating screen label, plain gaze, screen only, and falls back to
// TypeUnknown.
func (c *Classifier) Classify(ev Evidence) Verdict {
	for _, rule := range []struct {
		signal taxonomy.Signal
		typ    taxonomy.DistractionType
	}{
		{taxonomy.SignalAbsent, taxonomy.TypeAbsent},
		{taxonomy.SignalPhone, taxonomy.TypePhone},
		{taxonomy.SignalMicroSleep, taxonomy.TypeMicroSleep},
	} {
		if label, n, ok := c.Strongest(ev.Cam, rule.signal); ok {
			return Verdict{Type: rule.typ, Label: label, Kind: taxonomy.KindCam, Count: n, K: ev.Cam.K}
		}
	}

	screenLabel, screenCount, screenOK := c.Strongest(ev.Screen, taxonomy.SignalScreenDistraction)

	if gaze, n, ok := c.Strongest(ev.Cam, taxonomy.SignalGaze); ok {
		if screenOK {
			return c.screenVerdict(ev.Screen, screenLabel, screenCount)
		}
		return Verdict{Type: taxonomy.TypeLookAway, Label: gaze, Kind: taxonomy.KindCam, Count: n, K: ev.Cam.K}
	}

	if screenOK {
		return c.screenVerdict(ev.Screen, screenLabel, screenCount)
	}

	return Verdict{Type: taxonomy.TypeUnknown}
}

func (c *Classifier) screenVerdict(vote *fusion.Vote, label taxonomy.Label, count int) Verdict {
	typ := taxonomy.TypeUnknown
	if spec, ok := c.vocabulary.Lookup(taxonomy.KindScreen, label); ok && spec.Type != "" {
		typ = spec.Type
	}
	return Verdict{Type: typ, Label: label, Kind: taxonomy.KindScreen, Count: count, K: vote.K}
}

// Strongest returns the majority label of vote carrying signal with the highest
// count. Ties go to the label declared first in the vocabulary.
func (c *Classifier) Strongest(vote *fusion.Vote, signal taxonomy.Signal) (taxonomy.Label, int, bool) {
	if vote == nil {
		return "", 0, false
	}

	var (
		best      taxonomy.Label
		bestCount int
		bestRank  int
		found     bool
	)
	for label, n := range vote.Majority {
		spec, ok := c.vocabulary.Lookup(vote.Kind, label)
		if !ok || spec.Signal != signal {
			continue
		}
		rank := c.vocabulary.Rank(vote.Kind, label)
		if !found || n > bestCount || (n == bestCount && rank < bestRank) {
			best, bestCount, bestRank, found = label, n, rank, true
		}
	}
	return best, bestCount, found
}
