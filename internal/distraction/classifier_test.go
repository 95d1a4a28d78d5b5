package distraction

import (
	"testing"

	"github.com/Hilo-Hilo/Memories-AI-Hackathon-sub002/internal/fusion"
	"github.com/Hilo-Hilo/Memories-AI-Hackathon-sub002/internal/taxonomy"
	"github.com/stretchr/testify/assert"
)

func cam(m map[taxonomy.Label]int) *fusion.Vote {
	return &fusion.Vote{Kind: taxonomy.KindCam, Majority: m, K: 3}
}

func screen(m map[taxonomy.Label]int) *fusion.Vote {
	return &fusion.Vote{Kind: taxonomy.KindScreen, Majority: m, K: 3}
}

func TestClassify(t *testing.T) {
	c := NewClassifier(taxonomy.Default())

	tests := []struct {
		name      string
		ev        Evidence
		wantType  taxonomy.DistractionType
		wantLabel taxonomy.Label
		wantConf  float64
	}{
		{
			name:      "absent wins over everything",
			ev:        Evidence{Cam: cam(map[taxonomy.Label]int{"Absent": 2, "PhoneLikely": 3}), Screen: screen(map[taxonomy.Label]int{"VideoOnScreen": 3})},
			wantType:  taxonomy.TypeAbsent,
			wantLabel: "Absent",
			wantConf:  2.0 / 3,
		},
		{
			name:      "phone before microsleep",
			ev:        Evidence{Cam: cam(map[taxonomy.Label]int{"PhoneLikely": 2, "MicroSleep": 3})},
			wantType:  taxonomy.TypePhone,
			wantLabel: "PhoneLikely",
			wantConf:  2.0 / 3,
		},
		{
			name:      "microsleep",
			ev:        Evidence{Cam: cam(map[taxonomy.Label]int{"MicroSleep": 3, "HeadAway": 3})},
			wantType:  taxonomy.TypeMicroSleep,
			wantLabel: "MicroSleep",
			wantConf:  1,
		},
		{
			name:      "head away corroborated by video",
			ev:        Evidence{Cam: cam(map[taxonomy.Label]int{"HeadAway": 2}), Screen: screen(map[taxonomy.Label]int{"VideoOnScreen": 3})},
			wantType:  taxonomy.TypeVideo,
			wantLabel: "VideoOnScreen",
			wantConf:  1,
		},
		{
			name:      "eyes off screen corroborated by chat",
			ev:        Evidence{Cam: cam(map[taxonomy.Label]int{"EyesOffScreen": 2}), Screen: screen(map[taxonomy.Label]int{"ChatWindow": 2})},
			wantType:  taxonomy.TypeChat,
			wantLabel: "ChatWindow",
			wantConf:  2.0 / 3,
		},
		{
			name:      "gaze without screen label is look away",
			ev:        Evidence{Cam: cam(map[taxonomy.Label]int{"HeadAway": 3}), Screen: screen(map[taxonomy.Label]int{"Productive": 3})},
			wantType:  taxonomy.TypeLookAway,
			wantLabel: "HeadAway",
			wantConf:  1,
		},
		{
			name:      "screen only social",
			ev:        Evidence{Cam: cam(map[taxonomy.Label]int{"Focused": 3}), Screen: screen(map[taxonomy.Label]int{"SocialFeed": 2})},
			wantType:  taxonomy.TypeSocial,
			wantLabel: "SocialFeed",
			wantConf:  2.0 / 3,
		},
		{
			name:      "games maps to social",
			ev:        Evidence{Screen: screen(map[taxonomy.Label]int{"Games": 3})},
			wantType:  taxonomy.TypeSocial,
			wantLabel: "Games",
			wantConf:  1,
		},
		{
			name:      "strongest screen label wins",
			ev:        Evidence{Screen: screen(map[taxonomy.Label]int{"ChatWindow": 2, "VideoOnScreen": 3})},
			wantType:  taxonomy.TypeVideo,
			wantLabel: "VideoOnScreen",
			wantConf:  1,
		},
		{
			name:      "tie broken by vocabulary order",
			ev:        Evidence{Screen: screen(map[taxonomy.Label]int{"ChatWindow": 2, "SocialFeed": 2})},
			wantType:  taxonomy.TypeSocial,
			wantLabel: "SocialFeed",
			wantConf:  2.0 / 3,
		},
		{
			name:     "no evidence",
			ev:       Evidence{},
			wantType: taxonomy.TypeUnknown,
		},
		{
			name:     "only neutral labels",
			ev:       Evidence{Cam: cam(map[taxonomy.Label]int{"Focused": 3}), Screen: screen(map[taxonomy.Label]int{"Productive": 3})},
			wantType: taxonomy.TypeUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := c.Classify(tt.ev)
			assert.Equal(t, tt.wantType, v.Type)
			assert.Equal(t, tt.wantLabel, v.Label)
			assert.InDelta(t, tt.wantConf, v.Confidence(), 1e-9)
		})
	}
}

func TestClassify_Deterministic(t *testing.T) {
	c := NewClassifier(taxonomy.Default())
	ev := Evidence{
		Cam:    cam(map[taxonomy.Label]int{"HeadAway": 2, "EyesOffScreen": 2}),
		Screen: screen(map[taxonomy.Label]int{"Games": 2, "SocialFeed": 2, "ChatWindow": 2}),
	}

	first := c.Classify(ev)
	for i := 0; i < 50; i++ {
		assert.Equal(t, first, c.Classify(ev))
	}
	assert.Equal(t, taxonomy.TypeSocial, first.Type)
	assert.Equal(t, taxonomy.Label("SocialFeed"), first.Label)
}

func TestClassify_ConfiguredLabel(t *testing.T) {
	specs := append(taxonomy.DefaultSpecs(), taxonomy.LabelSpec{
		Name: "Shopping", Kind: taxonomy.KindScreen, Threshold: 0.6,
		Signal: taxonomy.SignalScreenDistraction, Type: taxonomy.TypeSocial,
	})
	vocab, err := taxonomy.NewVocabulary(specs)
	assert.NoError(t, err)

	v := NewClassifier(vocab).Classify(Evidence{Screen: screen(map[taxonomy.Label]int{"Shopping": 2})})
	assert.Equal(t, taxonomy.TypeSocial, v.Type)
}
