package escalation

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecide_EmbeddedPolicy(t *testing.T) {
	engine, err := NewEngine("", zerolog.Nop())
	require.NoError(t, err)

	tests := []struct {
		name       string
		input      Input
		wantAction string
		wantTarget string
	}{
		{
			name:       "repeated video closes the player",
			input:      Input{Type: "Video", PreviousType: "Video", GapSeconds: 40},
			wantAction: ActionCloseApp,
			wantTarget: "video_player",
		},
		{
			name:       "repeated chat closes the chat client",
			input:      Input{Type: "Chat", PreviousType: "Chat", GapSeconds: 10},
			wantAction: ActionCloseApp,
			wantTarget: "chat_client",
		},
		{
			name:       "repeated phone",
			input:      Input{Type: "Phone", PreviousType: "Phone", GapSeconds: 30},
			wantAction: ActionSilencePhone,
			wantTarget: "phone",
		},
		{
			name:       "different types only notify",
			input:      Input{Type: "Video", PreviousType: "Social", GapSeconds: 40},
			wantAction: ActionNotify,
		},
		{
			name:       "look away has no application",
			input:      Input{Type: "LookAway", PreviousType: "LookAway", GapSeconds: 5},
			wantAction: ActionNotify,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			action, err := engine.Decide(context.Background(), tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.wantAction, action.Action)
			assert.Equal(t, tt.wantTarget, action.Target)
			assert.NotEmpty(t, action.Reason)
		})
	}
}

func TestDecide_ReasonMentionsGap(t *testing.T) {
	engine, err := NewEngine("", zerolog.Nop())
	require.NoError(t, err)

	action, err := engine.Decide(context.Background(), Input{Type: "Social", PreviousType: "Social", GapSeconds: 40})
	require.NoError(t, err)
	assert.Equal(t, "repeated Social distraction within 40s", action.Reason)
}

const customPolicy = `package attentiond.escalation

import rego.v1

decision := {"action": "dim_screen", "target": "display", "reason": "custom"}
`

func TestEngine_PolicyDirAndReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.rego")
	require.NoError(t, os.WriteFile(path, []byte(customPolicy), 0o600))

	engine, err := NewEngine(dir, zerolog.Nop())
	require.NoError(t, err)

	action, err := engine.Decide(context.Background(), Input{Type: "Video"})
	require.NoError(t, err)
	assert.Equal(t, "dim_screen", action.Action)

	// A broken policy is rejected and the previous one stays active.
	require.NoError(t, os.WriteFile(path, []byte("package attentiond.escalation\n\ndecision :=\n"), 0o600))
	assert.Error(t, engine.Reload())

	action, err = engine.Decide(context.Background(), Input{Type: "Video"})
	require.NoError(t, err)
	assert.Equal(t, "dim_screen", action.Action)
}

func TestNewEngine_EmptyDir(t *testing.T) {
	_, err := NewEngine(t.TempDir(), zerolog.Nop())
	assert.Error(t, err)
}

func TestEngine_ConcurrentReload(t *testing.T) {
	engine, err := NewEngine("", zerolog.Nop())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				_, err := engine.Decide(context.Background(), Input{Type: "Video", PreviousType: "Video"})
				assert.NoError(t, err)
			}
		}()
	}
	for i := 0; i < 3; i++ {
		assert.NoError(t, engine.Reload())
	}
	wg.Wait()
}
