package snapshot

import (
	"context"
	"errors"
	"testing"
)

func TestCommandCapturer(t *testing.T) {
	c, err := NewCommandCapturer(
		[]string{"sh", "-c", "printf cam-bytes"},
		[]string{"sh", "-c", "printf screen-bytes"},
	)
	if err != nil {
		t.Fatalf("NewCommandCapturer failed: %v", err)
	}

	pair, err := c.Capture(context.Background())
	if err != nil {
		t.Fatalf("Capture failed: %v", err)
	}
	if string(pair.Cam) != "cam-bytes" {
		t.Errorf("Cam = %q, want cam-bytes", pair.Cam)
	}
	if string(pair.Screen) != "screen-bytes" {
		t.Errorf("Screen = %q, want screen-bytes", pair.Screen)
	}
}

func TestCommandCapturer_Failures(t *testing.T) {
	tests := []struct {
		name    string
		cam     []string
		screen  []string
		wantErr error
	}{
		{"empty output", []string{"sh", "-c", "true"}, []string{"sh", "-c", "printf x"}, ErrEmptyCapture},
		{"non-zero exit", []string{"sh", "-c", "printf x"}, []string{"sh", "-c", "exit 3"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewCommandCapturer(tt.cam, tt.screen)
			if err != nil {
				t.Fatalf("NewCommandCapturer failed: %v", err)
			}
			_, err = c.Capture(context.Background())
			if err == nil {
				t.Fatal("expected capture error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewCommandCapturer_RequiresCommands(t *testing.T) {
	if _, err := NewCommandCapturer(nil, []string{"true"}); err == nil {
		t.Error("expected error without camera command")
	}
	if _, err := NewCommandCapturer([]string{"true"}, nil); err == nil {
		t.Error("expected error without screen command")
	}
}
