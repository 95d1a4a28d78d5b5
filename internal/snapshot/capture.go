package snapshot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sync"
)

// ErrEmptyCapture is returned when a capture command produced no image.
var ErrEmptyCapture = errors.New("snapshot: capture produced no data")

// Pair holds the raw images of one capture tick.
type Pair struct {
	Cam    []byte
	Screen []byte
}

// Capturer supplies a camera/screen image pair on demand.
type Capturer interface {
	Capture(ctx context.Context) (Pair, error)
}

// CommandCapturer captures images by running external commands that write the
// encoded image to stdout.
type CommandCapturer struct {
	CameraCommand []string
	ScreenCommand []string
}

// NewCommandCapturer creates a capturer from two argv lists.
func NewCommandCapturer(cameraCmd, screenCmd []string) (*CommandCapturer, error) {
	if len(cameraCmd) == 0 {
		return nil, fmt.Errorf("camera capture command is required")
	}
	if len(screenCmd) == 0 {
		return nil, fmt.Errorf("screen capture command is required")
	}
	return &CommandCapturer{CameraCommand: cameraCmd, ScreenCommand: screenCmd}, nil
}

// Capture runs both commands concurrently and returns the pair. Either command
// failing fails the whole tick.
func (c *CommandCapturer) Capture(ctx context.Context) (Pair, error) {
	var (
		wg                sync.WaitGroup
		pair              Pair
		camErr, screenErr error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		pair.Cam, camErr = runCapture(ctx, c.CameraCommand)
	}()
	go func() {
		defer wg.Done()
		pair.Screen, screenErr = runCapture(ctx, c.ScreenCommand)
	}()
	wg.Wait()

	if camErr != nil {
		return Pair{}, fmt.Errorf("camera capture: %w", camErr)
	}
	if screenErr != nil {
		return Pair{}, fmt.Errorf("screen capture: %w", screenErr)
	}
	return pair, nil
}

func runCapture(ctx context.Context, argv []string) ([]byte, error) {
	var stdout, stderr bytes.Buffer

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s: %w (stderr: %s)", argv[0], err, bytes.TrimSpace(stderr.Bytes()))
	}
	if stdout.Len() == 0 {
		return nil, ErrEmptyCapture
	}
	return stdout.Bytes(), nil
}

// CapturerFunc adapts a function to the Capturer interface.
type CapturerFunc func(ctx context.Context) (Pair, error)

// Capture calls f.
func (f CapturerFunc) Capture(ctx context.Context) (Pair, error) {
	return f(ctx)
}
