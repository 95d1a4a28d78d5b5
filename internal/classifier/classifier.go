package classifier

import (
	"context"

	"github.com/Hilo-Hilo/Memories-AI-Hackathon-sub002/internal/taxonomy"
)

// Client labels an image. The returned map may contain labels outside the
// vocabulary and confidences outside [0,1]; callers sanitize it.
type Client interface {
	Classify(ctx context.Context, image []byte, kind taxonomy.Kind) (taxonomy.Labels, error)
}

// ClientFunc adapts a function to the Client interface.
type ClientFunc func(ctx context.Context, image []byte, kind taxonomy.Kind) (taxonomy.Labels, error)

// Classify calls f.
func (f ClientFunc) Classify(ctx context.Context, image []byte, kind taxonomy.Kind) (taxonomy.Labels, error) {
	return f(ctx, image, kind)
}
