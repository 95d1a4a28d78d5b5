package classifier

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/Hilo-Hilo/Memories-AI-Hackathon-sub002/internal/metrics"
	"github.com/Hilo-Hilo/Memories-AI-Hackathon-sub002/internal/taxonomy"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
)

// CachingClient memoizes classifications of identical images. An unchanged
// screen between ticks is answered without calling the provider again.
type CachingClient struct {
	next     Client
	cache    *lru.Cache[string, taxonomy.Labels]
	capacity int
	logger   zerolog.Logger
}

// NewCachingClient wraps next with an LRU cache of the given size.
func NewCachingClient(next Client, size int, logger zerolog.Logger) (*CachingClient, error) {
	cache, err := lru.New[string, taxonomy.Labels](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create classification cache: %w", err)
	}

	return &CachingClient{
		next:     next,
		cache:    cache,
		capacity: size,
		logger:   logger.With().Str("component", "classifier_cache").Logger(),
	}, nil
}

// Classify returns a cached result or delegates. Failures are not cached.
func (c *CachingClient) Classify(ctx context.Context, image []byte, kind taxonomy.Kind) (taxonomy.Labels, error) {
	key := cacheKey(image, kind)

	if labels, ok := c.cache.Get(key); ok {
		metrics.ClassifierCacheHits.Inc()
		c.logger.Debug().Str("kind", string(kind)).Msg("Classification cache hit")
		return copyLabels(labels), nil
	}
	metrics.ClassifierCacheMisses.Inc()

	labels, err := c.next.Classify(ctx, image, kind)
	if err != nil {
		return nil, err
	}

	c.cache.Add(key, copyLabels(labels))
	return labels, nil
}

// Purge empties the cache.
func (c *CachingClient) Purge() {
	c.cache.Purge()
}

// Stats returns the cache size and capacity.
func (c *CachingClient) Stats() (size, capacity int) {
	return c.cache.Len(), c.capacity
}

func cacheKey(image []byte, kind taxonomy.Kind) string {
	sum := sha256.Sum256(image)
	return string(kind) + ":" + hex.EncodeToString(sum[:])
}

func copyLabels(in taxonomy.Labels) taxonomy.Labels {
	out := make(taxonomy.Labels, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

var _ Client = (*CachingClient)(nil)
