package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/Hilo-Hilo/Memories-AI-Hackathon-sub002/internal/config"
	"github.com/Hilo-Hilo/Memories-AI-Hackathon-sub002/internal/storage"
	"github.com/redis/go-redis/v9"
)

const (
	// DefaultRetentionDays applies when Open is given a non-positive retention.
	DefaultRetentionDays = 90

	keyPrefix = "attentiond"
)

// Store implements the storage.Store interface using Redis
type Store struct {
	client        *redis.Client
	intervalStore *intervalStore
}

// Open creates a new Redis-backed storage instance
func Open(cfg config.RedisConfig, retentionDays int) (*Store, error) {
	// Parse timeouts
	dialTimeout, err := time.ParseDuration(cfg.DialTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid dial_timeout: %w", err)
	}

	readTimeout, err := time.ParseDuration(cfg.ReadTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid read_timeout: %w", err)
	}

	writeTimeout, err := time.ParseDuration(cfg.WriteTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid write_timeout: %w", err)
	}

	// Determine address
	addr := cfg.Host
	if cfg.Port > 0 {
		addr = fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  dialTimeout,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	})

	// Ping to verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}

	return &Store{
		client: client,
		intervalStore: &intervalStore{
			client: client,
			ttl:    time.Duration(retentionDays) * 24 * time.Hour,
		},
	}, nil
}

// Client returns the underlying Redis client, shared with the event sink.
func (s *Store) Client() *redis.Client {
	return s.client
}

// Close closes the Redis connection
func (s *Store) Close() error {
	return s.client.Close()
}

// Intervals returns the IntervalStore implementation
func (s *Store) Intervals() storage.IntervalStore {
	return s.intervalStore
}

var _ storage.Store = (*Store)(nil)
