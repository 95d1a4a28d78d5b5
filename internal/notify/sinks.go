package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ErrSinkFull is returned by ChannelSink when its consumer lags behind.
var ErrSinkFull = errors.New("notify: sink queue full")

// Sink receives notification events. Sinks are called from the single
// consumer goroutine and must not block for long.
type Sink interface {
	Name() string
	Notify(ctx context.Context, event Event) error
	Close() error
}

// ChannelSink is the bounded UI queue. Events are never blocked on; when the
// queue is full the event is dropped.
type ChannelSink struct {
	mu     sync.Mutex
	events chan Event
	closed bool
}

// NewChannelSink creates a UI queue of the given size.
func NewChannelSink(size int) *ChannelSink {
	if size <= 0 {
		size = 32
	}
	return &ChannelSink{events: make(chan Event, size)}
}

// Name implements Sink
func (s *ChannelSink) Name() string { return "ui" }

// Events returns the receive side of the queue. It is closed by Close.
func (s *ChannelSink) Events() <-chan Event {
	return s.events
}

// Notify implements Sink
func (s *ChannelSink) Notify(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("notify: ui queue closed")
	}
	select {
	case s.events <- event:
		return nil
	default:
		return ErrSinkFull
	}
}

// Close implements Sink
func (s *ChannelSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		s.closed = true
		close(s.events)
	}
	return nil
}

// LogSink writes events to the log.
type LogSink struct {
	logger zerolog.Logger
}

// NewLogSink creates a log sink.
func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger.With().Str("component", "notify").Str("sink", "log").Logger()}
}

// Name implements Sink
func (s *LogSink) Name() string { return "log" }

// Notify implements Sink
func (s *LogSink) Notify(_ context.Context, event Event) error {
	entry := s.logger.Info()
	if event.Kind == KindEscalation || event.Kind == KindEngineStalled {
		entry = s.logger.Warn()
	}

	entry = entry.
		Str("event_id", event.ID).
		Str("kind", string(event.Kind)).
		Time("at", event.At)
	if event.Interval != nil {
		entry = entry.
			Str("interval_id", event.Interval.ID).
			Str("type", event.Interval.Type).
			Float64("confidence", event.Interval.Confidence).
			Interface("evidence", event.Interval.Evidence)
	}
	if event.Suggested != nil {
		entry = entry.
			Str("action", event.Suggested.Action).
			Str("target", event.Suggested.Target)
	}
	if event.SnapshotKind != "" {
		entry = entry.Str("snapshot_kind", event.SnapshotKind)
	}
	entry.Msg(event.Message)
	return nil
}

// Close implements Sink
func (s *LogSink) Close() error { return nil }

// RedisSink publishes events as JSON on a Redis Pub/Sub channel.
type RedisSink struct {
	client  *redis.Client
	channel string
	timeout time.Duration
}

// NewRedisSink creates a sink publishing on channel. The client is shared and
// not closed by the sink.
func NewRedisSink(client *redis.Client, channel string) *RedisSink {
	return &RedisSink{client: client, channel: channel, timeout: 2 * time.Second}
}

// Name implements Sink
func (s *RedisSink) Name() string { return "redis" }

// Notify implements Sink
func (s *RedisSink) Notify(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.client.Publish(ctx, s.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish event to %s: %w", s.channel, err)
	}
	return nil
}

// Close implements Sink
func (s *RedisSink) Close() error { return nil }

// Publisher is the part of *nats.Conn used by NATSSink.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSSink publishes events on "<prefix>.<kind>" subjects.
type NATSSink struct {
	conn   Publisher
	prefix string
	close  func()
}

// NewNATSSink connects to a NATS server.
func NewNATSSink(url, prefix string, logger zerolog.Logger) (*NATSSink, error) {
	logger = logger.With().Str("component", "notify").Str("sink", "nats").Logger()

	nc, err := nats.Connect(url,
		nats.Name("attentiond"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn().Err(err).Msg("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info().Str("url", c.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	sink := NewNATSSinkWithPublisher(nc, prefix)
	sink.close = nc.Close
	return sink, nil
}

// NewNATSSinkWithPublisher creates a sink over an existing connection.
func NewNATSSinkWithPublisher(conn Publisher, prefix string) *NATSSink {
	if prefix == "" {
		prefix = "attentiond"
	}
	return &NATSSink{conn: conn, prefix: prefix}
}

// Name implements Sink
func (s *NATSSink) Name() string { return "nats" }

// Subject returns the subject events of kind are published on.
func (s *NATSSink) Subject(kind Kind) string {
	return fmt.Sprintf("%s.%s", s.prefix, kind)
}

// Notify implements Sink
func (s *NATSSink) Notify(_ context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	subject := s.Subject(event.Kind)
	if err := s.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish event to subject %s: %w", subject, err)
	}
	return nil
}

// Close implements Sink
func (s *NATSSink) Close() error {
	if s.close != nil {
		s.close()
	}
	return nil
}

var (
	_ Sink = (*ChannelSink)(nil)
	_ Sink = (*LogSink)(nil)
	_ Sink = (*RedisSink)(nil)
	_ Sink = (*NATSSink)(nil)
)
