// Package relay supports mirroring chat messages into an optional external
// side channel. Sinks are strictly best-effort: the hub invokes them off
// the event loop and chat behavior never depends on one being reachable.
package relay

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// MessageSink receives the JSON payload of every appended chat message.
// Implementations must tolerate being called concurrently and should treat
// the context deadline as the entire time budget for the call.
type MessageSink interface {
	PublishMessage(ctx context.Context, payload []byte) error
	Close() error
}

// RedisSink mirrors chat messages into a capped Redis list so external
// tooling (dashboards, the station's now-playing overlay) can read the
// recent chat without touching the relay.
type RedisSink struct {
	client *redis.Client
	key    string
	limit  int64
}

// NewRedisSink connects to the Redis instance at url and verifies it with a
// ping before returning. The list under key is trimmed to limit entries on
// every publish, mirroring the in-memory history cap.
func NewRedisSink(url, key string, limit int) (*RedisSink, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	return &RedisSink{client: client, key: key, limit: int64(limit)}, nil
}

// PublishMessage appends the payload to the list and trims it to the cap.
func (s *RedisSink) PublishMessage(ctx context.Context, payload []byte) error {
	pipe := s.client.Pipeline()
	pipe.RPush(ctx, s.key, payload)
	pipe.LTrim(ctx, s.key, -s.limit, -1)
	_, err := pipe.Exec(ctx)
	return err
}

// Close releases the underlying Redis connection pool.
func (s *RedisSink) Close() error {
	return s.client.Close()
}
