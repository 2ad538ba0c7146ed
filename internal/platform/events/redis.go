package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type streamClient interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// RedisPublisher appends events to a Redis stream, capped near MaxLen. The
// client is shared with other components and is not closed by Close.
type RedisPublisher struct {
	client  streamClient
	stream  string
	maxLen  int64
	timeout time.Duration
}

func NewRedisPublisher(client *redis.Client, stream string, maxLen int64) *RedisPublisher {
	return newRedisPublisher(client, stream, maxLen)
}

func newRedisPublisher(client streamClient, stream string, maxLen int64) *RedisPublisher {
	if stream == "" {
		stream = "symptra:requests"
	}
	return &RedisPublisher{client: client, stream: stream, maxLen: maxLen, timeout: 2 * time.Second}
}

func (p *RedisPublisher) Publish(ctx context.Context, evt Event) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	args := &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]any{"type": evt.Type, "subject": evt.Subject, "data": string(body)},
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}
	if err := p.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("xadd %s: %w", p.stream, err)
	}
	return nil
}

func (p *RedisPublisher) Close() error { return nil }
