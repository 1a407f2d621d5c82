package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisPublisher appends events to a Redis stream read by the webhook delivery
// subsystem, and broadcasts them on a per-tenant channel for real-time push.
type RedisPublisher struct {
	client        redis.Cmdable
	stream        string
	channelPrefix string
	maxLen        int64
}

// NewRedisPublisher builds a publisher. An empty channelPrefix disables broadcasting.
func NewRedisPublisher(client redis.Cmdable, stream, channelPrefix string, maxLen int64) *RedisPublisher {
	return &RedisPublisher{client: client, stream: stream, channelPrefix: channelPrefix, maxLen: maxLen}
}

// Publish writes the envelope to the stream, keyed by event id so consumers can
// deduplicate redeliveries.
func (p *RedisPublisher) Publish(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event %s: %w", event.ID, err)
	}
	args := &redis.XAddArgs{
		Stream: p.stream,
		Values: []interface{}{
			"id", event.ID,
			"event", string(event.Type),
			"tenant_id", event.TenantID,
			"payload", string(body),
		},
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}
	if err := p.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("xadd %s: %w", p.stream, err)
	}
	if p.channelPrefix == "" {
		return nil
	}
	if err := p.client.Publish(ctx, p.Channel(event.TenantID), body).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", p.Channel(event.TenantID), err)
	}
	return nil
}

// Channel returns the broadcast channel for a tenant.
func (p *RedisPublisher) Channel(tenantID string) string {
	return fmt.Sprintf("%s:%s", p.channelPrefix, tenantID)
}
