// Package sequence allocates the daily per-queue ticket sequence.
package sequence

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/spec-kit/queue-service/internal/repository"
)

// Allocator returns the next sequence for (tenant, queue, issue day), starting at 1.
// It is called inside the Enqueue unit of work with that unit's repositories.
type Allocator interface {
	Next(ctx context.Context, tx repository.Repositories, tenantID, queueID, day string) (int, error)
}

// StoreAllocator keeps counters in the store so allocation commits or rolls back
// with the ticket that consumed it.
type StoreAllocator struct{}

func NewStoreAllocator() StoreAllocator { return StoreAllocator{} }

func (StoreAllocator) Next(ctx context.Context, tx repository.Repositories, tenantID, queueID, day string) (int, error) {
	return tx.Sequences.Next(ctx, tenantID, queueID, day)
}

// RedisAllocator keeps counters in Redis. A rolled-back admission leaves a gap in
// the numbering; the ticket number uniqueness constraint still holds because INCR
// never hands out a value twice.
type RedisAllocator struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewRedisAllocator builds an allocator whose keys expire after ttl. Counters
// must outlive their issue day, so ttl should exceed 24h.
func NewRedisAllocator(client redis.Cmdable, ttl time.Duration) *RedisAllocator {
	if ttl <= 0 {
		ttl = 48 * time.Hour
	}
	return &RedisAllocator{client: client, ttl: ttl}
}

// Key returns the counter key for a queue and day.
func Key(tenantID, queueID, day string) string {
	return fmt.Sprintf("ticketseq:%s:%s:%s", tenantID, queueID, day)
}

func (a *RedisAllocator) Next(ctx context.Context, _ repository.Repositories, tenantID, queueID, day string) (int, error) {
	key := Key(tenantID, queueID, day)
	value, err := a.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: incr %s: %v", repository.ErrUnavailable, key, err)
	}
	if value == 1 {
		if err := a.client.Expire(ctx, key, a.ttl).Err(); err != nil {
			return 0, fmt.Errorf("%w: expire %s: %v", repository.ErrUnavailable, key, err)
		}
	}
	return int(value), nil
}
