package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/queue-service/internal/clock"
	"github.com/spec-kit/queue-service/internal/config"
	"github.com/spec-kit/queue-service/internal/domain"
	"github.com/spec-kit/queue-service/internal/events"
	"github.com/spec-kit/queue-service/internal/repository"
	"github.com/spec-kit/queue-service/internal/repository/memory"
)

type recordingPublisher struct {
	mu       sync.Mutex
	failures int
	calls    []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, event events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, event)
	if p.failures > 0 {
		p.failures--
		return errors.New("stream unavailable")
	}
	return nil
}

var start = time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)

func appendEvent(t *testing.T, store *memory.Store, event events.Event) {
	t.Helper()
	payload, err := json.Marshal(event)
	require.NoError(t, err)
	err = store.WithinTx(context.Background(), func(ctx context.Context, tx repository.Repositories) error {
		return tx.Outbox.Append(ctx, &domain.OutboxEvent{
			ID:            event.ID,
			TenantID:      event.TenantID,
			Type:          string(event.Type),
			Payload:       payload,
			CreatedAt:     event.Timestamp,
			NextAttemptAt: event.Timestamp,
		})
	})
	require.NoError(t, err)
}

func newRelay(store *memory.Store, pub events.Publisher, clk *clock.Fake, maxAttempts int) *Relay {
	return NewRelay(store, pub, clk, zap.NewNop(), nil, config.OutboxConfig{
		Schedule:       "@every 1s",
		BatchSize:      10,
		MaxAttempts:    maxAttempts,
		RetentionHours: 1,
		PurgeSchedule:  "@hourly",
	})
}

func ticketCreated(tenant, id string) events.Event {
	return events.New(events.EventTicketCreated, tenant, id, 1, start, map[string]any{"id": id, "number": "A001"})
}

func TestFlushDeliversPendingEvents(t *testing.T) {
	store := memory.NewStore()
	clk := clock.NewFake(start)
	pub := &recordingPublisher{}
	event := ticketCreated("t1", "ticket-1")
	appendEvent(t, store, event)

	result, err := newRelay(store, pub, clk, 5).Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Delivered)
	require.Len(t, pub.calls, 1)
	assert.Equal(t, event.ID, pub.calls[0].ID)
	assert.Equal(t, events.EventTicketCreated, pub.calls[0].Type)

	pending, err := store.Repos().Outbox.CountPending(context.Background())
	require.NoError(t, err)
	assert.Zero(t, pending)
}

func TestFailedDeliveryIsRetriedWithSameID(t *testing.T) {
	store := memory.NewStore()
	clk := clock.NewFake(start)
	pub := &recordingPublisher{failures: 1}
	event := ticketCreated("t1", "ticket-1")
	appendEvent(t, store, event)
	relay := newRelay(store, pub, clk, 5)

	result, err := relay.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)

	// not due yet
	result, err = relay.Flush(context.Background())
	require.NoError(t, err)
	assert.Zero(t, result.Delivered+result.Failed)

	clk.Advance(time.Second)
	result, err = relay.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Delivered)

	require.Len(t, pub.calls, 2)
	assert.Equal(t, pub.calls[0].ID, pub.calls[1].ID)
	first, err := json.Marshal(pub.calls[0])
	require.NoError(t, err)
	second, err := json.Marshal(pub.calls[1])
	require.NoError(t, err)
	assert.JSONEq(t, string(first), string(second))
}

func TestEventIsParkedAfterMaxAttempts(t *testing.T) {
	store := memory.NewStore()
	clk := clock.NewFake(start)
	pub := &recordingPublisher{failures: 100}
	appendEvent(t, store, ticketCreated("t1", "ticket-1"))
	relay := newRelay(store, pub, clk, 2)

	_, err := relay.Flush(context.Background())
	require.NoError(t, err)
	clk.Advance(time.Minute)
	result, err := relay.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Parked)

	clk.Advance(24 * time.Hour)
	result, err = relay.Flush(context.Background())
	require.NoError(t, err)
	assert.Zero(t, result.Delivered+result.Failed)
	assert.Len(t, pub.calls, 2)

	pending, err := store.Repos().Outbox.CountPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, pending)
}

func TestPurgeRemovesDeliveredEventsPastRetention(t *testing.T) {
	store := memory.NewStore()
	clk := clock.NewFake(start)
	pub := &recordingPublisher{}
	appendEvent(t, store, ticketCreated("t1", "ticket-1"))
	relay := newRelay(store, pub, clk, 5)

	_, err := relay.Flush(context.Background())
	require.NoError(t, err)

	purged, err := relay.Purge(context.Background())
	require.NoError(t, err)
	assert.Zero(t, purged)

	clk.Advance(2 * time.Hour)
	purged, err = relay.Purge(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, purged)
}

func TestRetryDelayIsCapped(t *testing.T) {
	assert.Equal(t, time.Second, retryDelay(1))
	assert.Equal(t, 4*time.Second, retryDelay(3))
	assert.Equal(t, maxRetryDelay, retryDelay(30))
}

func TestStartRejectsBadSchedule(t *testing.T) {
	relay := NewRelay(memory.NewStore(), &recordingPublisher{}, clock.NewFake(start), zap.NewNop(), nil, config.OutboxConfig{Schedule: "not a schedule"})
	err := relay.Start(context.Background())
	require.Error(t, err)
}
