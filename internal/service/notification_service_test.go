package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spec-kit/queue-service/internal/events"
)

func TestNotificationServiceLogsEveryEventType(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	dispatcher := events.NewInMemoryDispatcher()
	NewNotificationService(dispatcher, zap.New(core)).RegisterHandlers()

	at := time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)
	for _, eventType := range events.AllEventTypes {
		event := events.Event{ID: string(eventType), Type: eventType, TenantID: "t1", Timestamp: at}
		require.NoError(t, dispatcher.Publish(context.Background(), event))
	}

	entries := logs.FilterMessage("event delivered").All()
	require.Len(t, entries, len(events.AllEventTypes))
	assert.Equal(t, "t1", entries[0].ContextMap()["tenant_id"])
	assert.Equal(t, string(events.AllEventTypes[0]), entries[0].ContextMap()["event"])
}

func TestNotificationServiceWithoutDispatcher(t *testing.T) {
	assert.NotPanics(t, func() { NewNotificationService(nil, nil).RegisterHandlers() })
}
