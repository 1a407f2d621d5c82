package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/queue-service/internal/events"
)

// NotificationService is the in-process consumer of relayed events. It logs every
// delivered envelope so operators can follow transitions per tenant.
type NotificationService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// RegisterHandlers subscribes to every event type the core emits.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	for _, eventType := range events.AllEventTypes {
		n.dispatcher.Subscribe(eventType, n.handle)
	}
}

func (n *NotificationService) handle(_ context.Context, event events.Event) error {
	n.logger.Info("event delivered",
		zap.String("event", string(event.Type)),
		zap.String("event_id", event.ID),
		zap.String("tenant_id", event.TenantID),
		zap.Time("timestamp", event.Timestamp))
	return nil
}
