package worker

import (
	"context"

	"github.com/spec-kit/queue-service/internal/outbox"
	"github.com/spec-kit/queue-service/internal/service"
)

// StartNotificationWorker registers the in-process event handlers and starts the
// outbox relay that feeds them. The relay stops when ctx is done.
func StartNotificationWorker(ctx context.Context, notificationService *service.NotificationService, relay *outbox.Relay) error {
	if notificationService != nil {
		notificationService.RegisterHandlers()
	}
	if relay == nil {
		return nil
	}
	return relay.Start(ctx)
}
