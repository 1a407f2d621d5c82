package service

import (
	"context"
	"strings"

	"github.com/spec-kit/queue-service/internal/domain"
	"github.com/spec-kit/queue-service/internal/events"
	"github.com/spec-kit/queue-service/internal/repository"
	apperrors "github.com/spec-kit/queue-service/pkg/util/errorutil"
)

// QueueService controls queue status.
type QueueService struct {
	*core
}

// NewQueueService constructs the service.
func NewQueueService(deps Dependencies) *QueueService {
	return &QueueService{core: newCore(deps)}
}

// Get returns a queue of the caller's tenant.
func (s *QueueService) Get(ctx context.Context, actor domain.Actor, queueID string) (*domain.Queue, error) {
	var queue *domain.Queue
	err := s.read(ctx, actor, func(ctx context.Context, repos repository.Repositories) error {
		found, err := repos.Queues.GetByID(ctx, actor.TenantID, queueID)
		if err != nil {
			return s.lookupErr(actor, "queue", queueID, err)
		}
		queue = found
		return nil
	})
	if err != nil {
		return nil, err
	}
	return queue, nil
}

// IsAcceptingTickets reports whether the queue admits new tickets.
func (s *QueueService) IsAcceptingTickets(ctx context.Context, actor domain.Actor, queueID string) (bool, error) {
	queue, err := s.Get(ctx, actor, queueID)
	if err != nil {
		return false, err
	}
	return queue.IsAcceptingTickets(), nil
}

// ChangeStatus applies a legal queue status transition. Waiting tickets are kept.
func (s *QueueService) ChangeStatus(ctx context.Context, actor domain.Actor, queueID string, to domain.QueueStatus, reason string) (*domain.Queue, error) {
	return s.changeStatus(ctx, actor, queueID, to, reason, "")
}

// Pause stops admission of an open queue.
func (s *QueueService) Pause(ctx context.Context, actor domain.Actor, queueID, reason string) (*domain.Queue, error) {
	return s.changeStatus(ctx, actor, queueID, domain.QueueStatusPaused, reason, domain.QueueStatusOpen)
}

// Resume reopens a paused queue.
func (s *QueueService) Resume(ctx context.Context, actor domain.Actor, queueID, reason string) (*domain.Queue, error) {
	return s.changeStatus(ctx, actor, queueID, domain.QueueStatusOpen, reason, domain.QueueStatusPaused)
}

// Close closes an open or paused queue.
func (s *QueueService) Close(ctx context.Context, actor domain.Actor, queueID, reason string) (*domain.Queue, error) {
	return s.changeStatus(ctx, actor, queueID, domain.QueueStatusClosed, reason, "")
}

// Open reopens a closed queue.
func (s *QueueService) Open(ctx context.Context, actor domain.Actor, queueID, reason string) (*domain.Queue, error) {
	return s.changeStatus(ctx, actor, queueID, domain.QueueStatusOpen, reason, domain.QueueStatusClosed)
}

func (s *QueueService) changeStatus(ctx context.Context, actor domain.Actor, queueID string, to domain.QueueStatus, reason string, requiredFrom domain.QueueStatus) (*domain.Queue, error) {
	reason = strings.TrimSpace(reason)
	var queue *domain.Queue
	err := s.run(ctx, "queue_status", actor, func(ctx context.Context, tx *scope) error {
		q, err := tx.Queues.GetForUpdate(ctx, actor.TenantID, queueID)
		if err != nil {
			return s.lookupErr(actor, "queue", queueID, err)
		}
		from := q.Status
		if requiredFrom != "" && from != requiredFrom {
			return apperrors.NewInvalidStateTransition("queue", string(from), "move to "+string(to))
		}
		if err := q.ChangeStatus(to, tx.actor, tx.now); err != nil {
			return err
		}
		if err := tx.Queues.Update(ctx, q); err != nil {
			return err
		}
		extra := map[string]any{}
		if reason != "" {
			extra["reason"] = reason
		}
		if err := tx.statusChange(ctx, domain.EntityQueue, q.ID, string(from), string(q.Status), extra); err != nil {
			return err
		}
		if err := tx.emit(ctx, events.New(events.EventQueueStatusChanged, q.TenantID, q.ID, q.Version, tx.now, events.QueueStatusSnapshot{
			ID:                 q.ID,
			UnitID:             q.UnitID,
			Code:               q.Code,
			OldStatus:          from,
			NewStatus:          q.Status,
			IsAcceptingTickets: q.IsAcceptingTickets(),
			Reason:             reason,
			ChangedBy:          tx.actor.ID(),
			Version:            q.Version,
		})); err != nil {
			return err
		}
		queue = q
		return nil
	})
	if err != nil {
		return nil, err
	}
	return queue, nil
}
