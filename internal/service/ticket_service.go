package service

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/spec-kit/queue-service/internal/domain"
	"github.com/spec-kit/queue-service/internal/events"
	"github.com/spec-kit/queue-service/internal/repository"
	apperrors "github.com/spec-kit/queue-service/pkg/util/errorutil"
)

// TicketService coordinates ticket admission and the ticket lifecycle.
type TicketService struct {
	*core
}

// EnqueueInput describes ticket admission payload.
type EnqueueInput struct {
	QueueID   string
	ServiceID string
	Priority  string
	Customer  domain.CustomerInfo
}

// StartInput binds an agent, and optionally a resource, to a called ticket.
type StartInput struct {
	UserID     string
	ResourceID *string
}

// NewTicketService constructs the service.
func NewTicketService(deps Dependencies) *TicketService {
	return &TicketService{core: newCore(deps)}
}

// Enqueue admits a new ticket. Capacity, queue status and number allocation are
// checked and applied in the same unit of work that stores the ticket.
func (s *TicketService) Enqueue(ctx context.Context, actor domain.Actor, input EnqueueInput) (*domain.Ticket, error) {
	priority, err := domain.ParsePriority(input.Priority)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(input.QueueID) == "" || strings.TrimSpace(input.ServiceID) == "" {
		return nil, apperrors.NewValidationError("queue_id and service_id are required", nil)
	}

	var ticket *domain.Ticket
	err = s.run(ctx, "enqueue", actor, func(ctx context.Context, tx *scope) error {
		queue, err := tx.Queues.GetForUpdate(ctx, actor.TenantID, input.QueueID)
		if err != nil {
			return s.lookupErr(actor, "queue", input.QueueID, err)
		}
		svc, err := tx.Services.GetByID(ctx, actor.TenantID, input.ServiceID)
		if err != nil {
			return s.lookupErr(actor, "service", input.ServiceID, err)
		}
		if svc.IsDeleted() {
			return apperrors.NewNotFound("service", map[string]any{"id": input.ServiceID})
		}
		if svc.UnitID != queue.UnitID {
			return apperrors.NewValidationError("service does not belong to the queue's unit", map[string]any{
				"queue_id":   queue.ID,
				"service_id": svc.ID,
			})
		}
		if !queue.IsAcceptingTickets() {
			return apperrors.NewQueueClosed(queue.ID, string(queue.Status))
		}
		waiting, err := tx.Tickets.CountWaiting(ctx, actor.TenantID, queue.ID)
		if err != nil {
			return err
		}
		if waiting >= queue.MaxCapacity {
			return apperrors.NewCapacityExceeded(queue.ID, queue.MaxCapacity)
		}

		unit, err := tx.Units.GetByID(ctx, actor.TenantID, queue.UnitID)
		if err != nil {
			return s.lookupErr(actor, "unit", queue.UnitID, err)
		}
		day := domain.IssueDay(tx.now, unit.Location(s.location))
		seq, err := s.sequencer.Next(ctx, tx.Repositories, actor.TenantID, queue.ID, day)
		if err != nil {
			return err
		}

		t := &domain.Ticket{
			ID:        uuid.NewString(),
			TenantID:  actor.TenantID,
			QueueID:   queue.ID,
			ServiceID: svc.ID,
			UnitID:    queue.UnitID,
			Number:    domain.FormatTicketNumber(queue.Code, seq),
			IssueDay:  day,
			Sequence:  seq,
			Status:    domain.TicketStatusWaiting,
			Priority:  priority,
			IssuedAt:  tx.now,
			Customer:  trimCustomer(input.Customer),
			Audit:     domain.NewAudit(actor, tx.now),
		}
		if err := tx.Tickets.Create(ctx, t); err != nil {
			return err
		}
		if err := tx.created(ctx, domain.EntityTicket, t.ID, map[string]any{
			"status":   t.Status,
			"number":   t.Number,
			"priority": t.Priority,
		}); err != nil {
			return err
		}
		if err := tx.emit(ctx, ticketEvent(events.EventTicketCreated, t, tx)); err != nil {
			return err
		}
		ticket = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ticket, nil
}

// NextCandidate returns the ticket that would be called next without changing it.
func (s *TicketService) NextCandidate(ctx context.Context, actor domain.Actor, queueID string) (*domain.Ticket, error) {
	var candidate *domain.Ticket
	err := s.read(ctx, actor, func(ctx context.Context, repos repository.Repositories) error {
		if _, err := repos.Queues.GetByID(ctx, actor.TenantID, queueID); err != nil {
			return s.lookupErr(actor, "queue", queueID, err)
		}
		waiting, err := repos.Tickets.ListWaiting(ctx, actor.TenantID, queueID)
		if err != nil {
			return err
		}
		if len(waiting) == 0 {
			return apperrors.NewNotFound("waiting ticket", map[string]any{"queue_id": queueID})
		}
		candidate = &waiting[0]
		return nil
	})
	if err != nil {
		return nil, err
	}
	return candidate, nil
}

// CallNext calls the next candidate of a queue in a single unit of work.
func (s *TicketService) CallNext(ctx context.Context, actor domain.Actor, queueID string) (*domain.Ticket, error) {
	var called *domain.Ticket
	err := s.run(ctx, "call_next", actor, func(ctx context.Context, tx *scope) error {
		if _, err := tx.Queues.GetForUpdate(ctx, actor.TenantID, queueID); err != nil {
			return s.lookupErr(actor, "queue", queueID, err)
		}
		waiting, err := tx.Tickets.ListWaiting(ctx, actor.TenantID, queueID)
		if err != nil {
			return err
		}
		if len(waiting) == 0 {
			return apperrors.NewNotFound("waiting ticket", map[string]any{"queue_id": queueID})
		}
		ticket := waiting[0]
		if err := s.callTicket(ctx, tx, &ticket); err != nil {
			return err
		}
		called = &ticket
		return nil
	})
	if err != nil {
		return nil, err
	}
	return called, nil
}

// Get returns a ticket of the caller's tenant.
func (s *TicketService) Get(ctx context.Context, actor domain.Actor, ticketID string) (*domain.Ticket, error) {
	var ticket *domain.Ticket
	err := s.read(ctx, actor, func(ctx context.Context, repos repository.Repositories) error {
		t, err := repos.Tickets.GetByID(ctx, actor.TenantID, ticketID)
		if err != nil {
			return s.lookupErr(actor, "ticket", ticketID, err)
		}
		ticket = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ticket, nil
}

// ListWaiting returns the waiting tickets of a queue in call order.
func (s *TicketService) ListWaiting(ctx context.Context, actor domain.Actor, queueID string) ([]domain.Ticket, error) {
	var tickets []domain.Ticket
	err := s.read(ctx, actor, func(ctx context.Context, repos repository.Repositories) error {
		if _, err := repos.Queues.GetByID(ctx, actor.TenantID, queueID); err != nil {
			return s.lookupErr(actor, "queue", queueID, err)
		}
		list, err := repos.Tickets.ListWaiting(ctx, actor.TenantID, queueID)
		tickets = list
		return err
	})
	if err != nil {
		return nil, err
	}
	return tickets, nil
}

// History returns the recorded transitions of a ticket.
func (s *TicketService) History(ctx context.Context, actor domain.Actor, ticketID string) ([]domain.HistoryEntry, error) {
	var entries []domain.HistoryEntry
	err := s.read(ctx, actor, func(ctx context.Context, repos repository.Repositories) error {
		if _, err := repos.Tickets.GetByID(ctx, actor.TenantID, ticketID); err != nil {
			return s.lookupErr(actor, "ticket", ticketID, err)
		}
		list, err := repos.History.ListByEntity(ctx, actor.TenantID, domain.EntityTicket, ticketID)
		entries = list
		return err
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Call moves a waiting ticket to CALLED.
func (s *TicketService) Call(ctx context.Context, actor domain.Actor, ticketID string) (*domain.Ticket, error) {
	return s.transition(ctx, actor, "call", ticketID, func(ctx context.Context, tx *scope, t *domain.Ticket) error {
		return s.callTicket(ctx, tx, t)
	})
}

// Start moves a called ticket to IN_PROGRESS and opens its session.
func (s *TicketService) Start(ctx context.Context, actor domain.Actor, ticketID string, input StartInput) (*domain.Ticket, *domain.Session, error) {
	if strings.TrimSpace(input.UserID) == "" {
		return nil, nil, apperrors.NewValidationError("user_id is required", nil)
	}
	var session *domain.Session
	ticket, err := s.transition(ctx, actor, "start", ticketID, func(ctx context.Context, tx *scope, t *domain.Ticket) error {
		from := t.Status
		if err := t.Start(tx.actor, tx.now); err != nil {
			return err
		}
		if err := s.saveTicket(ctx, tx, t, from, events.EventTicketStarted); err != nil {
			return err
		}
		opened, err := s.startSession(ctx, tx, t, input)
		if err != nil {
			return err
		}
		session = opened
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return ticket, session, nil
}

// Complete finishes an in-progress ticket together with its session.
func (s *TicketService) Complete(ctx context.Context, actor domain.Actor, ticketID, notes string) (*domain.Ticket, error) {
	return s.transition(ctx, actor, "complete", ticketID, func(ctx context.Context, tx *scope, t *domain.Ticket) error {
		session, err := s.openSession(ctx, tx, t)
		if err != nil {
			return err
		}
		return s.completeWork(ctx, tx, t, session, notes)
	})
}

// Cancel terminates a non-terminal ticket and its open session, if any.
func (s *TicketService) Cancel(ctx context.Context, actor domain.Actor, ticketID, reason string) (*domain.Ticket, error) {
	return s.transition(ctx, actor, "cancel", ticketID, func(ctx context.Context, tx *scope, t *domain.Ticket) error {
		session, err := s.openSession(ctx, tx, t)
		if err != nil {
			return err
		}
		return s.cancelWork(ctx, tx, t, session, reason)
	})
}

// MarkNoShow records that a called customer did not appear.
func (s *TicketService) MarkNoShow(ctx context.Context, actor domain.Actor, ticketID string) (*domain.Ticket, error) {
	return s.transition(ctx, actor, "no_show", ticketID, func(ctx context.Context, tx *scope, t *domain.Ticket) error {
		from := t.Status
		if err := t.MarkNoShow(tx.actor, tx.now); err != nil {
			return err
		}
		return s.saveTicket(ctx, tx, t, from, events.EventTicketNoShow)
	})
}

// transition loads and locks a ticket and applies fn in one unit of work.
func (s *TicketService) transition(ctx context.Context, actor domain.Actor, operation, ticketID string, fn func(context.Context, *scope, *domain.Ticket) error) (*domain.Ticket, error) {
	var ticket *domain.Ticket
	err := s.run(ctx, operation, actor, func(ctx context.Context, tx *scope) error {
		t, err := tx.Tickets.GetForUpdate(ctx, actor.TenantID, ticketID)
		if err != nil {
			return s.lookupErr(actor, "ticket", ticketID, err)
		}
		if err := fn(ctx, tx, t); err != nil {
			return err
		}
		ticket = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ticket, nil
}

func (s *TicketService) callTicket(ctx context.Context, tx *scope, t *domain.Ticket) error {
	from := t.Status
	if err := t.Call(tx.actor, tx.now); err != nil {
		return err
	}
	return s.saveTicket(ctx, tx, t, from, events.EventTicketCalled)
}

func ticketEvent(eventType events.EventType, t *domain.Ticket, tx *scope) events.Event {
	return events.New(eventType, t.TenantID, t.ID, t.Version, tx.now, events.SnapshotTicket(t))
}

func trimCustomer(c domain.CustomerInfo) domain.CustomerInfo {
	return domain.CustomerInfo{
		Name:      strings.TrimSpace(c.Name),
		Phone:     strings.TrimSpace(c.Phone),
		Email:     strings.TrimSpace(c.Email),
		Reference: strings.TrimSpace(c.Reference),
	}
}
