package service

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/spec-kit/queue-service/internal/domain"
	"github.com/spec-kit/queue-service/internal/events"
	"github.com/spec-kit/queue-service/internal/repository"
	apperrors "github.com/spec-kit/queue-service/pkg/util/errorutil"
)

// SessionService manages agent sessions after they were opened by ticket Start.
type SessionService struct {
	*core
}

// NewSessionService constructs the service.
func NewSessionService(deps Dependencies) *SessionService {
	return &SessionService{core: newCore(deps)}
}

// Get returns a session of the caller's tenant.
func (s *SessionService) Get(ctx context.Context, actor domain.Actor, sessionID string) (*domain.Session, error) {
	var session *domain.Session
	err := s.read(ctx, actor, func(ctx context.Context, repos repository.Repositories) error {
		found, err := repos.Sessions.GetByID(ctx, actor.TenantID, sessionID)
		if err != nil {
			return s.lookupErr(actor, "session", sessionID, err)
		}
		session = found
		return nil
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

// ActiveForUser returns the open session of an agent.
func (s *SessionService) ActiveForUser(ctx context.Context, actor domain.Actor, userID string) (*domain.Session, error) {
	var session *domain.Session
	err := s.read(ctx, actor, func(ctx context.Context, repos repository.Repositories) error {
		found, err := repos.Sessions.GetOpenByUser(ctx, actor.TenantID, userID)
		if err != nil {
			return s.lookupErr(actor, "active session", userID, err)
		}
		session = found
		return nil
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

// Pause suspends an in-progress session.
func (s *SessionService) Pause(ctx context.Context, actor domain.Actor, sessionID string) (*domain.Session, error) {
	return s.transition(ctx, actor, "pause", sessionID, func(ctx context.Context, tx *scope, session *domain.Session) error {
		from := session.Status
		if err := session.Pause(tx.actor, tx.now); err != nil {
			return err
		}
		return s.saveSession(ctx, tx, session, from, events.EventSessionPaused)
	})
}

// Resume continues a paused session.
func (s *SessionService) Resume(ctx context.Context, actor domain.Actor, sessionID string) (*domain.Session, error) {
	return s.transition(ctx, actor, "resume", sessionID, func(ctx context.Context, tx *scope, session *domain.Session) error {
		from := session.Status
		if err := session.Resume(tx.actor, tx.now); err != nil {
			return err
		}
		return s.saveSession(ctx, tx, session, from, events.EventSessionResumed)
	})
}

// Complete ends the session and completes its ticket.
func (s *SessionService) Complete(ctx context.Context, actor domain.Actor, sessionID, notes string) (*domain.Session, error) {
	return s.transition(ctx, actor, "complete_session", sessionID, func(ctx context.Context, tx *scope, session *domain.Session) error {
		ticket, err := s.sessionTicket(ctx, tx, session)
		if err != nil {
			return err
		}
		return s.completeWork(ctx, tx, ticket, session, notes)
	})
}

// Cancel abandons the session and cancels its ticket.
func (s *SessionService) Cancel(ctx context.Context, actor domain.Actor, sessionID, reason string) (*domain.Session, error) {
	return s.transition(ctx, actor, "cancel_session", sessionID, func(ctx context.Context, tx *scope, session *domain.Session) error {
		ticket, err := s.sessionTicket(ctx, tx, session)
		if err != nil {
			return err
		}
		return s.cancelWork(ctx, tx, ticket, session, reason)
	})
}

func (s *SessionService) transition(ctx context.Context, actor domain.Actor, operation, sessionID string, fn func(context.Context, *scope, *domain.Session) error) (*domain.Session, error) {
	var session *domain.Session
	err := s.run(ctx, operation, actor, func(ctx context.Context, tx *scope) error {
		found, err := tx.Sessions.GetForUpdate(ctx, actor.TenantID, sessionID)
		if err != nil {
			return s.lookupErr(actor, "session", sessionID, err)
		}
		if err := fn(ctx, tx, found); err != nil {
			return err
		}
		session = found
		return nil
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

func (c *core) sessionTicket(ctx context.Context, tx *scope, session *domain.Session) (*domain.Ticket, error) {
	ticket, err := tx.Tickets.GetForUpdate(ctx, session.TenantID, session.TicketID)
	if err != nil {
		return nil, c.lookupErr(tx.actor, "ticket", session.TicketID, err)
	}
	return ticket, nil
}

// openSession returns the non-terminal session of a ticket, or nil.
func (c *core) openSession(ctx context.Context, tx *scope, ticket *domain.Ticket) (*domain.Session, error) {
	session, err := tx.Sessions.GetOpenByTicket(ctx, ticket.TenantID, ticket.ID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return session, nil
}

// startSession opens the session of a ticket that was just started. It holds
// the one-open-session-per-ticket and per-user rules, occupies the resource
// and marks the agent busy.
func (c *core) startSession(ctx context.Context, tx *scope, ticket *domain.Ticket, input StartInput) (*domain.Session, error) {
	tenantID := ticket.TenantID
	if existing, err := tx.Sessions.GetOpenByTicket(ctx, tenantID, ticket.ID); err == nil {
		return nil, apperrors.NewConcurrencyConflict("ticket already has an open session", map[string]any{
			"ticket_id":  ticket.ID,
			"session_id": existing.ID,
		})
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	agent, err := tx.Agents.GetForUpdate(ctx, tenantID, input.UserID)
	if err != nil {
		return nil, c.lookupErr(tx.actor, "agent", input.UserID, err)
	}
	if existing, err := tx.Sessions.GetOpenByUser(ctx, tenantID, agent.ID); err == nil {
		return nil, apperrors.NewConcurrencyConflict("agent already has an open session", map[string]any{
			"user_id":    agent.ID,
			"session_id": existing.ID,
		})
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	if !agent.CanTakeSession() {
		return nil, apperrors.NewInvalidStateTransition("agent", string(agent.Status), "start session")
	}

	svc, err := tx.Services.GetByID(ctx, tenantID, ticket.ServiceID)
	if err != nil {
		return nil, c.lookupErr(tx.actor, "service", ticket.ServiceID, err)
	}
	settings := c.decodeSettings(svc)
	if settings.RequiresResource && input.ResourceID == nil {
		return nil, apperrors.NewValidationError("service requires a resource", map[string]any{"service_id": svc.ID})
	}

	var resourceID *string
	if input.ResourceID != nil {
		resource, err := tx.Resources.GetForUpdate(ctx, tenantID, *input.ResourceID)
		if err != nil {
			return nil, c.lookupErr(tx.actor, "resource", *input.ResourceID, err)
		}
		if resource.UnitID != ticket.UnitID || resource.IsDeleted() {
			return nil, apperrors.NewValidationError("resource is not part of the ticket's unit", map[string]any{
				"resource_id": resource.ID,
				"unit_id":     ticket.UnitID,
			})
		}
		from := resource.Status
		if err := resource.Occupy(); err != nil {
			return nil, err
		}
		resource.Touch(tx.actor, tx.now)
		if err := tx.Resources.Update(ctx, resource); err != nil {
			return nil, err
		}
		if err := tx.statusChange(ctx, domain.EntityResource, resource.ID, string(from), string(resource.Status), map[string]any{"ticket_id": ticket.ID}); err != nil {
			return nil, err
		}
		id := resource.ID
		resourceID = &id
	}

	if err := c.setAgentStatus(ctx, tx, agent, domain.AgentStatusBusy); err != nil {
		return nil, err
	}

	session := &domain.Session{
		ID:         uuid.NewString(),
		TenantID:   tenantID,
		TicketID:   ticket.ID,
		UserID:     agent.ID,
		ResourceID: resourceID,
		QueueID:    ticket.QueueID,
		ServiceID:  ticket.ServiceID,
		UnitID:     ticket.UnitID,
		Status:     domain.SessionStatusInProgress,
		StartedAt:  tx.now,
		Audit:      domain.NewAudit(tx.actor, tx.now),
	}
	if err := tx.Sessions.Create(ctx, session); err != nil {
		return nil, err
	}
	if err := tx.created(ctx, domain.EntitySession, session.ID, map[string]any{
		"status":    session.Status,
		"ticket_id": ticket.ID,
		"user_id":   agent.ID,
	}); err != nil {
		return nil, err
	}
	if err := tx.emit(ctx, sessionEvent(events.EventSessionStarted, session, tx)); err != nil {
		return nil, err
	}
	return session, nil
}

// completeWork completes the ticket and its session together.
func (c *core) completeWork(ctx context.Context, tx *scope, ticket *domain.Ticket, session *domain.Session, notes string) error {
	from := ticket.Status
	if err := ticket.Complete(tx.actor, tx.now, notes); err != nil {
		return err
	}
	if err := c.saveTicket(ctx, tx, ticket, from, events.EventTicketCompleted); err != nil {
		return err
	}
	if session == nil {
		return nil
	}
	sessionFrom := session.Status
	if err := session.Complete(tx.actor, tx.now, notes); err != nil {
		return err
	}
	if err := c.releaseSession(ctx, tx, session); err != nil {
		return err
	}
	return c.saveSession(ctx, tx, session, sessionFrom, events.EventSessionCompleted)
}

// cancelWork cancels the ticket and, when present, its open session.
func (c *core) cancelWork(ctx context.Context, tx *scope, ticket *domain.Ticket, session *domain.Session, reason string) error {
	from := ticket.Status
	if err := ticket.Cancel(tx.actor, tx.now, reason); err != nil {
		return err
	}
	if err := c.saveTicket(ctx, tx, ticket, from, events.EventTicketCancelled); err != nil {
		return err
	}
	if session == nil {
		return nil
	}
	sessionFrom := session.Status
	if err := session.Cancel(tx.actor, tx.now, reason); err != nil {
		return err
	}
	if err := c.releaseSession(ctx, tx, session); err != nil {
		return err
	}
	return c.saveSession(ctx, tx, session, sessionFrom, events.EventSessionCancelled)
}

// releaseSession frees the resource and the agent bound to a finished session.
func (c *core) releaseSession(ctx context.Context, tx *scope, session *domain.Session) error {
	if session.ResourceID != nil {
		resource, err := tx.Resources.GetForUpdate(ctx, session.TenantID, *session.ResourceID)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return err
		}
		if resource != nil && resource.Status == domain.ResourceStatusOccupied {
			from := resource.Status
			resource.Release()
			resource.Touch(tx.actor, tx.now)
			if err := tx.Resources.Update(ctx, resource); err != nil {
				return err
			}
			if err := tx.statusChange(ctx, domain.EntityResource, resource.ID, string(from), string(resource.Status), map[string]any{"session_id": session.ID}); err != nil {
				return err
			}
		}
	}

	agent, err := tx.Agents.GetForUpdate(ctx, session.TenantID, session.UserID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if agent.Status != domain.AgentStatusBusy {
		return nil
	}
	return c.setAgentStatus(ctx, tx, agent, domain.AgentStatusAvailable)
}

func (c *core) setAgentStatus(ctx context.Context, tx *scope, agent *domain.Agent, to domain.AgentStatus) error {
	if agent.Status == to {
		return nil
	}
	from := agent.Status
	agent.Status = to
	agent.Touch(tx.actor, tx.now)
	if err := tx.Agents.Update(ctx, agent); err != nil {
		return err
	}
	return tx.statusChange(ctx, domain.EntityAgent, agent.ID, string(from), string(to), nil)
}

func (c *core) saveTicket(ctx context.Context, tx *scope, ticket *domain.Ticket, from domain.TicketStatus, eventType events.EventType) error {
	if err := tx.Tickets.Update(ctx, ticket); err != nil {
		return err
	}
	if err := tx.statusChange(ctx, domain.EntityTicket, ticket.ID, string(from), string(ticket.Status), nil); err != nil {
		return err
	}
	return tx.emit(ctx, ticketEvent(eventType, ticket, tx))
}

func (c *core) saveSession(ctx context.Context, tx *scope, session *domain.Session, from domain.SessionStatus, eventType events.EventType) error {
	if err := tx.Sessions.Update(ctx, session); err != nil {
		return err
	}
	if err := tx.statusChange(ctx, domain.EntitySession, session.ID, string(from), string(session.Status), map[string]any{
		"paused_seconds": int64(session.PausedDuration.Seconds()),
		"pause_count":    session.PauseCount,
	}); err != nil {
		return err
	}
	return tx.emit(ctx, sessionEvent(eventType, session, tx))
}

func sessionEvent(eventType events.EventType, session *domain.Session, tx *scope) events.Event {
	return events.New(eventType, session.TenantID, session.ID, session.Version, tx.now, events.SnapshotSession(session, tx.now))
}
