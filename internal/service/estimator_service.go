package service

import (
	"context"
	"math"
	"time"

	"github.com/spec-kit/queue-service/internal/domain"
	"github.com/spec-kit/queue-service/internal/repository"
	apperrors "github.com/spec-kit/queue-service/pkg/util/errorutil"
)

// Estimate is a waiting ticket's place in line and expected wait.
type Estimate struct {
	Position              int
	AverageServiceMinutes float64
	ActiveAgents          int
	EstimatedWaitMinutes  int
}

// EstimatorService answers position and wait-time queries.
type EstimatorService struct {
	*core
}

// NewEstimatorService constructs the service.
func NewEstimatorService(deps Dependencies) *EstimatorService {
	return &EstimatorService{core: newCore(deps)}
}

// Position is 1 plus the number of waiting tickets of the same queue ahead of the ticket.
func (s *EstimatorService) Position(ctx context.Context, actor domain.Actor, ticketID string) (int, error) {
	var position int
	err := s.read(ctx, actor, func(ctx context.Context, repos repository.Repositories) error {
		ticket, err := s.waitingTicket(ctx, repos, actor, ticketID)
		if err != nil {
			return err
		}
		position, err = s.position(ctx, repos, ticket)
		return err
	})
	if err != nil {
		return 0, err
	}
	return position, nil
}

// EstimatedWaitMinutes is ceil(position * average service minutes / max(1, active agents)).
func (s *EstimatorService) EstimatedWaitMinutes(ctx context.Context, actor domain.Actor, ticketID string) (int, error) {
	estimate, err := s.Estimate(ctx, actor, ticketID)
	if err != nil {
		return 0, err
	}
	return estimate.EstimatedWaitMinutes, nil
}

// Estimate returns every input of the wait-time computation with its result.
func (s *EstimatorService) Estimate(ctx context.Context, actor domain.Actor, ticketID string) (*Estimate, error) {
	var estimate *Estimate
	err := s.read(ctx, actor, func(ctx context.Context, repos repository.Repositories) error {
		ticket, err := s.waitingTicket(ctx, repos, actor, ticketID)
		if err != nil {
			return err
		}
		position, err := s.position(ctx, repos, ticket)
		if err != nil {
			return err
		}
		average, err := s.averageServiceMinutes(ctx, repos, ticket)
		if err != nil {
			return err
		}
		agents, err := repos.Sessions.CountActiveAgents(ctx, ticket.TenantID, ticket.UnitID)
		if err != nil {
			return err
		}
		estimate = &Estimate{
			Position:              position,
			AverageServiceMinutes: average,
			ActiveAgents:          agents,
			EstimatedWaitMinutes:  WaitMinutes(position, average, agents),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return estimate, nil
}

// WaitMinutes applies the estimation formula.
func WaitMinutes(position int, averageMinutes float64, activeAgents int) int {
	if activeAgents < 1 {
		activeAgents = 1
	}
	if position < 1 || averageMinutes <= 0 {
		return 0
	}
	return int(math.Ceil(float64(position) * averageMinutes / float64(activeAgents)))
}

func (s *EstimatorService) waitingTicket(ctx context.Context, repos repository.Repositories, actor domain.Actor, ticketID string) (*domain.Ticket, error) {
	ticket, err := repos.Tickets.GetByID(ctx, actor.TenantID, ticketID)
	if err != nil {
		return nil, s.lookupErr(actor, "ticket", ticketID, err)
	}
	if ticket.Status != domain.TicketStatusWaiting {
		return nil, apperrors.NewValidationError("position is only defined for waiting tickets", map[string]any{
			"ticket_id": ticket.ID,
			"status":    ticket.Status,
		})
	}
	return ticket, nil
}

func (s *EstimatorService) position(ctx context.Context, repos repository.Repositories, ticket *domain.Ticket) (int, error) {
	ahead, err := repos.Tickets.CountPreceding(ctx, ticket)
	if err != nil {
		return 0, err
	}
	return ahead + 1, nil
}

// averageServiceMinutes averages recent completed sessions of the queue, falling
// back to the service's configured estimate when there is no history.
func (s *EstimatorService) averageServiceMinutes(ctx context.Context, repos repository.Repositories, ticket *domain.Ticket) (float64, error) {
	now := s.clock.Now()
	since := now.Add(-s.estimator.Lookback())
	sessions, err := repos.Sessions.ListRecentCompleted(ctx, ticket.TenantID, ticket.QueueID, since, s.estimator.SampleSize)
	if err != nil {
		return 0, err
	}
	if len(sessions) > 0 {
		var total time.Duration
		for i := range sessions {
			total += sessions[i].TotalDuration(now)
		}
		return total.Minutes() / float64(len(sessions)), nil
	}

	svc, err := repos.Services.GetByID(ctx, ticket.TenantID, ticket.ServiceID)
	if err != nil {
		return 0, s.lookupErr(domain.Actor{TenantID: ticket.TenantID}, "service", ticket.ServiceID, err)
	}
	return float64(svc.EstimatedMinutes), nil
}
