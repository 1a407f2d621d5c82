package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/queue-service/internal/domain"
	"github.com/spec-kit/queue-service/internal/repository"
	apperrors "github.com/spec-kit/queue-service/pkg/util/errorutil"
)

// CatalogService manages units, services, queues, resources and agents.
type CatalogService struct {
	*core
}

// UnitInput describes a unit.
type UnitInput struct {
	Name     string
	Timezone string
}

// ServiceInput describes a catalog service.
type ServiceInput struct {
	UnitID           string
	Name             string
	EstimatedMinutes int
	Color            string
	Settings         json.RawMessage
}

// QueueInput describes a queue. An empty Status creates an open queue.
type QueueInput struct {
	UnitID      string
	Code        string
	Name        string
	MaxCapacity int
	Status      string
}

// QueueUpdate carries the mutable queue attributes; nil fields are left alone.
type QueueUpdate struct {
	Name        *string
	MaxCapacity *int
	IsActive    *bool
}

// ResourceInput describes a resource.
type ResourceInput struct {
	UnitID string
	Name   string
}

// AgentInput describes an agent. ID is the user id carried in access tokens.
type AgentInput struct {
	ID     string
	UnitID string
	Name   string
}

// NewCatalogService constructs the service.
func NewCatalogService(deps Dependencies) *CatalogService {
	return &CatalogService{core: newCore(deps)}
}

func requireManager(actor domain.Actor) error {
	if actor.Role != domain.RoleAdmin && actor.Role != domain.RoleSupervisor {
		return apperrors.NewForbidden("admin or supervisor role required")
	}
	return nil
}

// CreateUnit creates a unit. An empty timezone uses the configured default.
func (s *CatalogService) CreateUnit(ctx context.Context, actor domain.Actor, input UnitInput) (*domain.Unit, error) {
	if err := requireManager(actor); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, apperrors.NewValidationError("invalid unit", map[string]any{"name": "required"})
	}
	tz := strings.TrimSpace(input.Timezone)
	if tz == "" {
		tz = s.location.String()
	}
	if _, err := time.LoadLocation(tz); err != nil {
		return nil, apperrors.NewValidationError("invalid unit", map[string]any{"timezone": "unknown IANA zone"})
	}

	var unit *domain.Unit
	err := s.run(ctx, "create_unit", actor, func(ctx context.Context, tx *scope) error {
		u := &domain.Unit{
			ID:       uuid.NewString(),
			TenantID: actor.TenantID,
			Name:     name,
			Timezone: tz,
			Audit:    domain.NewAudit(actor, tx.now),
		}
		if err := tx.Units.Create(ctx, u); err != nil {
			return err
		}
		unit = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	return unit, nil
}

// GetUnit fetches a unit.
func (s *CatalogService) GetUnit(ctx context.Context, actor domain.Actor, unitID string) (*domain.Unit, error) {
	var unit *domain.Unit
	err := s.read(ctx, actor, func(ctx context.Context, repos repository.Repositories) error {
		found, err := repos.Units.GetByID(ctx, actor.TenantID, unitID)
		if err != nil {
			return s.lookupErr(actor, "unit", unitID, err)
		}
		unit = found
		return nil
	})
	if err != nil {
		return nil, err
	}
	return unit, nil
}

// CreateService adds a service to a unit.
func (s *CatalogService) CreateService(ctx context.Context, actor domain.Actor, input ServiceInput) (*domain.Service, error) {
	if err := requireManager(actor); err != nil {
		return nil, err
	}
	candidate := &domain.Service{
		UnitID:           input.UnitID,
		Name:             strings.TrimSpace(input.Name),
		EstimatedMinutes: input.EstimatedMinutes,
		Color:            strings.TrimSpace(input.Color),
		Settings:         input.Settings,
	}
	if err := domain.ValidateService(candidate); err != nil {
		return nil, err
	}

	var created *domain.Service
	err := s.run(ctx, "create_service", actor, func(ctx context.Context, tx *scope) error {
		if err := s.requireUnit(ctx, tx, input.UnitID); err != nil {
			return err
		}
		svc := *candidate
		svc.ID = uuid.NewString()
		svc.TenantID = actor.TenantID
		svc.Audit = domain.NewAudit(actor, tx.now)
		s.decodeSettings(&svc)
		if err := tx.Services.Create(ctx, &svc); err != nil {
			return err
		}
		created = &svc
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// ListServices returns the active services of a unit.
func (s *CatalogService) ListServices(ctx context.Context, actor domain.Actor, unitID string) ([]domain.Service, error) {
	var list []domain.Service
	err := s.read(ctx, actor, func(ctx context.Context, repos repository.Repositories) error {
		found, err := repos.Services.ListByUnit(ctx, actor.TenantID, unitID)
		list = found
		return err
	})
	return list, err
}

// DeleteService soft deletes a service.
func (s *CatalogService) DeleteService(ctx context.Context, actor domain.Actor, serviceID string) error {
	if err := requireManager(actor); err != nil {
		return err
	}
	return s.run(ctx, "delete_service", actor, func(ctx context.Context, tx *scope) error {
		svc, err := tx.Services.GetByID(ctx, actor.TenantID, serviceID)
		if err != nil {
			return s.lookupErr(actor, "service", serviceID, err)
		}
		if svc.IsDeleted() {
			return nil
		}
		svc.MarkDeleted(tx.actor, tx.now)
		return tx.Services.Update(ctx, svc)
	})
}

// CreateQueue adds a queue to a unit. Codes are unique per unit.
func (s *CatalogService) CreateQueue(ctx context.Context, actor domain.Actor, input QueueInput) (*domain.Queue, error) {
	if err := requireManager(actor); err != nil {
		return nil, err
	}
	status := domain.QueueStatusOpen
	if strings.TrimSpace(input.Status) != "" {
		parsed, err := domain.ParseQueueStatus(input.Status)
		if err != nil {
			return nil, err
		}
		status = parsed
	}
	candidate := &domain.Queue{
		UnitID:      input.UnitID,
		Code:        domain.NormalizeQueueCode(input.Code),
		Name:        strings.TrimSpace(input.Name),
		MaxCapacity: input.MaxCapacity,
		Status:      status,
		IsActive:    true,
	}
	if err := domain.ValidateQueue(candidate); err != nil {
		return nil, err
	}

	var created *domain.Queue
	err := s.run(ctx, "create_queue", actor, func(ctx context.Context, tx *scope) error {
		if err := s.requireUnit(ctx, tx, input.UnitID); err != nil {
			return err
		}
		queue := *candidate
		queue.ID = uuid.NewString()
		queue.TenantID = actor.TenantID
		queue.Audit = domain.NewAudit(actor, tx.now)
		if err := tx.Queues.Create(ctx, &queue); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return apperrors.NewValidationError("queue code already used in unit", map[string]any{"code": queue.Code})
			}
			return err
		}
		if err := tx.created(ctx, domain.EntityQueue, queue.ID, map[string]any{"status": queue.Status, "code": queue.Code}); err != nil {
			return err
		}
		created = &queue
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// UpdateQueue changes name, capacity or the active flag of a queue.
func (s *CatalogService) UpdateQueue(ctx context.Context, actor domain.Actor, queueID string, update QueueUpdate) (*domain.Queue, error) {
	if err := requireManager(actor); err != nil {
		return nil, err
	}
	var updated *domain.Queue
	err := s.run(ctx, "update_queue", actor, func(ctx context.Context, tx *scope) error {
		queue, err := tx.Queues.GetForUpdate(ctx, actor.TenantID, queueID)
		if err != nil {
			return s.lookupErr(actor, "queue", queueID, err)
		}
		if update.Name != nil {
			queue.Name = strings.TrimSpace(*update.Name)
		}
		if update.MaxCapacity != nil {
			queue.MaxCapacity = *update.MaxCapacity
		}
		if update.IsActive != nil {
			queue.IsActive = *update.IsActive
		}
		if err := domain.ValidateQueue(queue); err != nil {
			return err
		}
		queue.Touch(tx.actor, tx.now)
		if err := tx.Queues.Update(ctx, queue); err != nil {
			return err
		}
		updated = queue
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// ListQueues returns the queues of a unit.
func (s *CatalogService) ListQueues(ctx context.Context, actor domain.Actor, unitID string) ([]domain.Queue, error) {
	var list []domain.Queue
	err := s.read(ctx, actor, func(ctx context.Context, repos repository.Repositories) error {
		found, err := repos.Queues.ListByUnit(ctx, actor.TenantID, unitID)
		list = found
		return err
	})
	return list, err
}

// DeleteQueue soft deletes a queue; it stops accepting tickets.
func (s *CatalogService) DeleteQueue(ctx context.Context, actor domain.Actor, queueID string) error {
	if err := requireManager(actor); err != nil {
		return err
	}
	return s.run(ctx, "delete_queue", actor, func(ctx context.Context, tx *scope) error {
		queue, err := tx.Queues.GetForUpdate(ctx, actor.TenantID, queueID)
		if err != nil {
			return s.lookupErr(actor, "queue", queueID, err)
		}
		if queue.IsDeleted() {
			return nil
		}
		queue.MarkDeleted(tx.actor, tx.now)
		if err := tx.Queues.Update(ctx, queue); err != nil {
			return err
		}
		return tx.record(ctx, &domain.HistoryEntry{
			TenantID:   actor.TenantID,
			EntityType: domain.EntityQueue,
			EntityID:   queue.ID,
			ActorID:    tx.actor.ID(),
			ChangeType: domain.ChangeTypeDeleted,
			CreatedAt:  tx.now,
		})
	})
}

// CreateResource adds an available resource to a unit.
func (s *CatalogService) CreateResource(ctx context.Context, actor domain.Actor, input ResourceInput) (*domain.Resource, error) {
	if err := requireManager(actor); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(input.Name)
	if name == "" || input.UnitID == "" {
		return nil, apperrors.NewValidationError("invalid resource", map[string]any{"name": name, "unit_id": input.UnitID})
	}
	var created *domain.Resource
	err := s.run(ctx, "create_resource", actor, func(ctx context.Context, tx *scope) error {
		if err := s.requireUnit(ctx, tx, input.UnitID); err != nil {
			return err
		}
		resource := &domain.Resource{
			ID:       uuid.NewString(),
			TenantID: actor.TenantID,
			UnitID:   input.UnitID,
			Name:     name,
			Status:   domain.ResourceStatusAvailable,
			Audit:    domain.NewAudit(actor, tx.now),
		}
		if err := tx.Resources.Create(ctx, resource); err != nil {
			return err
		}
		created = resource
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// SetResourceStatus changes availability of a resource. OCCUPIED is only set by
// sessions and an occupied resource cannot be made available by hand.
func (s *CatalogService) SetResourceStatus(ctx context.Context, actor domain.Actor, resourceID string, to domain.ResourceStatus) (*domain.Resource, error) {
	if err := requireManager(actor); err != nil {
		return nil, err
	}
	if to == domain.ResourceStatusOccupied {
		return nil, apperrors.NewValidationError("resources are occupied by starting a session", nil)
	}
	var updated *domain.Resource
	err := s.run(ctx, "resource_status", actor, func(ctx context.Context, tx *scope) error {
		resource, err := tx.Resources.GetForUpdate(ctx, actor.TenantID, resourceID)
		if err != nil {
			return s.lookupErr(actor, "resource", resourceID, err)
		}
		from := resource.Status
		if from == domain.ResourceStatusOccupied && to == domain.ResourceStatusAvailable {
			return apperrors.NewInvalidStateTransition("resource", string(from), "make available")
		}
		if from == to {
			updated = resource
			return nil
		}
		resource.Status = to
		resource.Touch(tx.actor, tx.now)
		if err := tx.Resources.Update(ctx, resource); err != nil {
			return err
		}
		if err := tx.statusChange(ctx, domain.EntityResource, resource.ID, string(from), string(to), nil); err != nil {
			return err
		}
		updated = resource
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// ListResources returns the resources of a unit.
func (s *CatalogService) ListResources(ctx context.Context, actor domain.Actor, unitID string) ([]domain.Resource, error) {
	var list []domain.Resource
	err := s.read(ctx, actor, func(ctx context.Context, repos repository.Repositories) error {
		found, err := repos.Resources.ListByUnit(ctx, actor.TenantID, unitID)
		list = found
		return err
	})
	return list, err
}

// CreateAgent registers an agent in a unit.
func (s *CatalogService) CreateAgent(ctx context.Context, actor domain.Actor, input AgentInput) (*domain.Agent, error) {
	if err := requireManager(actor); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(input.Name)
	if name == "" || input.UnitID == "" {
		return nil, apperrors.NewValidationError("invalid agent", map[string]any{"name": name, "unit_id": input.UnitID})
	}
	id := strings.TrimSpace(input.ID)
	if id == "" {
		id = uuid.NewString()
	}
	var created *domain.Agent
	err := s.run(ctx, "create_agent", actor, func(ctx context.Context, tx *scope) error {
		if err := s.requireUnit(ctx, tx, input.UnitID); err != nil {
			return err
		}
		agent := &domain.Agent{
			ID:       id,
			TenantID: actor.TenantID,
			UnitID:   input.UnitID,
			Name:     name,
			Status:   domain.AgentStatusAvailable,
			Audit:    domain.NewAudit(actor, tx.now),
		}
		if err := tx.Agents.Create(ctx, agent); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return apperrors.NewValidationError("agent already exists", map[string]any{"id": id})
			}
			return err
		}
		created = agent
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// SetAgentStatus changes an agent's availability. BUSY is only set by sessions.
// Agents may also set their own status.
func (s *CatalogService) SetAgentStatus(ctx context.Context, actor domain.Actor, agentID string, to domain.AgentStatus) (*domain.Agent, error) {
	if actor.UserID != agentID {
		if err := requireManager(actor); err != nil {
			return nil, err
		}
	}
	if to == domain.AgentStatusBusy {
		return nil, apperrors.NewValidationError("agents become busy by starting a session", nil)
	}
	var updated *domain.Agent
	err := s.run(ctx, "agent_status", actor, func(ctx context.Context, tx *scope) error {
		agent, err := tx.Agents.GetForUpdate(ctx, actor.TenantID, agentID)
		if err != nil {
			return s.lookupErr(actor, "agent", agentID, err)
		}
		if err := s.setAgentStatus(ctx, tx, agent, to); err != nil {
			return err
		}
		updated = agent
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// ListAgents returns the agents of a unit.
func (s *CatalogService) ListAgents(ctx context.Context, actor domain.Actor, unitID string) ([]domain.Agent, error) {
	var list []domain.Agent
	err := s.read(ctx, actor, func(ctx context.Context, repos repository.Repositories) error {
		found, err := repos.Agents.ListByUnit(ctx, actor.TenantID, unitID)
		list = found
		return err
	})
	return list, err
}

func (s *CatalogService) requireUnit(ctx context.Context, tx *scope, unitID string) error {
	if _, err := tx.Units.GetByID(ctx, tx.actor.TenantID, unitID); err != nil {
		return s.lookupErr(tx.actor, "unit", unitID, err)
	}
	return nil
}
