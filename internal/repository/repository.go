package repository

import (
	"context"
	"errors"
	"time"

	"github.com/spec-kit/queue-service/internal/domain"
)

var (
	// ErrNotFound is returned when no entity matches the lookup.
	ErrNotFound = errors.New("entity not found")
	// ErrCrossTenant is returned when the entity exists but belongs to another tenant.
	ErrCrossTenant = errors.New("entity belongs to another tenant")
	// ErrDuplicate is returned when a uniqueness constraint rejects a write.
	ErrDuplicate = errors.New("duplicate entity")
	// ErrConflict is returned on a stale version or a serialization failure.
	ErrConflict = errors.New("concurrent modification")
	// ErrUnavailable is returned when the backing store cannot be reached.
	ErrUnavailable = errors.New("store unavailable")
)

// UnitRepository persists units.
type UnitRepository interface {
	Create(ctx context.Context, unit *domain.Unit) error
	GetByID(ctx context.Context, tenantID, id string) (*domain.Unit, error)
}

// QueueRepository persists queues.
type QueueRepository interface {
	Create(ctx context.Context, queue *domain.Queue) error
	Update(ctx context.Context, queue *domain.Queue) error
	GetByID(ctx context.Context, tenantID, id string) (*domain.Queue, error)
	// GetForUpdate locks the queue row for the rest of the unit of work.
	GetForUpdate(ctx context.Context, tenantID, id string) (*domain.Queue, error)
	ListByUnit(ctx context.Context, tenantID, unitID string) ([]domain.Queue, error)
}

// ServiceRepository persists catalog services.
type ServiceRepository interface {
	Create(ctx context.Context, svc *domain.Service) error
	Update(ctx context.Context, svc *domain.Service) error
	GetByID(ctx context.Context, tenantID, id string) (*domain.Service, error)
	ListByUnit(ctx context.Context, tenantID, unitID string) ([]domain.Service, error)
}

// TicketRepository persists tickets.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	Update(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, tenantID, id string) (*domain.Ticket, error)
	GetForUpdate(ctx context.Context, tenantID, id string) (*domain.Ticket, error)
	// ListWaiting returns waiting tickets ordered by domain.Ticket.Precedes.
	ListWaiting(ctx context.Context, tenantID, queueID string) ([]domain.Ticket, error)
	CountWaiting(ctx context.Context, tenantID, queueID string) (int, error)
	// CountPreceding counts waiting tickets in the same queue that strictly precede ticket.
	CountPreceding(ctx context.Context, ticket *domain.Ticket) (int, error)
}

// SessionRepository persists service sessions.
type SessionRepository interface {
	Create(ctx context.Context, session *domain.Session) error
	Update(ctx context.Context, session *domain.Session) error
	GetByID(ctx context.Context, tenantID, id string) (*domain.Session, error)
	GetForUpdate(ctx context.Context, tenantID, id string) (*domain.Session, error)
	// GetOpenByTicket returns the non-terminal session of a ticket or ErrNotFound.
	GetOpenByTicket(ctx context.Context, tenantID, ticketID string) (*domain.Session, error)
	// GetOpenByUser returns the non-terminal session of an agent or ErrNotFound.
	GetOpenByUser(ctx context.Context, tenantID, userID string) (*domain.Session, error)
	// ListRecentCompleted returns completed sessions of a queue, newest first.
	ListRecentCompleted(ctx context.Context, tenantID, queueID string, since time.Time, limit int) ([]domain.Session, error)
	// CountActiveAgents counts distinct users with a non-terminal session in a unit.
	CountActiveAgents(ctx context.Context, tenantID, unitID string) (int, error)
}

// ResourceRepository persists physical resources.
type ResourceRepository interface {
	Create(ctx context.Context, resource *domain.Resource) error
	Update(ctx context.Context, resource *domain.Resource) error
	GetByID(ctx context.Context, tenantID, id string) (*domain.Resource, error)
	GetForUpdate(ctx context.Context, tenantID, id string) (*domain.Resource, error)
	ListByUnit(ctx context.Context, tenantID, unitID string) ([]domain.Resource, error)
}

// AgentRepository persists agents.
type AgentRepository interface {
	Create(ctx context.Context, agent *domain.Agent) error
	Update(ctx context.Context, agent *domain.Agent) error
	GetByID(ctx context.Context, tenantID, id string) (*domain.Agent, error)
	GetForUpdate(ctx context.Context, tenantID, id string) (*domain.Agent, error)
	ListByUnit(ctx context.Context, tenantID, unitID string) ([]domain.Agent, error)
}

// HistoryRepository stores audit entries.
type HistoryRepository interface {
	Create(ctx context.Context, entry *domain.HistoryEntry) error
	ListByEntity(ctx context.Context, tenantID string, entityType domain.EntityType, entityID string) ([]domain.HistoryEntry, error)
}

// OutboxRepository stores events written alongside state changes until delivered.
type OutboxRepository interface {
	// Append is a no-op when an event with the same id already exists.
	Append(ctx context.Context, event *domain.OutboxEvent) error
	ListPending(ctx context.Context, now time.Time, limit int) ([]domain.OutboxEvent, error)
	MarkDelivered(ctx context.Context, id string, at time.Time) error
	MarkFailed(ctx context.Context, id string, lastError string, nextAttemptAt time.Time) error
	CountPending(ctx context.Context) (int, error)
	PurgeDelivered(ctx context.Context, before time.Time) (int, error)
}

// SequenceRepository allocates daily ticket sequences.
type SequenceRepository interface {
	// Next increments and returns the sequence for (tenant, queue, day), starting at 1.
	Next(ctx context.Context, tenantID, queueID, day string) (int, error)
}

// Repositories bundles every repository bound to one connection or transaction.
type Repositories struct {
	Units     UnitRepository
	Queues    QueueRepository
	Services  ServiceRepository
	Tickets   TicketRepository
	Sessions  SessionRepository
	Resources ResourceRepository
	Agents    AgentRepository
	History   HistoryRepository
	Outbox    OutboxRepository
	Sequences SequenceRepository
}

// TxFunc runs inside a unit of work. Returning an error discards every write.
type TxFunc func(ctx context.Context, tx Repositories) error

// Store is the persistence boundary used by the services.
type Store interface {
	// Repos returns repositories outside any transaction, for reads.
	Repos() Repositories
	// WithinTx runs fn in a serializable unit of work and commits when it returns nil.
	WithinTx(ctx context.Context, fn TxFunc) error
	Ping(ctx context.Context) error
	Close()
}
