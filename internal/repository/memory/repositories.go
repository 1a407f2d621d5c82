package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/spec-kit/queue-service/internal/domain"
	"github.com/spec-kit/queue-service/internal/repository"
)

type unitRepo struct{ v view }

func unitTenant(u *domain.Unit) string { return u.TenantID }

func (r *unitRepo) Create(_ context.Context, unit *domain.Unit) error {
	return r.v.write(func(st *state) error { return insert(st.units, unit.ID, unit) })
}

func (r *unitRepo) GetByID(_ context.Context, tenantID, id string) (unit *domain.Unit, err error) {
	err = r.v.read(func(st *state) error {
		unit, err = lookup(st.units, id, tenantID, unitTenant)
		return err
	})
	return unit, err
}

type queueRepo struct{ v view }

func queueTenant(q *domain.Queue) string       { return q.TenantID }
func queueAudit(q *domain.Queue) *domain.Audit { return &q.Audit }

func (r *queueRepo) Create(_ context.Context, queue *domain.Queue) error {
	return r.v.write(func(st *state) error {
		for _, existing := range st.queues {
			if existing.TenantID == queue.TenantID && existing.UnitID == queue.UnitID && existing.Code == queue.Code {
				return fmt.Errorf("%w: queue code %s", repository.ErrDuplicate, queue.Code)
			}
		}
		return insert(st.queues, queue.ID, queue)
	})
}

func (r *queueRepo) Update(_ context.Context, queue *domain.Queue) error {
	return r.v.write(func(st *state) error {
		return replace(st.queues, queue.ID, queue.TenantID, queue, queueAudit, queueTenant)
	})
}

func (r *queueRepo) GetByID(_ context.Context, tenantID, id string) (queue *domain.Queue, err error) {
	err = r.v.read(func(st *state) error {
		queue, err = lookup(st.queues, id, tenantID, queueTenant)
		return err
	})
	return queue, err
}

func (r *queueRepo) GetForUpdate(ctx context.Context, tenantID, id string) (*domain.Queue, error) {
	return r.GetByID(ctx, tenantID, id)
}

func (r *queueRepo) ListByUnit(_ context.Context, tenantID, unitID string) ([]domain.Queue, error) {
	var result []domain.Queue
	err := r.v.read(func(st *state) error {
		for _, q := range st.queues {
			if q.TenantID == tenantID && q.UnitID == unitID && !q.IsDeleted() {
				result = append(result, q)
			}
		}
		return nil
	})
	sort.Slice(result, func(i, j int) bool { return result[i].Code < result[j].Code })
	return result, err
}

type serviceRepo struct{ v view }

func serviceTenant(s *domain.Service) string       { return s.TenantID }
func serviceAudit(s *domain.Service) *domain.Audit { return &s.Audit }

func (r *serviceRepo) Create(_ context.Context, svc *domain.Service) error {
	return r.v.write(func(st *state) error { return insert(st.services, svc.ID, svc) })
}

func (r *serviceRepo) Update(_ context.Context, svc *domain.Service) error {
	return r.v.write(func(st *state) error {
		return replace(st.services, svc.ID, svc.TenantID, svc, serviceAudit, serviceTenant)
	})
}

func (r *serviceRepo) GetByID(_ context.Context, tenantID, id string) (svc *domain.Service, err error) {
	err = r.v.read(func(st *state) error {
		svc, err = lookup(st.services, id, tenantID, serviceTenant)
		return err
	})
	return svc, err
}

func (r *serviceRepo) ListByUnit(_ context.Context, tenantID, unitID string) ([]domain.Service, error) {
	var result []domain.Service
	err := r.v.read(func(st *state) error {
		for _, s := range st.services {
			if s.TenantID == tenantID && s.UnitID == unitID && !s.IsDeleted() {
				result = append(result, s)
			}
		}
		return nil
	})
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, err
}

type ticketRepo struct{ v view }

func ticketTenant(t *domain.Ticket) string       { return t.TenantID }
func ticketAudit(t *domain.Ticket) *domain.Audit { return &t.Audit }

func (r *ticketRepo) Create(_ context.Context, ticket *domain.Ticket) error {
	return r.v.write(func(st *state) error {
		for _, existing := range st.tickets {
			if existing.TenantID == ticket.TenantID && existing.QueueID == ticket.QueueID &&
				existing.IssueDay == ticket.IssueDay && existing.Sequence == ticket.Sequence {
				return fmt.Errorf("%w: ticket number %s", repository.ErrDuplicate, ticket.Number)
			}
		}
		return insert(st.tickets, ticket.ID, ticket)
	})
}

func (r *ticketRepo) Update(_ context.Context, ticket *domain.Ticket) error {
	return r.v.write(func(st *state) error {
		return replace(st.tickets, ticket.ID, ticket.TenantID, ticket, ticketAudit, ticketTenant)
	})
}

func (r *ticketRepo) GetByID(_ context.Context, tenantID, id string) (ticket *domain.Ticket, err error) {
	err = r.v.read(func(st *state) error {
		ticket, err = lookup(st.tickets, id, tenantID, ticketTenant)
		return err
	})
	return ticket, err
}

func (r *ticketRepo) GetForUpdate(ctx context.Context, tenantID, id string) (*domain.Ticket, error) {
	return r.GetByID(ctx, tenantID, id)
}

func waiting(st *state, tenantID, queueID string) []domain.Ticket {
	var result []domain.Ticket
	for _, t := range st.tickets {
		if t.TenantID == tenantID && t.QueueID == queueID && t.Status == domain.TicketStatusWaiting && !t.IsDeleted() {
			result = append(result, t)
		}
	}
	return result
}

func (r *ticketRepo) ListWaiting(_ context.Context, tenantID, queueID string) ([]domain.Ticket, error) {
	var result []domain.Ticket
	err := r.v.read(func(st *state) error {
		result = waiting(st, tenantID, queueID)
		return nil
	})
	slices.SortFunc(result, func(a, b domain.Ticket) int {
		switch {
		case a.Precedes(&b):
			return -1
		case b.Precedes(&a):
			return 1
		}
		return 0
	})
	return result, err
}

func (r *ticketRepo) CountWaiting(_ context.Context, tenantID, queueID string) (count int, err error) {
	err = r.v.read(func(st *state) error {
		count = len(waiting(st, tenantID, queueID))
		return nil
	})
	return count, err
}

func (r *ticketRepo) CountPreceding(_ context.Context, ticket *domain.Ticket) (count int, err error) {
	err = r.v.read(func(st *state) error {
		for _, other := range waiting(st, ticket.TenantID, ticket.QueueID) {
			if other.ID != ticket.ID && other.Precedes(ticket) {
				count++
			}
		}
		return nil
	})
	return count, err
}

type sessionRepo struct{ v view }

func sessionTenant(s *domain.Session) string       { return s.TenantID }
func sessionAudit(s *domain.Session) *domain.Audit { return &s.Audit }

func (r *sessionRepo) Create(_ context.Context, session *domain.Session) error {
	return r.v.write(func(st *state) error {
		if !session.Status.IsTerminal() {
			for _, existing := range st.sessions {
				if existing.Status.IsTerminal() || existing.TenantID != session.TenantID {
					continue
				}
				if existing.TicketID == session.TicketID || existing.UserID == session.UserID {
					return fmt.Errorf("%w: open session %s", repository.ErrDuplicate, existing.ID)
				}
			}
		}
		return insert(st.sessions, session.ID, session)
	})
}

func (r *sessionRepo) Update(_ context.Context, session *domain.Session) error {
	return r.v.write(func(st *state) error {
		return replace(st.sessions, session.ID, session.TenantID, session, sessionAudit, sessionTenant)
	})
}

func (r *sessionRepo) GetByID(_ context.Context, tenantID, id string) (session *domain.Session, err error) {
	err = r.v.read(func(st *state) error {
		session, err = lookup(st.sessions, id, tenantID, sessionTenant)
		return err
	})
	return session, err
}

func (r *sessionRepo) GetForUpdate(ctx context.Context, tenantID, id string) (*domain.Session, error) {
	return r.GetByID(ctx, tenantID, id)
}

func (r *sessionRepo) findOpen(match func(*domain.Session) bool) (*domain.Session, error) {
	var found *domain.Session
	err := r.v.read(func(st *state) error {
		for _, s := range st.sessions {
			if !s.Status.IsTerminal() && match(&s) {
				found = &s
				return nil
			}
		}
		return repository.ErrNotFound
	})
	return found, err
}

func (r *sessionRepo) GetOpenByTicket(_ context.Context, tenantID, ticketID string) (*domain.Session, error) {
	return r.findOpen(func(s *domain.Session) bool { return s.TenantID == tenantID && s.TicketID == ticketID })
}

func (r *sessionRepo) GetOpenByUser(_ context.Context, tenantID, userID string) (*domain.Session, error) {
	return r.findOpen(func(s *domain.Session) bool { return s.TenantID == tenantID && s.UserID == userID })
}

func (r *sessionRepo) ListRecentCompleted(_ context.Context, tenantID, queueID string, since time.Time, limit int) ([]domain.Session, error) {
	var result []domain.Session
	err := r.v.read(func(st *state) error {
		for _, s := range st.sessions {
			if s.TenantID != tenantID || s.QueueID != queueID || s.Status != domain.SessionStatusCompleted {
				continue
			}
			if s.CompletedAt == nil || s.CompletedAt.Before(since) {
				continue
			}
			result = append(result, s)
		}
		return nil
	})
	sort.Slice(result, func(i, j int) bool { return result[i].CompletedAt.After(*result[j].CompletedAt) })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, err
}

func (r *sessionRepo) CountActiveAgents(_ context.Context, tenantID, unitID string) (count int, err error) {
	err = r.v.read(func(st *state) error {
		users := make(map[string]struct{})
		for _, s := range st.sessions {
			if s.TenantID == tenantID && s.UnitID == unitID && !s.Status.IsTerminal() {
				users[s.UserID] = struct{}{}
			}
		}
		count = len(users)
		return nil
	})
	return count, err
}

type resourceRepo struct{ v view }

func resourceTenant(r *domain.Resource) string       { return r.TenantID }
func resourceAudit(r *domain.Resource) *domain.Audit { return &r.Audit }

func (r *resourceRepo) Create(_ context.Context, resource *domain.Resource) error {
	return r.v.write(func(st *state) error { return insert(st.resources, resource.ID, resource) })
}

func (r *resourceRepo) Update(_ context.Context, resource *domain.Resource) error {
	return r.v.write(func(st *state) error {
		return replace(st.resources, resource.ID, resource.TenantID, resource, resourceAudit, resourceTenant)
	})
}

func (r *resourceRepo) GetByID(_ context.Context, tenantID, id string) (resource *domain.Resource, err error) {
	err = r.v.read(func(st *state) error {
		resource, err = lookup(st.resources, id, tenantID, resourceTenant)
		return err
	})
	return resource, err
}

func (r *resourceRepo) GetForUpdate(ctx context.Context, tenantID, id string) (*domain.Resource, error) {
	return r.GetByID(ctx, tenantID, id)
}

func (r *resourceRepo) ListByUnit(_ context.Context, tenantID, unitID string) ([]domain.Resource, error) {
	var result []domain.Resource
	err := r.v.read(func(st *state) error {
		for _, res := range st.resources {
			if res.TenantID == tenantID && res.UnitID == unitID && !res.IsDeleted() {
				result = append(result, res)
			}
		}
		return nil
	})
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, err
}

type agentRepo struct{ v view }

func agentTenant(a *domain.Agent) string       { return a.TenantID }
func agentAudit(a *domain.Agent) *domain.Audit { return &a.Audit }

func (r *agentRepo) Create(_ context.Context, agent *domain.Agent) error {
	return r.v.write(func(st *state) error { return insert(st.agents, agent.ID, agent) })
}

func (r *agentRepo) Update(_ context.Context, agent *domain.Agent) error {
	return r.v.write(func(st *state) error {
		return replace(st.agents, agent.ID, agent.TenantID, agent, agentAudit, agentTenant)
	})
}

func (r *agentRepo) GetByID(_ context.Context, tenantID, id string) (agent *domain.Agent, err error) {
	err = r.v.read(func(st *state) error {
		agent, err = lookup(st.agents, id, tenantID, agentTenant)
		return err
	})
	return agent, err
}

func (r *agentRepo) GetForUpdate(ctx context.Context, tenantID, id string) (*domain.Agent, error) {
	return r.GetByID(ctx, tenantID, id)
}

func (r *agentRepo) ListByUnit(_ context.Context, tenantID, unitID string) ([]domain.Agent, error) {
	var result []domain.Agent
	err := r.v.read(func(st *state) error {
		for _, a := range st.agents {
			if a.TenantID == tenantID && a.UnitID == unitID && !a.IsDeleted() {
				result = append(result, a)
			}
		}
		return nil
	})
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, err
}

type historyRepo struct{ v view }

func (r *historyRepo) Create(_ context.Context, entry *domain.HistoryEntry) error {
	return r.v.write(func(st *state) error {
		st.history = append(st.history, *entry)
		return nil
	})
}

func (r *historyRepo) ListByEntity(_ context.Context, tenantID string, entityType domain.EntityType, entityID string) ([]domain.HistoryEntry, error) {
	var result []domain.HistoryEntry
	err := r.v.read(func(st *state) error {
		for _, h := range st.history {
			if h.TenantID == tenantID && h.EntityType == entityType && h.EntityID == entityID {
				result = append(result, h)
			}
		}
		return nil
	})
	sort.SliceStable(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, err
}

type outboxRepo struct{ v view }

func (r *outboxRepo) Append(_ context.Context, event *domain.OutboxEvent) error {
	return r.v.write(func(st *state) error {
		if _, exists := st.outbox[event.ID]; exists {
			return nil
		}
		stored := *event
		stored.Payload = slices.Clone(event.Payload)
		st.outbox[event.ID] = stored
		return nil
	})
}

func (r *outboxRepo) ListPending(_ context.Context, now time.Time, limit int) ([]domain.OutboxEvent, error) {
	var result []domain.OutboxEvent
	err := r.v.read(func(st *state) error {
		for _, e := range st.outbox {
			if e.DeliveredAt == nil && !e.NextAttemptAt.After(now) {
				result = append(result, e)
			}
		}
		return nil
	})
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, err
}

func (r *outboxRepo) MarkDelivered(_ context.Context, id string, at time.Time) error {
	return r.v.write(func(st *state) error {
		e, ok := st.outbox[id]
		if !ok {
			return repository.ErrNotFound
		}
		e.Attempts++
		e.LastError = ""
		e.DeliveredAt = &at
		st.outbox[id] = e
		return nil
	})
}

func (r *outboxRepo) MarkFailed(_ context.Context, id string, lastError string, nextAttemptAt time.Time) error {
	return r.v.write(func(st *state) error {
		e, ok := st.outbox[id]
		if !ok || e.DeliveredAt != nil {
			return repository.ErrNotFound
		}
		e.Attempts++
		e.LastError = lastError
		e.NextAttemptAt = nextAttemptAt
		st.outbox[id] = e
		return nil
	})
}

func (r *outboxRepo) CountPending(_ context.Context) (count int, err error) {
	err = r.v.read(func(st *state) error {
		for _, e := range st.outbox {
			if e.DeliveredAt == nil {
				count++
			}
		}
		return nil
	})
	return count, err
}

func (r *outboxRepo) PurgeDelivered(_ context.Context, before time.Time) (count int, err error) {
	err = r.v.write(func(st *state) error {
		for id, e := range st.outbox {
			if e.DeliveredAt != nil && e.DeliveredAt.Before(before) {
				delete(st.outbox, id)
				count++
			}
		}
		return nil
	})
	return count, err
}

type sequenceRepo struct{ v view }

func (r *sequenceRepo) Next(_ context.Context, tenantID, queueID, day string) (value int, err error) {
	err = r.v.write(func(st *state) error {
		key := tenantID + "|" + queueID + "|" + day
		st.sequences[key]++
		value = st.sequences[key]
		return nil
	})
	return value, err
}
