package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/queue-service/internal/clock"
	"github.com/spec-kit/queue-service/internal/config"
	"github.com/spec-kit/queue-service/internal/domain"
	"github.com/spec-kit/queue-service/internal/events"
	"github.com/spec-kit/queue-service/internal/repository"
	"github.com/spec-kit/queue-service/internal/repository/memory"
	apperrors "github.com/spec-kit/queue-service/pkg/util/errorutil"
)

const tenantID = "tenant-a"

var t0 = time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)

type fixture struct {
	store     *memory.Store
	clock     *clock.Fake
	deps      Dependencies
	tickets   *TicketService
	sessions  *SessionService
	queues    *QueueService
	estimator *EstimatorService
	catalog   *CatalogService

	admin   domain.Actor
	agent   domain.Actor
	kiosk   domain.Actor
	unit    *domain.Unit
	queue   *domain.Queue
	service *domain.Service
}

func newFixture(t *testing.T, capacity int) *fixture {
	t.Helper()
	store := memory.NewStore()
	return newFixtureWithStore(t, store, store, capacity)
}

// newFixtureWithStore seeds through seed and runs the services against store,
// which may wrap seed.
func newFixtureWithStore(t *testing.T, seed *memory.Store, store repository.Store, capacity int) *fixture {
	t.Helper()
	clk := clock.NewFake(t0)
	deps := Dependencies{
		Store:     store,
		Clock:     clk,
		Logger:    zap.NewNop(),
		Retry:     config.RetryConfig{MaxAttempts: 3},
		Estimator: config.EstimatorConfig{SampleSize: 20, LookbackDays: 30},
	}
	seedDeps := deps
	seedDeps.Store = seed

	f := &fixture{
		store:     seed,
		clock:     clk,
		deps:      deps,
		tickets:   NewTicketService(deps),
		sessions:  NewSessionService(deps),
		queues:    NewQueueService(deps),
		estimator: NewEstimatorService(deps),
		catalog:   NewCatalogService(deps),
		admin:     domain.Actor{TenantID: tenantID, UserID: "admin-1", Role: domain.RoleAdmin},
		agent:     domain.Actor{TenantID: tenantID, UserID: "agent-1", Role: domain.RoleAgent},
		kiosk:     domain.Actor{TenantID: tenantID, UserID: "kiosk-1", Role: domain.RoleKiosk},
	}

	ctx := context.Background()
	catalog := NewCatalogService(seedDeps)
	unit, err := catalog.CreateUnit(ctx, f.admin, UnitInput{Name: "Main branch", Timezone: "UTC"})
	require.NoError(t, err)
	svc, err := catalog.CreateService(ctx, f.admin, ServiceInput{UnitID: unit.ID, Name: "Accounts", EstimatedMinutes: 10})
	require.NoError(t, err)
	queue, err := catalog.CreateQueue(ctx, f.admin, QueueInput{UnitID: unit.ID, Code: "a", Name: "General", MaxCapacity: capacity})
	require.NoError(t, err)
	_, err = catalog.CreateAgent(ctx, f.admin, AgentInput{ID: "agent-1", UnitID: unit.ID, Name: "Agent One"})
	require.NoError(t, err)
	_, err = catalog.CreateAgent(ctx, f.admin, AgentInput{ID: "agent-2", UnitID: unit.ID, Name: "Agent Two"})
	require.NoError(t, err)

	f.unit, f.queue, f.service = unit, queue, svc
	return f
}

func (f *fixture) enqueue(t *testing.T, priority string) *domain.Ticket {
	t.Helper()
	ticket, err := f.tickets.Enqueue(context.Background(), f.kiosk, EnqueueInput{
		QueueID:   f.queue.ID,
		ServiceID: f.service.ID,
		Priority:  priority,
	})
	require.NoError(t, err)
	return ticket
}

func (f *fixture) start(t *testing.T, ticketID, userID string) *domain.Session {
	t.Helper()
	ctx := context.Background()
	_, err := f.tickets.Call(ctx, f.agent, ticketID)
	require.NoError(t, err)
	_, session, err := f.tickets.Start(ctx, f.agent, ticketID, StartInput{UserID: userID})
	require.NoError(t, err)
	return session
}

func (f *fixture) outbox(t *testing.T) []events.Event {
	t.Helper()
	pending, err := f.store.Repos().Outbox.ListPending(context.Background(), f.clock.Now().Add(time.Hour), 1000)
	require.NoError(t, err)
	list := make([]events.Event, 0, len(pending))
	for i := range pending {
		event, err := events.Decode(pending[i].Payload)
		require.NoError(t, err)
		list = append(list, event)
	}
	return list
}

func (f *fixture) agentStatus(t *testing.T, id string) domain.AgentStatus {
	t.Helper()
	agent, err := f.store.Repos().Agents.GetByID(context.Background(), tenantID, id)
	require.NoError(t, err)
	return agent.Status
}

func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	require.Truef(t, apperrors.Is(err, code), "expected %s, got %v", code, err)
}

func decodeData(t *testing.T, event events.Event, into any) {
	t.Helper()
	raw, ok := event.Data.(json.RawMessage)
	require.True(t, ok)
	require.NoError(t, json.Unmarshal(raw, into))
}
