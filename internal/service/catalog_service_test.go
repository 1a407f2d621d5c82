package service

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/queue-service/internal/domain"
	apperrors "github.com/spec-kit/queue-service/pkg/util/errorutil"
)

func TestCatalogWritesRequireManager(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()

	_, err := f.catalog.CreateUnit(ctx, f.agent, UnitInput{Name: "Annex"})
	requireCode(t, err, apperrors.CodeForbidden)
	_, err = f.catalog.CreateQueue(ctx, f.kiosk, QueueInput{UnitID: f.unit.ID, Code: "B", Name: "B", MaxCapacity: 5})
	requireCode(t, err, apperrors.CodeForbidden)
	err = f.catalog.DeleteService(ctx, f.agent, f.service.ID)
	requireCode(t, err, apperrors.CodeForbidden)

	supervisor := domain.Actor{TenantID: tenantID, UserID: "sup-1", Role: domain.RoleSupervisor}
	unit, err := f.catalog.CreateUnit(ctx, supervisor, UnitInput{Name: "Annex"})
	require.NoError(t, err)
	assert.Equal(t, "UTC", unit.Timezone)
}

func TestCreateUnitRejectsUnknownTimezone(t *testing.T) {
	f := newFixture(t, 10)
	_, err := f.catalog.CreateUnit(context.Background(), f.admin, UnitInput{Name: "Nowhere", Timezone: "Mars/Olympus"})
	requireCode(t, err, apperrors.CodeValidation)
}

func TestCreateQueueValidatesAndNormalizes(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()

	assert.Equal(t, "A", f.queue.Code)
	assert.Equal(t, domain.QueueStatusOpen, f.queue.Status)
	assert.True(t, f.queue.IsActive)

	_, err := f.catalog.CreateQueue(ctx, f.admin, QueueInput{UnitID: f.unit.ID, Code: " a ", Name: "Duplicate", MaxCapacity: 5})
	requireCode(t, err, apperrors.CodeValidation)

	_, err = f.catalog.CreateQueue(ctx, f.admin, QueueInput{UnitID: f.unit.ID, Code: "B", Name: "B", MaxCapacity: 0})
	requireCode(t, err, apperrors.CodeValidation)
	_, err = f.catalog.CreateQueue(ctx, f.admin, QueueInput{UnitID: f.unit.ID, Code: "B-1", Name: "B", MaxCapacity: 5})
	requireCode(t, err, apperrors.CodeValidation)
	_, err = f.catalog.CreateQueue(ctx, f.admin, QueueInput{UnitID: "missing", Code: "B", Name: "B", MaxCapacity: 5})
	requireCode(t, err, apperrors.CodeNotFound)

	closed, err := f.catalog.CreateQueue(ctx, f.admin, QueueInput{UnitID: f.unit.ID, Code: "C", Name: "Closed", MaxCapacity: 5, Status: "closed"})
	require.NoError(t, err)
	assert.Equal(t, domain.QueueStatusClosed, closed.Status)

	queues, err := f.catalog.ListQueues(ctx, f.agent, f.unit.ID)
	require.NoError(t, err)
	assert.Len(t, queues, 2)
}

func TestDeletedQueueStopsAdmission(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()

	require.NoError(t, f.catalog.DeleteQueue(ctx, f.admin, f.queue.ID))

	_, err := f.tickets.Enqueue(ctx, f.kiosk, EnqueueInput{QueueID: f.queue.ID, ServiceID: f.service.ID})
	requireCode(t, err, apperrors.CodeQueueClosed)

	queues, err := f.catalog.ListQueues(ctx, f.agent, f.unit.ID)
	require.NoError(t, err)
	assert.Empty(t, queues)
}

func TestDeletedServiceIsHiddenAndRejected(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()

	require.NoError(t, f.catalog.DeleteService(ctx, f.admin, f.service.ID))

	services, err := f.catalog.ListServices(ctx, f.agent, f.unit.ID)
	require.NoError(t, err)
	assert.Empty(t, services)

	_, err = f.tickets.Enqueue(ctx, f.kiosk, EnqueueInput{QueueID: f.queue.ID, ServiceID: f.service.ID})
	requireCode(t, err, apperrors.CodeNotFound)
}

func TestCreateServiceKeepsUnreadableSettings(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()

	svc, err := f.catalog.CreateService(ctx, f.admin, ServiceInput{
		UnitID:           f.unit.ID,
		Name:             "Loans",
		EstimatedMinutes: 15,
		Settings:         json.RawMessage(`{not json`),
	})
	require.NoError(t, err)

	ticket, err := f.tickets.Enqueue(ctx, f.kiosk, EnqueueInput{QueueID: f.queue.ID, ServiceID: svc.ID})
	require.NoError(t, err)
	session := f.start(t, ticket.ID, "agent-1")
	assert.Nil(t, session.ResourceID)

	_, err = f.catalog.CreateService(ctx, f.admin, ServiceInput{UnitID: f.unit.ID, Name: "Zero", EstimatedMinutes: 0})
	requireCode(t, err, apperrors.CodeValidation)
}

func TestResourceStatusRules(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()
	desk, err := f.catalog.CreateResource(ctx, f.admin, ResourceInput{UnitID: f.unit.ID, Name: "Desk"})
	require.NoError(t, err)
	assert.Equal(t, domain.ResourceStatusAvailable, desk.Status)

	_, err = f.catalog.SetResourceStatus(ctx, f.admin, desk.ID, domain.ResourceStatusOccupied)
	requireCode(t, err, apperrors.CodeValidation)

	ticket := f.enqueue(t, "")
	_, err = f.tickets.Call(ctx, f.agent, ticket.ID)
	require.NoError(t, err)
	_, session, err := f.tickets.Start(ctx, f.agent, ticket.ID, StartInput{UserID: "agent-1", ResourceID: &desk.ID})
	require.NoError(t, err)

	_, err = f.catalog.SetResourceStatus(ctx, f.admin, desk.ID, domain.ResourceStatusAvailable)
	requireCode(t, err, apperrors.CodeInvalidTransition)

	maintenance, err := f.catalog.SetResourceStatus(ctx, f.admin, desk.ID, domain.ResourceStatusMaintenance)
	require.NoError(t, err)
	assert.Equal(t, domain.ResourceStatusMaintenance, maintenance.Status)

	_, err = f.sessions.Complete(ctx, f.agent, session.ID, "")
	require.NoError(t, err)
	resources, err := f.catalog.ListResources(ctx, f.agent, f.unit.ID)
	require.NoError(t, err)
	require.Len(t, resources, 1)
	assert.Equal(t, domain.ResourceStatusMaintenance, resources[0].Status)
}

func TestAgentStatusRules(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()

	_, err := f.catalog.CreateAgent(ctx, f.admin, AgentInput{ID: "agent-1", UnitID: f.unit.ID, Name: "Again"})
	requireCode(t, err, apperrors.CodeValidation)

	generated, err := f.catalog.CreateAgent(ctx, f.admin, AgentInput{UnitID: f.unit.ID, Name: "New"})
	require.NoError(t, err)
	assert.NotEmpty(t, generated.ID)

	away, err := f.catalog.SetAgentStatus(ctx, f.agent, "agent-1", domain.AgentStatusAway)
	require.NoError(t, err)
	assert.Equal(t, domain.AgentStatusAway, away.Status)

	_, err = f.catalog.SetAgentStatus(ctx, f.agent, "agent-2", domain.AgentStatusOffline)
	requireCode(t, err, apperrors.CodeForbidden)

	_, err = f.catalog.SetAgentStatus(ctx, f.admin, "agent-2", domain.AgentStatusBusy)
	requireCode(t, err, apperrors.CodeValidation)

	agents, err := f.catalog.ListAgents(ctx, f.agent, f.unit.ID)
	require.NoError(t, err)
	assert.Len(t, agents, 3)
}

func TestUpdateQueueChangesCapacity(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	f.enqueue(t, "")

	_, err := f.tickets.Enqueue(ctx, f.kiosk, EnqueueInput{QueueID: f.queue.ID, ServiceID: f.service.ID})
	requireCode(t, err, apperrors.CodeCapacityExceeded)

	zero := 0
	_, err = f.catalog.UpdateQueue(ctx, f.admin, f.queue.ID, QueueUpdate{MaxCapacity: &zero})
	requireCode(t, err, apperrors.CodeValidation)

	two, name := 2, "  Front desk "
	updated, err := f.catalog.UpdateQueue(ctx, f.admin, f.queue.ID, QueueUpdate{MaxCapacity: &two, Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Front desk", updated.Name)
	assert.Equal(t, int64(2), updated.Version)

	ticket := f.enqueue(t, "")
	assert.Equal(t, "A002", ticket.Number)

	_, err = f.catalog.UpdateQueue(ctx, f.agent, f.queue.ID, QueueUpdate{MaxCapacity: &two})
	requireCode(t, err, apperrors.CodeForbidden)
}
