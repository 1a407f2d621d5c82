package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/queue-service/internal/domain"
	"github.com/spec-kit/queue-service/internal/events"
	apperrors "github.com/spec-kit/queue-service/pkg/util/errorutil"
)

func TestEnqueueNumbersTicketsPerQueueAndDay(t *testing.T) {
	f := newFixture(t, 10)

	first := f.enqueue(t, "")
	second := f.enqueue(t, "high")

	assert.Equal(t, "A001", first.Number)
	assert.Equal(t, "A002", second.Number)
	assert.Equal(t, domain.TicketPriorityNormal, first.Priority)
	assert.Equal(t, domain.TicketPriorityHigh, second.Priority)
	assert.Equal(t, domain.TicketStatusWaiting, first.Status)
	assert.Equal(t, f.unit.ID, first.UnitID)

	f.clock.Advance(24 * time.Hour)
	nextDay := f.enqueue(t, "")
	assert.Equal(t, "A001", nextDay.Number)
	assert.NotEqual(t, first.IssueDay, nextDay.IssueDay)
}

func TestEnqueueUsesUnitTimezoneForIssueDay(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()

	unit, err := f.catalog.CreateUnit(ctx, f.admin, UnitInput{Name: "Tokyo", Timezone: "Asia/Tokyo"})
	require.NoError(t, err)
	svc, err := f.catalog.CreateService(ctx, f.admin, ServiceInput{UnitID: unit.ID, Name: "Desk", EstimatedMinutes: 5})
	require.NoError(t, err)
	queue, err := f.catalog.CreateQueue(ctx, f.admin, QueueInput{UnitID: unit.ID, Code: "T", Name: "Tokyo", MaxCapacity: 10})
	require.NoError(t, err)

	// 23:30 UTC is already the next morning in Tokyo.
	f.clock.Set(time.Date(2025, 3, 3, 23, 30, 0, 0, time.UTC))
	ticket, err := f.tickets.Enqueue(ctx, f.kiosk, EnqueueInput{QueueID: queue.ID, ServiceID: svc.ID})
	require.NoError(t, err)
	assert.Equal(t, "2025-03-04", ticket.IssueDay)
	assert.Equal(t, "T001", ticket.Number)
}

func TestEnqueueRejectsWhenCapacityReached(t *testing.T) {
	f := newFixture(t, 2)

	f.enqueue(t, "")
	f.enqueue(t, "")

	_, err := f.tickets.Enqueue(context.Background(), f.kiosk, EnqueueInput{QueueID: f.queue.ID, ServiceID: f.service.ID})
	requireCode(t, err, apperrors.CodeCapacityExceeded)

	waiting, err := f.tickets.ListWaiting(context.Background(), f.agent, f.queue.ID)
	require.NoError(t, err)
	assert.Len(t, waiting, 2)
}

func TestEnqueueFreesCapacityOnceTicketLeavesWaiting(t *testing.T) {
	f := newFixture(t, 1)
	ticket := f.enqueue(t, "")

	_, err := f.tickets.Call(context.Background(), f.agent, ticket.ID)
	require.NoError(t, err)

	second := f.enqueue(t, "")
	assert.Equal(t, "A002", second.Number)
}

func TestEnqueueRejectsWhenQueueNotOpen(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()

	_, err := f.queues.Pause(ctx, f.admin, f.queue.ID, "lunch")
	require.NoError(t, err)
	_, err = f.tickets.Enqueue(ctx, f.kiosk, EnqueueInput{QueueID: f.queue.ID, ServiceID: f.service.ID})
	requireCode(t, err, apperrors.CodeQueueClosed)

	_, err = f.queues.Resume(ctx, f.admin, f.queue.ID, "")
	require.NoError(t, err)
	inactive := false
	_, err = f.catalog.UpdateQueue(ctx, f.admin, f.queue.ID, QueueUpdate{IsActive: &inactive})
	require.NoError(t, err)
	_, err = f.tickets.Enqueue(ctx, f.kiosk, EnqueueInput{QueueID: f.queue.ID, ServiceID: f.service.ID})
	requireCode(t, err, apperrors.CodeQueueClosed)
}

func TestEnqueueValidatesInput(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()

	_, err := f.tickets.Enqueue(ctx, f.kiosk, EnqueueInput{QueueID: f.queue.ID, ServiceID: f.service.ID, Priority: "CRITICAL"})
	requireCode(t, err, apperrors.CodeValidation)

	_, err = f.tickets.Enqueue(ctx, f.kiosk, EnqueueInput{QueueID: "missing", ServiceID: f.service.ID})
	requireCode(t, err, apperrors.CodeNotFound)

	other, err := f.catalog.CreateUnit(ctx, f.admin, UnitInput{Name: "Other"})
	require.NoError(t, err)
	foreign, err := f.catalog.CreateService(ctx, f.admin, ServiceInput{UnitID: other.ID, Name: "Elsewhere", EstimatedMinutes: 5})
	require.NoError(t, err)
	_, err = f.tickets.Enqueue(ctx, f.kiosk, EnqueueInput{QueueID: f.queue.ID, ServiceID: foreign.ID})
	requireCode(t, err, apperrors.CodeValidation)

	_, err = f.tickets.Enqueue(ctx, domain.Actor{}, EnqueueInput{QueueID: f.queue.ID, ServiceID: f.service.ID})
	requireCode(t, err, apperrors.CodeUnauthorized)
}

func TestConcurrentEnqueueNeverExceedsCapacity(t *testing.T) {
	f := newFixture(t, 5)

	const callers = 20
	var wg sync.WaitGroup
	results := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.tickets.Enqueue(context.Background(), f.kiosk, EnqueueInput{QueueID: f.queue.ID, ServiceID: f.service.ID})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var ok, rejected int
	for err := range results {
		if err == nil {
			ok++
			continue
		}
		requireCode(t, err, apperrors.CodeCapacityExceeded)
		rejected++
	}
	assert.Equal(t, 5, ok)
	assert.Equal(t, 15, rejected)

	waiting, err := f.tickets.ListWaiting(context.Background(), f.agent, f.queue.ID)
	require.NoError(t, err)
	numbers := map[string]bool{}
	for _, ticket := range waiting {
		numbers[ticket.Number] = true
	}
	assert.Len(t, numbers, 5)
}

func TestNextCandidateOrdersByPriorityThenIssueTime(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()

	_, err := f.tickets.NextCandidate(ctx, f.agent, f.queue.ID)
	requireCode(t, err, apperrors.CodeNotFound)

	low := f.enqueue(t, "low")
	f.clock.Advance(time.Second)
	normal := f.enqueue(t, "normal")
	f.clock.Advance(time.Second)
	urgent := f.enqueue(t, "urgent")
	f.clock.Advance(time.Second)
	normalLater := f.enqueue(t, "normal")

	waiting, err := f.tickets.ListWaiting(ctx, f.agent, f.queue.ID)
	require.NoError(t, err)
	ids := make([]string, 0, len(waiting))
	for _, ticket := range waiting {
		ids = append(ids, ticket.ID)
	}
	assert.Equal(t, []string{urgent.ID, normal.ID, normalLater.ID, low.ID}, ids)

	next, err := f.tickets.NextCandidate(ctx, f.agent, f.queue.ID)
	require.NoError(t, err)
	assert.Equal(t, urgent.ID, next.ID)
	assert.Equal(t, domain.TicketStatusWaiting, next.Status)
}

func TestCallNextCallsTheCandidate(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()
	first := f.enqueue(t, "")
	f.clock.Advance(time.Second)
	f.enqueue(t, "")

	called, err := f.tickets.CallNext(ctx, f.agent, f.queue.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, called.ID)
	assert.Equal(t, domain.TicketStatusCalled, called.Status)
	require.NotNil(t, called.CalledAt)
	assert.Equal(t, t0.Add(time.Second), *called.CalledAt)
}

func TestTicketLifecycleRecordsHistoryAndEvents(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()
	ticket := f.enqueue(t, "")

	f.clock.Advance(time.Minute)
	session := f.start(t, ticket.ID, "agent-1")
	assert.Equal(t, domain.SessionStatusInProgress, session.Status)
	assert.Equal(t, domain.AgentStatusBusy, f.agentStatus(t, "agent-1"))

	f.clock.Advance(10 * time.Minute)
	done, err := f.tickets.Complete(ctx, f.agent, ticket.ID, "resolved")
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusCompleted, done.Status)
	assert.Equal(t, "resolved", done.CompletionNotes)
	assert.Equal(t, domain.AgentStatusAvailable, f.agentStatus(t, "agent-1"))

	closed, err := f.sessions.Get(ctx, f.agent, session.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionStatusCompleted, closed.Status)

	history, err := f.tickets.History(ctx, f.agent, ticket.ID)
	require.NoError(t, err)
	var statuses []string
	for _, entry := range history {
		statuses = append(statuses, fmt.Sprint(entry.NewValue["status"]))
	}
	require.Equal(t, []string{"WAITING", "CALLED", "IN_PROGRESS", "COMPLETED"}, statuses)
	assert.Equal(t, domain.ChangeTypeCreated, history[0].ChangeType)
	assert.Equal(t, "agent-1", history[1].ActorID)

	types := map[events.EventType]int{}
	for _, event := range f.outbox(t) {
		types[event.Type]++
	}
	assert.Equal(t, 1, types[events.EventTicketCreated])
	assert.Equal(t, 1, types[events.EventTicketCalled])
	assert.Equal(t, 1, types[events.EventTicketStarted])
	assert.Equal(t, 1, types[events.EventTicketCompleted])
	assert.Equal(t, 1, types[events.EventSessionStarted])
	assert.Equal(t, 1, types[events.EventSessionCompleted])
}

func TestTicketTransitionsRejectIllegalMoves(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()
	ticket := f.enqueue(t, "")

	_, _, err := f.tickets.Start(ctx, f.agent, ticket.ID, StartInput{UserID: "agent-1"})
	requireCode(t, err, apperrors.CodeInvalidTransition)

	_, err = f.tickets.MarkNoShow(ctx, f.agent, ticket.ID)
	requireCode(t, err, apperrors.CodeInvalidTransition)

	_, err = f.tickets.Complete(ctx, f.agent, ticket.ID, "")
	requireCode(t, err, apperrors.CodeInvalidTransition)

	unchanged, err := f.tickets.Get(ctx, f.agent, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusWaiting, unchanged.Status)
	assert.Equal(t, ticket.Version, unchanged.Version)
}

func TestMarkNoShowFromCalled(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()
	ticket := f.enqueue(t, "")

	_, err := f.tickets.Call(ctx, f.agent, ticket.ID)
	require.NoError(t, err)
	noShow, err := f.tickets.MarkNoShow(ctx, f.agent, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusNoShow, noShow.Status)

	_, err = f.tickets.Cancel(ctx, f.agent, ticket.ID, "late")
	requireCode(t, err, apperrors.CodeInvalidTransition)
}

func TestCancelInProgressTicketCancelsSessionAndReleasesAgent(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()
	ticket := f.enqueue(t, "")
	session := f.start(t, ticket.ID, "agent-1")

	cancelled, err := f.tickets.Cancel(ctx, f.agent, ticket.ID, "customer left")
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusCancelled, cancelled.Status)
	assert.Equal(t, "customer left", cancelled.CancelReason)

	closed, err := f.sessions.Get(ctx, f.agent, session.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionStatusCancelled, closed.Status)
	assert.Equal(t, domain.AgentStatusAvailable, f.agentStatus(t, "agent-1"))
}

func TestTicketsOfAnotherTenantAreNotFound(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()
	ticket := f.enqueue(t, "")
	intruder := domain.Actor{TenantID: "tenant-b", UserID: "mallory", Role: domain.RoleAdmin}

	_, err := f.tickets.Get(ctx, intruder, ticket.ID)
	requireCode(t, err, apperrors.CodeNotFound)

	_, err = f.tickets.Call(ctx, intruder, ticket.ID)
	requireCode(t, err, apperrors.CodeNotFound)

	_, err = f.tickets.Enqueue(ctx, intruder, EnqueueInput{QueueID: f.queue.ID, ServiceID: f.service.ID})
	requireCode(t, err, apperrors.CodeNotFound)

	_, err = f.estimator.Position(ctx, intruder, ticket.ID)
	requireCode(t, err, apperrors.CodeNotFound)

	still, err := f.tickets.Get(ctx, f.agent, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusWaiting, still.Status)
}

func TestTicketCreatedEventIDIsStablePerTransition(t *testing.T) {
	f := newFixture(t, 10)
	ticket := f.enqueue(t, "")

	var created events.Event
	for _, event := range f.outbox(t) {
		if event.Type == events.EventTicketCreated {
			created = event
		}
	}
	require.NotEmpty(t, created.ID)
	assert.Equal(t, events.EventID(tenantID, events.EventTicketCreated, ticket.ID, 1), created.ID)
	assert.Equal(t, tenantID, created.TenantID)

	var snapshot events.TicketSnapshot
	decodeData(t, created, &snapshot)
	assert.Equal(t, ticket.ID, snapshot.ID)
	assert.Equal(t, "A001", snapshot.Number)

	_, err := f.tickets.Call(context.Background(), f.agent, ticket.ID)
	require.NoError(t, err)
	ids := map[string]bool{}
	for _, event := range f.outbox(t) {
		assert.False(t, ids[event.ID], "duplicate event id %s", event.ID)
		ids[event.ID] = true
	}
}
