package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/spec-kit/queue-service/pkg/util/errorutil"
)

func TestPositionFollowsCallOrder(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()

	normal := f.enqueue(t, "normal")
	position, err := f.estimator.Position(ctx, f.kiosk, normal.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, position)

	f.clock.Advance(time.Minute)
	high := f.enqueue(t, "high")

	position, err = f.estimator.Position(ctx, f.kiosk, normal.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, position)
	position, err = f.estimator.Position(ctx, f.kiosk, high.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, position)
}

func TestPositionIsUndefinedOnceCalled(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()
	ticket := f.enqueue(t, "")
	_, err := f.tickets.Call(ctx, f.agent, ticket.ID)
	require.NoError(t, err)

	_, err = f.estimator.Position(ctx, f.kiosk, ticket.ID)
	requireCode(t, err, apperrors.CodeValidation)

	_, err = f.estimator.Position(ctx, f.kiosk, "missing")
	requireCode(t, err, apperrors.CodeNotFound)
}

func TestEstimateFallsBackToServiceEstimate(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()
	f.enqueue(t, "")
	f.clock.Advance(time.Second)
	f.enqueue(t, "")
	f.clock.Advance(time.Second)
	third := f.enqueue(t, "")

	estimate, err := f.estimator.Estimate(ctx, f.kiosk, third.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, estimate.Position)
	assert.Equal(t, 10.0, estimate.AverageServiceMinutes)
	assert.Equal(t, 0, estimate.ActiveAgents)
	assert.Equal(t, 30, estimate.EstimatedWaitMinutes)

	minutes, err := f.estimator.EstimatedWaitMinutes(ctx, f.kiosk, third.ID)
	require.NoError(t, err)
	assert.Equal(t, 30, minutes)
}

func TestEstimateUsesRecentSessionsAndActiveAgents(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()

	served := f.enqueue(t, "")
	session := f.start(t, served.ID, "agent-1")
	f.clock.Advance(4 * time.Minute)
	_, err := f.sessions.Complete(ctx, f.agent, session.ID, "")
	require.NoError(t, err)

	busy := f.enqueue(t, "")
	f.start(t, busy.ID, "agent-1")
	other := f.enqueue(t, "")
	f.start(t, other.ID, "agent-2")

	f.enqueue(t, "")
	f.clock.Advance(time.Second)
	last := f.enqueue(t, "")

	estimate, err := f.estimator.Estimate(ctx, f.kiosk, last.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, estimate.Position)
	assert.InDelta(t, 4.0, estimate.AverageServiceMinutes, 0.001)
	assert.Equal(t, 2, estimate.ActiveAgents)
	assert.Equal(t, 4, estimate.EstimatedWaitMinutes)
}

func TestWaitMinutes(t *testing.T) {
	cases := []struct {
		name     string
		position int
		average  float64
		agents   int
		want     int
	}{
		{name: "single agent", position: 3, average: 10, agents: 1, want: 30},
		{name: "no agents counts as one", position: 2, average: 7.5, agents: 0, want: 15},
		{name: "rounds up", position: 1, average: 10, agents: 3, want: 4},
		{name: "no history", position: 5, average: 0, agents: 2, want: 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, WaitMinutes(tc.position, tc.average, tc.agents))
		})
	}
}
