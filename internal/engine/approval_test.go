package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hivemind-labs/hiveflow/internal/core"
)

func TestGateDeliversToBlockedWaiter(t *testing.T) {
	g := NewApprovalGate()

	done := make(chan core.ApprovalStatus, 1)
	go func() {
		decision, err := g.Await(context.Background(), "wf-1")
		if err == nil {
			done <- decision
		}
	}()

	require.Eventually(t, func() bool { return g.Pending("wf-1") }, time.Second, 5*time.Millisecond)
	g.Decide("wf-1", core.ApprovalApproved)

	select {
	case decision := <-done:
		assert.Equal(t, core.ApprovalApproved, decision)
	case <-time.After(time.Second):
		t.Fatal("waiter never resumed")
	}
	assert.False(t, g.Pending("wf-1"))
}

func TestGateQueuesEarlyDecisions(t *testing.T) {
	g := NewApprovalGate()

	g.Decide("wf-1", core.ApprovalRejected)
	g.Decide("wf-1", core.ApprovalApproved)

	first, err := g.Await(context.Background(), "wf-1")
	require.NoError(t, err)
	assert.Equal(t, core.ApprovalRejected, first)

	second, err := g.Await(context.Background(), "wf-1")
	require.NoError(t, err)
	assert.Equal(t, core.ApprovalApproved, second)
}

func TestGateAwaitHonorsContext(t *testing.T) {
	g := NewApprovalGate()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := g.Await(ctx, "wf-1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, g.Pending("wf-1"))
}

func TestGateDecisionsAreIsolatedByWorkflow(t *testing.T) {
	g := NewApprovalGate()
	g.Decide("wf-other", core.ApprovalApproved)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := g.Await(ctx, "wf-1")
	assert.Error(t, err)
}
