package engine

import (
	"context"
	"sync"

	"github.com/hivemind-labs/hiveflow/internal/core"
)

// ApprovalGate bridges the HTTP surface and a workflow blocked at the
// human approval phase. Decisions posted before the workflow reaches
// the gate are queued and consumed in order.
type ApprovalGate struct {
	mu      sync.Mutex
	waiters map[string]chan core.ApprovalStatus
	queued  map[string][]core.ApprovalStatus
}

// NewApprovalGate creates an empty gate.
func NewApprovalGate() *ApprovalGate {
	return &ApprovalGate{
		waiters: make(map[string]chan core.ApprovalStatus),
		queued:  make(map[string][]core.ApprovalStatus),
	}
}

// Decide records a decision for a workflow. A blocked workflow resumes
// immediately; otherwise the decision is queued.
func (g *ApprovalGate) Decide(workflowID string, decision core.ApprovalStatus) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if ch, ok := g.waiters[workflowID]; ok {
		delete(g.waiters, workflowID)
		ch <- decision
		return
	}
	g.queued[workflowID] = append(g.queued[workflowID], decision)
}

// Await blocks until a decision lands or the context expires.
func (g *ApprovalGate) Await(ctx context.Context, workflowID string) (core.ApprovalStatus, error) {
	g.mu.Lock()
	if q := g.queued[workflowID]; len(q) > 0 {
		decision := q[0]
		if len(q) == 1 {
			delete(g.queued, workflowID)
		} else {
			g.queued[workflowID] = q[1:]
		}
		g.mu.Unlock()
		return decision, nil
	}

	ch := make(chan core.ApprovalStatus, 1)
	g.waiters[workflowID] = ch
	g.mu.Unlock()

	select {
	case decision := <-ch:
		return decision, nil
	case <-ctx.Done():
		g.mu.Lock()
		delete(g.waiters, workflowID)
		g.mu.Unlock()
		return "", ctx.Err()
	}
}

// Pending reports whether a workflow is blocked at the gate.
func (g *ApprovalGate) Pending(workflowID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.waiters[workflowID]
	return ok
}
