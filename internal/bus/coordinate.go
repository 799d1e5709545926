package bus

import (
	"context"
	"time"

	"github.com/hivemind-labs/hiveflow/internal/core"
	"github.com/hivemind-labs/hiveflow/internal/events"
)

// Polling defaults for response collection.
const (
	DefaultCollectTimeout = 30 * time.Second
	DefaultPollInterval   = 500 * time.Millisecond
)

// CoordinationResult records the outcome of a task coordination round.
type CoordinationResult struct {
	TaskID         core.TaskID `json:"task_id"`
	AssignedAgents []string    `json:"assigned_agents"`
	SuitableAgents []string    `json:"suitable_agents"`
}

// CollectedResponse is one agent's contribution at collection time.
// TimedOut is set when the agent had no terminal task at the deadline.
type CollectedResponse struct {
	AgentID  string     `json:"agent_id"`
	Task     *core.Task `json:"task,omitempty"`
	TimedOut bool       `json:"timed_out"`
}

// Coordinate assigns a task. Preferred agents are tried first, then
// any registered agent that accepts; assignment is delivered as a
// task_assignment message so processing starts asynchronously.
func (b *Bus) Coordinate(task *core.Task, preferred []string) (*CoordinationResult, error) {
	if err := task.Validate(); err != nil {
		return nil, err
	}

	candidates := b.candidateOrder(preferred)

	result := &CoordinationResult{TaskID: task.ID}
	var assigned core.Agent
	for _, agent := range candidates {
		if !agent.Accept(task) {
			continue
		}
		result.SuitableAgents = append(result.SuitableAgents, agent.ID())
		if assigned == nil {
			assigned = agent
		}
	}
	if assigned == nil {
		return nil, core.ErrUnavailable(core.CodeNoSuitableAgent, "no agent accepts task type "+string(task.Type))
	}

	result.AssignedAgents = []string{assigned.ID()}

	msg := core.NewMessage("bus", assigned.ID(), core.MsgTaskAssignment, map[string]interface{}{
		"task": task,
	}).WithTask(task.ID)
	if err := b.Send(msg); err != nil {
		return nil, err
	}

	b.mu.Lock()
	b.assignments[task.ID] = result.AssignedAgents
	b.mu.Unlock()

	if b.events != nil {
		b.events.Publish(events.NewTaskAssignedEvent("", string(task.ID), assigned.ID()))
	}
	b.logger.Debug("task coordinated", "task_id", task.ID, "agent", assigned.ID(), "suitable", len(result.SuitableAgents))
	return result, nil
}

// candidateOrder returns registered agents with the preferred ones
// first. Unknown preferred IDs are skipped.
func (b *Bus) candidateOrder(preferred []string) []core.Agent {
	b.mu.Lock()
	defer b.mu.Unlock()

	seen := make(map[string]bool, len(preferred))
	out := make([]core.Agent, 0, len(b.agents))
	for _, id := range preferred {
		if a, ok := b.agents[id]; ok {
			out = append(out, a)
			seen[id] = true
		}
	}
	for id, a := range b.agents {
		if !seen[id] {
			out = append(out, a)
		}
	}
	return out
}

// Assignment returns the agents a task was assigned to.
func (b *Bus) Assignment(taskID core.TaskID) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.assignments[taskID]...)
}

// Collect polls the assigned agents for terminal results until all
// respond or the timeout elapses. Agents still running at the deadline
// are recorded as timed out.
func (b *Bus) Collect(ctx context.Context, taskID core.TaskID, timeout, poll time.Duration) []CollectedResponse {
	if timeout <= 0 {
		timeout = DefaultCollectTimeout
	}
	if poll <= 0 {
		poll = DefaultPollInterval
	}

	agentIDs := b.Assignment(taskID)
	pending := make(map[string]bool, len(agentIDs))
	for _, id := range agentIDs {
		pending[id] = true
	}
	collected := make(map[string]*core.Task, len(agentIDs))

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for len(pending) > 0 {
		for id := range pending {
			agent, ok := b.Agent(id)
			if !ok {
				delete(pending, id)
				continue
			}
			if t, found := agent.LookupTask(taskID); found && t.IsTerminal() {
				collected[id] = t
				delete(pending, id)
			}
		}
		if len(pending) == 0 {
			break
		}

		select {
		case <-ctx.Done():
		case <-deadline.C:
		case <-ticker.C:
			continue
		}
		break
	}

	out := make([]CollectedResponse, 0, len(agentIDs))
	for _, id := range agentIDs {
		if t, ok := collected[id]; ok {
			out = append(out, CollectedResponse{AgentID: id, Task: t})
		} else {
			out = append(out, CollectedResponse{AgentID: id, TimedOut: true})
		}
	}
	return out
}

// Await polls a single agent for the terminal result of a task,
// returning as soon as it lands or the context expires. It polls at a
// tighter cadence than Collect since callers block on it.
func (b *Bus) Await(ctx context.Context, agentID string, taskID core.TaskID) (*core.Task, error) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		agent, ok := b.Agent(agentID)
		if !ok {
			return nil, core.ErrNotFound("agent", agentID)
		}
		if t, found := agent.LookupTask(taskID); found && t.IsTerminal() {
			return t, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
