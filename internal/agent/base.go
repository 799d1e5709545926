// Package agent implements the worker contract shared by all agents
// and the concrete role variants: the planner family, the repository
// analyst and the coder. Variants are values built from a role tag, a
// capability set and an execute closure rather than subclasses.
package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hivemind-labs/hiveflow/internal/core"
	"github.com/hivemind-labs/hiveflow/internal/logging"
	"github.com/hivemind-labs/hiveflow/internal/memory"
)

// finishedRetention bounds the ring of terminal tasks kept for
// collection before garbage collection drops them.
const finishedRetention = 64

// ExecuteFunc is the role-specific work of an agent. It returns the
// result map for a completed task or an error for a failed one.
type ExecuteFunc func(ctx context.Context, a *Base, task *core.Task) (map[string]interface{}, error)

// Options configures a base agent.
type Options struct {
	ID                 string
	Role               string
	Name               string
	Capabilities       []string
	MaxConcurrentTasks int
	TaskTimeout        time.Duration
	HistorySize        int
	Logger             *logging.Logger
	Execute            ExecuteFunc
}

// Base is the shared agent implementation. Role variants provide the
// execute closure; everything else (lifecycle, memory, messaging,
// the process pipeline) is common.
type Base struct {
	id           string
	role         string
	name         string
	capabilities []string
	capSet       map[string]bool
	maxTasks     int
	taskTimeout  time.Duration
	execute      ExecuteFunc
	logger       *logging.Logger

	// Memory is owned solely by this agent.
	Memory *memory.Store

	mu            sync.Mutex
	active        bool
	current       map[core.TaskID]*core.Task
	cancels       map[core.TaskID]context.CancelFunc
	finished      map[core.TaskID]*core.Task
	finishedOrder []core.TaskID
	partners      map[string]bool
	completed     int
	failed        int
}

// New creates a base agent from options.
func New(opts Options) *Base {
	if opts.ID == "" {
		opts.ID = opts.Role + "-" + uuid.NewString()[:8]
	}
	if opts.Name == "" {
		opts.Name = opts.Role
	}
	if opts.MaxConcurrentTasks <= 0 {
		opts.MaxConcurrentTasks = 3
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}

	capSet := make(map[string]bool, len(opts.Capabilities))
	for _, c := range opts.Capabilities {
		capSet[c] = true
	}

	return &Base{
		id:           opts.ID,
		role:         opts.Role,
		name:         opts.Name,
		capabilities: opts.Capabilities,
		capSet:       capSet,
		maxTasks:     opts.MaxConcurrentTasks,
		taskTimeout:  opts.TaskTimeout,
		execute:      opts.Execute,
		logger:       opts.Logger.WithAgent(opts.ID),
		Memory:       memory.NewStore(opts.HistorySize),
		current:      make(map[core.TaskID]*core.Task),
		cancels:      make(map[core.TaskID]context.CancelFunc),
		finished:     make(map[core.TaskID]*core.Task),
		partners:     make(map[string]bool),
	}
}

// ID returns the unique agent identifier.
func (a *Base) ID() string { return a.id }

// Role returns the role tag.
func (a *Base) Role() string { return a.role }

// Name returns the display name.
func (a *Base) Name() string { return a.name }

// Capabilities returns the advertised capability set.
func (a *Base) Capabilities() []string {
	out := make([]string, len(a.capabilities))
	copy(out, a.capabilities)
	return out
}

// Start activates the agent.
func (a *Base) Start() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.active = true
}

// Stop deactivates the agent: no new tasks are accepted, in-flight
// tasks are cancelled, and session memory is cleared.
func (a *Base) Stop() {
	a.mu.Lock()
	a.active = false
	cancels := make([]context.CancelFunc, 0, len(a.cancels))
	for _, cancel := range a.cancels {
		cancels = append(cancels, cancel)
	}
	a.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	a.Memory.ClearShort()
}

// Accept reports whether the agent will take the task: it must be
// active, below its concurrency cap, and capable of the task type.
func (a *Base) Accept(task *core.Task) bool {
	if task == nil {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.active {
		return false
	}
	if len(a.current) >= a.maxTasks {
		return false
	}
	return a.capSet[core.CapabilityFor(task.Type)]
}

// reserve atomically claims a concurrency slot for an assignment.
// Accept answers the same question without side effects; assignments
// go through reserve so two racing assignments cannot both land on the
// last free slot.
func (a *Base) reserve(task *core.Task) bool {
	if task == nil {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.active || !a.capSet[core.CapabilityFor(task.Type)] {
		return false
	}
	if _, exists := a.current[task.ID]; exists {
		return false
	}
	if len(a.current) >= a.maxTasks {
		return false
	}
	a.current[task.ID] = task
	return true
}

// Process runs the task to a terminal state. Failures are local: the
// returned task carries the outcome and no error escapes. The agent
// owns the task from here on; every status transition happens under
// the same lock LookupTask clones under, so readers never observe a
// half-written task.
func (a *Base) Process(ctx context.Context, task *core.Task) *core.Task {
	runCtx := ctx
	var cancel context.CancelFunc
	if a.taskTimeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, a.taskTimeout)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}

	a.mu.Lock()
	reserved := a.current[task.ID] == task
	if !reserved {
		if len(a.current) >= a.maxTasks {
			a.mu.Unlock()
			cancel()
			a.logger.Warn("task rejected at capacity", "task_id", task.ID)
			return task.Clone()
		}
		a.current[task.ID] = task
	}
	if err := task.MarkInProgress(a.id); err != nil {
		if !reserved {
			delete(a.current, task.ID)
		}
		a.mu.Unlock()
		cancel()
		a.logger.Warn("task not startable", "task_id", task.ID, "error", err)
		return task.Clone()
	}
	a.cancels[task.ID] = cancel
	a.mu.Unlock()

	a.Memory.ClearWorking()
	a.Memory.SetWorking("task_id", string(task.ID))

	result, err := a.runExecute(runCtx, task)

	// Working memory is cleared on every exit path.
	a.Memory.ClearWorking()
	cancel()

	a.mu.Lock()
	switch {
	case err == nil:
		_ = task.MarkCompleted(result)
		a.completed++
	case runCtx.Err() != nil:
		_ = task.MarkCancelled(runCtx.Err().Error())
	default:
		_ = task.MarkFailed(err)
		a.failed++
	}
	delete(a.current, task.ID)
	delete(a.cancels, task.ID)
	a.retain(task)
	done := task.Clone()
	a.mu.Unlock()

	switch done.Status {
	case core.TaskStatusCompleted:
		a.logger.Debug("task completed", "task_id", done.ID, "type", done.Type)
	case core.TaskStatusCancelled:
		a.logger.Info("task cancelled", "task_id", done.ID)
	default:
		a.logger.Warn("task failed", "task_id", done.ID, "error", done.Error)
	}
	return done
}

// runExecute invokes the role-specific execute, converting panics into
// task failures so they never propagate out of Process.
func (a *Base) runExecute(ctx context.Context, task *core.Task) (result map[string]interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = core.ErrExecution(core.CodeAgentFailed, fmt.Sprintf("execute panicked: %v", r))
		}
	}()

	if a.execute == nil {
		return nil, core.ErrExecution(core.CodeAgentFailed, "agent has no execute function")
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return a.execute(ctx, a, task)
}

// retain keeps a terminal task in the bounded finished ring. Caller
// holds the mutex.
func (a *Base) retain(task *core.Task) {
	a.finished[task.ID] = task.Clone()
	a.finishedOrder = append(a.finishedOrder, task.ID)
	for len(a.finishedOrder) > finishedRetention {
		oldest := a.finishedOrder[0]
		a.finishedOrder = a.finishedOrder[1:]
		delete(a.finished, oldest)
	}
}

// LookupTask returns a clone of an in-flight or recently finished task.
func (a *Base) LookupTask(id core.TaskID) (*core.Task, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if t, ok := a.current[id]; ok {
		return t.Clone(), true
	}
	if t, ok := a.finished[id]; ok {
		return t.Clone(), true
	}
	return nil, false
}

// Receive handles a bus message. Built-in handlers cover collaboration
// requests, task assignment and status inquiries; unknown types are
// logged and ignored.
func (a *Base) Receive(ctx context.Context, msg *core.Message) (*core.Message, error) {
	a.Memory.Remember(msg)

	switch msg.Type {
	case core.MsgCollaborationRequest:
		a.mu.Lock()
		a.partners[msg.From] = true
		a.mu.Unlock()
		return core.NewMessage(a.id, msg.From, core.MsgCollaborationAccepted, map[string]interface{}{
			"capabilities": a.Capabilities(),
		}), nil

	case core.MsgTaskAssignment:
		task, ok := msg.Content["task"].(*core.Task)
		if !ok {
			return nil, core.ErrValidation("BAD_ASSIGNMENT", "task_assignment without task payload")
		}
		accepted := a.reserve(task)
		if accepted {
			go a.Process(context.WithoutCancel(ctx), task)
		}
		return core.NewMessage(a.id, msg.From, core.MsgTaskResponse, map[string]interface{}{
			"task_id":  string(task.ID),
			"accepted": accepted,
		}).WithTask(task.ID), nil

	case core.MsgStatusInquiry:
		return core.NewMessage(a.id, msg.From, core.MsgStatusResponse, map[string]interface{}{
			"status": a.Status(),
		}), nil

	default:
		a.logger.Debug("unhandled message type", "type", msg.Type, "from", msg.From)
		return nil, nil
	}
}

// Status returns a point-in-time snapshot.
func (a *Base) Status() core.AgentStatus {
	a.mu.Lock()
	defer a.mu.Unlock()

	tasks := make([]core.TaskID, 0, len(a.current))
	for id := range a.current {
		tasks = append(tasks, id)
	}
	partners := make([]string, 0, len(a.partners))
	for p := range a.partners {
		partners = append(partners, p)
	}

	return core.AgentStatus{
		ID:                 a.id,
		Role:               a.role,
		Name:               a.name,
		Active:             a.active,
		Capabilities:       a.Capabilities(),
		CurrentTasks:       tasks,
		MaxConcurrentTasks: a.maxTasks,
		Partners:           partners,
		TasksCompleted:     a.completed,
		TasksFailed:        a.failed,
	}
}
