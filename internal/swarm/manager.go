// Package swarm owns the agent roster and the submission surface: it
// spawns the default agents, registers them on the message bus, routes
// submitted tasks to the direct path, the multi-planner fan-out or the
// workflow engine, and serves task status and results.
package swarm

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hivemind-labs/hiveflow/internal/agent"
	"github.com/hivemind-labs/hiveflow/internal/bus"
	"github.com/hivemind-labs/hiveflow/internal/checkpoint"
	"github.com/hivemind-labs/hiveflow/internal/collab"
	"github.com/hivemind-labs/hiveflow/internal/config"
	"github.com/hivemind-labs/hiveflow/internal/core"
	"github.com/hivemind-labs/hiveflow/internal/engine"
	"github.com/hivemind-labs/hiveflow/internal/events"
	"github.com/hivemind-labs/hiveflow/internal/logging"
)

// Request is one submitted unit of work.
type Request struct {
	Objective        string
	Type             core.TaskType // empty means infer from objective
	Priority         core.Priority
	Context          map[string]interface{}
	RequiresApproval bool
}

// TaskResult is the finalized record served for a task.
type TaskResult struct {
	TaskID         core.TaskID            `json:"task_id"`
	Status         core.TaskStatus        `json:"status"`
	Result         map[string]interface{} `json:"result,omitempty"`
	Error          string                 `json:"error,omitempty"`
	AgentsInvolved []string               `json:"agents_involved,omitempty"`
	WorkflowID     string                 `json:"workflow_id,omitempty"`
	Workflow       *core.WorkflowResult   `json:"workflow,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`
	CompletedAt    *time.Time             `json:"completed_at,omitempty"`
}

// Deps are the manager's collaborators. Nil fields select stubs.
type Deps struct {
	Model      collab.LanguageModel
	Retriever  collab.Retriever
	Repository collab.Repository
	Checkpoint checkpoint.Store
	Events     *events.EventBus
	Logger     *logging.Logger
}

// Manager coordinates the swarm. One manager runs per process.
type Manager struct {
	cfg    *config.Config
	deps   Deps
	logger *logging.Logger

	bus    *bus.Bus
	engine *engine.Engine

	mu          sync.Mutex
	agents      map[string]core.Agent
	tasks       map[core.TaskID]*core.Task
	results     map[core.TaskID]*TaskResult
	workflows   map[core.TaskID]string // task -> workflow id
	initialized bool
	initErr     error
	wg          sync.WaitGroup
}

// NewManager creates an uninitialized manager.
func NewManager(cfg *config.Config, deps Deps) *Manager {
	if deps.Logger == nil {
		deps.Logger = logging.NewNop()
	}
	if deps.Model == nil {
		deps.Model = &collab.StubLanguageModel{}
	}
	if deps.Retriever == nil {
		deps.Retriever = collab.StubRetriever{}
	}
	if deps.Repository == nil {
		deps.Repository = &collab.MemoryRepository{}
	}
	if cfg == nil {
		cfg = &config.Config{}
	}
	return &Manager{
		cfg:       cfg,
		deps:      deps,
		logger:    deps.Logger,
		agents:    make(map[string]core.Agent),
		tasks:     make(map[core.TaskID]*core.Task),
		results:   make(map[core.TaskID]*TaskResult),
		workflows: make(map[core.TaskID]string),
	}
}

// Initialize spawns the default roster, wires the bus and the engine,
// and starts everything. It is idempotent; a failed first attempt is
// recorded and fails every later submission.
func (m *Manager) Initialize() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.initialized {
		return nil
	}
	if m.initErr != nil {
		return core.ErrState(core.CodeNotInitialized, "initialization previously failed").WithCause(m.initErr)
	}

	m.bus = bus.New(bus.Options{
		HistorySize: m.cfg.Agents.MessageHistorySize,
		Events:      m.deps.Events,
		Logger:      m.logger,
	})

	roster := m.defaultRoster()
	for _, a := range roster {
		if err := m.bus.Register(a); err != nil {
			m.initErr = err
			return core.ErrState(core.CodeNotInitialized, "registering roster").WithCause(err)
		}
		m.agents[a.ID()] = a
	}

	store := m.deps.Checkpoint
	if store == nil {
		store = checkpoint.NewMemoryStore()
	}
	engCfg := engine.Config{
		MaxRetries: m.cfg.Workflow.MaxRetries,
		Timeout:    m.cfg.Workflow.Timeout(),
	}
	m.engine = engine.New(m, m.bus, store, m.deps.Events, nil, m.logger, engCfg)

	m.bus.Start()
	for _, a := range roster {
		a.Start()
	}
	m.initialized = true
	m.logger.Info("swarm initialized", "agents", len(roster))
	return nil
}

// defaultRoster builds the five production agents.
func (m *Manager) defaultRoster() []core.Agent {
	plannerDeps := agent.PlannerDeps{Retriever: m.deps.Retriever, Logger: m.logger}
	return []core.Agent{
		agent.NewAnalyst(agent.AnalystDeps{
			Repository: m.deps.Repository,
			Model:      m.deps.Model,
			Logger:     m.logger,
		}),
		agent.NewCuttingEdgePlanner(plannerDeps),
		agent.NewConservativePlanner(plannerDeps),
		agent.NewSynthesisPlanner(plannerDeps),
		agent.NewCoder(agent.CoderDeps{Model: m.deps.Model, Logger: m.logger}),
	}
}

// Engine exposes the workflow engine for the HTTP surface.
func (m *Manager) Engine() *engine.Engine { return m.engine }

// Bus exposes the message bus.
func (m *Manager) Bus() *bus.Bus { return m.bus }

// AgentFor selects the agent handling a task within a role: the first
// registered agent of that role that accepts. The selection policy
// lives only here.
func (m *Manager) AgentFor(task *core.Task, role string) (core.Agent, error) {
	candidates := m.bus.AgentsByRole(role)
	for _, a := range candidates {
		if a.Accept(task) {
			return a, nil
		}
	}
	if len(candidates) == 0 {
		return nil, core.ErrUnavailable(core.CodeAgentNotFound, "no agent registered for role "+role)
	}
	return nil, core.ErrUnavailable(core.CodeNoSuitableAgent, "no "+role+" accepts task type "+string(task.Type))
}

// Submit queues a request and returns the task ID immediately; the
// work runs asynchronously.
func (m *Manager) Submit(ctx context.Context, req Request) (core.TaskID, error) {
	m.mu.Lock()
	if !m.initialized {
		err := m.initErr
		m.mu.Unlock()
		return "", core.ErrState(core.CodeNotInitialized, "swarm is not initialized").WithCause(err)
	}
	m.mu.Unlock()

	if req.Objective == "" {
		return "", core.ErrValidation(core.CodeEmptyObjective, "objective cannot be empty")
	}

	taskType, priority := req.Type, req.Priority
	if taskType == "" {
		inferred, inferredPriority := ParseRequest(req.Objective)
		taskType = inferred
		if priority == "" {
			priority = inferredPriority
		}
	}
	if priority == "" {
		priority = core.PriorityMedium
	}

	task := core.NewTask(req.Objective, taskType).
		WithDescription(req.Objective).
		WithPriority(priority).
		WithContext(req.Context)

	// The routed goroutine hands the task to an agent, which owns it
	// from then on; the registry keeps its own copy for serving status.
	m.mu.Lock()
	m.tasks[task.ID] = task.Clone()
	m.results[task.ID] = &TaskResult{
		TaskID:    task.ID,
		Status:    core.TaskStatusPending,
		CreatedAt: task.CreatedAt,
	}
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.route(context.WithoutCancel(ctx), task, req.RequiresApproval)
	}()

	m.logger.WithTask(string(task.ID)).Info("task submitted", "type", taskType, "priority", priority)
	return task.ID, nil
}

// route dispatches a task down one of the three execution paths.
func (m *Manager) route(ctx context.Context, task *core.Task, requiresApproval bool) {
	switch task.Type {
	case core.TaskTypeCodeGeneration, core.TaskTypeFeatureImplementation, core.TaskTypeBugFix:
		m.runWorkflow(ctx, task, requiresApproval)
	case core.TaskTypePlanning, core.TaskTypeArchitectureDesign:
		m.runPlanningFanOut(ctx, task)
	default:
		m.runDirect(ctx, task)
	}
}

// runDirect executes a task on a single agent through the bus.
func (m *Manager) runDirect(ctx context.Context, task *core.Task) {
	m.setStatus(task.ID, core.TaskStatusInProgress)

	coord, err := m.bus.Coordinate(task, nil)
	if err != nil {
		m.finishTask(task.ID, core.TaskStatusFailed, nil, err.Error(), nil)
		return
	}

	waitCtx, cancel := context.WithTimeout(ctx, m.collectTimeout())
	defer cancel()

	done, err := m.bus.Await(waitCtx, coord.AssignedAgents[0], task.ID)
	if err != nil {
		m.finishTask(task.ID, core.TaskStatusFailed, nil, "agent did not respond: "+err.Error(), coord.AssignedAgents)
		return
	}

	m.finishTask(task.ID, done.Status, done.Result, done.Error, coord.AssignedAgents)
}

// runPlanningFanOut runs the two competing planners in parallel, then
// feeds both plans to the synthesis planner.
func (m *Manager) runPlanningFanOut(ctx context.Context, task *core.Task) {
	m.setStatus(task.ID, core.TaskStatusPlanning)

	variants := []struct {
		role string
		key  string
	}{
		{core.RoleCuttingEdgePlanner, "cutting_edge"},
		{core.RoleConservativePlanner, "conservative"},
	}

	plans := make([]*core.Plan, len(variants))
	involved := make([]string, 0, 3)
	var involvedMu sync.Mutex

	// A plain group: one branch failing must not cancel the sibling's
	// wait, a lone surviving plan is still synthesized.
	var g errgroup.Group
	for i, v := range variants {
		i, v := i, v
		g.Go(func() error {
			child := core.NewTask(task.Title, core.TaskTypeTaskPlanning).
				WithDescription(task.Description).
				WithParent(task.ID).
				WithContext(task.Context)

			agentFor, err := m.AgentFor(child, v.role)
			if err != nil {
				return err
			}
			if _, err := m.bus.Coordinate(child, []string{agentFor.ID()}); err != nil {
				return err
			}

			waitCtx, cancel := context.WithTimeout(ctx, m.collectTimeout())
			defer cancel()
			done, err := m.bus.Await(waitCtx, agentFor.ID(), child.ID)
			if err != nil {
				return err
			}
			if !done.IsSuccess() {
				return core.ErrExecution(core.CodeAgentFailed, v.key+" planning failed: "+done.Error)
			}

			if p, ok := done.Result["plan"].(*core.Plan); ok {
				plans[i] = p
			}
			involvedMu.Lock()
			involved = append(involved, agentFor.ID())
			involvedMu.Unlock()
			return nil
		})
	}
	fanErr := g.Wait()

	cutting, conservative := plans[0], plans[1]
	if cutting == nil && conservative == nil {
		msg := "both planning branches failed"
		if fanErr != nil {
			msg = fanErr.Error()
		}
		m.finishTask(task.ID, core.TaskStatusFailed, nil, msg, involved)
		return
	}

	synthesisTask := core.NewTask(task.Title, core.TaskTypePlanSynthesis).
		WithDescription(task.Description).
		WithParent(task.ID).
		WithContext(map[string]interface{}{
			"cutting_edge_plan": cutting,
			"conservative_plan": conservative,
		})

	synthAgent, err := m.AgentFor(synthesisTask, core.RoleSynthesisPlanner)
	if err != nil {
		m.finishTask(task.ID, core.TaskStatusFailed, nil, err.Error(), involved)
		return
	}
	if _, err := m.bus.Coordinate(synthesisTask, []string{synthAgent.ID()}); err != nil {
		m.finishTask(task.ID, core.TaskStatusFailed, nil, err.Error(), involved)
		return
	}

	waitCtx, cancel := context.WithTimeout(ctx, m.collectTimeout())
	defer cancel()
	done, err := m.bus.Await(waitCtx, synthAgent.ID(), synthesisTask.ID)
	if err != nil {
		m.finishTask(task.ID, core.TaskStatusFailed, nil, "synthesis did not respond: "+err.Error(), involved)
		return
	}
	involved = append(involved, synthAgent.ID())

	if !done.IsSuccess() {
		m.finishTask(task.ID, core.TaskStatusFailed, nil, done.Error, involved)
		return
	}

	result := map[string]interface{}{
		"synthesis": done.Result["plan"],
	}
	if cutting != nil {
		result["cutting_edge"] = cutting
	}
	if conservative != nil {
		result["conservative"] = conservative
	}
	m.finishTask(task.ID, core.TaskStatusCompleted, result, "", involved)
}

// runWorkflow hands the task to the engine.
func (m *Manager) runWorkflow(ctx context.Context, task *core.Task, requiresApproval bool) {
	m.setStatus(task.ID, core.TaskStatusExecuting)

	result, err := m.engine.Run(ctx, task, requiresApproval)
	if result != nil {
		m.mu.Lock()
		m.workflows[task.ID] = result.WorkflowID
		m.mu.Unlock()
	}

	status := core.TaskStatusCompleted
	errMsg := ""
	var output map[string]interface{}
	var involved []string
	workflowID := ""

	if result != nil {
		output = result.Output
		involved = result.AgentsInvolved
		workflowID = result.WorkflowID
		switch result.Status {
		case core.WorkflowStatusCompleted:
			status = core.TaskStatusCompleted
		case core.WorkflowStatusCancelled:
			status = core.TaskStatusCancelled
		default:
			status = core.TaskStatusFailed
		}
	}
	if err != nil {
		errMsg = err.Error()
		if status == core.TaskStatusCompleted {
			status = core.TaskStatusFailed
		}
	}

	m.mu.Lock()
	if rec, ok := m.results[task.ID]; ok {
		rec.Workflow = result
		rec.WorkflowID = workflowID
	}
	m.mu.Unlock()

	m.finishTask(task.ID, status, output, errMsg, involved)
}

func (m *Manager) collectTimeout() time.Duration {
	if t := m.cfg.Agents.CollectTimeout(); t > 0 {
		return t
	}
	return bus.DefaultCollectTimeout
}

func (m *Manager) setStatus(id core.TaskID, status core.TaskStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.tasks[id]; ok {
		t.Status = status
	}
	if rec, ok := m.results[id]; ok {
		rec.Status = status
	}
}

func (m *Manager) finishTask(id core.TaskID, status core.TaskStatus, result map[string]interface{}, errMsg string, involved []string) {
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()

	if t, ok := m.tasks[id]; ok {
		t.Status = status
		t.Result = result
		t.Error = errMsg
		t.CompletedAt = &now
	}
	if rec, ok := m.results[id]; ok {
		rec.Status = status
		rec.Result = result
		rec.Error = errMsg
		rec.AgentsInvolved = involved
		rec.CompletedAt = &now
	}
	m.logger.WithTask(string(id)).Info("task finished", "status", status)
}

// Status returns a clone of a submitted task.
func (m *Manager) Status(id core.TaskID) (*core.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, core.ErrNotFound("task", string(id))
	}
	return t.Clone(), nil
}

// WorkflowID resolves the workflow attached to a task. Runs still in
// flight are resolved through the engine's live index so approval
// decisions can land before the run finishes.
func (m *Manager) WorkflowID(id core.TaskID) (string, bool) {
	m.mu.Lock()
	wf, ok := m.workflows[id]
	m.mu.Unlock()
	if ok {
		return wf, true
	}
	if m.engine == nil {
		return "", false
	}
	return m.engine.WorkflowForTask(id)
}

// Result returns the finalized record of a task.
func (m *Manager) Result(id core.TaskID) (*TaskResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.results[id]
	if !ok {
		return nil, core.ErrNotFound("task", string(id))
	}
	copyRec := *rec
	return &copyRec, nil
}

// List returns clones of all known tasks, newest first.
func (m *Manager) List() []*core.Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*core.Task, 0, len(m.tasks))
	for _, t := range m.tasks {
		out = append(out, t.Clone())
	}
	return out
}

// ActiveCount counts tasks not yet terminal.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.tasks {
		if !t.IsTerminal() {
			n++
		}
	}
	return n
}

// Agents returns status snapshots for the roster.
func (m *Manager) Agents() []core.AgentStatus {
	m.mu.Lock()
	agents := make([]core.Agent, 0, len(m.agents))
	for _, a := range m.agents {
		agents = append(agents, a)
	}
	m.mu.Unlock()

	out := make([]core.AgentStatus, 0, len(agents))
	for _, a := range agents {
		out = append(out, a.Status())
	}
	return out
}

// Shutdown cancels running work, stops the roster and closes the bus.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if !m.initialized {
		m.mu.Unlock()
		return nil
	}
	workflows := make(map[string]bool, len(m.workflows))
	for _, id := range m.workflows {
		workflows[id] = true
	}
	pending := make([]core.TaskID, 0, len(m.tasks))
	for id, t := range m.tasks {
		if !t.IsTerminal() {
			pending = append(pending, id)
		}
	}
	agents := make([]core.Agent, 0, len(m.agents))
	for _, a := range m.agents {
		agents = append(agents, a)
	}
	m.mu.Unlock()

	// Runs still inside the engine are only visible through its live
	// index; the workflows map is written after a run returns.
	for _, id := range pending {
		if wf, ok := m.WorkflowID(id); ok {
			workflows[wf] = true
		}
	}
	for wf := range workflows {
		m.engine.Cancel(wf)
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}

	for _, a := range agents {
		a.Stop()
	}
	m.bus.Close()

	m.mu.Lock()
	now := time.Now()
	for _, t := range m.tasks {
		if !t.IsTerminal() {
			t.Status = core.TaskStatusCancelled
			t.Error = "shutdown"
			t.CompletedAt = &now
		}
	}
	m.initialized = false
	m.mu.Unlock()

	m.logger.Info("swarm shut down")
	return ctx.Err()
}
