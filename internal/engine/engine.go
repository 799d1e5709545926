// Package engine executes the phased workflow graph: sequential phases
// with conditional routing, one parallel planning fan-out, bounded
// debug-retry loops, a human approval gate, and a checkpoint after
// every phase so interrupted runs resume where they stopped.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hivemind-labs/hiveflow/internal/bus"
	"github.com/hivemind-labs/hiveflow/internal/checkpoint"
	"github.com/hivemind-labs/hiveflow/internal/core"
	"github.com/hivemind-labs/hiveflow/internal/events"
	"github.com/hivemind-labs/hiveflow/internal/logging"
)

// Provider resolves the agent responsible for a task within a role.
// The selection policy is the provider's concern, not the engine's.
type Provider interface {
	AgentFor(task *core.Task, role string) (core.Agent, error)
}

// NoTimeout disables the global workflow deadline when set as
// Config.Timeout. A zero Timeout is a real deadline: the run is
// interrupted at its first suspension point.
const NoTimeout time.Duration = -1

// Config tunes the engine.
type Config struct {
	MaxRetries int
	Timeout    time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		MaxRetries: 3,
		Timeout:    1800 * time.Second,
	}
}

// Engine runs workflows over the phase graph.
type Engine struct {
	provider Provider
	bus      *bus.Bus
	store    checkpoint.Store
	events   *events.EventBus
	gate     *ApprovalGate
	logger   *logging.Logger
	cfg      Config
	graph    *Graph

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	states  map[string]*core.WorkflowState
	results map[string]*core.WorkflowResult
	byTask  map[core.TaskID]string
}

// New creates an engine.
func New(provider Provider, msgBus *bus.Bus, store checkpoint.Store, eventBus *events.EventBus, gate *ApprovalGate, logger *logging.Logger, cfg Config) *Engine {
	// Zero is a valid bound: the first unrepaired debug fails the run.
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = DefaultConfig().MaxRetries
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if gate == nil {
		gate = NewApprovalGate()
	}
	if store == nil {
		store = checkpoint.NewMemoryStore()
	}
	return &Engine{
		provider: provider,
		bus:      msgBus,
		store:    store,
		events:   eventBus,
		gate:     gate,
		logger:   logger,
		cfg:      cfg,
		graph:    CodeGenerationGraph(cfg.MaxRetries),
		cancels:  make(map[string]context.CancelFunc),
		states:   make(map[string]*core.WorkflowState),
		results:  make(map[string]*core.WorkflowResult),
		byTask:   make(map[core.TaskID]string),
	}
}

// Gate exposes the approval gate for the HTTP surface.
func (e *Engine) Gate() *ApprovalGate { return e.gate }

// Run executes a fresh workflow for the task and blocks until it
// reaches a terminal status.
func (e *Engine) Run(ctx context.Context, task *core.Task, requiresApproval bool) (*core.WorkflowResult, error) {
	state := core.NewWorkflowState(task.ID, task.Description, task.Type)
	if state.Description == "" {
		state.Description = task.Title
	}
	for k, v := range task.Context {
		state.Context[k] = v
	}
	state.RequiresHumanApproval = requiresApproval

	return e.execute(ctx, state, e.graph.start, nil)
}

// Resume continues a checkpointed workflow from the phase after its
// last completed one.
func (e *Engine) Resume(ctx context.Context, workflowID string) (*core.WorkflowResult, error) {
	cp, err := e.store.Latest(ctx, workflowID)
	if err != nil {
		return nil, core.ErrState(core.CodeCheckpointFailed, "loading checkpoint").WithCause(err)
	}
	if cp == nil {
		return nil, core.ErrNotFound("workflow checkpoint", workflowID)
	}

	state := cp.State.Snapshot()
	if state.IsTerminal() {
		return nil, core.ErrState(core.CodeInvalidState, "workflow already terminal: "+workflowID)
	}

	start, err := e.phaseAfter(state, cp.Phase)
	if err != nil {
		return nil, err
	}
	e.logger.WithWorkflow(workflowID).Info("resuming workflow", "from", cp.Phase, "at", start)
	return e.execute(ctx, state, start, nil)
}

// phaseAfter computes where execution continues after a checkpointed
// phase, re-evaluating the conditional edges against restored state.
func (e *Engine) phaseAfter(state *core.WorkflowState, completed core.Phase) (core.Phase, error) {
	if completed == core.PhaseParallelPlanning {
		return core.PhasePlanSynthesis, nil
	}
	if _, ok := e.graph.Parallel(completed); ok {
		// Fan-out checkpoint missing means the branches never ran.
		return core.PhaseParallelPlanning, nil
	}
	if edge, ok := e.graph.Conditional(completed); ok {
		next, ok := edge.targets[edge.condition(state)]
		if !ok {
			return core.PhaseEnd, nil
		}
		return next, nil
	}
	if next, ok := e.graph.Next(completed); ok {
		return next, nil
	}
	return "", core.ErrState(core.CodeUnknownPhase, fmt.Sprintf("no successor for phase %s", completed))
}

// Cancel aborts a running workflow.
func (e *Engine) Cancel(workflowID string) bool {
	e.mu.Lock()
	cancel, ok := e.cancels[workflowID]
	e.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// State returns a snapshot of a known workflow's state.
func (e *Engine) State(workflowID string) (*core.WorkflowState, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.states[workflowID]
	if !ok {
		return nil, false
	}
	return s.Snapshot(), true
}

// Result returns the finalized record of a workflow run.
func (e *Engine) Result(workflowID string) (*core.WorkflowResult, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.results[workflowID]
	return r, ok
}

// WorkflowForTask resolves the workflow started for a task. The index
// is written when the run starts so approvals can land mid-run.
func (e *Engine) WorkflowForTask(taskID core.TaskID) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	id, ok := e.byTask[taskID]
	return id, ok
}

// run bundles the engine-owned mutable pieces of one execution. The
// state mutex only matters during the parallel fan-out.
type run struct {
	mu     sync.Mutex
	state  *core.WorkflowState
	phases []core.NodeExecution
}

func (r *run) record(exec core.NodeExecution) {
	r.mu.Lock()
	r.phases = append(r.phases, exec)
	r.mu.Unlock()
}

// execute drives the graph from start until a terminal status.
func (e *Engine) execute(ctx context.Context, state *core.WorkflowState, start core.Phase, _ []core.NodeExecution) (*core.WorkflowResult, error) {
	var runCtx context.Context
	var cancel context.CancelFunc
	if e.cfg.Timeout >= 0 {
		runCtx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	e.mu.Lock()
	e.cancels[state.WorkflowID] = cancel
	e.states[state.WorkflowID] = state
	e.byTask[state.TaskID] = state.WorkflowID
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.cancels, state.WorkflowID)
		e.mu.Unlock()
	}()

	log := e.logger.WithWorkflow(state.WorkflowID)
	r := &run{state: state}
	startedAt := time.Now()
	state.Status = core.WorkflowStatusRunning
	if e.events != nil {
		e.events.Publish(events.NewWorkflowStartedEvent(state.WorkflowID, state.Description, string(state.TaskType)))
	}

	var runErr error
	current := start

loop:
	for current != core.PhaseEnd && !state.IsTerminal() {
		if err := runCtx.Err(); err != nil {
			runErr = e.interrupt(state, r, err)
			break
		}

		switch current {
		case core.PhaseParallelPlanning:
			// Resumed runs re-enter here when the fan-out was never
			// checkpointed; run the branches before joining.
			src, branches, ok := e.graph.FanOut()
			if !ok {
				runErr = core.ErrState(core.CodeUnknownPhase, "graph has no parallel stage")
				state.Status = core.WorkflowStatusFailed
				break loop
			}
			if err := e.fanOut(runCtx, r, branches); err != nil {
				if runCtx.Err() != nil {
					runErr = e.interrupt(state, r, runCtx.Err())
					break loop
				}
				state.AppendError(err.Error())
				state.Status = core.WorkflowStatusFailed
				runErr = err
				if e.events != nil {
					e.events.PublishPriority(events.NewWorkflowFailedEvent(state.WorkflowID, string(current), err))
				}
				break loop
			}
			current = e.graph.Join(src)
			continue

		case core.PhaseHumanApproval:
			next, err := e.awaitApproval(runCtx, r)
			if err != nil {
				runErr = e.interrupt(state, r, err)
				break loop
			}
			current = next
			continue

		case core.PhaseFinalization:
			e.finalize(state, r)
			if err := e.checkpointPhase(runCtx, state, current); err != nil {
				log.Warn("checkpoint failed", "phase", current, "error", err)
			}
			current = core.PhaseEnd
			continue
		}

		if err := e.executePhase(runCtx, r, current); err != nil {
			if runCtx.Err() != nil {
				runErr = e.interrupt(state, r, runCtx.Err())
				break
			}
			state.AppendError(err.Error())
			state.Status = core.WorkflowStatusFailed
			runErr = err
			if e.events != nil {
				e.events.PublishPriority(events.NewWorkflowFailedEvent(state.WorkflowID, string(current), err))
			}
			break
		}
		if err := e.checkpointPhase(runCtx, state, current); err != nil {
			log.Warn("checkpoint failed", "phase", current, "error", err)
		}

		next, err := e.advance(runCtx, r, current)
		if err != nil {
			if runCtx.Err() != nil {
				runErr = e.interrupt(state, r, runCtx.Err())
				break
			}
			state.AppendError(err.Error())
			state.Status = core.WorkflowStatusFailed
			runErr = err
			if e.events != nil {
				e.events.PublishPriority(events.NewWorkflowFailedEvent(state.WorkflowID, string(current), err))
			}
			break
		}
		current = next
	}

	if !state.IsTerminal() {
		state.Status = core.WorkflowStatusCompleted
	}
	state.CurrentPhase = core.PhaseEnd
	if state.Status == core.WorkflowStatusCompleted {
		if e.events != nil {
			e.events.PublishPriority(events.NewWorkflowCompletedEvent(state.WorkflowID, time.Since(startedAt)))
		}
		log.Info("workflow completed", "duration", time.Since(startedAt))
	}

	result := e.assembleResult(state, r, startedAt)
	e.mu.Lock()
	e.results[state.WorkflowID] = result
	e.mu.Unlock()

	return result, runErr
}

// interrupt maps a context error onto the terminal status: an expired
// deadline with completed phases fails the run, an expired deadline
// before any phase finished cancels it, and explicit cancellation
// always cancels.
func (e *Engine) interrupt(state *core.WorkflowState, r *run, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		msg := fmt.Sprintf("Workflow timed out after %d seconds", int(e.cfg.Timeout.Seconds()))
		state.AppendError(msg)
		timeoutErr := core.ErrTimeout(msg)
		if e.completedPhases(r) == 0 {
			state.Status = core.WorkflowStatusCancelled
		} else {
			state.Status = core.WorkflowStatusFailed
		}
		if e.events != nil {
			e.events.PublishPriority(events.NewWorkflowFailedEvent(state.WorkflowID, string(state.CurrentPhase), timeoutErr))
		}
		return timeoutErr
	}

	state.Status = core.WorkflowStatusCancelled
	state.AppendError("workflow cancelled")
	if e.events != nil {
		e.events.PublishPriority(events.NewWorkflowCancelledEvent(state.WorkflowID, string(state.CurrentPhase), "context cancelled"))
	}
	return core.ErrCancelled("workflow cancelled")
}

func (e *Engine) completedPhases(r *run) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, p := range r.phases {
		if p.Status == core.NodeStatusCompleted {
			n++
		}
	}
	return n
}

// advance computes the next phase after current, running the parallel
// fan-out when the graph declares one.
func (e *Engine) advance(ctx context.Context, r *run, current core.Phase) (core.Phase, error) {
	if branches, ok := e.graph.Parallel(current); ok {
		if err := e.fanOut(ctx, r, branches); err != nil {
			return "", err
		}
		return e.graph.Join(current), nil
	}

	if edge, ok := e.graph.Conditional(current); ok {
		label := edge.condition(r.state)
		switch label {
		case "retry":
			r.state.RetryCount++
			r.state.DebuggedCode = ""
			e.logger.WithWorkflow(r.state.WorkflowID).Info("retrying generation", "retry_count", r.state.RetryCount)
		case "fail":
			return "", core.ErrExecution(core.CodeRetriesExhausted,
				fmt.Sprintf("debugging exhausted %d retries", e.cfg.MaxRetries))
		}
		next, ok := edge.targets[label]
		if !ok {
			return core.PhaseEnd, nil
		}
		return next, nil
	}

	if next, ok := e.graph.Next(current); ok {
		return next, nil
	}
	return core.PhaseEnd, nil
}

// fanOut runs the planning branches concurrently. One surviving branch
// is enough to continue; the failed branch's error stays on the state.
func (e *Engine) fanOut(ctx context.Context, r *run, branches []core.Phase) error {
	r.state.CurrentPhase = core.PhaseParallelPlanning

	var g errgroup.Group
	branchErrs := make([]error, len(branches))
	for i, phase := range branches {
		i, phase := i, phase
		g.Go(func() error {
			branchErrs[i] = e.executePhase(ctx, r, phase)
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for i, err := range branchErrs {
		if err != nil {
			failed++
			r.state.AppendError(fmt.Sprintf("%s: %s", branches[i], err))
		}
	}
	if failed == len(branches) {
		return core.ErrExecution(core.CodePhaseFailed, "all planning branches failed")
	}

	if err := e.checkpointPhase(ctx, r.state, core.PhaseParallelPlanning); err != nil {
		e.logger.WithWorkflow(r.state.WorkflowID).Warn("checkpoint failed", "phase", core.PhaseParallelPlanning, "error", err)
	}
	return nil
}

// executePhase dispatches one agent phase through the bus and merges
// the output into the state.
func (e *Engine) executePhase(ctx context.Context, r *run, phase core.Phase) error {
	log := e.logger.WithWorkflow(r.state.WorkflowID).WithPhase(string(phase))

	r.mu.Lock()
	r.state.CurrentPhase = phase
	input := phaseInput(r.state, phase)
	description := r.state.Description
	r.mu.Unlock()

	task := core.NewTask(fmt.Sprintf("%s for %s", phase, r.state.WorkflowID), core.PhaseTaskType(phase)).
		WithDescription(description).
		WithParent(r.state.TaskID).
		WithContext(input)

	exec := core.NodeExecution{
		Phase:     phase,
		Status:    core.NodeStatusRunning,
		Input:     input,
		StartedAt: time.Now(),
	}

	agent, err := e.provider.AgentFor(task, core.PhaseRole(phase))
	if err != nil {
		e.finishExec(r, exec, core.NodeStatusFailed, err)
		return core.ErrExecution(core.CodePhaseFailed, fmt.Sprintf("phase %s has no agent", phase)).WithCause(err)
	}
	exec.AgentID = agent.ID()

	if e.events != nil {
		e.events.Publish(events.NewPhaseStartedEvent(r.state.WorkflowID, string(phase), agent.ID()))
	}
	log.Debug("phase started", "agent", agent.ID())

	coord, err := e.bus.Coordinate(task, []string{agent.ID()})
	if err != nil {
		e.finishExec(r, exec, core.NodeStatusFailed, err)
		return err
	}

	done, err := e.bus.Await(ctx, coord.AssignedAgents[0], task.ID)
	if err != nil {
		status := core.NodeStatusCancelled
		if errors.Is(err, context.DeadlineExceeded) {
			status = core.NodeStatusTimeout
		}
		e.finishExec(r, exec, status, err)
		return err
	}

	if !done.IsSuccess() {
		phaseErr := core.ErrExecution(core.CodePhaseFailed,
			fmt.Sprintf("phase %s failed: %s", phase, done.Error))
		e.finishExec(r, exec, core.NodeStatusFailed, phaseErr)
		if e.events != nil {
			e.events.Publish(events.NewPhaseFailedEvent(r.state.WorkflowID, string(phase), phaseErr))
		}
		return phaseErr
	}

	r.mu.Lock()
	r.state.AssignPhase(phase, agent.ID())
	mergeOutput(r.state, phase, done.Result)
	r.mu.Unlock()

	e.finishExec(r, exec, core.NodeStatusCompleted, nil)
	if e.events != nil {
		e.events.Publish(events.NewPhaseCompletedEvent(r.state.WorkflowID, string(phase), agent.ID(), time.Since(exec.StartedAt)))
	}
	log.Info("phase completed", "agent", agent.ID(), "duration", time.Since(exec.StartedAt))
	return nil
}

func (e *Engine) finishExec(r *run, exec core.NodeExecution, status core.NodeStatus, err error) {
	now := time.Now()
	exec.Status = status
	exec.CompletedAt = &now
	if err != nil {
		exec.Error = err.Error()
	}
	r.record(exec)
}

// awaitApproval blocks the run at the human gate and routes by the
// decision: approved finalizes, rejected loops back to synthesis,
// cancelled terminates the workflow.
func (e *Engine) awaitApproval(ctx context.Context, r *run) (core.Phase, error) {
	state := r.state
	state.CurrentPhase = core.PhaseHumanApproval
	state.Status = core.WorkflowStatusRequiresApproval
	state.ApprovalStatus = core.ApprovalPending

	if err := e.checkpointPhase(ctx, state, core.PhaseQualityAssessment); err != nil {
		e.logger.WithWorkflow(state.WorkflowID).Warn("checkpoint failed before approval", "error", err)
	}
	if e.events != nil {
		e.events.Publish(events.NewApprovalRequestedEvent(state.WorkflowID, string(state.TaskID)))
	}

	exec := core.NodeExecution{
		Phase:     core.PhaseHumanApproval,
		Status:    core.NodeStatusRunning,
		StartedAt: time.Now(),
	}

	decision, err := e.gate.Await(ctx, state.WorkflowID)
	if err != nil {
		e.finishExec(r, exec, core.NodeStatusCancelled, err)
		return core.PhaseEnd, err
	}

	state.ApprovalStatus = decision
	state.Status = core.WorkflowStatusRunning

	switch decision {
	case core.ApprovalApproved:
		e.finishExec(r, exec, core.NodeStatusCompleted, nil)
		return core.PhaseFinalization, nil
	case core.ApprovalRejected:
		state.AppendError("plan rejected by reviewer, re-synthesizing")
		e.finishExec(r, exec, core.NodeStatusCompleted, nil)
		return core.PhasePlanSynthesis, nil
	default:
		cancelErr := core.ErrCancelled("approval cancelled by reviewer")
		cancelErr.Code = core.CodeApprovalCancelled
		state.Status = core.WorkflowStatusCancelled
		state.AppendError(cancelErr.Message)
		e.finishExec(r, exec, core.NodeStatusCancelled, cancelErr)
		if e.events != nil {
			e.events.PublishPriority(events.NewWorkflowCancelledEvent(state.WorkflowID, string(core.PhaseHumanApproval), cancelErr.Message))
		}
		return core.PhaseEnd, nil
	}
}

// finalize selects the shipped artifacts and completes the run.
func (e *Engine) finalize(state *core.WorkflowState, r *run) {
	exec := core.NodeExecution{
		Phase:     core.PhaseFinalization,
		Status:    core.NodeStatusRunning,
		StartedAt: time.Now(),
	}
	state.CurrentPhase = core.PhaseFinalization

	if state.SelectedPlan == nil {
		state.SelectedPlan = state.SynthesisPlan
	}
	state.Status = core.WorkflowStatusCompleted
	e.finishExec(r, exec, core.NodeStatusCompleted, nil)
}

func (e *Engine) checkpointPhase(ctx context.Context, state *core.WorkflowState, phase core.Phase) error {
	return e.store.Put(ctx, state.WorkflowID, phase, state)
}

// assembleResult builds the finalized record with metrics derived from
// the node executions.
func (e *Engine) assembleResult(state *core.WorkflowState, r *run, startedAt time.Time) *core.WorkflowResult {
	r.mu.Lock()
	phases := append([]core.NodeExecution(nil), r.phases...)
	r.mu.Unlock()

	completedAt := time.Now()
	metrics := core.WorkflowMetrics{
		NodesExecuted:  len(phases),
		PhaseDurations: make(map[string]time.Duration, len(phases)),
		TotalDuration:  completedAt.Sub(startedAt),
	}
	for _, p := range phases {
		metrics.PhaseDurations[string(p.Phase)] += p.Duration()
		switch p.Status {
		case core.NodeStatusCompleted:
			metrics.Succeeded++
		case core.NodeStatusFailed, core.NodeStatusTimeout:
			metrics.Failed++
		}
	}
	if metrics.NodesExecuted > 0 {
		metrics.SuccessRate = float64(metrics.Succeeded) / float64(metrics.NodesExecuted)
		metrics.AveragePhaseTime = metrics.TotalDuration / time.Duration(metrics.NodesExecuted)
	}

	agents := make(map[string]bool)
	for _, id := range state.PhaseAgents {
		agents[id] = true
	}
	involved := make([]string, 0, len(agents))
	for id := range agents {
		involved = append(involved, id)
	}
	sort.Strings(involved)

	return &core.WorkflowResult{
		WorkflowID:     state.WorkflowID,
		TaskID:         state.TaskID,
		Status:         state.Status,
		StartedAt:      startedAt,
		CompletedAt:    &completedAt,
		Duration:       completedAt.Sub(startedAt),
		Phases:         phases,
		Output:         state.FinalOutput(),
		Errors:         append([]string(nil), state.Errors...),
		AgentsInvolved: involved,
		Metrics:        metrics,
	}
}

// phaseInput projects the state slice a phase's agent needs.
func phaseInput(s *core.WorkflowState, phase core.Phase) map[string]interface{} {
	input := make(map[string]interface{})
	switch phase {
	case core.PhaseRepositoryAnalysis:
		for k, v := range s.Context {
			input[k] = v
		}
	case core.PhaseCuttingEdgePlanning, core.PhaseConservativePlanning:
		if s.RepositoryAnalysis != nil {
			input["analysis"] = s.RepositoryAnalysis
		}
	case core.PhasePlanSynthesis:
		if s.CuttingEdgePlan != nil {
			input["cutting_edge_plan"] = s.CuttingEdgePlan
		}
		if s.ConservativePlan != nil {
			input["conservative_plan"] = s.ConservativePlan
		}
	case core.PhaseCodeGeneration:
		plan := s.SelectedPlan
		if plan == nil {
			plan = s.SynthesisPlan
		}
		if plan != nil {
			input["plan"] = plan
		}
	case core.PhaseDebugging:
		input["code"] = s.GeneratedCode
	case core.PhaseOptimization:
		code := s.DebuggedCode
		if code == "" {
			code = s.GeneratedCode
		}
		input["code"] = code
	case core.PhaseQualityAssessment:
		code := s.OptimizedCode
		if code == "" {
			code = s.DebuggedCode
		}
		if code == "" {
			code = s.GeneratedCode
		}
		input["code"] = code
	}
	return input
}

// mergeOutput folds a completed phase's result into the state. Only
// the engine calls this; agents never touch the state.
func mergeOutput(s *core.WorkflowState, phase core.Phase, result map[string]interface{}) {
	switch phase {
	case core.PhaseRepositoryAnalysis:
		if report, ok := result["analysis"].(*core.AnalysisReport); ok {
			s.RepositoryAnalysis = report
		}
	case core.PhaseCuttingEdgePlanning:
		if p, ok := result["plan"].(*core.Plan); ok {
			s.CuttingEdgePlan = p
		}
	case core.PhaseConservativePlanning:
		if p, ok := result["plan"].(*core.Plan); ok {
			s.ConservativePlan = p
		}
	case core.PhasePlanSynthesis:
		if p, ok := result["plan"].(*core.Plan); ok {
			s.SynthesisPlan = p
			s.SelectedPlan = p
		}
	case core.PhaseCodeGeneration:
		if code, ok := result["code"].(string); ok {
			s.GeneratedCode = code
			s.DebuggedCode = ""
			s.OptimizedCode = ""
		}
	case core.PhaseDebugging:
		if code, ok := result["debugged_code"].(string); ok {
			s.DebuggedCode = code
		}
	case core.PhaseOptimization:
		if code, ok := result["optimized_code"].(string); ok {
			s.OptimizedCode = code
		}
	case core.PhaseQualityAssessment:
		if assessment, ok := result["assessment"].(map[string]interface{}); ok {
			s.QualityAssessment = assessment
		}
	}
	s.UpdatedAt = time.Now()
}
