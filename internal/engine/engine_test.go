package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hivemind-labs/hiveflow/internal/agent"
	"github.com/hivemind-labs/hiveflow/internal/bus"
	"github.com/hivemind-labs/hiveflow/internal/checkpoint"
	"github.com/hivemind-labs/hiveflow/internal/collab"
	"github.com/hivemind-labs/hiveflow/internal/core"
	"github.com/hivemind-labs/hiveflow/internal/events"
)

type roleProvider map[string]core.Agent

func (p roleProvider) AgentFor(_ *core.Task, role string) (core.Agent, error) {
	a, ok := p[role]
	if !ok {
		return nil, core.ErrNotFound("agent for role", role)
	}
	return a, nil
}

// slowModel blocks long enough to outlive any test deadline.
type slowModel struct{}

func (slowModel) Complete(ctx context.Context, _ collab.CompletionRequest) (*collab.CompletionResponse, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(5 * time.Second):
		return &collab.CompletionResponse{Summary: "late"}, nil
	}
}

// slowRepo delays the tree listing so the first phase never finishes.
type slowRepo struct{}

func (slowRepo) Tree(ctx context.Context, _, _ string) ([]collab.FileEntry, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(2 * time.Second):
		return nil, nil
	}
}
func (slowRepo) File(context.Context, string) (string, error) { return "", nil }

type harness struct {
	engine *Engine
	events *events.EventBus
	store  checkpoint.Store
}

// newHarness wires a full roster behind a bus. overrides swap roster
// slots before registration.
func newHarness(t *testing.T, model collab.LanguageModel, cfg Config, overrides map[string]core.Agent) *harness {
	t.Helper()

	if model == nil {
		model = &collab.StubLanguageModel{Responses: []string{"package main\n\nfunc main() {}\n"}}
	}
	repo := &collab.MemoryRepository{Files: map[string]string{"main.go": "package main\n"}}

	agents := map[string]core.Agent{
		core.RoleAnalyst:             agent.NewAnalyst(agent.AnalystDeps{Repository: repo}),
		core.RoleCuttingEdgePlanner:  agent.NewCuttingEdgePlanner(agent.PlannerDeps{}),
		core.RoleConservativePlanner: agent.NewConservativePlanner(agent.PlannerDeps{}),
		core.RoleSynthesisPlanner:    agent.NewSynthesisPlanner(agent.PlannerDeps{}),
		core.RoleCoder:               agent.NewCoder(agent.CoderDeps{Model: model}),
	}
	for role, a := range overrides {
		agents[role] = a
	}

	b := bus.New(bus.Options{})
	for _, a := range agents {
		require.NoError(t, b.Register(a))
		a.Start()
	}
	b.Start()

	eb := events.New(64)
	store := checkpoint.NewMemoryStore()
	eng := New(roleProvider(agents), b, store, eb, NewApprovalGate(), nil, cfg)

	t.Cleanup(func() {
		b.Close()
		eb.Close()
		for _, a := range agents {
			a.Stop()
		}
	})
	return &harness{engine: eng, events: eb, store: store}
}

func phaseSequence(result *core.WorkflowResult) []core.Phase {
	out := make([]core.Phase, 0, len(result.Phases))
	for _, p := range result.Phases {
		out = append(out, p.Phase)
	}
	return out
}

func countPhase(seq []core.Phase, p core.Phase) int {
	n := 0
	for _, s := range seq {
		if s == p {
			n++
		}
	}
	return n
}

func failingPlanner(role string) core.Agent {
	a := agent.New(agent.Options{
		Role: role,
		Capabilities: []string{
			core.CapabilityFor(core.TaskTypeTaskPlanning),
		},
		Execute: func(context.Context, *agent.Base, *core.Task) (map[string]interface{}, error) {
			return nil, errors.New("planner crashed")
		},
	})
	return a
}

func TestRunCleanCodeSkipsDebugging(t *testing.T) {
	h := newHarness(t, nil, Config{MaxRetries: 3, Timeout: 30 * time.Second}, nil)

	task := core.NewTask("Build a storage service", core.TaskTypeCodeGeneration).
		WithDescription("Build a storage service")
	result, err := h.engine.Run(context.Background(), task, false)
	require.NoError(t, err)
	require.Equal(t, core.WorkflowStatusCompleted, result.Status)

	seq := phaseSequence(result)
	assert.Equal(t, 0, countPhase(seq, core.PhaseDebugging))
	assert.Equal(t, 0, countPhase(seq, core.PhaseHumanApproval))
	assert.Equal(t, 1, countPhase(seq, core.PhaseRepositoryAnalysis))
	assert.Equal(t, 1, countPhase(seq, core.PhaseCuttingEdgePlanning))
	assert.Equal(t, 1, countPhase(seq, core.PhaseConservativePlanning))
	assert.Equal(t, 1, countPhase(seq, core.PhasePlanSynthesis))
	assert.Equal(t, 1, countPhase(seq, core.PhaseCodeGeneration))
	assert.Equal(t, 1, countPhase(seq, core.PhaseOptimization))
	assert.Equal(t, 1, countPhase(seq, core.PhaseQualityAssessment))
	assert.Equal(t, core.PhaseFinalization, seq[len(seq)-1])

	assert.Contains(t, result.Output, "repository_analysis")
	assert.Contains(t, result.Output, "selected_plan")
	assert.Contains(t, result.Output, "generated_code")
	assert.Contains(t, result.Output, "optimized_code")
	assert.Contains(t, result.Output, "quality_assessment")

	assert.InDelta(t, 1.0, result.Metrics.SuccessRate, 1e-9)
	assert.Len(t, result.AgentsInvolved, 5)

	stored, ok := h.engine.Result(result.WorkflowID)
	require.True(t, ok)
	assert.Equal(t, result, stored)

	state, ok := h.engine.State(result.WorkflowID)
	require.True(t, ok)
	assert.True(t, state.IsTerminal())

	phases, err := h.store.Phases(context.Background(), result.WorkflowID)
	require.NoError(t, err)
	assert.Contains(t, phases, core.PhaseParallelPlanning)
	assert.Equal(t, core.PhaseFinalization, phases[len(phases)-1])
}

func TestRunSurvivesOnePlanningBranchFailure(t *testing.T) {
	h := newHarness(t, nil, Config{MaxRetries: 3, Timeout: 30 * time.Second}, map[string]core.Agent{
		core.RoleCuttingEdgePlanner: failingPlanner(core.RoleCuttingEdgePlanner),
	})

	result, err := h.engine.Run(context.Background(), core.NewTask("Build it", core.TaskTypeCodeGeneration), false)
	require.NoError(t, err)
	assert.Equal(t, core.WorkflowStatusCompleted, result.Status)

	assert.NotContains(t, result.Output, "cutting_edge_plan")
	require.Contains(t, result.Output, "synthesis_plan")
	merged := result.Output["synthesis_plan"].(*core.Plan)
	assert.Equal(t, 1, merged.PlansUsed)

	joined := strings.Join(result.Errors, " | ")
	assert.Contains(t, joined, string(core.PhaseCuttingEdgePlanning))
}

func TestRunFailsWhenBothPlanningBranchesFail(t *testing.T) {
	h := newHarness(t, nil, Config{MaxRetries: 3, Timeout: 30 * time.Second}, map[string]core.Agent{
		core.RoleCuttingEdgePlanner:  failingPlanner(core.RoleCuttingEdgePlanner),
		core.RoleConservativePlanner: failingPlanner(core.RoleConservativePlanner),
	})

	result, err := h.engine.Run(context.Background(), core.NewTask("Build it", core.TaskTypeCodeGeneration), false)
	require.Error(t, err)
	assert.Equal(t, core.WorkflowStatusFailed, result.Status)
	assert.Contains(t, err.Error(), "all planning branches failed")
}

func TestRunRetriesUntilCleanGeneration(t *testing.T) {
	model := &collab.StubLanguageModel{Responses: []string{
		"package main // error in first attempt",
		"package main // error in second attempt",
		"package main // third attempt",
	}}
	h := newHarness(t, model, Config{MaxRetries: 3, Timeout: 30 * time.Second}, nil)

	result, err := h.engine.Run(context.Background(), core.NewTask("Build it", core.TaskTypeCodeGeneration), false)
	require.NoError(t, err)
	assert.Equal(t, core.WorkflowStatusCompleted, result.Status)

	seq := phaseSequence(result)
	assert.Equal(t, 3, countPhase(seq, core.PhaseCodeGeneration))
	assert.Equal(t, 2, countPhase(seq, core.PhaseDebugging))

	state, ok := h.engine.State(result.WorkflowID)
	require.True(t, ok)
	assert.Equal(t, 2, state.RetryCount)
	assert.Equal(t, "package main // third attempt", state.GeneratedCode)
}

func TestRunFailsWhenRetriesExhausted(t *testing.T) {
	model := &collab.StubLanguageModel{Responses: []string{"package main // error forever"}}
	h := newHarness(t, model, Config{MaxRetries: 2, Timeout: 30 * time.Second}, nil)

	result, err := h.engine.Run(context.Background(), core.NewTask("Build it", core.TaskTypeCodeGeneration), false)
	require.Error(t, err)
	assert.Equal(t, core.WorkflowStatusFailed, result.Status)
	assert.Contains(t, err.Error(), "exhausted")

	seq := phaseSequence(result)
	assert.Equal(t, 3, countPhase(seq, core.PhaseCodeGeneration))
	assert.Equal(t, 3, countPhase(seq, core.PhaseDebugging))
}

func TestRunDebugRepairContinuesWithoutRetry(t *testing.T) {
	model := &collab.StubLanguageModel{Responses: []string{
		"func a() {}\nerror on this fixable line\nfunc b() {}",
	}}
	h := newHarness(t, model, Config{MaxRetries: 3, Timeout: 30 * time.Second}, nil)

	result, err := h.engine.Run(context.Background(), core.NewTask("Build it", core.TaskTypeCodeGeneration), false)
	require.NoError(t, err)
	assert.Equal(t, core.WorkflowStatusCompleted, result.Status)

	seq := phaseSequence(result)
	assert.Equal(t, 1, countPhase(seq, core.PhaseCodeGeneration))
	assert.Equal(t, 1, countPhase(seq, core.PhaseDebugging))

	state, _ := h.engine.State(result.WorkflowID)
	assert.Zero(t, state.RetryCount)
	assert.Equal(t, "func a() {}\nfunc b() {}", state.DebuggedCode)
}

func TestRunZeroRetriesFailsAfterFirstDebug(t *testing.T) {
	model := &collab.StubLanguageModel{Responses: []string{"package main // error forever"}}
	h := newHarness(t, model, Config{MaxRetries: 0, Timeout: 30 * time.Second}, nil)

	result, err := h.engine.Run(context.Background(), core.NewTask("Build it", core.TaskTypeCodeGeneration), false)
	require.Error(t, err)
	assert.Equal(t, core.WorkflowStatusFailed, result.Status)
	assert.Contains(t, err.Error(), "exhausted 0 retries")

	// No retry budget: one generation, one debug, then the run fails.
	seq := phaseSequence(result)
	assert.Equal(t, 1, countPhase(seq, core.PhaseCodeGeneration))
	assert.Equal(t, 1, countPhase(seq, core.PhaseDebugging))
}

func TestRunApprovalRejectedThenApproved(t *testing.T) {
	h := newHarness(t, nil, Config{MaxRetries: 3, Timeout: 30 * time.Second}, nil)

	requests := h.events.Subscribe(events.TypeApprovalRequested)
	go func() {
		decisions := []core.ApprovalStatus{core.ApprovalRejected, core.ApprovalApproved}
		for _, d := range decisions {
			ev, ok := <-requests
			if !ok {
				return
			}
			h.engine.Gate().Decide(ev.WorkflowID(), d)
		}
	}()

	result, err := h.engine.Run(context.Background(), core.NewTask("Build it", core.TaskTypeCodeGeneration), true)
	require.NoError(t, err)
	assert.Equal(t, core.WorkflowStatusCompleted, result.Status)

	seq := phaseSequence(result)
	assert.Equal(t, 2, countPhase(seq, core.PhaseHumanApproval))
	assert.Equal(t, 2, countPhase(seq, core.PhasePlanSynthesis))
	assert.Contains(t, strings.Join(result.Errors, " "), "rejected by reviewer")

	state, _ := h.engine.State(result.WorkflowID)
	assert.Equal(t, core.ApprovalApproved, state.ApprovalStatus)
}

func TestRunApprovalCancelledStopsWorkflow(t *testing.T) {
	h := newHarness(t, nil, Config{MaxRetries: 3, Timeout: 30 * time.Second}, nil)

	requests := h.events.Subscribe(events.TypeApprovalRequested)
	go func() {
		if ev, ok := <-requests; ok {
			h.engine.Gate().Decide(ev.WorkflowID(), core.ApprovalCancelled)
		}
	}()

	result, err := h.engine.Run(context.Background(), core.NewTask("Build it", core.TaskTypeCodeGeneration), true)
	require.NoError(t, err)
	assert.Equal(t, core.WorkflowStatusCancelled, result.Status)
	assert.Contains(t, strings.Join(result.Errors, " "), "approval cancelled")
	assert.NotContains(t, result.Output, "generated_code")
}

func TestRunTimeoutAfterProgressFails(t *testing.T) {
	h := newHarness(t, slowModel{}, Config{MaxRetries: 3, Timeout: 1500 * time.Millisecond}, nil)

	result, err := h.engine.Run(context.Background(), core.NewTask("Build it", core.TaskTypeCodeGeneration), false)
	require.Error(t, err)
	assert.Equal(t, core.WorkflowStatusFailed, result.Status)
	assert.Contains(t, err.Error(), "Workflow timed out after 1 seconds")
	assert.Contains(t, strings.Join(result.Errors, " "), "Workflow timed out after")
}

func TestRunTimeoutBeforeProgressCancels(t *testing.T) {
	slow := agent.NewAnalyst(agent.AnalystDeps{Repository: slowRepo{}})
	h := newHarness(t, nil, Config{MaxRetries: 3, Timeout: 150 * time.Millisecond}, map[string]core.Agent{
		core.RoleAnalyst: slow,
	})

	result, err := h.engine.Run(context.Background(), core.NewTask("Build it", core.TaskTypeCodeGeneration), false)
	require.Error(t, err)
	assert.Equal(t, core.WorkflowStatusCancelled, result.Status)
	assert.Contains(t, err.Error(), "Workflow timed out after")
}

func TestRunZeroTimeoutCancelsImmediately(t *testing.T) {
	h := newHarness(t, nil, Config{MaxRetries: 3, Timeout: 0}, nil)

	result, err := h.engine.Run(context.Background(), core.NewTask("Build it", core.TaskTypeCodeGeneration), false)
	require.Error(t, err)
	assert.Equal(t, core.WorkflowStatusCancelled, result.Status)
	assert.Contains(t, err.Error(), "Workflow timed out after 0 seconds")
	assert.Empty(t, result.AgentsInvolved)
}

func TestRunNegativeTimeoutDisablesDeadline(t *testing.T) {
	h := newHarness(t, nil, Config{MaxRetries: 3, Timeout: NoTimeout}, nil)

	result, err := h.engine.Run(context.Background(), core.NewTask("Build it", core.TaskTypeCodeGeneration), false)
	require.NoError(t, err)
	assert.Equal(t, core.WorkflowStatusCompleted, result.Status)
}

func TestCancelAbortsRunningWorkflow(t *testing.T) {
	h := newHarness(t, slowModel{}, Config{MaxRetries: 3, Timeout: 30 * time.Second}, nil)

	started := h.events.Subscribe(events.TypeWorkflowStarted)
	generating := h.events.Subscribe(events.TypePhaseStarted)
	go func() {
		ev, ok := <-started
		if !ok {
			return
		}
		// Wait until at least one phase is in flight before aborting.
		<-generating
		h.engine.Cancel(ev.WorkflowID())
	}()

	result, err := h.engine.Run(context.Background(), core.NewTask("Build it", core.TaskTypeCodeGeneration), false)
	require.Error(t, err)
	assert.Equal(t, core.WorkflowStatusCancelled, result.Status)
	assert.Contains(t, strings.Join(result.Errors, " "), "workflow cancelled")

	assert.False(t, h.engine.Cancel("unknown-workflow"))
}

func TestResumeContinuesAfterSynthesis(t *testing.T) {
	h := newHarness(t, nil, Config{MaxRetries: 3, Timeout: 30 * time.Second}, nil)

	state := core.NewWorkflowState(core.NewTaskID(), "resume this build", core.TaskTypeCodeGeneration)
	state.Status = core.WorkflowStatusRunning
	state.SynthesisPlan = &core.Plan{
		Variant:   "synthesis",
		Objective: "resume this build",
		Steps:     []core.PlanStep{{Title: "Implement core"}},
	}
	state.SelectedPlan = state.SynthesisPlan
	require.NoError(t, h.store.Put(context.Background(), state.WorkflowID, core.PhasePlanSynthesis, state))

	result, err := h.engine.Resume(context.Background(), state.WorkflowID)
	require.NoError(t, err)
	assert.Equal(t, core.WorkflowStatusCompleted, result.Status)

	seq := phaseSequence(result)
	require.NotEmpty(t, seq)
	assert.Equal(t, core.PhaseCodeGeneration, seq[0])
	assert.Equal(t, 0, countPhase(seq, core.PhaseRepositoryAnalysis))
	assert.Equal(t, 0, countPhase(seq, core.PhasePlanSynthesis))
}

func TestResumeAfterAnalysisRunsPlanningFanOut(t *testing.T) {
	h := newHarness(t, nil, Config{MaxRetries: 3, Timeout: 30 * time.Second}, nil)

	state := core.NewWorkflowState(core.NewTaskID(), "resume after analysis", core.TaskTypeCodeGeneration)
	state.Status = core.WorkflowStatusRunning
	state.RepositoryAnalysis = &core.AnalysisReport{}
	require.NoError(t, h.store.Put(context.Background(), state.WorkflowID, core.PhaseRepositoryAnalysis, state))

	result, err := h.engine.Resume(context.Background(), state.WorkflowID)
	require.NoError(t, err)
	assert.Equal(t, core.WorkflowStatusCompleted, result.Status)

	seq := phaseSequence(result)
	assert.Equal(t, 0, countPhase(seq, core.PhaseRepositoryAnalysis))
	assert.Equal(t, 1, countPhase(seq, core.PhaseCuttingEdgePlanning))
	assert.Equal(t, 1, countPhase(seq, core.PhaseConservativePlanning))
	assert.Equal(t, 1, countPhase(seq, core.PhasePlanSynthesis))

	merged := result.Output["synthesis_plan"].(*core.Plan)
	assert.Equal(t, 2, merged.PlansUsed)
}

func TestResumeAfterParallelPlanningStartsAtSynthesis(t *testing.T) {
	h := newHarness(t, nil, Config{MaxRetries: 3, Timeout: 30 * time.Second}, nil)

	state := core.NewWorkflowState(core.NewTaskID(), "resume planning", core.TaskTypeCodeGeneration)
	state.Status = core.WorkflowStatusRunning
	state.CuttingEdgePlan = &core.Plan{Variant: "cutting_edge", Steps: []core.PlanStep{{Title: "Implement core"}}}
	state.ConservativePlan = &core.Plan{Variant: "conservative", Steps: []core.PlanStep{{Title: "Implement core"}}}
	require.NoError(t, h.store.Put(context.Background(), state.WorkflowID, core.PhaseParallelPlanning, state))

	result, err := h.engine.Resume(context.Background(), state.WorkflowID)
	require.NoError(t, err)
	assert.Equal(t, core.WorkflowStatusCompleted, result.Status)

	seq := phaseSequence(result)
	require.NotEmpty(t, seq)
	assert.Equal(t, core.PhasePlanSynthesis, seq[0])

	merged := result.Output["synthesis_plan"].(*core.Plan)
	assert.Equal(t, 2, merged.PlansUsed)
}

func TestResumeErrors(t *testing.T) {
	h := newHarness(t, nil, Config{MaxRetries: 3, Timeout: 30 * time.Second}, nil)

	_, err := h.engine.Resume(context.Background(), "no-such-workflow")
	require.Error(t, err)
	assert.True(t, core.IsCategory(err, core.ErrCatNotFound))

	state := core.NewWorkflowState(core.NewTaskID(), "done", core.TaskTypeCodeGeneration)
	state.Status = core.WorkflowStatusCompleted
	require.NoError(t, h.store.Put(context.Background(), state.WorkflowID, core.PhaseFinalization, state))

	_, err = h.engine.Resume(context.Background(), state.WorkflowID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already terminal")
}
