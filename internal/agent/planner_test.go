package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hivemind-labs/hiveflow/internal/core"
)

func runPlanner(t *testing.T, a *Base, task *core.Task) map[string]interface{} {
	t.Helper()
	a.Start()
	done := a.Process(context.Background(), task)
	require.Equal(t, core.TaskStatusCompleted, done.Status, done.Error)
	return done.Result
}

func TestCuttingEdgePlannerBiasesExperimental(t *testing.T) {
	a := NewCuttingEdgePlanner(PlannerDeps{})
	task := core.NewTask("Build an event stream dashboard", core.TaskTypeTaskPlanning)

	result := runPlanner(t, a, task)
	p, ok := result["plan"].(*core.Plan)
	require.True(t, ok)

	assert.Equal(t, "cutting_edge", p.Variant)
	require.NotEmpty(t, p.Technologies)
	for _, tech := range p.Technologies {
		assert.NotEqual(t, core.MaturityStable, tech.Maturity, tech.Category)
	}

	// dashboard + stream pull in frontend and messaging.
	cats := map[string]bool{}
	for _, tech := range p.Technologies {
		cats[tech.Category] = true
	}
	assert.True(t, cats["frontend"])
	assert.True(t, cats["messaging"])

	// No validation step in the aggressive variant.
	for _, step := range p.Steps {
		assert.NotEqual(t, "Validate rollout", step.Title)
	}

	stored, ok := a.Memory.RecallLong("plans", string(task.ID))
	require.True(t, ok)
	assert.Same(t, p, stored)
}

func TestConservativePlannerPadsAndValidates(t *testing.T) {
	cutting := NewCuttingEdgePlanner(PlannerDeps{})
	conservative := NewConservativePlanner(PlannerDeps{})

	edgePlan := runPlanner(t, cutting, core.NewTask("Build a service", core.TaskTypeTaskPlanning))["plan"].(*core.Plan)
	safePlan := runPlanner(t, conservative, core.NewTask("Build a service", core.TaskTypeTaskPlanning))["plan"].(*core.Plan)

	assert.Equal(t, "conservative", safePlan.Variant)
	for _, tech := range safePlan.Technologies {
		assert.Equal(t, core.MaturityStable, tech.Maturity)
	}
	assert.Greater(t, safePlan.TotalEffortHours, edgePlan.TotalEffortHours)

	last := safePlan.Steps[len(safePlan.Steps)-1]
	assert.Equal(t, "Validate rollout", last.Title)
	assert.NotEmpty(t, last.ValidationCriteria)
}

func TestSynthesisPlannerMergesContextPlans(t *testing.T) {
	cutting := NewCuttingEdgePlanner(PlannerDeps{})
	conservative := NewConservativePlanner(PlannerDeps{})

	objective := "Build a storage service"
	edgePlan := runPlanner(t, cutting, core.NewTask(objective, core.TaskTypeTaskPlanning))["plan"].(*core.Plan)
	safePlan := runPlanner(t, conservative, core.NewTask(objective, core.TaskTypeTaskPlanning))["plan"].(*core.Plan)

	synth := NewSynthesisPlanner(PlannerDeps{})
	task := core.NewTask(objective, core.TaskTypePlanSynthesis)
	task.Context["cutting_edge_plan"] = edgePlan
	task.Context["conservative_plan"] = safePlan

	result := runPlanner(t, synth, task)
	merged, ok := result["plan"].(*core.Plan)
	require.True(t, ok)
	assert.Equal(t, "synthesis", merged.Variant)
	assert.Equal(t, 2, result["plans_used"])
	assert.Equal(t, 2, merged.PlansUsed)
}

func TestSynthesisPlannerDegradesToSurvivor(t *testing.T) {
	conservative := NewConservativePlanner(PlannerDeps{})
	safePlan := runPlanner(t, conservative, core.NewTask("Build a service", core.TaskTypeTaskPlanning))["plan"].(*core.Plan)

	synth := NewSynthesisPlanner(PlannerDeps{})
	task := core.NewTask("Build a service", core.TaskTypePlanSynthesis)
	task.Context["conservative_plan"] = safePlan

	result := runPlanner(t, synth, task)
	merged := result["plan"].(*core.Plan)
	assert.Equal(t, 1, merged.PlansUsed)
	assert.NotEmpty(t, merged.Steps)
}
