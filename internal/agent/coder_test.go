package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hivemind-labs/hiveflow/internal/collab"
	"github.com/hivemind-labs/hiveflow/internal/core"
)

func runCoder(t *testing.T, a *Base, task *core.Task) *core.Task {
	t.Helper()
	a.Start()
	done := a.Process(context.Background(), task)
	require.Equal(t, core.TaskStatusCompleted, done.Status, done.Error)
	return done
}

func TestCoderGeneratesFromPlan(t *testing.T) {
	model := &collab.StubLanguageModel{Responses: []string{"func main() {}"}}
	a := NewCoder(CoderDeps{Model: model})

	task := core.NewTask("implement service", core.TaskTypeCodeGeneration)
	task.Context["plan"] = &core.Plan{
		Variant: "synthesis",
		Steps:   []core.PlanStep{{Title: "Design architecture"}, {Title: "Implement core"}},
	}

	done := runCoder(t, a, task)
	assert.Equal(t, "func main() {}", done.Result["code"])
	assert.Equal(t, "stub", done.Result["provider"])
}

func TestCoderGenerationFailsWhenModelDown(t *testing.T) {
	a := NewCoder(CoderDeps{Model: failingModel{}})
	a.Start()

	done := a.Process(context.Background(), core.NewTask("implement", core.TaskTypeCodeGeneration))
	assert.Equal(t, core.TaskStatusFailed, done.Status)
	assert.Contains(t, done.Error, "model completion failed")
}

func TestCoderDebugRepairsFixableCode(t *testing.T) {
	a := NewCoder(CoderDeps{})

	task := core.NewTask("debug", core.TaskTypeDebugging)
	task.Context["code"] = "func a() {}\nbroken // fixable\nfunc b() {}"

	done := runCoder(t, a, task)
	assert.Equal(t, "func a() {}\nfunc b() {}", done.Result["debugged_code"])
	assert.Contains(t, done.Result["diagnosis"], "repaired")

	fixed, ok := a.Memory.RecallLong("fixes", string(task.ID))
	require.True(t, ok)
	assert.Equal(t, done.Result["debugged_code"], fixed)
}

func TestCoderDebugDiagnosesUnfixableCode(t *testing.T) {
	a := NewCoder(CoderDeps{})

	task := core.NewTask("debug", core.TaskTypeDebugging)
	task.Context["code"] = "func a() { error }"

	done := runCoder(t, a, task)
	assert.NotContains(t, done.Result, "debugged_code")
	assert.Contains(t, done.Result["diagnosis"], "regeneration required")
}

func TestCoderDebugPassesCleanCodeThrough(t *testing.T) {
	a := NewCoder(CoderDeps{})

	task := core.NewTask("debug", core.TaskTypeDebugging)
	task.Context["code"] = "func a() {}"

	done := runCoder(t, a, task)
	assert.Equal(t, "func a() {}", done.Result["debugged_code"])

	empty := core.NewTask("debug", core.TaskTypeDebugging)
	doneEmpty := runCoder(t, NewCoder(CoderDeps{}), empty)
	assert.NotContains(t, doneEmpty.Result, "debugged_code")
	assert.Contains(t, doneEmpty.Result["diagnosis"], "no code to debug")
}

func TestCoderOptimizeNormalizesWhitespace(t *testing.T) {
	a := NewCoder(CoderDeps{})

	task := core.NewTask("optimize", core.TaskTypeOptimization)
	task.Context["code"] = "func a() {}  \n\n\n\nfunc b() {}\t"

	done := runCoder(t, a, task)
	assert.Equal(t, "func a() {}\n\nfunc b() {}", done.Result["optimized_code"])
	assert.Equal(t, []string{"trailing-whitespace", "blank-line-collapse"}, done.Result["passes"])
}

func TestCoderAssessmentScoring(t *testing.T) {
	cases := []struct {
		name   string
		code   string
		score  int
		passed bool
	}{
		{"solid implementation", "func a() {}\nfunc b() {}\nfunc c() {}", 100, true},
		{"residual markers", "func a() { error }\nfunc b() {}\nfunc c() {}", 60, false},
		{"tiny output", "func a()", 90, true},
		{"empty output", "", 40, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := NewCoder(CoderDeps{})
			task := core.NewTask("assess", core.TaskTypeQualityAssessment)
			if tc.code != "" {
				task.Context["code"] = tc.code
			}

			done := runCoder(t, a, task)
			assessment := done.Result["assessment"].(map[string]interface{})
			assert.Equal(t, tc.score, assessment["score"])
			assert.Equal(t, tc.passed, assessment["passed"])
		})
	}
}

func TestCoderRejectsUnsupportedType(t *testing.T) {
	a := NewCoder(CoderDeps{})
	a.Start()

	done := a.Process(context.Background(), core.NewTask("plan", core.TaskTypeTaskPlanning))
	assert.Equal(t, core.TaskStatusFailed, done.Status)
}
