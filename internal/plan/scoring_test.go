package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hivemind-labs/hiveflow/internal/core"
)

func TestComplexityScore(t *testing.T) {
	steps := []core.PlanStep{
		{Complexity: core.ComplexityTrivial},     // 1
		{Complexity: core.ComplexityVeryComplex}, // 5
	}
	// (1+5) / (5*2)
	assert.InDelta(t, 0.6, ComplexityScore(steps), 1e-9)
	assert.Zero(t, ComplexityScore(nil))
}

func TestOverallRiskLadder(t *testing.T) {
	stable := []core.TechChoice{{Maturity: core.MaturityStable}}
	experimental := []core.TechChoice{{Maturity: core.MaturityExperimental}}

	// techRisk 1, complexity 0.2*5=1 -> avg 1 -> very_low
	assert.Equal(t, core.RiskVeryLow, OverallRisk(stable, 0.2))
	// techRisk 5, complexity 1*5=5 -> avg 5 -> very_high
	assert.Equal(t, core.RiskVeryHigh, OverallRisk(experimental, 1.0))
	// techRisk 5, complexity 0.2*5=1 -> avg 3 -> medium
	assert.Equal(t, core.RiskMedium, OverallRisk(experimental, 0.2))
}

func TestScoreFillsDerivedFields(t *testing.T) {
	p := &core.Plan{
		Variant: "conservative",
		Steps: []core.PlanStep{
			{EstimatedHours: 4, Complexity: core.ComplexityModerate},
			{EstimatedHours: 8, Complexity: core.ComplexitySimple},
		},
		Technologies: []core.TechChoice{{Maturity: core.MaturityStable}},
	}
	Score(p)

	assert.Equal(t, 12.0, p.TotalEffortHours)
	assert.InDelta(t, 0.5, p.ComplexityScore, 1e-9)
	assert.Equal(t, core.RiskLow, p.OverallRisk)
}

func TestSynthesizeMergesBothPlans(t *testing.T) {
	cutting := &core.Plan{
		Variant: "cutting_edge",
		Technologies: []core.TechChoice{
			{Category: "storage", Name: "edge-kv", Maturity: core.MaturityExperimental},
			{Category: "frontend", Name: "islands", Maturity: core.MaturityBeta},
		},
		Steps: []core.PlanStep{
			{Title: "Implement core", EstimatedHours: 10, Complexity: core.ComplexityVeryComplex, Risks: []string{"new tech"}},
			{Title: "Spike prototype", EstimatedHours: 4, Complexity: core.ComplexityComplex},
		},
	}
	conservative := &core.Plan{
		Variant: "conservative",
		Technologies: []core.TechChoice{
			{Category: "storage", Name: "postgres", Maturity: core.MaturityStable},
			{Category: "frontend", Name: "templates", Maturity: core.MaturityStable},
		},
		Steps: []core.PlanStep{
			{Title: "Implement core", EstimatedHours: 20, Complexity: core.ComplexitySimple,
				Risks: []string{"schedule"}, ValidationCriteria: []string{"smoke tests pass"}},
			{Title: "Validate rollout", EstimatedHours: 4, Complexity: core.ComplexitySimple},
		},
	}

	out := Synthesize("ship the feature", cutting, conservative)
	require.Equal(t, "synthesis", out.Variant)
	assert.Equal(t, 2, out.PlansUsed)

	byCat := make(map[string]core.TechChoice)
	for _, tech := range out.Technologies {
		byCat[tech.Category] = tech
	}
	// Data category keeps the conservative option, UI keeps the experimental one.
	assert.Equal(t, "postgres", byCat["storage"].Name)
	assert.Equal(t, "islands", byCat["frontend"].Name)

	byTitle := make(map[string]core.PlanStep)
	for _, s := range out.Steps {
		byTitle[s.Title] = s
	}
	merged := byTitle["Implement core"]
	assert.Equal(t, 15.0, merged.EstimatedHours)
	assert.Equal(t, core.ComplexityModerate, merged.Complexity)
	assert.ElementsMatch(t, []string{"new tech", "schedule"}, merged.Risks)
	assert.Equal(t, []string{"smoke tests pass"}, merged.ValidationCriteria)

	assert.Contains(t, byTitle, "Spike prototype")
	assert.Contains(t, byTitle, "Validate rollout")
	assert.Positive(t, out.TotalEffortHours)
}

func TestSynthesizeDegradesToSurvivor(t *testing.T) {
	only := &core.Plan{
		Variant:      "conservative",
		Technologies: []core.TechChoice{{Category: "backend", Name: "monolith", Maturity: core.MaturityStable}},
		Steps:        []core.PlanStep{{Title: "Build", EstimatedHours: 8, Complexity: core.ComplexityModerate}},
	}

	out := Synthesize("obj", nil, only)
	assert.Equal(t, 1, out.PlansUsed)
	assert.Equal(t, only.Steps[0].Title, out.Steps[0].Title)

	empty := Synthesize("obj", nil, nil)
	assert.Zero(t, empty.PlansUsed)
	assert.NotEmpty(t, empty.Steps)
}
