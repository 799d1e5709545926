// Package plan computes derived plan scores and synthesizes plans
// produced by competing planner variants.
package plan

import (
	"strings"

	"github.com/hivemind-labs/hiveflow/internal/core"
)

// complexityWeight maps a step complexity grade to its numeric weight.
func complexityWeight(c core.Complexity) float64 {
	switch c {
	case core.ComplexityTrivial:
		return 1
	case core.ComplexitySimple:
		return 2
	case core.ComplexityModerate:
		return 3
	case core.ComplexityComplex:
		return 4
	case core.ComplexityVeryComplex:
		return 5
	default:
		return 3
	}
}

// maturityRisk maps a technology maturity grade to its risk weight.
func maturityRisk(m core.TechMaturity) float64 {
	switch m {
	case core.MaturityExperimental:
		return 5
	case core.MaturityAlpha:
		return 4
	case core.MaturityBeta:
		return 3
	case core.MaturityStable:
		return 1
	default:
		return 3
	}
}

// TotalEffort sums the estimated hours across all steps.
func TotalEffort(steps []core.PlanStep) float64 {
	var total float64
	for _, s := range steps {
		total += s.EstimatedHours
	}
	return total
}

// ComplexityScore is the normalized step complexity:
// sum of weights divided by 5 times the step count. Range (0, 1].
func ComplexityScore(steps []core.PlanStep) float64 {
	if len(steps) == 0 {
		return 0
	}
	var sum float64
	for _, s := range steps {
		sum += complexityWeight(s.Complexity)
	}
	return sum / (5 * float64(len(steps)))
}

// OverallRisk averages technology-maturity risk with the scaled
// complexity score and maps the result onto the risk ladder.
func OverallRisk(techs []core.TechChoice, complexityScore float64) core.RiskLevel {
	techRisk := 0.0
	if len(techs) > 0 {
		for _, t := range techs {
			techRisk += maturityRisk(t.Maturity)
		}
		techRisk /= float64(len(techs))
	}
	avg := (techRisk + complexityScore*5) / 2

	switch {
	case avg <= 1:
		return core.RiskVeryLow
	case avg <= 2:
		return core.RiskLow
	case avg <= 3:
		return core.RiskMedium
	case avg <= 4:
		return core.RiskHigh
	default:
		return core.RiskVeryHigh
	}
}

// Score fills in the derived fields of a plan from its steps and
// technology choices.
func Score(p *core.Plan) {
	p.TotalEffortHours = TotalEffort(p.Steps)
	p.ComplexityScore = ComplexityScore(p.Steps)
	p.OverallRisk = OverallRisk(p.Technologies, p.ComplexityScore)
}

// conservativeCategory reports whether a tech category should keep the
// conservative option during synthesis.
func conservativeCategory(category string) bool {
	c := strings.ToLower(category)
	return strings.Contains(c, "storage") || strings.Contains(c, "data")
}

// experimentalCategory reports whether a tech category should keep the
// experimental option during synthesis.
func experimentalCategory(category string) bool {
	c := strings.ToLower(category)
	return strings.Contains(c, "ui") || strings.Contains(c, "frontend")
}

// Synthesize merges a cutting-edge and a conservative plan into a
// balanced synthesis plan. When either input is missing it falls back
// to the available plan; PlansUsed records how many inputs were
// actually consumed.
func Synthesize(objective string, cutting, conservative *core.Plan) *core.Plan {
	out := &core.Plan{
		Variant:   "synthesis",
		Objective: objective,
	}

	used := 0
	if cutting != nil {
		used++
	}
	if conservative != nil {
		used++
	}
	out.PlansUsed = used

	switch {
	case cutting == nil && conservative == nil:
		// Balanced default when nothing survived the fan-out.
		out.Technologies = []core.TechChoice{
			{Category: "language", Name: "baseline stack", Maturity: core.MaturityStable, Justification: "no input plans available"},
		}
		out.Steps = []core.PlanStep{
			{Title: "Implement objective", Description: objective, EstimatedHours: 8, Complexity: core.ComplexityModerate},
		}
	case cutting == nil:
		out.Technologies = append(out.Technologies, conservative.Technologies...)
		out.Steps = append(out.Steps, conservative.Steps...)
	case conservative == nil:
		out.Technologies = append(out.Technologies, cutting.Technologies...)
		out.Steps = append(out.Steps, cutting.Steps...)
	default:
		out.Technologies = mergeTechnologies(cutting.Technologies, conservative.Technologies)
		out.Steps = mergeSteps(cutting.Steps, conservative.Steps)
	}

	Score(out)
	return out
}

// mergeTechnologies picks one option per category. Categories present
// in both plans prefer the conservative option for storage/data and
// the experimental option for UI; everything else keeps conservative
// with an annotated justification.
func mergeTechnologies(cutting, conservative []core.TechChoice) []core.TechChoice {
	conservativeByCat := make(map[string]core.TechChoice, len(conservative))
	for _, t := range conservative {
		conservativeByCat[t.Category] = t
	}

	seen := make(map[string]bool)
	var out []core.TechChoice

	for _, ct := range cutting {
		cons, both := conservativeByCat[ct.Category]
		seen[ct.Category] = true
		switch {
		case !both:
			out = append(out, ct)
		case conservativeCategory(ct.Category):
			cons.Justification = "conservative choice kept for data safety"
			out = append(out, cons)
		case experimentalCategory(ct.Category):
			ct.Justification = "experimental choice kept for user-facing layer"
			out = append(out, ct)
		default:
			cons.Justification = "conservative default for contested category"
			out = append(out, cons)
		}
	}

	for _, t := range conservative {
		if !seen[t.Category] {
			out = append(out, t)
		}
	}
	return out
}

// mergeSteps unions the step lists; steps sharing a title are merged
// with averaged effort, unioned risks and deliverables, the
// conservative validation criteria and moderate complexity.
func mergeSteps(cutting, conservative []core.PlanStep) []core.PlanStep {
	conservativeByTitle := make(map[string]core.PlanStep, len(conservative))
	for _, s := range conservative {
		conservativeByTitle[s.Title] = s
	}

	merged := make(map[string]bool)
	var out []core.PlanStep

	for _, cs := range cutting {
		if match, ok := conservativeByTitle[cs.Title]; ok {
			merged[cs.Title] = true
			out = append(out, core.PlanStep{
				Title:              cs.Title,
				Description:        cs.Description,
				EstimatedHours:     (cs.EstimatedHours + match.EstimatedHours) / 2,
				Complexity:         core.ComplexityModerate,
				Risks:              unionStrings(cs.Risks, match.Risks),
				Deliverables:       unionStrings(cs.Deliverables, match.Deliverables),
				ValidationCriteria: match.ValidationCriteria,
			})
		} else {
			out = append(out, cs)
		}
	}

	for _, s := range conservative {
		if !merged[s.Title] {
			out = append(out, s)
		}
	}
	return out
}

func unionStrings(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var out []string
	for _, s := range append(append([]string{}, a...), b...) {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
