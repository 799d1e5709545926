package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/hivemind-labs/hiveflow/internal/collab"
	"github.com/hivemind-labs/hiveflow/internal/core"
	"github.com/hivemind-labs/hiveflow/internal/logging"
	"github.com/hivemind-labs/hiveflow/internal/plan"
)

// PlannerDeps are the collaborators shared by the planner variants.
type PlannerDeps struct {
	Retriever collab.Retriever
	Logger    *logging.Logger
}

func (d *PlannerDeps) defaults() {
	if d.Retriever == nil {
		d.Retriever = collab.StubRetriever{}
	}
	if d.Logger == nil {
		d.Logger = logging.NewNop()
	}
}

// techOption is one catalog entry a planner can pick for a category.
type techOption struct {
	name     string
	maturity core.TechMaturity
}

// techCatalog offers a cutting-edge and a conservative option per
// category. Planner variants pick by risk tolerance.
var techCatalog = map[string]struct {
	cuttingEdge  techOption
	conservative techOption
}{
	"backend": {
		cuttingEdge:  techOption{name: "edge-native service mesh", maturity: core.MaturityExperimental},
		conservative: techOption{name: "monolithic HTTP service", maturity: core.MaturityStable},
	},
	"storage": {
		cuttingEdge:  techOption{name: "distributed log store", maturity: core.MaturityAlpha},
		conservative: techOption{name: "relational database", maturity: core.MaturityStable},
	},
	"frontend": {
		cuttingEdge:  techOption{name: "islands-architecture UI", maturity: core.MaturityBeta},
		conservative: techOption{name: "server-rendered templates", maturity: core.MaturityStable},
	},
	"messaging": {
		cuttingEdge:  techOption{name: "event-sourced stream bus", maturity: core.MaturityAlpha},
		conservative: techOption{name: "work queue", maturity: core.MaturityStable},
	},
}

// NewCuttingEdgePlanner builds the planner biased toward experimental
// technology and aggressive estimates.
func NewCuttingEdgePlanner(deps PlannerDeps) *Base {
	deps.defaults()
	return New(Options{
		Role: core.RoleCuttingEdgePlanner,
		Name: "Cutting-Edge Planner",
		Capabilities: []string{
			core.CapabilityFor(core.TaskTypeTaskPlanning),
			core.CapabilityFor(core.TaskTypePlanning),
			core.CapabilityFor(core.TaskTypeArchitectureDesign),
		},
		Logger:  deps.Logger,
		Execute: planExecute("cutting_edge", deps),
	})
}

// NewConservativePlanner builds the planner biased toward proven
// technology and padded estimates.
func NewConservativePlanner(deps PlannerDeps) *Base {
	deps.defaults()
	return New(Options{
		Role: core.RoleConservativePlanner,
		Name: "Conservative Planner",
		Capabilities: []string{
			core.CapabilityFor(core.TaskTypeTaskPlanning),
			core.CapabilityFor(core.TaskTypePlanning),
			core.CapabilityFor(core.TaskTypeArchitectureDesign),
		},
		Logger:  deps.Logger,
		Execute: planExecute("conservative", deps),
	})
}

// NewSynthesisPlanner builds the planner that merges the two competing
// plans into a balanced one.
func NewSynthesisPlanner(deps PlannerDeps) *Base {
	deps.defaults()
	return New(Options{
		Role: core.RoleSynthesisPlanner,
		Name: "Synthesis Planner",
		Capabilities: []string{
			core.CapabilityFor(core.TaskTypePlanSynthesis),
		},
		Logger:  deps.Logger,
		Execute: synthesisExecute(deps),
	})
}

// planExecute returns the execute closure shared by the two primary
// planner variants. The variant tag drives technology selection and
// effort estimation.
func planExecute(variant string, deps PlannerDeps) ExecuteFunc {
	return func(ctx context.Context, a *Base, task *core.Task) (map[string]interface{}, error) {
		objective := task.Description
		if objective == "" {
			objective = task.Title
		}

		// Prior work is advisory: retrieval failures degrade to an
		// unassisted plan.
		var priorWork []string
		if res, err := deps.Retriever.Retrieve(ctx, collab.RetrievalRequest{
			Query:        objective,
			ContextTypes: []string{"plan", "architecture"},
			MaxResults:   5,
		}); err != nil {
			a.logger.Debug("retrieval unavailable, planning unassisted", "error", err)
		} else {
			for _, chunk := range res.Chunks {
				priorWork = append(priorWork, chunk.Source)
			}
		}

		p := &core.Plan{
			Variant:      variant,
			Objective:    objective,
			Technologies: selectTechnologies(variant, objective),
			Steps:        buildSteps(variant, objective),
		}
		plan.Score(p)

		a.Memory.StoreLong("plans", string(task.ID), p)

		result := map[string]interface{}{
			"plan": p,
		}
		if len(priorWork) > 0 {
			result["prior_work"] = priorWork
		}
		return result, nil
	}
}

// synthesisExecute returns the execute closure of the synthesis
// planner. It consumes the two competing plans from the task context;
// a missing input degrades to the surviving plan.
func synthesisExecute(deps PlannerDeps) ExecuteFunc {
	return func(_ context.Context, a *Base, task *core.Task) (map[string]interface{}, error) {
		objective := task.Description
		if objective == "" {
			objective = task.Title
		}

		cutting, _ := task.Context["cutting_edge_plan"].(*core.Plan)
		conservative, _ := task.Context["conservative_plan"].(*core.Plan)
		if cutting == nil && conservative == nil {
			a.logger.Warn("synthesizing without input plans", "task_id", task.ID)
		}

		merged := plan.Synthesize(objective, cutting, conservative)
		a.Memory.StoreLong("plans", string(task.ID), merged)

		return map[string]interface{}{
			"plan":       merged,
			"plans_used": merged.PlansUsed,
		}, nil
	}
}

// selectTechnologies picks one catalog option per relevant category
// according to the variant's risk tolerance.
func selectTechnologies(variant, objective string) []core.TechChoice {
	categories := relevantCategories(objective)

	out := make([]core.TechChoice, 0, len(categories))
	for _, cat := range categories {
		entry := techCatalog[cat]
		opt := entry.conservative
		justification := "proven at scale"
		if variant == "cutting_edge" {
			opt = entry.cuttingEdge
			justification = "best capability ceiling"
		}
		out = append(out, core.TechChoice{
			Category:      cat,
			Name:          opt.name,
			Maturity:      opt.maturity,
			Justification: justification,
		})
	}
	return out
}

// relevantCategories maps objective keywords onto catalog categories.
// Backend and storage are always in scope.
func relevantCategories(objective string) []string {
	lower := strings.ToLower(objective)
	cats := []string{"backend", "storage"}
	if strings.Contains(lower, "ui") || strings.Contains(lower, "frontend") || strings.Contains(lower, "dashboard") {
		cats = append(cats, "frontend")
	}
	if strings.Contains(lower, "queue") || strings.Contains(lower, "event") || strings.Contains(lower, "stream") {
		cats = append(cats, "messaging")
	}
	return cats
}

// buildSteps produces the implementation steps for a variant. The
// cutting-edge variant estimates tighter and grades steps harder; the
// conservative variant pads estimates and adds a validation step.
func buildSteps(variant, objective string) []core.PlanStep {
	pad := 1.0
	if variant == "conservative" {
		pad = 1.5
	}

	steps := []core.PlanStep{
		{
			Title:          "Design architecture",
			Description:    fmt.Sprintf("Design the architecture for: %s", objective),
			EstimatedHours: 4 * pad,
			Complexity:     core.ComplexityModerate,
			Risks:          []string{"requirements drift"},
			Deliverables:   []string{"architecture document"},
		},
		{
			Title:          "Implement core",
			Description:    "Implement the core behavior end to end",
			EstimatedHours: 12 * pad,
			Complexity:     core.ComplexityComplex,
			Risks:          []string{"integration surprises"},
			Deliverables:   []string{"working implementation"},
		},
		{
			Title:          "Write tests",
			Description:    "Cover the core paths and edge cases",
			EstimatedHours: 6 * pad,
			Complexity:     core.ComplexitySimple,
			Deliverables:   []string{"test suite"},
		},
	}

	if variant == "cutting_edge" {
		steps[1].Complexity = core.ComplexityVeryComplex
		steps[1].Risks = append(steps[1].Risks, "immature tooling")
	} else {
		steps = append(steps, core.PlanStep{
			Title:              "Validate rollout",
			Description:        "Stage the change and verify against production-like data",
			EstimatedHours:     4 * pad,
			Complexity:         core.ComplexitySimple,
			ValidationCriteria: []string{"staged deploy passes smoke checks"},
			Deliverables:       []string{"rollout checklist"},
		})
	}
	return steps
}
