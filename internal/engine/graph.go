package engine

import (
	"strings"

	"github.com/hivemind-labs/hiveflow/internal/core"
)

// Condition evaluates the state after a phase and names the outgoing
// edge to follow.
type Condition func(s *core.WorkflowState) string

// conditionalEdge routes by the label a condition returns.
type conditionalEdge struct {
	condition Condition
	targets   map[string]core.Phase
}

// Graph is the phase graph: plain edges, conditional edges, and one
// parallel fan-out group joined before its successor.
type Graph struct {
	start       core.Phase
	edges       map[core.Phase]core.Phase
	conditional map[core.Phase]conditionalEdge
	parallel    map[core.Phase][]core.Phase // fan-out trigger -> branches
	join        map[core.Phase]core.Phase   // fan-out trigger -> phase after join
}

// Next returns the unconditional successor of a phase.
func (g *Graph) Next(p core.Phase) (core.Phase, bool) {
	next, ok := g.edges[p]
	return next, ok
}

// Conditional returns the conditional edge leaving a phase.
func (g *Graph) Conditional(p core.Phase) (conditionalEdge, bool) {
	edge, ok := g.conditional[p]
	return edge, ok
}

// Parallel returns the branches fanned out after a phase.
func (g *Graph) Parallel(p core.Phase) ([]core.Phase, bool) {
	branches, ok := g.parallel[p]
	return branches, ok
}

// Join returns the phase entered once all branches of a fan-out are done.
func (g *Graph) Join(p core.Phase) core.Phase {
	return g.join[p]
}

// FanOut returns the graph's parallel stage: the phase triggering it
// and its branches. Graphs carry at most one fan-out group.
func (g *Graph) FanOut() (core.Phase, []core.Phase, bool) {
	for src, branches := range g.parallel {
		return src, branches, true
	}
	return "", nil, false
}

// CodeGenerationGraph builds the production workflow:
//
//	repository_analysis
//	  -> {cutting_edge_planning || conservative_planning}
//	  -> plan_synthesis -> code_generation
//	  -> [broken?] debugging -> [retry | optimize | fail]
//	  -> optimization -> quality_assessment
//	  -> [approval?] human_approval -> finalization
func CodeGenerationGraph(maxRetries int) *Graph {
	return &Graph{
		start: core.PhaseRepositoryAnalysis,
		edges: map[core.Phase]core.Phase{
			core.PhasePlanSynthesis: core.PhaseCodeGeneration,
			core.PhaseOptimization:  core.PhaseQualityAssessment,
			core.PhaseHumanApproval: core.PhaseFinalization,
			core.PhaseFinalization:  core.PhaseEnd,
		},
		parallel: map[core.Phase][]core.Phase{
			core.PhaseRepositoryAnalysis: {core.PhaseCuttingEdgePlanning, core.PhaseConservativePlanning},
		},
		join: map[core.Phase]core.Phase{
			core.PhaseRepositoryAnalysis: core.PhasePlanSynthesis,
		},
		conditional: map[core.Phase]conditionalEdge{
			core.PhaseCodeGeneration: {
				condition: shouldDebug,
				targets: map[string]core.Phase{
					"debug":    core.PhaseDebugging,
					"optimize": core.PhaseOptimization,
				},
			},
			core.PhaseDebugging: {
				condition: shouldRetry(maxRetries),
				targets: map[string]core.Phase{
					"retry":    core.PhaseCodeGeneration,
					"optimize": core.PhaseOptimization,
					"fail":     core.PhaseEnd,
				},
			},
			core.PhaseQualityAssessment: {
				condition: needsApproval,
				targets: map[string]core.Phase{
					"approve":  core.PhaseHumanApproval,
					"finalize": core.PhaseFinalization,
				},
			},
		},
	}
}

// shouldDebug routes to debugging when generation produced nothing or
// the output still carries error markers.
func shouldDebug(s *core.WorkflowState) string {
	if s.GeneratedCode == "" || strings.Contains(s.GeneratedCode, "error") {
		return "debug"
	}
	return "optimize"
}

// shouldRetry decides after debugging: give up once retries are
// exhausted, continue when debugging repaired the code, otherwise
// regenerate.
func shouldRetry(maxRetries int) Condition {
	return func(s *core.WorkflowState) string {
		if s.RetryCount >= maxRetries {
			return "fail"
		}
		if s.DebuggedCode != "" {
			return "optimize"
		}
		return "retry"
	}
}

// needsApproval gates finalization behind a human decision when the
// run requested it.
func needsApproval(s *core.WorkflowState) string {
	if s.RequiresHumanApproval {
		return "approve"
	}
	return "finalize"
}
