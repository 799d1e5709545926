package core

import "fmt"

// Phase represents one node in the workflow graph.
type Phase string

const (
	PhaseRepositoryAnalysis   Phase = "repository_analysis"
	PhaseCuttingEdgePlanning  Phase = "cutting_edge_planning"
	PhaseConservativePlanning Phase = "conservative_planning"
	PhasePlanSynthesis        Phase = "plan_synthesis"
	PhaseCodeGeneration       Phase = "code_generation"
	PhaseDebugging            Phase = "debugging"
	PhaseOptimization         Phase = "optimization"
	PhaseQualityAssessment    Phase = "quality_assessment"
	PhaseHumanApproval        Phase = "human_approval"
	PhaseFinalization         Phase = "finalization"

	// PhaseParallelPlanning is the join sentinel present while the two
	// planning branches run concurrently. It is not an executable phase.
	PhaseParallelPlanning Phase = "parallel_planning"

	// PhaseEnd is the terminal marker returned by conditional edges.
	PhaseEnd Phase = "end"
)

// Agent roles bound to phases.
const (
	RoleAnalyst             = "analyst"
	RoleCuttingEdgePlanner  = "cutting_edge_planner"
	RoleConservativePlanner = "conservative_planner"
	RoleSynthesisPlanner    = "synthesis_planner"
	RoleCoder               = "coder"
)

// PhaseRole returns the agent role responsible for a phase.
// Engine-internal phases (approval, finalization) have no role.
func PhaseRole(p Phase) string {
	switch p {
	case PhaseRepositoryAnalysis:
		return RoleAnalyst
	case PhaseCuttingEdgePlanning:
		return RoleCuttingEdgePlanner
	case PhaseConservativePlanning:
		return RoleConservativePlanner
	case PhasePlanSynthesis:
		return RoleSynthesisPlanner
	case PhaseCodeGeneration, PhaseDebugging, PhaseOptimization, PhaseQualityAssessment:
		return RoleCoder
	default:
		return ""
	}
}

// PhaseTaskType returns the task type dispatched for a phase.
func PhaseTaskType(p Phase) TaskType {
	switch p {
	case PhaseRepositoryAnalysis:
		return TaskTypeRepositoryAnalysis
	case PhaseCuttingEdgePlanning, PhaseConservativePlanning:
		return TaskTypeTaskPlanning
	case PhasePlanSynthesis:
		return TaskTypePlanSynthesis
	case PhaseCodeGeneration:
		return TaskTypeCodeGeneration
	case PhaseDebugging:
		return TaskTypeDebugging
	case PhaseOptimization:
		return TaskTypeOptimization
	case PhaseQualityAssessment:
		return TaskTypeQualityAssessment
	default:
		return ""
	}
}

// ValidPhase checks if a phase string names a known phase.
func ValidPhase(p Phase) bool {
	switch p {
	case PhaseRepositoryAnalysis, PhaseCuttingEdgePlanning, PhaseConservativePlanning,
		PhasePlanSynthesis, PhaseCodeGeneration, PhaseDebugging, PhaseOptimization,
		PhaseQualityAssessment, PhaseHumanApproval, PhaseFinalization,
		PhaseParallelPlanning, PhaseEnd:
		return true
	default:
		return false
	}
}

// ParsePhase converts a string to a Phase with validation.
func ParsePhase(s string) (Phase, error) {
	p := Phase(s)
	if !ValidPhase(p) {
		return "", fmt.Errorf("invalid phase: %s", s)
	}
	return p, nil
}

// String returns the string representation of the phase.
func (p Phase) String() string {
	return string(p)
}
