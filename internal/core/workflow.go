package core

import (
	"time"

	"github.com/google/uuid"
)

// WorkflowStatus represents the current state of a workflow run.
type WorkflowStatus string

const (
	WorkflowStatusPending          WorkflowStatus = "pending"
	WorkflowStatusRunning          WorkflowStatus = "running"
	WorkflowStatusPaused           WorkflowStatus = "paused"
	WorkflowStatusCompleted        WorkflowStatus = "completed"
	WorkflowStatusFailed           WorkflowStatus = "failed"
	WorkflowStatusCancelled        WorkflowStatus = "cancelled"
	WorkflowStatusRequiresApproval WorkflowStatus = "requires_approval"
)

// ApprovalStatus records the outcome of a human approval gate.
type ApprovalStatus string

const (
	ApprovalPending   ApprovalStatus = "pending"
	ApprovalApproved  ApprovalStatus = "approved"
	ApprovalRejected  ApprovalStatus = "rejected"
	ApprovalCancelled ApprovalStatus = "cancelled"
)

// WorkflowState is the typed record threaded through all phases.
// The engine owns the state exclusively; phase handlers receive
// read-only snapshots and return deltas the engine merges.
type WorkflowState struct {
	WorkflowID  string                 `json:"workflow_id"`
	TaskID      TaskID                 `json:"task_id"`
	Description string                 `json:"description"`
	TaskType    TaskType               `json:"task_type"`
	Context     map[string]interface{} `json:"context,omitempty"`

	// Phase outputs, accumulated monotonically.
	RepositoryAnalysis *AnalysisReport        `json:"repository_analysis,omitempty"`
	CuttingEdgePlan    *Plan                  `json:"cutting_edge_plan,omitempty"`
	ConservativePlan   *Plan                  `json:"conservative_plan,omitempty"`
	SynthesisPlan      *Plan                  `json:"synthesis_plan,omitempty"`
	SelectedPlan       *Plan                  `json:"selected_plan,omitempty"`
	GeneratedCode      string                 `json:"generated_code,omitempty"`
	DebuggedCode       string                 `json:"debugged_code,omitempty"`
	OptimizedCode      string                 `json:"optimized_code,omitempty"`
	TestResults        map[string]interface{} `json:"test_results,omitempty"`
	QualityAssessment  map[string]interface{} `json:"quality_assessment,omitempty"`

	// Control fields.
	Status                WorkflowStatus `json:"workflow_status"`
	CurrentPhase          Phase          `json:"current_phase"`
	RetryCount            int            `json:"retry_count"`
	Errors                []string       `json:"errors,omitempty"`
	RequiresHumanApproval bool           `json:"requires_human_approval"`
	ApprovalStatus        ApprovalStatus `json:"approval_status,omitempty"`

	// Assignment maps.
	PhaseAgents  map[Phase]string `json:"phase_agents,omitempty"`  // phase -> agent id
	AgentOutputs map[string]Phase `json:"agent_outputs,omitempty"` // agent id -> last phase produced

	UpdatedAt time.Time `json:"updated_at"`
}

// NewWorkflowState creates a pending state for a workflow task.
func NewWorkflowState(taskID TaskID, description string, taskType TaskType) *WorkflowState {
	return &WorkflowState{
		WorkflowID:   uuid.NewString(),
		TaskID:       taskID,
		Description:  description,
		TaskType:     taskType,
		Context:      make(map[string]interface{}),
		Status:       WorkflowStatusPending,
		PhaseAgents:  make(map[Phase]string),
		AgentOutputs: make(map[string]Phase),
		UpdatedAt:    time.Now(),
	}
}

// AppendError records an error. Errors are append-only within a run.
func (s *WorkflowState) AppendError(msg string) {
	s.Errors = append(s.Errors, msg)
	s.UpdatedAt = time.Now()
}

// IsTerminal reports whether the workflow reached a terminal status.
// Terminal state is read-only by contract.
func (s *WorkflowState) IsTerminal() bool {
	return s.Status == WorkflowStatusCompleted ||
		s.Status == WorkflowStatusFailed ||
		s.Status == WorkflowStatusCancelled
}

// AssignPhase records the agent chosen for a phase.
func (s *WorkflowState) AssignPhase(phase Phase, agentID string) {
	if s.PhaseAgents == nil {
		s.PhaseAgents = make(map[Phase]string)
	}
	if s.AgentOutputs == nil {
		s.AgentOutputs = make(map[string]Phase)
	}
	s.PhaseAgents[phase] = agentID
	s.AgentOutputs[agentID] = phase
	s.UpdatedAt = time.Now()
}

// Snapshot returns a deep copy handed to phase handlers.
func (s *WorkflowState) Snapshot() *WorkflowState {
	c := *s
	c.Context = copyMap(s.Context)
	c.TestResults = copyMap(s.TestResults)
	c.QualityAssessment = copyMap(s.QualityAssessment)
	c.Errors = append([]string(nil), s.Errors...)
	if s.PhaseAgents != nil {
		c.PhaseAgents = make(map[Phase]string, len(s.PhaseAgents))
		for k, v := range s.PhaseAgents {
			c.PhaseAgents[k] = v
		}
	}
	if s.AgentOutputs != nil {
		c.AgentOutputs = make(map[string]Phase, len(s.AgentOutputs))
		for k, v := range s.AgentOutputs {
			c.AgentOutputs[k] = v
		}
	}
	return &c
}

func copyMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	c := make(map[string]interface{}, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}

// FinalOutput assembles the output map keyed by phase output names.
func (s *WorkflowState) FinalOutput() map[string]interface{} {
	out := make(map[string]interface{})
	if s.RepositoryAnalysis != nil {
		out["repository_analysis"] = s.RepositoryAnalysis
	}
	if s.CuttingEdgePlan != nil {
		out["cutting_edge_plan"] = s.CuttingEdgePlan
	}
	if s.ConservativePlan != nil {
		out["conservative_plan"] = s.ConservativePlan
	}
	if s.SynthesisPlan != nil {
		out["synthesis_plan"] = s.SynthesisPlan
	}
	if s.SelectedPlan != nil {
		out["selected_plan"] = s.SelectedPlan
	}
	if s.GeneratedCode != "" {
		out["generated_code"] = s.GeneratedCode
	}
	if s.DebuggedCode != "" {
		out["debugged_code"] = s.DebuggedCode
	}
	if s.OptimizedCode != "" {
		out["optimized_code"] = s.OptimizedCode
	}
	if s.TestResults != nil {
		out["test_results"] = s.TestResults
	}
	if s.QualityAssessment != nil {
		out["quality_assessment"] = s.QualityAssessment
	}
	return out
}

// NodeStatus represents the state of a single node execution.
type NodeStatus string

const (
	NodeStatusRunning   NodeStatus = "running"
	NodeStatusCompleted NodeStatus = "completed"
	NodeStatusFailed    NodeStatus = "failed"
	NodeStatusCancelled NodeStatus = "cancelled"
	NodeStatusTimeout   NodeStatus = "timeout"
)

// NodeExecution records one phase execution for provenance.
type NodeExecution struct {
	Phase       Phase                  `json:"phase"`
	AgentID     string                 `json:"agent_id,omitempty"`
	Status      NodeStatus             `json:"status"`
	Input       map[string]interface{} `json:"input,omitempty"`
	Error       string                 `json:"error,omitempty"`
	StartedAt   time.Time              `json:"started_at"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
}

// Duration returns how long the node ran.
func (n *NodeExecution) Duration() time.Duration {
	if n.CompletedAt == nil {
		return time.Since(n.StartedAt)
	}
	return n.CompletedAt.Sub(n.StartedAt)
}

// WorkflowMetrics aggregates per-run execution counters.
type WorkflowMetrics struct {
	NodesExecuted    int                      `json:"nodes_executed"`
	Succeeded        int                      `json:"succeeded"`
	Failed           int                      `json:"failed"`
	SuccessRate      float64                  `json:"success_rate"`
	TotalDuration    time.Duration            `json:"total_duration"`
	PhaseDurations   map[string]time.Duration `json:"phase_durations,omitempty"`
	AveragePhaseTime time.Duration            `json:"average_phase_time"`
}

// WorkflowResult is the finalized record of a workflow run.
type WorkflowResult struct {
	WorkflowID     string                 `json:"workflow_id"`
	TaskID         TaskID                 `json:"task_id"`
	Status         WorkflowStatus         `json:"status"`
	StartedAt      time.Time              `json:"started_at"`
	CompletedAt    *time.Time             `json:"completed_at,omitempty"`
	Duration       time.Duration          `json:"duration"`
	Phases         []NodeExecution        `json:"phases"`
	Output         map[string]interface{} `json:"output,omitempty"`
	Errors         []string               `json:"errors,omitempty"`
	AgentsInvolved []string               `json:"agents_involved,omitempty"`
	Metrics        WorkflowMetrics        `json:"metrics"`
}
