package core

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TaskID uniquely identifies a task.
type TaskID string

// NewTaskID generates a fresh task identifier.
func NewTaskID() TaskID {
	return TaskID(uuid.NewString())
}

// TaskType tags a task with the kind of work it carries.
type TaskType string

const (
	TaskTypeRepositoryAnalysis    TaskType = "repository_analysis"
	TaskTypeCodeAnalysis          TaskType = "code_analysis"
	TaskTypeTaskPlanning          TaskType = "task_planning"
	TaskTypePlanSynthesis         TaskType = "plan_synthesis"
	TaskTypeCodeGeneration        TaskType = "code_generation"
	TaskTypeFeatureImplementation TaskType = "feature_implementation"
	TaskTypeBugFix                TaskType = "bug_fix"
	TaskTypePlanning              TaskType = "planning"
	TaskTypeArchitectureDesign    TaskType = "architecture_design"
	TaskTypeDebugging             TaskType = "debugging"
	TaskTypeOptimization          TaskType = "optimization"
	TaskTypeQualityAssessment     TaskType = "quality_assessment"
)

// Priority orders tasks by urgency.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// TaskStatus represents the current state of a task.
// The wire enumeration also carries planning/executing/reviewing for
// front-end display; the core lifecycle is pending -> in_progress ->
// completed | failed | cancelled.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusPlanning   TaskStatus = "planning"
	TaskStatusExecuting  TaskStatus = "executing"
	TaskStatusReviewing  TaskStatus = "reviewing"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
	TaskStatusCancelled  TaskStatus = "cancelled"
)

// Task represents a unit of work dispatched to an agent.
// Fields other than status, result, error and the timestamps are
// immutable after creation; transitions go through the Mark methods.
type Task struct {
	ID            TaskID                 `json:"id"`
	Title         string                 `json:"title"`
	Description   string                 `json:"description"`
	Type          TaskType               `json:"type"`
	Priority      Priority               `json:"priority"`
	Status        TaskStatus             `json:"status"`
	CreatedAt     time.Time              `json:"created_at"`
	AssignedAgent string                 `json:"assigned_agent,omitempty"`
	ParentID      TaskID                 `json:"parent_id,omitempty"`
	Context       map[string]interface{} `json:"context,omitempty"`
	Result        map[string]interface{} `json:"result,omitempty"`
	Error         string                 `json:"error,omitempty"`
	StartedAt     *time.Time             `json:"started_at,omitempty"`
	CompletedAt   *time.Time             `json:"completed_at,omitempty"`
}

// NewTask creates a pending task of the given type.
func NewTask(title string, taskType TaskType) *Task {
	return &Task{
		ID:        NewTaskID(),
		Title:     title,
		Type:      taskType,
		Priority:  PriorityMedium,
		Status:    TaskStatusPending,
		CreatedAt: time.Now(),
		Context:   make(map[string]interface{}),
	}
}

// WithDescription sets the task description.
func (t *Task) WithDescription(desc string) *Task {
	t.Description = desc
	return t
}

// WithPriority sets the task priority.
func (t *Task) WithPriority(p Priority) *Task {
	t.Priority = p
	return t
}

// WithParent links the task to a parent task.
func (t *Task) WithParent(parent TaskID) *Task {
	t.ParentID = parent
	return t
}

// WithContext merges the given entries into the task context.
func (t *Task) WithContext(ctx map[string]interface{}) *Task {
	if t.Context == nil {
		t.Context = make(map[string]interface{})
	}
	for k, v := range ctx {
		t.Context[k] = v
	}
	return t
}

// MarkInProgress transitions the task to in_progress and records the owner.
func (t *Task) MarkInProgress(agentID string) error {
	if t.Status != TaskStatusPending {
		return ErrState(CodeInvalidState, fmt.Sprintf("cannot start task in %s state", t.Status))
	}
	t.Status = TaskStatusInProgress
	t.AssignedAgent = agentID
	now := time.Now()
	t.StartedAt = &now
	return nil
}

// MarkCompleted transitions the task to completed with its result.
func (t *Task) MarkCompleted(result map[string]interface{}) error {
	if t.Status != TaskStatusInProgress {
		return ErrState(CodeInvalidState, fmt.Sprintf("cannot complete task in %s state", t.Status))
	}
	t.Status = TaskStatusCompleted
	t.Result = result
	now := time.Now()
	t.CompletedAt = &now
	return nil
}

// MarkFailed transitions the task to failed with the error.
func (t *Task) MarkFailed(err error) error {
	if t.Status != TaskStatusInProgress {
		return ErrState(CodeInvalidState, fmt.Sprintf("cannot fail task in %s state", t.Status))
	}
	t.Status = TaskStatusFailed
	if err != nil {
		t.Error = err.Error()
	}
	now := time.Now()
	t.CompletedAt = &now
	return nil
}

// MarkCancelled transitions the task to cancelled. Allowed from pending
// and in_progress; cancelling a terminal task is a no-op (idempotent).
func (t *Task) MarkCancelled(reason string) error {
	switch t.Status {
	case TaskStatusPending, TaskStatusInProgress:
		t.Status = TaskStatusCancelled
		if reason != "" {
			t.Error = reason
		}
		now := time.Now()
		t.CompletedAt = &now
		return nil
	case TaskStatusCancelled:
		return nil
	default:
		return ErrState(CodeInvalidState, fmt.Sprintf("cannot cancel task in %s state", t.Status))
	}
}

// IsTerminal returns true if the task is in a terminal state.
func (t *Task) IsTerminal() bool {
	return t.Status == TaskStatusCompleted ||
		t.Status == TaskStatusFailed ||
		t.Status == TaskStatusCancelled
}

// IsSuccess returns true if the task completed successfully.
func (t *Task) IsSuccess() bool {
	return t.Status == TaskStatusCompleted
}

// Duration returns the task execution duration.
func (t *Task) Duration() time.Duration {
	if t.StartedAt == nil {
		return 0
	}
	end := time.Now()
	if t.CompletedAt != nil {
		end = *t.CompletedAt
	}
	return end.Sub(*t.StartedAt)
}

// Validate checks task invariants.
func (t *Task) Validate() error {
	if t.ID == "" {
		return ErrValidation("TASK_ID_REQUIRED", "task ID cannot be empty")
	}
	if t.Title == "" {
		return ErrValidation("TASK_TITLE_REQUIRED", "task title cannot be empty")
	}
	if t.Type == "" {
		return ErrValidation("TASK_TYPE_REQUIRED", "task type cannot be empty")
	}
	return nil
}

// Clone returns a deep copy of the task. Agents hand clones to the bus
// so callers never observe in-flight mutation.
func (t *Task) Clone() *Task {
	c := *t
	if t.Context != nil {
		c.Context = make(map[string]interface{}, len(t.Context))
		for k, v := range t.Context {
			c.Context[k] = v
		}
	}
	if t.Result != nil {
		c.Result = make(map[string]interface{}, len(t.Result))
		for k, v := range t.Result {
			c.Result[k] = v
		}
	}
	if t.StartedAt != nil {
		started := *t.StartedAt
		c.StartedAt = &started
	}
	if t.CompletedAt != nil {
		completed := *t.CompletedAt
		c.CompletedAt = &completed
	}
	return &c
}
