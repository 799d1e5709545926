package events

import "time"

// Event type constants.
const (
	TypeWorkflowStarted   EventType = "workflow_started"
	TypeWorkflowCompleted EventType = "workflow_completed"
	TypeWorkflowFailed    EventType = "workflow_failed"
	TypeWorkflowCancelled EventType = "workflow_cancelled"
	TypePhaseStarted      EventType = "phase_started"
	TypePhaseCompleted    EventType = "phase_completed"
	TypePhaseFailed       EventType = "phase_failed"
	TypeApprovalRequested EventType = "approval_requested"
	TypeTaskAssigned      EventType = "task_assigned"
	TypeMessageDelivered  EventType = "message_delivered"
)

// WorkflowStartedEvent is emitted when a workflow begins.
type WorkflowStartedEvent struct {
	BaseEvent
	Objective string `json:"objective"`
	TaskType  string `json:"task_type"`
}

// NewWorkflowStartedEvent creates a new workflow started event.
func NewWorkflowStartedEvent(workflowID, objective, taskType string) WorkflowStartedEvent {
	return WorkflowStartedEvent{
		BaseEvent: NewBaseEvent(TypeWorkflowStarted, workflowID),
		Objective: objective,
		TaskType:  taskType,
	}
}

// WorkflowCompletedEvent is emitted once when a workflow finishes.
// This is a priority event.
type WorkflowCompletedEvent struct {
	BaseEvent
	Duration time.Duration `json:"duration"`
}

// NewWorkflowCompletedEvent creates a new workflow completed event.
func NewWorkflowCompletedEvent(workflowID string, duration time.Duration) WorkflowCompletedEvent {
	return WorkflowCompletedEvent{
		BaseEvent: NewBaseEvent(TypeWorkflowCompleted, workflowID),
		Duration:  duration,
	}
}

// WorkflowFailedEvent is emitted when a workflow fails.
// This is a priority event.
type WorkflowFailedEvent struct {
	BaseEvent
	Phase string `json:"phase"`
	Error string `json:"error"`
}

// NewWorkflowFailedEvent creates a new workflow failed event.
func NewWorkflowFailedEvent(workflowID, phase string, err error) WorkflowFailedEvent {
	errStr := ""
	if err != nil {
		errStr = err.Error()
	}
	return WorkflowFailedEvent{
		BaseEvent: NewBaseEvent(TypeWorkflowFailed, workflowID),
		Phase:     phase,
		Error:     errStr,
	}
}

// WorkflowCancelledEvent is emitted when a workflow is cancelled.
// This is a priority event.
type WorkflowCancelledEvent struct {
	BaseEvent
	Phase  string `json:"phase"`
	Reason string `json:"reason,omitempty"`
}

// NewWorkflowCancelledEvent creates a new workflow cancelled event.
func NewWorkflowCancelledEvent(workflowID, phase, reason string) WorkflowCancelledEvent {
	return WorkflowCancelledEvent{
		BaseEvent: NewBaseEvent(TypeWorkflowCancelled, workflowID),
		Phase:     phase,
		Reason:    reason,
	}
}

// PhaseStartedEvent is emitted when a phase begins.
type PhaseStartedEvent struct {
	BaseEvent
	Phase   string `json:"phase"`
	AgentID string `json:"agent_id,omitempty"`
}

// NewPhaseStartedEvent creates a new phase started event.
func NewPhaseStartedEvent(workflowID, phase, agentID string) PhaseStartedEvent {
	return PhaseStartedEvent{
		BaseEvent: NewBaseEvent(TypePhaseStarted, workflowID),
		Phase:     phase,
		AgentID:   agentID,
	}
}

// PhaseCompletedEvent is emitted when a phase finishes successfully.
type PhaseCompletedEvent struct {
	BaseEvent
	Phase    string        `json:"phase"`
	AgentID  string        `json:"agent_id,omitempty"`
	Duration time.Duration `json:"duration"`
}

// NewPhaseCompletedEvent creates a new phase completed event.
func NewPhaseCompletedEvent(workflowID, phase, agentID string, duration time.Duration) PhaseCompletedEvent {
	return PhaseCompletedEvent{
		BaseEvent: NewBaseEvent(TypePhaseCompleted, workflowID),
		Phase:     phase,
		AgentID:   agentID,
		Duration:  duration,
	}
}

// PhaseFailedEvent is emitted when a phase fails.
type PhaseFailedEvent struct {
	BaseEvent
	Phase string `json:"phase"`
	Error string `json:"error"`
}

// NewPhaseFailedEvent creates a new phase failed event.
func NewPhaseFailedEvent(workflowID, phase string, err error) PhaseFailedEvent {
	errStr := ""
	if err != nil {
		errStr = err.Error()
	}
	return PhaseFailedEvent{
		BaseEvent: NewBaseEvent(TypePhaseFailed, workflowID),
		Phase:     phase,
		Error:     errStr,
	}
}

// ApprovalRequestedEvent is emitted when a workflow reaches the human
// approval gate.
type ApprovalRequestedEvent struct {
	BaseEvent
	TaskID string `json:"task_id"`
}

// NewApprovalRequestedEvent creates a new approval requested event.
func NewApprovalRequestedEvent(workflowID, taskID string) ApprovalRequestedEvent {
	return ApprovalRequestedEvent{
		BaseEvent: NewBaseEvent(TypeApprovalRequested, workflowID),
		TaskID:    taskID,
	}
}

// TaskAssignedEvent is emitted when the bus assigns a task to an agent.
type TaskAssignedEvent struct {
	BaseEvent
	TaskID  string `json:"task_id"`
	AgentID string `json:"agent_id"`
}

// NewTaskAssignedEvent creates a new task assigned event.
func NewTaskAssignedEvent(workflowID, taskID, agentID string) TaskAssignedEvent {
	return TaskAssignedEvent{
		BaseEvent: NewBaseEvent(TypeTaskAssigned, workflowID),
		TaskID:    taskID,
		AgentID:   agentID,
	}
}

// MessageDeliveredEvent is emitted after the bus delivers a message.
type MessageDeliveredEvent struct {
	BaseEvent
	MessageID   string `json:"message_id"`
	MessageType string `json:"message_type"`
	From        string `json:"from"`
	To          string `json:"to,omitempty"`
}

// NewMessageDeliveredEvent creates a new message delivered event.
func NewMessageDeliveredEvent(messageID, messageType, from, to string) MessageDeliveredEvent {
	return MessageDeliveredEvent{
		BaseEvent:   NewBaseEvent(TypeMessageDelivered, ""),
		MessageID:   messageID,
		MessageType: messageType,
		From:        from,
		To:          to,
	}
}
