package core

import "context"

// CapabilityFor returns the capability string an agent must advertise
// to accept tasks of the given type.
func CapabilityFor(t TaskType) string {
	return "handle_" + string(t)
}

// AgentStatus is a point-in-time snapshot of an agent.
type AgentStatus struct {
	ID                 string   `json:"id"`
	Role               string   `json:"role"`
	Name               string   `json:"name"`
	Active             bool     `json:"active"`
	Capabilities       []string `json:"capabilities"`
	CurrentTasks       []TaskID `json:"current_tasks"`
	MaxConcurrentTasks int      `json:"max_concurrent_tasks"`
	Partners           []string `json:"partners,omitempty"`
	TasksCompleted     int      `json:"tasks_completed"`
	TasksFailed        int      `json:"tasks_failed"`
}

// Agent is the contract shared by all workers. An agent owns its memory
// and task list; nothing outside the agent mutates them.
type Agent interface {
	// ID returns the unique agent identifier.
	ID() string
	// Role returns the role tag used for phase routing.
	Role() string
	// Name returns the display name.
	Name() string
	// Capabilities returns the advertised capability set.
	Capabilities() []string

	// Accept reports whether the agent will take the task:
	// active, below its concurrency cap, and capable of the task type.
	Accept(task *Task) bool

	// Process runs the task to a terminal state. Failures never
	// propagate as errors; the returned task carries the outcome.
	Process(ctx context.Context, task *Task) *Task

	// Receive handles a bus message. A nil reply means no response.
	Receive(ctx context.Context, msg *Message) (*Message, error)

	// Start activates the agent.
	Start()
	// Stop deactivates the agent, cancels in-flight tasks and clears
	// session-scoped memory.
	Stop()

	// Status returns a snapshot of the agent.
	Status() AgentStatus

	// LookupTask returns a clone of a task the agent knows about,
	// in-flight or recently finished. Used by the bus for collection.
	LookupTask(id TaskID) (*Task, bool)
}
