package core

import (
	"time"

	"github.com/google/uuid"
)

// MessageType tags a message with its routing semantics.
type MessageType string

const (
	MsgCollaborationRequest  MessageType = "collaboration_request"
	MsgCollaborationAccepted MessageType = "collaboration_accepted"
	MsgTaskAssignment        MessageType = "task_assignment"
	MsgTaskResponse          MessageType = "task_response"
	MsgStatusInquiry         MessageType = "status_inquiry"
	MsgStatusResponse        MessageType = "status_response"
	MsgGroupCreated          MessageType = "group_created"
	MsgGroupDisbanded        MessageType = "group_disbanded"
)

// Message is an envelope routed through the bus between agents.
// It is immutable after send.
type Message struct {
	ID               string                 `json:"id"`
	From             string                 `json:"from"`
	To               string                 `json:"to,omitempty"` // empty means broadcast / group-scoped
	Type             MessageType            `json:"type"`
	Content          map[string]interface{} `json:"content,omitempty"`
	Timestamp        time.Time              `json:"timestamp"`
	TaskID           TaskID                 `json:"task_id,omitempty"`
	RequiresResponse bool                   `json:"requires_response,omitempty"`
}

// NewMessage creates a directed message.
func NewMessage(from, to string, msgType MessageType, content map[string]interface{}) *Message {
	return &Message{
		ID:        uuid.NewString(),
		From:      from,
		To:        to,
		Type:      msgType,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// WithTask associates the message with a task.
func (m *Message) WithTask(id TaskID) *Message {
	m.TaskID = id
	return m
}

// WithResponseRequired flags the message as expecting a reply.
func (m *Message) WithResponseRequired() *Message {
	m.RequiresResponse = true
	return m
}

// IsBroadcast reports whether the message has no specific recipient.
func (m *Message) IsBroadcast() bool {
	return m.To == ""
}
