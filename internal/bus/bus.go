// Package bus implements the asynchronous message bus between agents:
// agent registry, FIFO delivery through a background worker, named
// groups, bounded history, task coordination and response collection,
// and conflict resolution across competing results.
package bus

import (
	"context"
	"sync"

	"github.com/hivemind-labs/hiveflow/internal/core"
	"github.com/hivemind-labs/hiveflow/internal/events"
	"github.com/hivemind-labs/hiveflow/internal/logging"
)

// DefaultHistorySize bounds the delivered-message history ring.
const DefaultHistorySize = 1000

// minGroupSize is the smallest allowed collaboration group.
const minGroupSize = 2

// Metrics counts bus activity since start.
type Metrics struct {
	Sent          int64 `json:"sent"`
	Delivered     int64 `json:"delivered"`
	Broadcast     int64 `json:"broadcast"`
	Undeliverable int64 `json:"undeliverable"`
	Replies       int64 `json:"replies"`
}

// Subscription receives a copy of every delivered message of the
// subscribed types. Callback panics are isolated.
type Subscription func(msg *core.Message)

// Options configures a Bus.
type Options struct {
	HistorySize int
	Events      *events.EventBus
	Logger      *logging.Logger
}

// Bus routes messages between registered agents. Delivery is
// asynchronous: Send enqueues and a single background worker drains
// the queue in FIFO order.
type Bus struct {
	logger *logging.Logger
	events *events.EventBus

	mu          sync.Mutex
	cond        *sync.Cond
	agents      map[string]core.Agent
	groups      map[string][]string
	assignments map[core.TaskID][]string
	queue       []*core.Message
	history     []*core.Message
	historySize int
	subs        map[core.MessageType][]Subscription
	allSubs     []Subscription
	metrics     Metrics
	closed      bool
	done        chan struct{}
}

// New creates a bus. Call Start before sending.
func New(opts Options) *Bus {
	if opts.HistorySize <= 0 {
		opts.HistorySize = DefaultHistorySize
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	b := &Bus{
		logger:      opts.Logger,
		events:      opts.Events,
		agents:      make(map[string]core.Agent),
		groups:      make(map[string][]string),
		assignments: make(map[core.TaskID][]string),
		historySize: opts.HistorySize,
		subs:        make(map[core.MessageType][]Subscription),
		done:        make(chan struct{}),
	}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Start launches the delivery worker.
func (b *Bus) Start() {
	go b.deliverLoop()
}

// Close stops the worker after the queue drains. Further sends are
// rejected.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.cond.Broadcast()
	b.mu.Unlock()
	<-b.done
}

// Register adds an agent to the registry.
func (b *Bus) Register(agent core.Agent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.agents[agent.ID()]; exists {
		return core.ErrState("AGENT_EXISTS", "agent already registered: "+agent.ID())
	}
	b.agents[agent.ID()] = agent
	return nil
}

// Unregister removes an agent. Group memberships survive; group sends
// skip unknown members.
func (b *Bus) Unregister(agentID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.agents, agentID)
}

// Agent returns a registered agent by ID.
func (b *Bus) Agent(agentID string) (core.Agent, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	a, ok := b.agents[agentID]
	return a, ok
}

// Agents returns all registered agents.
func (b *Bus) Agents() []core.Agent {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]core.Agent, 0, len(b.agents))
	for _, a := range b.agents {
		out = append(out, a)
	}
	return out
}

// AgentsByRole returns registered agents carrying the role.
func (b *Bus) AgentsByRole(role string) []core.Agent {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []core.Agent
	for _, a := range b.agents {
		if a.Role() == role {
			out = append(out, a)
		}
	}
	return out
}

// Send enqueues a directed or broadcast message for delivery.
func (b *Bus) Send(msg *core.Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return core.ErrState("BUS_CLOSED", "bus is closed")
	}
	b.queue = append(b.queue, msg)
	b.metrics.Sent++
	b.cond.Signal()
	return nil
}

// CreateGroup creates an immutable named group. Membership must name
// at least two registered agents.
func (b *Bus) CreateGroup(groupID string, members []string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(members) < minGroupSize {
		return core.ErrValidation("GROUP_TOO_SMALL", "group needs at least two members")
	}
	if _, exists := b.groups[groupID]; exists {
		return core.ErrState("GROUP_EXISTS", "group already exists: "+groupID)
	}
	for _, m := range members {
		if _, ok := b.agents[m]; !ok {
			return core.ErrNotFound("agent", m)
		}
	}
	b.groups[groupID] = append([]string(nil), members...)

	notice := core.NewMessage("bus", "", core.MsgGroupCreated, map[string]interface{}{
		"group_id": groupID,
		"members":  append([]string(nil), members...),
	})
	for _, m := range members {
		copyMsg := *notice
		copyMsg.To = m
		b.queue = append(b.queue, &copyMsg)
		b.metrics.Sent++
	}
	b.cond.Signal()
	return nil
}

// DisbandGroup removes a group and notifies its members.
func (b *Bus) DisbandGroup(groupID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	members, ok := b.groups[groupID]
	if !ok {
		return core.ErrNotFound("group", groupID)
	}
	delete(b.groups, groupID)

	notice := core.NewMessage("bus", "", core.MsgGroupDisbanded, map[string]interface{}{
		"group_id": groupID,
	})
	for _, m := range members {
		copyMsg := *notice
		copyMsg.To = m
		b.queue = append(b.queue, &copyMsg)
		b.metrics.Sent++
	}
	b.cond.Signal()
	return nil
}

// SendToGroup fans a message out to current group members, skipping
// the sender.
func (b *Bus) SendToGroup(groupID string, msg *core.Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	members, ok := b.groups[groupID]
	if !ok {
		return core.ErrNotFound("group", groupID)
	}
	for _, m := range members {
		if m == msg.From {
			continue
		}
		copyMsg := *msg
		copyMsg.To = m
		b.queue = append(b.queue, &copyMsg)
		b.metrics.Sent++
	}
	b.cond.Signal()
	return nil
}

// Subscribe registers a callback for delivered messages of the given
// types; no types means all messages.
func (b *Bus) Subscribe(fn Subscription, types ...core.MessageType) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(types) == 0 {
		b.allSubs = append(b.allSubs, fn)
		return
	}
	for _, t := range types {
		b.subs[t] = append(b.subs[t], fn)
	}
}

// History returns a copy of the delivered-message history, oldest first.
func (b *Bus) History() []*core.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*core.Message, len(b.history))
	copy(out, b.history)
	return out
}

// Snapshot returns the current metrics.
func (b *Bus) Snapshot() Metrics {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.metrics
}

// deliverLoop drains the queue one message at a time, preserving
// enqueue order.
func (b *Bus) deliverLoop() {
	defer close(b.done)
	for {
		b.mu.Lock()
		for len(b.queue) == 0 && !b.closed {
			b.cond.Wait()
		}
		if len(b.queue) == 0 && b.closed {
			b.mu.Unlock()
			return
		}
		msg := b.queue[0]
		b.queue = b.queue[1:]
		b.mu.Unlock()

		b.deliver(msg)
	}
}

// deliver routes one message: directed to its recipient, broadcast to
// every registered agent except the sender.
func (b *Bus) deliver(msg *core.Message) {
	if msg.IsBroadcast() {
		b.mu.Lock()
		targets := make([]core.Agent, 0, len(b.agents))
		for id, a := range b.agents {
			if id != msg.From {
				targets = append(targets, a)
			}
		}
		b.metrics.Broadcast++
		b.mu.Unlock()

		for _, a := range targets {
			b.deliverTo(a, msg)
		}
		return
	}

	b.mu.Lock()
	target, ok := b.agents[msg.To]
	if !ok {
		b.metrics.Undeliverable++
	}
	b.mu.Unlock()

	if !ok {
		b.logger.Warn("undeliverable message", "to", msg.To, "type", msg.Type)
		return
	}
	b.deliverTo(target, msg)
}

func (b *Bus) deliverTo(agent core.Agent, msg *core.Message) {
	reply, err := agent.Receive(context.Background(), msg)
	if err != nil {
		b.logger.Warn("receive failed", "agent", agent.ID(), "type", msg.Type, "error", err)
	}

	b.mu.Lock()
	b.metrics.Delivered++
	b.history = append(b.history, msg)
	if len(b.history) > b.historySize {
		b.history = b.history[len(b.history)-b.historySize:]
	}
	if reply != nil && reply.To != "" {
		if !b.closed {
			b.queue = append(b.queue, reply)
			b.metrics.Sent++
			b.metrics.Replies++
			b.cond.Signal()
		}
	}
	subs := append([]Subscription(nil), b.allSubs...)
	subs = append(subs, b.subs[msg.Type]...)
	b.mu.Unlock()

	if b.events != nil {
		b.events.Publish(events.NewMessageDeliveredEvent(msg.ID, string(msg.Type), msg.From, msg.To))
	}
	for _, fn := range subs {
		b.notify(fn, msg)
	}
}

// notify runs one subscription callback, isolating panics so a broken
// subscriber cannot stall delivery.
func (b *Bus) notify(fn Subscription, msg *core.Message) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Warn("subscriber panicked", "type", msg.Type, "panic", r)
		}
	}()
	fn(msg)
}
