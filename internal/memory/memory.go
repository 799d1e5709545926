// Package memory implements the per-agent memory tiers: short-term
// session memory, task-scoped working memory, categorized long-term
// memory with access counters, and a bounded conversation history.
package memory

import (
	"sync"
	"time"

	"github.com/hivemind-labs/hiveflow/internal/core"
)

// DefaultHistorySize bounds the conversation history ring.
const DefaultHistorySize = 100

type shortEntry struct {
	Value    interface{}
	StoredAt time.Time
}

// LongTermItem is a categorized long-term memory entry.
type LongTermItem struct {
	Value       interface{}
	StoredAt    time.Time
	AccessCount int
}

// Store holds all memory tiers for a single agent. The agent owns the
// store; the mutex only serializes agent-goroutine vs bus-delivery access.
type Store struct {
	mu          sync.Mutex
	shortTerm   map[string]shortEntry
	working     map[string]interface{}
	longTerm    map[string]map[string]*LongTermItem
	history     []*core.Message
	historySize int
}

// NewStore creates a memory store with the given history bound.
func NewStore(historySize int) *Store {
	if historySize <= 0 {
		historySize = DefaultHistorySize
	}
	return &Store{
		shortTerm:   make(map[string]shortEntry),
		working:     make(map[string]interface{}),
		longTerm:    make(map[string]map[string]*LongTermItem),
		historySize: historySize,
	}
}

// SetShort stores a session-scoped value.
func (s *Store) SetShort(key string, value interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shortTerm[key] = shortEntry{Value: value, StoredAt: time.Now()}
}

// GetShort retrieves a session-scoped value.
func (s *Store) GetShort(key string) (interface{}, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.shortTerm[key]
	if !ok {
		return nil, false
	}
	return e.Value, true
}

// ClearShort wipes session memory. Called on agent stop.
func (s *Store) ClearShort() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shortTerm = make(map[string]shortEntry)
}

// SetWorking stores a task-scoped value.
func (s *Store) SetWorking(key string, value interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.working[key] = value
}

// GetWorking retrieves a task-scoped value.
func (s *Store) GetWorking(key string) (interface{}, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.working[key]
	return v, ok
}

// WorkingSize returns the number of working memory entries.
func (s *Store) WorkingSize() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.working)
}

// ClearWorking wipes working memory. Guaranteed to run on every task
// exit path.
func (s *Store) ClearWorking() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.working = make(map[string]interface{})
}

// StoreLong stores a categorized long-term entry.
func (s *Store) StoreLong(category, key string, value interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cat, ok := s.longTerm[category]
	if !ok {
		cat = make(map[string]*LongTermItem)
		s.longTerm[category] = cat
	}
	cat[key] = &LongTermItem{Value: value, StoredAt: time.Now()}
}

// RecallLong retrieves a long-term entry and increments its access counter.
func (s *Store) RecallLong(category, key string) (interface{}, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cat, ok := s.longTerm[category]
	if !ok {
		return nil, false
	}
	item, ok := cat[key]
	if !ok {
		return nil, false
	}
	item.AccessCount++
	return item.Value, true
}

// AccessCount returns the access counter for a long-term entry.
func (s *Store) AccessCount(category, key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cat, ok := s.longTerm[category]; ok {
		if item, ok := cat[key]; ok {
			return item.AccessCount
		}
	}
	return 0
}

// Remember appends a message to the conversation history, evicting the
// oldest entry when the ring is full.
func (s *Store) Remember(msg *core.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, msg)
	if len(s.history) > s.historySize {
		s.history = s.history[len(s.history)-s.historySize:]
	}
}

// History returns a copy of the conversation history, oldest first.
func (s *Store) History() []*core.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*core.Message, len(s.history))
	copy(out, s.history)
	return out
}
