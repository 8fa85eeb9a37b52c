// Package conversation keeps per-conversation message history in memory.
package conversation

import (
	"slices"
	"sync"

	"github.com/cloo-solutions/helpdesk/internal/domain"
	"github.com/google/uuid"
)

// IDGenerator produces new conversation ids.
type IDGenerator interface {
	Generate() string
}

// UUIDGenerator generates random UUIDv4 ids.
type UUIDGenerator struct{}

func (UUIDGenerator) Generate() string {
	return uuid.NewString()
}

// Store is a process-wide, append-only message log keyed by conversation id.
// Appends to one conversation are serialized by its own lock.
type Store struct {
	ids IDGenerator

	mu            sync.RWMutex
	conversations map[string]*thread
}

type thread struct {
	mu       sync.RWMutex
	messages []domain.ConversationMessage
}

func NewStore() *Store {
	return NewStoreWithGenerator(UUIDGenerator{})
}

func NewStoreWithGenerator(ids IDGenerator) *Store {
	return &Store{
		ids:           ids,
		conversations: make(map[string]*thread),
	}
}

// Ensure returns id after making sure it is tracked. An empty id is replaced
// with a freshly generated one. Existing history is never reset.
func (s *Store) Ensure(id string) string {
	if id == "" {
		id = s.ids.Generate()
	}
	s.thread(id)
	return id
}

// Exists reports whether id is tracked.
func (s *Store) Exists(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.conversations[id]
	return ok
}

// Append records a copy of msg at the end of the conversation, creating the
// conversation if needed.
func (s *Store) Append(id string, msg domain.ConversationMessage) {
	t := s.thread(id)
	t.mu.Lock()
	t.messages = append(t.messages, msg)
	t.mu.Unlock()
}

// Get returns a copy of the conversation's messages in insertion order.
// Unknown ids yield an empty slice.
func (s *Store) Get(id string) []domain.ConversationMessage {
	s.mu.RLock()
	t, ok := s.conversations[id]
	s.mu.RUnlock()
	if !ok {
		return []domain.ConversationMessage{}
	}

	t.mu.RLock()
	defer t.mu.RUnlock()
	return slices.Clone(t.messages)
}

// Len reports the number of tracked conversations.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conversations)
}

func (s *Store) thread(id string) *thread {
	s.mu.RLock()
	t, ok := s.conversations[id]
	s.mu.RUnlock()
	if ok {
		return t
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok = s.conversations[id]; ok {
		return t
	}
	t = &thread{}
	s.conversations[id] = t
	return t
}
