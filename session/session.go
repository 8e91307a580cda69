// Package session holds per-session conversation history in memory. Sessions
// are identified by UUID, evicted least-recently-used past a fixed capacity,
// and guarded by a single-writer right so two concurrent messages to the same
// session cannot interleave their turns.
package session

import (
	"container/list"
	"sync"

	"github.com/google/uuid"

	"scout/providers/ai"
)

const (
	// DefaultCapacity is the maximum number of live sessions before LRU
	// eviction kicks in.
	DefaultCapacity = 1024

	// DefaultHistoryLimit is the maximum number of turns a session retains.
	DefaultHistoryLimit = 20
)

// Session is one conversation's history. Obtain instances through
// [Store.LoadOrCreate]; the zero value is not usable.
type Session struct {
	// ID is the session's UUID, assigned at creation.
	ID string

	mu           sync.Mutex
	turns        []ai.Message
	historyLimit int

	// element is the store's LRU handle; guarded by the store's lock.
	element *list.Element

	// writing marks the writer right as held; guarded by the store's lock.
	writing bool
}

// Append adds turns to the session history, trimming the oldest turns in
// pairs once the history limit is exceeded. Callers must hold the session's
// writer right.
func (s *Session) Append(turns ...ai.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.turns = append(s.turns, turns...)
	for len(s.turns) > s.historyLimit {
		drop := 2
		if len(s.turns)-s.historyLimit < 2 {
			drop = len(s.turns) - s.historyLimit
		}
		s.turns = append(s.turns[:0:0], s.turns[drop:]...)
	}
}

// History returns a copy of the session's turns in append order.
func (s *Session) History() []ai.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ai.Message{}, s.turns...)
}

// Store owns all live sessions.
type Store struct {
	mu           sync.Mutex
	sessions     map[string]*Session
	order        *list.List // front is most recently used
	capacity     int
	historyLimit int
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithCapacity overrides the session capacity.
func WithCapacity(capacity int) StoreOption {
	return func(s *Store) {
		if capacity > 0 {
			s.capacity = capacity
		}
	}
}

// WithHistoryLimit overrides the per-session turn limit.
func WithHistoryLimit(limit int) StoreOption {
	return func(s *Store) {
		if limit > 0 {
			s.historyLimit = limit
		}
	}
}

// NewStore builds an empty session store.
func NewStore(opts ...StoreOption) *Store {
	store := &Store{
		sessions:     make(map[string]*Session),
		order:        list.New(),
		capacity:     DefaultCapacity,
		historyLimit: DefaultHistoryLimit,
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// LoadOrCreate returns the session for id, creating a fresh one under a new
// UUID when id is empty or unknown. The returned id is always the session's
// actual identifier. Access marks the session most recently used.
func (s *Store) LoadOrCreate(id string) (string, *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id != "" {
		if existing, ok := s.sessions[id]; ok {
			s.order.MoveToFront(existing.element)
			return id, existing
		}
	}

	created := &Session{
		ID:           uuid.NewString(),
		historyLimit: s.historyLimit,
	}
	created.element = s.order.PushFront(created)
	s.sessions[created.ID] = created
	s.evictLocked()
	return created.ID, created
}

// AcquireWriter claims the session's writer right. It returns false when the
// session is unknown or another writer already holds the right; the caller
// must then reject the message.
func (s *Store) AcquireWriter(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	target, ok := s.sessions[id]
	if !ok || target.writing {
		return false
	}
	target.writing = true
	return true
}

// ReleaseWriter returns the session's writer right. Releasing an unknown or
// unheld session is a no-op.
func (s *Store) ReleaseWriter(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if target, ok := s.sessions[id]; ok {
		target.writing = false
	}
}

// Len reports the number of live sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// evictLocked removes least-recently-used sessions until the store is within
// capacity, skipping sessions whose writer right is held.
func (s *Store) evictLocked() {
	for element := s.order.Back(); element != nil && len(s.sessions) > s.capacity; {
		victim := element.Value.(*Session)
		previous := element.Prev()
		if !victim.writing {
			s.order.Remove(element)
			delete(s.sessions, victim.ID)
		}
		element = previous
	}
}
