package state

import (
	"context"
	"sync"
	"time"
)

// Store is the session persistence contract used by the assistant. Update runs
// a read-modify-write transition atomically with respect to other updates for
// the same requester; sessions for different requesters proceed without
// contention. The session is created on first use.
type Store interface {
	Update(ctx context.Context, id RequesterID, fn func(*Session) error) error
	Get(ctx context.Context, id RequesterID) (*Session, bool, error)
	Remove(ctx context.Context, id RequesterID) error
}

// MemoryStore keeps sessions in process memory with a lock per requester.
// There is no automatic eviction: sessions go away on Remove (normal dialogue
// completion) or process exit.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[RequesterID]*memoryEntry
	now      func() time.Time
}

type memoryEntry struct {
	mu      sync.Mutex
	session *Session
}

// MemoryStoreOption customizes a MemoryStore.
type MemoryStoreOption func(*MemoryStore)

// WithClock overrides the store clock, for tests.
func WithClock(now func() time.Time) MemoryStoreOption {
	return func(s *MemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}

func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	s := &MemoryStore{
		sessions: make(map[RequesterID]*memoryEntry),
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *MemoryStore) entry(id RequesterID) *memoryEntry {
	s.mu.RLock()
	e, ok := s.sessions[id]
	s.mu.RUnlock()
	if ok {
		return e
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok = s.sessions[id]; ok {
		return e
	}
	e = &memoryEntry{session: NewSession(id, s.now())}
	s.sessions[id] = e
	return e
}

// Update applies fn to the requester's session under its key lock.
func (s *MemoryStore) Update(ctx context.Context, id RequesterID, fn func(*Session) error) error {
	if id.Empty() {
		return ErrEmptyRequester
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	e := s.entry(id)
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := fn(e.session); err != nil {
		return err
	}
	e.session.Touch(s.now())
	return e.session.Validate()
}

// Get returns a copy of the requester's session, if one exists.
func (s *MemoryStore) Get(ctx context.Context, id RequesterID) (*Session, bool, error) {
	if id.Empty() {
		return nil, false, ErrEmptyRequester
	}

	s.mu.RLock()
	e, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	cp := *e.session
	cp.Slots = make(map[string]any, len(e.session.Slots))
	for k, v := range e.session.Slots {
		cp.Slots[k] = v
	}
	return &cp, true, nil
}

// Remove drops the requester's session. Removing an absent session is a no-op.
func (s *MemoryStore) Remove(ctx context.Context, id RequesterID) error {
	if id.Empty() {
		return ErrEmptyRequester
	}
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
	return nil
}
