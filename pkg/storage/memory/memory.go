// Package memory provides an in-memory TurnStore for testing and
// lightweight deployments. Transcripts are lost when the process
// restarts. Optional LRU eviction bounds the number of tracked sessions.
package memory

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/bruecke-dev/bruecke/pkg/native"
	"github.com/bruecke-dev/bruecke/pkg/storage"
)

// entry holds one session's transcript and its metadata.
type entry struct {
	turns    []storage.Turn
	tenantID string
	lruElem  *list.Element // position in LRU list
}

// Store is an in-memory TurnStore with optional LRU eviction.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*entry
	lruList *list.List // front = most recently used, back = least recently used
	maxSize int        // 0 = unlimited
}

// Ensure Store implements storage.TurnStore at compile time.
var _ storage.TurnStore = (*Store)(nil)

// New creates a new in-memory store. If maxSize is 0, the store grows
// without limit. If maxSize > 0, the least recently used session is
// evicted when the limit is reached.
func New(maxSize int) *Store {
	return &Store{
		entries: make(map[string]*entry),
		lruList: list.New(),
		maxSize: maxSize,
	}
}

// AppendTurn stores the messages as the session's next turn.
func (s *Store) AppendTurn(ctx context.Context, sessionID string, msgs []native.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tenantID := storage.GetTenant(ctx)

	e, ok := s.entries[sessionID]
	if ok {
		if tenantID != "" && e.tenantID != tenantID {
			return storage.ErrNotFound
		}
		s.lruList.MoveToFront(e.lruElem)
	} else {
		if s.maxSize > 0 && len(s.entries) >= s.maxSize {
			s.evictOldest()
		}
		e = &entry{
			tenantID: tenantID,
			lruElem:  s.lruList.PushFront(sessionID),
		}
		s.entries[sessionID] = e
	}

	e.turns = append(e.turns, storage.Turn{
		SessionID: sessionID,
		Seq:       len(e.turns) + 1,
		Messages:  msgs,
		CreatedAt: time.Now(),
	})
	return nil
}

// History returns the session's full transcript in turn order.
func (s *Store) History(ctx context.Context, sessionID string) ([]native.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[sessionID]
	if !ok {
		return nil, storage.ErrNotFound
	}

	tenantID := storage.GetTenant(ctx)
	if tenantID != "" && e.tenantID != tenantID {
		return nil, storage.ErrNotFound
	}

	var msgs []native.Message
	for _, turn := range e.turns {
		msgs = append(msgs, turn.Messages...)
	}
	return msgs, nil
}

// DeleteSession removes the session's transcript.
func (s *Store) DeleteSession(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[sessionID]
	if !ok {
		return storage.ErrNotFound
	}

	tenantID := storage.GetTenant(ctx)
	if tenantID != "" && e.tenantID != tenantID {
		return storage.ErrNotFound
	}

	s.lruList.Remove(e.lruElem)
	delete(s.entries, sessionID)
	return nil
}

// HealthCheck always returns nil for the in-memory store.
func (s *Store) HealthCheck(_ context.Context) error {
	return nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error {
	return nil
}

// evictOldest removes the least recently used session.
// Must be called with s.mu held.
func (s *Store) evictOldest() {
	back := s.lruList.Back()
	if back == nil {
		return
	}

	id := back.Value.(string)
	s.lruList.Remove(back)
	delete(s.entries, id)
}
