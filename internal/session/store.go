package session

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/Waaajid/chatbotwiteditrequests/internal/errors"
)

// Store is the session repository.
//
// Implementations hand out copies: mutating a returned Session has no effect
// until it is passed back to Put. Concurrent writers to the same session are
// last-write-wins.
type Store interface {
	Get(ctx context.Context, id string) (*Session, error)
	Put(ctx context.Context, s *Session) error
	Delete(ctx context.Context, id string) error
	// List returns summaries ordered by last activity, newest first, and the total count.
	List(ctx context.Context, limit, offset int) ([]Summary, int, error)
	// Purge removes sessions idle since before cutoff and returns how many were removed.
	Purge(ctx context.Context, cutoff time.Time) (int, error)
}

// MemoryStore keeps sessions for the lifetime of the process.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*Session)}
}

// Get returns a copy of the session, or NOT_FOUND.
func (m *MemoryStore) Get(ctx context.Context, id string) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.NewCancelled("session get")
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, errors.NewNotFound("session", id)
	}
	return s.Clone(), nil
}

// Put stores a copy of s, replacing any session with the same ID.
func (m *MemoryStore) Put(ctx context.Context, s *Session) error {
	if err := ctx.Err(); err != nil {
		return errors.NewCancelled("session put")
	}
	if s == nil || s.ID == "" {
		return errors.NewInvalidRequest("session id is required")
	}
	m.mu.Lock()
	m.sessions[s.ID] = s.Clone()
	m.mu.Unlock()
	return nil
}

// Delete removes a session, or fails with NOT_FOUND.
func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return errors.NewCancelled("session delete")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return errors.NewNotFound("session", id)
	}
	delete(m.sessions, id)
	return nil
}

// List returns session summaries ordered by last activity, newest first.
func (m *MemoryStore) List(ctx context.Context, limit, offset int) ([]Summary, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, errors.NewCancelled("session list")
	}
	m.mu.RLock()
	all := make([]Summary, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s.Summarize())
	}
	m.mu.RUnlock()

	slices.SortFunc(all, func(a, b Summary) int {
		if c := b.LastActivity.Compare(a.LastActivity); c != 0 {
			return c
		}
		return strings.Compare(b.ID, a.ID)
	})

	total := len(all)
	offset = max(offset, 0)
	if offset >= total {
		return []Summary{}, total, nil
	}
	end := total
	if limit > 0 && offset+limit < total {
		end = offset + limit
	}
	return all[offset:end], total, nil
}

// Purge removes sessions idle since before cutoff and returns how many.
func (m *MemoryStore) Purge(ctx context.Context, cutoff time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, errors.NewCancelled("session purge")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, s := range m.sessions {
		if s.LastActivity.Before(cutoff) {
			delete(m.sessions, id)
			n++
		}
	}
	return n, nil
}
