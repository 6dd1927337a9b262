package typing

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is a process-local Store.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]map[string]time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]map[string]time.Time)}
}

func (s *MemoryStore) Touch(_ context.Context, conversationID, userID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	users, ok := s.entries[conversationID]
	if !ok {
		users = make(map[string]time.Time)
		s.entries[conversationID] = users
	}
	users[userID] = at
	return nil
}

func (s *MemoryStore) Clear(_ context.Context, conversationID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	users, ok := s.entries[conversationID]
	if !ok {
		return nil
	}
	delete(users, userID)
	if len(users) == 0 {
		delete(s.entries, conversationID)
	}
	return nil
}

// Active also purges entries that are no longer live.
func (s *MemoryStore) Active(_ context.Context, conversationID string, since time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	type entry struct {
		userID string
		at     time.Time
	}
	var live []entry
	users := s.entries[conversationID]
	for userID, at := range users {
		if at.After(since) {
			live = append(live, entry{userID, at})
			continue
		}
		delete(users, userID)
	}
	if users != nil && len(users) == 0 {
		delete(s.entries, conversationID)
	}

	sort.Slice(live, func(i, j int) bool {
		if live[i].at.Equal(live[j].at) {
			return live[i].userID < live[j].userID
		}
		return live[i].at.Before(live[j].at)
	})
	out := make([]string, 0, len(live))
	for _, e := range live {
		out = append(out, e.userID)
	}
	return out, nil
}
