package app

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
)

// MemoryStore keeps sessions in a map. Used by tests and as the fallback
// when no storage driver is configured. Sessions are stored as JSON blobs
// so the round trip exercises the same serialization as the file and redis
// drivers.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: map[string][]byte{}}
}

func (s *MemoryStore) Save(ctx context.Context, sess *Session) error {
	payload, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = payload
	return nil
}

func (s *MemoryStore) Load(ctx context.Context, id string) (*Session, error) {
	s.mu.RLock()
	payload, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	var sess Session
	if err := json.Unmarshal(payload, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *MemoryStore) LoadAll(ctx context.Context) ([]*Session, error) {
	s.mu.RLock()
	payloads := make([][]byte, 0, len(s.sessions))
	for _, payload := range s.sessions {
		payloads = append(payloads, payload)
	}
	s.mu.RUnlock()

	sessions := make([]*Session, 0, len(payloads))
	for _, payload := range payloads {
		var sess Session
		if err := json.Unmarshal(payload, &sess); err != nil {
			return nil, err
		}
		sessions = append(sessions, &sess)
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].UpdatedAt.After(sessions[j].UpdatedAt)
	})
	return sessions, nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}
