package session

import (
	"context"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryStore keeps sessions in process. Sessions are lost on restart and
// not shared between instances.
type MemoryStore struct {
	cache *gocache.Cache
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		cache: gocache.New(gocache.NoExpiration, 5*time.Minute),
	}
}

func (m *MemoryStore) Create(_ context.Context, s Session) error {
	ttl, err := newTTL(s)
	if err != nil {
		return err
	}
	if err := m.cache.Add(s.SessionID, s, ttl); err != nil {
		return ErrSessionExists
	}
	return nil
}

func (m *MemoryStore) Get(_ context.Context, sessionID string) (*Session, error) {
	v, ok := m.cache.Get(sessionID)
	if !ok {
		return nil, nil
	}
	s := v.(Session)
	return &s, nil
}

func (m *MemoryStore) Update(_ context.Context, s Session) error {
	if s.SessionID == "" {
		return fmt.Errorf("session: missing session_id")
	}

	ttl := time.Until(s.ExpiresAt)
	if ttl <= 0 {
		m.cache.Delete(s.SessionID)
		return nil
	}

	// Replace fails for missing keys, which is the no-op we want.
	_ = m.cache.Replace(s.SessionID, s, ttl)
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, sessionID string) error {
	m.cache.Delete(sessionID)
	return nil
}
