package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memorySession struct {
	userID    int64
	expiresAt time.Time
}

// MemoryStore is an in-process Store for tests and single-instance
// development runs. Expired entries are dropped lazily on access.
type MemoryStore struct {
	mu     sync.Mutex
	ttl    time.Duration
	byID   map[string]memorySession
	byUser map[int64]string
	now    func() time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &MemoryStore{
		ttl:    ttl,
		byID:   make(map[string]memorySession),
		byUser: make(map[int64]string),
		now:    time.Now,
	}
}

// WithClock replaces the store's time source for tests.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.now = now
	return s
}

func (s *MemoryStore) CreateSession(_ context.Context, userID int64) (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate session id: %w", err)
	}
	sessionID := id.String()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.byID[sessionID] = memorySession{userID: userID, expiresAt: s.now().Add(s.ttl)}
	s.byUser[userID] = sessionID

	return sessionID, nil
}

func (s *MemoryStore) FindOrCreateSession(ctx context.Context, userID int64) (string, error) {
	s.mu.Lock()
	sessionID, ok := s.byUser[userID]
	if ok {
		entry, live := s.byID[sessionID]
		if live && entry.expiresAt.After(s.now()) {
			s.mu.Unlock()
			return sessionID, nil
		}
		delete(s.byID, sessionID)
		delete(s.byUser, userID)
	}
	s.mu.Unlock()

	return s.CreateSession(ctx, userID)
}

func (s *MemoryStore) UserID(_ context.Context, sessionID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.byID[sessionID]
	if !ok {
		return 0, ErrSessionNotFound
	}
	if !entry.expiresAt.After(s.now()) {
		delete(s.byID, sessionID)
		delete(s.byUser, entry.userID)
		return 0, ErrSessionNotFound
	}

	return entry.userID, nil
}

func (s *MemoryStore) RemoveSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok := s.byID[sessionID]; ok {
		delete(s.byUser, entry.userID)
		delete(s.byID, sessionID)
	}

	return nil
}
