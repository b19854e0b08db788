// Package session maps opaque session identifiers to user identifiers.
// The auth core treats the store as an external key-value collaborator:
// sessions are created at login, resolved on every authenticated request,
// and removed at logout. Session lifetime is governed here, not by the
// bearer token that carries the id.
package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrSessionNotFound reports a session id with no live mapping. Callers
// treat it as "unauthenticated", not as a storage fault.
var ErrSessionNotFound = errors.New("session not found")

// Store is the session-store contract consumed by the auth handlers and
// middleware.
type Store interface {
	CreateSession(ctx context.Context, userID int64) (string, error)
	FindOrCreateSession(ctx context.Context, userID int64) (string, error)
	UserID(ctx context.Context, sessionID string) (int64, error)
	RemoveSession(ctx context.Context, sessionID string) error
}

const (
	sessionKeyPrefix = "session:"
	userKeyPrefix    = "user-session:"
)

// RedisStore keeps sessions in Redis under a TTL, with a per-user reverse
// index so repeated logins reuse the live session.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &RedisStore{rdb: rdb, ttl: ttl}
}

func (s *RedisStore) CreateSession(ctx context.Context, userID int64) (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate session id: %w", err)
	}
	sessionID := id.String()

	tx := s.rdb.TxPipeline()
	tx.Set(ctx, sessionKey(sessionID), strconv.FormatInt(userID, 10), s.ttl)
	tx.Set(ctx, userKey(userID), sessionID, s.ttl)
	if _, err := tx.Exec(ctx); err != nil {
		return "", fmt.Errorf("store session: %w", err)
	}

	return sessionID, nil
}

func (s *RedisStore) FindOrCreateSession(ctx context.Context, userID int64) (string, error) {
	sessionID, err := s.rdb.Get(ctx, userKey(userID)).Result()
	if err != nil && err != redis.Nil {
		return "", fmt.Errorf("find session for user: %w", err)
	}
	if err == nil && sessionID != "" {
		// The reverse index can outlive the session key; only reuse a
		// session that still resolves.
		exists, err := s.rdb.Exists(ctx, sessionKey(sessionID)).Result()
		if err != nil {
			return "", fmt.Errorf("check session: %w", err)
		}
		if exists > 0 {
			return sessionID, nil
		}
	}

	return s.CreateSession(ctx, userID)
}

func (s *RedisStore) UserID(ctx context.Context, sessionID string) (int64, error) {
	value, err := s.rdb.Get(ctx, sessionKey(sessionID)).Result()
	if err == redis.Nil {
		return 0, ErrSessionNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("resolve session: %w", err)
	}

	userID, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse session user id: %w", err)
	}

	return userID, nil
}

func (s *RedisStore) RemoveSession(ctx context.Context, sessionID string) error {
	value, err := s.rdb.Get(ctx, sessionKey(sessionID)).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return fmt.Errorf("resolve session for removal: %w", err)
	}

	keys := []string{sessionKey(sessionID)}
	if userID, parseErr := strconv.ParseInt(value, 10, 64); parseErr == nil {
		keys = append(keys, userKey(userID))
	}
	if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("remove session: %w", err)
	}

	return nil
}

func sessionKey(sessionID string) string {
	return sessionKeyPrefix + sessionID
}

func userKey(userID int64) string {
	return userKeyPrefix + strconv.FormatInt(userID, 10)
}
