package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_CreateAndResolve(t *testing.T) {
	store := NewMemoryStore(time.Hour)

	sessionID, err := store.CreateSession(context.Background(), 57)
	require.NoError(t, err)
	require.NotEmpty(t, sessionID)

	userID, err := store.UserID(context.Background(), sessionID)
	require.NoError(t, err)
	assert.Equal(t, int64(57), userID)
}

func TestMemoryStore_UnknownSession(t *testing.T) {
	store := NewMemoryStore(time.Hour)

	_, err := store.UserID(context.Background(), "no-such-session")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestMemoryStore_FindOrCreate(t *testing.T) {
	store := NewMemoryStore(time.Hour)

	first, err := store.FindOrCreateSession(context.Background(), 57)
	require.NoError(t, err)

	second, err := store.FindOrCreateSession(context.Background(), 57)
	require.NoError(t, err)
	assert.Equal(t, first, second, "a live session is reused")

	other, err := store.FindOrCreateSession(context.Background(), 58)
	require.NoError(t, err)
	assert.NotEqual(t, first, other, "sessions are per user")
}

func TestMemoryStore_Remove(t *testing.T) {
	store := NewMemoryStore(time.Hour)

	sessionID, err := store.CreateSession(context.Background(), 57)
	require.NoError(t, err)

	require.NoError(t, store.RemoveSession(context.Background(), sessionID))

	_, err = store.UserID(context.Background(), sessionID)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	require.NoError(t, store.RemoveSession(context.Background(), sessionID),
		"removing a removed session is not an error")
}

func TestMemoryStore_Expiry(t *testing.T) {
	start := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	now := start
	store := NewMemoryStore(time.Minute).WithClock(func() time.Time { return now })

	sessionID, err := store.CreateSession(context.Background(), 57)
	require.NoError(t, err)

	now = start.Add(30 * time.Second)
	_, err = store.UserID(context.Background(), sessionID)
	require.NoError(t, err)

	now = start.Add(2 * time.Minute)
	_, err = store.UserID(context.Background(), sessionID)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	fresh, err := store.FindOrCreateSession(context.Background(), 57)
	require.NoError(t, err)
	assert.NotEqual(t, sessionID, fresh, "an expired session is not reused")
}
