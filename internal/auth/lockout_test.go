package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var lockoutNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func testLockoutConfig() LockoutConfig {
	return LockoutConfig{
		MaxAttempts:  5,
		Window:       time.Minute,
		LockDuration: 30 * time.Minute,
	}
}

func TestEvaluateLockout_ActiveLock(t *testing.T) {
	lockedUntil := lockoutNow.Add(5 * time.Second)
	history := []time.Time{lockoutNow.Add(-10 * time.Second)}

	decision := EvaluateLockout(history, &lockedUntil, lockoutNow, testLockoutConfig())

	assert.True(t, decision.Locked)
	assert.False(t, decision.ClearState)
	assert.Nil(t, decision.FailedLogons, "history is untouched while locked")
	assert.Nil(t, decision.LockedUntil)
}

func TestEvaluateLockout_ExpiredLockClearsState(t *testing.T) {
	lockedUntil := lockoutNow.Add(-time.Second)
	history := []time.Time{
		lockoutNow.Add(-40 * time.Second),
		lockoutNow.Add(-30 * time.Second),
	}

	decision := EvaluateLockout(history, &lockedUntil, lockoutNow, testLockoutConfig())

	assert.False(t, decision.Locked)
	assert.True(t, decision.ClearState, "expired lock must be wiped")
	assert.Equal(t, []time.Time{lockoutNow}, decision.FailedLogons,
		"failure branch starts from the cleared history")
	assert.Nil(t, decision.LockedUntil)
}

func TestEvaluateLockout_FailureBelowThreshold(t *testing.T) {
	history := []time.Time{
		lockoutNow.Add(-30 * time.Second),
		lockoutNow.Add(-20 * time.Second),
	}

	decision := EvaluateLockout(history, nil, lockoutNow, testLockoutConfig())

	assert.False(t, decision.Locked)
	assert.False(t, decision.ClearState)
	assert.Equal(t, append(history, lockoutNow), decision.FailedLogons)
	assert.Nil(t, decision.LockedUntil)
}

func TestEvaluateLockout_FifthFailureLocks(t *testing.T) {
	history := []time.Time{
		lockoutNow.Add(-40 * time.Second),
		lockoutNow.Add(-30 * time.Second),
		lockoutNow.Add(-20 * time.Second),
		lockoutNow.Add(-10 * time.Second),
	}

	decision := EvaluateLockout(history, nil, lockoutNow, testLockoutConfig())

	assert.False(t, decision.Locked, "the lock applies to the next attempt, not this one")
	assert.Equal(t, append(history, lockoutNow), decision.FailedLogons)
	require.NotNil(t, decision.LockedUntil)
	assert.Equal(t, lockoutNow.Add(30*time.Minute), *decision.LockedUntil)
}

func TestEvaluateLockout_StaleFailuresArePruned(t *testing.T) {
	history := []time.Time{
		lockoutNow.Add(-10 * time.Minute),
		lockoutNow.Add(-5 * time.Minute),
		lockoutNow.Add(-2 * time.Minute),
		lockoutNow.Add(-90 * time.Second),
	}

	decision := EvaluateLockout(history, nil, lockoutNow, testLockoutConfig())

	assert.Equal(t, []time.Time{lockoutNow}, decision.FailedLogons,
		"entries outside the window do not count")
	assert.Nil(t, decision.LockedUntil, "no lock when the pruned count stays below the threshold")
}

func TestEvaluateLockout_MixedHistory(t *testing.T) {
	recent := []time.Time{
		lockoutNow.Add(-50 * time.Second),
		lockoutNow.Add(-40 * time.Second),
	}
	history := append([]time.Time{lockoutNow.Add(-10 * time.Minute)}, recent...)

	decision := EvaluateLockout(history, nil, lockoutNow, testLockoutConfig())

	assert.Equal(t, append(recent, lockoutNow), decision.FailedLogons)
	assert.Nil(t, decision.LockedUntil)
}

func TestEvaluateLockout_ZeroMaxAttemptsLocksImmediately(t *testing.T) {
	cfg := testLockoutConfig()
	cfg.MaxAttempts = 0

	decision := EvaluateLockout(nil, nil, lockoutNow, cfg)

	assert.False(t, decision.Locked)
	assert.Equal(t, []time.Time{lockoutNow}, decision.FailedLogons)
	require.NotNil(t, decision.LockedUntil, "first recorded failure locks when the threshold is zero")
	assert.Equal(t, lockoutNow.Add(30*time.Minute), *decision.LockedUntil)
}

func TestEvaluateLockout_ZeroValueLockedUntilIsUnlocked(t *testing.T) {
	zero := time.Time{}

	decision := EvaluateLockout(nil, &zero, lockoutNow, testLockoutConfig())

	assert.False(t, decision.Locked)
	assert.False(t, decision.ClearState, "a zero lock value was never a lock, so there is nothing to clear")
	assert.Equal(t, []time.Time{lockoutNow}, decision.FailedLogons)
}
