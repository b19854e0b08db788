package auth

import "time"

const (
	defaultMaxAttempts  = 5
	defaultWindow       = 1 * time.Minute
	defaultLockDuration = 30 * time.Minute
)

// LockoutConfig tunes the brute-force lockout policy. Zero values are
// replaced with defaults by DefaultLockoutConfig / bootstrap; a MaxAttempts
// of zero or less that reaches EvaluateLockout means "lock on the first
// recorded failure".
type LockoutConfig struct {
	MaxAttempts  int
	Window       time.Duration
	LockDuration time.Duration
}

func DefaultLockoutConfig() LockoutConfig {
	return LockoutConfig{
		MaxAttempts:  defaultMaxAttempts,
		Window:       defaultWindow,
		LockDuration: defaultLockDuration,
	}
}

// LockoutDecision is derived fresh on every attempt and never persisted as a
// whole. FailedLogons and LockedUntil describe the state to persist if the
// current attempt fails its password check; ClearState signals that an
// expired lock must be wiped before the password check, whatever the attempt
// then does.
type LockoutDecision struct {
	Locked       bool
	ClearState   bool
	FailedLogons []time.Time
	LockedUntil  *time.Time
}

// EvaluateLockout computes the lockout decision for one login attempt from
// the account's current failure history and the current time. It is pure:
// persistence of any part of the decision is the caller's job.
func EvaluateLockout(failedLogons []time.Time, lockedUntil *time.Time, now time.Time, cfg LockoutConfig) LockoutDecision {
	if lockedUntil != nil && !lockedUntil.IsZero() {
		if lockedUntil.After(now) {
			return LockoutDecision{Locked: true}
		}
		// The lock expired. It is cleared as a side effect of this attempt,
		// and the failure branch starts from an empty history.
		decision := recordFailure(nil, now, cfg)
		decision.ClearState = true
		return decision
	}

	return recordFailure(failedLogons, now, cfg)
}

// recordFailure prunes history to the sliding window, appends the current
// attempt, and sets a lock once the attempt count reaches the threshold.
func recordFailure(failedLogons []time.Time, now time.Time, cfg LockoutConfig) LockoutDecision {
	threshold := now.Add(-cfg.Window)

	updated := make([]time.Time, 0, len(failedLogons)+1)
	for _, failure := range failedLogons {
		if failure.After(threshold) {
			updated = append(updated, failure)
		}
	}
	updated = append(updated, now)

	decision := LockoutDecision{FailedLogons: updated}
	if cfg.MaxAttempts <= 0 || len(updated) >= cfg.MaxAttempts {
		until := now.Add(cfg.LockDuration)
		decision.LockedUntil = &until
	}

	return decision
}
