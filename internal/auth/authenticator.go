package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// AccountStore is the injected account-lookup capability. FindByUsername
// returns (nil, nil) when no account exists; errors are storage faults, not
// credential failures.
type AccountStore interface {
	FindByUsername(ctx context.Context, username string) (*Account, error)
	SaveLoginState(ctx context.Context, accountID int64, failedLogons []time.Time, lockedUntil *time.Time) error
	ActivitiesForRole(ctx context.Context, role string) ([]string, error)
}

// PasswordComparer is the injected password-compare capability. A mismatch
// is (false, nil); an error means the comparison itself could not run.
type PasswordComparer interface {
	Compare(ctx context.Context, candidate, hash string) (bool, error)
}

// BcryptComparer is the production PasswordComparer.
type BcryptComparer struct{}

func (BcryptComparer) Compare(_ context.Context, candidate, hash string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(candidate))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	return false, fmt.Errorf("compare password: %w", err)
}

// Authenticator orchestrates a single local login attempt: nonce check,
// account lookup, lockout evaluation, password comparison, failure-history
// update. It holds no state between calls; every decision is computed from
// the current time and whatever the account store returns.
type Authenticator struct {
	accounts AccountStore
	compare  PasswordComparer
	nonces   *NonceIssuer
	lockout  LockoutConfig
	now      func() time.Time
}

func NewAuthenticator(accounts AccountStore, nonces *NonceIssuer, lockout LockoutConfig) *Authenticator {
	return &Authenticator{
		accounts: accounts,
		compare:  BcryptComparer{},
		nonces:   nonces,
		lockout:  lockout,
		now:      time.Now,
	}
}

// WithComparer substitutes the password-compare capability.
func (a *Authenticator) WithComparer(compare PasswordComparer) *Authenticator {
	a.compare = compare
	return a
}

// WithClock replaces the authenticator's time source for tests.
func (a *Authenticator) WithClock(now func() time.Time) *Authenticator {
	a.now = now
	return a
}

// Authenticate runs one login attempt and returns exactly one of: the
// normalized user, ErrAuthenticationFailed for any credential failure, or a
// distinct error for an infrastructure fault. Callers must not leak which
// credential check failed.
//
// Concurrent attempts against the same account may race on the
// failure-history write; the storage layer resolves these last-write-wins,
// which is an accepted weak-consistency tradeoff.
func (a *Authenticator) Authenticate(ctx context.Context, nonce, password string) (*User, error) {
	// Nonce checks happen before any account lookup so that a forged or
	// stale nonce costs no storage round trip.
	username, ok := a.nonces.Verify(nonce)
	if !ok {
		return nil, ErrAuthenticationFailed
	}

	account, err := a.accounts.FindByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("look up account: %w", err)
	}
	if account == nil {
		return nil, ErrAuthenticationFailed
	}

	now := a.now().UTC()
	decision := EvaluateLockout(account.FailedLogons, account.LockedUntil, now, a.lockout)
	if decision.Locked {
		return nil, ErrAuthenticationFailed
	}
	if decision.ClearState {
		// An expired lock is wiped regardless of how this attempt ends.
		if err := a.accounts.SaveLoginState(ctx, account.ID, nil, nil); err != nil {
			return nil, fmt.Errorf("clear expired lock: %w", err)
		}
	}

	match, err := a.compare.Compare(ctx, password, account.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("verify password: %w", err)
	}
	if !match {
		if err := a.accounts.SaveLoginState(ctx, account.ID, decision.FailedLogons, decision.LockedUntil); err != nil {
			return nil, fmt.Errorf("record failed logon: %w", err)
		}
		return nil, ErrAuthenticationFailed
	}

	activities, err := a.accounts.ActivitiesForRole(ctx, account.Role)
	if err != nil {
		return nil, fmt.Errorf("resolve activities: %w", err)
	}

	return &User{
		Username:   account.Email,
		ID:         account.ID,
		Role:       account.Role,
		State:      account.StateID,
		Activities: activities,
	}, nil
}
