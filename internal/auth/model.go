package auth

import (
	"errors"
	"time"
)

// Account is the persisted login record for a user, including the
// brute-force failure history the lockout policy operates on.
type Account struct {
	ID           int64
	Email        string
	PasswordHash string
	Role         string
	StateID      string
	FailedLogons []time.Time
	LockedUntil  *time.Time
}

// User is the normalized identity handed to callers after a successful
// authentication or session deserialization. Activities are resolved to
// human-readable names, in a stable order.
type User struct {
	Username   string   `json:"username"`
	ID         int64    `json:"id"`
	Role       string   `json:"role"`
	State      string   `json:"state"`
	Activities []string `json:"activities"`
}

// ErrAuthenticationFailed covers every credential failure: bad or expired
// nonce, unknown account, locked account, wrong password. Callers must not
// be able to tell these apart.
var ErrAuthenticationFailed = errors.New("authentication failed")
