package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Issuer is the fixed iss claim on session tokens. Tokens minted by other
// services fail verification even when they share a signing key.
const Issuer = "eAPD API"

const defaultSessionLifetime = 30 * time.Minute

// TokenCodec signs and verifies the bearer tokens handed out at login.
// The token carries only an opaque session id; everything else about the
// user lives server-side in the session store.
type TokenCodec struct {
	secret   []byte
	lifetime time.Duration
	now      func() time.Time
}

func NewTokenCodec(secret string, lifetime time.Duration) *TokenCodec {
	if lifetime <= 0 {
		lifetime = defaultSessionLifetime
	}
	return &TokenCodec{
		secret:   []byte(secret),
		lifetime: lifetime,
		now:      time.Now,
	}
}

// WithClock replaces the codec's time source for tests.
func (c *TokenCodec) WithClock(now func() time.Time) *TokenCodec {
	c.now = now
	return c
}

// Sign mints a session token whose sub claim is the session id.
func (c *TokenCodec) Sign(sessionID string) (string, error) {
	issuedAt := c.now().UTC()
	claims := jwt.MapClaims{
		"sub": sessionID,
		"iat": issuedAt.Unix(),
		"exp": issuedAt.Add(c.lifetime).Unix(),
		"iss": Issuer,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	encoded, err := token.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}

	return encoded, nil
}

// Verify returns the session id carried by the token. A malformed, expired,
// tampered, or foreign-issued token reports ok=false; verification never
// escalates to an error because an unverifiable token just means
// "unauthenticated".
func (c *TokenCodec) Verify(tokenStr string) (string, bool) {
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (any, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil || !token.Valid {
		return "", false
	}

	sessionID, ok := claims["sub"].(string)
	if !ok || sessionID == "" {
		return "", false
	}

	return sessionID, true
}
