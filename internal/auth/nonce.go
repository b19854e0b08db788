package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// nonceTTL bounds how long a login nonce stays valid. A nonce is only
// carried across the nonce-fetch/login round trip, so the window is tight.
const nonceTTL = 3 * time.Second

// NonceIssuer mints and verifies the short-lived challenge tokens that bind
// a username to an issuance time. Nonces are HS256 JWTs; validity is
// time-bounded rather than use-once, so no state is kept between calls.
type NonceIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewNonceIssuer(secret string) *NonceIssuer {
	return &NonceIssuer{
		secret: []byte(secret),
		ttl:    nonceTTL,
		now:    time.Now,
	}
}

// WithClock replaces the issuer's time source. Tests use this to pin
// issuance and expiry.
func (n *NonceIssuer) WithClock(now func() time.Time) *NonceIssuer {
	n.now = now
	return n
}

// Issue returns a fresh nonce for the username. Safe to call concurrently
// and repeatedly; every call yields an independent token.
func (n *NonceIssuer) Issue(username string) (string, error) {
	issuedAt := n.now().UTC()
	claims := jwt.MapClaims{
		"username": username,
		"iat":      issuedAt.Unix(),
		"exp":      issuedAt.Add(n.ttl).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	encoded, err := token.SignedString(n.secret)
	if err != nil {
		return "", fmt.Errorf("sign nonce: %w", err)
	}

	return encoded, nil
}

// Verify checks the nonce signature, algorithm, and expiry, and returns the
// username it was issued for. Any failure reports ok=false; the reason is
// deliberately not surfaced.
func (n *NonceIssuer) Verify(nonce string) (string, bool) {
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(nonce, claims, func(token *jwt.Token) (any, error) {
		return n.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(n.now),
	)
	if err != nil || !token.Valid {
		return "", false
	}

	username, ok := claims["username"].(string)
	if !ok || username == "" {
		return "", false
	}

	return username, true
}
