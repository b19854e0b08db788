package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenCodec_RoundTrip(t *testing.T) {
	codec := NewTokenCodec("session-secret", 5*time.Minute)

	token, err := codec.Sign("exampleSessionId")
	require.NoError(t, err)
	assert.Regexp(t, `^[^.]+\.[^.]+\.[^.]+$`, token, "token has header, payload, and signature")

	sessionID, ok := codec.Verify(token)
	require.True(t, ok)
	assert.Equal(t, "exampleSessionId", sessionID)

	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	_, _, err = parser.ParseUnverified(token, claims)
	require.NoError(t, err)

	assert.Equal(t, Issuer, claims["iss"])
	iat, ok := claims["iat"].(float64)
	require.True(t, ok, "iat must be numeric")
	exp, ok := claims["exp"].(float64)
	require.True(t, ok, "exp must be numeric")
	assert.Equal(t, iat+300, exp, "expiry follows the configured lifetime")
}

func TestTokenCodec_Verify_Rejections(t *testing.T) {
	codec := NewTokenCodec("session-secret", 5*time.Minute)

	t.Run("garbage token", func(t *testing.T) {
		_, ok := codec.Verify("garbage.garbage.garbage")
		assert.False(t, ok)
	})

	t.Run("empty token", func(t *testing.T) {
		_, ok := codec.Verify("")
		assert.False(t, ok)
	})

	t.Run("wrong key", func(t *testing.T) {
		token, err := NewTokenCodec("other-secret", 5*time.Minute).Sign("session")
		require.NoError(t, err)

		_, ok := codec.Verify(token)
		assert.False(t, ok)
	})

	t.Run("foreign issuer", func(t *testing.T) {
		claims := jwt.MapClaims{
			"sub": "session",
			"iat": time.Now().Unix(),
			"exp": time.Now().Add(5 * time.Minute).Unix(),
			"iss": "some other service",
		}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("session-secret"))
		require.NoError(t, err)

		_, ok := codec.Verify(token)
		assert.False(t, ok)
	})

	t.Run("missing subject", func(t *testing.T) {
		claims := jwt.MapClaims{
			"iat": time.Now().Unix(),
			"exp": time.Now().Add(5 * time.Minute).Unix(),
			"iss": Issuer,
		}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("session-secret"))
		require.NoError(t, err)

		_, ok := codec.Verify(token)
		assert.False(t, ok)
	})
}

func TestTokenCodec_Verify_Expiry(t *testing.T) {
	issuedAt := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	now := issuedAt
	codec := NewTokenCodec("session-secret", 5*time.Minute).WithClock(func() time.Time { return now })

	token, err := codec.Sign("session")
	require.NoError(t, err)

	now = issuedAt.Add(5*time.Minute - time.Second)
	_, ok := codec.Verify(token)
	assert.True(t, ok)

	now = issuedAt.Add(5*time.Minute + time.Second)
	_, ok = codec.Verify(token)
	assert.False(t, ok, "expired token reads as unauthenticated")
}
