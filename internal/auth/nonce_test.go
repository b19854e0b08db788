package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNonceIssuer_Issue(t *testing.T) {
	issuer := NewNonceIssuer("nonce-secret")

	nonce, err := issuer.Issue("Alf")
	require.NoError(t, err)

	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	token, _, err := parser.ParseUnverified(nonce, claims)
	require.NoError(t, err)

	assert.Equal(t, "HS256", token.Header["alg"])
	assert.Equal(t, "JWT", token.Header["typ"])
	assert.Equal(t, "Alf", claims["username"])

	iat, ok := claims["iat"].(float64)
	require.True(t, ok, "iat must be numeric")
	exp, ok := claims["exp"].(float64)
	require.True(t, ok, "exp must be numeric")
	assert.Equal(t, iat+3, exp, "nonce expires 3 seconds after issuance")
}

func TestNonceIssuer_Verify(t *testing.T) {
	issuer := NewNonceIssuer("nonce-secret")

	nonce, err := issuer.Issue("hello@world")
	require.NoError(t, err)

	username, ok := issuer.Verify(nonce)
	require.True(t, ok)
	assert.Equal(t, "hello@world", username)
}

func TestNonceIssuer_Verify_Rejections(t *testing.T) {
	issuer := NewNonceIssuer("nonce-secret")

	nonce, err := issuer.Issue("user")
	require.NoError(t, err)

	t.Run("garbage token", func(t *testing.T) {
		_, ok := issuer.Verify("garbage.garbage.garbage")
		assert.False(t, ok)
	})

	t.Run("tampered signature", func(t *testing.T) {
		last := nonce[len(nonce)-1]
		flipped := byte('x')
		if last == 'x' {
			flipped = 'y'
		}
		_, ok := issuer.Verify(nonce[:len(nonce)-1] + string(flipped))
		assert.False(t, ok)
	})

	t.Run("unsigned algorithm", func(t *testing.T) {
		claims := jwt.MapClaims{
			"username": "user",
			"iat":      time.Now().Unix(),
			"exp":      time.Now().Add(3 * time.Second).Unix(),
		}
		unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, ok := issuer.Verify(unsigned)
		assert.False(t, ok)
	})

	t.Run("wrong key", func(t *testing.T) {
		other, err := NewNonceIssuer("other-secret").Issue("user")
		require.NoError(t, err)

		_, ok := issuer.Verify(other)
		assert.False(t, ok)
	})
}

func TestNonceIssuer_Verify_Expiry(t *testing.T) {
	issuedAt := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	now := issuedAt
	issuer := NewNonceIssuer("nonce-secret").WithClock(func() time.Time { return now })

	nonce, err := issuer.Issue("user")
	require.NoError(t, err)

	now = issuedAt.Add(3*time.Second - time.Millisecond)
	_, ok := issuer.Verify(nonce)
	assert.True(t, ok, "nonce is still valid just before the deadline")

	now = issuedAt.Add(3*time.Second + time.Millisecond)
	_, ok = issuer.Verify(nonce)
	assert.False(t, ok, "nonce is rejected once the deadline passes")
}
