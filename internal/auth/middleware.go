package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/getsentry/sentry-go"

	"apd-api/internal/session"
)

// UserFinder resolves a user id from the session store back to a normalized
// user. (nil, nil) means the user no longer exists.
type UserFinder interface {
	GetUserByID(ctx context.Context, id int64) (*User, error)
}

type contextKey struct{}

var userContextKey contextKey

// CurrentUser returns the authenticated user placed on the request context
// by RequireSession, or nil for unauthenticated requests.
func CurrentUser(ctx context.Context) *User {
	user, _ := ctx.Value(userContextKey).(*User)
	return user
}

// sessionIDContextKey carries the verified session id so the logout handler
// can remove the right session.
type sessionIDKey struct{}

var sessionIDContextKey sessionIDKey

func currentSessionID(ctx context.Context) string {
	sessionID, _ := ctx.Value(sessionIDContextKey).(string)
	return sessionID
}

// RequireSession verifies the bearer session token, resolves it through the
// session store, and loads the user onto the request context. Token and
// session failures are uniformly 401; only storage faults become 500.
func RequireSession(codec *TokenCodec, sessions session.Store, users UserFinder, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenStr, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "missing authorization token")
			return
		}

		sessionID, ok := codec.Verify(tokenStr)
		if !ok {
			writeError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}

		userID, err := sessions.UserID(r.Context(), sessionID)
		if err != nil {
			if errors.Is(err, session.ErrSessionNotFound) {
				writeError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}
			sentry.CaptureException(err)
			writeError(w, http.StatusInternalServerError, "failed to resolve session")
			return
		}

		user, err := users.GetUserByID(r.Context(), userID)
		if err != nil {
			sentry.CaptureException(err)
			writeError(w, http.StatusInternalServerError, "failed to load user")
			return
		}
		if user == nil {
			writeError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), userContextKey, user)
		ctx = context.WithValue(ctx, sessionIDContextKey, sessionID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", false
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}

	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", false
	}

	return token, true
}
