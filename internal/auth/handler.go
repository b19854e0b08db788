package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/getsentry/sentry-go"

	"apd-api/internal/session"
)

const maxJSONBodyBytes = 1 << 20

// Handler exposes the login flow: nonce fetch, nonce+password login,
// logout, and the current-user echo.
type Handler struct {
	authenticator *Authenticator
	nonces        *NonceIssuer
	sessions      session.Store
	codec         *TokenCodec
}

func NewHandler(authenticator *Authenticator, nonces *NonceIssuer, sessions session.Store, codec *TokenCodec) *Handler {
	return &Handler{
		authenticator: authenticator,
		nonces:        nonces,
		sessions:      sessions,
		codec:         codec,
	}
}

type nonceRequest struct {
	Username string `json:"username"`
}

type nonceResponse struct {
	Nonce string `json:"nonce"`
}

type loginRequest struct {
	Nonce    string `json:"nonce"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
	User  *User  `json:"user"`
}

// Nonce mints a login challenge for the submitted username. No account
// lookup happens here; an attacker learns nothing from a nonce.
func (h *Handler) Nonce(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	var body nonceRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	body.Username = strings.TrimSpace(body.Username)
	if body.Username == "" {
		writeError(w, http.StatusBadRequest, "username is required")
		return
	}

	nonce, err := h.nonces.Issue(body.Username)
	if err != nil {
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to issue nonce")
		return
	}

	writeJSON(w, http.StatusOK, nonceResponse{Nonce: nonce})
}

// Login authenticates a nonce+password pair and, on success, binds a
// session and returns the bearer token plus the normalized user. Every
// credential failure is the same 401; only infrastructure faults are 500.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	var body loginRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	user, err := h.authenticator.Authenticate(r.Context(), strings.TrimSpace(body.Nonce), body.Password)
	if err != nil {
		if errors.Is(err, ErrAuthenticationFailed) {
			writeError(w, http.StatusUnauthorized, "authentication failed")
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to login")
		return
	}

	sessionID, err := h.sessions.FindOrCreateSession(r.Context(), user.ID)
	if err != nil {
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	token, err := h.codec.Sign(sessionID)
	if err != nil {
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to issue token")
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{Token: token, User: user})
}

// Logout removes the session behind the presented token. Runs behind
// RequireSession.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	sessionID := currentSessionID(r.Context())
	if sessionID == "" {
		writeError(w, http.StatusUnauthorized, "missing session")
		return
	}

	if err := h.sessions.RemoveSession(r.Context(), sessionID); err != nil {
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to logout")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Me returns the user resolved by RequireSession.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	user := CurrentUser(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	writeJSON(w, http.StatusOK, user)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
