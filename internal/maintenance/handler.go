package maintenance

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"apd-api/internal/auth"
	"apd-api/internal/observability"
)

// CleanupHandler clears expired account locks and quiet failure histories.
// It is invoked by an external scheduler and guarded by a shared secret;
// with no secret configured the endpoint does not exist.
type CleanupHandler struct {
	repo       *auth.Repository
	logger     *observability.Logger
	cronSecret string
	retention  time.Duration
	batchSize  int
}

func NewCleanupHandler(repo *auth.Repository, logger *observability.Logger, cronSecret string, retention time.Duration, batchSize int) *CleanupHandler {
	return &CleanupHandler{
		repo:       repo,
		logger:     logger,
		cronSecret: strings.TrimSpace(cronSecret),
		retention:  retention,
		batchSize:  batchSize,
	}
}

func (h *CleanupHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if h.cronSecret == "" {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}

	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) != h.cronSecret {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	cleared, err := h.repo.CleanupStaleLoginState(r.Context(), h.retention, h.batchSize)
	if err != nil {
		h.logger.Error("login_state_cleanup_failed", map[string]any{"error": err.Error()})
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "cleanup failed"})
		return
	}

	h.logger.Info("login_state_cleanup_completed", map[string]any{
		"cleared_accounts": cleared,
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"status":           "ok",
		"cleared_accounts": cleared,
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
