package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/o-castellano/botdesk/services/analytics-service/internal/metrics"
)

type UsageStore interface {
	Usage(ctx context.Context, tenantID string, days int) ([]metrics.DailyUsage, error)
}

type UsageHandler struct {
	store  UsageStore
	logger *slog.Logger
}

func NewUsageHandler(store UsageStore, logger *slog.Logger) *UsageHandler {
	return &UsageHandler{store: store, logger: logger}
}

// Usage returns the tenant's daily rollups for the requested window
// (default 30 days, capped at 90).
func (h *UsageHandler) Usage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	tenantID := strings.TrimSpace(r.Header.Get("X-Tenant-Id"))
	if tenantID == "" {
		http.Error(w, "missing tenant context", http.StatusBadRequest)
		return
	}

	days := 30
	if raw := strings.TrimSpace(r.URL.Query().Get("days")); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			http.Error(w, "invalid days", http.StatusBadRequest)
			return
		}
		days = v
	}

	usage, err := h.store.Usage(r.Context(), tenantID, days)
	if err != nil {
		h.logger.Error("usage query failed", "err", err, "tenant_id", tenantID)
		http.Error(w, "failed to load usage", http.StatusInternalServerError)
		return
	}
	if usage == nil {
		usage = []metrics.DailyUsage{}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]any{"usage": usage})
}
