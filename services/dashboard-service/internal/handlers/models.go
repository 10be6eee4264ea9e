package handlers

import (
	"log/slog"
	"net/http"

	"github.com/o-castellano/botdesk/services/dashboard-service/internal/openai"
)

type ModelHandler struct {
	lister openai.Lister
	logger *slog.Logger
}

func NewModelHandler(lister openai.Lister, logger *slog.Logger) *ModelHandler {
	return &ModelHandler{lister: lister, logger: logger}
}

// List proxies the upstream model catalog; an upstream failure is a 502,
// not a fabricated list.
func (h *ModelHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	models, err := h.lister.ListModels(r.Context())
	if err != nil {
		h.logger.Error("model listing failed", "err", err)
		http.Error(w, "model listing unavailable", http.StatusBadGateway)
		return
	}
	if models == nil {
		models = []openai.Model{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"models": models})
}
