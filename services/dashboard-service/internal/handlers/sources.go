package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/o-castellano/botdesk/services/dashboard-service/internal/model"
	"github.com/o-castellano/botdesk/services/dashboard-service/internal/storage"
)

type SourceHandler struct {
	repo   *storage.SourceRepository
	logger *slog.Logger
}

func NewSourceHandler(repo *storage.SourceRepository, logger *slog.Logger) *SourceHandler {
	return &SourceHandler{repo: repo, logger: logger}
}

type createSourceRequest struct {
	AgentID  string `json:"agent_id"`
	Kind     string `json:"kind"`
	Location string `json:"location"`
}

// Sources dispatches /api/v1/sources: POST create, GET list, DELETE remove.
func (h *SourceHandler) Sources(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.create(w, r)
	case http.MethodGet:
		h.list(w, r)
	case http.MethodDelete:
		h.delete(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *SourceHandler) create(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantFrom(w, r)
	if !ok {
		return
	}

	var req createSourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.AgentID = strings.TrimSpace(req.AgentID)
	req.Kind = strings.TrimSpace(req.Kind)
	req.Location = strings.TrimSpace(req.Location)

	if req.AgentID == "" || req.Location == "" {
		http.Error(w, "agent_id and location required", http.StatusBadRequest)
		return
	}
	switch req.Kind {
	case model.SourceKindURL:
		if u, err := url.Parse(req.Location); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			http.Error(w, "location must be an http(s) url", http.StatusBadRequest)
			return
		}
	case model.SourceKindText:
	default:
		http.Error(w, "kind must be url or text", http.StatusBadRequest)
		return
	}

	src := model.KnowledgeSource{
		AgentID:  req.AgentID,
		Kind:     req.Kind,
		Location: req.Location,
	}
	if err := h.repo.Create(r.Context(), tenantID, &src); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "agent not found", http.StatusNotFound)
			return
		}
		h.logger.Error("source create failed", "err", err)
		http.Error(w, "failed to create source", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, src)
}

func (h *SourceHandler) list(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantFrom(w, r)
	if !ok {
		return
	}
	agentID := strings.TrimSpace(r.URL.Query().Get("agent_id"))
	if agentID == "" {
		http.Error(w, "agent_id required", http.StatusBadRequest)
		return
	}
	sources, err := h.repo.ListByAgent(r.Context(), tenantID, agentID)
	if err != nil {
		http.Error(w, "failed to list sources", http.StatusInternalServerError)
		return
	}
	if sources == nil {
		sources = []model.KnowledgeSource{}
	}
	writeJSON(w, http.StatusOK, sources)
}

func (h *SourceHandler) delete(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantFrom(w, r)
	if !ok {
		return
	}
	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if id == "" {
		http.Error(w, "id required", http.StatusBadRequest)
		return
	}
	deleted, err := h.repo.Delete(r.Context(), tenantID, id)
	if err != nil {
		http.Error(w, "failed to delete source", http.StatusInternalServerError)
		return
	}
	if !deleted {
		http.Error(w, "source not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

type indexCallbackRequest struct {
	SourceID string `json:"source_id"`
	Status   string `json:"status"`
}

// IndexCallback is the internal endpoint the indexing pipeline reports
// completion to. Only pending sources transition.
func (h *SourceHandler) IndexCallback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req indexCallbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.SourceID = strings.TrimSpace(req.SourceID)
	if req.SourceID == "" {
		http.Error(w, "source_id required", http.StatusBadRequest)
		return
	}
	if req.Status != model.SourceStatusIndexed && req.Status != model.SourceStatusFailed {
		http.Error(w, "status must be indexed or failed", http.StatusBadRequest)
		return
	}

	updated, err := h.repo.SetStatus(r.Context(), req.SourceID, req.Status)
	if err != nil {
		http.Error(w, "failed to update source", http.StatusInternalServerError)
		return
	}
	if !updated {
		// Already transitioned or unknown id; report it so the pipeline can
		// stop retrying.
		http.Error(w, "source not pending", http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": req.Status})
}
