package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/o-castellano/botdesk/services/dashboard-service/internal/entitlements"
	"github.com/o-castellano/botdesk/services/dashboard-service/internal/model"
	"github.com/o-castellano/botdesk/services/dashboard-service/internal/storage"
	"golang.org/x/crypto/bcrypt"
)

type AgentHandler struct {
	repo   *storage.AgentRepository
	limits entitlements.Provider
	logger *slog.Logger
}

func NewAgentHandler(repo *storage.AgentRepository, limits entitlements.Provider, logger *slog.Logger) *AgentHandler {
	return &AgentHandler{
		repo:   repo,
		limits: limits,
		logger: logger,
	}
}

type createAgentRequest struct {
	Name     string `json:"name"`
	Greeting string `json:"greeting"`
	Model    string `json:"model"`
}

type createAgentResponse struct {
	Agent model.Agent `json:"agent"`
	// WidgetKey is returned exactly once; only its hash is stored.
	WidgetKey string `json:"widget_key"`
}

// Agents dispatches /api/v1/agents by method: POST create, GET list.
func (h *AgentHandler) Agents(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.create(w, r)
	case http.MethodGet:
		h.list(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// Agent dispatches /api/v1/agents/item?id=: GET, PUT, DELETE.
func (h *AgentHandler) Agent(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.get(w, r)
	case http.MethodPut:
		h.update(w, r)
	case http.MethodDelete:
		h.delete(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *AgentHandler) create(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantFrom(w, r)
	if !ok {
		return
	}

	var req createAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		http.Error(w, "name required", http.StatusBadRequest)
		return
	}
	if req.Model == "" {
		req.Model = "gpt-4o-mini"
	}

	limits, err := h.limits.TenantLimits(r.Context(), tenantID)
	if err != nil {
		h.logger.Warn("entitlements lookup failed, using free tier", "tenant_id", tenantID, "err", err)
		limits = entitlements.FreeTier()
	}
	count, err := h.repo.CountByTenant(r.Context(), tenantID)
	if err != nil {
		http.Error(w, "failed to check agent count", http.StatusInternalServerError)
		return
	}
	if limits.MaxAgents > 0 && count >= limits.MaxAgents {
		http.Error(w, fmt.Sprintf("agent limit reached for %s tier (upgrade required)", limits.Tier), http.StatusPaymentRequired)
		return
	}

	widgetKey := uuid.NewString()
	hash, err := bcrypt.GenerateFromPassword([]byte(widgetKey), bcrypt.DefaultCost)
	if err != nil {
		http.Error(w, "failed to generate widget key", http.StatusInternalServerError)
		return
	}

	agent := model.Agent{
		TenantID:      tenantID,
		Name:          req.Name,
		Greeting:      strings.TrimSpace(req.Greeting),
		Model:         req.Model,
		WidgetKeyHash: string(hash),
	}
	if err := h.repo.Create(r.Context(), &agent); err != nil {
		h.logger.Error("agent create failed", "err", err)
		http.Error(w, "failed to create agent", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, createAgentResponse{Agent: agent, WidgetKey: widgetKey})
}

func (h *AgentHandler) list(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantFrom(w, r)
	if !ok {
		return
	}
	agents, err := h.repo.ListByTenant(r.Context(), tenantID)
	if err != nil {
		http.Error(w, "failed to list agents", http.StatusInternalServerError)
		return
	}
	if agents == nil {
		agents = []model.Agent{}
	}
	writeJSON(w, http.StatusOK, agents)
}

func (h *AgentHandler) get(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantFrom(w, r)
	if !ok {
		return
	}
	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if id == "" {
		http.Error(w, "id required", http.StatusBadRequest)
		return
	}
	agent, err := h.repo.Get(r.Context(), tenantID, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "agent not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load agent", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, agent)
}

type updateAgentRequest struct {
	Name     string `json:"name"`
	Greeting string `json:"greeting"`
	Model    string `json:"model"`
}

func (h *AgentHandler) update(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantFrom(w, r)
	if !ok {
		return
	}
	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if id == "" {
		http.Error(w, "id required", http.StatusBadRequest)
		return
	}

	var req updateAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		http.Error(w, "name required", http.StatusBadRequest)
		return
	}
	if req.Model == "" {
		req.Model = "gpt-4o-mini"
	}

	agent, err := h.repo.Update(r.Context(), tenantID, id, req.Name, strings.TrimSpace(req.Greeting), req.Model)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "agent not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to update agent", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, agent)
}

func (h *AgentHandler) delete(w http.ResponseWriter, r *http.Request) {
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
		http.Error(w, "failed to delete agent", http.StatusInternalServerError)
		return
	}
	if !deleted {
		http.Error(w, "agent not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func tenantFrom(w http.ResponseWriter, r *http.Request) (string, bool) {
	tenantID := strings.TrimSpace(r.Header.Get("X-Tenant-Id"))
	if tenantID == "" {
		http.Error(w, "tenant required", http.StatusBadRequest)
		return "", false
	}
	return tenantID, true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	data, err := json.Marshal(body)
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}
