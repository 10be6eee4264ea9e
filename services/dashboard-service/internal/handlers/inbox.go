package handlers

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/o-castellano/botdesk/services/dashboard-service/internal/model"
	"github.com/o-castellano/botdesk/services/dashboard-service/internal/storage"
)

type InboxHandler struct {
	repo   *storage.InboxRepository
	logger *slog.Logger
}

func NewInboxHandler(repo *storage.InboxRepository, logger *slog.Logger) *InboxHandler {
	return &InboxHandler{repo: repo, logger: logger}
}

func (h *InboxHandler) Conversations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	tenantID, ok := tenantFrom(w, r)
	if !ok {
		return
	}
	agentID := strings.TrimSpace(r.URL.Query().Get("agent_id"))
	if agentID == "" {
		http.Error(w, "agent_id required", http.StatusBadRequest)
		return
	}

	convs, err := h.repo.ListConversations(r.Context(), tenantID, agentID, queryLimit(r))
	if err != nil {
		http.Error(w, "failed to list conversations", http.StatusInternalServerError)
		return
	}
	if convs == nil {
		convs = []model.Conversation{}
	}
	writeJSON(w, http.StatusOK, convs)
}

func (h *InboxHandler) Messages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	tenantID, ok := tenantFrom(w, r)
	if !ok {
		return
	}
	conversationID := strings.TrimSpace(r.URL.Query().Get("conversation_id"))
	if conversationID == "" {
		http.Error(w, "conversation_id required", http.StatusBadRequest)
		return
	}

	msgs, err := h.repo.ListMessages(r.Context(), tenantID, conversationID, queryLimit(r))
	if err != nil {
		http.Error(w, "failed to list messages", http.StatusInternalServerError)
		return
	}
	if msgs == nil {
		msgs = []model.Message{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

func queryLimit(r *http.Request) int {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return n
}
