package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/o-castellano/botdesk/services/dashboard-service/internal/model"
	"github.com/o-castellano/botdesk/services/dashboard-service/internal/storage"
)

type AppointmentHandler struct {
	repo   *storage.AppointmentRepository
	logger *slog.Logger
}

func NewAppointmentHandler(repo *storage.AppointmentRepository, logger *slog.Logger) *AppointmentHandler {
	return &AppointmentHandler{repo: repo, logger: logger}
}

func (h *AppointmentHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	tenantID, ok := tenantFrom(w, r)
	if !ok {
		return
	}

	appts, err := h.repo.ListByTenant(r.Context(), tenantID, queryLimit(r))
	if err != nil {
		http.Error(w, "failed to list appointments", http.StatusInternalServerError)
		return
	}
	if appts == nil {
		appts = []model.Appointment{}
	}
	writeJSON(w, http.StatusOK, appts)
}

// Confirm is a conditional update: only a pending appointment confirms. A
// 409 means the row changed underneath (cancelled or already confirmed).
func (h *AppointmentHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	tenantID, ok := tenantFrom(w, r)
	if !ok {
		return
	}
	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if id == "" {
		http.Error(w, "id required", http.StatusBadRequest)
		return
	}

	confirmed, err := h.repo.Confirm(r.Context(), tenantID, id)
	if err != nil {
		http.Error(w, "failed to confirm appointment", http.StatusInternalServerError)
		return
	}
	if !confirmed {
		http.Error(w, "appointment is not pending", http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "confirmed"})
}

type cancelAppointmentRequest struct {
	Reason string `json:"reason"`
}

func (h *AppointmentHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	tenantID, ok := tenantFrom(w, r)
	if !ok {
		return
	}
	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if id == "" {
		http.Error(w, "id required", http.StatusBadRequest)
		return
	}

	var req cancelAppointmentRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = "cancelled from dashboard"
	}

	cancelled, err := h.repo.Cancel(r.Context(), tenantID, id, reason)
	if err != nil {
		h.logger.Error("appointment cancel failed", "appointment_id", id, "err", err)
		http.Error(w, "failed to cancel appointment", http.StatusInternalServerError)
		return
	}
	if !cancelled {
		http.Error(w, "appointment cannot be cancelled", http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}
