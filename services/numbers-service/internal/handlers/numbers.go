package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/o-castellano/botdesk/services/numbers-service/internal/pricing"
	"github.com/o-castellano/botdesk/services/numbers-service/internal/provision"
)

type NumbersHandler struct {
	quoter   *pricing.Quoter
	searcher provision.Searcher
	repo     *provision.Repository
	logger   *slog.Logger
}

func NewNumbersHandler(quoter *pricing.Quoter, searcher provision.Searcher, repo *provision.Repository, logger *slog.Logger) *NumbersHandler {
	return &NumbersHandler{
		quoter:   quoter,
		searcher: searcher,
		repo:     repo,
		logger:   logger,
	}
}

// Pricing always answers 200: a degraded upstream produces a fallback quote
// with success:false, never an error status.
func (h *NumbersHandler) Pricing(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	quote := h.quoter.MonthlyQuote(r.Context(), r.URL.Query().Get("country"))

	body, err := json.Marshal(quote)
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (h *NumbersHandler) Search(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	country := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("country")))
	if country == "" {
		country = "US"
	}
	areaCode := strings.TrimSpace(r.URL.Query().Get("area_code"))
	limit := 10
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 30 {
			limit = n
		}
	}

	numbers, err := h.searcher.Search(r.Context(), country, areaCode, limit)
	if err != nil {
		h.logger.Error("number search failed", "country", country, "err", err)
		http.Error(w, "number search unavailable", http.StatusBadGateway)
		return
	}

	body, err := json.Marshal(map[string]any{"numbers": numbers})
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

type provisionRequest struct {
	PhoneNumber string `json:"phone_number"`
	Country     string `json:"country"`
}

func (h *NumbersHandler) Provision(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	tenantID := strings.TrimSpace(r.Header.Get("X-Tenant-Id"))
	if tenantID == "" {
		http.Error(w, "tenant required", http.StatusBadRequest)
		return
	}

	var req provisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.PhoneNumber = strings.TrimSpace(req.PhoneNumber)
	req.Country = strings.ToUpper(strings.TrimSpace(req.Country))
	if req.PhoneNumber == "" {
		http.Error(w, "phone_number required", http.StatusBadRequest)
		return
	}
	if req.Country == "" {
		req.Country = "US"
	}

	// The stored cost is the quote at provisioning time, fallback or not.
	quote := h.quoter.MonthlyQuote(r.Context(), req.Country)

	rec, err := h.repo.Create(r.Context(), tenantID, req.PhoneNumber, req.Country, quote.MonthlyPrice)
	if err != nil {
		if errors.Is(err, provision.ErrNumberTaken) {
			http.Error(w, "phone number already provisioned", http.StatusConflict)
			return
		}
		h.logger.Error("provision failed", "err", err)
		http.Error(w, "failed to provision number", http.StatusInternalServerError)
		return
	}

	body, err := json.Marshal(rec)
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_, _ = w.Write(body)
}

func (h *NumbersHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	tenantID := strings.TrimSpace(r.Header.Get("X-Tenant-Id"))
	if tenantID == "" {
		http.Error(w, "tenant required", http.StatusBadRequest)
		return
	}

	records, err := h.repo.ListByTenant(r.Context(), tenantID)
	if err != nil {
		http.Error(w, "failed to list numbers", http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []provision.Record{}
	}

	body, err := json.Marshal(records)
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (h *NumbersHandler) Release(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	tenantID := strings.TrimSpace(r.Header.Get("X-Tenant-Id"))
	if tenantID == "" {
		http.Error(w, "tenant required", http.StatusBadRequest)
		return
	}
	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if id == "" {
		http.Error(w, "id required", http.StatusBadRequest)
		return
	}

	released, err := h.repo.Release(r.Context(), tenantID, id)
	if err != nil {
		http.Error(w, "failed to release number", http.StatusInternalServerError)
		return
	}
	if !released {
		http.Error(w, "number not found or already released", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"released"}`))
}
