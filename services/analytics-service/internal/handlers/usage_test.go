package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/o-castellano/botdesk/services/analytics-service/internal/metrics"
)

type fakeUsageStore struct {
	usage    []metrics.DailyUsage
	err      error
	lastDays int
}

func (f *fakeUsageStore) Usage(_ context.Context, _ string, days int) ([]metrics.DailyUsage, error) {
	f.lastDays = days
	return f.usage, f.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&strings.Builder{}, nil))
}

func TestUsageReturnsRollups(t *testing.T) {
	store := &fakeUsageStore{usage: []metrics.DailyUsage{
		{Day: "2026-08-29", RemindersSent: 4, AutoCancellations: 1},
	}}
	h := NewUsageHandler(store, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/analytics/usage?days=7", nil)
	req.Header.Set("X-Tenant-Id", "t1")
	rec := httptest.NewRecorder()
	h.Usage(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if store.lastDays != 7 {
		t.Fatalf("days = %d, want 7", store.lastDays)
	}
	var body struct {
		Usage []metrics.DailyUsage `json:"usage"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	if len(body.Usage) != 1 || body.Usage[0].RemindersSent != 4 {
		t.Fatalf("usage = %+v", body.Usage)
	}
}

func TestUsageRequiresTenant(t *testing.T) {
	h := NewUsageHandler(&fakeUsageStore{}, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/analytics/usage", nil)
	rec := httptest.NewRecorder()
	h.Usage(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 without tenant header", rec.Code)
	}
}

func TestUsageRejectsBadDays(t *testing.T) {
	h := NewUsageHandler(&fakeUsageStore{}, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/analytics/usage?days=zero", nil)
	req.Header.Set("X-Tenant-Id", "t1")
	rec := httptest.NewRecorder()
	h.Usage(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for bad days", rec.Code)
	}
}

func TestUsageStoreErrorIs500(t *testing.T) {
	h := NewUsageHandler(&fakeUsageStore{err: errors.New("db down")}, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/analytics/usage", nil)
	req.Header.Set("X-Tenant-Id", "t1")
	rec := httptest.NewRecorder()
	h.Usage(rec, req)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}
