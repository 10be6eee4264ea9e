package handlers

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&strings.Builder{}, nil))
}

func TestStripeWebhookRejectsUnsignedRequests(t *testing.T) {
	h := New(nil, nil, testLogger(), Config{StripeWebhookSecret: "whsec_test"})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/billing/webhooks/stripe", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	h.StripeWebhook(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 without Stripe-Signature", rec.Code)
	}

	reqBad := httptest.NewRequest(http.MethodPost, "/api/v1/billing/webhooks/stripe", strings.NewReader(`{}`))
	reqBad.Header.Set("Stripe-Signature", "t=1,v1=deadbeef")
	recBad := httptest.NewRecorder()
	h.StripeWebhook(recBad, reqBad)
	if recBad.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for bad signature", recBad.Code)
	}
}

func TestStripeWebhookUnconfiguredIs503(t *testing.T) {
	h := New(nil, nil, testLogger(), Config{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/billing/webhooks/stripe", strings.NewReader(`{}`))
	req.Header.Set("Stripe-Signature", "t=1,v1=deadbeef")
	rec := httptest.NewRecorder()
	h.StripeWebhook(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503 when webhook secret unset", rec.Code)
	}
}

func TestCheckoutValidatesTierAndTenant(t *testing.T) {
	h := New(nil, nil, testLogger(), Config{StripeSecretKey: "sk_test"})

	noTenant := httptest.NewRequest(http.MethodPost, "/api/v1/billing/checkout", strings.NewReader(`{"tier":"pro"}`))
	rec := httptest.NewRecorder()
	h.Checkout(rec, noTenant)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 without tenant header", rec.Code)
	}

	badTier := httptest.NewRequest(http.MethodPost, "/api/v1/billing/checkout", strings.NewReader(`{"tier":"platinum"}`))
	badTier.Header.Set("X-Tenant-Id", "t1")
	recTier := httptest.NewRecorder()
	h.Checkout(recTier, badTier)
	if recTier.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for unknown tier", recTier.Code)
	}

	noPrice := httptest.NewRequest(http.MethodPost, "/api/v1/billing/checkout", strings.NewReader(`{"tier":"pro"}`))
	noPrice.Header.Set("X-Tenant-Id", "t1")
	recPrice := httptest.NewRecorder()
	h.Checkout(recPrice, noPrice)
	if recPrice.Code != http.StatusNotImplemented {
		t.Fatalf("status = %d, want 501 when price id unconfigured", recPrice.Code)
	}
}

func TestTenantScope(t *testing.T) {
	newReq := func(role, tenant string) *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		if role != "" {
			r.Header.Set("X-Role", role)
		}
		if tenant != "" {
			r.Header.Set("X-Tenant-Id", tenant)
		}
		return r
	}

	if got, ok := tenantScope(newReq("member", "t1"), ""); !ok || got != "t1" {
		t.Fatalf("own tenant: got %q ok=%v", got, ok)
	}
	if _, ok := tenantScope(newReq("member", "t1"), "t2"); ok {
		t.Fatal("member must not act on another tenant")
	}
	if got, ok := tenantScope(newReq("admin", "t1"), "t2"); !ok || got != "t2" {
		t.Fatalf("admin override: got %q ok=%v", got, ok)
	}
	if _, ok := tenantScope(newReq("member", ""), ""); ok {
		t.Fatal("no tenant context should not resolve")
	}
}
