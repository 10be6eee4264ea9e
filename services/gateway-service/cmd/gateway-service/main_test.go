package main

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/o-castellano/botdesk/libs/auth"
)

func signTestToken(t *testing.T, claims auth.Claims, secret string) string {
	t.Helper()
	token, err := auth.SignHS256(claims, secret)
	if err != nil {
		t.Fatalf("SignHS256 failed: %v", err)
	}
	return token
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	return rw
}

func TestRequireRole(t *testing.T) {
	h := requireRole(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}), "owner", "admin")

	cases := []struct {
		role string
		want int
	}{
		{"member", http.StatusForbidden},
		{"owner", http.StatusOK},
		{"admin", http.StatusOK},
		{"", http.StatusForbidden},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "http://example.com", nil)
		req.Header.Set("X-Role", tc.role)
		if got := serve(h, req).Code; got != tc.want {
			t.Fatalf("role %q: expected %d, got %d", tc.role, tc.want, got)
		}
	}
}

func TestRequireAuthHS256(t *testing.T) {
	secret := "test-secret"
	claims := auth.Claims{
		Sub:      "user-1",
		TenantID: "tenant-1",
		Role:     "owner",
		Iat:      time.Now().Unix(),
		Exp:      time.Now().Add(1 * time.Hour).Unix(),
	}
	token := signTestToken(t, claims, secret)

	h := requireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ok := r.Header.Get("X-User-Id") == claims.Sub &&
			r.Header.Get("X-Tenant-Id") == claims.TenantID &&
			r.Header.Get("X-Role") == claims.Role
		if !ok {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusOK)
	}), secret, nil)

	t.Run("valid token sets claim headers", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "http://example.com", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		if got := serve(h, req).Code; got != http.StatusOK {
			t.Fatalf("expected 200, got %d", got)
		}
	})

	t.Run("garbage token is 401", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "http://example.com", nil)
		req.Header.Set("Authorization", "Bearer badtoken")
		if got := serve(h, req).Code; got != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", got)
		}
	})

	t.Run("missing header is 401", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "http://example.com", nil)
		if got := serve(h, req).Code; got != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", got)
		}
	})
}

// A forged inbound claim header must never survive authentication.
func TestRequireAuthStripsForgedClaimHeaders(t *testing.T) {
	secret := "test-secret"
	token := signTestToken(t, auth.Claims{
		Sub:      "user-1",
		TenantID: "tenant-1",
		Role:     "member",
		Iat:      time.Now().Unix(),
		Exp:      time.Now().Add(time.Hour).Unix(),
	}, secret)

	h := requireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Role") != "member" || r.Header.Get("X-Tenant-Id") != "tenant-1" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusOK)
	}), secret, nil)

	req := httptest.NewRequest(http.MethodGet, "http://example.com", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-Role", "owner")
	req.Header.Set("X-Tenant-Id", "victim-tenant")
	if got := serve(h, req).Code; got != http.StatusOK {
		t.Fatalf("expected 200 with claim headers overwritten, got %d", got)
	}
}
