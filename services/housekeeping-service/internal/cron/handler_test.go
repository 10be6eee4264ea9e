package cron

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&strings.Builder{}, nil))
}

func doReq(t *testing.T, h *Handler, method, auth string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, "/internal/cron/calendar-notifications", nil)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRejectsMissingAndWrongSecret(t *testing.T) {
	var ran atomic.Int32
	h := NewHandler("s3cret", testLogger(), Job{
		Name: "probe",
		Run: func(context.Context) error {
			ran.Add(1)
			return nil
		},
	})

	for _, auth := range []string{"", "Bearer wrong", "s3cret", "Basic s3cret"} {
		rec := doReq(t, h, http.MethodGet, auth)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("auth %q: status = %d, want 401", auth, rec.Code)
		}
		var body map[string]string
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("auth %q: bad body: %v", auth, err)
		}
		if body["error"] != "Unauthorized" {
			t.Fatalf("auth %q: body = %v", auth, body)
		}
	}
	// Zero side effects on rejected calls.
	if ran.Load() != 0 {
		t.Fatalf("jobs ran %d times on unauthorized requests", ran.Load())
	}
}

func TestRejectsWhenSecretUnset(t *testing.T) {
	h := NewHandler("", testLogger())
	rec := doReq(t, h, http.MethodGet, "Bearer ")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401 with unset secret", rec.Code)
	}
}

func TestRejectsNonGET(t *testing.T) {
	h := NewHandler("s3cret", testLogger())
	rec := doReq(t, h, http.MethodPost, "Bearer s3cret")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rec.Code)
	}
}

func TestRunsAllJobsAndReports200(t *testing.T) {
	var a, b atomic.Int32
	h := NewHandler("s3cret", testLogger(),
		Job{Name: "a", Run: func(context.Context) error { a.Add(1); return nil }},
		Job{Name: "b", Run: func(context.Context) error { b.Add(1); return nil }},
	)

	rec := doReq(t, h, http.MethodGet, "Bearer s3cret")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if a.Load() != 1 || b.Load() != 1 {
		t.Fatalf("jobs ran a=%d b=%d, want 1 each", a.Load(), b.Load())
	}

	var body struct {
		Success   bool   `json:"success"`
		Timestamp string `json:"timestamp"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	if !body.Success || body.Timestamp == "" {
		t.Fatalf("body = %+v", body)
	}
}

func TestOneFailureStillRunsSiblingsAndReturns500(t *testing.T) {
	var healthy atomic.Int32
	h := NewHandler("s3cret", testLogger(),
		Job{Name: "broken", Run: func(context.Context) error { return errors.New("db exploded") }},
		Job{Name: "healthy", Run: func(context.Context) error { healthy.Add(1); return nil }},
	)

	rec := doReq(t, h, http.MethodGet, "Bearer s3cret")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if healthy.Load() != 1 {
		t.Fatal("healthy job did not run alongside the failing one")
	}
	// Internal error detail must not leak into the response.
	if strings.Contains(rec.Body.String(), "db exploded") {
		t.Fatalf("response leaks internals: %s", rec.Body.String())
	}
	var body struct {
		Error      string   `json:"error"`
		FailedJobs []string `json:"failed_jobs"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	if len(body.FailedJobs) != 1 || body.FailedJobs[0] != "broken" {
		t.Fatalf("failed_jobs = %v", body.FailedJobs)
	}
}

func TestPanicIsIsolatedToItsJob(t *testing.T) {
	var healthy atomic.Int32
	h := NewHandler("s3cret", testLogger(),
		Job{Name: "panicky", Run: func(context.Context) error { panic("nil map write") }},
		Job{Name: "healthy", Run: func(context.Context) error { healthy.Add(1); return nil }},
	)

	rec := doReq(t, h, http.MethodGet, "Bearer s3cret")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if healthy.Load() != 1 {
		t.Fatal("panic in one job starved its sibling")
	}
}
