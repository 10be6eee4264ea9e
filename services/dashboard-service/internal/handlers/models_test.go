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

	"github.com/o-castellano/botdesk/services/dashboard-service/internal/openai"
)

type fakeLister struct {
	models []openai.Model
	err    error
}

func (f *fakeLister) ListModels(context.Context) ([]openai.Model, error) {
	return f.models, f.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&strings.Builder{}, nil))
}

func TestModelListSuccess(t *testing.T) {
	h := NewModelHandler(&fakeLister{models: []openai.Model{{ID: "gpt-4o", OwnedBy: "system"}}}, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/models", nil)
	rec := httptest.NewRecorder()
	h.List(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body struct {
		Models []openai.Model `json:"models"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	if len(body.Models) != 1 || body.Models[0].ID != "gpt-4o" {
		t.Fatalf("models = %+v", body.Models)
	}
}

func TestModelListUpstreamFailureIs502(t *testing.T) {
	h := NewModelHandler(&fakeLister{err: errors.New("upstream down")}, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/models", nil)
	rec := httptest.NewRecorder()
	h.List(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
}

func TestSourceValidation(t *testing.T) {
	h := NewSourceHandler(nil, testLogger())

	cases := []struct {
		name string
		body string
	}{
		{"bad kind", `{"agent_id":"a1","kind":"pdf","location":"x"}`},
		{"bad url", `{"agent_id":"a1","kind":"url","location":"ftp://example.com"}`},
		{"missing location", `{"agent_id":"a1","kind":"text"}`},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/sources", strings.NewReader(tc.body))
		req.Header.Set("X-Tenant-Id", "t1")
		rec := httptest.NewRecorder()
		h.Sources(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: status = %d, want 400", tc.name, rec.Code)
		}
	}
}

func TestHandlersRequireTenantHeader(t *testing.T) {
	agents := NewAgentHandler(nil, nil, testLogger())
	req := httptest.NewRequest(http.MethodGet, "/api/v1/agents", nil)
	rec := httptest.NewRecorder()
	agents.Agents(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 without tenant header", rec.Code)
	}
}
