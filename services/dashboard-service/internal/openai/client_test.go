package openai

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestListModelsMapsUpstreamPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/models" {
			t.Fatalf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Fatalf("authorization = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"object": "list",
			"data": [
				{"id": "gpt-4o-mini", "object": "model", "owned_by": "system"},
				{"id": "gpt-4o", "object": "model", "owned_by": "system"}
			]
		}`))
	}))
	defer srv.Close()

	client := NewClient("sk-test", srv.URL)
	models, err := client.ListModels(context.Background())
	if err != nil {
		t.Fatalf("list models: %v", err)
	}
	if len(models) != 2 {
		t.Fatalf("models = %+v, want 2", models)
	}
	if models[0].ID != "gpt-4o-mini" || models[0].OwnedBy != "system" {
		t.Fatalf("first model = %+v", models[0])
	}
}

func TestListModelsUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewClient("sk-test", srv.URL)
	if _, err := client.ListModels(context.Background()); err == nil {
		t.Fatal("expected error for 429 upstream")
	}
}

func TestListModelsRequiresKey(t *testing.T) {
	client := NewClient("", "")
	if _, err := client.ListModels(context.Background()); err == nil {
		t.Fatal("expected error without api key")
	}
}
