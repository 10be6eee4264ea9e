package cron

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Job is one unit of housekeeping work triggered by the cron endpoint.
type Job struct {
	Name string
	Run  func(ctx context.Context) error
}

// Handler exposes the HTTP trigger an external scheduler hits on a fixed
// interval. All jobs run concurrently and are always joined; a failing or
// panicking job never leaves siblings orphaned.
type Handler struct {
	secret string
	logger *slog.Logger
	jobs   []Job
}

func NewHandler(secret string, logger *slog.Logger, jobs ...Job) *Handler {
	return &Handler{
		secret: secret,
		logger: logger,
		jobs:   jobs,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "Method Not Allowed"})
		return
	}
	// Authorization happens before any work; an unauthorized call must have
	// zero side effects.
	if !h.authorized(r) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
		return
	}

	start := time.Now()
	results := h.runAll(r.Context())

	var failed []string
	for name, err := range results {
		if err != nil {
			failed = append(failed, name)
			h.logger.Error("cron job failed", "job", name, "err", err)
		}
	}

	h.logger.Info("cron run finished",
		"jobs", len(h.jobs),
		"failed", len(failed),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if len(failed) > 0 {
		// Internal detail stays in the logs; the scheduler only needs a
		// retryable signal.
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error":       "Internal Server Error",
			"failed_jobs": failed,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) authorized(r *http.Request) bool {
	if h.secret == "" {
		return false
	}
	auth := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(h.secret)) == 1
}

// runAll fans the jobs out and joins all of them, whatever each returns.
// A panic inside a job is converted to an error for that job only.
func (h *Handler) runAll(ctx context.Context) map[string]error {
	results := make(map[string]error, len(h.jobs))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, job := range h.jobs {
		wg.Add(1)
		go func(job Job) {
			defer wg.Done()
			err := runRecovered(ctx, job)
			mu.Lock()
			results[job.Name] = err
			mu.Unlock()
		}(job)
	}
	wg.Wait()
	return results
}

func runRecovered(ctx context.Context, job Job) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("job %s panicked: %v", job.Name, rec)
		}
	}()
	return job.Run(ctx)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
