package runtime

import (
	"context"
	"net/http"
	"strings"
	"time"
)

const probeTimeout = 2 * time.Second

// ReadyCheck is a named dependency probe evaluated by /readyz.
type ReadyCheck struct {
	Name  string
	Check func(context.Context) error
}

// NewBaseMuxWithReady builds a mux preloaded with /healthz (liveness, always
// ok) and /readyz (fails if any dependency probe fails).
func NewBaseMuxWithReady(checks ...ReadyCheck) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if failed := runProbes(r.Context(), checks); len(failed) > 0 {
			http.Error(w, strings.Join(failed, "; "), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

func runProbes(ctx context.Context, checks []ReadyCheck) []string {
	var failed []string
	for _, probe := range checks {
		if probe.Check == nil {
			continue
		}
		probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
		err := probe.Check(probeCtx)
		cancel()
		if err != nil {
			name := probe.Name
			if name == "" {
				name = "dependency"
			}
			failed = append(failed, name+": "+err.Error())
		}
	}
	return failed
}
