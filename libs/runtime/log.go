package runtime

import (
	"log/slog"
	"os"
	"strings"
)

// NewLogger returns the canonical JSON logger for a service, tagged with the
// service name. Level comes from LOG_LEVEL (debug|info|warn|error),
// defaulting to info.
func NewLogger(service string) *slog.Logger {
	var level slog.Level
	raw := strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	if err := level.UnmarshalText([]byte(raw)); err != nil {
		level = slog.LevelInfo
	}
	h := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	return slog.New(h).With("service", service)
}
