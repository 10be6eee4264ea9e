//go:build !protogen

package main

import (
	"context"
	"log/slog"

	"github.com/o-castellano/botdesk/libs/db"
)

// Builds without the protogen tag serve entitlements over HTTP only.
func startGrpcServer(_ context.Context, logger *slog.Logger, _ *db.Pool) error {
	logger.Info("grpc entitlements server disabled (build without protogen tag)")
	return nil
}
