//go:build protogen

package entitlements

import (
	"context"
	"log/slog"
	"time"

	"github.com/o-castellano/botdesk/libs/grpcx"
	billingv1 "github.com/o-castellano/botdesk/protos/gen/billing/v1"
)

type grpcProvider struct {
	client   billingv1.BillingServiceClient
	fallback Limits
}

func NewBillingProvider(logger *slog.Logger, fallback Limits, addr string) (Provider, error) {
	if addr == "" {
		return NewStaticProvider(fallback), nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := grpcx.Dial(ctx, addr, grpcx.DialOptions{Timeout: 5 * time.Second})
	if err != nil {
		logger.Warn("grpc billing provider unavailable, using fallback", "err", err)
		return NewStaticProvider(fallback), nil
	}

	logger.Info("grpc billing provider enabled", "addr", addr)
	return &grpcProvider{client: billingv1.NewBillingServiceClient(conn), fallback: fallback}, nil
}

func (p *grpcProvider) TenantLimits(ctx context.Context, tenantID string) (Limits, error) {
	resp, err := p.client.GetEntitlements(ctx, &billingv1.EntitlementsRequest{TenantId: tenantID})
	if err != nil {
		return p.fallback, err
	}
	limits := Limits{
		Tier:      resp.GetTier(),
		MaxAgents: int(resp.GetMaxAgents()),
	}
	if limits.MaxAgents <= 0 {
		limits.MaxAgents = p.fallback.MaxAgents
	}
	return limits, nil
}
