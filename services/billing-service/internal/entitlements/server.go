//go:build protogen

package entitlements

import (
	"context"

	billingv1 "github.com/o-castellano/botdesk/protos/gen/billing/v1"
	"github.com/o-castellano/botdesk/services/billing-service/internal/storage"
	"google.golang.org/grpc"
)

type server struct {
	billingv1.UnimplementedBillingServiceServer
	repo *storage.Repository
}

func Register(grpcServer *grpc.Server, repo *storage.Repository) {
	billingv1.RegisterBillingServiceServer(grpcServer, &server{repo: repo})
}

// GetEntitlements resolves the effective limits for a tenant. Missing
// subscriptions and repo errors both answer with the free tier so callers
// never have to special-case billing outages.
func (s *server) GetEntitlements(ctx context.Context, req *billingv1.EntitlementsRequest) (*billingv1.EntitlementsResponse, error) {
	limits := LimitsForTier("free")
	if s.repo != nil && req.GetTenantId() != "" {
		sub, err := s.repo.GetSubscription(ctx, req.GetTenantId())
		if err == nil && sub.Status == "active" {
			limits = LimitsForTier(sub.Tier)
		}
	}
	return &billingv1.EntitlementsResponse{
		Tier:                limits.Tier,
		MaxAgents:           uint32(limits.MaxAgents),
		MaxKnowledgeSources: uint32(limits.MaxKnowledgeSources),
		MaxMonthlyMessages:  uint32(limits.MaxMonthlyMessages),
	}, nil
}
