package entitlements

import "context"

// Limits are the per-tenant caps the current billing tier grants.
type Limits struct {
	Tier      string
	MaxAgents int
}

type Provider interface {
	TenantLimits(ctx context.Context, tenantID string) (Limits, error)
}

type staticProvider struct {
	limits Limits
}

// NewStaticProvider grants the same limits to every tenant. Used when no
// billing endpoint is configured and in tests.
func NewStaticProvider(limits Limits) Provider {
	return &staticProvider{limits: limits}
}

func (p *staticProvider) TenantLimits(_ context.Context, _ string) (Limits, error) {
	return p.limits, nil
}

// FreeTier is the default when billing is unreachable or unconfigured.
func FreeTier() Limits {
	return Limits{Tier: "free", MaxAgents: 1}
}
