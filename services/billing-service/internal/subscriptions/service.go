package subscriptions

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/o-castellano/botdesk/libs/outbox"
	"github.com/o-castellano/botdesk/services/billing-service/internal/entitlements"
	"github.com/o-castellano/botdesk/services/billing-service/internal/storage"
)

// Service owns subscription state transitions and their outbox side effects.
// Webhooks, the cancel endpoint, and reconciliation all funnel through it so
// the emit-on-change rule lives in one place.
type Service struct {
	repo       *storage.Repository
	outboxRepo *outbox.Repository
}

func New(repo *storage.Repository, outboxRepo *outbox.Repository) *Service {
	return &Service{repo: repo, outboxRepo: outboxRepo}
}

type change struct {
	TenantID             string
	Tier                 string
	Status               string
	Provider             string
	StripeCustomerID     string
	StripeSubscriptionID string
	PeriodStart          *time.Time
	PeriodEnd            *time.Time
}

// apply upserts the subscription row and emits an event only when the
// effective entitlement (tier or status) actually changed. Provider ID
// refreshes alone must not fan out to consumers.
func (s *Service) apply(ctx context.Context, tx pgx.Tx, c change, eventType string, extra map[string]any) error {
	existing, ok, err := s.repo.GetSubscriptionForUpdate(ctx, tx, c.TenantID)
	if err != nil {
		return err
	}

	if err := s.repo.UpsertSubscription(ctx, tx, storage.Subscription{
		TenantID:             c.TenantID,
		Tier:                 c.Tier,
		Status:               c.Status,
		Provider:             c.Provider,
		StripeCustomerID:     c.StripeCustomerID,
		StripeSubscriptionID: c.StripeSubscriptionID,
		CurrentPeriodStart:   c.PeriodStart,
		CurrentPeriodEnd:     c.PeriodEnd,
	}); err != nil {
		return err
	}

	if ok && existing.Status == c.Status && existing.Tier == c.Tier {
		return nil
	}

	limits := entitlements.LimitsForTier(c.Tier)
	body := map[string]any{
		"tenant_id":  c.TenantID,
		"tier":       limits.Tier,
		"max_agents": limits.MaxAgents,
	}
	for k, v := range extra {
		body[k] = v
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	return s.outboxRepo.Insert(ctx, tx, outbox.Event{
		AggregateType: "subscription",
		AggregateID:   c.TenantID,
		EventType:     eventType,
		Payload:       payload,
	})
}

func (s *Service) ApplyActivated(ctx context.Context, tx pgx.Tx, tenantID, tier string, activatedAt time.Time, provider, stripeCustomerID, stripeSubscriptionID string, periodStart, periodEnd *time.Time) error {
	return s.apply(ctx, tx, change{
		TenantID:             tenantID,
		Tier:                 tier,
		Status:               "active",
		Provider:             provider,
		StripeCustomerID:     stripeCustomerID,
		StripeSubscriptionID: stripeSubscriptionID,
		PeriodStart:          periodStart,
		PeriodEnd:            periodEnd,
	}, "billing.subscription.activated.v1", map[string]any{
		"activated_at": activatedAt.UTC().Format(time.RFC3339),
	})
}

// ApplyCanceled drops the tenant back to the free tier. The canceled row is
// kept (rather than deleted) so stripe ids remain available for audits.
func (s *Service) ApplyCanceled(ctx context.Context, tx pgx.Tx, tenantID string, canceledAt time.Time, provider, stripeCustomerID, stripeSubscriptionID string, periodStart, periodEnd *time.Time) error {
	return s.apply(ctx, tx, change{
		TenantID:             tenantID,
		Tier:                 "free",
		Status:               "canceled",
		Provider:             provider,
		StripeCustomerID:     stripeCustomerID,
		StripeSubscriptionID: stripeSubscriptionID,
		PeriodStart:          periodStart,
		PeriodEnd:            periodEnd,
	}, "billing.subscription.canceled.v1", map[string]any{
		"canceled_at": canceledAt.UTC().Format(time.RFC3339),
	})
}
