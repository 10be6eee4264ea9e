package reconcile

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/o-castellano/botdesk/libs/db"
	"github.com/o-castellano/botdesk/services/billing-service/internal/storage"
	"github.com/o-castellano/botdesk/services/billing-service/internal/subscriptions"
	"github.com/stripe/stripe-go/v79"
	stripesubscription "github.com/stripe/stripe-go/v79/subscription"
)

// StripeReconciler periodically re-reads subscription state from Stripe and
// re-applies it locally, healing whatever a missed webhook left stale.
type StripeReconciler struct {
	pool        *db.Pool
	repo        *storage.Repository
	subSvc      *subscriptions.Service
	logger      *slog.Logger
	stripeKey   string
	interval    time.Duration
	batchSize   int
	advisoryKey int64
}

type Config struct {
	StripeSecretKey string
	Interval        time.Duration
	BatchSize       int
	AdvisoryLockKey int64
}

func NewStripeReconciler(pool *db.Pool, repo *storage.Repository, subSvc *subscriptions.Service, logger *slog.Logger, cfg Config) *StripeReconciler {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.AdvisoryLockKey == 0 {
		cfg.AdvisoryLockKey = 4242001
	}
	return &StripeReconciler{
		pool:        pool,
		repo:        repo,
		subSvc:      subSvc,
		logger:      logger,
		stripeKey:   strings.TrimSpace(cfg.StripeSecretKey),
		interval:    cfg.Interval,
		batchSize:   cfg.BatchSize,
		advisoryKey: cfg.AdvisoryLockKey,
	}
}

func (r *StripeReconciler) Run(ctx context.Context) {
	if r.stripeKey == "" {
		r.logger.Warn("stripe reconcile disabled: STRIPE_SECRET_KEY missing")
		return
	}
	if !r.acquireLock(ctx) {
		return
	}
	defer func() {
		_, _ = r.pool.Exec(context.Background(), `SELECT pg_advisory_unlock($1)`, r.advisoryKey)
	}()

	stripe.Key = r.stripeKey
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	// First pass immediately so a restart after downtime heals fast.
	r.reconcileOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.reconcileOnce(ctx)
		}
	}
}

// acquireLock blocks until this instance holds the advisory lock. Only one
// billing instance reconciles at a time.
func (r *StripeReconciler) acquireLock(ctx context.Context) bool {
	for ctx.Err() == nil {
		var locked bool
		if err := r.pool.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, r.advisoryKey).Scan(&locked); err != nil {
			r.logger.Error("stripe reconcile: advisory lock query failed", "err", err)
			sleepCtx(ctx, 5*time.Second)
			continue
		}
		if locked {
			r.logger.Info("stripe reconcile: advisory lock acquired", "lock_key", r.advisoryKey)
			return true
		}
		sleepCtx(ctx, 30*time.Second)
	}
	return false
}

func (r *StripeReconciler) reconcileOnce(ctx context.Context) {
	subs, err := r.repo.ListStripeSubscriptions(ctx, r.batchSize)
	if err != nil {
		r.logger.Error("stripe reconcile: failed to list subscriptions", "err", err)
		return
	}

	for _, s := range subs {
		if ctx.Err() != nil {
			return
		}
		if s.StripeSubscriptionID == "" || s.TenantID == "" {
			continue
		}

		remote, err := stripesubscription.Get(s.StripeSubscriptionID, nil)
		if err != nil {
			r.logger.Warn("stripe reconcile: fetch failed", "err", err, "stripe_subscription_id", s.StripeSubscriptionID, "tenant_id", s.TenantID)
			continue
		}
		if err := r.applyRemote(ctx, s, remote); err != nil {
			r.logger.Warn("stripe reconcile: apply failed", "err", err, "tenant_id", s.TenantID, "stripe_subscription_id", remote.ID)
		}
	}
}

// applyRemote writes the Stripe-side state through the subscription service
// in its own transaction. Stripe is the source of truth for lifecycle
// status; only active/trialing count as entitled.
func (r *StripeReconciler) applyRemote(ctx context.Context, local storage.Subscription, remote *stripe.Subscription) error {
	customerID := ""
	if remote.Customer != nil {
		customerID = remote.Customer.ID
	}
	var cps, cpe *time.Time
	if remote.CurrentPeriodStart > 0 {
		t := time.Unix(remote.CurrentPeriodStart, 0).UTC()
		cps = &t
	}
	if remote.CurrentPeriodEnd > 0 {
		t := time.Unix(remote.CurrentPeriodEnd, 0).UTC()
		cpe = &t
	}

	tier := strings.TrimSpace(strings.ToLower(remote.Metadata["tier"]))
	if tier == "" {
		// Missing metadata: keep the tier we have rather than guessing.
		tier = local.Tier
	}

	tx, err := r.repo.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	entitled := remote.Status == stripe.SubscriptionStatusActive || remote.Status == stripe.SubscriptionStatusTrialing
	if entitled {
		occurredAt := time.Unix(remote.Created, 0).UTC()
		err = r.subSvc.ApplyActivated(ctx, tx, local.TenantID, tier, occurredAt, "stripe", customerID, remote.ID, cps, cpe)
	} else {
		occurredAt := time.Now().UTC()
		if remote.CanceledAt > 0 {
			occurredAt = time.Unix(remote.CanceledAt, 0).UTC()
		}
		err = r.subSvc.ApplyCanceled(ctx, tx, local.TenantID, occurredAt, "stripe", customerID, remote.ID, cps, cpe)
	}
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
