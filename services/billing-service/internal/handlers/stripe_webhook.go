package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/o-castellano/botdesk/services/billing-service/internal/storage"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
)

// StripeWebhook handles Stripe event deliveries. There is no JWT on this
// path; the signature check is the authentication. The gateway forwards it
// untouched.
func (h *Handler) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.stripeWebhookSecret == "" {
		http.Error(w, "stripe webhook not configured", http.StatusServiceUnavailable)
		return
	}

	sigHeader := r.Header.Get("Stripe-Signature")
	if strings.TrimSpace(sigHeader) == "" {
		http.Error(w, "missing Stripe-Signature header", http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20)) // 1 MiB hard cap
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	evt, err := webhook.ConstructEventWithTolerance(body, sigHeader, h.stripeWebhookSecret, h.stripeWebhookTolerance)
	if err != nil {
		http.Error(w, "invalid signature", http.StatusBadRequest)
		return
	}

	occurredAt := time.Unix(evt.Created, 0).UTC()
	evtType := string(evt.Type)
	h.logger.Info("billing provider event received",
		"provider", "stripe",
		"provider_event_id", evt.ID,
		"event_type", evtType,
		"occurred_at", occurredAt.Format(time.RFC3339),
	)

	tx, err := h.repo.Begin(r.Context())
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(r.Context()) }()

	// Replayed deliveries commit nothing beyond the dedupe row.
	if err := h.repo.InsertProviderEvent(r.Context(), tx, storage.ProviderEvent{
		Provider:        "stripe",
		ProviderEventID: evt.ID,
		EventType:       evtType,
		Payload:         body,
	}); err != nil {
		if errors.Is(err, storage.ErrDuplicateProviderEvent) {
			h.logger.Info("billing provider event duplicate ignored", "provider", "stripe", "provider_event_id", evt.ID)
			writeJSON(w, http.StatusOK, map[string]any{"status": "duplicate"})
			_ = tx.Commit(r.Context())
			return
		}
		http.Error(w, "failed to record provider event", http.StatusInternalServerError)
		return
	}

	if err := h.recordAudit(r.Context(), tx, r, "billing.provider.stripe.webhook", "provider", "", map[string]any{
		"provider":          "stripe",
		"provider_event_id": evt.ID,
		"event_type":        evtType,
		"occurred_at":       occurredAt.Format(time.RFC3339),
	}); err != nil {
		http.Error(w, "failed to record audit event", http.StatusInternalServerError)
		return
	}

	if err := h.applyStripeEvent(w, r, tx, evtType, evt.Data.Raw, occurredAt); err != nil {
		// applyStripeEvent already wrote the error response.
		return
	}

	if err := tx.Commit(r.Context()); err != nil {
		http.Error(w, "failed to commit", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

var errWebhookApply = errors.New("webhook apply failed")

// applyStripeEvent dispatches on the event type. Unknown types and payloads
// missing our metadata are acknowledged without state changes so Stripe
// stops retrying them.
func (h *Handler) applyStripeEvent(w http.ResponseWriter, r *http.Request, tx pgx.Tx, evtType string, raw []byte, occurredAt time.Time) error {
	switch evtType {
	case "checkout.session.completed":
		var session stripe.CheckoutSession
		if err := json.Unmarshal(raw, &session); err != nil {
			h.logger.Error("stripe: invalid checkout session payload", "err", err)
			return nil
		}
		tenantID, tier, ok := tenantMetadata(session.Metadata)
		if !ok {
			h.logger.Warn("stripe: missing metadata on checkout session (tenant_id/tier)")
			return nil
		}
		customerID, subscriptionID := "", ""
		if session.Customer != nil {
			customerID = session.Customer.ID
		}
		if session.Subscription != nil {
			subscriptionID = session.Subscription.ID
		}
		_ = h.repo.MarkCheckoutSessionCompleted(r.Context(), tx, session.ID, occurredAt, customerID, subscriptionID)
		if err := h.subSvc.ApplyActivated(r.Context(), tx, tenantID, tier, occurredAt, "stripe", customerID, subscriptionID, nil, nil); err != nil {
			http.Error(w, "failed to apply activation", http.StatusInternalServerError)
			return errWebhookApply
		}

	case "checkout.session.expired":
		var session stripe.CheckoutSession
		if err := json.Unmarshal(raw, &session); err != nil {
			h.logger.Error("stripe: invalid checkout session payload", "err", err)
			return nil
		}
		_ = h.repo.MarkCheckoutSessionExpired(r.Context(), tx, session.ID, occurredAt)

	case "customer.subscription.created", "customer.subscription.updated":
		var sub stripe.Subscription
		if err := json.Unmarshal(raw, &sub); err != nil {
			h.logger.Error("stripe: invalid subscription payload", "err", err)
			return nil
		}
		// Only active/trialing subscriptions grant entitlements.
		if sub.Status != stripe.SubscriptionStatusActive && sub.Status != stripe.SubscriptionStatusTrialing {
			return nil
		}
		tenantID, tier, ok := tenantMetadata(sub.Metadata)
		if !ok {
			h.logger.Warn("stripe: missing metadata on subscription (tenant_id/tier)")
			return nil
		}
		customerID := ""
		if sub.Customer != nil {
			customerID = sub.Customer.ID
		}
		cps := unixTimePtr(sub.CurrentPeriodStart)
		cpe := unixTimePtr(sub.CurrentPeriodEnd)
		if err := h.subSvc.ApplyActivated(r.Context(), tx, tenantID, tier, occurredAt, "stripe", customerID, sub.ID, cps, cpe); err != nil {
			http.Error(w, "failed to apply activation", http.StatusInternalServerError)
			return errWebhookApply
		}

	case "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(raw, &sub); err != nil {
			h.logger.Error("stripe: invalid subscription payload", "err", err)
			return nil
		}
		tenantID := strings.TrimSpace(sub.Metadata["tenant_id"])
		if tenantID == "" {
			h.logger.Warn("stripe: missing metadata on subscription (tenant_id)")
			return nil
		}
		customerID := ""
		if sub.Customer != nil {
			customerID = sub.Customer.ID
		}
		cps := unixTimePtr(sub.CurrentPeriodStart)
		cpe := unixTimePtr(sub.CurrentPeriodEnd)
		if err := h.subSvc.ApplyCanceled(r.Context(), tx, tenantID, occurredAt, "stripe", customerID, sub.ID, cps, cpe); err != nil {
			http.Error(w, "failed to apply cancellation", http.StatusInternalServerError)
			return errWebhookApply
		}
	}
	return nil
}

func tenantMetadata(md map[string]string) (tenantID, tier string, ok bool) {
	tenantID = strings.TrimSpace(md["tenant_id"])
	tier = strings.TrimSpace(strings.ToLower(md["tier"]))
	return tenantID, tier, tenantID != "" && tier != ""
}

func unixTimePtr(sec int64) *time.Time {
	if sec <= 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}
