package autocancel

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/o-castellano/botdesk/libs/db"
	"github.com/o-castellano/botdesk/libs/outbox"
	"github.com/o-castellano/botdesk/services/housekeeping-service/internal/model"
)

type Repository struct {
	pool       *db.Pool
	outboxRepo *outbox.Repository
}

func NewRepository(pool *db.Pool, outboxRepo *outbox.Repository) *Repository {
	return &Repository{pool: pool, outboxRepo: outboxRepo}
}

func (r *Repository) ExpiredPending(ctx context.Context, policy Policy, now time.Time) ([]model.Appointment, error) {
	var predicate string
	var cutoff time.Time
	switch policy.Mode {
	case ModeConfirmWindow:
		// Pending and starting sooner than the confirmation window allows.
		predicate = "a.start_time <= $1"
		cutoff = now.Add(policy.Window)
	case ModeBookingGrace:
		// Pending and booked longer ago than the grace period.
		predicate = "a.created_at <= $1"
		cutoff = now.Add(-policy.Window)
	default:
		return nil, fmt.Errorf("unknown autocancel mode %q", policy.Mode)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT a.id, a.tenant_id, a.agent_id, a.customer_name, a.customer_phone,
			COALESCE(a.customer_email, ''), a.start_time, a.status, a.created_at
		FROM appointments a
		WHERE a.status = 'pending' AND `+predicate+`
		ORDER BY a.start_time
		LIMIT 500
	`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var appts []model.Appointment
	for rows.Next() {
		var a model.Appointment
		if err := rows.Scan(
			&a.ID,
			&a.TenantID,
			&a.AgentID,
			&a.CustomerName,
			&a.CustomerPhone,
			&a.CustomerEmail,
			&a.StartTime,
			&a.Status,
			&a.CreatedAt,
		); err != nil {
			return nil, err
		}
		appts = append(appts, a)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return appts, nil
}

// CancelIfPending flips the row to cancelled only if it is still pending,
// and records the outbox event in the same transaction. A zero rows-affected
// result means a concurrent confirm/cancel won and is reported as false.
func (r *Repository) CancelIfPending(ctx context.Context, appointmentID string, reason string) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var tenantID, agentID string
	err = tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = 'cancelled', cancelled_at = now(), cancel_reason = $2
		WHERE id = $1 AND status = 'pending'
		RETURNING tenant_id, agent_id
	`, appointmentID, reason).Scan(&tenantID, &agentID)
	if err != nil {
		if db.IsNoRows(err) {
			return false, nil
		}
		return false, err
	}

	payload, err := json.Marshal(map[string]any{
		"appointment_id": appointmentID,
		"tenant_id":      tenantID,
		"agent_id":       agentID,
		"reason":         reason,
		"cancelled_at":   time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return false, err
	}
	if err := r.outboxRepo.Insert(ctx, tx, outbox.Event{
		AggregateType: "appointment",
		AggregateID:   appointmentID,
		EventType:     "appointment.autocancelled.v1",
		Payload:       payload,
	}); err != nil {
		return false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}
