package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/o-castellano/botdesk/libs/db"
	"github.com/o-castellano/botdesk/libs/outbox"
	"github.com/o-castellano/botdesk/services/dashboard-service/internal/model"
)

type AppointmentRepository struct {
	pool       *db.Pool
	outboxRepo *outbox.Repository
}

func NewAppointmentRepository(pool *db.Pool, outboxRepo *outbox.Repository) *AppointmentRepository {
	return &AppointmentRepository{pool: pool, outboxRepo: outboxRepo}
}

func (r *AppointmentRepository) ListByTenant(ctx context.Context, tenantID string, limit int) ([]model.Appointment, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, tenant_id, agent_id, customer_name, customer_phone,
			COALESCE(customer_email, ''), start_time, status, cancelled_at,
			COALESCE(cancel_reason, ''), created_at
		FROM appointments
		WHERE tenant_id = $1
		ORDER BY start_time DESC
		LIMIT $2
	`, tenantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var appts []model.Appointment
	for rows.Next() {
		var a model.Appointment
		if err := rows.Scan(&a.ID, &a.TenantID, &a.AgentID, &a.CustomerName, &a.CustomerPhone,
			&a.CustomerEmail, &a.StartTime, &a.Status, &a.CancelledAt, &a.CancelReason, &a.CreatedAt); err != nil {
			return nil, err
		}
		appts = append(appts, a)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return appts, nil
}

// Confirm moves pending → confirmed. False means the appointment was not in
// pending state (already confirmed, cancelled, or missing).
func (r *AppointmentRepository) Confirm(ctx context.Context, tenantID, id string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE appointments
		SET status = 'confirmed'
		WHERE id = $1 AND tenant_id = $2 AND status = 'pending'
	`, id, tenantID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// Cancel moves pending|confirmed → cancelled and writes the outbox event in
// the same transaction.
func (r *AppointmentRepository) Cancel(ctx context.Context, tenantID, id, reason string) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var agentID string
	err = tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = 'cancelled', cancelled_at = now(), cancel_reason = $3
		WHERE id = $1 AND tenant_id = $2 AND status IN ('pending', 'confirmed')
		RETURNING agent_id
	`, id, tenantID, reason).Scan(&agentID)
	if err != nil {
		if db.IsNoRows(err) {
			return false, nil
		}
		return false, err
	}

	payload, err := json.Marshal(map[string]any{
		"appointment_id": id,
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
		AggregateID:   id,
		EventType:     "appointment.cancelled.v1",
		Payload:       payload,
	}); err != nil {
		return false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}
