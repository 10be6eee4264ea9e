package reminders

import (
	"context"
	"encoding/json"
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

// DueInWindow returns pending/confirmed appointments starting inside
// [from, to) that have no dispatch record for this lead time yet.
func (r *Repository) DueInWindow(ctx context.Context, from, to time.Time, leadMinutes int) ([]model.Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT a.id, a.tenant_id, a.agent_id, a.customer_name, a.customer_phone,
			COALESCE(a.customer_email, ''), a.start_time, a.status, a.created_at
		FROM appointments a
		WHERE a.status IN ('pending', 'confirmed')
			AND a.start_time >= $1
			AND a.start_time < $2
			AND NOT EXISTS (
				SELECT 1 FROM reminder_dispatches d
				WHERE d.appointment_id = a.id AND d.lead_minutes = $3
			)
		ORDER BY a.start_time
	`, from, to, leadMinutes)
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

// ClaimDispatch inserts the dispatch record for (appointment, lead). The
// unique constraint makes this the idempotence point: false means some run
// already owns the pair.
func (r *Repository) ClaimDispatch(ctx context.Context, appointmentID string, leadMinutes int) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO reminder_dispatches (appointment_id, lead_minutes)
		VALUES ($1, $2)
		ON CONFLICT (appointment_id, lead_minutes) DO NOTHING
	`, appointmentID, leadMinutes)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *Repository) ReleaseDispatch(ctx context.Context, appointmentID string, leadMinutes int) error {
	_, err := r.pool.Exec(ctx, `
		DELETE FROM reminder_dispatches
		WHERE appointment_id = $1 AND lead_minutes = $2
	`, appointmentID, leadMinutes)
	return err
}

func (r *Repository) ReminderSent(ctx context.Context, appt model.Appointment, lead time.Duration) error {
	payload, err := json.Marshal(map[string]any{
		"appointment_id": appt.ID,
		"tenant_id":      appt.TenantID,
		"agent_id":       appt.AgentID,
		"lead_minutes":   int(lead / time.Minute),
		"sent_at":        time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := r.outboxRepo.Insert(ctx, tx, outbox.Event{
		AggregateType: "appointment",
		AggregateID:   appt.ID,
		EventType:     "reminder.sent.v1",
		Payload:       payload,
	}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
