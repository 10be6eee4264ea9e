package metrics

import (
	"context"
	"time"

	"github.com/o-castellano/botdesk/libs/db"
)

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

// RecordReminderSent stores the raw fact and bumps the tenant's daily
// rollup in one transaction.
func (r *Repository) RecordReminderSent(ctx context.Context, appointmentID, tenantID, agentID string, leadMinutes int, sentAt time.Time) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
		INSERT INTO reminder_metrics (appointment_id, tenant_id, agent_id, lead_minutes, sent_at)
		VALUES ($1, $2, $3, $4, $5)
	`, appointmentID, tenantID, agentID, leadMinutes, sentAt); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO tenant_usage_daily (tenant_id, day, reminders_sent, auto_cancellations)
		VALUES ($1, $2::date, 1, 0)
		ON CONFLICT (tenant_id, day)
		DO UPDATE SET reminders_sent = tenant_usage_daily.reminders_sent + 1,
		              updated_at = now()
	`, tenantID, sentAt.UTC()); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *Repository) RecordAutoCancellation(ctx context.Context, appointmentID, tenantID, agentID, reason string, cancelledAt time.Time) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
		INSERT INTO cancellation_metrics (appointment_id, tenant_id, agent_id, reason, cancelled_at)
		VALUES ($1, $2, $3, $4, $5)
	`, appointmentID, tenantID, agentID, reason, cancelledAt); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO tenant_usage_daily (tenant_id, day, reminders_sent, auto_cancellations)
		VALUES ($1, $2::date, 0, 1)
		ON CONFLICT (tenant_id, day)
		DO UPDATE SET auto_cancellations = tenant_usage_daily.auto_cancellations + 1,
		              updated_at = now()
	`, tenantID, cancelledAt.UTC()); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

type DailyUsage struct {
	Day               string `json:"day"`
	RemindersSent     int    `json:"reminders_sent"`
	AutoCancellations int    `json:"auto_cancellations"`
}

func (r *Repository) Usage(ctx context.Context, tenantID string, days int) ([]DailyUsage, error) {
	if days <= 0 || days > 90 {
		days = 30
	}
	rows, err := r.pool.Query(ctx, `
		SELECT day::text, reminders_sent, auto_cancellations
		FROM tenant_usage_daily
		WHERE tenant_id = $1 AND day >= (current_date - $2::int)
		ORDER BY day DESC
	`, tenantID, days)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DailyUsage
	for rows.Next() {
		var u DailyUsage
		if err := rows.Scan(&u.Day, &u.RemindersSent, &u.AutoCancellations); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}
