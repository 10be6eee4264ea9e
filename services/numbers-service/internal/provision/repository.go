package provision

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/o-castellano/botdesk/libs/db"
)

// Record is a number a tenant has provisioned.
type Record struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"tenant_id"`
	PhoneNumber string    `json:"phone_number"`
	Country     string    `json:"country"`
	MonthlyCost float64   `json:"monthly_cost"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

var ErrNumberTaken = fmt.Errorf("phone number already provisioned")

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Create(ctx context.Context, tenantID, phoneNumber, country string, monthlyCost float64) (Record, error) {
	rec := Record{
		ID:          uuid.NewString(),
		TenantID:    tenantID,
		PhoneNumber: phoneNumber,
		Country:     country,
		MonthlyCost: monthlyCost,
		Status:      "active",
	}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO provisioned_numbers (id, tenant_id, phone_number, country, monthly_cost, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, rec.ID, rec.TenantID, rec.PhoneNumber, rec.Country, rec.MonthlyCost, rec.Status).Scan(&rec.CreatedAt)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Record{}, ErrNumberTaken
		}
		return Record{}, err
	}
	return rec, nil
}

func (r *Repository) ListByTenant(ctx context.Context, tenantID string) ([]Record, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, tenant_id, phone_number, country, monthly_cost, status, created_at
		FROM provisioned_numbers
		WHERE tenant_id = $1
		ORDER BY created_at DESC
	`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.TenantID, &rec.PhoneNumber, &rec.Country,
			&rec.MonthlyCost, &rec.Status, &rec.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return records, nil
}

// Release marks a number released only while it is still active.
func (r *Repository) Release(ctx context.Context, tenantID, id string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE provisioned_numbers
		SET status = 'released'
		WHERE id = $1 AND tenant_id = $2 AND status = 'active'
	`, id, tenantID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
