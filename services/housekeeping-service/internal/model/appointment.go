package model

import "time"

const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusCancelled = "cancelled"
	StatusCompleted = "completed"
)

// Appointment is the housekeeping view of a booked meeting. Appointments are
// created by the booking flows; the housekeeping jobs only read them and
// conditionally move pending ones to cancelled.
type Appointment struct {
	ID            string
	TenantID      string
	AgentID       string
	CustomerName  string
	CustomerPhone string
	CustomerEmail string
	StartTime     time.Time
	Status        string
	CancelledAt   *time.Time
	CancelReason  string
	CreatedAt     time.Time
}
