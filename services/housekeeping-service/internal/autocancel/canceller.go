package autocancel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/o-castellano/botdesk/services/housekeeping-service/internal/email"
	"github.com/o-castellano/botdesk/services/housekeeping-service/internal/model"
)

// Policy modes. ConfirmWindow cancels pending appointments whose start is
// closer than Window; BookingGrace cancels pending appointments created more
// than Window ago regardless of start time.
const (
	ModeConfirmWindow = "confirm-window"
	ModeBookingGrace  = "booking-grace"
)

const CancelReasonUnconfirmed = "auto-cancelled: not confirmed in time"

type Policy struct {
	Mode   string
	Window time.Duration
}

func (p Policy) validate() error {
	switch p.Mode {
	case ModeConfirmWindow, ModeBookingGrace:
	default:
		return fmt.Errorf("unknown autocancel mode %q", p.Mode)
	}
	if p.Window <= 0 {
		return fmt.Errorf("autocancel window must be positive, got %v", p.Window)
	}
	return nil
}

// Store abstracts appointment persistence. CancelIfPending is a conditional
// update: it returns false when the row was no longer pending, which the
// canceller treats as losing the race to a manual action, not an error.
type Store interface {
	ExpiredPending(ctx context.Context, policy Policy, now time.Time) ([]model.Appointment, error)
	CancelIfPending(ctx context.Context, appointmentID string, reason string) (bool, error)
}

type Canceller struct {
	store  Store
	mailer email.Sender
	logger *slog.Logger
	policy Policy
}

func NewCanceller(store Store, mailer email.Sender, logger *slog.Logger, policy Policy) (*Canceller, error) {
	if err := policy.validate(); err != nil {
		return nil, err
	}
	return &Canceller{
		store:  store,
		mailer: mailer,
		logger: logger,
		policy: policy,
	}, nil
}

// Run cancels every pending appointment the policy has expired. Individual
// failures are accumulated; a skipped row (lost race) is not a failure.
func (c *Canceller) Run(ctx context.Context) error {
	now := time.Now().UTC()

	appts, err := c.store.ExpiredPending(ctx, c.policy, now)
	if err != nil {
		return fmt.Errorf("query expired pending: %w", err)
	}

	var failures []error
	for _, appt := range appts {
		cancelled, err := c.store.CancelIfPending(ctx, appt.ID, CancelReasonUnconfirmed)
		if err != nil {
			failures = append(failures, fmt.Errorf("cancel %s: %w", appt.ID, err))
			continue
		}
		if !cancelled {
			// Confirmed or cancelled by someone else between query and update.
			continue
		}

		c.logger.Info("appointment auto-cancelled",
			"appointment_id", appt.ID,
			"tenant_id", appt.TenantID,
			"mode", c.policy.Mode,
		)
		c.notify(appt)
	}

	return errors.Join(failures...)
}

// notify is best-effort: the cancellation is already durable, a lost email
// only dims visibility.
func (c *Canceller) notify(appt model.Appointment) {
	if c.mailer == nil || appt.CustomerEmail == "" {
		return
	}
	subject := "Your appointment was cancelled"
	body := fmt.Sprintf(
		"Hi %s,\n\nYour appointment on %s was cancelled because it was not confirmed in time.\nPlease book again if you still need it.\n",
		appt.CustomerName,
		appt.StartTime.UTC().Format("Mon Jan 2 15:04 MST"),
	)
	if err := c.mailer.Send(appt.CustomerEmail, subject, body); err != nil {
		c.logger.Error("cancel notification failed", "appointment_id", appt.ID, "err", err)
	}
}
