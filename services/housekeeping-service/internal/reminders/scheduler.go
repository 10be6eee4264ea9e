package reminders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/o-castellano/botdesk/services/housekeeping-service/internal/model"
	"github.com/o-castellano/botdesk/services/housekeeping-service/internal/sms"
)

// Store is the persistence surface the scheduler needs. ClaimDispatch must
// be atomic (unique insert) so overlapping runs can never both claim the
// same (appointment, lead) pair.
type Store interface {
	DueInWindow(ctx context.Context, from, to time.Time, leadMinutes int) ([]model.Appointment, error)
	ClaimDispatch(ctx context.Context, appointmentID string, leadMinutes int) (bool, error)
	ReleaseDispatch(ctx context.Context, appointmentID string, leadMinutes int) error
}

// EventSink records a successful dispatch for downstream consumers.
type EventSink interface {
	ReminderSent(ctx context.Context, appt model.Appointment, lead time.Duration) error
}

type Config struct {
	// LeadTimes are the offsets before an appointment's start at which a
	// reminder fires, e.g. 24h and 1h.
	LeadTimes []time.Duration
	// Tolerance should equal the external scheduler's polling interval so
	// consecutive runs cover the timeline without gaps.
	Tolerance time.Duration
}

type Scheduler struct {
	store  Store
	sender sms.Sender
	events EventSink
	logger *slog.Logger
	cfg    Config
}

func NewScheduler(store Store, sender sms.Sender, events EventSink, logger *slog.Logger, cfg Config) *Scheduler {
	if len(cfg.LeadTimes) == 0 {
		cfg.LeadTimes = []time.Duration{24 * time.Hour, time.Hour}
	}
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = 5 * time.Minute
	}
	return &Scheduler{
		store:  store,
		sender: sender,
		events: events,
		logger: logger,
		cfg:    cfg,
	}
}

// Run processes every configured lead time once. Per-appointment failures
// are accumulated and returned together; they never abort the batch.
//
// Ordering is claim-then-send: the dispatch record is inserted before the
// SMS leaves, and released again if the send fails. A crash between claim
// and send therefore costs at worst a missed reminder, never a duplicate.
func (s *Scheduler) Run(ctx context.Context) error {
	now := time.Now().UTC()
	var failures []error

	for _, lead := range s.cfg.LeadTimes {
		from, to := windowFor(now, lead, s.cfg.Tolerance)
		leadMinutes := int(lead / time.Minute)

		appts, err := s.store.DueInWindow(ctx, from, to, leadMinutes)
		if err != nil {
			failures = append(failures, fmt.Errorf("query lead %dm: %w", leadMinutes, err))
			continue
		}

		for _, appt := range appts {
			if err := s.dispatch(ctx, appt, lead, leadMinutes); err != nil {
				failures = append(failures, err)
			}
		}
	}

	return errors.Join(failures...)
}

func (s *Scheduler) dispatch(ctx context.Context, appt model.Appointment, lead time.Duration, leadMinutes int) error {
	claimed, err := s.store.ClaimDispatch(ctx, appt.ID, leadMinutes)
	if err != nil {
		return fmt.Errorf("claim dispatch for %s: %w", appt.ID, err)
	}
	if !claimed {
		// Another run already handled this pair.
		return nil
	}

	if err := s.sender.Send(ctx, appt.CustomerPhone, reminderBody(appt, lead)); err != nil {
		if relErr := s.store.ReleaseDispatch(ctx, appt.ID, leadMinutes); relErr != nil {
			s.logger.Error("dispatch claim stuck after failed send",
				"appointment_id", appt.ID, "lead_minutes", leadMinutes, "err", relErr)
		}
		return fmt.Errorf("send reminder for %s: %w", appt.ID, err)
	}

	s.logger.Info("reminder sent",
		"appointment_id", appt.ID,
		"tenant_id", appt.TenantID,
		"lead_minutes", leadMinutes,
		"provider", s.sender.ProviderID(),
	)

	if s.events != nil {
		if err := s.events.ReminderSent(ctx, appt, lead); err != nil {
			// The SMS is out; losing the event is observable but not worth
			// failing the batch over.
			s.logger.Error("reminder event write failed", "appointment_id", appt.ID, "err", err)
		}
	}
	return nil
}

// windowFor returns the half-open window [now+lead-tol, now+lead). With
// tolerance equal to the polling interval, consecutive runs tile the
// timeline exactly: an appointment just past now+lead is skipped this run
// and picked up by the next one.
func windowFor(now time.Time, lead, tolerance time.Duration) (time.Time, time.Time) {
	target := now.Add(lead)
	return target.Add(-tolerance), target
}

func reminderBody(appt model.Appointment, lead time.Duration) string {
	when := appt.StartTime.UTC().Format("Mon Jan 2 15:04 MST")
	if lead >= 24*time.Hour {
		return fmt.Sprintf("Reminder: %s, you have an appointment on %s. Reply or call to reschedule.", appt.CustomerName, when)
	}
	return fmt.Sprintf("Reminder: %s, your appointment starts at %s.", appt.CustomerName, when)
}
