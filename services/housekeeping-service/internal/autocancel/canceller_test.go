package autocancel

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/o-castellano/botdesk/services/housekeeping-service/internal/model"
)

type fakeStore struct {
	expired   []model.Appointment
	cancelled []string
	skip      map[string]bool
	cancelErr map[string]error
}

func (f *fakeStore) ExpiredPending(_ context.Context, _ Policy, _ time.Time) ([]model.Appointment, error) {
	return f.expired, nil
}

func (f *fakeStore) CancelIfPending(_ context.Context, id string, _ string) (bool, error) {
	if err := f.cancelErr[id]; err != nil {
		return false, err
	}
	if f.skip[id] {
		return false, nil
	}
	f.cancelled = append(f.cancelled, id)
	return true, nil
}

type fakeMailer struct {
	sent []string
	err  error
}

func (f *fakeMailer) Send(to string, _ string, _ string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, to)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&strings.Builder{}, nil))
}

func pending(id, email string) model.Appointment {
	return model.Appointment{
		ID:            id,
		TenantID:      "t1",
		AgentID:       "a1",
		CustomerName:  "Sam",
		CustomerEmail: email,
		StartTime:     time.Now().Add(30 * time.Minute),
		Status:        model.StatusPending,
	}
}

func TestPolicyValidation(t *testing.T) {
	if _, err := NewCanceller(&fakeStore{}, nil, testLogger(), Policy{Mode: "whenever", Window: time.Hour}); err == nil {
		t.Fatal("expected error for unknown mode")
	}
	if _, err := NewCanceller(&fakeStore{}, nil, testLogger(), Policy{Mode: ModeConfirmWindow, Window: 0}); err == nil {
		t.Fatal("expected error for zero window")
	}
	if _, err := NewCanceller(&fakeStore{}, nil, testLogger(), Policy{Mode: ModeBookingGrace, Window: 24 * time.Hour}); err != nil {
		t.Fatalf("valid policy rejected: %v", err)
	}
}

func TestRunCancelsAndNotifies(t *testing.T) {
	store := &fakeStore{
		expired: []model.Appointment{pending("ap1", "sam@example.com"), pending("ap2", "")},
	}
	mailer := &fakeMailer{}
	c, err := NewCanceller(store, mailer, testLogger(), Policy{Mode: ModeConfirmWindow, Window: time.Hour})
	if err != nil {
		t.Fatalf("new canceller: %v", err)
	}

	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(store.cancelled) != 2 {
		t.Fatalf("cancelled = %v, want both", store.cancelled)
	}
	// Only the appointment with an email address gets mail.
	if len(mailer.sent) != 1 || mailer.sent[0] != "sam@example.com" {
		t.Fatalf("mailed = %v, want just sam@example.com", mailer.sent)
	}
}

func TestRunSkipsLostRaceSilently(t *testing.T) {
	store := &fakeStore{
		expired: []model.Appointment{pending("ap1", "sam@example.com")},
		skip:    map[string]bool{"ap1": true},
	}
	mailer := &fakeMailer{}
	c, err := NewCanceller(store, mailer, testLogger(), Policy{Mode: ModeConfirmWindow, Window: time.Hour})
	if err != nil {
		t.Fatalf("new canceller: %v", err)
	}

	// Row confirmed by a human between query and update: no error, no mail.
	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(store.cancelled) != 0 {
		t.Fatalf("cancelled = %v, want none", store.cancelled)
	}
	if len(mailer.sent) != 0 {
		t.Fatalf("mailed = %v, want none", mailer.sent)
	}
}

func TestRunAccumulatesFailuresAndContinues(t *testing.T) {
	store := &fakeStore{
		expired: []model.Appointment{pending("ap1", ""), pending("ap2", "")},
		cancelErr: map[string]error{
			"ap1": errors.New("deadlock"),
		},
	}
	c, err := NewCanceller(store, nil, testLogger(), Policy{Mode: ModeBookingGrace, Window: time.Hour})
	if err != nil {
		t.Fatalf("new canceller: %v", err)
	}

	runErr := c.Run(context.Background())
	if runErr == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(runErr.Error(), "ap1") {
		t.Fatalf("error %q does not name failing row", runErr)
	}
	if len(store.cancelled) != 1 || store.cancelled[0] != "ap2" {
		t.Fatalf("cancelled = %v, want ap2 despite ap1 failing", store.cancelled)
	}
}

func TestNotifyFailureDoesNotFailRun(t *testing.T) {
	store := &fakeStore{
		expired: []model.Appointment{pending("ap1", "sam@example.com")},
	}
	mailer := &fakeMailer{err: errors.New("smtp refused")}
	c, err := NewCanceller(store, mailer, testLogger(), Policy{Mode: ModeConfirmWindow, Window: time.Hour})
	if err != nil {
		t.Fatalf("new canceller: %v", err)
	}

	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("run should tolerate mail failure, got: %v", err)
	}
	if len(store.cancelled) != 1 {
		t.Fatalf("cancelled = %v, want ap1", store.cancelled)
	}
}
