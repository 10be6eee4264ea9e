package reminders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/o-castellano/botdesk/services/housekeeping-service/internal/model"
)

type fakeStore struct {
	mu       sync.Mutex
	due      map[int][]model.Appointment
	claims   map[string]bool
	released []string
	dueErr   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		due:    map[int][]model.Appointment{},
		claims: map[string]bool{},
	}
}

func dispatchKey(id string, lead int) string {
	return fmt.Sprintf("%s/%d", id, lead)
}

func (f *fakeStore) DueInWindow(_ context.Context, _, _ time.Time, leadMinutes int) ([]model.Appointment, error) {
	if f.dueErr != nil {
		return nil, f.dueErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.due[leadMinutes], nil
}

func (f *fakeStore) ClaimDispatch(_ context.Context, appointmentID string, leadMinutes int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := dispatchKey(appointmentID, leadMinutes)
	if f.claims[key] {
		return false, nil
	}
	f.claims[key] = true
	return true, nil
}

func (f *fakeStore) ReleaseDispatch(_ context.Context, appointmentID string, leadMinutes int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := dispatchKey(appointmentID, leadMinutes)
	delete(f.claims, key)
	f.released = append(f.released, key)
	return nil
}

type fakeSender struct {
	mu     sync.Mutex
	sent   []string
	failTo string
}

func (f *fakeSender) ProviderID() string { return "sms-fake" }

func (f *fakeSender) Send(_ context.Context, to string, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if to == f.failTo {
		return errors.New("carrier rejected")
	}
	f.sent = append(f.sent, to)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&strings.Builder{}, nil))
}

func appt(id, phone string, start time.Time) model.Appointment {
	return model.Appointment{
		ID:            id,
		TenantID:      "t1",
		AgentID:       "a1",
		CustomerName:  "Pat",
		CustomerPhone: phone,
		StartTime:     start,
		Status:        model.StatusConfirmed,
	}
}

func TestWindowForBoundaries(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	from, to := windowFor(now, 24*time.Hour, 5*time.Minute)

	if want := now.Add(24*time.Hour - 5*time.Minute); !from.Equal(want) {
		t.Fatalf("from = %v, want %v", from, want)
	}
	if want := now.Add(24 * time.Hour); !to.Equal(want) {
		t.Fatalf("to = %v, want %v", to, want)
	}

	inWindow := func(ts time.Time) bool {
		return !ts.Before(from) && ts.Before(to)
	}

	// An appointment 24h03m out misses this run.
	start := now.Add(24*time.Hour + 3*time.Minute)
	if inWindow(start) {
		t.Fatalf("expected %v outside [%v, %v)", start, from, to)
	}

	// The next run, one polling interval later, covers it.
	from, to = windowFor(now.Add(5*time.Minute), 24*time.Hour, 5*time.Minute)
	if !inWindow(start) {
		t.Fatalf("expected %v inside [%v, %v)", start, from, to)
	}

	// Consecutive windows tile without gap or overlap.
	if prevTo := now.Add(24 * time.Hour); !from.Equal(prevTo) {
		t.Fatalf("windows do not tile: next from %v, previous to %v", from, prevTo)
	}
}

func TestRunSendsOncePerLead(t *testing.T) {
	store := newFakeStore()
	start := time.Now().Add(24 * time.Hour)
	store.due[1440] = []model.Appointment{appt("ap1", "+15550001", start)}

	sender := &fakeSender{}
	sched := NewScheduler(store, sender, nil, testLogger(), Config{
		LeadTimes: []time.Duration{24 * time.Hour, time.Hour},
		Tolerance: 5 * time.Minute,
	})

	if err := sched.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(sender.sent) != 1 || sender.sent[0] != "+15550001" {
		t.Fatalf("sent = %v, want one message to +15550001", sender.sent)
	}

	// Second overlapping run claims nothing and sends nothing.
	if err := sched.Run(context.Background()); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("after rerun sent = %v, want still 1", sender.sent)
	}
}

func TestRunReleasesClaimOnSendFailure(t *testing.T) {
	store := newFakeStore()
	start := time.Now().Add(time.Hour)
	store.due[60] = []model.Appointment{
		appt("ap-bad", "+15559999", start),
		appt("ap-good", "+15550002", start),
	}

	sender := &fakeSender{failTo: "+15559999"}
	sched := NewScheduler(store, sender, nil, testLogger(), Config{
		LeadTimes: []time.Duration{time.Hour},
		Tolerance: 5 * time.Minute,
	})

	err := sched.Run(context.Background())
	if err == nil {
		t.Fatal("expected error from failed send")
	}
	if !strings.Contains(err.Error(), "ap-bad") {
		t.Fatalf("error %q does not name failing appointment", err)
	}

	// The failure did not stop the healthy appointment.
	if len(sender.sent) != 1 || sender.sent[0] != "+15550002" {
		t.Fatalf("sent = %v, want just +15550002", sender.sent)
	}
	// The claim was released so a retry run can send again.
	if len(store.released) != 1 {
		t.Fatalf("released = %v, want one release", store.released)
	}
	sender.failTo = ""
	if err := sched.Run(context.Background()); err != nil {
		t.Fatalf("retry run: %v", err)
	}
	if len(sender.sent) != 2 {
		t.Fatalf("after retry sent = %v, want 2", sender.sent)
	}
}

func TestRunAccumulatesQueryErrors(t *testing.T) {
	store := newFakeStore()
	store.dueErr = errors.New("db down")

	sched := NewScheduler(store, &fakeSender{}, nil, testLogger(), Config{
		LeadTimes: []time.Duration{24 * time.Hour, time.Hour},
		Tolerance: 5 * time.Minute,
	})

	err := sched.Run(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	// Both lead times failed and both failures surface.
	if got := strings.Count(err.Error(), "db down"); got != 2 {
		t.Fatalf("joined error %q, want both lead failures", err)
	}
}
