package reminders

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/valet-hq/valet/internal/store"
)

func newTestStore(t *testing.T, now *time.Time, calls *[]string) *Store {
	t.Helper()
	cb := func(ctx context.Context, instruction string) error {
		if calls != nil {
			*calls = append(*calls, instruction)
		}
		return nil
	}
	return NewStore(store.NewMemory(), cb, Config{
		Now: func() time.Time { return *now },
	})
}

func TestScheduleMergesWithinWindow(t *testing.T) {
	now := time.Date(2026, 8, 24, 9, 0, 0, 0, time.UTC)
	var fired []string
	s := newTestStore(t, &now, &fired)

	id1, err := s.ScheduleWakeup("call the dentist", "asked this morning", "", 30*time.Minute)
	if err != nil {
		t.Fatalf("first schedule: %v", err)
	}
	id2, err := s.ScheduleWakeup("take out the trash", "", "", 45*time.Minute)
	if err != nil {
		t.Fatalf("second schedule: %v", err)
	}
	if id1 != id2 {
		t.Fatalf("reminders 15 minutes apart should merge: %s vs %s", id1, id2)
	}

	pending, err := s.PendingReminders()
	if err != nil {
		t.Fatalf("PendingReminders: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("want 1 pending reminder, got %d", len(pending))
	}
	if pending[0].MergeCount != 2 {
		t.Errorf("merge count = %d, want 2", pending[0].MergeCount)
	}
	if !strings.Contains(pending[0].Label, "2 tasks") {
		t.Errorf("label = %q, want combined label", pending[0].Label)
	}
	// The merged reminder keeps the earlier fire time.
	if want := now.Add(30 * time.Minute); !pending[0].FireAt.Equal(want) {
		t.Errorf("fire at %s, want %s", pending[0].FireAt, want)
	}

	// Advance past the merged fire time: both tasks arrive in one wake-up.
	now = now.Add(31 * time.Minute)
	if err := s.ProcessWakeups(context.Background()); err != nil {
		t.Fatalf("ProcessWakeups: %v", err)
	}
	if len(fired) != 1 {
		t.Fatalf("want one combined wake-up, got %d", len(fired))
	}
	if !strings.Contains(fired[0], "call the dentist") || !strings.Contains(fired[0], "take out the trash") {
		t.Errorf("instruction should list both tasks:\n%s", fired[0])
	}
}

func TestScheduleOutsideWindowStaysSeparate(t *testing.T) {
	now := time.Date(2026, 8, 24, 9, 0, 0, 0, time.UTC)
	s := newTestStore(t, &now, nil)

	id1, err := s.ScheduleWakeup("morning task", "", "", 30*time.Minute)
	if err != nil {
		t.Fatalf("first schedule: %v", err)
	}
	id2, err := s.ScheduleWakeup("afternoon task", "", "", 5*time.Hour)
	if err != nil {
		t.Fatalf("second schedule: %v", err)
	}
	if id1 == id2 {
		t.Fatal("reminders 4.5 hours apart must not merge")
	}

	pending, err := s.PendingReminders()
	if err != nil {
		t.Fatalf("PendingReminders: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("want 2 pending reminders, got %d", len(pending))
	}
}

func TestMergePullsFireTimeEarlier(t *testing.T) {
	now := time.Date(2026, 8, 24, 9, 0, 0, 0, time.UTC)
	s := newTestStore(t, &now, nil)

	if _, err := s.ScheduleWakeup("later task", "", "", 90*time.Minute); err != nil {
		t.Fatal(err)
	}
	if _, err := s.ScheduleWakeup("sooner task", "", "", 20*time.Minute); err != nil {
		t.Fatal(err)
	}

	pending, err := s.PendingReminders()
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 {
		t.Fatalf("want 1 merged reminder, got %d", len(pending))
	}
	if want := now.Add(20 * time.Minute); !pending[0].FireAt.Equal(want) {
		t.Errorf("fire at %s, want the earlier time %s", pending[0].FireAt, want)
	}
}

func TestProcessWakeupsFiresAtMostOnce(t *testing.T) {
	now := time.Date(2026, 8, 24, 9, 0, 0, 0, time.UTC)
	calls := 0
	cb := func(ctx context.Context, instruction string) error {
		calls++
		return fmt.Errorf("delivery failed")
	}
	s := NewStore(store.NewMemory(), cb, Config{Now: func() time.Time { return now }})

	if _, err := s.ScheduleWakeup("fragile task", "", "", 10*time.Minute); err != nil {
		t.Fatal(err)
	}

	now = now.Add(11 * time.Minute)
	if err := s.ProcessWakeups(context.Background()); err != nil {
		t.Fatalf("ProcessWakeups: %v", err)
	}
	if calls != 1 {
		t.Fatalf("callback calls = %d, want 1", calls)
	}

	// A second sweep must not retry the failed delivery.
	if err := s.ProcessWakeups(context.Background()); err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if calls != 1 {
		t.Errorf("reminder fired again after callback failure, calls = %d", calls)
	}

	pending, err := s.PendingReminders()
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 0 {
		t.Errorf("fired reminder still pending")
	}
}

func TestCorruptRecordDiscardedWithoutFiring(t *testing.T) {
	now := time.Date(2026, 8, 24, 9, 0, 0, 0, time.UTC)
	var fired []string
	db := store.NewMemory()
	s := NewStore(db, func(ctx context.Context, instruction string) error {
		fired = append(fired, instruction)
		return nil
	}, Config{Now: func() time.Time { return now }})

	if err := db.Set(recordPrefix+"bad", "{not json"); err != nil {
		t.Fatal(err)
	}
	if err := db.SortedInsert(indexSet, float64(now.Add(-time.Minute).UnixMilli()), "bad"); err != nil {
		t.Fatal(err)
	}

	if err := s.ProcessWakeups(context.Background()); err != nil {
		t.Fatalf("ProcessWakeups: %v", err)
	}
	if len(fired) != 0 {
		t.Errorf("corrupt reminder must not fire")
	}

	// The entry is gone, not stuck.
	if _, ok, _ := db.Get(recordPrefix + "bad"); ok {
		t.Errorf("corrupt record should be discarded")
	}
}

func TestLoadToleratesDoubleEncodedRecord(t *testing.T) {
	now := time.Date(2026, 8, 24, 9, 0, 0, 0, time.UTC)
	db := store.NewMemory()
	var fired []string
	s := NewStore(db, func(ctx context.Context, instruction string) error {
		fired = append(fired, instruction)
		return nil
	}, Config{Now: func() time.Time { return now }})

	inner := fmt.Sprintf(`{"id":"r1","task":"double wrapped","context":"","original_time":%q,"wakeup_time":%q,"merged_tasks":[{"task":"double wrapped","context":"","time":%q,"scheduled_for":%q}]}`,
		now.Format(time.RFC3339), now.Format(time.RFC3339), now.Format(time.RFC3339), now.Format(time.RFC3339))
	wrapped, err := json.Marshal(inner)
	if err != nil {
		t.Fatal(err)
	}
	if err := db.Set(recordPrefix+"r1", string(wrapped)); err != nil {
		t.Fatal(err)
	}
	if err := db.SortedInsert(indexSet, float64(now.Add(-time.Minute).UnixMilli()), "r1"); err != nil {
		t.Fatal(err)
	}

	if err := s.ProcessWakeups(context.Background()); err != nil {
		t.Fatalf("ProcessWakeups: %v", err)
	}
	if len(fired) != 1 || !strings.Contains(fired[0], "double wrapped") {
		t.Errorf("double-encoded record should fire, got %v", fired)
	}
}

func TestCancelReminder(t *testing.T) {
	now := time.Date(2026, 8, 24, 9, 0, 0, 0, time.UTC)
	s := newTestStore(t, &now, nil)

	id, err := s.ScheduleWakeup("cancel me", "", "", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.CancelReminder(id); err != nil {
		t.Fatalf("CancelReminder: %v", err)
	}
	pending, err := s.PendingReminders()
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 0 {
		t.Errorf("cancelled reminder still pending")
	}

	// Idempotent.
	if err := s.CancelReminder(id); err != nil {
		t.Errorf("cancelling an absent id should not fail: %v", err)
	}
}

func TestPendingRemindersHumanizedTime(t *testing.T) {
	now := time.Date(2026, 8, 24, 9, 0, 0, 0, time.UTC)
	s := newTestStore(t, &now, nil)

	if _, err := s.ScheduleWakeup("soon", "", "", 15*time.Minute); err != nil {
		t.Fatal(err)
	}
	pending, err := s.PendingReminders()
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 {
		t.Fatalf("want 1 pending, got %d", len(pending))
	}
	if pending[0].TimeUntil != "15 minutes" {
		t.Errorf("TimeUntil = %q, want %q", pending[0].TimeUntil, "15 minutes")
	}
}

func TestHumanizeUntil(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{time.Minute, "1 minute"},
		{15 * time.Minute, "15 minutes"},
		{time.Hour, "1 hour"},
		{2*time.Hour + 5*time.Minute, "2 hours 5 minutes"},
		{-time.Minute, "0 minutes"},
	}
	for _, tt := range tests {
		if got := humanizeUntil(tt.d); got != tt.want {
			t.Errorf("humanizeUntil(%s) = %q, want %q", tt.d, got, tt.want)
		}
	}
}
