// Package reminders schedules self-addressed follow-ups, merging temporally
// close reminders into one consolidated wake-up. Naive one-reminder-per-
// request scheduling turns several small follow-ups landing in the same
// evening into notification spam; merging trades fire-time precision (pulled
// earlier, never later) for a single interruption.
package reminders

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/valet-hq/valet/internal/logging"
	"github.com/valet-hq/valet/internal/store"
)

const (
	// indexSet is the sorted set mapping fire-time (ms since epoch) to
	// reminder id.
	indexSet = "reminders:index"

	recordPrefix = "reminder:"

	// DefaultMergeWindow is the time radius within which two independently
	// scheduled reminders are combined.
	DefaultMergeWindow = 2 * time.Hour
)

// MergedTask is one task folded into a reminder.
type MergedTask struct {
	Task         string    `json:"task"`
	Context      string    `json:"context"`
	Time         time.Time `json:"time"`          // when it was scheduled
	ScheduledFor time.Time `json:"scheduled_for"` // when it asked to fire
}

// Reminder is a scheduled wake-up, possibly carrying several merged tasks.
// Owned exclusively by this package.
type Reminder struct {
	ID           string       `json:"id"`
	Task         string       `json:"task"`
	Context      string       `json:"context"`
	Category     string       `json:"category,omitempty"`
	OriginalTime time.Time    `json:"original_time"`
	WakeupTime   time.Time    `json:"wakeup_time"`
	MergedTasks  []MergedTask `json:"merged_tasks"`
}

// Summary is the human-readable projection of a pending reminder.
type Summary struct {
	ID         string    `json:"id"`
	Label      string    `json:"label"`
	FireAt     time.Time `json:"fire_at"`
	MergeCount int       `json:"merge_count"`
	TimeUntil  string    `json:"time_until"`
}

// Callback receives the follow-up instruction when a reminder matures.
type Callback func(ctx context.Context, instruction string) error

// Config for the reminder store.
type Config struct {
	// MergeWindow is the radius for combining reminders. Zero means
	// DefaultMergeWindow.
	MergeWindow time.Duration

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Store schedules, enumerates, cancels and fires reminders. The sorted index
// and the records live in the durable store; the find-nearby-then-write merge
// sequence is not atomic against a concurrent identical sequence. Two near-
// simultaneous schedules for the same window can both create records instead
// of merging. Accepted under the single-writer model.
type Store struct {
	db       store.Store
	callback Callback
	window   time.Duration
	now      func() time.Time
}

// NewStore creates a reminder store. The callback runs on every matured
// reminder during a sweep.
func NewStore(db store.Store, callback Callback, cfg Config) *Store {
	window := cfg.MergeWindow
	if window <= 0 {
		window = DefaultMergeWindow
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Store{db: db, callback: callback, window: window, now: now}
}

// ScheduleWakeup schedules a follow-up after delay. When an existing reminder
// fires within the merge window of the target time, the task is folded into
// the closest such reminder instead of creating a new one; the merged
// reminder inherits the earliest fire time in the group. Returns the id of
// the new or merged-into reminder.
func (s *Store) ScheduleWakeup(task, context_, category string, delay time.Duration) (string, error) {
	now := s.now()
	wakeup := now.Add(delay)

	existing, err := s.closestInWindow(wakeup)
	if err != nil {
		return "", err
	}
	if existing != nil {
		return s.mergeInto(existing, task, context_, now, wakeup)
	}

	rem := &Reminder{
		ID:           uuid.New().String(),
		Task:         task,
		Context:      context_,
		Category:     category,
		OriginalTime: now,
		WakeupTime:   wakeup,
		MergedTasks: []MergedTask{
			{Task: task, Context: context_, Time: now, ScheduledFor: wakeup},
		},
	}
	if err := s.save(rem); err != nil {
		return "", err
	}
	if err := s.db.SortedInsert(indexSet, float64(wakeup.UnixMilli()), rem.ID); err != nil {
		return "", fmt.Errorf("index reminder: %w", err)
	}

	logging.Debug("scheduled reminder %s for %s", rem.ID, wakeup.Format(time.RFC3339))
	return rem.ID, nil
}

// closestInWindow scans the index inside the merge window around target and
// returns the reminder whose fire time is nearest, or nil. A linear scan over
// the window is fine at personal-assistant reminder volumes.
func (s *Store) closestInWindow(target time.Time) (*Reminder, error) {
	min := float64(target.Add(-s.window).UnixMilli())
	max := float64(target.Add(s.window).UnixMilli())

	members, err := s.db.SortedRangeByScore(indexSet, min, max)
	if err != nil {
		return nil, fmt.Errorf("scan reminder index: %w", err)
	}
	if len(members) == 0 {
		return nil, nil
	}

	targetMs := float64(target.UnixMilli())
	best := members[0]
	for _, m := range members[1:] {
		if math.Abs(m.Score-targetMs) < math.Abs(best.Score-targetMs) {
			best = m
		}
	}

	rem, err := s.load(best.Member)
	if err != nil {
		// A dangling index entry must not block scheduling; treat as
		// no merge candidate.
		logging.Warn("reminder %s unreadable during merge scan: %v", best.Member, err)
		return nil, nil
	}
	return rem, nil
}

// mergeInto folds a task into an existing reminder, pulling the fire time
// earlier when the new target precedes it.
func (s *Store) mergeInto(rem *Reminder, task, context_ string, now, wakeup time.Time) (string, error) {
	rem.MergedTasks = append(rem.MergedTasks, MergedTask{
		Task:         task,
		Context:      context_,
		Time:         now,
		ScheduledFor: wakeup,
	})
	rem.Task = fmt.Sprintf("Combined reminder (%d tasks)", len(rem.MergedTasks))

	if wakeup.Before(rem.WakeupTime) {
		// Urgency is inherited from the earliest-requested task.
		if err := s.db.SortedRemove(indexSet, rem.ID); err != nil {
			return "", fmt.Errorf("reindex reminder: %w", err)
		}
		rem.WakeupTime = wakeup
		if err := s.db.SortedInsert(indexSet, float64(wakeup.UnixMilli()), rem.ID); err != nil {
			return "", fmt.Errorf("reindex reminder: %w", err)
		}
	}

	if err := s.save(rem); err != nil {
		return "", err
	}
	logging.Debug("merged task into reminder %s (%d tasks)", rem.ID, len(rem.MergedTasks))
	return rem.ID, nil
}

// PendingReminders returns summaries of all future reminders, ascending by
// fire time.
func (s *Store) PendingReminders() ([]Summary, error) {
	now := s.now()
	members, err := s.db.SortedRangeByScore(indexSet, float64(now.UnixMilli()), math.MaxFloat64)
	if err != nil {
		return nil, fmt.Errorf("scan reminder index: %w", err)
	}

	summaries := make([]Summary, 0, len(members))
	for _, m := range members {
		rem, err := s.load(m.Member)
		if err != nil {
			logging.Warn("skipping unreadable reminder %s: %v", m.Member, err)
			continue
		}
		summaries = append(summaries, Summary{
			ID:         rem.ID,
			Label:      rem.Task,
			FireAt:     rem.WakeupTime,
			MergeCount: len(rem.MergedTasks),
			TimeUntil:  humanizeUntil(rem.WakeupTime.Sub(now)),
		})
	}
	return summaries, nil
}

// CancelReminder removes a reminder and its index entry. Cancelling an
// absent id is not an error.
func (s *Store) CancelReminder(id string) error {
	if err := s.db.SortedRemove(indexSet, id); err != nil {
		return err
	}
	return s.db.Delete(recordPrefix + id)
}

// ProcessWakeups fires every due reminder exactly once. Each entry runs in
// its own failure boundary: a corrupt record is discarded without firing,
// and a callback error never prevents cleanup or blocks later entries.
func (s *Store) ProcessWakeups(ctx context.Context) error {
	now := s.now()
	due, err := s.db.SortedRangeByScore(indexSet, 0, float64(now.UnixMilli()))
	if err != nil {
		return fmt.Errorf("scan due reminders: %w", err)
	}

	for _, m := range due {
		s.fireOne(ctx, m.Member)
	}
	return nil
}

// fireOne delivers a single reminder and removes it unconditionally.
func (s *Store) fireOne(ctx context.Context, id string) {
	defer func() {
		// A reminder fires at most once, even when the callback fails.
		if err := s.db.SortedRemove(indexSet, id); err != nil {
			logging.Error("failed to remove reminder index entry %s: %v", id, err)
		}
		if err := s.db.Delete(recordPrefix + id); err != nil {
			logging.Error("failed to remove reminder record %s: %v", id, err)
		}
	}()

	rem, err := s.load(id)
	if err != nil {
		// Corrupt entries are never retried.
		logging.Warn("discarding corrupt reminder %s: %v", id, err)
		return
	}

	instruction := buildInstruction(rem)
	if s.callback == nil {
		logging.Warn("reminder %s matured with no callback configured", id)
		return
	}
	if err := s.callback(ctx, instruction); err != nil {
		logging.Error("reminder callback failed for %s: %v", id, err)
	}
}

// buildInstruction renders the follow-up text handed to the reasoning
// callback. Merged reminders enumerate every task with its own context and
// requested time.
func buildInstruction(rem *Reminder) string {
	if len(rem.MergedTasks) <= 1 {
		return fmt.Sprintf("Reminder: %s. Context: %s. Scheduled at %s.",
			rem.Task, rem.Context, rem.OriginalTime.Format("Jan 2 15:04"))
	}

	out := fmt.Sprintf("Combined reminder with %d tasks:\n", len(rem.MergedTasks))
	for i, t := range rem.MergedTasks {
		out += fmt.Sprintf("%d. %s (context: %s, requested %s for %s)\n",
			i+1, t.Task, t.Context,
			t.Time.Format("Jan 2 15:04"),
			t.ScheduledFor.Format("Jan 2 15:04"))
	}
	return out
}

func (s *Store) save(rem *Reminder) error {
	data, err := json.Marshal(rem)
	if err != nil {
		return fmt.Errorf("encode reminder: %w", err)
	}
	if err := s.db.Set(recordPrefix+rem.ID, string(data)); err != nil {
		return fmt.Errorf("save reminder: %w", err)
	}
	return nil
}

// load reads and decodes a reminder record. Some store backends hand back
// the record double-encoded (a JSON string containing JSON); both shapes are
// accepted.
func (s *Store) load(id string) (*Reminder, error) {
	raw, ok, err := s.db.Get(recordPrefix + id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("reminder %s: record missing", id)
	}

	var rem Reminder
	if err := json.Unmarshal([]byte(raw), &rem); err == nil && rem.ID != "" {
		return &rem, nil
	}

	var inner string
	if err := json.Unmarshal([]byte(raw), &inner); err == nil {
		if err := json.Unmarshal([]byte(inner), &rem); err == nil && rem.ID != "" {
			return &rem, nil
		}
	}
	return nil, fmt.Errorf("reminder %s: unparseable record", id)
}

// humanizeUntil renders a duration like "15 minutes" or "2 hours 5 minutes".
func humanizeUntil(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	minutes := int(d.Round(time.Minute) / time.Minute)
	if minutes < 60 {
		if minutes == 1 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", minutes)
	}
	hours := minutes / 60
	minutes = minutes % 60
	hourWord := "hours"
	if hours == 1 {
		hourWord = "hour"
	}
	if minutes == 0 {
		return fmt.Sprintf("%d %s", hours, hourWord)
	}
	return fmt.Sprintf("%d %s %d minutes", hours, hourWord, minutes)
}
