// Package memory persists long-lived facts about the owner and retrieves
// the ones relevant to the current conversation. Facts are plain text with
// an id and a created-at timestamp; retrieval is recency plus naive keyword
// overlap, which is enough for prompt assembly.
package memory

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/valet-hq/valet/internal/core"
	"github.com/valet-hq/valet/internal/logging"
	"github.com/valet-hq/valet/internal/store"
)

const (
	indexSet   = "memory:index"
	factPrefix = "memory:fact:"
)

// Fact is one remembered statement.
type Fact struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// Facts is the fact store.
type Facts struct {
	db  store.Store
	now func() time.Time
}

// NewFacts creates a fact store over db.
func NewFacts(db store.Store) *Facts {
	return &Facts{db: db, now: time.Now}
}

// Add stores a new fact and returns its id.
func (f *Facts) Add(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("empty fact")
	}

	fact := Fact{
		ID:        uuid.New().String(),
		Text:      text,
		CreatedAt: f.now(),
	}
	if err := f.save(fact); err != nil {
		return "", err
	}
	if err := f.db.SortedInsert(indexSet, float64(fact.CreatedAt.UnixMilli()), fact.ID); err != nil {
		return "", fmt.Errorf("index fact: %w", err)
	}
	return fact.ID, nil
}

// Update replaces the text of an existing fact. Unknown ids are an error;
// the caller decided the id, not the store.
func (f *Facts) Update(id, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return fmt.Errorf("empty fact")
	}

	fact, err := f.load(id)
	if err != nil {
		return err
	}
	fact.Text = text
	fact.UpdatedAt = f.now()
	return f.save(*fact)
}

// Delete removes a fact. Deleting an unknown id is a no-op.
func (f *Facts) Delete(id string) error {
	if err := f.db.Delete(factPrefix + id); err != nil {
		return fmt.Errorf("delete fact: %w", err)
	}
	if err := f.db.SortedRemove(indexSet, id); err != nil {
		return fmt.Errorf("unindex fact: %w", err)
	}
	return nil
}

// Recent returns up to limit facts, newest first.
func (f *Facts) Recent(limit int) ([]Fact, error) {
	members, err := f.db.SortedRangeByScore(indexSet, 0, math.MaxFloat64)
	if err != nil {
		return nil, fmt.Errorf("scan facts: %w", err)
	}

	facts := make([]Fact, 0, len(members))
	for _, m := range members {
		fact, err := f.load(m.Member)
		if err != nil {
			logging.Warn("skipping fact %s: %v", m.Member, err)
			continue
		}
		facts = append(facts, *fact)
	}
	// Index is ascending by created-at; newest first for the caller.
	sort.Slice(facts, func(i, j int) bool { return facts[i].CreatedAt.After(facts[j].CreatedAt) })
	if limit > 0 && len(facts) > limit {
		facts = facts[:limit]
	}
	return facts, nil
}

// Relevant returns up to limit facts scored by keyword overlap with the
// query, falling back to recency when nothing overlaps.
func (f *Facts) Relevant(query string, limit int) ([]Fact, error) {
	all, err := f.Recent(0)
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, nil
	}

	words := keywords(query)
	type scored struct {
		fact  Fact
		score int
	}
	ranked := make([]scored, 0, len(all))
	for _, fact := range all {
		ranked = append(ranked, scored{fact: fact, score: overlap(words, fact.Text)})
	}
	// Stable on recency, so equal scores keep newest-first order.
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	out := make([]Fact, 0, limit)
	for _, r := range ranked {
		out = append(out, r.fact)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// Apply runs a batch of memory operations from a normalized decision.
// Individual failures are logged and skipped; one bad entry must not lose
// the rest of the batch.
func (f *Facts) Apply(ops core.MemoryOps) {
	for _, text := range ops.Add {
		if _, err := f.Add(text); err != nil {
			logging.Warn("memory add failed: %v", err)
		}
	}
	for _, u := range ops.Update {
		if err := f.Update(u.ID, u.Text); err != nil {
			logging.Warn("memory update %s failed: %v", u.ID, err)
		}
	}
	for _, id := range ops.Delete {
		if err := f.Delete(id); err != nil {
			logging.Warn("memory delete %s failed: %v", id, err)
		}
	}
}

func (f *Facts) save(fact Fact) error {
	data, err := json.Marshal(fact)
	if err != nil {
		return fmt.Errorf("encode fact: %w", err)
	}
	if err := f.db.Set(factPrefix+fact.ID, string(data)); err != nil {
		return fmt.Errorf("store fact: %w", err)
	}
	return nil
}

func (f *Facts) load(id string) (*Fact, error) {
	raw, ok, err := f.db.Get(factPrefix + id)
	if err != nil {
		return nil, fmt.Errorf("load fact: %w", err)
	}
	if !ok {
		return nil, core.ErrRecordNotFound
	}
	var fact Fact
	if err := json.Unmarshal([]byte(raw), &fact); err != nil {
		return nil, core.ErrCorruptRecord
	}
	return &fact, nil
}

// keywords lowercases and splits the query, dropping short stop-ish words.
func keywords(s string) []string {
	fields := strings.Fields(strings.ToLower(s))
	out := make([]string, 0, len(fields))
	for _, w := range fields {
		w = strings.Trim(w, ".,!?\"'")
		if len(w) > 3 {
			out = append(out, w)
		}
	}
	return out
}

func overlap(words []string, text string) int {
	lower := strings.ToLower(text)
	score := 0
	for _, w := range words {
		if strings.Contains(lower, w) {
			score++
		}
	}
	return score
}
