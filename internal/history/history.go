// Package history keeps a short rolling conversation transcript per
// channel, enough to give the reasoner context without unbounded growth.
package history

import (
	"encoding/json"
	"fmt"

	"github.com/valet-hq/valet/internal/core"
	"github.com/valet-hq/valet/internal/store"
)

const (
	keyPrefix = "history:"

	// DefaultMaxTurns is how many turns a channel transcript retains.
	DefaultMaxTurns = 20
)

// Log is the per-channel transcript store.
type Log struct {
	db       store.Store
	maxTurns int
}

// NewLog creates a transcript log. maxTurns <= 0 uses DefaultMaxTurns.
func NewLog(db store.Store, maxTurns int) *Log {
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	return &Log{db: db, maxTurns: maxTurns}
}

// Turns returns the stored transcript for a channel, oldest first. A
// missing or corrupt record is an empty transcript, never an error the
// pipeline has to care about.
func (l *Log) Turns(channel string) []core.Turn {
	raw, ok, err := l.db.Get(keyPrefix + channel)
	if err != nil || !ok {
		return nil
	}
	var turns []core.Turn
	if err := json.Unmarshal([]byte(raw), &turns); err != nil {
		return nil
	}
	return turns
}

// Append adds turns to a channel's transcript and trims to the retention
// limit.
func (l *Log) Append(channel string, turns ...core.Turn) error {
	all := append(l.Turns(channel), turns...)
	if len(all) > l.maxTurns {
		all = all[len(all)-l.maxTurns:]
	}
	data, err := json.Marshal(all)
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	if err := l.db.Set(keyPrefix+channel, string(data)); err != nil {
		return fmt.Errorf("store history: %w", err)
	}
	return nil
}

// Clear drops a channel's transcript.
func (l *Log) Clear(channel string) error {
	return l.db.Delete(keyPrefix + channel)
}
