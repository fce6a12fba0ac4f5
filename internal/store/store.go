// Package store provides the durable key-value and sorted-set store
// consumed by the rest of the system. A SQLite backend gives persistence
// across restarts; an in-memory backend covers the degraded mode where no
// database path is available.
package store

import "github.com/valet-hq/valet/internal/logging"

// ScoredMember is a sorted-set member with its score.
type ScoredMember struct {
	Member string
	Score  float64
}

// Store is the durable store interface. Individual operations are atomic;
// multi-step read-modify-write sequences are not, and callers must assume
// a single-writer model.
type Store interface {
	// Get returns the value for key. The second return is false when the
	// key is absent.
	Get(key string) (string, bool, error)

	// Set stores value under key, replacing any previous value.
	Set(key, value string) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(key string) error

	// SortedInsert adds member to the named sorted set with the given
	// score, replacing the member's previous score if present.
	SortedInsert(set string, score float64, member string) error

	// SortedRemove removes member from the named sorted set. Removing an
	// absent member is not an error.
	SortedRemove(set string, member string) error

	// SortedRangeByScore returns members with min <= score <= max,
	// ascending by score.
	SortedRangeByScore(set string, min, max float64) ([]ScoredMember, error)

	// Close releases underlying resources.
	Close() error
}

// Open returns a SQLite store at path, or an in-memory store when path is
// empty or the database cannot be opened. Running without a database is
// degraded, not fatal: state lasts only for the process lifetime.
func Open(path string) Store {
	if path == "" {
		logging.Warn("no database path; state will not survive restarts")
		return NewMemory()
	}
	db, err := OpenSQLite(path)
	if err != nil {
		logging.Warn("cannot open database at %s: %v; state will not survive restarts", path, err)
		return NewMemory()
	}
	return db
}
