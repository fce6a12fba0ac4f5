package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// SQLite is the persistent Store backed by a single SQLite database.
type SQLite struct {
	conn *sql.DB
	path string
}

// OpenSQLite opens or creates the database at path.
func OpenSQLite(path string) (*SQLite, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	conn.SetMaxOpenConns(1) // SQLite doesn't handle concurrent writes well

	// Enable WAL mode for better concurrency
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	db := &SQLite{conn: conn, path: path}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

func (s *SQLite) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS kv (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS sorted_sets (
			set_name TEXT NOT NULL,
			member   TEXT NOT NULL,
			score    REAL NOT NULL,
			PRIMARY KEY (set_name, member)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sorted_sets_score
			ON sorted_sets(set_name, score)`,
	}
	for _, stmt := range stmts {
		if _, err := s.conn.Exec(stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// Get returns the value for key.
func (s *SQLite) Get(key string) (string, bool, error) {
	var value string
	err := s.conn.QueryRow(`SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// Set stores value under key.
func (s *SQLite) Set(key, value string) error {
	_, err := s.conn.Exec(`
		INSERT INTO kv (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

// Delete removes key.
func (s *SQLite) Delete(key string) error {
	_, err := s.conn.Exec(`DELETE FROM kv WHERE key = ?`, key)
	return err
}

// SortedInsert adds or rescores a member.
func (s *SQLite) SortedInsert(set string, score float64, member string) error {
	_, err := s.conn.Exec(`
		INSERT INTO sorted_sets (set_name, member, score) VALUES (?, ?, ?)
		ON CONFLICT(set_name, member) DO UPDATE SET score = excluded.score
	`, set, member, score)
	return err
}

// SortedRemove removes a member.
func (s *SQLite) SortedRemove(set string, member string) error {
	_, err := s.conn.Exec(`DELETE FROM sorted_sets WHERE set_name = ? AND member = ?`, set, member)
	return err
}

// SortedRangeByScore returns members in [min, max] ascending by score.
func (s *SQLite) SortedRangeByScore(set string, min, max float64) ([]ScoredMember, error) {
	rows, err := s.conn.Query(`
		SELECT member, score FROM sorted_sets
		WHERE set_name = ? AND score >= ? AND score <= ?
		ORDER BY score ASC
	`, set, min, max)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []ScoredMember
	for rows.Next() {
		var m ScoredMember
		if err := rows.Scan(&m.Member, &m.Score); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// Close closes the database connection.
func (s *SQLite) Close() error {
	return s.conn.Close()
}
