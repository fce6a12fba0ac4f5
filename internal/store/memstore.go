package store

import (
	"sort"
	"sync"
)

// Memory is the in-memory Store used when no database path is configured
// and in tests. Contents are lost on restart; that degradation is accepted.
type Memory struct {
	mu   sync.RWMutex
	kv   map[string]string
	sets map[string]map[string]float64
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		kv:   make(map[string]string),
		sets: make(map[string]map[string]float64),
	}
}

// Get returns the value for key.
func (m *Memory) Get(key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.kv[key]
	return v, ok, nil
}

// Set stores value under key.
func (m *Memory) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.kv[key] = value
	return nil
}

// Delete removes key.
func (m *Memory) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.kv, key)
	return nil
}

// SortedInsert adds or rescores a member.
func (m *Memory) SortedInsert(set string, score float64, member string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sets[set]
	if !ok {
		s = make(map[string]float64)
		m.sets[set] = s
	}
	s[member] = score
	return nil
}

// SortedRemove removes a member.
func (m *Memory) SortedRemove(set string, member string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sets[set]; ok {
		delete(s, member)
	}
	return nil
}

// SortedRangeByScore returns members in [min, max] ascending by score.
func (m *Memory) SortedRangeByScore(set string, min, max float64) ([]ScoredMember, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var members []ScoredMember
	for member, score := range m.sets[set] {
		if score >= min && score <= max {
			members = append(members, ScoredMember{Member: member, Score: score})
		}
	}
	sort.Slice(members, func(i, j int) bool {
		if members[i].Score == members[j].Score {
			return members[i].Member < members[j].Member
		}
		return members[i].Score < members[j].Score
	})
	return members, nil
}

// Close is a no-op for the in-memory store.
func (m *Memory) Close() error {
	return nil
}
