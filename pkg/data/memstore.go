package data

import (
	"context"
	"fmt"
	"sync"
)

// MemStore is an in-memory Store for tests and dry runs. Writes made
// under a transaction alias are staged and only become visible on
// commit; rollback discards them. Every call is recorded so tests can
// assert exact call sequences.
type MemStore struct {
	mu      sync.Mutex
	rows    map[string][]map[string]any // statement name → canned result
	writes  int64                       // committed write count
	staged  map[string]int64            // alias → staged write count
	calls   []string
	failing map[string]error // statement name → forced error
}

// NewMemStore returns an empty store.
func NewMemStore() *MemStore {
	return &MemStore{
		rows:    map[string][]map[string]any{},
		staged:  map[string]int64{},
		failing: map[string]error{},
	}
}

// SetRows registers a canned result for a read statement.
func (m *MemStore) SetRows(stmt string, rows []map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[stmt] = rows
}

// FailWith forces the named statement to return err.
func (m *MemStore) FailWith(stmt string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failing[stmt] = err
}

// Begin implements Store.
func (m *MemStore) Begin(_ context.Context, alias string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("begin", alias)
	if _, open := m.staged[alias]; open {
		return fmt.Errorf("alias %q: %w", alias, ErrTxOpen)
	}
	m.staged[alias] = 0
	return nil
}

// Commit implements Store.
func (m *MemStore) Commit(_ context.Context, alias string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("commit", alias)
	n, open := m.staged[alias]
	if !open {
		return fmt.Errorf("alias %q: %w", alias, ErrTxNotOpen)
	}
	m.writes += n
	delete(m.staged, alias)
	return nil
}

// Rollback implements Store.
func (m *MemStore) Rollback(_ context.Context, alias string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("rollback", alias)
	if _, open := m.staged[alias]; !open {
		return fmt.Errorf("alias %q: %w", alias, ErrTxNotOpen)
	}
	delete(m.staged, alias)
	return nil
}

// Query implements Store.
func (m *MemStore) Query(_ context.Context, alias, stmt string, _ map[string]string) ([]map[string]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("query", stmt)
	if err := m.failing[stmt]; err != nil {
		return nil, err
	}
	rows, ok := m.rows[stmt]
	if !ok {
		return nil, fmt.Errorf("%q: %w", stmt, ErrUnknownStatement)
	}
	return rows, nil
}

// Exec implements Store.
func (m *MemStore) Exec(_ context.Context, alias, stmt string, _ map[string]string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("exec", stmt)
	if err := m.failing[stmt]; err != nil {
		return 0, err
	}
	if alias != "" {
		if _, open := m.staged[alias]; !open {
			return 0, fmt.Errorf("alias %q: %w", alias, ErrTxNotOpen)
		}
		m.staged[alias]++
		return 1, nil
	}
	m.writes++
	return 1, nil
}

// Writes reports the committed write count.
func (m *MemStore) Writes() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

// OpenAliases reports how many aliases hold open transactions.
func (m *MemStore) OpenAliases() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.staged)
}

// Calls returns the recorded call log ("op:name" entries, in order).
func (m *MemStore) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount counts recorded calls matching "op:name".
func (m *MemStore) CallCount(call string) int {
	n := 0
	for _, c := range m.Calls() {
		if c == call {
			n++
		}
	}
	return n
}

func (m *MemStore) record(op, name string) {
	m.calls = append(m.calls, op+":"+name)
}
