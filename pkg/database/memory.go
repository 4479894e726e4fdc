package database

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore is a mutex-guarded in-process Store. Tables are created on first insert,
// primary keys auto-increment per table as int64, and rows are copied on read and write
// so callers never share maps with the store.
type MemoryStore struct {
	mu      sync.RWMutex
	tables  map[string][]Row
	counter map[string]int64
	closed  bool
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tables:  make(map[string][]Row),
		counter: make(map[string]int64),
	}
}

// Insert stores a copy of row and returns its key
func (m *MemoryStore) Insert(ctx context.Context, table, key string, row Row) (interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrConnection
	}

	stored := copyRow(row)
	var id interface{}
	if key != "" {
		if v, ok := stored[key]; ok && v != nil {
			id = v
			if n, ok := toInt64(v); ok && n > m.counter[table] {
				m.counter[table] = n
			}
		} else {
			m.counter[table]++
			id = m.counter[table]
			stored[key] = id
		}
	}

	m.tables[table] = append(m.tables[table], stored)
	return id, nil
}

// Update merges row into the record whose key equals id
func (m *MemoryStore) Update(ctx context.Context, table, key string, id interface{}, row Row) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrConnection
	}

	for _, stored := range m.tables[table] {
		if valuesEqual(stored[key], id) {
			for k, v := range row {
				stored[k] = v
			}
			return nil
		}
	}
	return fmt.Errorf("%w: %s %v", ErrNotFound, table, id)
}

// Select returns copies of matching rows in insertion order unless filter.OrderBy is set
func (m *MemoryStore) Select(ctx context.Context, table string, filter Filter) ([]Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrConnection
	}

	out := make([]Row, 0)
	for _, stored := range m.tables[table] {
		if matches(stored, filter.Where) {
			out = append(out, copyRow(stored))
		}
	}

	if filter.OrderBy != "" {
		col := filter.OrderBy
		sort.SliceStable(out, func(i, j int) bool {
			return lessValue(out[i][col], out[j][col])
		})
	}
	return out, nil
}

// Ping reports whether the store is still open
func (m *MemoryStore) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrConnection
	}
	return nil
}

// Close marks the store closed; later calls fail with ErrConnection
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Tables returns the names of every table holding at least one row, sorted.
func (m *MemoryStore) Tables() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.tables))
	for name, rows := range m.tables {
		if len(rows) > 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Truncate removes every row and resets key counters
func (m *MemoryStore) Truncate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tables = make(map[string][]Row)
	m.counter = make(map[string]int64)
}

func copyRow(row Row) Row {
	out := make(Row, len(row))
	for k, v := range row {
		out[k] = v
	}
	return out
}

func matches(row Row, where map[string]interface{}) bool {
	for col, want := range where {
		if !valuesEqual(row[col], want) {
			return false
		}
	}
	return true
}

// valuesEqual compares stored values loosely: integers of any width are equal when
// numerically equal, everything else falls back to its printed form.
func valuesEqual(a, b interface{}) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if x, ok := toInt64(a); ok {
		if y, ok := toInt64(b); ok {
			return x == y
		}
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func lessValue(a, b interface{}) bool {
	if x, ok := toInt64(a); ok {
		if y, ok := toInt64(b); ok {
			return x < y
		}
	}
	return fmt.Sprint(a) < fmt.Sprint(b)
}

func toInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return int64(n), true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		return int64(n), true
	default:
		return 0, false
	}
}
