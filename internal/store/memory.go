package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/raphaelgruber/portal-go/internal/models"
)

// Memory is a process-local store, used in tests and by the memory backend.
type Memory[T models.Record] struct {
	mu    sync.RWMutex
	kind  string
	order []string
	recs  map[string]T
	now   func() time.Time
}

// NewMemory creates an empty in-memory store.
func NewMemory[T models.Record]() *Memory[T] {
	return &Memory[T]{
		kind: kindOf[T](),
		recs: make(map[string]T),
		now:  time.Now,
	}
}

func (m *Memory[T]) Kind() string { return m.kind }

func (m *Memory[T]) List(_ context.Context, opts ListOptions) ([]T, error) {
	spec := opts.spec()
	if err := checkSort(m.kind, spec); err != nil {
		return nil, err
	}

	m.mu.RLock()
	out := make([]T, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.recs[id])
	}
	m.mu.RUnlock()

	sortRecords(out, spec)
	return cloneRecords(limit(out, opts.Limit)), nil
}

func (m *Memory[T]) Create(_ context.Context, rec T) (T, error) {
	if err := prepare(rec, m.now()); err != nil {
		return rec, fmt.Errorf("create %s: %w", m.kind, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	id := rec.RecordID()
	if _, ok := m.recs[id]; ok {
		return rec, fmt.Errorf("create %s %s: %w", m.kind, id, ErrAlreadyExists)
	}
	m.recs[id] = cloneRecords([]T{rec})[0]
	m.order = append(m.order, id)
	return rec, nil
}

func (m *Memory[T]) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.recs[id]; !ok {
		return fmt.Errorf("delete %s %s: %w", m.kind, id, ErrNotFound)
	}
	delete(m.recs, id)
	for i, oid := range m.order {
		if oid == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}
