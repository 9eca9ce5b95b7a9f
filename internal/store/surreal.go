package store

import (
	"context"
	"fmt"
	"time"

	"github.com/raphaelgruber/portal-go/internal/db"
	"github.com/raphaelgruber/portal-go/internal/models"
)

// Surreal adapts a db.Table to Store.
type Surreal[T models.Record] struct {
	table *db.Table[T]
	now   func() time.Time
}

// NewSurreal returns the SurrealDB store for T's kind.
func NewSurreal[T models.Record](client *db.Client) *Surreal[T] {
	return &Surreal[T]{table: db.NewTable[T](client), now: time.Now}
}

func (s *Surreal[T]) Kind() string { return s.table.Kind() }

func (s *Surreal[T]) List(ctx context.Context, opts ListOptions) ([]T, error) {
	return s.table.List(ctx, opts.spec(), opts.Limit)
}

func (s *Surreal[T]) Create(ctx context.Context, rec T) (T, error) {
	if err := prepare(rec, s.now()); err != nil {
		return rec, fmt.Errorf("create %s: %w", s.Kind(), err)
	}
	return rec, s.table.Create(ctx, rec)
}

func (s *Surreal[T]) Delete(ctx context.Context, id string) error {
	return s.table.Delete(ctx, id)
}
