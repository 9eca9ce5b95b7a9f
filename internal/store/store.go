// Package store is the entity store used by every page: a small generic
// List/Create/Delete interface with SurrealDB, SQLite and in-memory
// backends, an LRU read cache and cross-replica invalidation.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/tidwall/gjson"

	"github.com/raphaelgruber/portal-go/internal/db"
	"github.com/raphaelgruber/portal-go/internal/models"
)

// Sentinel errors shared by all backends.
var (
	ErrNotFound      = db.ErrNotFound
	ErrAlreadyExists = db.ErrAlreadyExists
	ErrInvalidSort   = db.ErrInvalidSort
)

// DefaultSort orders listings newest first.
const DefaultSort = "-created_at"

// ListOptions selects and orders a listing.
type ListOptions struct {
	// Sort is a field name, prefixed with "-" for descending order.
	Sort string
	// Limit caps the result; zero or negative means no limit.
	Limit int
}

func (o ListOptions) spec() models.SortSpec {
	if o.Sort == "" {
		return models.ParseSort(DefaultSort)
	}
	return models.ParseSort(o.Sort)
}

// Store persists records of one kind.
type Store[T models.Record] interface {
	Kind() string
	List(ctx context.Context, opts ListOptions) ([]T, error)
	// Create validates rec, assigns an ID and creation time when missing,
	// and returns the stored record.
	Create(ctx context.Context, rec T) (T, error)
	Delete(ctx context.Context, id string) error
}

func kindOf[T models.Record]() string {
	var zero T
	return zero.Kind()
}

// prepare validates rec and fills its ID and creation time.
func prepare[T models.Record](rec T, now time.Time) error {
	if v, ok := any(rec).(models.Validator); ok {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	if rec.RecordID() == "" {
		rec.SetRecordID(models.NewRecordID())
	}
	if rec.Created().IsZero() {
		rec.SetCreated(now.UTC())
	}
	return nil
}

func checkSort(kind string, spec models.SortSpec) error {
	if !spec.Valid() {
		return fmt.Errorf("list %s: %w %q", kind, ErrInvalidSort, spec.Field)
	}
	return nil
}

// sortRecords orders recs in place by spec. Ties keep insertion order.
func sortRecords[T models.Record](recs []T, spec models.SortSpec) {
	type keyed struct {
		rec     T
		created time.Time
		key     gjson.Result
	}
	items := make([]keyed, len(recs))
	for i, r := range recs {
		items[i] = keyed{rec: r, created: r.Created()}
		if spec.Field != "created_at" {
			b, _ := json.Marshal(r)
			items[i].key = gjson.GetBytes(b, spec.Field)
		}
	}

	slices.SortStableFunc(items, func(a, b keyed) int {
		c := a.created.Compare(b.created)
		if spec.Field != "created_at" {
			c = compareValues(a.key, b.key)
		}
		if spec.Desc {
			return -c
		}
		return c
	})
	for i, it := range items {
		recs[i] = it.rec
	}
}

// compareValues orders missing values first, then numbers numerically and
// everything else by string.
func compareValues(a, b gjson.Result) int {
	switch {
	case !a.Exists() && !b.Exists():
		return 0
	case !a.Exists():
		return -1
	case !b.Exists():
		return 1
	}
	if a.Type == gjson.Number && b.Type == gjson.Number {
		switch {
		case a.Num < b.Num:
			return -1
		case a.Num > b.Num:
			return 1
		}
		return 0
	}
	as, bs := a.String(), b.String()
	switch {
	case as < bs:
		return -1
	case as > bs:
		return 1
	}
	return 0
}

func limit[T any](recs []T, n int) []T {
	if n > 0 && len(recs) > n {
		return recs[:n]
	}
	return recs
}
