package db

import (
	"context"
	"fmt"
	"time"

	"github.com/surrealdb/surrealdb.go"

	"github.com/raphaelgruber/portal-go/internal/models"
)

type row[T any] struct {
	Data      T         `json:"data"`
	CreatedAt time.Time `json:"created_at"`
}

// Table is the SurrealDB table of one record kind.
type Table[T models.Record] struct {
	client *Client
	kind   string
}

// NewTable returns the table for T's kind.
func NewTable[T models.Record](client *Client) *Table[T] {
	var zero T
	return &Table[T]{client: client, kind: zero.Kind()}
}

// Kind returns the table name.
func (t *Table[T]) Kind() string { return t.kind }

// List returns records ordered by sort. limit <= 0 means no limit.
func (t *Table[T]) List(ctx context.Context, sort models.SortSpec, limit int) ([]T, error) {
	if sort.Field == "" {
		sort = models.SortSpec{Field: "created_at", Desc: true}
	}
	if !sort.Valid() {
		return nil, fmt.Errorf("list %s: %w %q", t.kind, ErrInvalidSort, sort.Field)
	}

	order := "data." + sort.Field
	if sort.Field == "created_at" {
		order = "created_at"
	}
	dir := "ASC"
	if sort.Desc {
		dir = "DESC"
	}

	sql := fmt.Sprintf("SELECT * FROM type::table($tb) ORDER BY %s %s", order, dir)
	vars := map[string]any{"tb": t.kind}
	if limit > 0 {
		sql += " LIMIT $limit"
		vars["limit"] = limit
	}

	results, err := surrealdb.Query[[]row[T]](ctx, t.client.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", t.kind, err)
	}

	out := []T{}
	if results == nil || len(*results) == 0 {
		return out, nil
	}
	for _, r := range (*results)[0].Result {
		out = append(out, r.Data)
	}
	return out, nil
}

// Create stores rec under its ID. The ID and CreatedAt must already be set.
func (t *Table[T]) Create(ctx context.Context, rec T) error {
	_, err := surrealdb.Query[any](ctx, t.client.db, `
		CREATE type::record($tb, $id) CONTENT {
			data: $data,
			created_at: $created
		}
	`, map[string]any{
		"tb":      t.kind,
		"id":      rec.RecordID(),
		"data":    rec,
		"created": rec.Created(),
	})
	if err != nil {
		return fmt.Errorf("create %s: %w", t.kind, wrapQueryError(err))
	}
	return nil
}

// Delete removes the record with id, returning ErrNotFound when absent.
func (t *Table[T]) Delete(ctx context.Context, id string) error {
	results, err := surrealdb.Query[[]row[T]](ctx, t.client.db,
		`DELETE type::record($tb, $id) RETURN BEFORE`,
		map[string]any{"tb": t.kind, "id": id})
	if err != nil {
		return fmt.Errorf("delete %s: %w", t.kind, wrapQueryError(err))
	}
	// RETURN BEFORE yields the deleted rows.
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return fmt.Errorf("delete %s %s: %w", t.kind, id, ErrNotFound)
	}
	return nil
}
