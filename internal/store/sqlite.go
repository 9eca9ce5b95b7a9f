package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/raphaelgruber/portal-go/internal/models"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS records (
	kind       TEXT NOT NULL,
	id         TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	data       TEXT NOT NULL,
	PRIMARY KEY (kind, id)
);
CREATE INDEX IF NOT EXISTS records_kind_created ON records (kind, created_at);
`

// SQLite is a single-file database holding every record kind as JSON.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path.
func OpenSQLite(path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One writer at a time; WAL keeps readers unblocked.
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := conn.Exec(sqliteSchema); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &SQLite{db: conn}, nil
}

// Close checkpoints the WAL and closes the database.
func (s *SQLite) Close() error {
	_, _ = s.db.Exec(`PRAGMA wal_checkpoint(TRUNCATE)`)
	return s.db.Close()
}

// SQLiteTable is the SQLite store of one record kind.
type SQLiteTable[T models.Record] struct {
	db   *SQLite
	kind string
	now  func() time.Time
}

// NewSQLiteTable returns the store for T's kind in s.
func NewSQLiteTable[T models.Record](s *SQLite) *SQLiteTable[T] {
	return &SQLiteTable[T]{db: s, kind: kindOf[T](), now: time.Now}
}

func (t *SQLiteTable[T]) Kind() string { return t.kind }

func (t *SQLiteTable[T]) List(ctx context.Context, opts ListOptions) ([]T, error) {
	spec := opts.spec()
	if err := checkSort(t.kind, spec); err != nil {
		return nil, err
	}

	order := "created_at"
	if spec.Field != "created_at" {
		// Field is validated above.
		order = fmt.Sprintf("json_extract(data, '$.%s')", spec.Field)
	}
	dir := "ASC"
	if spec.Desc {
		dir = "DESC"
	}
	lim := opts.Limit
	if lim <= 0 {
		lim = -1
	}

	query := fmt.Sprintf(`SELECT data FROM records WHERE kind = ? ORDER BY %s %s, rowid ASC LIMIT ?`, order, dir)
	rows, err := t.db.db.QueryContext(ctx, query, t.kind, lim)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", t.kind, err)
	}
	defer rows.Close()

	out := []T{}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan %s: %w", t.kind, err)
		}
		var rec T
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			return nil, fmt.Errorf("decode %s: %w", t.kind, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (t *SQLiteTable[T]) Create(ctx context.Context, rec T) (T, error) {
	if err := prepare(rec, t.now()); err != nil {
		return rec, fmt.Errorf("create %s: %w", t.kind, err)
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return rec, fmt.Errorf("encode %s: %w", t.kind, err)
	}

	res, err := t.db.db.ExecContext(ctx,
		`INSERT INTO records (kind, id, created_at, data) VALUES (?, ?, ?, ?) ON CONFLICT DO NOTHING`,
		t.kind, rec.RecordID(), rec.Created().UnixNano(), string(data))
	if err != nil {
		return rec, fmt.Errorf("create %s: %w", t.kind, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return rec, fmt.Errorf("create %s %s: %w", t.kind, rec.RecordID(), ErrAlreadyExists)
	}
	return rec, nil
}

func (t *SQLiteTable[T]) Delete(ctx context.Context, id string) error {
	res, err := t.db.db.ExecContext(ctx, `DELETE FROM records WHERE kind = ? AND id = ?`, t.kind, id)
	if err != nil {
		return fmt.Errorf("delete %s: %w", t.kind, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete %s: %w", t.kind, err)
	}
	if n == 0 {
		return fmt.Errorf("delete %s %s: %w", t.kind, id, ErrNotFound)
	}
	return nil
}
