// Package postgres is a Table Store persisted in PostgreSQL.
//
// Each table row is one record in sheet_rows holding its cells as a JSONB
// array (null, string or number per cell). Row blankness and width are
// stored next to the cells so row and column counts never decode JSON.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/sheetpipe/internal/sheet"
	"github.com/JonMunkholm/sheetpipe/internal/store"
)

// DBTX is the subset of pgx used by the store.
// Satisfied by *pgxpool.Pool and *pgx.Conn.
type DBTX interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Begin(context.Context) (pgx.Tx, error)
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS sheet_tables (
    name       TEXT PRIMARY KEY,
    position   BIGSERIAL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS sheet_rows (
    table_name TEXT    NOT NULL REFERENCES sheet_tables(name) ON DELETE CASCADE,
    row_index  INTEGER NOT NULL,
    cells      JSONB   NOT NULL,
    blank      BOOLEAN NOT NULL,
    width      INTEGER NOT NULL,
    PRIMARY KEY (table_name, row_index)
);

CREATE TABLE IF NOT EXISTS sheet_emphasis (
    table_name TEXT    NOT NULL REFERENCES sheet_tables(name) ON DELETE CASCADE,
    row_index  INTEGER NOT NULL,
    col_index  INTEGER NOT NULL,
    bold       BOOLEAN NOT NULL,
    color      TEXT    NOT NULL,
    PRIMARY KEY (table_name, row_index, col_index)
);
`

const upsertRowSQL = `
INSERT INTO sheet_rows (table_name, row_index, cells, blank, width)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (table_name, row_index)
DO UPDATE SET cells = EXCLUDED.cells, blank = EXCLUDED.blank, width = EXCLUDED.width`

const upsertEmphasisSQL = `
INSERT INTO sheet_emphasis (table_name, row_index, col_index, bold, color)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (table_name, row_index, col_index)
DO UPDATE SET bold = EXCLUDED.bold, color = EXCLUDED.color`

// Store implements store.Store on top of a pgx connection or pool.
type Store struct {
	db DBTX
}

// New returns a store using db. Call Migrate once before first use.
func New(db DBTX) *Store {
	return &Store{db: db}
}

// PoolOptions are the connection pool limits. Zero values keep the pgx
// defaults.
type PoolOptions struct {
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// NewPool parses url, opens a connection pool with the given limits and
// pings it.
func NewPool(ctx context.Context, url string, opts PoolOptions) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = int32(opts.MaxConns)
	}
	if opts.MinConns > 0 {
		cfg.MinConns = int32(opts.MinConns)
	}
	if opts.MaxConnLifetime > 0 {
		cfg.MaxConnLifetime = opts.MaxConnLifetime
	}
	if opts.MaxConnIdleTime > 0 {
		cfg.MaxConnIdleTime = opts.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return pool, nil
}

// Migrate creates the store's tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("migrate sheet schema: %w", err)
	}
	return nil
}

// Table implements store.Store.
func (s *Store) Table(ctx context.Context, name string) (store.Table, error) {
	var exists bool
	err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM sheet_tables WHERE name = $1)`, name).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("lookup table %q: %w", name, err)
	}
	if !exists {
		return nil, fmt.Errorf("%q: %w", name, store.ErrTableNotFound)
	}
	return &Table{db: s.db, name: name}, nil
}

// Tables implements store.Store.
func (s *Store) Tables(ctx context.Context) ([]string, error) {
	rows, err := s.db.Query(ctx, `SELECT name FROM sheet_tables ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	return names, nil
}

// CreateTable implements store.Store.
func (s *Store) CreateTable(ctx context.Context, name string) (store.Table, error) {
	tag, err := s.db.Exec(ctx, `INSERT INTO sheet_tables (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`, name)
	if err != nil {
		return nil, fmt.Errorf("create table %q: %w", name, err)
	}
	if tag.RowsAffected() == 0 {
		return nil, fmt.Errorf("%q: %w", name, store.ErrTableExists)
	}
	return &Table{db: s.db, name: name}, nil
}

// Table is one stored table.
type Table struct {
	db   DBTX
	name string
}

// Name implements store.Table.
func (t *Table) Name() string { return t.name }

// RowCount implements store.Table.
func (t *Table) RowCount(ctx context.Context) (int, error) {
	var n int
	err := t.db.QueryRow(ctx,
		`SELECT COALESCE(MAX(row_index) + 1, 0) FROM sheet_rows WHERE table_name = $1 AND NOT blank`,
		t.name,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("row count %q: %w", t.name, err)
	}
	return n, nil
}

// ColumnCount implements store.Table.
func (t *Table) ColumnCount(ctx context.Context) (int, error) {
	var n int
	err := t.db.QueryRow(ctx,
		`SELECT COALESCE(MAX(width), 0) FROM sheet_rows WHERE table_name = $1`,
		t.name,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("column count %q: %w", t.name, err)
	}
	return n, nil
}

// ReadRows implements store.Table.
func (t *Table) ReadRows(ctx context.Context, rows, cols store.Range) ([]sheet.Row, error) {
	if err := rows.Validate(); err != nil {
		return nil, err
	}
	if err := cols.Validate(); err != nil {
		return nil, err
	}

	stored, err := loadRows(ctx, t.db, t.name, rows)
	if err != nil {
		return nil, err
	}

	out := make([]sheet.Row, rows.Len())
	for i := range out {
		r := sheet.NewRow(cols.Len())
		if src, ok := stored[rows.Start+i]; ok {
			for c := range r {
				r[c] = src.At(cols.Start + c)
			}
		}
		out[i] = r
	}
	return out, nil
}

// WriteRows implements store.Table. Existing rows in the window are merged
// so writing a column slice keeps the other columns.
func (t *Table) WriteRows(ctx context.Context, startRow, startCol int, rows []sheet.Row) error {
	if startRow < 0 || startCol < 0 {
		return fmt.Errorf("invalid write origin (%d, %d)", startRow, startCol)
	}
	if len(rows) == 0 {
		return nil
	}

	return pgx.BeginFunc(ctx, t.db, func(tx pgx.Tx) error {
		existing, err := loadRows(ctx, tx, t.name, store.Span(startRow, len(rows)))
		if err != nil {
			return err
		}

		batch := &pgx.Batch{}
		for i, r := range rows {
			idx := startRow + i
			merged := existing[idx]
			if need := startCol + len(r); len(merged) < need {
				merged = merged.Pad(need)
			}
			copy(merged[startCol:], r)

			data, err := json.Marshal(merged)
			if err != nil {
				return fmt.Errorf("encode row %d: %w", idx, err)
			}
			batch.Queue(upsertRowSQL, t.name, idx, data, merged.IsBlank(), rowWidth(merged))
		}

		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("write rows %q: %w", t.name, err)
		}
		return nil
	})
}

// Clear implements store.Table.
func (t *Table) Clear(ctx context.Context) error {
	return pgx.BeginFunc(ctx, t.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM sheet_rows WHERE table_name = $1`, t.name); err != nil {
			return fmt.Errorf("clear rows %q: %w", t.name, err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM sheet_emphasis WHERE table_name = $1`, t.name); err != nil {
			return fmt.Errorf("clear emphasis %q: %w", t.name, err)
		}
		return nil
	})
}

// SetCellEmphasis implements store.Emphasizer.
func (t *Table) SetCellEmphasis(ctx context.Context, row, col int, style store.Style) error {
	if _, err := t.db.Exec(ctx, upsertEmphasisSQL, t.name, row, col, style.Bold, style.Color); err != nil {
		return fmt.Errorf("set emphasis %q (%d,%d): %w", t.name, row, col, err)
	}
	return nil
}

// Emphasis returns the stored style of a cell.
func (t *Table) Emphasis(ctx context.Context, row, col int) (store.Style, bool, error) {
	var s store.Style
	err := t.db.QueryRow(ctx,
		`SELECT bold, color FROM sheet_emphasis WHERE table_name = $1 AND row_index = $2 AND col_index = $3`,
		t.name, row, col,
	).Scan(&s.Bold, &s.Color)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.Style{}, false, nil
	}
	if err != nil {
		return store.Style{}, false, err
	}
	return s, true, nil
}

type querier interface {
	Query(context.Context, string, ...any) (pgx.Rows, error)
}

// loadRows fetches the stored rows in window keyed by row index.
func loadRows(ctx context.Context, q querier, name string, window store.Range) (map[int]sheet.Row, error) {
	rows, err := q.Query(ctx,
		`SELECT row_index, cells FROM sheet_rows
		 WHERE table_name = $1 AND row_index >= $2 AND row_index < $3
		 ORDER BY row_index`,
		name, window.Start, window.End,
	)
	if err != nil {
		return nil, fmt.Errorf("read rows %q: %w", name, err)
	}
	defer rows.Close()

	out := make(map[int]sheet.Row)
	for rows.Next() {
		var (
			idx int
			raw []byte
		)
		if err := rows.Scan(&idx, &raw); err != nil {
			return nil, fmt.Errorf("scan row %q: %w", name, err)
		}
		var r sheet.Row
		if err := json.Unmarshal(raw, &r); err != nil {
			return nil, fmt.Errorf("decode row %d of %q: %w", idx, name, err)
		}
		out[idx] = r
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read rows %q: %w", name, err)
	}
	return out, nil
}

// rowWidth is the index of the last non-blank cell plus one.
func rowWidth(r sheet.Row) int {
	for c := len(r) - 1; c >= 0; c-- {
		if !r[c].IsBlank() {
			return c + 1
		}
	}
	return 0
}
