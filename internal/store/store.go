// Package store defines the Table Store the pipeline stages read from and
// write to.
//
// A Store holds named rectangular tables. Stages resolve a table by name at
// the start of every run, read the rows they need, and write whole rows or
// column slices back. Backends live in the sub-packages:
//
//   - memory: process-local tables, used in tests and for dry runs
//   - xlsx: one workbook file, one sheet per table (excelize)
//   - postgres: tables persisted as JSONB rows (pgx)
//
// Row and column positions are zero-based everywhere in this package. Row 0
// is the header.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/JonMunkholm/sheetpipe/internal/sheet"
)

// ErrTableNotFound is returned by Store.Table when no table has the name.
var ErrTableNotFound = errors.New("table not found")

// ErrTableExists is returned by Store.CreateTable for a duplicate name.
var ErrTableExists = errors.New("table already exists")

// Store resolves tables by name.
type Store interface {
	// Table returns the named table or an error wrapping ErrTableNotFound.
	Table(ctx context.Context, name string) (Table, error)

	// Tables lists table names in store order.
	Tables(ctx context.Context) ([]string, error)

	// CreateTable adds an empty table.
	CreateTable(ctx context.Context, name string) (Table, error)
}

// Table is a handle on one named table.
type Table interface {
	Name() string

	// RowCount is the index of the last non-empty row plus one.
	RowCount(ctx context.Context) (int, error)

	// ColumnCount is the index of the last non-empty column plus one.
	ColumnCount(ctx context.Context) (int, error)

	// ReadRows returns the cells in the given window. Every returned row has
	// exactly cols.Len() cells; positions past the stored data are Empty.
	ReadRows(ctx context.Context, rows, cols Range) ([]sheet.Row, error)

	// WriteRows overwrites cells starting at (startRow, startCol). Each row
	// is written at its own length; the table grows as needed.
	WriteRows(ctx context.Context, startRow, startCol int, rows []sheet.Row) error

	// Clear removes every value and style from the table.
	Clear(ctx context.Context) error
}

// Style is the visual emphasis applied to a single cell.
type Style struct {
	Bold  bool
	Color string // RGB hex without '#', e.g. "FF0000"
}

// Emphasis is the bold red style used to flag computed subtotals.
var Emphasis = Style{Bold: true, Color: "FF0000"}

// Emphasizer is implemented by tables that can style individual cells.
type Emphasizer interface {
	SetCellEmphasis(ctx context.Context, row, col int, style Style) error
}

// Flusher is implemented by tables whose writes are buffered until flushed.
type Flusher interface {
	Flush(ctx context.Context) error
}

// Range is a half-open interval [Start, End) of rows or columns.
type Range struct {
	Start int
	End   int
}

// Span returns the range of n positions beginning at start.
func Span(start, n int) Range { return Range{Start: start, End: start + n} }

// Len returns the number of positions covered.
func (r Range) Len() int {
	if r.End <= r.Start {
		return 0
	}
	return r.End - r.Start
}

// Validate rejects negative or inverted ranges.
func (r Range) Validate() error {
	if r.Start < 0 || r.End < r.Start {
		return fmt.Errorf("invalid range [%d, %d)", r.Start, r.End)
	}
	return nil
}

// ReadAll reads the whole table as a rectangular grid.
func ReadAll(ctx context.Context, t Table) ([]sheet.Row, int, error) {
	rows, err := t.RowCount(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("row count: %w", err)
	}
	cols, err := t.ColumnCount(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("column count: %w", err)
	}
	if rows == 0 || cols == 0 {
		return nil, cols, nil
	}
	data, err := t.ReadRows(ctx, Range{0, rows}, Range{0, cols})
	if err != nil {
		return nil, cols, fmt.Errorf("read rows: %w", err)
	}
	return data, cols, nil
}

// Flush flushes t when it buffers writes.
func Flush(ctx context.Context, t Table) error {
	if f, ok := t.(Flusher); ok {
		return f.Flush(ctx)
	}
	return nil
}

// Lookup resolves name and wraps a missing table with the caller's label,
// e.g. "source" or "destination".
func Lookup(ctx context.Context, s Store, name, label string) (Table, error) {
	t, err := s.Table(ctx, name)
	if err != nil {
		if errors.Is(err, ErrTableNotFound) {
			return nil, fmt.Errorf("%s %q: %w", label, name, ErrTableNotFound)
		}
		return nil, fmt.Errorf("lookup %s %q: %w", label, name, err)
	}
	return t, nil
}
