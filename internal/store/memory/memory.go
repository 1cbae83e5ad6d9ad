// Package memory is a process-local Table Store.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JonMunkholm/sheetpipe/internal/sheet"
	"github.com/JonMunkholm/sheetpipe/internal/store"
)

// Store keeps tables in memory. It is safe for concurrent use.
type Store struct {
	mu     sync.RWMutex
	order  []string
	tables map[string]*Table
}

// New returns an empty store.
func New() *Store {
	return &Store{tables: make(map[string]*Table)}
}

// Table implements store.Store.
func (s *Store) Table(_ context.Context, name string) (store.Table, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tables[name]
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, store.ErrTableNotFound)
	}
	return t, nil
}

// Tables implements store.Store.
func (s *Store) Tables(context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, len(s.order))
	copy(out, s.order)
	return out, nil
}

// CreateTable implements store.Store.
func (s *Store) CreateTable(_ context.Context, name string) (store.Table, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tables[name]; ok {
		return nil, fmt.Errorf("%q: %w", name, store.ErrTableExists)
	}
	t := &Table{name: name, styles: make(map[cellPos]store.Style)}
	s.tables[name] = t
	s.order = append(s.order, name)
	return t, nil
}

// Put creates or replaces a table with the given rows.
func (s *Store) Put(name string, rows ...sheet.Row) *Table {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tables[name]
	if !ok {
		t = &Table{name: name}
		s.tables[name] = t
		s.order = append(s.order, name)
	}

	t.mu.Lock()
	t.rows = make([]sheet.Row, len(rows))
	for i, r := range rows {
		t.rows[i] = r.Clone()
	}
	t.styles = make(map[cellPos]store.Style)
	t.mu.Unlock()
	return t
}

type cellPos struct{ row, col int }

// Table is an in-memory table. Rows may be ragged internally; reads are
// always padded to the requested width.
type Table struct {
	name string

	mu     sync.RWMutex
	rows   []sheet.Row
	styles map[cellPos]store.Style

	// FailWrites, when set, is returned by WriteRows after the given number
	// of successful calls. Used to exercise partial-write handling.
	FailWrites error
	FailAfter  int
	writes     int
}

// Name implements store.Table.
func (t *Table) Name() string { return t.name }

// RowCount implements store.Table.
func (t *Table) RowCount(context.Context) (int, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for i := len(t.rows) - 1; i >= 0; i-- {
		if !t.rows[i].IsBlank() {
			return i + 1, nil
		}
	}
	return 0, nil
}

// ColumnCount implements store.Table.
func (t *Table) ColumnCount(context.Context) (int, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	width := 0
	for _, r := range t.rows {
		for c := len(r) - 1; c >= width; c-- {
			if !r[c].IsBlank() {
				width = c + 1
				break
			}
		}
	}
	return width, nil
}

// ReadRows implements store.Table.
func (t *Table) ReadRows(_ context.Context, rows, cols store.Range) ([]sheet.Row, error) {
	if err := rows.Validate(); err != nil {
		return nil, err
	}
	if err := cols.Validate(); err != nil {
		return nil, err
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]sheet.Row, rows.Len())
	for i := range out {
		r := sheet.NewRow(cols.Len())
		if src := rows.Start + i; src < len(t.rows) {
			for c := range r {
				r[c] = t.rows[src].At(cols.Start + c)
			}
		}
		out[i] = r
	}
	return out, nil
}

// WriteRows implements store.Table.
func (t *Table) WriteRows(_ context.Context, startRow, startCol int, rows []sheet.Row) error {
	if startRow < 0 || startCol < 0 {
		return fmt.Errorf("invalid write origin (%d, %d)", startRow, startCol)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.FailWrites != nil && t.writes >= t.FailAfter {
		return t.FailWrites
	}
	t.writes++

	for i, src := range rows {
		idx := startRow + i
		for len(t.rows) <= idx {
			t.rows = append(t.rows, nil)
		}
		dst := t.rows[idx]
		if need := startCol + len(src); len(dst) < need {
			dst = dst.Pad(need)
		}
		copy(dst[startCol:], src)
		t.rows[idx] = dst
	}
	return nil
}

// Clear implements store.Table.
func (t *Table) Clear(context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.rows = nil
	t.styles = make(map[cellPos]store.Style)
	return nil
}

// SetCellEmphasis implements store.Emphasizer.
func (t *Table) SetCellEmphasis(_ context.Context, row, col int, style store.Style) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.styles == nil {
		t.styles = make(map[cellPos]store.Style)
	}
	t.styles[cellPos{row, col}] = style
	return nil
}

// Emphasis returns the style set on a cell, if any.
func (t *Table) Emphasis(row, col int) (store.Style, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s, ok := t.styles[cellPos{row, col}]
	return s, ok
}

// Rows returns a copy of the stored rows, trimmed to RowCount and padded to
// ColumnCount.
func (t *Table) Rows() []sheet.Row {
	rows, _ := t.RowCount(context.Background())
	cols, _ := t.ColumnCount(context.Background())
	out, _ := t.ReadRows(context.Background(), store.Range{End: rows}, store.Range{End: cols})
	return out
}
