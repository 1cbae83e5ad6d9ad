// Package xlsx is a Table Store backed by an Excel workbook. Every worksheet
// is a table; numeric cells keep their number type.
package xlsx

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"

	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/sheetpipe/internal/sheet"
	"github.com/JonMunkholm/sheetpipe/internal/store"
)

// Store wraps an excelize workbook.
type Store struct {
	mu     sync.Mutex
	file   *excelize.File
	path   string
	styles map[store.Style]int

	// SaveOnFlush writes the workbook to disk on every Flush. When false,
	// changes stay in memory until Save is called.
	SaveOnFlush bool
}

// Open opens the workbook at path. When the file does not exist and create
// is true, a new workbook is started and saved on the first flush.
func Open(path string, create bool) (*Store, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		if !create || !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("open workbook %s: %w", path, err)
		}
		f = excelize.NewFile()
	}
	return New(f, path), nil
}

// New wraps an already open workbook. An empty path keeps the workbook in
// memory only.
func New(f *excelize.File, path string) *Store {
	return &Store{
		file:        f,
		path:        path,
		styles:      make(map[store.Style]int),
		SaveOnFlush: path != "",
	}
}

// File returns the underlying workbook.
func (s *Store) File() *excelize.File { return s.file }

// Save writes the workbook to its path.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

func (s *Store) saveLocked() error {
	if s.path == "" {
		return nil
	}
	if err := s.file.SaveAs(s.path); err != nil {
		return fmt.Errorf("save workbook %s: %w", s.path, err)
	}
	return nil
}

// Close releases the workbook.
func (s *Store) Close() error {
	return s.file.Close()
}

// Table implements store.Store.
func (s *Store) Table(_ context.Context, name string) (store.Table, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := s.file.GetSheetIndex(name)
	if err != nil {
		return nil, fmt.Errorf("sheet %q: %w", name, err)
	}
	if idx == -1 {
		return nil, fmt.Errorf("%q: %w", name, store.ErrTableNotFound)
	}
	return &Table{store: s, name: name}, nil
}

// Tables implements store.Store.
func (s *Store) Tables(context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.GetSheetList(), nil
}

// CreateTable implements store.Store.
func (s *Store) CreateTable(_ context.Context, name string) (store.Table, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if idx, _ := s.file.GetSheetIndex(name); idx != -1 {
		return nil, fmt.Errorf("%q: %w", name, store.ErrTableExists)
	}
	if _, err := s.file.NewSheet(name); err != nil {
		return nil, fmt.Errorf("new sheet %q: %w", name, err)
	}
	return &Table{store: s, name: name}, nil
}

// Table is one worksheet.
type Table struct {
	store *Store
	name  string
}

// Name implements store.Table.
func (t *Table) Name() string { return t.name }

// grid returns the raw cell strings of the sheet. Caller holds the lock.
func (t *Table) grid() ([][]string, error) {
	rows, err := t.store.file.GetRows(t.name, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("get rows %q: %w", t.name, err)
	}
	return rows, nil
}

// RowCount implements store.Table.
func (t *Table) RowCount(context.Context) (int, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	grid, err := t.grid()
	if err != nil {
		return 0, err
	}
	for i := len(grid) - 1; i >= 0; i-- {
		for _, v := range grid[i] {
			if v != "" {
				return i + 1, nil
			}
		}
	}
	return 0, nil
}

// ColumnCount implements store.Table.
func (t *Table) ColumnCount(context.Context) (int, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	grid, err := t.grid()
	if err != nil {
		return 0, err
	}
	width := 0
	for _, r := range grid {
		for c := len(r) - 1; c >= width; c-- {
			if r[c] != "" {
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

	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	grid, err := t.grid()
	if err != nil {
		return nil, err
	}

	out := make([]sheet.Row, rows.Len())
	for i := range out {
		r := sheet.NewRow(cols.Len())
		ri := rows.Start + i
		if ri < len(grid) {
			for c := range r {
				ci := cols.Start + c
				if ci >= len(grid[ri]) || grid[ri][ci] == "" {
					continue
				}
				cell, err := t.decode(ri, ci, grid[ri][ci])
				if err != nil {
					return nil, err
				}
				r[c] = cell
			}
		}
		out[i] = r
	}
	return out, nil
}

// decode turns a raw cell string into a typed cell using the stored type.
func (t *Table) decode(row, col int, raw string) (sheet.Cell, error) {
	ref, err := excelize.CoordinatesToCellName(col+1, row+1)
	if err != nil {
		return sheet.Cell{}, err
	}
	typ, err := t.store.file.GetCellType(t.name, ref)
	if err != nil {
		return sheet.Cell{}, fmt.Errorf("cell type %s!%s: %w", t.name, ref, err)
	}

	switch typ {
	case excelize.CellTypeUnset, excelize.CellTypeNumber:
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			return sheet.Number(f), nil
		}
		return sheet.Text(raw), nil
	case excelize.CellTypeBool:
		if raw == "1" {
			return sheet.Text("TRUE"), nil
		}
		return sheet.Text("FALSE"), nil
	default:
		return sheet.Text(raw), nil
	}
}

// WriteRows implements store.Table.
func (t *Table) WriteRows(_ context.Context, startRow, startCol int, rows []sheet.Row) error {
	if startRow < 0 || startCol < 0 {
		return fmt.Errorf("invalid write origin (%d, %d)", startRow, startCol)
	}

	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	for i, r := range rows {
		if len(r) == 0 {
			continue
		}
		ref, err := excelize.CoordinatesToCellName(startCol+1, startRow+i+1)
		if err != nil {
			return err
		}
		values := make([]any, len(r))
		for c, cell := range r {
			values[c] = encode(cell)
		}
		if err := t.store.file.SetSheetRow(t.name, ref, &values); err != nil {
			return fmt.Errorf("set row %s!%s: %w", t.name, ref, err)
		}
	}
	return nil
}

func encode(c sheet.Cell) any {
	switch c.Kind() {
	case sheet.KindText:
		s, _ := c.TextValue()
		return s
	case sheet.KindNumber:
		f, _ := c.NumberValue()
		return f
	default:
		return nil
	}
}

// Clear implements store.Table. Rows are removed bottom-up so no cells have
// to shift.
func (t *Table) Clear(context.Context) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	grid, err := t.grid()
	if err != nil {
		return err
	}
	for r := len(grid); r >= 1; r-- {
		if err := t.store.file.RemoveRow(t.name, r); err != nil {
			return fmt.Errorf("remove row %d of %q: %w", r, t.name, err)
		}
	}
	return nil
}

// SetCellEmphasis implements store.Emphasizer.
func (t *Table) SetCellEmphasis(_ context.Context, row, col int, style store.Style) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	id, ok := t.store.styles[style]
	if !ok {
		var err error
		id, err = t.store.file.NewStyle(&excelize.Style{
			Font: &excelize.Font{Bold: style.Bold, Color: style.Color},
		})
		if err != nil {
			return fmt.Errorf("new style: %w", err)
		}
		t.store.styles[style] = id
	}

	ref, err := excelize.CoordinatesToCellName(col+1, row+1)
	if err != nil {
		return err
	}
	return t.store.file.SetCellStyle(t.name, ref, ref, id)
}

// Flush implements store.Flusher.
func (t *Table) Flush(context.Context) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	if !t.store.SaveOnFlush {
		return nil
	}
	return t.store.saveLocked()
}
