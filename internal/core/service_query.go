package core

import (
	"context"
	"fmt"

	"github.com/JonMunkholm/sheetpipe/internal/sheet"
	"github.com/JonMunkholm/sheetpipe/internal/store"
)

// DefaultPageSize is the number of data rows a table view returns when the
// caller does not ask for a size.
const DefaultPageSize = 100

// MaxPageSize caps a table view page.
const MaxPageSize = 1000

// TableInfo describes one table in the store.
type TableInfo struct {
	Name    string `json:"name"`
	Rows    int    `json:"rows"`
	Columns int    `json:"columns"`
	// Error is set when the table's size could not be read.
	Error string `json:"error,omitempty"`
}

// ListTables returns every table with its size, in store order. A table
// whose size cannot be read is still listed, with Error set.
func (s *Service) ListTables(ctx context.Context) ([]TableInfo, error) {
	names, err := s.store.Tables(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}

	infos := make([]TableInfo, 0, len(names))
	for _, name := range names {
		info := TableInfo{Name: name}
		if err := tableSize(ctx, s.store, &info); err != nil {
			info.Error = err.Error()
		}
		infos = append(infos, info)
	}
	return infos, nil
}

func tableSize(ctx context.Context, st store.Store, info *TableInfo) error {
	t, err := st.Table(ctx, info.Name)
	if err != nil {
		return err
	}
	if info.Rows, err = t.RowCount(ctx); err != nil {
		return fmt.Errorf("row count: %w", err)
	}
	if info.Columns, err = t.ColumnCount(ctx); err != nil {
		return fmt.Errorf("column count: %w", err)
	}
	return nil
}

// TablePage is one page of a table: the header plus a window of data rows.
type TablePage struct {
	TableInfo
	Header     sheet.Row   `json:"header"`
	Data       []sheet.Row `json:"data"`
	Page       int         `json:"page"`
	PageSize   int         `json:"page_size"`
	TotalPages int         `json:"total_pages"`
}

// TableData returns page (1-based) of table's data rows. Out of range pages
// are clamped to the last page.
func (s *Service) TableData(ctx context.Context, table string, page, pageSize int) (TablePage, error) {
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	pageSize = min(pageSize, MaxPageSize)

	res := TablePage{TableInfo: TableInfo{Name: table}, PageSize: pageSize, Header: sheet.Row{}, Data: []sheet.Row{}}
	t, err := lookup(ctx, s.store, StageView, table, "sheet not found")
	if err != nil {
		return res, err
	}
	if err := tableSize(ctx, s.store, &res.TableInfo); err != nil {
		return res, readErr(StageView, table, err)
	}

	dataRows := max(res.Rows-1, 0)
	res.TotalPages = max((dataRows+pageSize-1)/pageSize, 1)
	res.Page = min(max(page, 1), res.TotalPages)
	if res.Rows == 0 || res.Columns == 0 {
		return res, nil
	}

	cols := store.Span(0, res.Columns)
	head, err := t.ReadRows(ctx, store.Span(0, 1), cols)
	if err != nil {
		return res, readErr(StageView, table, err)
	}
	res.Header = head[0]

	start := 1 + (res.Page-1)*pageSize
	n := min(pageSize, res.Rows-start)
	if n > 0 {
		rows, err := t.ReadRows(ctx, store.Span(start, n), cols)
		if err != nil {
			return res, readErr(StageView, table, err)
		}
		res.Data = rows
	}
	return res, nil
}
