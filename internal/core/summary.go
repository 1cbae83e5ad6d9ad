package core

import (
	"context"
	"fmt"

	"github.com/montanaflynn/stats"

	"github.com/JonMunkholm/sheetpipe/internal/logging"
	"github.com/JonMunkholm/sheetpipe/internal/store"
)

// ColumnSummary describes the data cells of one column. Numeric statistics
// cover cells that count toward subtotals; they are zero when none do.
type ColumnSummary struct {
	Table   string `json:"table"`
	Column  int    `json:"column"`
	Header  string `json:"header"`
	Cells   int    `json:"cells"`
	Blank   int    `json:"blank"`
	Markers int    `json:"markers"`
	Numeric int    `json:"numeric"`

	Sum    float64 `json:"sum"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	StdDev float64 `json:"std_dev"`
}

// SummarizeColumn reads the 1-based column of table below the header and
// reports counts and basic statistics. It never writes.
func SummarizeColumn(ctx context.Context, st store.Store, table string, column int, b Batches) (ColumnSummary, error) {
	b = b.withDefaults()
	sum := ColumnSummary{Table: table, Column: column}
	if column < 1 {
		return sum, stageErr(StageSummary, table, ErrInvalidArgument,
			fmt.Sprintf("column must be 1 or greater, got %d", column))
	}

	t, err := lookup(ctx, st, StageSummary, table, "sheet not found")
	if err != nil {
		return sum, err
	}
	rowCount, err := t.RowCount(ctx)
	if err != nil {
		return sum, readErr(StageSummary, table, err)
	}
	if rowCount == 0 {
		return sum, nil
	}

	col := column - 1
	head, err := t.ReadRows(ctx, store.Span(0, 1), store.Span(col, 1))
	if err != nil {
		return sum, readErr(StageSummary, table, err)
	}
	sum.Header = head[0].At(0).String()

	var values stats.Float64Data
	it := store.NewRowIterator(t, store.Range{Start: 1, End: rowCount}, store.Span(col, 1), b.Read)
	for it.Next(ctx) {
		c := it.Row().At(0)
		sum.Cells++
		switch {
		case c.IsBlank():
			sum.Blank++
		case c.IsMarker():
			sum.Markers++
		default:
			if v, ok := c.Numeric(); ok {
				values = append(values, v)
			}
		}
	}
	if err := it.Err(); err != nil {
		return sum, readErr(StageSummary, table, err)
	}

	sum.Numeric = len(values)
	if len(values) == 0 {
		return sum, nil
	}
	// Errors only signal empty input, ruled out above.
	sum.Sum, _ = values.Sum()
	sum.Mean, _ = values.Mean()
	sum.Median, _ = values.Median()
	sum.Min, _ = values.Min()
	sum.Max, _ = values.Max()
	sum.StdDev, _ = values.StandardDeviation()

	logging.ForStage(ctx, StageSummary, table).Debug("column summarized",
		"column", column, "cells", sum.Cells, "numeric", sum.Numeric)
	return sum, nil
}

// ColumnSummary summarizes column (1-based; 0 means the configured marker
// column) of table (default: the destination table).
func (s *Service) ColumnSummary(ctx context.Context, table string, column int) (ColumnSummary, error) {
	table = tableOr(table, s.cfg.DestTable)
	if column == 0 {
		column = s.cfg.MarkerColumn
	}
	return SummarizeColumn(ctx, s.store, table, column, s.batches())
}
