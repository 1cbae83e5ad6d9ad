package core

import (
	"context"
	"time"

	"github.com/JonMunkholm/sheetpipe/internal/logging"
	"github.com/JonMunkholm/sheetpipe/internal/sheet"
	"github.com/JonMunkholm/sheetpipe/internal/store"
)

// SeparateResult is returned by SortAndSeparate.
type SeparateResult struct {
	Table string `json:"table"`
	// RowsProcessed counts data rows kept after truncation, before
	// separators are added.
	RowsProcessed int `json:"rows_processed"`
	RowsWritten   int `json:"rows_written"`
	Groups        int `json:"groups"`
	// StopRow is the 0-based table row where reading stopped at two
	// consecutive blank rows, or -1 when the whole table was used.
	StopRow int           `json:"stop_row"`
	Elapsed time.Duration `json:"elapsed"`
}

// SortAndSeparate groups and sorts the data rows of table like SortByGroup
// and puts one blank row between adjacent groups. Data ends at the first
// pair of consecutive blank rows. Fully blank rows never join a group;
// rows with a blank key but other content group under the empty key.
//
// Rows are read and written in bounded batches. A failure while writing
// leaves the table partially written.
func SortAndSeparate(ctx context.Context, st store.Store, table string, b Batches) (SeparateResult, error) {
	b = b.withDefaults()
	start := time.Now()
	log := logging.ForStage(ctx, StageSeparate, table)
	res := SeparateResult{Table: table, StopRow: -1}

	t, err := lookup(ctx, st, StageSeparate, table, "sheet not found")
	if err != nil {
		return res, err
	}

	rowCount, err := t.RowCount(ctx)
	if err != nil {
		return res, readErr(StageSeparate, table, err)
	}
	colCount, err := t.ColumnCount(ctx)
	if err != nil {
		return res, readErr(StageSeparate, table, err)
	}
	log.Info("processing sheet", "rows", rowCount, "columns", colCount)
	if rowCount < 2 {
		return res, stageErr(StageSeparate, table, ErrInsufficientData, "not enough data to organize, need at least 2 rows")
	}

	cols := store.Span(0, colCount)
	head, err := t.ReadRows(ctx, store.Span(0, 1), cols)
	if err != nil {
		return res, readErr(StageSeparate, table, err)
	}
	header := head[0]

	it := store.NewRowIterator(t, store.Range{Start: 1, End: rowCount}, cols, b.Read)
	it.OnChunk = func(from, n int) {
		log.Debug("read rows", "from", from+1, "to", from+n)
	}
	data, err := it.Collect(ctx)
	if err != nil {
		return res, readErr(StageSeparate, table, err)
	}

	if stop := firstBlankPair(data); stop >= 0 {
		res.StopRow = stop + 1
		log.Info("stopping at two consecutive blank rows", "row", res.StopRow+1)
		data = data[:stop]
	}
	res.RowsProcessed = len(data)

	groups := groupRows(data, sheet.Row.IsBlank)
	out := make([]sheet.Row, 0, len(data)+len(groups))
	for i, g := range groups {
		if i > 0 {
			out = append(out, sheet.NewRow(colCount))
		}
		out = append(out, g.rows...)
	}
	res.Groups = len(groups)

	if err := t.Clear(ctx); err != nil {
		return res, writeErr(StageSeparate, table, "clear sheet", err)
	}
	if err := t.WriteRows(ctx, 0, 0, []sheet.Row{header}); err != nil {
		log.Error("header write failed", "error", err)
		return res, writeErr(StageSeparate, table, "write header", err)
	}
	err = store.WriteBatched(ctx, t, 1, 0, out, b.Write, func(from, n int) {
		res.RowsWritten += n
		log.Debug("wrote rows", "from", from+1, "to", from+n)
	})
	if err != nil {
		log.Error("separator write failed", "error", err, "rows_written", res.RowsWritten)
		return res, writeErr(StageSeparate, table, "write grouped rows", err)
	}
	if len(out) == 0 {
		if err := store.Flush(ctx, t); err != nil {
			return res, writeErr(StageSeparate, table, "flush header", err)
		}
	}

	res.Elapsed = time.Since(start)
	log.Info("data organization completed",
		"elapsed", res.Elapsed, "rows_processed", res.RowsProcessed, "groups", res.Groups)
	return res, nil
}

// firstBlankPair returns the index of the first row that is blank and
// followed by another blank row, or -1.
func firstBlankPair(rows []sheet.Row) int {
	for i := 0; i+1 < len(rows); i++ {
		if rows[i].IsBlank() && rows[i+1].IsBlank() {
			return i
		}
	}
	return -1
}
