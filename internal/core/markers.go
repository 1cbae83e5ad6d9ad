package core

import (
	"context"
	"fmt"
	"time"

	"github.com/JonMunkholm/sheetpipe/internal/logging"
	"github.com/JonMunkholm/sheetpipe/internal/sheet"
	"github.com/JonMunkholm/sheetpipe/internal/store"
)

// DefaultMarkerColumn is the 1-based column markers go into.
const DefaultMarkerColumn = 8

// MarkerResult is returned by FillMarkers.
type MarkerResult struct {
	Table    string        `json:"table"`
	Column   int           `json:"column"`
	Modified int           `json:"modified"`
	Elapsed  time.Duration `json:"elapsed"`
}

// FillMarkers writes the marker into every blank cell of the 1-based column
// below the header. Cells that already hold a value are never written.
func FillMarkers(ctx context.Context, st store.Store, table string, column int, b Batches) (MarkerResult, error) {
	b = b.withDefaults()
	start := time.Now()
	res := MarkerResult{Table: table, Column: column}

	if column < 1 {
		return res, stageErr(StageFillMarkers, table, ErrInvalidArgument,
			fmt.Sprintf("column must be 1 or greater, got %d", column))
	}
	log := logging.ForStage(ctx, StageFillMarkers, table).With("column", column)

	t, err := lookup(ctx, st, StageFillMarkers, table, "sheet not found")
	if err != nil {
		return res, err
	}
	rowCount, err := t.RowCount(ctx)
	if err != nil {
		return res, readErr(StageFillMarkers, table, err)
	}
	if rowCount < 2 {
		return res, stageErr(StageFillMarkers, table, ErrInsufficientData, "not enough data, need at least 2 rows")
	}

	col := column - 1
	for first := 1; first < rowCount; first += b.Read {
		if err := ctx.Err(); err != nil {
			return res, writeErr(StageFillMarkers, table, "cancelled", err)
		}
		n := min(b.Read, rowCount-first)
		chunk, err := t.ReadRows(ctx, store.Span(first, n), store.Span(col, 1))
		if err != nil {
			return res, readErr(StageFillMarkers, table, err)
		}

		changed, err := fillBlankRuns(ctx, t, first, col, chunk)
		res.Modified += changed
		if err != nil {
			log.Error("marker write failed", "error", err, "modified", res.Modified)
			return res, writeErr(StageFillMarkers, table, "write markers", err)
		}
		if changed > 0 {
			if err := store.Flush(ctx, t); err != nil {
				return res, writeErr(StageFillMarkers, table, "flush markers", err)
			}
			log.Debug("modified cells", "count", changed, "from", first+1, "to", first+n)
		}
	}

	res.Elapsed = time.Since(start)
	log.Info("markers added to blank cells", "modified", res.Modified, "elapsed", res.Elapsed)
	return res, nil
}

// fillBlankRuns writes the marker over each run of consecutive blank cells
// in a single-column chunk that begins at table row first.
func fillBlankRuns(ctx context.Context, t store.Table, first, col int, chunk []sheet.Row) (int, error) {
	changed := 0
	for i := 0; i < len(chunk); {
		if !chunk[i].At(0).IsBlank() {
			i++
			continue
		}
		j := i
		var run []sheet.Row
		for j < len(chunk) && chunk[j].At(0).IsBlank() {
			run = append(run, sheet.Row{sheet.Text(sheet.Marker)})
			j++
		}
		if err := t.WriteRows(ctx, first+i, col, run); err != nil {
			return changed, err
		}
		changed += len(run)
		i = j
	}
	return changed, nil
}
