package core

import (
	"context"
	"fmt"
	"time"

	"github.com/JonMunkholm/sheetpipe/internal/logging"
	"github.com/JonMunkholm/sheetpipe/internal/sheet"
	"github.com/JonMunkholm/sheetpipe/internal/store"
)

// SubtotalResult is returned by ResolveSubtotals.
type SubtotalResult struct {
	Table    string        `json:"table"`
	Column   int           `json:"column"`
	Replaced int           `json:"replaced"`
	Total    float64       `json:"total"`
	Elapsed  time.Duration `json:"elapsed"`
}

// replacement is a marker cell waiting for its subtotal.
type replacement struct {
	row int
	sum float64
}

// ResolveSubtotals scans the 1-based column top to bottom and replaces each
// marker with the running sum of all numeric values above it. The sum is
// never reset, so each marker receives the grand total so far. Replaced cells
// are emphasized bold red when the store supports it.
//
// Numbers add their value. Text adds its leading numeric value after "$" and
// "," are removed; text without one is ignored.
func ResolveSubtotals(ctx context.Context, st store.Store, table string, column int, b Batches) (SubtotalResult, error) {
	b = b.withDefaults()
	start := time.Now()
	res := SubtotalResult{Table: table, Column: column}

	if column < 1 {
		return res, stageErr(StageResolveSubtotals, table, ErrInvalidArgument,
			fmt.Sprintf("column must be 1 or greater, got %d", column))
	}
	log := logging.ForStage(ctx, StageResolveSubtotals, table).With("column", column)

	t, err := lookup(ctx, st, StageResolveSubtotals, table, "sheet not found")
	if err != nil {
		return res, err
	}
	rowCount, err := t.RowCount(ctx)
	if err != nil {
		return res, readErr(StageResolveSubtotals, table, err)
	}
	if rowCount < 2 {
		return res, stageErr(StageResolveSubtotals, table, ErrInsufficientData, "not enough data, need at least 2 rows")
	}

	col := column - 1
	it := store.NewRowIterator(t, store.Range{Start: 1, End: rowCount}, store.Span(col, 1), b.Read)

	var (
		sum     float64
		pending []replacement
	)
	for it.Next(ctx) {
		c := it.Row().At(0)
		if c.IsMarker() {
			pending = append(pending, replacement{row: it.Index(), sum: sum})
			log.Debug("found marker", "row", it.Index()+1, "running_sum", sum)
			continue
		}
		if v, ok := c.Numeric(); ok {
			sum += v
		}
	}
	if err := it.Err(); err != nil {
		return res, readErr(StageResolveSubtotals, table, err)
	}
	res.Total = sum
	log.Info("markers found", "count", len(pending), "values", rowCount-1)

	em, styled := t.(store.Emphasizer)
	for i := 0; i < len(pending); i += b.Replace {
		if err := ctx.Err(); err != nil {
			return res, writeErr(StageResolveSubtotals, table, "cancelled", err)
		}
		end := min(i+b.Replace, len(pending))
		for _, p := range pending[i:end] {
			if err := t.WriteRows(ctx, p.row, col, []sheet.Row{{sheet.Number(p.sum)}}); err != nil {
				log.Error("subtotal write failed", "error", err, "row", p.row+1, "replaced", res.Replaced)
				return res, writeErr(StageResolveSubtotals, table, fmt.Sprintf("write subtotal at row %d", p.row+1), err)
			}
			if styled {
				if err := em.SetCellEmphasis(ctx, p.row, col, store.Emphasis); err != nil {
					return res, writeErr(StageResolveSubtotals, table, fmt.Sprintf("emphasize row %d", p.row+1), err)
				}
			}
			res.Replaced++
		}
		if err := store.Flush(ctx, t); err != nil {
			return res, writeErr(StageResolveSubtotals, table, "flush subtotals", err)
		}
		log.Debug("processed replacements", "count", res.Replaced)
	}

	res.Elapsed = time.Since(start)
	log.Info("markers replaced with bold red sums", "replaced", res.Replaced, "elapsed", res.Elapsed)
	return res, nil
}
