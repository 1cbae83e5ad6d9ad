package core

import (
	"context"

	"github.com/JonMunkholm/sheetpipe/internal/logging"
	"github.com/JonMunkholm/sheetpipe/internal/sheet"
	"github.com/JonMunkholm/sheetpipe/internal/store"
)

// DefaultColumnMapping lists, for each destination column, the 0-based
// source column it is copied from.
var DefaultColumnMapping = []int{12, 1, 2, 4, 3, 0, 9, 14}

// Batches bounds how many rows a stage moves per store call.
type Batches struct {
	Read    int
	Write   int
	Replace int
}

func (b Batches) withDefaults() Batches {
	if b.Read <= 0 {
		b.Read = store.DefaultChunkSize
	}
	if b.Write <= 0 {
		b.Write = store.DefaultChunkSize
	}
	if b.Replace <= 0 {
		b.Replace = 100
	}
	return b
}

// RemapResult is returned by RemapColumns.
type RemapResult struct {
	Source  string `json:"source"`
	Dest    string `json:"dest"`
	Rows    int    `json:"rows"`
	Columns int    `json:"columns"`
}

// RemapColumns overwrites dest with the columns of source picked by mapping,
// header row included. Source columns past the source width become empty.
// The whole result is built before dest is cleared, so a failed
// precondition leaves dest untouched. The rows go out in a single write, so
// dest ends up holding either every mapped row or none of them.
func RemapColumns(ctx context.Context, st store.Store, source, dest string, mapping []int, b Batches) (RemapResult, error) {
	if len(mapping) == 0 {
		mapping = DefaultColumnMapping
	}
	log := logging.ForStage(ctx, StageRemap, dest).With("source", source)
	res := RemapResult{Source: source, Dest: dest, Columns: len(mapping)}

	for _, c := range mapping {
		if c < 0 {
			return res, stageErr(StageRemap, source, ErrInvalidArgument, "column mapping has a negative index")
		}
	}

	src, err := lookup(ctx, st, StageRemap, source, "source not found")
	if err != nil {
		return res, err
	}
	dst, err := lookup(ctx, st, StageRemap, dest, "destination not found")
	if err != nil {
		return res, err
	}

	rows, _, err := store.ReadAll(ctx, src)
	if err != nil {
		return res, readErr(StageRemap, source, err)
	}
	if len(rows) == 0 {
		return res, stageErr(StageRemap, source, ErrInsufficientData, "source sheet is empty, nothing to transfer")
	}

	out := make([]sheet.Row, len(rows))
	for i, r := range rows {
		out[i] = remapRow(r, mapping)
	}

	if err := dst.Clear(ctx); err != nil {
		return res, writeErr(StageRemap, dest, "clear destination", err)
	}
	if err := dst.WriteRows(ctx, 0, 0, out); err != nil {
		log.Error("remap write failed", "error", err)
		return res, writeErr(StageRemap, dest, "write destination", err)
	}
	if err := store.Flush(ctx, dst); err != nil {
		log.Error("remap flush failed", "error", err)
		return res, writeErr(StageRemap, dest, "flush destination", err)
	}

	res.Rows = len(out)
	log.Info("data transfer completed", "rows", res.Rows)
	return res, nil
}

func remapRow(r sheet.Row, mapping []int) sheet.Row {
	out := sheet.NewRow(len(mapping))
	for j, src := range mapping {
		out[j] = r.At(src)
	}
	return out
}
