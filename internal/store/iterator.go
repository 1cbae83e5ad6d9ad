package store

// iterator.go provides chunked, lazy reads and bounded batch writes.
//
// Large tables are read a chunk at a time so a stage never asks the backend
// for more than chunkSize rows per call, and written back in bounded batches
// with a flush after each so progress is visible to other readers.

import (
	"context"
	"fmt"

	"github.com/JonMunkholm/sheetpipe/internal/sheet"
)

// DefaultChunkSize is the number of rows read or written per backend call.
const DefaultChunkSize = 1000

// RowIterator walks a row window chunk by chunk. It is finite and cannot be
// restarted.
//
//	it := store.NewRowIterator(t, store.Range{Start: 1, End: n}, cols, 1000)
//	for it.Next(ctx) {
//	    idx, row := it.Index(), it.Row()
//	}
//	if err := it.Err(); err != nil { ... }
type RowIterator struct {
	table     Table
	rows      Range
	cols      Range
	chunkSize int

	next     int // next row index to fetch from the backend
	buf      []sheet.Row
	bufStart int
	pos      int
	cur      sheet.Row
	curIdx   int
	err      error
	done     bool

	// OnChunk, when set, is called after each chunk is fetched.
	OnChunk func(start, n int)
}

// NewRowIterator returns an iterator over rows in the window [rows) x [cols).
func NewRowIterator(t Table, rows, cols Range, chunkSize int) *RowIterator {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &RowIterator{
		table:     t,
		rows:      rows,
		cols:      cols,
		chunkSize: chunkSize,
		next:      rows.Start,
		curIdx:    -1,
	}
}

// Next advances to the next row, fetching a new chunk when needed.
func (it *RowIterator) Next(ctx context.Context) bool {
	if it.done {
		return false
	}
	if it.pos >= len(it.buf) {
		if !it.fetch(ctx) {
			it.done = true
			it.cur = nil
			return false
		}
	}
	it.cur = it.buf[it.pos]
	it.curIdx = it.bufStart + it.pos
	it.pos++
	return true
}

func (it *RowIterator) fetch(ctx context.Context) bool {
	if it.next >= it.rows.End {
		return false
	}
	if err := ctx.Err(); err != nil {
		it.err = err
		return false
	}

	n := min(it.chunkSize, it.rows.End-it.next)
	chunk, err := it.table.ReadRows(ctx, Span(it.next, n), it.cols)
	if err != nil {
		it.err = fmt.Errorf("read rows %d-%d: %w", it.next, it.next+n-1, err)
		return false
	}
	if it.OnChunk != nil {
		it.OnChunk(it.next, n)
	}

	it.buf = chunk
	it.bufStart = it.next
	it.pos = 0
	it.next += n
	return len(chunk) > 0
}

// Index returns the table row index of the current row.
func (it *RowIterator) Index() int { return it.curIdx }

// Row returns the current row.
func (it *RowIterator) Row() sheet.Row { return it.cur }

// Err returns the first error encountered.
func (it *RowIterator) Err() error { return it.err }

// Collect drains the iterator into a slice.
func (it *RowIterator) Collect(ctx context.Context) ([]sheet.Row, error) {
	var out []sheet.Row
	for it.Next(ctx) {
		out = append(out, it.Row())
	}
	return out, it.Err()
}

// WriteBatched writes rows starting at (startRow, startCol) in batches of at
// most batchSize, flushing the table after each batch. onBatch, when set, is
// called after each successful batch with the first row index and count.
//
// A failure leaves the batches before it written.
func WriteBatched(ctx context.Context, t Table, startRow, startCol int, rows []sheet.Row, batchSize int, onBatch func(start, n int)) error {
	if batchSize <= 0 {
		batchSize = DefaultChunkSize
	}
	for i := 0; i < len(rows); i += batchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(i+batchSize, len(rows))
		if err := t.WriteRows(ctx, startRow+i, startCol, rows[i:end]); err != nil {
			return fmt.Errorf("write rows %d-%d: %w", startRow+i, startRow+end-1, err)
		}
		if err := Flush(ctx, t); err != nil {
			return fmt.Errorf("flush after row %d: %w", startRow+end-1, err)
		}
		if onBatch != nil {
			onBatch(startRow+i, end-i)
		}
	}
	return nil
}
