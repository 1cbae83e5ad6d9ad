package core

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"time"

	"github.com/JonMunkholm/sheetpipe/internal/logging"
	"github.com/JonMunkholm/sheetpipe/internal/metrics"
	"github.com/JonMunkholm/sheetpipe/internal/sheet"
	"github.com/JonMunkholm/sheetpipe/internal/store"
)

// ImportResult is returned by ImportCSV.
type ImportResult struct {
	Table   string        `json:"table"`
	Created bool          `json:"created"`
	Rows    int           `json:"rows"`
	Columns int           `json:"columns"`
	Bytes   int64         `json:"bytes"`
	Elapsed time.Duration `json:"elapsed"`
}

// ExportResult is returned by ExportCSV.
type ExportResult struct {
	Table   string `json:"table"`
	Rows    int    `json:"rows"`
	Columns int    `json:"columns"`
}

// ImportCSV replaces the contents of table with the CSV read from r. When
// create is set a missing table is created first.
//
// Fields that parse as a plain number become numbers, empty fields become
// empty cells and everything else is kept as text. The first record is read
// before the table is touched, so an empty or unparseable file leaves it
// intact; a parse error later in the file leaves it partially written.
func ImportCSV(ctx context.Context, st store.Store, table string, r io.Reader, create bool, b Batches) (ImportResult, error) {
	b = b.withDefaults()
	start := time.Now()
	log := logging.ForStage(ctx, StageImport, table)
	res := ImportResult{Table: table}

	in, counter := wrapImport(r)
	cr := csv.NewReader(in)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	first, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return res, &StageError{Stage: StageImport, Table: table, Reason: "empty file"}
	}
	if err != nil {
		return res, &StageError{Stage: StageImport, Table: table, Reason: "invalid csv", Cause: err}
	}

	t, err := st.Table(ctx, table)
	switch {
	case errors.Is(err, store.ErrTableNotFound) && create:
		if t, err = st.CreateTable(ctx, table); err != nil {
			return res, writeErr(StageImport, table, "create table", err)
		}
		res.Created = true
		log.Info("created table")
	case errors.Is(err, store.ErrTableNotFound):
		return res, stageErr(StageImport, table, ErrTableNotFound, "sheet not found")
	case err != nil:
		return res, &StageError{Stage: StageImport, Table: table, Reason: "lookup failed", Cause: err}
	}

	if err := t.Clear(ctx); err != nil {
		return res, writeErr(StageImport, table, "clear sheet", err)
	}

	batch := make([]sheet.Row, 0, b.Write)
	flushBatch := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := t.WriteRows(ctx, res.Rows, 0, batch); err != nil {
			return writeErr(StageImport, table, fmt.Sprintf("write rows %d-%d", res.Rows+1, res.Rows+len(batch)), err)
		}
		res.Rows += len(batch)
		log.Debug("imported rows", "count", res.Rows)
		batch = batch[:0]
		return nil
	}

	record := first
	for {
		batch = append(batch, recordRow(record))
		res.Columns = max(res.Columns, len(record))
		if len(batch) == b.Write {
			if err := flushBatch(); err != nil {
				return res, err
			}
		}

		record, err = cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if ferr := flushBatch(); ferr != nil {
				return res, ferr
			}
			return res, &StageError{Stage: StageImport, Table: table, Reason: "invalid csv", Cause: err}
		}
	}
	if err := flushBatch(); err != nil {
		return res, err
	}
	if err := store.Flush(ctx, t); err != nil {
		return res, writeErr(StageImport, table, "flush import", err)
	}

	res.Bytes = counter.n
	res.Elapsed = time.Since(start)
	metrics.RecordCSV("import", res.Rows)
	log.Info("csv imported", "rows", res.Rows, "columns", res.Columns, "bytes", res.Bytes, "elapsed", res.Elapsed)
	return res, nil
}

// recordRow converts one CSV record into cells. The record may be reused by
// the reader, so fields are copied out.
func recordRow(record []string) sheet.Row {
	row := make(sheet.Row, len(record))
	for i, field := range record {
		row[i] = fieldCell(field)
	}
	return row
}

// decimalField matches plain decimal literals. strconv.ParseFloat alone
// would also accept "NaN", "Inf" and hex floats.
var decimalField = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

func fieldCell(field string) sheet.Cell {
	if field == "" {
		return sheet.Empty()
	}
	if decimalField.MatchString(field) {
		if f, err := strconv.ParseFloat(field, 64); err == nil {
			return sheet.Number(f)
		}
	}
	return sheet.Text(field)
}

// ExportCSV writes every row of table to w as CSV, padded to the table's
// column count. Numbers are written the way they display.
func ExportCSV(ctx context.Context, st store.Store, table string, w io.Writer, b Batches) (ExportResult, error) {
	b = b.withDefaults()
	res := ExportResult{Table: table}

	t, err := lookup(ctx, st, StageExport, table, "sheet not found")
	if err != nil {
		return res, err
	}
	rowCount, err := t.RowCount(ctx)
	if err != nil {
		return res, readErr(StageExport, table, err)
	}
	colCount, err := t.ColumnCount(ctx)
	if err != nil {
		return res, readErr(StageExport, table, err)
	}
	res.Columns = colCount

	cw := csv.NewWriter(w)
	it := store.NewRowIterator(t, store.Span(0, rowCount), store.Span(0, colCount), b.Read)
	for it.Next(ctx) {
		if err := cw.Write(it.Row().Pad(colCount).Strings()); err != nil {
			return res, &StageError{Stage: StageExport, Table: table, Reason: "write csv", Cause: err}
		}
		res.Rows++
	}
	if err := it.Err(); err != nil {
		return res, readErr(StageExport, table, err)
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return res, &StageError{Stage: StageExport, Table: table, Reason: "write csv", Cause: err}
	}

	metrics.RecordCSV("export", res.Rows)
	logging.ForStage(ctx, StageExport, table).Info("csv exported", "rows", res.Rows, "columns", res.Columns)
	return res, nil
}

// ImportCSV imports r into table under a run slot and records the run.
func (s *Service) ImportCSV(ctx context.Context, table string, r io.Reader, create bool) (Outcome[ImportResult], error) {
	return runStage(ctx, s, StageImport, table,
		func(ctx context.Context) (ImportResult, error) {
			return ImportCSV(ctx, s.store, table, r, create, s.batches())
		},
		importNotice)
}

// ExportCSV writes table to w. Exports only read, so they take no run slot
// and are not recorded.
func (s *Service) ExportCSV(ctx context.Context, table string, w io.Writer) (ExportResult, error) {
	start := s.now()
	res, err := ExportCSV(ctx, s.store, table, w, s.batches())
	metrics.RecordStage(StageExport, metrics.Result(err), s.now().Sub(start))
	return res, err
}

func (r ImportResult) changed() int { return r.Rows }

func importNotice(r ImportResult) Notice {
	return Notice{Level: NoticeSuccess, Title: "Success",
		Message: fmt.Sprintf("Imported %d rows into %s in %s", r.Rows, r.Table, seconds(r.Elapsed))}
}
