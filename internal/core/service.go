package core

import (
	"context"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/sheetpipe/internal/config"
	"github.com/JonMunkholm/sheetpipe/internal/logging"
	"github.com/JonMunkholm/sheetpipe/internal/metrics"
	"github.com/JonMunkholm/sheetpipe/internal/sheet"
	"github.com/JonMunkholm/sheetpipe/internal/store"
)

// Service runs pipeline stages against one table store. Runs are
// serialized through a RunLimiter and recorded in an in-memory History.
type Service struct {
	store   store.Store
	cfg     config.PipelineConfig
	limiter *RunLimiter
	history *History
	now     func() time.Time
}

// Outcome is what a Service call returns: the stage result, the notice
// shown to the operator and the ID of the run record.
type Outcome[T any] struct {
	RunID  string `json:"run_id"`
	Result T      `json:"result"`
	Notice Notice `json:"notice"`
}

// NewService creates a Service over st.
func NewService(st store.Store, cfg config.PipelineConfig) *Service {
	if cfg.MarkerColumn <= 0 {
		cfg.MarkerColumn = DefaultMarkerColumn
	}
	return &Service{
		store:   st,
		cfg:     cfg,
		limiter: NewRunLimiter(cfg.MaxConcurrent, cfg.MaxWaitTime),
		history: NewHistory(cfg.HistorySize),
		now:     time.Now,
	}
}

// Store returns the underlying table store.
func (s *Service) Store() store.Store { return s.store }

// Config returns the pipeline settings.
func (s *Service) Config() config.PipelineConfig { return s.cfg }

// Limiter returns the run limiter, for status reporting and shutdown drain.
func (s *Service) Limiter() *RunLimiter { return s.limiter }

// Runs returns up to limit run records, newest first.
func (s *Service) Runs(limit int) []RunRecord { return s.history.List(limit) }

// Run returns one run record by ID.
func (s *Service) Run(id string) (RunRecord, bool) { return s.history.Get(id) }

func (s *Service) batches() Batches {
	return Batches{
		Read:    s.cfg.ReadBatchSize,
		Write:   s.cfg.WriteBatchSize,
		Replace: s.cfg.ReplaceBatchSize,
	}
}

// tableOr returns name, or def when name is empty.
func tableOr(name, def string) string {
	if name == "" {
		return def
	}
	return name
}

// NormalizeHeader capitalizes the header words of table (default: the
// configured header table).
func (s *Service) NormalizeHeader(ctx context.Context, table string) (Outcome[HeaderResult], error) {
	table = tableOr(table, s.cfg.HeaderTable)
	return runStage(ctx, s, StageNormalizeHeader, table,
		func(ctx context.Context) (HeaderResult, error) { return NormalizeHeader(ctx, s.store, table) },
		headerNotice)
}

// RemapColumns copies the configured source table into the destination
// table using DefaultColumnMapping.
func (s *Service) RemapColumns(ctx context.Context) (Outcome[RemapResult], error) {
	return runStage(ctx, s, StageRemap, s.cfg.DestTable,
		func(ctx context.Context) (RemapResult, error) {
			return RemapColumns(ctx, s.store, s.cfg.SourceTable, s.cfg.DestTable, DefaultColumnMapping, s.batches())
		},
		remapNotice)
}

// SortByGroup groups and sorts table (default: the destination table).
func (s *Service) SortByGroup(ctx context.Context, table string) (Outcome[GroupResult], error) {
	table = tableOr(table, s.cfg.DestTable)
	return runStage(ctx, s, StageSort, table,
		func(ctx context.Context) (GroupResult, error) { return SortByGroup(ctx, s.store, table, s.batches()) },
		sortNotice)
}

// SortAndSeparate groups, sorts and separates table (default: the
// destination table).
func (s *Service) SortAndSeparate(ctx context.Context, table string) (Outcome[SeparateResult], error) {
	table = tableOr(table, s.cfg.DestTable)
	return runStage(ctx, s, StageSeparate, table,
		func(ctx context.Context) (SeparateResult, error) { return SortAndSeparate(ctx, s.store, table, s.batches()) },
		separateNotice)
}

// FillMarkers fills blank cells of column (1-based; 0 means the configured
// marker column) in table with the marker.
func (s *Service) FillMarkers(ctx context.Context, table string, column int) (Outcome[MarkerResult], error) {
	table = tableOr(table, s.cfg.DestTable)
	if column == 0 {
		column = s.cfg.MarkerColumn
	}
	return runStage(ctx, s, StageFillMarkers, table,
		func(ctx context.Context) (MarkerResult, error) {
			return FillMarkers(ctx, s.store, table, column, s.batches())
		},
		markerNotice)
}

// ResolveSubtotals replaces markers in column (1-based; 0 means the
// configured marker column) of table with running subtotals.
func (s *Service) ResolveSubtotals(ctx context.Context, table string, column int) (Outcome[SubtotalResult], error) {
	table = tableOr(table, s.cfg.DestTable)
	if column == 0 {
		column = s.cfg.MarkerColumn
	}
	return runStage(ctx, s, StageResolveSubtotals, table,
		func(ctx context.Context) (SubtotalResult, error) {
			return ResolveSubtotals(ctx, s.store, table, column, s.batches())
		},
		subtotalNotice)
}

// runStage runs one stage as its own run: it takes a slot, records the run
// and its checksum, updates metrics and logs the notice.
func runStage[T any](ctx context.Context, s *Service, stage, table string, fn func(context.Context) (T, error), notice func(T) Notice) (Outcome[T], error) {
	rec := s.startRun(ctx, stage)
	out := Outcome[T]{RunID: rec.ID}
	ctx = logging.WithRunID(ctx, rec.ID)

	if err := s.acquire(ctx); err != nil {
		metrics.RecordStage(stage, metrics.ResultBusy, 0)
		out.Notice = noticeForError(err)
		s.finish(ctx, rec.ID, stage, out.Notice, err)
		return out, err
	}
	defer s.release()

	res, step, err := execStep(ctx, s, stage, table, fn)
	out.Result = res
	if err != nil {
		out.Notice = noticeForError(err)
	} else {
		out.Notice = notice(res)
	}
	s.history.Update(rec.ID, func(r *RunRecord) { r.Steps = append(r.Steps, step) })
	s.finish(ctx, rec.ID, stage, out.Notice, err)
	return out, err
}

// startRun records a running entry of kind along with the origin in ctx.
func (s *Service) startRun(ctx context.Context, kind string) *RunRecord {
	rec := s.history.Start(kind, s.now())
	if o := OriginFromContext(ctx); o != (Origin{}) {
		s.history.Update(rec.ID, func(r *RunRecord) { r.Origin = o })
	}
	return rec
}

// execStep runs fn and builds its step record. The caller holds a slot.
func execStep[T any](ctx context.Context, s *Service, stage, table string, fn func(context.Context) (T, error)) (T, StepRecord, error) {
	start := s.now()
	res, err := fn(ctx)
	step := StepRecord{Stage: stage, Table: table, Duration: s.now().Sub(start)}

	metrics.RecordStage(stage, metrics.Result(err), step.Duration)
	if c, ok := any(res).(interface{ changed() int }); ok {
		metrics.RecordChanged(stage, c.changed())
	}

	if err != nil {
		step.Error = err.Error()
		return res, step, err
	}
	if t, lerr := s.store.Table(ctx, table); lerr == nil {
		if sum, cerr := TableChecksum(ctx, t); cerr == nil {
			step.Checksum = sum
		} else {
			logging.FromContext(ctx).Warn("checksum failed", "stage", stage, "table", table, "error", cerr)
		}
	}
	return res, step, nil
}

func (s *Service) acquire(ctx context.Context) error {
	if err := s.limiter.Acquire(ctx); err != nil {
		return err
	}
	metrics.RunStarted()
	return nil
}

func (s *Service) release() {
	metrics.RunFinished()
	s.limiter.Release()
}

// finish closes the run record and logs the notice.
func (s *Service) finish(ctx context.Context, id, kind string, n Notice, err error) {
	logNotice(ctx, kind, n)
	now := s.now()
	s.history.Update(id, func(r *RunRecord) {
		r.FinishedAt = now
		r.Notices = append(r.Notices, n)
		if err != nil {
			r.Status = RunFailed
			r.Error = err.Error()
			r.ErrorCode = MapError(err).Code
			return
		}
		r.Status = RunSucceeded
	})
}

func (r HeaderResult) changed() int   { return len(r.Changes) }
func (r RemapResult) changed() int    { return r.Rows }
func (r GroupResult) changed() int    { return r.Rows }
func (r SeparateResult) changed() int { return r.RowsWritten }
func (r MarkerResult) changed() int   { return r.Modified }
func (r SubtotalResult) changed() int { return r.Replaced }

func headerNotice(r HeaderResult) Notice {
	switch r.Status {
	case HeaderModified:
		return Notice{Level: NoticeSuccess, Title: "Success", Message: fmt.Sprintf("Successfully capitalized row 1 in %s", r.Table)}
	case HeaderEmpty:
		return Notice{Level: NoticeInfo, Title: "Information", Message: fmt.Sprintf("Sheet %s is empty. No data to modify.", r.Table)}
	case HeaderNotFound:
		return Notice{Level: NoticeWarning, Title: "Warning", Message: fmt.Sprintf("Sheet '%s' not found", r.Table)}
	default:
		return Notice{Level: NoticeInfo, Title: "Information", Message: fmt.Sprintf("No changes were needed in row 1 of %s", r.Table)}
	}
}

func remapNotice(r RemapResult) Notice {
	return Notice{Level: NoticeSuccess, Title: "Success",
		Message: fmt.Sprintf("Data transfer from %s to %s completed successfully! %d rows copied.", r.Source, r.Dest, r.Rows)}
}

func sortNotice(r GroupResult) Notice {
	return Notice{Level: NoticeSuccess, Title: "Success",
		Message: fmt.Sprintf("Data in %s has been organized by unique values in column A.", r.Table)}
}

func separateNotice(r SeparateResult) Notice {
	return Notice{Level: NoticeSuccess, Title: "Success",
		Message: fmt.Sprintf("Data organized with empty rows between groups. Processed %d rows in %s",
			r.RowsProcessed, seconds(r.Elapsed))}
}

func markerNotice(r MarkerResult) Notice {
	return Notice{Level: NoticeSuccess, Title: "Success",
		Message: fmt.Sprintf("Added '%s' to %d blank cells in column %s in %s",
			sheet.Marker, r.Modified, columnName(r.Column), seconds(r.Elapsed))}
}

func subtotalNotice(r SubtotalResult) Notice {
	return Notice{Level: NoticeSuccess, Title: "Success",
		Message: fmt.Sprintf("Replaced %d 'x' values with bold red sums in column %s in %s",
			r.Replaced, columnName(r.Column), seconds(r.Elapsed))}
}

func seconds(d time.Duration) string {
	return fmt.Sprintf("%.3f seconds", d.Seconds())
}

// columnName returns the spreadsheet letter of a 1-based column.
func columnName(col int) string {
	name, err := excelize.ColumnNumberToName(col)
	if err != nil {
		return fmt.Sprintf("#%d", col)
	}
	return name
}
