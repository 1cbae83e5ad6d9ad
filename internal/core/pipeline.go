package core

import (
	"context"

	"github.com/JonMunkholm/sheetpipe/internal/logging"
	"github.com/JonMunkholm/sheetpipe/internal/metrics"
)

// PipelineSteps is the fixed order of a full run.
var PipelineSteps = []string{StageRemap, StageSeparate, StageFillMarkers, StageResolveSubtotals}

// PipelineResult holds the result of every stage that completed.
type PipelineResult struct {
	Remap       *RemapResult    `json:"remap,omitempty"`
	Separate    *SeparateResult `json:"separate,omitempty"`
	Markers     *MarkerResult   `json:"markers,omitempty"`
	Subtotals   *SubtotalResult `json:"subtotals,omitempty"`
	Completed   []string        `json:"completed"`
	FailedStage string          `json:"failed_stage,omitempty"`
}

// RunPipeline runs remap, separate, fill markers and resolve subtotals on
// the destination table, in that order, holding one run slot throughout.
// It stops at the first failing stage and returns what completed; nothing
// is rolled back.
func (s *Service) RunPipeline(ctx context.Context) (Outcome[PipelineResult], error) {
	rec := s.startRun(ctx, StagePipeline)
	out := Outcome[PipelineResult]{RunID: rec.ID}
	out.Result.Completed = []string{}
	ctx = logging.WithRunID(ctx, rec.ID)
	log := logging.WithFields(ctx, "stage", StagePipeline)

	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	if err := s.acquire(ctx); err != nil {
		metrics.RecordPipeline(metrics.ResultBusy)
		out.Notice = noticeForError(err)
		s.finish(ctx, rec.ID, StagePipeline, out.Notice, err)
		return out, err
	}
	defer s.release()

	log.Info("starting pipeline", "source", s.cfg.SourceTable, "dest", s.cfg.DestTable)

	dest, col, b := s.cfg.DestTable, s.cfg.MarkerColumn, s.batches()
	steps := []struct {
		name string
		run  func(context.Context) (StepRecord, Notice, error)
	}{
		{StageRemap, func(ctx context.Context) (StepRecord, Notice, error) {
			res, step, err := execStep(ctx, s, StageRemap, dest, func(ctx context.Context) (RemapResult, error) {
				return RemapColumns(ctx, s.store, s.cfg.SourceTable, dest, DefaultColumnMapping, b)
			})
			if err == nil {
				out.Result.Remap = &res
			}
			return step, remapNotice(res), err
		}},
		{StageSeparate, func(ctx context.Context) (StepRecord, Notice, error) {
			res, step, err := execStep(ctx, s, StageSeparate, dest, func(ctx context.Context) (SeparateResult, error) {
				return SortAndSeparate(ctx, s.store, dest, b)
			})
			if err == nil {
				out.Result.Separate = &res
			}
			return step, separateNotice(res), err
		}},
		{StageFillMarkers, func(ctx context.Context) (StepRecord, Notice, error) {
			res, step, err := execStep(ctx, s, StageFillMarkers, dest, func(ctx context.Context) (MarkerResult, error) {
				return FillMarkers(ctx, s.store, dest, col, b)
			})
			if err == nil {
				out.Result.Markers = &res
			}
			return step, markerNotice(res), err
		}},
		{StageResolveSubtotals, func(ctx context.Context) (StepRecord, Notice, error) {
			res, step, err := execStep(ctx, s, StageResolveSubtotals, dest, func(ctx context.Context) (SubtotalResult, error) {
				return ResolveSubtotals(ctx, s.store, dest, col, b)
			})
			if err == nil {
				out.Result.Subtotals = &res
			}
			return step, subtotalNotice(res), err
		}},
	}

	for _, st := range steps {
		log.Info("executing step", "step", st.name)
		step, n, err := st.run(ctx)
		if err != nil {
			n = noticeForError(err)
		}
		logNotice(ctx, st.name, n)
		s.history.Update(rec.ID, func(r *RunRecord) {
			r.Steps = append(r.Steps, step)
			r.Notices = append(r.Notices, n)
		})

		if err != nil {
			out.Result.FailedStage = st.name
			out.Notice = noticeForError(err)
			metrics.RecordPipeline(metrics.ResultError)
			s.finish(ctx, rec.ID, StagePipeline, out.Notice, err)
			return out, err
		}
		out.Result.Completed = append(out.Result.Completed, st.name)
	}

	out.Notice = Notice{Level: NoticeSuccess, Title: "Success", Message: "All steps executed successfully!"}
	metrics.RecordPipeline(metrics.ResultSuccess)
	s.finish(ctx, rec.ID, StagePipeline, out.Notice, nil)
	return out, nil
}
