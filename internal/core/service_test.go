package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/sheetpipe/internal/config"
	"github.com/JonMunkholm/sheetpipe/internal/sheet"
	"github.com/JonMunkholm/sheetpipe/internal/store/memory"
)

func testPipelineConfig() config.PipelineConfig {
	return config.PipelineConfig{
		SourceTable:   "S1",
		DestTable:     "S2",
		HeaderTable:   "S1",
		MarkerColumn:  8,
		MaxConcurrent: 1,
		MaxWaitTime:   20 * time.Millisecond,
		Timeout:       time.Minute,
		HistorySize:   10,
	}
}

// pipelineSource builds a source row with the key in column M, the amount
// in column O and an id in column A.
func pipelineSource(id, key string, amount any) sheet.Row {
	r := sheet.NewRow(15)
	r[0] = sheet.Text(id)
	r[12] = sheet.CellOf(key)
	r[14] = sheet.CellOf(amount)
	return r
}

func TestService_RunPipeline(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	st.Put("S1",
		pipelineSource("ID", "Key", "Amount"),
		pipelineSource("r1", "b", 10),
		pipelineSource("r2", "a", nil),
		pipelineSource("r3", "a", 5),
		pipelineSource("r4", "b", nil),
	)
	dest := st.Put("S2")
	svc := NewService(st, testPipelineConfig())

	out, err := svc.RunPipeline(ctx)
	require.NoError(t, err)
	assert.Equal(t, PipelineSteps, out.Result.Completed)
	assert.Empty(t, out.Result.FailedStage)
	assert.Equal(t, "All steps executed successfully!", out.Notice.Message)
	require.NotNil(t, out.Result.Subtotals)
	assert.Equal(t, 3, out.Result.Subtotals.Replaced)

	// Rows: header, a/r2, a/r3, separator, b/r1, b/r4. Every blank cell of
	// column H, the separator included, became a marker and then a running
	// total.
	rows := dest.Rows()
	require.Len(t, rows, 6)
	wantIDs := []string{"ID", "r2", "r3", "", "r1", "r4"}
	wantH := []sheet.Cell{sheet.Text("Amount"), sheet.Number(0), sheet.Number(5), sheet.Number(5), sheet.Number(10), sheet.Number(15)}
	for i, r := range rows {
		assert.Equal(t, wantIDs[i], r.At(5).String(), "row %d id", i)
		assert.True(t, r.At(7).Equal(wantH[i]), "row %d column H = %#v, want %#v", i, r.At(7), wantH[i])
	}

	rec, ok := svc.Run(out.RunID)
	require.True(t, ok)
	assert.Equal(t, StagePipeline, rec.Kind)
	assert.Equal(t, RunSucceeded, rec.Status)
	require.Len(t, rec.Steps, 4)
	for i, step := range rec.Steps {
		assert.Equal(t, PipelineSteps[i], step.Stage)
		assert.NotEmpty(t, step.Checksum, "step %s checksum", step.Stage)
	}
	assert.Len(t, rec.Notices, 5)
	assert.False(t, rec.FinishedAt.IsZero())
}

func TestService_RunPipeline_StopsAtFirstFailure(t *testing.T) {
	tests := []struct {
		name          string
		setup         func(st *memory.Store)
		wantStage     string
		wantCompleted []string
		wantCode      string
	}{
		{
			name: "missing source",
			setup: func(st *memory.Store) {
				st.Put("S2")
			},
			wantStage:     StageRemap,
			wantCompleted: []string{},
			wantCode:      "TBL001",
		},
		{
			name: "write failure in separator",
			setup: func(st *memory.Store) {
				st.Put("S1", pipelineSource("ID", "Key", "Amount"), pipelineSource("r1", "a", 1))
				dest := st.Put("S2")
				dest.FailWrites = errors.New("quota exceeded")
				dest.FailAfter = 1
			},
			wantStage:     StageSeparate,
			wantCompleted: []string{StageRemap},
			wantCode:      "WRT001",
		},
		{
			name: "header only source",
			setup: func(st *memory.Store) {
				st.Put("S1", pipelineSource("ID", "Key", "Amount"))
				st.Put("S2")
			},
			wantStage:     StageSeparate,
			wantCompleted: []string{StageRemap},
			wantCode:      "DATA001",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := memory.New()
			tt.setup(st)
			svc := NewService(st, testPipelineConfig())

			out, err := svc.RunPipeline(context.Background())
			require.Error(t, err)
			assert.Equal(t, tt.wantStage, out.Result.FailedStage)
			assert.Equal(t, tt.wantCompleted, out.Result.Completed)
			assert.NotEqual(t, NoticeSuccess, out.Notice.Level)

			rec, ok := svc.Run(out.RunID)
			require.True(t, ok)
			assert.Equal(t, RunFailed, rec.Status)
			assert.Equal(t, tt.wantCode, rec.ErrorCode)
			assert.Len(t, rec.Steps, len(tt.wantCompleted)+1)
			assert.Equal(t, 0, svc.Limiter().ActiveCount(), "slot must be released")
		})
	}
}

func TestService_BusyWhenSlotTaken(t *testing.T) {
	st := memory.New()
	st.Put("S2", sheet.RowOf("Key"), sheet.RowOf("a"))
	svc := NewService(st, testPipelineConfig())

	require.NoError(t, svc.Limiter().Acquire(context.Background()))
	out, err := svc.SortByGroup(context.Background(), "")
	svc.Limiter().Release()

	require.ErrorIs(t, err, ErrPipelineBusy)
	assert.Equal(t, NoticeWarning, out.Notice.Level)

	rec, ok := svc.Run(out.RunID)
	require.True(t, ok)
	assert.Equal(t, RunFailed, rec.Status)
	assert.Equal(t, "RUN001", rec.ErrorCode)
	assert.Empty(t, rec.Steps)
}

func TestService_StageDefaults(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	header := st.Put("S1", sheet.RowOf("foo bar"))
	dest := st.Put("S2",
		sheet.RowOf("Key", nil, nil, nil, nil, nil, nil, "Amount"),
		sheet.RowOf("a", nil, nil, nil, nil, nil, nil, 4),
		sheet.RowOf("a"),
	)
	svc := NewService(st, testPipelineConfig())

	h, err := svc.NormalizeHeader(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, HeaderModified, h.Result.Status)
	assert.Equal(t, "Successfully capitalized row 1 in S1", h.Notice.Message)
	assert.Equal(t, "Foo Bar", header.Rows()[0].At(0).String())

	m, err := svc.FillMarkers(ctx, "", 0)
	require.NoError(t, err)
	assert.Equal(t, 8, m.Result.Column)
	assert.Equal(t, 1, m.Result.Modified)
	assert.Contains(t, m.Notice.Message, "Added 'x' to 1 blank cells in column H")

	r, err := svc.ResolveSubtotals(ctx, "", 0)
	require.NoError(t, err)
	assert.Equal(t, 1, r.Result.Replaced)
	assert.Contains(t, r.Notice.Message, "Replaced 1 'x' values with bold red sums in column H")
	assert.True(t, dest.Rows()[2].At(7).Equal(sheet.Number(4)))

	runs := svc.Runs(0)
	require.Len(t, runs, 3)
	assert.Equal(t, StageResolveSubtotals, runs[0].Kind, "newest first")
	assert.Equal(t, StageNormalizeHeader, runs[2].Kind)
}

func TestService_NormalizeHeaderMissingIsNotAnError(t *testing.T) {
	svc := NewService(memory.New(), testPipelineConfig())

	out, err := svc.NormalizeHeader(context.Background(), "Nope")
	require.NoError(t, err)
	assert.Equal(t, HeaderNotFound, out.Result.Status)
	assert.Equal(t, NoticeWarning, out.Notice.Level)
	assert.Equal(t, "Sheet 'Nope' not found", out.Notice.Message)
}

func TestService_RecordsOrigin(t *testing.T) {
	svc := NewService(memory.New(), testPipelineConfig())
	origin := Origin{Source: "http", Client: "203.0.113.7", UserAgent: "curl/8"}

	out, err := svc.NormalizeHeader(ContextWithOrigin(context.Background(), origin), "Nope")
	require.NoError(t, err)
	rec, ok := svc.Run(out.RunID)
	require.True(t, ok)
	assert.Equal(t, origin, rec.Origin)

	out, err = svc.NormalizeHeader(context.Background(), "Nope")
	require.NoError(t, err)
	rec, _ = svc.Run(out.RunID)
	assert.Zero(t, rec.Origin)
}

func TestHistory_EvictsOldest(t *testing.T) {
	h := NewHistory(2)
	now := time.Now()

	first := h.Start(StageSort, now)
	h.Start(StageSeparate, now)
	third := h.Start(StageFillMarkers, now)

	_, ok := h.Get(first.ID)
	assert.False(t, ok, "oldest record should be evicted")

	list := h.List(0)
	require.Len(t, list, 2)
	assert.Equal(t, third.ID, list[0].ID)

	h.Update(third.ID, func(r *RunRecord) { r.Status = RunSucceeded })
	got, ok := h.Get(third.ID)
	require.True(t, ok)
	assert.Equal(t, RunSucceeded, got.Status)

	assert.Len(t, h.List(1), 1)
}

func TestTableChecksum(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	a := st.Put("A", sheet.RowOf("k", 1), sheet.RowOf("v", nil))
	b := st.Put("B", sheet.RowOf("k", 1), sheet.RowOf("v", nil))
	c := st.Put("C", sheet.RowOf("k", "1"), sheet.RowOf("v", nil))
	d := st.Put("D", sheet.RowOf("k1"), sheet.RowOf("v"))

	sumA, err := TableChecksum(ctx, a)
	require.NoError(t, err)
	sumB, err := TableChecksum(ctx, b)
	require.NoError(t, err)
	sumC, err := TableChecksum(ctx, c)
	require.NoError(t, err)
	sumD, err := TableChecksum(ctx, d)
	require.NoError(t, err)

	assert.Equal(t, sumA, sumB)
	assert.NotEqual(t, sumA, sumC, "number and text must hash differently")
	assert.NotEqual(t, sumC, sumD)
	assert.Len(t, sumA, 16)
}
