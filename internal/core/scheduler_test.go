package core

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/sheetpipe/internal/store/memory"
)

func TestHistory_Prune(t *testing.T) {
	h := NewHistory(10)
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	old := h.Start(StageSort, t0)
	h.Update(old.ID, func(r *RunRecord) { r.Status = RunSucceeded; r.FinishedAt = t0 })
	running := h.Start(StageSeparate, t0)
	recent := h.Start(StageFillMarkers, t0)
	h.Update(recent.ID, func(r *RunRecord) { r.Status = RunFailed; r.FinishedAt = t0.Add(2 * time.Hour) })

	assert.Equal(t, 1, h.Prune(t0.Add(time.Hour)))

	_, ok := h.Get(old.ID)
	assert.False(t, ok)
	list := h.List(0)
	require.Len(t, list, 2)
	assert.Equal(t, recent.ID, list[0].ID)
	assert.Equal(t, running.ID, list[1].ID)

	assert.Zero(t, h.Prune(t0.Add(time.Hour)))
}

func TestService_PruneHistory(t *testing.T) {
	cfg := testPipelineConfig()
	cfg.HistoryRetention = time.Hour
	svc := NewService(memory.New(), cfg)

	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return t0 }
	out, err := svc.NormalizeHeader(context.Background(), "Nope")
	require.NoError(t, err)

	svc.now = func() time.Time { return t0.Add(30 * time.Minute) }
	assert.Zero(t, svc.PruneHistory())

	svc.now = func() time.Time { return t0.Add(2 * time.Hour) }
	assert.Equal(t, 1, svc.PruneHistory())
	_, ok := svc.Run(out.RunID)
	assert.False(t, ok)
}

func TestService_PruneHistoryDisabled(t *testing.T) {
	svc := NewService(memory.New(), testPipelineConfig())
	_, err := svc.NormalizeHeader(context.Background(), "Nope")
	require.NoError(t, err)

	svc.now = func() time.Time { return time.Now().Add(24 * time.Hour) }
	assert.Zero(t, svc.PruneHistory())

	done := make(chan struct{})
	go func() {
		svc.StartHistoryPruner(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("pruner should return when retention is unset")
	}
}
