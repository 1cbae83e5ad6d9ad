package core

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/xxh3"

	"github.com/JonMunkholm/sheetpipe/internal/sheet"
	"github.com/JonMunkholm/sheetpipe/internal/store"
)

// RunStatus is the state of a run record.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

// StepRecord describes one stage inside a run.
type StepRecord struct {
	Stage    string        `json:"stage"`
	Table    string        `json:"table"`
	Duration time.Duration `json:"duration"`
	// Checksum is the xxh3 hash of the table after the step, hex encoded.
	// Empty when the step failed or the table could not be read.
	Checksum string `json:"checksum,omitempty"`
	Error    string `json:"error,omitempty"`
}

// RunRecord is the history entry of one stage or pipeline invocation.
type RunRecord struct {
	ID         string       `json:"id"`
	Kind       string       `json:"kind"` // stage name, or "pipeline"
	Status     RunStatus    `json:"status"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at,omitzero"`
	Steps      []StepRecord `json:"steps,omitempty"`
	Notices    []Notice     `json:"notices,omitempty"`
	Error      string       `json:"error,omitempty"`
	ErrorCode  string       `json:"error_code,omitempty"`
	Origin     Origin       `json:"origin,omitzero"`
}

// History keeps the most recent run records in memory.
type History struct {
	mu      sync.RWMutex
	size    int
	records []*RunRecord // oldest first
	byID    map[string]*RunRecord
}

// NewHistory returns a history holding at most size records.
func NewHistory(size int) *History {
	if size <= 0 {
		size = 100
	}
	return &History{size: size, byID: make(map[string]*RunRecord)}
}

// Start creates and stores a running record.
func (h *History) Start(kind string, now time.Time) *RunRecord {
	rec := &RunRecord{
		ID:        uuid.New().String(),
		Kind:      kind,
		Status:    RunRunning,
		StartedAt: now,
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.records) == h.size {
		delete(h.byID, h.records[0].ID)
		h.records = h.records[1:]
	}
	h.records = append(h.records, rec)
	h.byID[rec.ID] = rec
	return rec
}

// Update applies fn to the record with id under the history lock.
func (h *History) Update(id string, fn func(*RunRecord)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if rec, ok := h.byID[id]; ok {
		fn(rec)
	}
}

// Get returns a copy of the record with id.
func (h *History) Get(id string) (RunRecord, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	rec, ok := h.byID[id]
	if !ok {
		return RunRecord{}, false
	}
	return rec.clone(), true
}

// List returns copies of up to limit records, newest first. limit <= 0
// returns all.
func (h *History) List(limit int) []RunRecord {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := len(h.records)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]RunRecord, 0, n)
	for i := len(h.records) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, h.records[i].clone())
	}
	return out
}

// Prune drops finished records that finished before cutoff and returns how
// many were dropped. Running records are kept.
func (h *History) Prune(cutoff time.Time) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	kept := h.records[:0]
	for _, rec := range h.records {
		if rec.Status != RunRunning && rec.FinishedAt.Before(cutoff) {
			delete(h.byID, rec.ID)
			continue
		}
		kept = append(kept, rec)
	}
	dropped := len(h.records) - len(kept)
	clear(h.records[len(kept):])
	h.records = kept
	return dropped
}

func (r *RunRecord) clone() RunRecord {
	c := *r
	c.Steps = append([]StepRecord(nil), r.Steps...)
	c.Notices = append([]Notice(nil), r.Notices...)
	return c
}

// TableChecksum hashes every cell of t, kind included, so a Number 1 and a
// Text "1" hash differently.
func TableChecksum(ctx context.Context, t store.Table) (string, error) {
	rows, width, err := store.ReadAll(ctx, t)
	if err != nil {
		return "", err
	}

	h := xxh3.New()
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(width))
	_, _ = h.Write(buf[:])
	for _, r := range rows {
		for _, c := range r {
			switch c.Kind() {
			case sheet.KindNumber:
				f, _ := c.NumberValue()
				binary.LittleEndian.PutUint64(buf[:], math.Float64bits(f))
				_, _ = h.Write([]byte{'n'})
				_, _ = h.Write(buf[:])
			case sheet.KindText:
				s, _ := c.TextValue()
				binary.LittleEndian.PutUint64(buf[:], uint64(len(s)))
				_, _ = h.Write([]byte{'t'})
				_, _ = h.Write(buf[:])
				_, _ = h.WriteString(s)
			default:
				_, _ = h.Write([]byte{'e'})
			}
		}
		_, _ = h.Write([]byte{'\n'})
	}
	return fmt.Sprintf("%016x", h.Sum64()), nil
}
