package core

import (
	"context"
	"sort"

	"github.com/JonMunkholm/sheetpipe/internal/logging"
	"github.com/JonMunkholm/sheetpipe/internal/sheet"
	"github.com/JonMunkholm/sheetpipe/internal/store"
)

// KeyColumn is the 0-based column rows are grouped by.
const KeyColumn = 0

// group is a run of rows sharing one key, kept in first-seen order.
type group struct {
	key  string
	rows []sheet.Row
}

// groupRows buckets rows by the text of their key cell and returns the
// buckets in ascending key order. Rows for which skip returns true are left
// out.
func groupRows(rows []sheet.Row, skip func(sheet.Row) bool) []group {
	index := make(map[string]int)
	var groups []group
	for _, r := range rows {
		if skip != nil && skip(r) {
			continue
		}
		key := r.At(KeyColumn).String()
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, group{key: key})
		}
		groups[i].rows = append(groups[i].rows, r)
	}
	sort.Slice(groups, func(a, b int) bool { return groups[a].key < groups[b].key })
	return groups
}

// GroupResult is returned by SortByGroup.
type GroupResult struct {
	Table   string `json:"table"`
	Groups  int    `json:"groups"`
	Rows    int    `json:"rows"`
	Dropped int    `json:"dropped"`
}

// SortByGroup rewrites table as its header followed by the data rows grouped
// by key column and sorted by key. Rows with a blank key are dropped.
func SortByGroup(ctx context.Context, st store.Store, table string, b Batches) (GroupResult, error) {
	b = b.withDefaults()
	log := logging.ForStage(ctx, StageSort, table)
	res := GroupResult{Table: table}

	t, err := lookup(ctx, st, StageSort, table, "sheet not found")
	if err != nil {
		return res, err
	}

	rows, _, err := store.ReadAll(ctx, t)
	if err != nil {
		return res, readErr(StageSort, table, err)
	}
	if len(rows) < 2 {
		return res, stageErr(StageSort, table, ErrInsufficientData, "not enough data to organize, need at least 2 rows")
	}

	header, data := rows[0], rows[1:]
	groups := groupRows(data, func(r sheet.Row) bool { return r.At(KeyColumn).IsBlank() })

	out := make([]sheet.Row, 0, len(rows))
	out = append(out, header)
	for _, g := range groups {
		out = append(out, g.rows...)
	}

	res.Groups = len(groups)
	res.Rows = len(out) - 1
	res.Dropped = len(data) - res.Rows

	if err := t.Clear(ctx); err != nil {
		return res, writeErr(StageSort, table, "clear sheet", err)
	}
	if err := store.WriteBatched(ctx, t, 0, 0, out, b.Write, nil); err != nil {
		log.Error("sort write failed", "error", err)
		return res, writeErr(StageSort, table, "write sorted rows", err)
	}

	log.Info("data organized by key column", "groups", res.Groups, "rows", res.Rows, "dropped", res.Dropped)
	return res, nil
}
