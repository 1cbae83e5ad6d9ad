// Package admin provides destructive maintenance operations on the table
// store.
package admin

import (
	"context"
	"fmt"
	"time"

	"github.com/JonMunkholm/sheetpipe/internal/logging"
	"github.com/JonMunkholm/sheetpipe/internal/store"
)

// ResetTimeout is the maximum duration of one reset.
const ResetTimeout = 30 * time.Second

// Reset clears every named table. All names are resolved before anything
// is cleared, so a missing table leaves the store untouched. Tables that
// buffer writes are flushed afterwards.
func Reset(ctx context.Context, st store.Store, names ...string) error {
	ctx, cancel := context.WithTimeout(ctx, ResetTimeout)
	defer cancel()

	tables := make([]store.Table, 0, len(names))
	for _, name := range names {
		t, err := store.Lookup(ctx, st, name, "table")
		if err != nil {
			return err
		}
		tables = append(tables, t)
	}

	log := logging.FromContext(ctx)
	for _, t := range tables {
		if err := t.Clear(ctx); err != nil {
			return fmt.Errorf("clear %q: %w", t.Name(), err)
		}
		if err := store.Flush(ctx, t); err != nil {
			return fmt.Errorf("flush %q: %w", t.Name(), err)
		}
		log.Info("table reset", "table", t.Name())
	}
	return nil
}

// ResetAll clears every table in the store.
func ResetAll(ctx context.Context, st store.Store) ([]string, error) {
	names, err := st.Tables(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	return names, Reset(ctx, st, names...)
}
