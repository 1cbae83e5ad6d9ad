package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/sheetpipe/internal/sheet"
	"github.com/JonMunkholm/sheetpipe/internal/store"
)

func TestRowWidth(t *testing.T) {
	tests := []struct {
		name string
		row  sheet.Row
		want int
	}{
		{"empty", nil, 0},
		{"all blank", sheet.RowOf(nil, "", nil), 0},
		{"trailing blanks", sheet.RowOf("a", nil, 3, ""), 3},
		{"full", sheet.RowOf(1, 2), 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := rowWidth(tt.row); got != tt.want {
				t.Errorf("rowWidth() = %d, want %d", got, tt.want)
			}
		})
	}
}

// openTestStore connects to TEST_DATABASE_URL and skips when it is unset.
func openTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := NewPool(ctx, url, PoolOptions{MaxConns: 2})
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	s := New(pool)
	require.NoError(t, s.Migrate(ctx))

	name := fmt.Sprintf("test_%d", time.Now().UnixNano())
	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), `DELETE FROM sheet_tables WHERE name = $1`, name)
	})
	return s, name
}

func TestStore_RoundTrip(t *testing.T) {
	s, name := openTestStore(t)
	ctx := context.Background()

	_, err := s.Table(ctx, name)
	assert.ErrorIs(t, err, store.ErrTableNotFound)

	tbl, err := s.CreateTable(ctx, name)
	require.NoError(t, err)
	_, err = s.CreateTable(ctx, name)
	assert.ErrorIs(t, err, store.ErrTableExists)

	require.NoError(t, tbl.WriteRows(ctx, 0, 0, []sheet.Row{
		sheet.RowOf("Seller", "Amount"),
		sheet.RowOf("acme", 12.5),
	}))
	require.NoError(t, tbl.WriteRows(ctx, 1, 3, []sheet.Row{sheet.RowOf("x")}))

	rows, err := tbl.RowCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, rows)
	cols, err := tbl.ColumnCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, cols)

	got, err := tbl.ReadRows(ctx, store.Range{End: 3}, store.Range{End: 4})
	require.NoError(t, err)
	assert.Equal(t, "acme", got[1][0].String())
	v, ok := got[1][1].NumberValue()
	assert.True(t, ok)
	assert.Equal(t, 12.5, v)
	assert.True(t, got[1][3].IsMarker(), "column slice write merges into the row")
	assert.True(t, got[2].IsBlank())

	em := tbl.(store.Emphasizer)
	require.NoError(t, em.SetCellEmphasis(ctx, 1, 1, store.Emphasis))
	style, ok, err := tbl.(*Table).Emphasis(ctx, 1, 1)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, store.Emphasis, style)

	require.NoError(t, tbl.Clear(ctx))
	rows, _ = tbl.RowCount(ctx)
	assert.Zero(t, rows)
	_, ok, _ = tbl.(*Table).Emphasis(ctx, 1, 1)
	assert.False(t, ok)
}
