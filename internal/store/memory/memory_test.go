package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/sheetpipe/internal/sheet"
	"github.com/JonMunkholm/sheetpipe/internal/store"
)

func TestStore_TableNotFound(t *testing.T) {
	s := New()
	_, err := s.Table(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrTableNotFound))
}

func TestStore_CreateTable(t *testing.T) {
	ctx := context.Background()
	s := New()

	_, err := s.CreateTable(ctx, "S1")
	require.NoError(t, err)
	_, err = s.CreateTable(ctx, "S1")
	assert.ErrorIs(t, err, store.ErrTableExists)

	s.Put("S2")
	names, err := s.Tables(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"S1", "S2"}, names)
}

func TestTable_CountsIgnoreTrailingBlanks(t *testing.T) {
	ctx := context.Background()
	tbl := New().Put("S1",
		sheet.RowOf("a", "b", nil),
		sheet.RowOf(1, nil, nil, ""),
		sheet.RowOf(nil, ""),
	)

	rows, err := tbl.RowCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, rows)

	cols, err := tbl.ColumnCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, cols)
}

func TestTable_ReadRowsPadsWindow(t *testing.T) {
	ctx := context.Background()
	tbl := New().Put("S1", sheet.RowOf("a", "b"), sheet.RowOf("c"))

	got, err := tbl.ReadRows(ctx, store.Range{Start: 0, End: 3}, store.Range{Start: 1, End: 3})
	require.NoError(t, err)
	require.Len(t, got, 3)
	for _, r := range got {
		assert.Len(t, r, 2)
	}
	assert.Equal(t, "b", got[0][0].String())
	assert.True(t, got[1][0].IsBlank())
	assert.True(t, got[2].IsBlank())
}

func TestTable_WriteRowsGrows(t *testing.T) {
	ctx := context.Background()
	tbl := New().Put("S1", sheet.RowOf("h1", "h2"))

	err := tbl.WriteRows(ctx, 2, 3, []sheet.Row{sheet.RowOf("x")})
	require.NoError(t, err)

	rows := tbl.Rows()
	require.Len(t, rows, 3)
	assert.Len(t, rows[0], 4)
	assert.Equal(t, "x", rows[2][3].String())
	assert.True(t, rows[1].IsBlank())
}

func TestTable_ClearDropsStyles(t *testing.T) {
	ctx := context.Background()
	tbl := New().Put("S1", sheet.RowOf("a"))
	require.NoError(t, tbl.SetCellEmphasis(ctx, 0, 0, store.Emphasis))

	require.NoError(t, tbl.Clear(ctx))

	n, _ := tbl.RowCount(ctx)
	assert.Zero(t, n)
	_, ok := tbl.Emphasis(0, 0)
	assert.False(t, ok)
}

func TestTable_FailWrites(t *testing.T) {
	ctx := context.Background()
	tbl := New().Put("S1")
	tbl.FailWrites = errors.New("disk full")
	tbl.FailAfter = 1

	require.NoError(t, tbl.WriteRows(ctx, 0, 0, []sheet.Row{sheet.RowOf("a")}))
	assert.EqualError(t, tbl.WriteRows(ctx, 1, 0, []sheet.Row{sheet.RowOf("b")}), "disk full")
}
