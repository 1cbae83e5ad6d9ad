package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/sheetpipe/internal/application"
	"github.com/JonMunkholm/sheetpipe/internal/config"
	"github.com/JonMunkholm/sheetpipe/internal/core"
	"github.com/JonMunkholm/sheetpipe/internal/sheet"
	"github.com/JonMunkholm/sheetpipe/internal/store/memory"
)

// execute runs the CLI against st and returns stdout.
func execute(t *testing.T, st *memory.Store, stdin string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("LOG_LEVEL", "error")

	open := func(_ context.Context, cfg *config.Config) (*application.App, error) {
		return &application.App{Config: cfg, Store: st, Service: core.NewService(st, cfg.Pipeline)}, nil
	}
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd(&stdout, &stderr, open)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--store", "memory"}, args...))
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), err
}

func sourceRow(id, key string, amount any) sheet.Row {
	r := sheet.NewRow(15)
	r[0] = sheet.Text(id)
	r[12] = sheet.CellOf(key)
	r[14] = sheet.CellOf(amount)
	return r
}

func pipelineStore() *memory.Store {
	st := memory.New()
	st.Put("S1",
		sourceRow("ID", "Key", "Amount"),
		sourceRow("r1", "b", 10),
		sourceRow("r2", "a", nil),
		sourceRow("r3", "a", 5),
	)
	st.Put("S2")
	return st
}

func TestRun_PrintsEveryNotice(t *testing.T) {
	st := pipelineStore()

	out, err := execute(t, st, "", "run")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, "[success] Success: All steps executed successfully!", lines[4])

	sum, err := execute(t, st, "", "summary", "S2", "--column", "8")
	require.NoError(t, err)
	assert.Contains(t, sum, "markers")
	assert.Regexp(t, `(?m)^sum\s+20$`, sum)
}

func TestRun_JSON(t *testing.T) {
	out, err := execute(t, pipelineStore(), "", "--json", "run")
	require.NoError(t, err)

	var res core.Outcome[core.PipelineResult]
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, core.PipelineSteps, res.Result.Completed)
}

func TestRun_StopsAtFailure(t *testing.T) {
	st := memory.New()
	st.Put("S2")

	out, err := execute(t, st, "", "run")
	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.ErrTableNotFound))
	assert.Contains(t, out, "[error]")
}

func TestStageCommands(t *testing.T) {
	st := memory.New()
	st.Put("S2",
		sheet.RowOf("Key", "V"),
		sheet.RowOf("b", 1),
		sheet.RowOf("a", 2),
	)
	st.Put("S1", sheet.RowOf("first name", "  last   name "))

	out, err := execute(t, st, "", "normalize-header")
	require.NoError(t, err)
	assert.Contains(t, out, "[success]")

	_, err = execute(t, st, "", "sort")
	require.NoError(t, err)

	_, err = execute(t, st, "", "fill-markers", "S2", "--column", "0")
	require.NoError(t, err)

	_, err = execute(t, st, "", "fill-markers", "S2", "--column", "-2")
	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.ErrInvalidArgument))

	_, err = execute(t, st, "", "separate", "nope")
	assert.True(t, core.IsKind(err, core.ErrTableNotFound))
}

func TestImportExport(t *testing.T) {
	st := memory.New()
	csvBody := "Key,Amount\na,1\nb,2.5\n"

	out, err := execute(t, st, csvBody, "import", "T", "-", "--create")
	require.NoError(t, err)
	assert.Contains(t, out, "Imported 3 rows into T")

	out, err = execute(t, st, "", "export", "T")
	require.NoError(t, err)
	assert.Equal(t, csvBody, out)

	path := filepath.Join(t.TempDir(), "t.csv")
	out, err = execute(t, st, "", "export", "T", "-o", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Exported 3 rows from T")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, csvBody, string(data))

	_, err = execute(t, st, "x\n", "import", "Missing", "-")
	assert.True(t, core.IsKind(err, core.ErrTableNotFound))
}

func TestTablesAndReset(t *testing.T) {
	st := memory.New()
	a := st.Put("A", sheet.RowOf("h", "i"), sheet.RowOf(1, 2))
	st.Put("B")

	out, err := execute(t, st, "", "tables")
	require.NoError(t, err)
	assert.Contains(t, out, "NAME")
	assert.Regexp(t, `(?m)^A\s+2\s+2$`, out)

	_, err = execute(t, st, "", "reset")
	assert.Error(t, err)
	_, err = execute(t, st, "", "reset", "A", "--all")
	assert.Error(t, err)

	out, err = execute(t, st, "", "reset", "A")
	require.NoError(t, err)
	assert.Equal(t, "Reset 1 table(s)\n", out)
	assert.Empty(t, a.Rows())
}

func TestArgsValidation(t *testing.T) {
	_, err := execute(t, memory.New(), "", "remap", "extra")
	assert.Error(t, err)
	_, err = execute(t, memory.New(), "", "import", "only-table")
	assert.Error(t, err)
}
