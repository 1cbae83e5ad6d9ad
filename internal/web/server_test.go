package web

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/sheetpipe/internal/config"
	"github.com/JonMunkholm/sheetpipe/internal/core"
	"github.com/JonMunkholm/sheetpipe/internal/sheet"
	"github.com/JonMunkholm/sheetpipe/internal/store/memory"
)

func testConfig() config.Config {
	return config.Config{
		Server: config.ServerConfig{MaxImportSize: 1 << 20},
		Pipeline: config.PipelineConfig{
			SourceTable:   "S1",
			DestTable:     "S2",
			HeaderTable:   "S1",
			MarkerColumn:  8,
			MaxConcurrent: 1,
			MaxWaitTime:   20 * time.Millisecond,
			Timeout:       time.Minute,
			HistorySize:   10,
		},
		Security: config.SecurityConfig{EnableCSP: true},
	}
}

func newTestServer(t *testing.T, st *memory.Store, mutate func(*config.Config)) *Server {
	t.Helper()
	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	s := NewServer(core.NewService(st, cfg.Pipeline), cfg)
	t.Cleanup(func() { _ = s.Shutdown(t.Context()) })
	return s
}

func do(s *Server, method, target string, body []byte, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return resp
}

// sourceRow puts id in column A, key in column M and amount in column O.
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

func TestHealthAndSecurityHeaders(t *testing.T) {
	s := newTestServer(t, memory.New(), nil)

	rec := do(s, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Contains(t, rec.Header().Get("Content-Security-Policy"), "default-src 'self'")
}

func TestSecurityHeaders_CSPDisabled(t *testing.T) {
	s := newTestServer(t, memory.New(), func(c *config.Config) { c.Security.EnableCSP = false })

	rec := do(s, http.MethodGet, "/healthz", nil)
	assert.Empty(t, rec.Header().Get("Content-Security-Policy"))
}

func TestImportExportRoundTrip(t *testing.T) {
	s := newTestServer(t, memory.New(), nil)
	csvBody := "Key,Amount,Note\na,1250.5,\nb,0,\"has, comma\"\n"

	rec := do(s, http.MethodPost, "/api/tables/T1/import?create=true", []byte(csvBody), "Content-Type", "text/csv")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var out core.Outcome[core.ImportResult]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.NotEmpty(t, out.RunID)
	assert.True(t, out.Result.Created)
	assert.Equal(t, 3, out.Result.Rows)
	assert.Equal(t, 3, out.Result.Columns)

	rec = do(s, http.MethodGet, "/api/tables/T1/export", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), `filename="T1.csv"`)
	assert.Equal(t, csvBody, rec.Body.String())

	// A second import replaces the table.
	rec = do(s, http.MethodPost, "/api/tables/T1/import", []byte("Only\n1\n"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = do(s, http.MethodGet, "/api/tables/T1/export", nil)
	assert.Equal(t, "Only\n1\n", rec.Body.String())
}

func TestImport_Multipart(t *testing.T) {
	s := newTestServer(t, memory.New(), nil)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("note", "ignored"))
	fw, err := mw.CreateFormFile("file", "data.csv")
	require.NoError(t, err)
	_, err = fw.Write([]byte("H\nx\ny\n"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	rec := do(s, http.MethodPost, "/api/tables/M/import?create=1", body.Bytes(), "Content-Type", mw.FormDataContentType())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"rows":3`)
}

func TestImport_Errors(t *testing.T) {
	emptyForm := func() (string, []byte) {
		var body bytes.Buffer
		mw := multipart.NewWriter(&body)
		_ = mw.WriteField("other", "x")
		_ = mw.Close()
		return mw.FormDataContentType(), body.Bytes()
	}
	formType, formBody := emptyForm()

	tests := []struct {
		name        string
		target      string
		contentType string
		body        []byte
		maxSize     int64
		wantStatus  int
		wantCode    string
	}{
		{"missing table without create", "/api/tables/nope/import", "text/csv", []byte("a\n"), 0, http.StatusNotFound, "TBL001"},
		{"empty file", "/api/tables/T/import?create=true", "text/csv", nil, 0, http.StatusBadRequest, "CSV002"},
		{"bare quote", "/api/tables/T/import?create=true", "text/csv", []byte("a\"b\n"), 0, http.StatusBadRequest, "CSV001"},
		{"bad create flag", "/api/tables/T/import?create=maybe", "text/csv", []byte("a\n"), 0, http.StatusBadRequest, "ARG001"},
		{"form without file", "/api/tables/T/import?create=true", formType, formBody, 0, http.StatusBadRequest, "CSV002"},
		{"too large", "/api/tables/T/import?create=true", "text/csv", []byte("Key,Amount\na,1\nb,2\nc,3\n"), 16, http.StatusRequestEntityTooLarge, "CSV003"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, memory.New(), func(c *config.Config) {
				if tt.maxSize > 0 {
					c.Server.MaxImportSize = tt.maxSize
				}
			})
			rec := do(s, http.MethodPost, tt.target, tt.body, "Content-Type", tt.contentType)
			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			assert.Equal(t, tt.wantCode, decodeError(t, rec).Code)
		})
	}
}

func TestListTablesAndTableData(t *testing.T) {
	st := memory.New()
	st.Put("S1", sheet.RowOf("Key", "Amount"), sheet.RowOf("a", 1), sheet.RowOf("b", 2), sheet.RowOf("c", 3))
	st.Put("Empty")
	s := newTestServer(t, st, nil)

	rec := do(s, http.MethodGet, "/api/tables", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var tables []core.TableInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tables))
	assert.Equal(t, []core.TableInfo{
		{Name: "S1", Rows: 4, Columns: 2},
		{Name: "Empty"},
	}, tables)

	rec = do(s, http.MethodGet, "/api/tables/S1?page=2&page_size=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var page core.TablePage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Equal(t, 2, page.Page)
	assert.Equal(t, 2, page.TotalPages)
	assert.Equal(t, []string{"Key", "Amount"}, page.Header.Strings())
	require.Len(t, page.Data, 1)
	assert.Equal(t, []string{"c", "3"}, page.Data[0].Strings())

	rec = do(s, http.MethodGet, "/api/tables/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "TBL001", decodeError(t, rec).Code)
}

func TestPipelineAndRuns(t *testing.T) {
	st := pipelineStore()
	s := newTestServer(t, st, nil)

	rec := do(s, http.MethodPost, "/api/pipeline", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var out core.Outcome[core.PipelineResult]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, core.PipelineSteps, out.Result.Completed)
	require.NotEmpty(t, out.RunID)

	rec = do(s, http.MethodGet, "/api/runs/"+out.RunID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var run core.RunRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
	assert.Equal(t, core.RunSucceeded, run.Status)
	assert.Len(t, run.Steps, len(core.PipelineSteps))
	assert.Equal(t, "http", run.Origin.Source)
	assert.NotEmpty(t, run.Origin.Client)

	rec = do(s, http.MethodGet, "/api/runs?limit=5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var runs []core.RunRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, out.RunID, runs[0].ID)

	rec = do(s, http.MethodGet, "/api/runs/does-not-exist", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "RUN004", decodeError(t, rec).Code)

	rec = do(s, http.MethodGet, "/api/tables/S2/summary?column=8", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var sum core.ColumnSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sum))
	assert.Equal(t, "Amount", sum.Header)
	assert.Equal(t, 4, sum.Cells)
}

func TestStageRoutes(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		target     string
		wantStatus int
		wantCode   string
	}{
		{"remap", http.MethodPost, "/api/remap", http.StatusOK, ""},
		{"normalize header", http.MethodPost, "/api/tables/S1/normalize-header", http.StatusOK, ""},
		{"sort missing table", http.MethodPost, "/api/tables/nope/sort", http.StatusNotFound, "TBL001"},
		{"separate needs data", http.MethodPost, "/api/tables/S2/separate", http.StatusUnprocessableEntity, "DATA001"},
		{"markers bad column", http.MethodPost, "/api/tables/S2/markers?column=abc", http.StatusBadRequest, "ARG001"},
		{"markers negative column", http.MethodPost, "/api/tables/S1/markers?column=-1", http.StatusBadRequest, "ARG001"},
		{"subtotals default column", http.MethodPost, "/api/tables/S1/subtotals", http.StatusOK, ""},
		{"summary bad column", http.MethodGet, "/api/tables/S1/summary?column=x", http.StatusBadRequest, "ARG001"},
		{"get on post route", http.MethodGet, "/api/remap", http.StatusMethodNotAllowed, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, pipelineStore(), nil)
			rec := do(s, tt.method, tt.target, nil)
			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			if tt.wantCode != "" {
				resp := decodeError(t, rec)
				assert.Equal(t, tt.wantCode, resp.Code)
				assert.NotEmpty(t, resp.Message)
			}
		})
	}
}

func TestStageError_CarriesRunID(t *testing.T) {
	s := newTestServer(t, memory.New(), nil)

	rec := do(s, http.MethodPost, "/api/tables/nope/sort", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	resp := decodeError(t, rec)
	require.NotEmpty(t, resp.RunID)

	rec = do(s, http.MethodGet, "/api/runs/"+resp.RunID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var run core.RunRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
	assert.Equal(t, core.RunFailed, run.Status)
	assert.Equal(t, "TBL001", run.ErrorCode)
}

func TestAPIKeyGuardsMutations(t *testing.T) {
	s := newTestServer(t, pipelineStore(), func(c *config.Config) {
		c.Security.RequireAPIKey = true
		c.Security.APIKeys = []string{"secret"}
	})

	assert.Equal(t, http.StatusUnauthorized, do(s, http.MethodPost, "/api/remap", nil).Code)
	assert.Equal(t, http.StatusForbidden, do(s, http.MethodPost, "/api/pipeline", nil, "X-API-Key", "wrong").Code)
	assert.Equal(t, http.StatusUnauthorized, do(s, http.MethodPost, "/api/tables/S1/import", []byte("a\n")).Code)
	assert.Equal(t, http.StatusUnauthorized, do(s, http.MethodPost, "/run", nil).Code)

	// Reads stay open.
	assert.Equal(t, http.StatusOK, do(s, http.MethodGet, "/api/tables", nil).Code)
	assert.Equal(t, http.StatusOK, do(s, http.MethodGet, "/", nil).Code)

	assert.Equal(t, http.StatusOK, do(s, http.MethodPost, "/api/remap", nil, "X-API-Key", "secret").Code)
}

func TestDashboard(t *testing.T) {
	st := pipelineStore()
	st.Put("<script>")
	s := newTestServer(t, st, nil)

	rec := do(s, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, body, "Run All")
	assert.Contains(t, body, "<td>S1</td>")
	assert.Contains(t, body, "&lt;script&gt;")
	assert.NotContains(t, body, "<td><script>")
	assert.Contains(t, body, "No runs yet")
}

func TestRunAll(t *testing.T) {
	s := newTestServer(t, pipelineStore(), nil)

	rec := do(s, http.MethodPost, "/run", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "All steps executed successfully!")

	rec = do(s, http.MethodGet, "/", nil)
	assert.Contains(t, rec.Body.String(), string(core.RunSucceeded))
}

func TestRunAll_Failure(t *testing.T) {
	s := newTestServer(t, memory.New(), nil)

	rec := do(s, http.MethodPost, "/run", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), `class="notice error"`)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, memory.New(), nil)
	do(s, http.MethodGet, "/healthz", nil)

	rec := do(s, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "sheetpipe_http_requests_total")
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		code string
		want int
	}{
		{"TBL001", http.StatusNotFound},
		{"DATA001", http.StatusUnprocessableEntity},
		{"WRT001", http.StatusInternalServerError},
		{"ARG001", http.StatusBadRequest},
		{"RUN001", http.StatusTooManyRequests},
		{"RUN003", http.StatusGatewayTimeout},
		{"ERR000", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.code); got != tt.want {
			t.Errorf("statusFor(%q) = %d, want %d", tt.code, got, tt.want)
		}
	}
}
