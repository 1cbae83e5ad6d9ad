package web

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/sheetpipe/internal/core"
	"github.com/JonMunkholm/sheetpipe/internal/logging"
	"github.com/JonMunkholm/sheetpipe/internal/web/templates"
)

// handleDashboard renders the dashboard: tables, the Run All action and
// recent runs. A store that cannot list tables still renders the page.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cfg := s.service.Config()

	data := templates.DashboardData{
		Runs:         s.service.Runs(10),
		Steps:        core.PipelineSteps,
		SourceTable:  cfg.SourceTable,
		DestTable:    cfg.DestTable,
		MarkerColumn: fmt.Sprint(cfg.MarkerColumn),
		Limiter:      s.service.Limiter().Status(),
	}

	tables, err := s.service.ListTables(ctx)
	if err != nil {
		logging.FromContext(ctx).Error("dashboard: list tables", "error", err)
	}
	for _, t := range tables {
		data.Tables = append(data.Tables, templates.TableCard{
			Name: t.Name, Rows: t.Rows, Columns: t.Columns, Err: t.Error,
		})
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := templates.Dashboard(data).Render(ctx, w); err != nil {
		logging.FromContext(ctx).Error("dashboard: render", "error", err)
	}
}

// handleListTables returns every table with its size.
func (s *Server) handleListTables(w http.ResponseWriter, r *http.Request) {
	tables, err := s.service.ListTables(r.Context())
	if err != nil {
		s.respondError(w, r, err, "")
		return
	}
	writeJSON(w, tables)
}

// handleTableData returns one page of a table. Query: page, page_size.
func (s *Server) handleTableData(w http.ResponseWriter, r *http.Request) {
	page := parseIntParam(r, "page", 1)
	pageSize := parseIntParam(r, "page_size", core.DefaultPageSize)

	res, err := s.service.TableData(r.Context(), tableParam(r), page, pageSize)
	if err != nil {
		s.respondError(w, r, err, "")
		return
	}
	writeJSON(w, res)
}

// handleExport streams a table as a CSV download. The CSV is built in
// memory first so a failed read still produces a proper error response.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	table := tableParam(r)

	var buf bytes.Buffer
	res, err := s.service.ExportCSV(r.Context(), table, &buf)
	if err != nil {
		s.respondError(w, r, err, "")
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", table+".csv"))
	w.Header().Set("X-Row-Count", fmt.Sprint(res.Rows))
	if _, err := buf.WriteTo(w); err != nil {
		logging.FromContext(r.Context()).Error("export: write response", "table", table, "error", err)
	}
}

// handleSummary returns statistics for one column. Query: column.
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	col, err := columnParam(r)
	if err != nil {
		s.respondBadRequest(w, r, err.Error())
		return
	}

	sum, err := s.service.ColumnSummary(r.Context(), tableParam(r), col)
	if err != nil {
		s.respondError(w, r, err, "")
		return
	}
	writeJSON(w, sum)
}

// handleListRuns returns recent run records, newest first. Query: limit.
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.service.Runs(parseIntParam(r, "limit", defaultRunsLimit)))
}

// handleGetRun returns one run record.
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "runID")
	rec, ok := s.service.Run(id)
	if !ok {
		respondErrorJSON(w, core.UserMessage{
			Message: "Run not found",
			Action:  "Run records are kept in memory and expire oldest first",
			Code:    "RUN004",
		}, http.StatusNotFound, id)
		return
	}
	writeJSON(w, rec)
}

// handleHealth reports liveness plus the run limiter state.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"status":  "ok",
		"limiter": s.service.Limiter().Status(),
	})
}
