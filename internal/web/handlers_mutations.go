package web

import (
	"context"
	"net/http"

	"github.com/JonMunkholm/sheetpipe/internal/core"
	"github.com/JonMunkholm/sheetpipe/internal/web/templates"
)

// respondOutcome writes a stage outcome, or the mapped error with the run
// ID of the failed run.
func respondOutcome[T any](s *Server, w http.ResponseWriter, r *http.Request, out core.Outcome[T], err error) {
	if err != nil {
		s.respondError(w, r, err, out.RunID)
		return
	}
	writeJSON(w, out)
}

// handleNormalizeHeader capitalizes the header row of {table}.
func (s *Server) handleNormalizeHeader(w http.ResponseWriter, r *http.Request) {
	out, err := s.service.NormalizeHeader(r.Context(), tableParam(r))
	respondOutcome(s, w, r, out, err)
}

// handleRemap copies the source table into the destination table.
func (s *Server) handleRemap(w http.ResponseWriter, r *http.Request) {
	out, err := s.service.RemapColumns(r.Context())
	respondOutcome(s, w, r, out, err)
}

// handleSort groups and sorts {table} by its key column.
func (s *Server) handleSort(w http.ResponseWriter, r *http.Request) {
	out, err := s.service.SortByGroup(r.Context(), tableParam(r))
	respondOutcome(s, w, r, out, err)
}

// handleSeparate sorts {table} and inserts a blank row between groups.
func (s *Server) handleSeparate(w http.ResponseWriter, r *http.Request) {
	out, err := s.service.SortAndSeparate(r.Context(), tableParam(r))
	respondOutcome(s, w, r, out, err)
}

// handleFillMarkers fills blank cells of ?column= with the marker.
func (s *Server) handleFillMarkers(w http.ResponseWriter, r *http.Request) {
	col, err := columnParam(r)
	if err != nil {
		s.respondBadRequest(w, r, err.Error())
		return
	}
	out, err := s.service.FillMarkers(r.Context(), tableParam(r), col)
	respondOutcome(s, w, r, out, err)
}

// handleResolveSubtotals replaces markers in ?column= with running
// subtotals.
func (s *Server) handleResolveSubtotals(w http.ResponseWriter, r *http.Request) {
	col, err := columnParam(r)
	if err != nil {
		s.respondBadRequest(w, r, err.Error())
		return
	}
	out, err := s.service.ResolveSubtotals(r.Context(), tableParam(r), col)
	respondOutcome(s, w, r, out, err)
}

// handlePipeline runs every step in order. The run is detached from the
// request deadline; PIPELINE_TIMEOUT bounds it instead.
func (s *Server) handlePipeline(w http.ResponseWriter, r *http.Request) {
	out, err := s.service.RunPipeline(context.WithoutCancel(r.Context()))
	respondOutcome(s, w, r, out, err)
}

// handleRunAll is the dashboard's Run All button. It renders the notices
// of every step that ran.
func (s *Server) handleRunAll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	out, err := s.service.RunPipeline(context.WithoutCancel(ctx))

	var notices []core.Notice
	if rec, ok := s.service.Run(out.RunID); ok {
		notices = rec.Notices
	}
	if len(notices) == 0 {
		notices = []core.Notice{out.Notice}
	}

	status := http.StatusOK
	if err != nil {
		_, status = s.logRunError(r, err, out.RunID)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_ = templates.Layout("Run All", templates.NoticeList(notices)).Render(ctx, w)
}
