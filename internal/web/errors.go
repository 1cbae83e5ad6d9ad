package web

// errors.go turns stage and service errors into HTTP responses.
//
// Every error is logged with its technical detail and the request ID, then
// mapped through core.MapError. The support code picks the status:
//
//	TBL001                 404 Not Found
//	TBL002                 409 Conflict
//	DATA001                422 Unprocessable Entity
//	ARG001, CSV001, CSV002 400 Bad Request
//	CSV003                 413 Request Entity Too Large
//	RUN001                 429 Too Many Requests
//	RUN002, DB001          503 Service Unavailable
//	RUN003                 504 Gateway Timeout
//	anything else          500 Internal Server Error
//
// API routes get JSON; the dashboard gets an ErrorAlert fragment.

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/JonMunkholm/sheetpipe/internal/core"
	"github.com/JonMunkholm/sheetpipe/internal/logging"
	"github.com/JonMunkholm/sheetpipe/internal/web/templates"
)

// ErrorResponse is the JSON body of an API error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
	RunID   string `json:"run_id,omitempty"`
}

var codeStatus = map[string]int{
	"TBL001":  http.StatusNotFound,
	"TBL002":  http.StatusConflict,
	"DATA001": http.StatusUnprocessableEntity,
	"ARG001":  http.StatusBadRequest,
	"CSV001":  http.StatusBadRequest,
	"CSV002":  http.StatusBadRequest,
	"CSV003":  http.StatusRequestEntityTooLarge,
	"RUN001":  http.StatusTooManyRequests,
	"RUN002":  http.StatusServiceUnavailable,
	"RUN003":  http.StatusGatewayTimeout,
	"DB001":   http.StatusServiceUnavailable,
}

// statusFor returns the HTTP status for a support code.
func statusFor(code string) int {
	if s, ok := codeStatus[code]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// respondError logs err and writes the mapped user message. runID is
// echoed back when the failed call left a run record.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error, runID string) {
	msg, status := s.logRunError(r, err, runID)

	if status == http.StatusTooManyRequests {
		w.Header().Set("Retry-After", "5")
	}
	if wantsJSON(r) {
		respondErrorJSON(w, msg, status, runID)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_ = templates.Layout("sheetpipe", templates.ErrorAlert(msg.Message, msg.Action, msg.Code)).Render(r.Context(), w)
}

// logRunError logs err with the request context and returns its mapped
// message and status.
func (s *Server) logRunError(r *http.Request, err error, runID string) (core.UserMessage, int) {
	msg := core.MapError(err)
	status := statusFor(msg.Code)

	logging.FromContext(r.Context()).Error("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", msg.Code,
		"run_id", runID,
	)
	return msg, status
}

// respondBadRequest reports a malformed request parameter.
func (s *Server) respondBadRequest(w http.ResponseWriter, r *http.Request, message string) {
	logging.FromContext(r.Context()).Warn("bad request", "path", r.URL.Path, "method", r.Method, "error", message)
	respondErrorJSON(w, core.UserMessage{Message: message, Code: "ARG001"}, http.StatusBadRequest, "")
}

func respondErrorJSON(w http.ResponseWriter, msg core.UserMessage, status int, runID string) {
	writeJSONStatus(w, status, ErrorResponse{
		Error:   msg.Message,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
		RunID:   runID,
	})
}

// wantsJSON reports whether the client should get JSON. API routes always
// do.
func wantsJSON(r *http.Request) bool {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

func writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}

// writeJSONStatus encodes v with status. Encoding errors are logged since
// the header is already sent.
func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}
