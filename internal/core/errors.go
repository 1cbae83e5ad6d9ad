package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/JonMunkholm/sheetpipe/internal/store"
)

// Stage names used in errors, logs, metrics and run records.
const (
	StageNormalizeHeader  = "normalize_header"
	StageRemap            = "remap"
	StageSort             = "sort"
	StageSeparate         = "separate"
	StageFillMarkers      = "fill_markers"
	StageResolveSubtotals = "resolve_subtotals"
	StagePipeline         = "pipeline"
	StageImport           = "import"
	StageExport           = "export"
	StageSummary          = "summary"
	StageView             = "view"
)

// Error kinds. Stage errors wrap exactly one of these, so callers branch
// with errors.Is.
var (
	// ErrTableNotFound is the store's missing-table error.
	ErrTableNotFound = store.ErrTableNotFound

	// ErrInsufficientData means the table has too few rows for the stage.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrWriteFailure means the store rejected a write. The table may be
	// partially written.
	ErrWriteFailure = errors.New("write failure")

	// ErrInvalidArgument means a caller-supplied parameter is out of range.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrPipelineBusy is returned when no run slot frees up in time.
	ErrPipelineBusy = errors.New("pipeline busy, please try again later")
)

// StageError describes why a stage stopped.
type StageError struct {
	Stage  string
	Table  string
	Reason string // short operator-facing text, e.g. "source not found"
	Kind   error  // one of the Err* kinds above
	Cause  error  // underlying store or parse error, may be nil
}

func (e *StageError) Error() string {
	msg := e.Stage
	if e.Table != "" {
		msg += fmt.Sprintf(" %q", e.Table)
	}
	msg += ": " + e.Reason
	if e.Kind != nil {
		msg += " (" + e.Kind.Error() + ")"
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *StageError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return errs
}

func stageErr(stage, table string, kind error, reason string) *StageError {
	return &StageError{Stage: stage, Table: table, Reason: reason, Kind: kind}
}

func writeErr(stage, table, reason string, cause error) *StageError {
	return &StageError{Stage: stage, Table: table, Reason: reason, Kind: ErrWriteFailure, Cause: cause}
}

// readErr wraps a failed read. Reads have no kind of their own; the cause
// decides how callers classify it.
func readErr(stage, table string, cause error) *StageError {
	return &StageError{Stage: stage, Table: table, Reason: "read failed", Cause: cause}
}

// lookup resolves a table for stage, turning a missing table into a
// StageError with the given reason.
func lookup(ctx context.Context, st store.Store, stage, name, reason string) (store.Table, error) {
	t, err := st.Table(ctx, name)
	if err == nil {
		return t, nil
	}
	if errors.Is(err, store.ErrTableNotFound) {
		return nil, stageErr(stage, name, ErrTableNotFound, reason)
	}
	return nil, &StageError{Stage: stage, Table: name, Reason: "lookup failed", Cause: err}
}

// IsKind reports whether err is a StageError of the given kind.
func IsKind(err, kind error) bool {
	var se *StageError
	return errors.As(err, &se) && se.Kind == kind
}
