package core

// error_messages.go maps technical errors to user-facing messages with
// support codes.
//
//	TBL001  Table not found          a stage's table does not exist
//	TBL002  Table already exists     import or create hit an existing name
//	DATA001 Not enough data          the table has fewer rows than the stage needs
//	WRT001  Write failed             the store rejected a write; the table may be partial
//	ARG001  Invalid argument         a column or parameter is out of range
//	RUN001  Pipeline busy            another run holds the slot
//	RUN002  Run cancelled            the request was cancelled
//	RUN003  Run timed out            the run exceeded its deadline
//	CSV001  Invalid CSV              the import file could not be parsed
//	CSV002  Empty file               the import file has no rows
//	CSV003  File too large           the upload exceeded the import size limit
//	DB001   Database unavailable     the postgres store cannot be reached
//	ERR000  Unknown error            check the logs for the technical error
//
// Stage errors are classified by kind first; anything else falls back to
// case-insensitive substring patterns, first match wins.

import (
	"errors"
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened
	Action  string // What to do about it
	Code    string // Support reference
}

type errorKind struct {
	kind error
	msg  UserMessage
}

var errorKinds = []errorKind{
	{ErrTableNotFound, UserMessage{
		Message: "Table not found",
		Action:  "Check the table name or create the sheet first",
		Code:    "TBL001",
	}},
	{ErrInsufficientData, UserMessage{
		Message: "Not enough data",
		Action:  "The table needs a header and at least one data row",
		Code:    "DATA001",
	}},
	{ErrWriteFailure, UserMessage{
		Message: "Writing the table failed",
		Action:  "The table may be partially written; re-run from the remap step",
		Code:    "WRT001",
	}},
	{ErrInvalidArgument, UserMessage{
		Message: "Invalid argument",
		Action:  "Columns are numbered from 1",
		Code:    "ARG001",
	}},
	{ErrPipelineBusy, UserMessage{
		Message: "Another run is in progress",
		Action:  "Please wait a moment and try again",
		Code:    "RUN001",
	}},
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

var errorPatterns = []errorPattern{
	{"table already exists", UserMessage{
		Message: "Table already exists",
		Action:  "Import into the existing table or choose another name",
		Code:    "TBL002",
	}},
	{"context canceled", UserMessage{
		Message: "Run was cancelled",
		Action:  "Please try again",
		Code:    "RUN002",
	}},
	{"context deadline exceeded", UserMessage{
		Message: "Run timed out",
		Action:  "Raise PIPELINE_TIMEOUT or reduce the table size",
		Code:    "RUN003",
	}},
	{"request body too large", UserMessage{
		Message: "The uploaded file is too large",
		Action:  "Split the file or raise SERVER_MAX_IMPORT_SIZE",
		Code:    "CSV003",
	}},
	{"invalid csv", UserMessage{
		Message: "File is not a valid CSV",
		Action:  "Ensure the file is comma-separated with quoted fields where needed",
		Code:    "CSV001",
	}},
	{"empty file", UserMessage{
		Message: "The uploaded file is empty",
		Action:  "Upload a CSV file with at least a header row",
		Code:    "CSV002",
	}},
	{"connection refused", UserMessage{
		Message: "Unable to connect to database",
		Action:  "Please try again in a few moments",
		Code:    "DB001",
	}},
}

var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// Returns the zero UserMessage for a nil error and ERR000 when nothing matches.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	for _, ek := range errorKinds {
		if errors.Is(err, ek.kind) {
			return ek.msg
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError creates a display string: "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to a specific message rather than
// the ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}
