package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/JonMunkholm/sheetpipe/internal/logging"
)

// NoticeLevel is the severity of an advisory notice.
type NoticeLevel string

const (
	NoticeSuccess NoticeLevel = "success"
	NoticeInfo    NoticeLevel = "info"
	NoticeWarning NoticeLevel = "warning"
	NoticeError   NoticeLevel = "error"
)

// Notice is the short operator-facing message a stage leaves behind. Notices
// are logged and kept on the run record; the dashboard renders them.
type Notice struct {
	Level   NoticeLevel `json:"level"`
	Title   string      `json:"title"`
	Message string      `json:"message"`
}

func (n Notice) slogLevel() slog.Level {
	switch n.Level {
	case NoticeWarning:
		return slog.LevelWarn
	case NoticeError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// logNotice writes n through the request-scoped logger.
func logNotice(ctx context.Context, stage string, n Notice) {
	logging.FromContext(ctx).Log(ctx, n.slogLevel(), n.Message,
		"stage", stage, "notice", string(n.Level), "title", n.Title)
}

// noticeForError picks the notice shown when a stage fails. Missing tables
// are errors, too-small tables are warnings.
func noticeForError(err error) Notice {
	var se *StageError
	if errors.As(err, &se) {
		switch se.Kind {
		case ErrTableNotFound:
			return Notice{Level: NoticeError, Title: "Error", Message: fmt.Sprintf("Sheet '%s' not found", se.Table)}
		case ErrInsufficientData:
			return Notice{Level: NoticeWarning, Title: "Warning", Message: capitalize(se.Reason) + "."}
		case ErrInvalidArgument:
			return Notice{Level: NoticeError, Title: "Error", Message: capitalize(se.Reason)}
		}
	}
	if errors.Is(err, ErrPipelineBusy) {
		return Notice{Level: NoticeWarning, Title: "Busy", Message: "Another run is in progress. Please try again shortly."}
	}
	return Notice{Level: NoticeError, Title: "Error", Message: "Error: " + err.Error()}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return capitalizeWord(s)
}
