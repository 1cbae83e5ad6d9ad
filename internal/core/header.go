package core

import (
	"context"
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/JonMunkholm/sheetpipe/internal/logging"
	"github.com/JonMunkholm/sheetpipe/internal/sheet"
	"github.com/JonMunkholm/sheetpipe/internal/store"
)

// HeaderStatus is the outcome of a header normalization.
type HeaderStatus string

const (
	HeaderModified  HeaderStatus = "modified"
	HeaderUnchanged HeaderStatus = "unchanged"
	HeaderEmpty     HeaderStatus = "empty"
	HeaderNotFound  HeaderStatus = "not_found"
)

// HeaderChange records one rewritten header cell. Column is 0-based.
type HeaderChange struct {
	Column int    `json:"column"`
	From   string `json:"from"`
	To     string `json:"to"`
}

// HeaderResult is returned by NormalizeHeader.
type HeaderResult struct {
	Table    string         `json:"table"`
	Status   HeaderStatus   `json:"status"`
	Modified bool           `json:"modified"`
	Changes  []HeaderChange `json:"changes,omitempty"`
}

// NormalizeHeader capitalizes the first letter of every whitespace-separated
// word in the header row of table. A missing table is reported through the
// result status, not as an error.
func NormalizeHeader(ctx context.Context, st store.Store, table string) (HeaderResult, error) {
	log := logging.ForStage(ctx, StageNormalizeHeader, table)
	res := HeaderResult{Table: table}

	t, err := st.Table(ctx, table)
	if err != nil {
		if errors.Is(err, store.ErrTableNotFound) {
			log.Info("sheet not found")
			res.Status = HeaderNotFound
			return res, nil
		}
		return res, &StageError{Stage: StageNormalizeHeader, Table: table, Reason: "lookup failed", Cause: err}
	}

	cols, err := t.ColumnCount(ctx)
	if err != nil {
		return res, readErr(StageNormalizeHeader, table, err)
	}
	if cols <= 0 {
		log.Info("sheet is empty, no data to modify")
		res.Status = HeaderEmpty
		return res, nil
	}

	rows, err := t.ReadRows(ctx, store.Span(0, 1), store.Span(0, cols))
	if err != nil {
		return res, readErr(StageNormalizeHeader, table, err)
	}
	header := rows[0]

	for i, c := range header {
		text, ok := c.TextValue()
		if !ok || strings.TrimFunc(text, isSpace) == "" {
			continue
		}
		normalized := capitalizeWords(text)
		if normalized == text {
			continue
		}
		header[i] = sheet.Text(normalized)
		res.Changes = append(res.Changes, HeaderChange{Column: i, From: text, To: normalized})
		log.Debug("header cell changed", "column", i+1, "from", text, "to", normalized)
	}

	if len(res.Changes) == 0 {
		log.Info("no changes were made to the header")
		res.Status = HeaderUnchanged
		return res, nil
	}

	if err := t.WriteRows(ctx, 0, 0, []sheet.Row{header}); err != nil {
		return res, writeErr(StageNormalizeHeader, table, "write header", err)
	}
	if err := store.Flush(ctx, t); err != nil {
		return res, writeErr(StageNormalizeHeader, table, "flush header", err)
	}

	log.Info("header capitalized", "cells", len(res.Changes))
	res.Status = HeaderModified
	res.Modified = true
	return res, nil
}

// capitalizeWords splits s on runs of whitespace, upper-cases the first
// rune of every word and joins the words with single spaces. Leading or
// trailing whitespace collapses to one space.
func capitalizeWords(s string) string {
	words := splitOnSpace(s)
	for i, w := range words {
		words[i] = capitalizeWord(w)
	}
	return strings.Join(words, " ")
}

func capitalizeWord(w string) string {
	r, size := utf8.DecodeRuneInString(w)
	if size == 0 || r == utf8.RuneError {
		return w
	}
	// Casers keep state, so each call gets its own.
	return cases.Upper(language.Und).String(string(r)) + w[size:]
}

// splitOnSpace splits like a regexp split on \s+: a leading or trailing
// separator yields an empty first or last word.
func splitOnSpace(s string) []string {
	var words []string
	start := 0
	inSpace := false
	for i, r := range s {
		switch {
		case isSpace(r) && !inSpace:
			words = append(words, s[start:i])
			inSpace = true
		case !isSpace(r) && inSpace:
			start = i
			inSpace = false
		}
	}
	if inSpace {
		return append(words, "")
	}
	return append(words, s[start:])
}

func isSpace(r rune) bool {
	return unicode.IsSpace(r) || r == '\uFEFF'
}
