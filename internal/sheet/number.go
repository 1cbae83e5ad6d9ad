package sheet

// number.go handles numbers typed into cells as text, e.g. "$1,250.00".
//
// Currency symbols and thousands separators are stripped before parsing.
// Like a spreadsheet's lenient number coercion, the longest leading numeric
// literal wins, so "12 units" counts as 12 and "units 12" does not count.

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// leadingNumberRegex matches a signed decimal or scientific literal, or
// Infinity, at the start of a string.
var leadingNumberRegex = regexp.MustCompile(`^[+-]?(Infinity|(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?)`)

// numberCleaner removes the characters ignored in numeric text.
var numberCleaner = strings.NewReplacer("$", "", ",", "")

// ParseNumber parses numeric-looking text. It reports false when no leading
// numeric literal exists after cleanup.
func ParseNumber(s string) (float64, bool) {
	s = numberCleaner.Replace(s)
	s = strings.TrimLeftFunc(s, unicode.IsSpace)

	lit := leadingNumberRegex.FindString(s)
	if lit == "" {
		return 0, false
	}

	f, err := strconv.ParseFloat(lit, 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return 0, false
	}
	return f, true
}
