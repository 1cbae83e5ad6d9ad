// Package sheet defines the in-memory table model shared by every stage:
// cells, rows and the rules for blankness and numeric text.
package sheet

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Marker is the sentinel text written into blank cells of the subtotal column.
// Only an exact, case-sensitive match counts as a marker.
const Marker = "x"

// Kind identifies which variant a Cell holds.
type Kind uint8

const (
	KindEmpty Kind = iota
	KindText
	KindNumber
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindNumber:
		return "number"
	default:
		return "empty"
	}
}

// Cell is a single table value: Empty, Text or Number.
// The zero value is Empty.
type Cell struct {
	kind Kind
	text string
	num  float64
}

// Empty returns an empty cell.
func Empty() Cell { return Cell{} }

// Text returns a text cell. Text("") is blank but keeps the text kind.
func Text(s string) Cell { return Cell{kind: KindText, text: s} }

// Number returns a numeric cell.
func Number(f float64) Cell { return Cell{kind: KindNumber, num: f} }

// Kind returns the variant held by the cell.
func (c Cell) Kind() Kind { return c.kind }

// IsBlank reports whether the cell is empty or holds the empty string.
func (c Cell) IsBlank() bool {
	return c.kind == KindEmpty || (c.kind == KindText && c.text == "")
}

// IsMarker reports whether the cell holds exactly the sentinel marker.
func (c Cell) IsMarker() bool {
	return c.kind == KindText && c.text == Marker
}

// TextValue returns the raw string of a Text cell.
func (c Cell) TextValue() (string, bool) {
	if c.kind != KindText {
		return "", false
	}
	return c.text, true
}

// NumberValue returns the value of a Number cell.
func (c Cell) NumberValue() (float64, bool) {
	if c.kind != KindNumber {
		return 0, false
	}
	return c.num, true
}

// Numeric returns the cell's contribution to a running sum: the value of a
// Number cell, or the parsed value of numeric-looking Text.
func (c Cell) Numeric() (float64, bool) {
	switch c.kind {
	case KindNumber:
		return c.num, true
	case KindText:
		return ParseNumber(c.text)
	default:
		return 0, false
	}
}

// String returns the text representation used for grouping and display.
func (c Cell) String() string {
	switch c.kind {
	case KindText:
		return c.text
	case KindNumber:
		return FormatNumber(c.num)
	default:
		return ""
	}
}

// Equal reports whether two cells hold the same variant and value.
func (c Cell) Equal(o Cell) bool {
	if c.kind != o.kind {
		return false
	}
	switch c.kind {
	case KindText:
		return c.text == o.text
	case KindNumber:
		return c.num == o.num || (math.IsNaN(c.num) && math.IsNaN(o.num))
	default:
		return true
	}
}

// GoString makes test failure output readable.
func (c Cell) GoString() string {
	switch c.kind {
	case KindText:
		return fmt.Sprintf("Text(%q)", c.text)
	case KindNumber:
		return fmt.Sprintf("Number(%s)", FormatNumber(c.num))
	default:
		return "Empty()"
	}
}

// FormatNumber renders a float the way a spreadsheet shows a plain number:
// shortest round-trip digits, exponent form only for very large or very
// small magnitudes.
func FormatNumber(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case math.IsNaN(f):
		return "NaN"
	}
	abs := math.Abs(f)
	if abs != 0 && (abs < 1e-6 || abs >= 1e21) {
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// MarshalJSON encodes Empty as null, Text as a string and Number as a number.
// Non-finite numbers have no JSON form and are encoded as their text.
func (c Cell) MarshalJSON() ([]byte, error) {
	switch c.kind {
	case KindText:
		return json.Marshal(c.text)
	case KindNumber:
		if math.IsInf(c.num, 0) || math.IsNaN(c.num) {
			return json.Marshal(FormatNumber(c.num))
		}
		return json.Marshal(c.num)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (c *Cell) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch t := v.(type) {
	case nil:
		*c = Empty()
	case string:
		*c = Text(t)
	case float64:
		*c = Number(t)
	case bool:
		*c = Text(strconv.FormatBool(t))
	default:
		return fmt.Errorf("sheet: unsupported cell JSON %s", data)
	}
	return nil
}
