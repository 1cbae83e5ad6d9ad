package sheet

// Row is an ordered sequence of cells.
type Row []Cell

// NewRow returns a row of width empty cells.
func NewRow(width int) Row {
	if width < 0 {
		width = 0
	}
	return make(Row, width)
}

// RowOf builds a row from loosely typed values: nil is Empty, strings are
// Text, Go numbers are Number and Cells are used as-is.
func RowOf(values ...any) Row {
	r := make(Row, len(values))
	for i, v := range values {
		r[i] = CellOf(v)
	}
	return r
}

// CellOf converts a loosely typed value into a Cell.
func CellOf(v any) Cell {
	switch t := v.(type) {
	case nil:
		return Empty()
	case Cell:
		return t
	case string:
		return Text(t)
	case float64:
		return Number(t)
	case float32:
		return Number(float64(t))
	case int:
		return Number(float64(t))
	case int64:
		return Number(float64(t))
	case int32:
		return Number(float64(t))
	default:
		return Empty()
	}
}

// IsBlank reports whether every cell in the row is blank.
// A zero-width row is blank.
func (r Row) IsBlank() bool {
	for _, c := range r {
		if !c.IsBlank() {
			return false
		}
	}
	return true
}

// At returns the cell at col, or Empty when col is out of range.
func (r Row) At(col int) Cell {
	if col < 0 || col >= len(r) {
		return Empty()
	}
	return r[col]
}

// Clone returns a copy that shares no storage with r.
func (r Row) Clone() Row {
	if r == nil {
		return nil
	}
	out := make(Row, len(r))
	copy(out, r)
	return out
}

// Pad returns r widened to width with Empty cells, or truncated to width.
func (r Row) Pad(width int) Row {
	out := NewRow(width)
	copy(out, r)
	return out
}

// Strings returns the text representation of each cell.
func (r Row) Strings() []string {
	out := make([]string, len(r))
	for i, c := range r {
		out[i] = c.String()
	}
	return out
}

// Equal reports whether two rows hold equal cells.
func (r Row) Equal(o Row) bool {
	if len(r) != len(o) {
		return false
	}
	for i := range r {
		if !r[i].Equal(o[i]) {
			return false
		}
	}
	return true
}
