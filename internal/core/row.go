package core

// Row is one tokenized data line bound to its header.
type Row struct {
	Cells  []string
	Header Header
	Index  int // zero-based position among data rows
	Line   int // physical line the row starts on, 0 when unknown
}

// CellState describes the outcome of a column lookup.
type CellState int

const (
	CellPresent       CellState = iota
	CellMissingColumn           // the header has no such column
	CellShortRow                // the column exists but the row ends before it
)

// Lookup returns the raw text under column.
func (r Row) Lookup(column string) (string, CellState) {
	i, ok := r.Header.IndexOf(column)
	if !ok {
		return "", CellMissingColumn
	}
	if i >= len(r.Cells) {
		return "", CellShortRow
	}
	return r.Cells[i], CellPresent
}

// Cell is Lookup reduced to present/absent.
func (r Row) Cell(column string) (string, bool) {
	s, state := r.Lookup(column)
	return s, state == CellPresent
}
