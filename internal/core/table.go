package core

import (
	"errors"
	"fmt"
)

// Table is an ordered collection of converted rows with an optional header.
// When a header is present every row was converted from a line of that
// header's width.
type Table[T any] struct {
	rows   []T
	header Header
}

// NewTable returns a headerless table over rows.
func NewTable[T any](rows []T) Table[T] {
	return Table[T]{rows: rows}
}

// NewTableWithHeader returns a table whose rows were read under header.
func NewTableWithHeader[T any](header Header, rows []T) Table[T] {
	return Table[T]{rows: rows, header: header}
}

// Len returns the number of rows.
func (t Table[T]) Len() int { return len(t.rows) }

// Rows returns a copy of the rows.
func (t Table[T]) Rows() []T {
	out := make([]T, len(t.rows))
	copy(out, t.rows)
	return out
}

// Row returns row i. It panics when i is out of range, like a slice.
func (t Table[T]) Row(i int) T { return t.rows[i] }

// Header returns the header and whether one is present.
func (t Table[T]) Header() (Header, bool) { return t.header, !t.header.IsZero() }

// Filter keeps the rows for which keep returns true.
func (t Table[T]) Filter(keep func(T) bool) Table[T] {
	out := make([]T, 0, len(t.rows))
	for _, r := range t.rows {
		if keep(r) {
			out = append(out, r)
		}
	}
	return Table[T]{rows: out, header: t.header}
}

// Slice returns rows [from, to), clamped to the table bounds.
func (t Table[T]) Slice(from, to int) Table[T] {
	from = min(max(from, 0), len(t.rows))
	to = min(max(to, from), len(t.rows))
	return Table[T]{rows: t.rows[from:to:to], header: t.header}
}

// Concat appends the rows of other. Both tables must share the same header,
// or both be headerless.
func (t Table[T]) Concat(other Table[T]) (Table[T], error) {
	if !t.header.Equal(other.header) {
		return Table[T]{}, errors.New("concat: tables have different headers")
	}
	rows := make([]T, 0, len(t.rows)+len(other.rows))
	rows = append(rows, t.rows...)
	rows = append(rows, other.rows...)
	return Table[T]{rows: rows, header: t.header}, nil
}

// MapTable applies fn to every row.
func MapTable[T, U any](t Table[T], fn func(T) U) Table[U] {
	out := make([]U, len(t.rows))
	for i, r := range t.rows {
		out[i] = fn(r)
	}
	return Table[U]{rows: out, header: t.header}
}

// FlatMapTable applies fn to every row and concatenates the results.
func FlatMapTable[T, U any](t Table[T], fn func(T) []U) Table[U] {
	var out []U
	for _, r := range t.rows {
		out = append(out, fn(r)...)
	}
	return Table[U]{rows: out, header: t.header}
}

// Pair is a row of a zipped table.
type Pair[T, U any] struct {
	First  T
	Second U
}

// ZipTables pairs rows by position, stopping at the shorter table. The
// result has the concatenated header when both inputs have one.
func ZipTables[T, U any](a Table[T], b Table[U]) (Table[Pair[T, U]], error) {
	n := min(len(a.rows), len(b.rows))
	out := make([]Pair[T, U], n)
	for i := range out {
		out[i] = Pair[T, U]{First: a.rows[i], Second: b.rows[i]}
	}

	var header Header
	if !a.header.IsZero() && !b.header.IsZero() {
		h, err := a.header.Concat(b.header)
		if err != nil {
			return Table[Pair[T, U]]{}, fmt.Errorf("zip: %w", err)
		}
		header = h
	}
	return Table[Pair[T, U]]{rows: out, header: header}, nil
}

// TypedTable asserts every row of t to T.
func TypedTable[T any](t Table[any]) (Table[T], error) {
	out := make([]T, len(t.rows))
	for i, r := range t.rows {
		v, ok := r.(T)
		if !ok {
			return Table[T]{}, fmt.Errorf("row %d: %T is not %T", i, r, v)
		}
		out[i] = v
	}
	return Table[T]{rows: out, header: t.header}, nil
}
