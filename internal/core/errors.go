package core

import (
	"errors"
	"fmt"

	"github.com/JonMunkholm/csvtable/internal/csv"
)

// Conversion error kinds. Every error returned by a Converter wraps exactly
// one of these, so callers can branch with errors.Is.
var (
	ErrColumnNotFound       = errors.New("column not found")
	ErrInvalidCell          = errors.New("invalid cell")
	ErrUnmappedDiscriminant = errors.New("unmapped discriminant")
	ErrRowArity             = errors.New("row has fewer cells than the header")
	ErrDuplicateColumn      = errors.New("duplicate column")

	// ErrConfiguration is shared with the grammar so a bad schema and a bad
	// grammar are reported the same way.
	ErrConfiguration = csv.ErrConfiguration
)

// CellError locates a conversion failure within a row.
type CellError struct {
	Row    int    // zero-based data row index
	Path   string // dotted field path, e.g. "director.name"
	Column string // resolved column name
	Raw    string // raw cell text, empty when the cell was absent
	Err    error
}

func (e *CellError) Error() string {
	if e.Raw != "" {
		return fmt.Sprintf("row %d: field %s: column %q (value %q): %v", e.Row, e.Path, e.Column, e.Raw, e.Err)
	}
	return fmt.Sprintf("row %d: field %s: column %q: %v", e.Row, e.Path, e.Column, e.Err)
}

func (e *CellError) Unwrap() error { return e.Err }

// ErrorKind is the stable, machine-readable name of an error category.
type ErrorKind string

const (
	KindConfiguration        ErrorKind = "configuration"
	KindUnterminatedQuote    ErrorKind = "unterminated_quote"
	KindBareQuote            ErrorKind = "bare_quote"
	KindUnexpectedText       ErrorKind = "unexpected_text"
	KindColumnNotFound       ErrorKind = "column_not_found"
	KindInvalidCell          ErrorKind = "invalid_cell"
	KindUnmappedDiscriminant ErrorKind = "unmapped_discriminant"
	KindRowArity             ErrorKind = "row_arity"
	KindDuplicateColumn      ErrorKind = "duplicate_column"
	KindUnknown              ErrorKind = "unknown"
)

var kinds = []struct {
	err  error
	kind ErrorKind
}{
	{ErrConfiguration, KindConfiguration},
	{csv.ErrUnterminatedQuote, KindUnterminatedQuote},
	{csv.ErrBareQuote, KindBareQuote},
	{csv.ErrUnexpectedText, KindUnexpectedText},
	{ErrColumnNotFound, KindColumnNotFound},
	{ErrInvalidCell, KindInvalidCell},
	{ErrUnmappedDiscriminant, KindUnmappedDiscriminant},
	{ErrRowArity, KindRowArity},
	{ErrDuplicateColumn, KindDuplicateColumn},
}

// KindOf classifies err. It returns KindUnknown for errors outside the
// taxonomy and "" for nil.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindUnknown
}

func configErrorf(path, format string, args ...any) error {
	if path == "" {
		path = "<root>"
	}
	return fmt.Errorf("%w: field %s: %s", ErrConfiguration, path, fmt.Sprintf(format, args...))
}
