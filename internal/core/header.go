package core

import (
	"fmt"
	"strconv"
	"strings"
)

// HeaderIndex maps column names (lowercase) to their position in a row.
type HeaderIndex map[string]int

// Header is an ordered list of column names, unique after normalization.
// The zero Header means "no header".
type Header struct {
	names []string
	index HeaderIndex
}

// NewHeader builds a Header from raw header cells. Names are cleaned of CSV
// artifacts; two names that normalize to the same key are rejected. Empty
// names are kept for alignment but cannot be looked up.
func NewHeader(names []string) (Header, error) {
	h := Header{
		names: make([]string, len(names)),
		index: make(HeaderIndex, len(names)),
	}
	for i, n := range names {
		clean := CleanCell(n)
		h.names[i] = clean
		if clean == "" {
			continue
		}
		key := strings.ToLower(clean)
		if j, dup := h.index[key]; dup {
			return Header{}, fmt.Errorf("%w: %q at positions %d and %d", ErrDuplicateColumn, clean, j+1, i+1)
		}
		h.index[key] = i
	}
	return h, nil
}

// MustHeader is NewHeader that panics on error.
func MustHeader(names ...string) Header {
	h, err := NewHeader(names)
	if err != nil {
		panic(err)
	}
	return h
}

// Len returns the number of columns.
func (h Header) Len() int { return len(h.names) }

// IsZero reports whether h is the absent header.
func (h Header) IsZero() bool { return h.names == nil }

// Names returns a copy of the column names in order.
func (h Header) Names() []string {
	out := make([]string, len(h.names))
	copy(out, h.names)
	return out
}

// IndexOf returns the position of name, matched case-insensitively.
func (h Header) IndexOf(name string) (int, bool) {
	i, ok := h.index[strings.ToLower(CleanCell(name))]
	return i, ok
}

// Concat returns the columns of h followed by those of other.
func (h Header) Concat(other Header) (Header, error) {
	names := make([]string, 0, h.Len()+other.Len())
	names = append(names, h.names...)
	names = append(names, other.names...)
	return NewHeader(names)
}

// Equal reports whether both headers have the same columns in the same order.
func (h Header) Equal(other Header) bool {
	if h.IsZero() != other.IsZero() || len(h.names) != len(other.names) {
		return false
	}
	for i := range h.names {
		if !strings.EqualFold(h.names[i], other.names[i]) {
			return false
		}
	}
	return true
}

// JoinHeaderRows merges a multi-row header column-wise. Non-empty parts of
// each column are joined with sep (a single space when empty), so
//
//	name,  ,age
//	first,last,
//
// becomes "name first", "last", "age".
func JoinHeaderRows(rows [][]string, sep string) []string {
	if sep == "" {
		sep = " "
	}
	width := 0
	for _, r := range rows {
		width = max(width, len(r))
	}
	out := make([]string, width)
	for col := range out {
		var parts []string
		for _, r := range rows {
			if col < len(r) {
				if p := CleanCell(r[col]); p != "" {
					parts = append(parts, p)
				}
			}
		}
		out[col] = strings.Join(parts, sep)
	}
	return out
}

// HeaderStyle selects how a header is synthesized for headerless input.
type HeaderStyle int

const (
	HeaderNone    HeaderStyle = iota // read the header from the input
	HeaderLetters                    // A, B, ..., Z, AA, AB, ...
	HeaderNumbers                    // 1, 2, 3, ...
)

// ParseHeaderStyle parses "letters", "numbers" or "" (none).
func ParseHeaderStyle(s string) (HeaderStyle, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return HeaderNone, nil
	case "letters":
		return HeaderLetters, nil
	case "numbers":
		return HeaderNumbers, nil
	}
	return HeaderNone, fmt.Errorf("%w: unknown header style %q", ErrConfiguration, s)
}

// SyntheticHeader returns an n-column header in the given style.
func SyntheticHeader(n int, style HeaderStyle) Header {
	names := make([]string, n)
	for i := range names {
		if style == HeaderNumbers {
			names[i] = strconv.Itoa(i + 1)
		} else {
			names[i] = columnLetters(i)
		}
	}
	return MustHeader(names...)
}

func columnLetters(i int) string {
	var b []byte
	for i++; i > 0; i = (i - 1) / 26 {
		b = append([]byte{byte('A' + (i-1)%26)}, b...)
	}
	return string(b)
}

// CleanCell removes common CSV artifacts from a cell value:
// - Trims whitespace
// - Removes Excel formula prefix (="...")
// - Removes surrounding quotes
func CleanCell(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") {
		s = s[2 : len(s)-1]
	} else if strings.HasPrefix(s, "=") {
		s = s[1:]
	}

	return strings.Trim(s, `"'`)
}
