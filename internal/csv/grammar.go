// Package csv tokenizes and renders delimited text lines.
//
// A Grammar turns one logical line into an ordered slice of decoded cells.
// Each cell is tried against three alternatives in order, the first match
// winning:
//
//  1. a quoted cell, in which two consecutive quote characters decode to one;
//  2. a braced list cell such as {a,b,c};
//  3. a bare cell, the longest match of the configured cell pattern.
//
// List cells are always emitted in the canonical form {a,b,c}, whatever
// separator they were read with. A bare cell that contains the list separator
// (when the separator differs from the delimiter) is read as a list too, so
// "Action|Adventure" becomes "{Action,Adventure}".
//
// A Grammar is immutable after New and safe for concurrent use.
package csv

import (
	"regexp"
	"strings"
)

// Canonical list tokens used on output regardless of the configured ones.
const (
	CanonicalListOpen      = '{'
	CanonicalListClose     = '}'
	CanonicalListSeparator = ','
)

// Config describes the tokens of a delimited text format.
type Config struct {
	// Delimiter is the literal separator written between cells.
	Delimiter byte
	// DelimiterPattern matches the separator when reading. Defaults to the
	// quoted Delimiter.
	DelimiterPattern string
	// CellPattern matches the content of a bare cell. It must not match
	// across a delimiter. Defaults to "anything but delimiter or quote".
	CellPattern string
	// Quote bounds a quoted cell.
	Quote byte
	// ListOpen and ListClose bound a list cell; ListSeparator splits it.
	ListOpen      byte
	ListClose     byte
	ListSeparator byte
	// Multiline allows quoted cells to span line terminators.
	Multiline bool
}

// DefaultConfig returns the conventional comma-separated grammar.
func DefaultConfig() Config {
	return Config{
		Delimiter:     ',',
		Quote:         '"',
		ListOpen:      '{',
		ListClose:     '}',
		ListSeparator: ',',
	}
}

// Grammar is a validated Config compiled for tokenizing.
type Grammar struct {
	cfg   Config
	delim *regexp.Regexp
	cell  *regexp.Regexp
}

// New validates cfg and compiles its patterns.
// Any inconsistency is reported as a *ConfigError.
func New(cfg Config) (*Grammar, error) {
	if err := checkTokens(cfg); err != nil {
		return nil, err
	}

	delimPattern := cfg.DelimiterPattern
	if delimPattern == "" {
		delimPattern = regexp.QuoteMeta(string(cfg.Delimiter))
	}
	cellPattern := cfg.CellPattern
	if cellPattern == "" {
		cellPattern = "[^" + classEscape(cfg.Delimiter) + classEscape(cfg.Quote) + "\r\n]*"
	}

	delim, err := regexp.Compile(`^(?:` + delimPattern + `)`)
	if err != nil {
		return nil, &ConfigError{Field: "DelimiterPattern", Reason: err.Error()}
	}
	cell, err := regexp.Compile(`^(?:` + cellPattern + `)`)
	if err != nil {
		return nil, &ConfigError{Field: "CellPattern", Reason: err.Error()}
	}
	delim.Longest()
	cell.Longest()

	wholeDelim := regexp.MustCompile(`^(?:` + delimPattern + `)$`)
	if wholeDelim.MatchString("") {
		return nil, &ConfigError{Field: "DelimiterPattern", Reason: "matches empty input"}
	}
	if !wholeDelim.MatchString(string(cfg.Delimiter)) {
		return nil, &ConfigError{Field: "DelimiterPattern", Reason: "does not match the delimiter"}
	}
	if wholeDelim.MatchString(string(cfg.Quote)) {
		return nil, &ConfigError{Field: "DelimiterPattern", Reason: "matches the quote character"}
	}
	wholeCell := regexp.MustCompile(`^(?:` + cellPattern + `)$`)
	if wholeCell.MatchString("a" + string(cfg.Delimiter) + "b") {
		return nil, &ConfigError{Field: "CellPattern", Reason: "matches across a delimiter"}
	}

	return &Grammar{cfg: cfg, delim: delim, cell: cell}, nil
}

// MustNew is New that panics on error. Use it for package-level grammars.
func MustNew(cfg Config) *Grammar {
	g, err := New(cfg)
	if err != nil {
		panic(err)
	}
	return g
}

// Default is the grammar built from DefaultConfig.
var Default = MustNew(DefaultConfig())

func checkTokens(cfg Config) error {
	tokens := []struct {
		name string
		b    byte
	}{
		{"Delimiter", cfg.Delimiter},
		{"Quote", cfg.Quote},
		{"ListOpen", cfg.ListOpen},
		{"ListClose", cfg.ListClose},
		{"ListSeparator", cfg.ListSeparator},
	}
	for _, t := range tokens {
		if t.b == 0 {
			return &ConfigError{Field: t.name, Reason: "must be set"}
		}
		if t.b == '\n' || t.b == '\r' {
			return &ConfigError{Field: t.name, Reason: "cannot be a line terminator"}
		}
	}

	switch {
	case cfg.Quote == cfg.Delimiter:
		return &ConfigError{Field: "Quote", Reason: "equals the delimiter"}
	case cfg.ListOpen == cfg.ListClose:
		return &ConfigError{Field: "ListClose", Reason: "equals ListOpen"}
	case cfg.ListOpen == cfg.Delimiter || cfg.ListOpen == cfg.Quote:
		return &ConfigError{Field: "ListOpen", Reason: "collides with the delimiter or quote"}
	case cfg.ListClose == cfg.Delimiter || cfg.ListClose == cfg.Quote:
		return &ConfigError{Field: "ListClose", Reason: "collides with the delimiter or quote"}
	case cfg.ListSeparator == cfg.Quote || cfg.ListSeparator == cfg.ListOpen || cfg.ListSeparator == cfg.ListClose:
		return &ConfigError{Field: "ListSeparator", Reason: "collides with the quote or list brackets"}
	}
	return nil
}

func classEscape(b byte) string {
	switch b {
	case '\\', ']', '[', '^', '-':
		return `\` + string(b)
	}
	return string(b)
}

// Config returns the configuration the grammar was built from.
func (g *Grammar) Config() Config {
	return g.cfg
}

// Tokenize splits a single logical line into decoded cells.
func (g *Grammar) Tokenize(line string) ([]string, error) {
	return g.TokenizeLine(line, 1)
}

// TokenizeLine is Tokenize with the physical line number used for error
// locations. A single trailing line terminator is ignored.
func (g *Grammar) TokenizeLine(line string, lineNo int) ([]string, error) {
	line = trimTerminator(line)

	cells := make([]string, 0, 16)
	pos := 0
	for {
		cell, next, err := g.readCell(line, pos, lineNo)
		if err != nil {
			return nil, err
		}
		cells = append(cells, cell)
		pos = next

		if pos >= len(line) {
			return cells, nil
		}
		n := g.delimiterAt(line, pos)
		if n == 0 {
			return nil, g.errorAt(line, lineNo, pos, unexpected(line[pos], g.cfg.Quote))
		}
		pos += n
		if pos >= len(line) {
			// Trailing delimiter yields an empty last cell.
			return append(cells, ""), nil
		}
	}
}

// Incomplete reports whether buf ends inside a quoted cell, meaning the next
// physical line belongs to the same logical line. Like the tokenizer, only a
// quote at the start of a cell opens a quoted cell; quotes inside bare
// cells are ignored and doubled quotes stay inside the cell.
func (g *Grammar) Incomplete(buf string) bool {
	q := g.cfg.Quote
	inQuote, atStart := false, true
	for i := 0; i < len(buf); {
		c := buf[i]
		switch {
		case inQuote:
			if c == q {
				if i+1 < len(buf) && buf[i+1] == q {
					i += 2
					continue
				}
				inQuote = false
			}
			i++
		case atStart && c == q:
			inQuote, atStart = true, false
			i++
		case c == '\n' || c == '\r':
			atStart = true
			i++
		default:
			if n := g.delimiterAt(buf, i); n > 0 {
				atStart = true
				i += n
				continue
			}
			atStart = false
			i++
		}
	}
	return inQuote
}

func (g *Grammar) readCell(line string, pos, lineNo int) (string, int, error) {
	if pos < len(line) {
		switch line[pos] {
		case g.cfg.Quote:
			return g.readQuoted(line, pos, lineNo)
		case g.cfg.ListOpen:
			if cell, next, ok := g.readList(line, pos); ok {
				return cell, next, nil
			}
		}
	}
	return g.readBare(line, pos, lineNo)
}

func (g *Grammar) readQuoted(line string, pos, lineNo int) (string, int, error) {
	q := g.cfg.Quote
	var b strings.Builder

	i := pos + 1
	for i < len(line) {
		c := line[i]
		if c == q {
			if i+1 < len(line) && line[i+1] == q {
				b.WriteByte(q)
				i += 2
				continue
			}
			i++
			if !g.atBoundary(line, i) {
				return "", 0, g.errorAt(line, lineNo, i, ErrBareQuote)
			}
			text := b.String()
			if elems, ok := g.splitBraced(text); ok {
				text = JoinList(elems)
			}
			return text, i, nil
		}
		if (c == '\n' || c == '\r') && !g.cfg.Multiline {
			return "", 0, g.errorAt(line, lineNo, pos, ErrUnterminatedQuote)
		}

		// Copy the run of plain bytes up to the next quote or terminator.
		j := i + 1
		for j < len(line) && line[j] != q && (g.cfg.Multiline || (line[j] != '\n' && line[j] != '\r')) {
			j++
		}
		b.WriteString(line[i:j])
		i = j
	}
	return "", 0, g.errorAt(line, lineNo, pos, ErrUnterminatedQuote)
}

// readList matches a braced list starting at pos. It reports false when
// the span is not a well-formed list so the caller can fall back to a bare cell.
func (g *Grammar) readList(line string, pos int) (string, int, bool) {
	end := strings.IndexByte(line[pos+1:], g.cfg.ListClose)
	if end < 0 {
		return "", 0, false
	}
	next := pos + 1 + end + 1
	elems, ok := g.splitBraced(line[pos:next])
	if !ok || !g.atBoundary(line, next) {
		return "", 0, false
	}
	return JoinList(elems), next, true
}

func (g *Grammar) readBare(line string, pos, lineNo int) (string, int, error) {
	n := 0
	if loc := g.cell.FindStringIndex(line[pos:]); loc != nil {
		n = loc[1]
	}
	end := pos + n
	if !g.atBoundary(line, end) {
		return "", 0, g.errorAt(line, lineNo, end, unexpected(line[end], g.cfg.Quote))
	}

	text := line[pos:end]
	sep := g.cfg.ListSeparator
	if sep != g.cfg.Delimiter && strings.IndexByte(text, sep) >= 0 {
		text = JoinList(trimAll(strings.Split(text, string(sep))))
	}
	return text, end, nil
}

// splitBraced splits text of the form <open>a<sep>b<close> into trimmed elements.
func (g *Grammar) splitBraced(text string) ([]string, bool) {
	if len(text) < 2 || text[0] != g.cfg.ListOpen || text[len(text)-1] != g.cfg.ListClose {
		return nil, false
	}
	inner := text[1 : len(text)-1]
	if strings.ContainsAny(inner, string([]byte{g.cfg.Quote, g.cfg.ListOpen, '\n', '\r'})) {
		return nil, false
	}
	if strings.TrimSpace(inner) == "" {
		return []string{}, true
	}
	return trimAll(strings.Split(inner, string(g.cfg.ListSeparator))), true
}

func (g *Grammar) delimiterAt(line string, pos int) int {
	loc := g.delim.FindStringIndex(line[pos:])
	if loc == nil {
		return 0
	}
	return loc[1]
}

func (g *Grammar) atBoundary(line string, pos int) bool {
	return pos >= len(line) || g.delimiterAt(line, pos) > 0
}

// errorAt builds a ParseError, translating a byte offset in a possibly
// multi-line buffer into a physical line and column.
func (g *Grammar) errorAt(line string, lineNo, pos int, err error) error {
	if pos > len(line) {
		pos = len(line)
	}
	before := line[:pos]
	lineNo += strings.Count(before, "\n")
	col := pos - strings.LastIndexByte(before, '\n')
	return &ParseError{Line: lineNo, Column: col, Err: err}
}

func unexpected(c, quote byte) error {
	if c == quote {
		return ErrBareQuote
	}
	return ErrUnexpectedText
}

func trimTerminator(line string) string {
	line = strings.TrimSuffix(line, "\n")
	return strings.TrimSuffix(line, "\r")
}

func trimAll(parts []string) []string {
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// JoinList renders elements in canonical list form: {a,b,c}.
func JoinList(elems []string) string {
	var b strings.Builder
	b.WriteByte(CanonicalListOpen)
	for i, e := range elems {
		if i > 0 {
			b.WriteByte(CanonicalListSeparator)
		}
		b.WriteString(e)
	}
	b.WriteByte(CanonicalListClose)
	return b.String()
}

// SplitList decodes a canonical list cell back into its elements.
// Text that is not braced is treated as a single element; the empty
// string and "{}" are the empty list.
func SplitList(cell string) []string {
	s := strings.TrimSpace(cell)
	if s == "" {
		return []string{}
	}
	if len(s) >= 2 && s[0] == CanonicalListOpen && s[len(s)-1] == CanonicalListClose {
		inner := s[1 : len(s)-1]
		if strings.TrimSpace(inner) == "" {
			return []string{}
		}
		return trimAll(strings.Split(inner, string(CanonicalListSeparator)))
	}
	return []string{s}
}
