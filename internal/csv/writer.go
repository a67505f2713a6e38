package csv

import (
	"bufio"
	"errors"
	"io"
	"strings"
)

const defaultBufferSize = 4 << 10

var errWriterNoTarget = errors.New("csv: writer destination cannot be nil")

// QuoteCell renders one cell for output. The text is quoted only when it
// contains the delimiter, the quote character, a line terminator, or the list
// separator (when that differs from the delimiter); embedded quotes are doubled.
func (g *Grammar) QuoteCell(s string) string {
	if !g.needsQuote(s) {
		return s
	}
	q := string(g.cfg.Quote)
	return q + strings.ReplaceAll(s, q, q+q) + q
}

// FormatLine joins rendered cells with the delimiter. No terminator is added.
func (g *Grammar) FormatLine(cells []string) string {
	var b strings.Builder
	for i, c := range cells {
		if i > 0 {
			b.WriteByte(g.cfg.Delimiter)
		}
		b.WriteString(g.QuoteCell(c))
	}
	return b.String()
}

func (g *Grammar) needsQuote(s string) bool {
	sep := g.cfg.ListSeparator
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c == g.cfg.Delimiter, c == g.cfg.Quote, c == '\n', c == '\r':
			return true
		case c == sep && sep != g.cfg.Delimiter:
			return true
		}
	}
	return false
}

// Writer emits records through a Grammar with buffered output.
type Writer struct {
	dst     *bufio.Writer
	grammar *Grammar

	// UseCRLF terminates records with \r\n instead of \n.
	UseCRLF bool

	err error
}

// NewWriter creates a Writer for w. A nil grammar means Default.
func NewWriter(w io.Writer, g *Grammar) *Writer {
	if w == nil {
		panic(errWriterNoTarget.Error())
	}
	if g == nil {
		g = Default
	}
	return &Writer{
		dst:     bufio.NewWriterSize(w, defaultBufferSize),
		grammar: g,
	}
}

// Write emits a single record followed by the line terminator.
// After the first error every call returns that error.
func (w *Writer) Write(record []string) error {
	if w.err != nil {
		return w.err
	}
	if _, err := w.dst.WriteString(w.grammar.FormatLine(record)); err != nil {
		w.err = err
		return err
	}
	term := "\n"
	if w.UseCRLF {
		term = "\r\n"
	}
	if _, err := w.dst.WriteString(term); err != nil {
		w.err = err
		return err
	}
	return nil
}

// WriteAll writes every record and flushes.
func (w *Writer) WriteAll(records [][]string) error {
	for _, r := range records {
		if err := w.Write(r); err != nil {
			return err
		}
	}
	return w.Flush()
}

// Flush writes buffered data to the underlying writer.
func (w *Writer) Flush() error {
	if w.err != nil {
		return w.err
	}
	if err := w.dst.Flush(); err != nil {
		w.err = err
		return err
	}
	return nil
}

// Error reports the first error encountered by the writer.
func (w *Writer) Error() error {
	return w.err
}
