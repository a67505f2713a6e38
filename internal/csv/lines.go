package csv

import (
	"bufio"
	"bytes"
	"io"
	"strings"
)

// MaxLineSize bounds a single physical line read by a LineReader.
const MaxLineSize = 16 << 20

// LineReader yields logical lines from a stream. When the grammar is
// multiline, physical lines are joined with their original terminator
// ("\n" or "\r\n") while a quoted cell is open.
type LineReader struct {
	sc      *bufio.Scanner
	grammar *Grammar
	line    int
}

// NewLineReader creates a LineReader over r using g (Default when nil).
func NewLineReader(r io.Reader, g *Grammar) *LineReader {
	if g == nil {
		g = Default
	}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64<<10), MaxLineSize)
	sc.Split(scanPhysicalLines)
	return &LineReader{sc: sc, grammar: g}
}

// Next returns the next logical line and the physical line number it starts
// on. It returns io.EOF when the input is exhausted. An unclosed quote at EOF
// is returned as-is so the tokenizer can report it.
func (lr *LineReader) Next() (string, int, error) {
	if !lr.sc.Scan() {
		if err := lr.sc.Err(); err != nil {
			return "", lr.line, err
		}
		return "", lr.line, io.EOF
	}
	lr.line++
	start := lr.line
	text, term := cutTerminator(lr.sc.Text())

	if !lr.grammar.cfg.Multiline || !lr.grammar.Incomplete(text) {
		return text, start, nil
	}

	var b strings.Builder
	b.WriteString(text)
	for lr.grammar.Incomplete(b.String()) && lr.sc.Scan() {
		lr.line++
		b.WriteString(term)
		text, term = cutTerminator(lr.sc.Text())
		b.WriteString(text)
	}
	if err := lr.sc.Err(); err != nil {
		return "", start, err
	}
	return b.String(), start, nil
}

// Line returns the number of physical lines consumed so far.
func (lr *LineReader) Line() int {
	return lr.line
}

// scanPhysicalLines is bufio.ScanLines without dropping the terminator, so
// quoted cells spanning lines keep their "\r\n".
func scanPhysicalLines(data []byte, atEOF bool) (int, []byte, error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		return i + 1, data[:i+1], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// cutTerminator splits a physical line from its line terminator.
func cutTerminator(s string) (string, string) {
	switch {
	case strings.HasSuffix(s, "\r\n"):
		return s[:len(s)-2], "\r\n"
	case strings.HasSuffix(s, "\n"):
		return s[:len(s)-1], "\n"
	case strings.HasSuffix(s, "\r"):
		return s[:len(s)-1], "\r"
	}
	return s, ""
}
