package csv

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
)

func readAllLines(t *testing.T, lr *LineReader) ([]string, []int) {
	t.Helper()
	var lines []string
	var starts []int
	for {
		line, start, err := lr.Next()
		if errors.Is(err, io.EOF) {
			return lines, starts
		}
		if err != nil {
			t.Fatalf("Next() error = %v", err)
		}
		lines = append(lines, line)
		starts = append(starts, start)
	}
}

func TestLineReader(t *testing.T) {
	lr := NewLineReader(strings.NewReader("a,b\r\nc,\"d\ne\"\nf"), nil)
	lines, starts := readAllLines(t, lr)

	if len(lines) != 4 {
		t.Fatalf("got %d lines, want 4: %q", len(lines), lines)
	}
	if lines[0] != "a,b" {
		t.Errorf("lines[0] = %q, want %q", lines[0], "a,b")
	}
	if starts[3] != 4 {
		t.Errorf("starts[3] = %d, want 4", starts[3])
	}
}

func TestLineReader_Multiline(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Multiline = true
	g := MustNew(cfg)

	lr := NewLineReader(strings.NewReader("h1,h2\nc,\"d\ne\"\nf,g\n"), g)
	lines, starts := readAllLines(t, lr)

	want := []string{"h1,h2", "c,\"d\ne\"", "f,g"}
	if len(lines) != len(want) {
		t.Fatalf("got %q, want %q", lines, want)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("lines[%d] = %q, want %q", i, lines[i], want[i])
		}
	}
	if starts[2] != 4 {
		t.Errorf("starts[2] = %d, want 4", starts[2])
	}
	if lr.Line() != 4 {
		t.Errorf("Line() = %d, want 4", lr.Line())
	}
}

func TestLineReader_MultilineStrayQuote(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Multiline = true
	g := MustNew(cfg)

	// A quote inside a bare cell does not open a quoted cell.
	lr := NewLineReader(strings.NewReader("species,count\nHawk,1\n3\" Finch,2\nOwl,3\nCrow,4\n"), g)
	lines, starts := readAllLines(t, lr)

	want := []string{"species,count", "Hawk,1", `3" Finch,2`, "Owl,3", "Crow,4"}
	if len(lines) != len(want) {
		t.Fatalf("got %q, want %q", lines, want)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("lines[%d] = %q, want %q", i, lines[i], want[i])
		}
		if starts[i] != i+1 {
			t.Errorf("starts[%d] = %d, want %d", i, starts[i], i+1)
		}
	}
}

func TestLineReader_MultilineKeepsCRLF(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Multiline = true
	g := MustNew(cfg)

	lr := NewLineReader(strings.NewReader("id,text\r\n1,\"first\r\nsecond\"\r\n2,plain\r\n"), g)
	lines, _ := readAllLines(t, lr)

	want := []string{"id,text", "1,\"first\r\nsecond\"", "2,plain"}
	if len(lines) != len(want) {
		t.Fatalf("got %q, want %q", lines, want)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("lines[%d] = %q, want %q", i, lines[i], want[i])
		}
	}

	cells, err := g.Tokenize(lines[1])
	if err != nil {
		t.Fatalf("Tokenize() error = %v", err)
	}
	if cells[1] != "first\r\nsecond" {
		t.Errorf("cells[1] = %q, want %q", cells[1], "first\r\nsecond")
	}
}

func TestLineReader_MultilineUnclosedAtEOF(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Multiline = true
	g := MustNew(cfg)

	lr := NewLineReader(strings.NewReader("a,\"open\nstill"), g)
	line, start, err := lr.Next()
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if start != 1 {
		t.Errorf("start = %d, want 1", start)
	}
	if _, err := g.TokenizeLine(line, start); !errors.Is(err, ErrUnterminatedQuote) {
		t.Errorf("TokenizeLine() error = %v, want ErrUnterminatedQuote", err)
	}
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
		want  string
	}{
		{"with BOM", append([]byte{0xEF, 0xBB, 0xBF}, "hello,world"...), "hello,world"},
		{"without BOM", []byte("hello,world"), "hello,world"},
		{"empty", []byte{}, ""},
		{"only BOM", []byte{0xEF, 0xBB, 0xBF}, ""},
		{"invalid byte", []byte("a\xffb"), "a�b"},
		{"valid multibyte", []byte("café,naïve"), "café,naïve"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := io.ReadAll(Sanitize(bytes.NewReader(tt.input)))
			if err != nil {
				t.Fatalf("ReadAll() error = %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCountingReader(t *testing.T) {
	cr := NewCountingReader(strings.NewReader("0123456789"), 20)
	buf := make([]byte, 5)
	if _, err := cr.Read(buf); err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if cr.BytesRead() != 5 {
		t.Errorf("BytesRead() = %d, want 5", cr.BytesRead())
	}
	if cr.Progress() != 25 {
		t.Errorf("Progress() = %d, want 25", cr.Progress())
	}
	if NewCountingReader(strings.NewReader(""), 0).Progress() != 0 {
		t.Error("Progress() with unknown total should be 0")
	}
}
