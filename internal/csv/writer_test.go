package csv

import (
	"bytes"
	"errors"
	"reflect"
	"testing"
)

func TestQuoteCell(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "Red-tailed Hawk", "Red-tailed Hawk"},
		{"empty", "", ""},
		{"delimiter", "a,b", `"a,b"`},
		{"quote", `say "hi"`, `"say ""hi"""`},
		{"newline", "a\nb", "\"a\nb\""},
		{"carriage return", "a\rb", "\"a\rb\""},
		{"list text", "{a,b}", `"{a,b}"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Default.QuoteCell(tt.input); got != tt.want {
				t.Errorf("QuoteCell(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestQuoteCell_ListSeparator(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ListSeparator = '|'
	g := MustNew(cfg)
	if got := g.QuoteCell("a|b"); got != `"a|b"` {
		t.Errorf("QuoteCell() = %q, want %q", got, `"a|b"`)
	}
}

func TestQuotingRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Multiline = true
	g := MustNew(cfg)

	inputs := []string{
		"",
		"plain",
		"with,delimiter",
		`with "quote"`,
		`"`,
		`""`,
		"line\nbreak",
		"all, \"of\"\r\nthem",
		",,,",
	}
	for _, s := range inputs {
		got, err := g.Tokenize(g.FormatLine([]string{s}))
		if err != nil {
			t.Errorf("Tokenize(render(%q)) error = %v", s, err)
			continue
		}
		if !reflect.DeepEqual(got, []string{s}) {
			t.Errorf("Tokenize(render(%q)) = %q, want [%q]", s, got, s)
		}
	}
}

func TestWriter(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, nil)
	err := w.WriteAll([][]string{
		{"species", "count"},
		{"Red-tailed Hawk", "1027"},
		{`Say "what"`, "1,000"},
	})
	if err != nil {
		t.Fatalf("WriteAll() error = %v", err)
	}
	want := "species,count\nRed-tailed Hawk,1027\n\"Say \"\"what\"\"\",\"1,000\"\n"
	if buf.String() != want {
		t.Errorf("output = %q, want %q", buf.String(), want)
	}
}

func TestWriter_CRLF(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, Default)
	w.UseCRLF = true
	if err := w.Write([]string{"a", "b"}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if buf.String() != "a,b\r\n" {
		t.Errorf("output = %q, want %q", buf.String(), "a,b\r\n")
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestWriter_StickyError(t *testing.T) {
	w := NewWriter(failingWriter{}, nil)
	_ = w.Write([]string{"a"})
	if err := w.Flush(); err == nil {
		t.Fatal("Flush() expected error")
	}
	if w.Error() == nil {
		t.Error("Error() = nil, want sticky error")
	}
	if err := w.Write([]string{"b"}); err == nil {
		t.Error("Write() after failure expected error")
	}
}
