package csv

import (
	"errors"
	"reflect"
	"testing"
)

// FuzzTokenize checks that tokenizing never panics and that any failure is a
// located ParseError.
func FuzzTokenize(f *testing.F) {
	seeds := []string{
		"",
		"a,b,c",
		`"Hello ""Goodbye"""`,
		"{a,b},c",
		`a,"b`,
		`ab"c`,
		"{unclosed,x",
		"\"multi\nline\"",
	}
	for _, s := range seeds {
		f.Add(s)
	}

	f.Fuzz(func(t *testing.T, line string) {
		cells, err := Default.Tokenize(line)
		if err != nil {
			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("error %T is not *ParseError", err)
			}
			if pe.Column < 1 {
				t.Fatalf("Column = %d, want >= 1", pe.Column)
			}
			return
		}
		if len(cells) == 0 {
			t.Fatalf("Tokenize(%q) returned no cells", line)
		}
	})
}

// FuzzQuoteRoundTrip checks tokenize(render(s)) == [s] for every cell that
// is not a list in non-canonical form.
func FuzzQuoteRoundTrip(f *testing.F) {
	for _, s := range []string{"", "x", "a,b", `q"q`, "l\nl", "\r\n", "{a,b}", "{}", "a{b", "{x"} {
		f.Add(s)
	}
	cfg := DefaultConfig()
	cfg.Multiline = true
	g := MustNew(cfg)

	f.Fuzz(func(t *testing.T, s string) {
		if elems, ok := g.splitBraced(s); ok && JoinList(elems) != s {
			t.Skip("non-canonical list text is canonicalized")
		}
		got, err := g.Tokenize(g.FormatLine([]string{s}))
		if err != nil {
			t.Fatalf("Tokenize(render(%q)) error = %v", s, err)
		}
		if !reflect.DeepEqual(got, []string{s}) {
			t.Fatalf("Tokenize(render(%q)) = %q", s, got)
		}
	})
}
