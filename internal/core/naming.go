package core

import (
	"strconv"
	"strings"
	"unicode"
)

// Naming maps logical field names onto header columns.
//
// Resolution order for a field name: the Renames table, else Mapper, else
// the name itself. When a prefix is in effect the result is substituted into
// Template, where $x is the prefix and $c the mapped column.
type Naming struct {
	Renames  map[string]string
	Mapper   func(string) string
	Template string
}

// Column maps a logical name without any prefix.
func (n Naming) Column(name string) string {
	if col, ok := n.Renames[name]; ok {
		return col
	}
	if n.Mapper != nil {
		return n.Mapper(name)
	}
	return name
}

// Resolve maps name under prefix. An empty template falls back to
// n.Template; with no template at all the prefix is ignored.
func (n Naming) Resolve(name, prefix, template string) string {
	col := n.Column(name)
	if prefix == "" {
		return col
	}
	if template == "" {
		template = n.Template
	}
	if template == "" {
		return col
	}
	return ApplyTemplate(template, prefix, col)
}

func (n Naming) base(f *Field) string {
	if f.Column != "" {
		return f.Column
	}
	return n.Column(f.Name)
}

// ApplyTemplate substitutes $x and $c in template.
func ApplyTemplate(template, prefix, column string) string {
	return strings.NewReplacer("$x", prefix, "$c", column).Replace(template)
}

// ApplySuffix substitutes $c and $n in a numbered column template.
func ApplySuffix(template, column string, n int) string {
	if template == "" {
		template = DefaultSuffix
	}
	return strings.NewReplacer("$c", column, "$n", strconv.Itoa(n)).Replace(template)
}

// Mappers, selectable by name from schema documents.
var mappers = map[string]func(string) string{
	"":         Identity,
	"identity": Identity,
	"snake":    CamelToSnake,
	"words":    CamelToWords,
	"lower":    strings.ToLower,
}

// MapperByName returns a registered name mapper.
func MapperByName(name string) (func(string) string, bool) {
	m, ok := mappers[strings.ToLower(name)]
	return m, ok
}

// Identity returns s unchanged.
func Identity(s string) string { return s }

// CamelToSnake converts camelCase to snake_case: facebookLikes becomes
// facebook_likes and actor1 becomes actor_1.
func CamelToSnake(s string) string { return splitCamel(s, '_') }

// CamelToWords converts camelCase to lower-case words: facebookLikes becomes
// "facebook likes".
func CamelToWords(s string) string { return splitCamel(s, ' ') }

func splitCamel(s string, sep rune) string {
	rs := []rune(s)
	var b strings.Builder
	b.Grow(len(s) + 4)
	for i, r := range rs {
		if i > 0 && wordBoundary(rs, i) && rs[i-1] != sep && r != sep {
			b.WriteRune(sep)
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

func wordBoundary(rs []rune, i int) bool {
	prev, cur := rs[i-1], rs[i]
	switch {
	case unicode.IsUpper(cur) && (unicode.IsLower(prev) || unicode.IsDigit(prev)):
		return true
	case unicode.IsUpper(cur) && unicode.IsUpper(prev):
		// HTTPServer: break before the last capital of a run.
		return i+1 < len(rs) && unicode.IsLower(rs[i+1])
	case unicode.IsDigit(cur) && unicode.IsLetter(prev):
		return true
	}
	return false
}
