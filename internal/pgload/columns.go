package pgload

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/JonMunkholm/csvtable/internal/core"
)

// pgTypes maps cell type names to column types. Values of these types are
// sent as-is; pgx encodes them natively.
var pgTypes = map[string]string{
	"string":  "text",
	"int":     "bigint",
	"float":   "double precision",
	"bool":    "boolean",
	"date":    "date",
	"decimal": "numeric",
	"uuid":    "uuid",
}

// pgType returns the column type for a leaf field and whether its values
// must be formatted to text first.
func pgType(f *core.Field) (string, bool) {
	if f.Node == core.NodeList {
		return "text[]", true
	}
	if t, ok := pgTypes[f.Type.Name]; ok {
		return t, false
	}
	return "text", true
}

// formatList converts a list value to the []string pgx sends as text[].
func formatList(f *core.Field, v any) ([]string, error) {
	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("expected list, got %T", v)
	}
	cells := make([]string, len(list))
	for i, e := range list {
		s, err := f.Type.FormatValue(e)
		if err != nil {
			return nil, err
		}
		cells[i] = s
	}
	return cells, nil
}

// toDBColumnName converts a header column to a database column name.
// "Customer address city" -> "customer_address_city"
// "actor_1_name" -> "actor_1_name" (no change if already snake_case)
func toDBColumnName(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	underscore := false
	for _, r := range strings.TrimSpace(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
			underscore = false
			continue
		}
		if !underscore && b.Len() > 0 {
			b.WriteByte('_')
			underscore = true
		}
	}
	return strings.TrimSuffix(b.String(), "_")
}

// quoteIdentifier quotes a SQL identifier to prevent injection.
func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
