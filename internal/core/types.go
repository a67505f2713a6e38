package core

// types.go is the cell type registry: how raw cell text becomes a typed value
// and back.
//
// The built-in parsers are lenient in the ways user-provided CSV data needs:
//   - Multiple date formats (US, EU, ISO, etc.)
//   - Currency symbols, thousand separators and accounting negatives in decimals
//   - Various boolean representations (yes/no, true/false, 1/0)
//
// Parsers return an error for text they cannot read; the caller decides
// whether an empty cell means "no value".

import (
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// Type converts between cell text and a typed value.
type Type struct {
	Name   string
	Parse  func(string) (any, error)
	Format func(any) (string, error)
}

var errEmpty = errors.New("empty value")

// Built-in types, registered under their Name.
var (
	StringType = Type{
		Name:   "string",
		Parse:  func(s string) (any, error) { return s, nil },
		Format: formatWith(func(s string) string { return s }),
	}
	IntType = Type{
		Name:   "int",
		Parse:  parseInt,
		Format: formatInt,
	}
	FloatType = Type{
		Name:   "float",
		Parse:  parseFloat,
		Format: formatWith(func(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }),
	}
	BoolType = Type{
		Name:   "bool",
		Parse:  parseBool,
		Format: formatWith(strconv.FormatBool),
	}
	DateType = Type{
		Name:   "date",
		Parse:  parseDate,
		Format: formatWith(func(t time.Time) string { return t.Format(time.DateOnly) }),
	}
	DecimalType = Type{
		Name:   "decimal",
		Parse:  parseDecimal,
		Format: formatWith(FormatNumeric),
	}
	UUIDType = Type{
		Name:   "uuid",
		Parse:  parseUUID,
		Format: formatWith(uuid.UUID.String),
	}
)

var (
	typesMu sync.RWMutex
	types   = map[string]Type{}
)

func init() {
	for _, t := range []Type{StringType, IntType, FloatType, BoolType, DateType, DecimalType, UUIDType} {
		RegisterType(t)
	}
}

// RegisterType adds a cell type to the registry.
// Panics if a type with the same name is already registered or if Parse is nil.
func RegisterType(t Type) {
	typesMu.Lock()
	defer typesMu.Unlock()

	if t.Name == "" || t.Parse == nil {
		panic(fmt.Sprintf("invalid cell type %q: name and parser are required", t.Name))
	}
	key := strings.ToLower(t.Name)
	if _, exists := types[key]; exists {
		panic(fmt.Sprintf("cell type already registered: %s", t.Name))
	}
	types[key] = t.withDefaults()
}

// withDefaults fills in fmt.Sprint formatting for types declared without
// a Format.
func (t Type) withDefaults() Type {
	if t.Format == nil {
		t.Format = formatAny
	}
	return t
}

// FormatValue renders v, using fmt.Sprint when t has no Format.
func (t Type) FormatValue(v any) (string, error) {
	if t.Format == nil {
		return formatAny(v)
	}
	return t.Format(v)
}

// LookupType returns a registered cell type by name.
func LookupType(name string) (Type, bool) {
	typesMu.RLock()
	defer typesMu.RUnlock()

	t, ok := types[strings.ToLower(name)]
	return t, ok
}

// TypeNames returns the registered type names, sorted.
func TypeNames() []string {
	typesMu.RLock()
	defer typesMu.RUnlock()

	names := make([]string, 0, len(types))
	for n := range types {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func formatWith[T any](fn func(T) string) func(any) (string, error) {
	return func(v any) (string, error) {
		t, ok := v.(T)
		if !ok {
			return "", fmt.Errorf("cannot format %T as %T", v, t)
		}
		return fn(t), nil
	}
}

func formatAny(v any) (string, error) {
	if v == nil {
		return "", nil
	}
	return fmt.Sprint(v), nil
}

func parseInt(s string) (any, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, errEmpty
	}
	return strconv.ParseInt(s, 10, 64)
}

func formatInt(v any) (string, error) {
	switch n := v.(type) {
	case int64:
		return strconv.FormatInt(n, 10), nil
	case int:
		return strconv.Itoa(n), nil
	case int32:
		return strconv.FormatInt(int64(n), 10), nil
	}
	return "", fmt.Errorf("cannot format %T as int", v)
}

func parseFloat(s string) (any, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, errEmpty
	}
	return strconv.ParseFloat(s, 64)
}

// parseBool accepts various representations: true/false, yes/no, t/f, y/n, 1/0.
func parseBool(s string) (any, error) {
	switch strings.TrimSpace(strings.ToLower(s)) {
	case "true", "t", "yes", "y", "1":
		return true, nil
	case "false", "f", "no", "n", "0":
		return false, nil
	case "":
		return nil, errEmpty
	}
	return nil, errors.New("must be yes/no, true/false, or 1/0")
}

// TwoDigitYearPivot defines how 2-digit years are interpreted.
// Years that would result in dates more than this many years in the future
// are assumed to be in the previous century.
var TwoDigitYearPivot = 20

// Date layouts split by year format for proper 2-digit year handling
var (
	twoDigitYearLayouts = []string{
		"1/2/06", "01/02/06", "1-2-06", "1.2.06", "01.02.06",
	}
	fourDigitYearLayouts = []string{
		"2006-01-02", "2006/01/02", "2006.01.02",
		"1/2/2006", "01/02/2006", "1-2-2006", "01-02-2006", "1.2.2006", "01.02.2006",
		"Jan 2, 2006", "2 Jan 2006",
		"20060102",
	}
)

func parseDate(s string) (any, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, errEmpty
	}

	// 4-digit year layouts first, they are unambiguous
	for _, layout := range fourDigitYearLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}

	pivotYear := time.Now().Year() + TwoDigitYearPivot
	for _, layout := range twoDigitYearLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			if t.Year() > pivotYear {
				t = t.AddDate(-100, 0, 0)
			}
			return t, nil
		}
	}

	return nil, errors.New("invalid date format (use YYYY-MM-DD or similar)")
}

// numericRegex validates that a string is a valid numeric format after cleanup.
// Matches integers, decimals, and scientific notation.
var numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

// parseDecimal handles currency symbols, thousands separators, and
// accounting format (parentheses for negative).
func parseDecimal(s string) (any, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, errEmpty
	}

	isNegative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		isNegative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}

	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, "€", "") // Euro
	s = strings.ReplaceAll(s, "£", "") // Pound
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)

	if isNegative {
		s = "-" + s
	}

	if !numericRegex.MatchString(s) {
		return nil, errors.New("invalid number format")
	}

	var n pgtype.Numeric
	if err := n.Scan(s); err != nil {
		return nil, fmt.Errorf("invalid number format: %w", err)
	}
	return n, nil
}

// FormatNumeric renders a numeric in plain decimal notation, keeping its
// scale: 102750e-2 renders as "1027.50".
func FormatNumeric(n pgtype.Numeric) string {
	switch {
	case !n.Valid:
		return ""
	case n.NaN:
		return "NaN"
	case n.InfinityModifier == pgtype.Infinity:
		return "Infinity"
	case n.InfinityModifier == pgtype.NegativeInfinity:
		return "-Infinity"
	}

	i := n.Int
	if i == nil {
		i = new(big.Int)
	}
	digits := new(big.Int).Abs(i).String()
	sign := ""
	if i.Sign() < 0 {
		sign = "-"
	}

	if n.Exp >= 0 {
		if i.Sign() == 0 {
			return "0"
		}
		return sign + digits + strings.Repeat("0", int(n.Exp))
	}

	scale := int(-n.Exp)
	if len(digits) <= scale {
		digits = strings.Repeat("0", scale-len(digits)+1) + digits
	}
	point := len(digits) - scale
	return sign + digits[:point] + "." + digits[point:]
}

func parseUUID(s string) (any, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, errEmpty
	}
	return uuid.Parse(s)
}
