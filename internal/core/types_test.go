package core

import (
	"math/big"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// ----------------------------------------------------------------------------
// Decimal Tests
// ----------------------------------------------------------------------------

func TestDecimalType_Parse(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantValid bool
		wantValue string
	}{
		{name: "positive integer", input: "123", wantValid: true, wantValue: "123"},
		{name: "zero", input: "0", wantValid: true, wantValue: "0"},
		{name: "negative integer", input: "-456", wantValid: true, wantValue: "-456"},
		{name: "decimal number", input: "123.45", wantValid: true, wantValue: "123.45"},
		{name: "leading decimal point", input: ".99", wantValid: true, wantValue: "0.99"},
		{name: "keeps scale", input: "1027.50", wantValid: true, wantValue: "1027.50"},
		{name: "dollar sign", input: "$1,234.56", wantValid: true, wantValue: "1234.56"},
		{name: "euro sign", input: "€1234.56", wantValid: true, wantValue: "1234.56"},
		{name: "pound sign", input: "£1234.56", wantValid: true, wantValue: "1234.56"},
		{name: "accounting negative", input: "(123.45)", wantValid: true, wantValue: "-123.45"},
		{name: "whitespace", input: "  999.99  ", wantValid: true, wantValue: "999.99"},
		{name: "small negative", input: "-0.5", wantValid: true, wantValue: "-0.5"},

		{name: "empty", input: "", wantValid: false},
		{name: "letters", input: "abc", wantValid: false},
		{name: "trailing letters", input: "12abc", wantValid: false},
		{name: "double sign", input: "--5", wantValid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := DecimalType.Parse(tt.input)
			if (err == nil) != tt.wantValid {
				t.Fatalf("Parse(%q) error = %v, wantValid %v", tt.input, err, tt.wantValid)
			}
			if !tt.wantValid {
				return
			}
			got, err := DecimalType.Format(v)
			if err != nil {
				t.Fatalf("Format() error = %v", err)
			}
			if got != tt.wantValue {
				t.Errorf("Parse(%q) = %s, want %s", tt.input, got, tt.wantValue)
			}
		})
	}
}

func TestFormatNumeric(t *testing.T) {
	tests := []struct {
		name string
		n    pgtype.Numeric
		want string
	}{
		{"invalid", pgtype.Numeric{}, ""},
		{"nan", pgtype.Numeric{NaN: true, Valid: true}, "NaN"},
		{"positive exponent", pgtype.Numeric{Int: big.NewInt(12), Exp: 3, Valid: true}, "12000"},
		{"scale two", pgtype.Numeric{Int: big.NewInt(102750), Exp: -2, Valid: true}, "1027.50"},
		{"fraction only", pgtype.Numeric{Int: big.NewInt(5), Exp: -3, Valid: true}, "0.005"},
		{"negative fraction", pgtype.Numeric{Int: big.NewInt(-5), Exp: -1, Valid: true}, "-0.5"},
		{"zero", pgtype.Numeric{Int: big.NewInt(0), Exp: 2, Valid: true}, "0"},
		{"infinity", pgtype.Numeric{InfinityModifier: pgtype.Infinity, Valid: true}, "Infinity"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatNumeric(tt.n); got != tt.want {
				t.Errorf("FormatNumeric() = %q, want %q", got, tt.want)
			}
		})
	}
}

// ----------------------------------------------------------------------------
// Primitive Tests
// ----------------------------------------------------------------------------

func TestBoolType_Parse(t *testing.T) {
	tests := []struct {
		input   string
		want    bool
		wantErr bool
	}{
		{"true", true, false},
		{"TRUE", true, false},
		{"t", true, false},
		{"yes", true, false},
		{"Y", true, false},
		{"1", true, false},
		{"false", false, false},
		{"f", false, false},
		{"no", false, false},
		{" 0 ", false, false},
		{"", false, true},
		{"maybe", false, true},
	}
	for _, tt := range tests {
		v, err := BoolType.Parse(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("Parse(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && v != tt.want {
			t.Errorf("Parse(%q) = %v, want %v", tt.input, v, tt.want)
		}
	}
}

func TestIntType(t *testing.T) {
	v, err := IntType.Parse(" 1027 ")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if v != int64(1027) {
		t.Errorf("Parse() = %v (%T), want int64 1027", v, v)
	}
	if _, err := IntType.Parse("10.5"); err == nil {
		t.Error("Parse(\"10.5\") expected error")
	}
	if _, err := IntType.Parse(""); err == nil {
		t.Error("Parse(\"\") expected error")
	}

	for _, in := range []any{int64(7), 7, int32(7)} {
		got, err := IntType.Format(in)
		if err != nil || got != "7" {
			t.Errorf("Format(%T) = %q, %v, want \"7\"", in, got, err)
		}
	}
	if _, err := IntType.Format("7"); err == nil {
		t.Error("Format(string) expected error")
	}
}

func TestFloatType_RoundTrip(t *testing.T) {
	for _, in := range []string{"0.1", "1027", "-3.25", "1000000"} {
		v, err := FloatType.Parse(in)
		if err != nil {
			t.Fatalf("Parse(%q) error = %v", in, err)
		}
		got, err := FloatType.Format(v)
		if err != nil {
			t.Fatalf("Format() error = %v", err)
		}
		if got != in {
			t.Errorf("Format(Parse(%q)) = %q", in, got)
		}
	}
}

func TestDateType_Parse(t *testing.T) {
	want := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	for _, in := range []string{"2024-01-15", "2024/01/15", "1/15/2024", "01/15/2024", "Jan 15, 2024", "15 Jan 2024", "20240115", "1/15/24"} {
		v, err := DateType.Parse(in)
		if err != nil {
			t.Errorf("Parse(%q) error = %v", in, err)
			continue
		}
		if !v.(time.Time).Equal(want) {
			t.Errorf("Parse(%q) = %v, want %v", in, v, want)
		}
	}

	if _, err := DateType.Parse("not a date"); err == nil {
		t.Error("Parse(\"not a date\") expected error")
	}

	got, err := DateType.Format(want)
	if err != nil || got != "2024-01-15" {
		t.Errorf("Format() = %q, %v, want 2024-01-15", got, err)
	}
}

func TestDateType_TwoDigitYearPivot(t *testing.T) {
	v, err := DateType.Parse("1/2/99")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if got := v.(time.Time).Year(); got != 1999 {
		t.Errorf("year = %d, want 1999", got)
	}
}

func TestUUIDType(t *testing.T) {
	id := uuid.New()
	v, err := UUIDType.Parse(id.String())
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if v != id {
		t.Errorf("Parse() = %v, want %v", v, id)
	}
	if _, err := UUIDType.Parse("not-a-uuid"); err == nil {
		t.Error("Parse(\"not-a-uuid\") expected error")
	}
}

// ----------------------------------------------------------------------------
// Registry Tests
// ----------------------------------------------------------------------------

func TestLookupType(t *testing.T) {
	for _, name := range []string{"string", "int", "float", "bool", "date", "decimal", "uuid", "INT"} {
		if _, ok := LookupType(name); !ok {
			t.Errorf("LookupType(%q) not found", name)
		}
	}
	if _, ok := LookupType("complex"); ok {
		t.Error("LookupType(\"complex\") should not be found")
	}
}

func TestRegisterType_Duplicate(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("RegisterType() with duplicate name should panic")
		}
	}()
	RegisterType(Type{Name: "Int", Parse: parseInt})
}
