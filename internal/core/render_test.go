package core

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestRender_MovieRoundTrip(t *testing.T) {
	schema, naming := movieSchema()
	cells := []string{
		"Avatar", "2009", "{Action,Adventure}",
		"James Cameron", "0",
		"CCH Pounder", "1000",
		"Joel David Moore", "",
	}
	v, err := Converter{Naming: naming}.Convert(rowOf(movieHeader, cells...), schema)
	if err != nil {
		t.Fatalf("Convert() error = %v", err)
	}

	cols, err := Columns(schema, naming, v)
	if err != nil {
		t.Fatalf("Columns() error = %v", err)
	}
	if !reflect.DeepEqual(cols, movieHeader) {
		t.Errorf("Columns() = %q, want %q", cols, movieHeader)
	}

	got, err := Render(schema, naming, MustHeader(cols...), v)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if !reflect.DeepEqual(got, cells) {
		t.Errorf("Render() = %q, want %q", got, cells)
	}
}

func TestRender_NumberedPadding(t *testing.T) {
	schema := Composite("response", String("respondent"), Numbered("questions", Int("questionId"), 1))
	naming := Naming{Mapper: CamelToSnake}
	long := Record{Names: []string{"respondent", "questions"}, Values: []any{"r1", []any{int64(10), int64(20), int64(30)}}}
	short := Record{Names: []string{"respondent", "questions"}, Values: []any{"r2", []any{int64(5)}}}

	cols, err := Columns(schema, naming, long, short)
	if err != nil {
		t.Fatalf("Columns() error = %v", err)
	}
	want := []string{"respondent", "question_id_1", "question_id_2", "question_id_3"}
	if !reflect.DeepEqual(cols, want) {
		t.Fatalf("Columns() = %q, want %q", cols, want)
	}

	header := MustHeader(cols...)
	cells, err := Render(schema, naming, header, short)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if want := []string{"r2", "5", "", ""}; !reflect.DeepEqual(cells, want) {
		t.Errorf("Render() = %q, want %q", cells, want)
	}

	back, err := Converter{Naming: naming}.Convert(Row{Cells: cells, Header: header}, schema)
	if err != nil {
		t.Fatalf("Convert() error = %v", err)
	}
	if !reflect.DeepEqual(back, short) {
		t.Errorf("Convert(Render()) = %#v, want %#v", back, short)
	}

	blank, err := Columns(schema, naming)
	if err != nil {
		t.Fatalf("Columns() error = %v", err)
	}
	if want := []string{"respondent", "question_id_1"}; !reflect.DeepEqual(blank, want) {
		t.Errorf("Columns() without values = %q, want %q", blank, want)
	}
}

func TestRender_Discriminated(t *testing.T) {
	cols, err := Columns(shapeSchema(), Naming{})
	if err != nil {
		t.Fatalf("Columns() error = %v", err)
	}
	if want := []string{"id", "kind", "radius", "side"}; !reflect.DeepEqual(cols, want) {
		t.Fatalf("Columns() = %q, want %q", cols, want)
	}

	v := Record{Names: []string{"id", "shape"}, Values: []any{"b", Tagged{Tag: "square", Value: Record{Names: []string{"side"}, Values: []any{3.0}}}}}
	cells, err := Render(shapeSchema(), Naming{}, MustHeader(cols...), v)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if want := []string{"b", "square", "", "3"}; !reflect.DeepEqual(cells, want) {
		t.Errorf("Render() = %q, want %q", cells, want)
	}

	bad := Record{Names: []string{"id", "shape"}, Values: []any{"c", Tagged{Tag: "hexagon", Value: Record{}}}}
	if _, err := Render(shapeSchema(), Naming{}, MustHeader(cols...), bad); !errors.Is(err, ErrUnmappedDiscriminant) {
		t.Errorf("Render() error = %v, want ErrUnmappedDiscriminant", err)
	}
}

func TestRender_Errors(t *testing.T) {
	v := Record{Names: []string{"species", "count"}, Values: []any{"Hawk", int64(3)}}

	if _, err := Render(birdSchema(), Naming{}, MustHeader("species"), v); !errors.Is(err, ErrColumnNotFound) {
		t.Errorf("Render() with narrow header error = %v, want ErrColumnNotFound", err)
	}
	if _, err := Render(birdSchema(), Naming{}, MustHeader("species", "count"), Record{Values: []any{"Hawk"}}); err == nil {
		t.Error("Render() with too few values expected error")
	}
	if _, err := Render(birdSchema(), Naming{}, MustHeader("species", "count"), Record{Values: []any{"Hawk", "3"}}); err == nil {
		t.Error("Render() of a string as int expected error")
	}
}

func TestRender_Split(t *testing.T) {
	schema := Composite("bird", String("species"), Int("count")).WithBuild(
		func(v []any) (any, error) { return bird{Species: v[0].(string), Count: v[1].(int64)}, nil },
		func(v any) ([]any, error) { b := v.(bird); return []any{b.Species, b.Count}, nil },
	)
	table := NewTable([]any{bird{"Osprey", 12}, bird{"Kestrel, American", 4}})

	var out strings.Builder
	if err := WriteTable(&out, nil, schema, Naming{}, table); err != nil {
		t.Fatalf("WriteTable() error = %v", err)
	}
	want := "species,count\nOsprey,12\n\"Kestrel, American\",4\n"
	if out.String() != want {
		t.Errorf("WriteTable() = %q, want %q", out.String(), want)
	}
}

func TestLayout_Nullable(t *testing.T) {
	specs, err := Layout(shapeSchema(), Naming{})
	if err != nil {
		t.Fatalf("Layout() error = %v", err)
	}
	want := map[string]bool{"id": false, "kind": false, "radius": true, "side": true}
	if len(specs) != len(want) {
		t.Fatalf("Layout() = %d columns, want %d", len(specs), len(want))
	}
	for _, s := range specs {
		if s.Nullable != want[s.Name] {
			t.Errorf("%s Nullable = %v, want %v", s.Name, s.Nullable, want[s.Name])
		}
	}
	if specs[2].Field.Type.Name != "float" {
		t.Errorf("radius type = %q, want float", specs[2].Field.Type.Name)
	}
}

func TestFlatten(t *testing.T) {
	v := Record{Names: []string{"id", "shape"}, Values: []any{"a", Tagged{Tag: "circle", Value: Record{Values: []any{2.5}}}}}
	got, err := Flatten(shapeSchema(), Naming{}, MustHeader("id", "kind", "radius", "side"), v)
	if err != nil {
		t.Fatalf("Flatten() error = %v", err)
	}
	if want := []any{"a", "circle", 2.5, nil}; !reflect.DeepEqual(got, want) {
		t.Errorf("Flatten() = %#v, want %#v", got, want)
	}
}

func TestFormatCell_TypeWithoutFormat(t *testing.T) {
	code := Type{Name: "code", Parse: func(s string) (any, error) { return strings.ToUpper(s), nil }}

	tests := []struct {
		name  string
		field *Field
		value any
		want  string
	}{
		{"leaf", Leaf("code", code), "AB", "AB"},
		{"list", List("codes", code), []any{"AB", "CD"}, "{AB,CD}"},
		{"hand built", &Field{Name: "code", Node: NodePrimitive, Type: code}, "EF", "EF"},
		{"nil value", Leaf("code", code), nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FormatCell(tt.field, tt.value)
			if err != nil {
				t.Fatalf("FormatCell() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("FormatCell() = %q, want %q", got, tt.want)
			}
		})
	}
}
