package core

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// Decode copies a converted value into out, usually a pointer to a struct.
// Composite children are matched to struct fields by name, ignoring case, or
// by a `csv:"name"` tag. A Tagged value decodes as {Tag, Value}.
func Decode(v any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName: "csv",
		Result:  out,
	})
	if err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	if err := dec.Decode(plain(v)); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}

// DecodeTable decodes every row of t into a T.
func DecodeTable[T any](t Table[any]) (Table[T], error) {
	out := make([]T, len(t.rows))
	for i, r := range t.rows {
		if err := Decode(r, &out[i]); err != nil {
			return Table[T]{}, fmt.Errorf("row %d: %w", i, err)
		}
	}
	return Table[T]{rows: out, header: t.header}, nil
}

// Map returns the record as a map, converting nested values recursively.
func (r Record) Map() map[string]any {
	return plain(r).(map[string]any)
}

func plain(v any) any {
	switch x := v.(type) {
	case Record:
		m := make(map[string]any, len(x.Names))
		for i, name := range x.Names {
			m[name] = plain(x.Values[i])
		}
		return m
	case Tagged:
		return map[string]any{"tag": x.Tag, "value": plain(x.Value)}
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = plain(e)
		}
		return out
	}
	return v
}
