package core

// render.go is the mirror of convert.go: it flattens typed values back into
// cells, depth-first in schema order, using the same column resolution.

import (
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/JonMunkholm/csvtable/internal/csv"
)

// ColumnSpec describes one rendered column.
type ColumnSpec struct {
	Name string
	// Field is the primitive or list field the column is read from.
	Field *Field
	// Nullable is set when the column may be left empty: optional values,
	// numbered padding and the columns of unselected variants.
	Nullable bool
}

// Layout returns the columns needed to render values with f. Numbered
// fields get as many column groups as the longest value has elements (one
// when no values are given); discriminated fields get the key followed by
// the columns of every variant in tag order.
func Layout(f *Field, n Naming, values ...any) ([]ColumnSpec, error) {
	c := Converter{Naming: n}
	s := c.root().at(f.Name)

	counts := make(map[string]int)
	for _, v := range values {
		if err := c.flatten(f, s, true, v, counts, func(string, *Field, any) {}); err != nil {
			return nil, err
		}
	}

	var specs []ColumnSpec
	seen := make(map[string]int)
	err := c.layout(f, s, true, counts, len(values) == 0, false, func(col string, leaf *Field, nullable bool) {
		if i, ok := seen[col]; ok {
			// Variants may share a column; it is nullable if any use is.
			specs[i].Nullable = specs[i].Nullable || nullable
			return
		}
		seen[col] = len(specs)
		specs = append(specs, ColumnSpec{Name: col, Field: leaf, Nullable: nullable})
	})
	return specs, err
}

// Columns returns the header names of Layout.
func Columns(f *Field, n Naming, values ...any) ([]string, error) {
	specs, err := Layout(f, n, values...)
	if err != nil {
		return nil, err
	}
	cols := make([]string, len(specs))
	for i, s := range specs {
		cols[i] = s.Name
	}
	return cols, nil
}

// Flatten returns the typed leaf values of v aligned with header. Columns
// the value does not produce are nil.
func Flatten(f *Field, n Naming, header Header, v any) ([]any, error) {
	c := Converter{Naming: n}
	cells := make([]any, header.Len())
	var missing string
	err := c.flatten(f, c.root().at(f.Name), true, v, nil, func(col string, _ *Field, value any) {
		i, ok := header.IndexOf(col)
		if !ok {
			if missing == "" {
				missing = col
			}
			return
		}
		cells[i] = value
	})
	if err != nil {
		return nil, err
	}
	if missing != "" {
		return nil, fmt.Errorf("render: %w: %q is not in the header", ErrColumnNotFound, missing)
	}
	return cells, nil
}

// Render flattens v into cells aligned with header. Columns the value does
// not produce are left empty.
func Render(f *Field, n Naming, header Header, v any) ([]string, error) {
	c := Converter{Naming: n}
	cells := make([]string, header.Len())
	var missing string
	var ferr error
	err := c.flatten(f, c.root().at(f.Name), true, v, nil, func(col string, leaf *Field, value any) {
		i, ok := header.IndexOf(col)
		if !ok {
			if missing == "" {
				missing = col
			}
			return
		}
		text, err := FormatCell(leaf, value)
		if err != nil && ferr == nil {
			ferr = fmt.Errorf("column %s: %w", col, err)
		}
		cells[i] = text
	})
	if err == nil {
		err = ferr
	}
	if err != nil {
		return nil, err
	}
	if missing != "" {
		return nil, fmt.Errorf("render: %w: %q is not in the header", ErrColumnNotFound, missing)
	}
	return cells, nil
}

// FormatCell renders the value of a primitive or list field as cell text.
func FormatCell(f *Field, v any) (string, error) {
	if f.Node != NodeList {
		return f.Type.FormatValue(v)
	}
	vs, ok := v.([]any)
	if !ok {
		return "", fmt.Errorf("cannot render %T as a list", v)
	}
	texts := make([]string, len(vs))
	for i, e := range vs {
		text, err := f.Type.FormatValue(e)
		if err != nil {
			return "", fmt.Errorf("element %d: %w", i, err)
		}
		texts[i] = text
	}
	return csv.JoinList(texts), nil
}

// WriteTable writes a header line and one line per row of t.
func WriteTable(w io.Writer, g *csv.Grammar, f *Field, n Naming, t Table[any]) error {
	rows := t.Rows()
	cols, err := Columns(f, n, rows...)
	if err != nil {
		return err
	}
	header, err := NewHeader(cols)
	if err != nil {
		return fmt.Errorf("render header: %w", err)
	}

	cw := csv.NewWriter(w, g)
	if err := cw.Write(cols); err != nil {
		return err
	}
	for i, v := range rows {
		cells, err := Render(f, n, header, v)
		if err != nil {
			return fmt.Errorf("row %d: %w", i, err)
		}
		if err := cw.Write(cells); err != nil {
			return err
		}
	}
	return cw.Flush()
}

func childPath(s scope, root bool, name string) string {
	if root {
		return name
	}
	return joinPath(s.path, name)
}

func numberedScope(f *Field, s scope, n int) scope {
	ns := s
	ns.suffixes = append(append([]suffix(nil), s.suffixes...), suffix{template: f.Suffix, n: n})
	ns.path = s.path + "[" + strconv.Itoa(n) + "]"
	return ns
}

type layoutFunc func(col string, leaf *Field, nullable bool)

// layout visits every column of f in render order.
func (c Converter) layout(f *Field, s scope, root bool, counts map[string]int, blank, nullable bool, emit layoutFunc) error {
	switch f.Node {
	case NodePrimitive, NodeList:
		emit(c.column(f, s), f, nullable)
	case NodeOptional:
		return c.layout(f.Elem, s, root, counts, blank, true, emit)
	case NodeComposite:
		cs, err := c.children(f, s)
		if err != nil {
			return err
		}
		for _, child := range f.Fields {
			if err := c.layout(child, cs.at(childPath(s, root, child.Name)), false, counts, blank, nullable, emit); err != nil {
				return err
			}
		}
	case NodeRepeated:
		for _, p := range f.Prefixes {
			is, err := c.instance(f, s, p)
			if err != nil {
				return err
			}
			if err := c.layout(f.Elem, is, false, counts, blank, nullable, emit); err != nil {
				return err
			}
		}
	case NodeDiscriminated:
		cs, err := c.children(f, s)
		if err != nil {
			return err
		}
		emit(c.column(f.Key, cs), f.Key, nullable)
		tags := make([]string, 0, len(f.Variants))
		for tag := range f.Variants {
			tags = append(tags, tag)
		}
		sort.Strings(tags)
		for _, tag := range tags {
			v := f.Variants[tag]
			if v.Node == NodeComposite {
				for _, child := range v.Fields {
					if err := c.layout(child, cs.at(childPath(s, root, child.Name)), false, counts, blank, true, emit); err != nil {
						return err
					}
				}
				continue
			}
			if err := c.layout(v, cs, false, counts, blank, true, emit); err != nil {
				return err
			}
		}
	case NodeNumbered:
		count := counts[s.path]
		if blank {
			count = 1
		}
		for i := 0; i < count; i++ {
			if err := c.layout(f.Elem, numberedScope(f, s, f.Start+i), false, counts, blank, true, emit); err != nil {
				return err
			}
		}
	}
	return nil
}

type flattenFunc func(col string, leaf *Field, value any)

// flatten emits the typed cells of v. When counts is non-nil the length of
// every numbered value is recorded under its path.
func (c Converter) flatten(f *Field, s scope, root bool, v any, counts map[string]int, emit flattenFunc) error {
	switch f.Node {
	case NodePrimitive, NodeList:
		emit(c.column(f, s), f, v)

	case NodeOptional:
		if v == nil {
			return nil
		}
		return c.flatten(f.Elem, s, root, v, counts, emit)

	case NodeComposite:
		values, err := c.split(f, s, v)
		if err != nil {
			return err
		}
		cs, err := c.children(f, s)
		if err != nil {
			return err
		}
		for i, child := range f.Fields {
			if err := c.flatten(child, cs.at(childPath(s, root, child.Name)), false, values[i], counts, emit); err != nil {
				return err
			}
		}

	case NodeRepeated:
		vs, ok := v.([]any)
		if !ok || len(vs) != len(f.Prefixes) {
			return fmt.Errorf("field %s: want %d repetitions, got %T", s.path, len(f.Prefixes), v)
		}
		for i, p := range f.Prefixes {
			is, err := c.instance(f, s, p)
			if err != nil {
				return err
			}
			if err := c.flatten(f.Elem, is, false, vs[i], counts, emit); err != nil {
				return err
			}
		}

	case NodeDiscriminated:
		t, ok := v.(Tagged)
		if !ok {
			return fmt.Errorf("field %s: cannot render %T as a tagged value", s.path, v)
		}
		cs, err := c.children(f, s)
		if err != nil {
			return err
		}
		variant, ok := f.Variants[t.Tag]
		if !ok {
			return fmt.Errorf("field %s: %w: %q", s.path, ErrUnmappedDiscriminant, t.Tag)
		}
		// Tags are formatted key values, so parsing one gives the key back.
		key, err := f.Key.Type.Parse(t.Tag)
		if err != nil {
			return fmt.Errorf("field %s: parse tag %q: %w", s.path, t.Tag, err)
		}
		emit(c.column(f.Key, cs), f.Key, key)
		if variant.Node != NodeComposite {
			return c.flatten(variant, cs, false, t.Value, counts, emit)
		}
		values, err := c.split(variant, s, t.Value)
		if err != nil {
			return err
		}
		for i, child := range variant.Fields {
			if err := c.flatten(child, cs.at(childPath(s, root, child.Name)), false, values[i], counts, emit); err != nil {
				return err
			}
		}

	case NodeNumbered:
		vs, ok := v.([]any)
		if !ok {
			return fmt.Errorf("field %s: cannot render %T as a sequence", s.path, v)
		}
		if counts != nil && len(vs) > counts[s.path] {
			counts[s.path] = len(vs)
		}
		for i, e := range vs {
			if err := c.flatten(f.Elem, numberedScope(f, s, f.Start+i), false, e, counts, emit); err != nil {
				return err
			}
		}
	}
	return nil
}

// split returns the child values of a composite value.
func (c Converter) split(f *Field, s scope, v any) ([]any, error) {
	var values []any
	switch {
	case f.Split != nil:
		vs, err := f.Split(v)
		if err != nil {
			return nil, fmt.Errorf("field %s: split: %w", s.path, err)
		}
		values = vs
	default:
		switch r := v.(type) {
		case Record:
			values = r.Values
		case []any:
			values = r
		default:
			return nil, fmt.Errorf("field %s: cannot render %T as a composite", s.path, v)
		}
	}
	if len(values) != len(f.Fields) {
		return nil, fmt.Errorf("field %s: want %d values, got %d", s.path, len(f.Fields), len(values))
	}
	return values, nil
}
