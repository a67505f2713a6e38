package core

// convert.go turns a Row into a typed value by walking a schema tree.
//
// Conversion is pure: the same Row and Field always give the same result and
// no state is shared between calls, so rows may be converted concurrently.

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/JonMunkholm/csvtable/internal/csv"
)

// Record is the value of a composite field without a Build constructor.
type Record struct {
	Names  []string
	Values []any
}

// Get returns the value of the named child.
func (r Record) Get(name string) (any, bool) {
	for i, n := range r.Names {
		if n == name {
			return r.Values[i], true
		}
	}
	return nil, false
}

// Tagged is the value of a discriminated field.
type Tagged struct {
	Tag   string // formatted discriminant
	Value any    // value of the selected variant
}

// Converter converts rows with a fixed set of naming rules.
type Converter struct {
	Naming Naming
}

// scope carries the column resolution context down the tree.
type scope struct {
	prefix   string
	template string
	suffixes []suffix
	path     string
}

type suffix struct {
	template string
	n        int
}

func (c Converter) root() scope {
	return scope{template: c.Naming.Template}
}

func (s scope) at(path string) scope {
	s.path = path
	return s
}

// column resolves a leaf's column in scope s.
func (c Converter) column(f *Field, s scope) string {
	col := c.Naming.base(f)
	if s.prefix != "" && s.template != "" {
		col = ApplyTemplate(s.template, s.prefix, col)
	}
	for _, sf := range s.suffixes {
		col = ApplySuffix(sf.template, col, sf.n)
	}
	return col
}

// children returns the scope for the children of a composite-like node.
func (c Converter) children(f *Field, s scope) (scope, error) {
	cs := s
	if f.Template != "" {
		cs.template = f.Template
	}
	if f.UsePrefix {
		if cs.template == "" {
			return scope{}, configErrorf(s.path, "prefixed field needs a template")
		}
		// The outer prefix and any suffixes are folded into the new prefix.
		cs.prefix = c.column(f, s)
		cs.suffixes = nil
	}
	return cs, nil
}

// Convert converts row according to f.
func (c Converter) Convert(row Row, f *Field) (any, error) {
	return c.convert(row, f, c.root().at(f.Name), true)
}

func (c Converter) convert(row Row, f *Field, s scope, root bool) (any, error) {
	switch f.Node {
	case NodePrimitive:
		return c.primitive(row, f, s)
	case NodeOptional:
		return c.optional(row, f, s)
	case NodeList:
		return c.list(row, f, s)
	case NodeComposite:
		return c.composite(row, f, s, root)
	case NodeRepeated:
		return c.repeated(row, f, s)
	case NodeDiscriminated:
		return c.discriminated(row, f, s, root)
	case NodeNumbered:
		return c.numbered(row, f, s)
	}
	return nil, configErrorf(s.path, "unknown node kind %s", f.Node)
}

func (c Converter) cellError(row Row, s scope, col, raw string, err error) error {
	return &CellError{Row: row.Index, Path: s.path, Column: col, Raw: raw, Err: err}
}

// lookup fetches the raw cell for a leaf, failing when it is required and absent.
func (c Converter) lookup(row Row, f *Field, s scope) (string, string, error) {
	col := c.column(f, s)
	raw, state := row.Lookup(col)
	switch state {
	case CellMissingColumn:
		return col, "", c.cellError(row, s, col, "", ErrColumnNotFound)
	case CellShortRow:
		i, _ := row.Header.IndexOf(col)
		return col, "", c.cellError(row, s, col, "",
			fmt.Errorf("%w: column %d of %d", ErrRowArity, i+1, len(row.Cells)))
	}
	return col, raw, nil
}

func (c Converter) parse(row Row, t Type, s scope, col, raw string) (any, error) {
	v, err := t.Parse(raw)
	if err != nil {
		return nil, c.cellError(row, s, col, raw, fmt.Errorf("%w: %s: %v", ErrInvalidCell, t.Name, err))
	}
	return v, nil
}

func (c Converter) primitive(row Row, f *Field, s scope) (any, error) {
	col, raw, err := c.lookup(row, f, s)
	if err != nil {
		return nil, err
	}
	return c.parse(row, f.Type, s, col, raw)
}

func (c Converter) optional(row Row, f *Field, s scope) (any, error) {
	elem := f.Elem
	if elem.Node == NodePrimitive {
		col := c.column(elem, s)
		raw, state := row.Lookup(col)
		if state != CellPresent || strings.TrimSpace(raw) == "" {
			return nil, nil
		}
		return c.parse(row, elem.Type, s, col, raw)
	}
	if c.absent(row, elem, s, false) {
		return nil, nil
	}
	return c.convert(row, elem, s, false)
}

func (c Converter) list(row Row, f *Field, s scope) (any, error) {
	col, raw, err := c.lookup(row, f, s)
	if err != nil {
		return nil, err
	}
	elems := csv.SplitList(raw)
	out := make([]any, len(elems))
	for i, e := range elems {
		v, err := c.parse(row, f.Type, s.at(s.path+"["+strconv.Itoa(i)+"]"), col, e)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (c Converter) composite(row Row, f *Field, s scope, root bool) (any, error) {
	cs, err := c.children(f, s)
	if err != nil {
		return nil, err
	}
	values, err := c.fields(row, f.Fields, cs, root)
	if err != nil {
		return nil, err
	}
	return c.assemble(f, s, values)
}

// fields converts children in order. Paths below the root are dotted.
func (c Converter) fields(row Row, fields []*Field, s scope, root bool) ([]any, error) {
	values := make([]any, len(fields))
	for i, child := range fields {
		path := child.Name
		if !root {
			path = joinPath(s.path, child.Name)
		}
		v, err := c.convert(row, child, s.at(path), false)
		if err != nil {
			return nil, err
		}
		values[i] = v
	}
	return values, nil
}

func (c Converter) assemble(f *Field, s scope, values []any) (any, error) {
	if f.Build != nil {
		v, err := f.Build(values)
		if err != nil {
			return nil, fmt.Errorf("field %s: build: %w", s.path, err)
		}
		return v, nil
	}
	names := make([]string, len(f.Fields))
	for i, child := range f.Fields {
		names[i] = child.Name
	}
	return Record{Names: names, Values: values}, nil
}

// instance returns the scope of one repetition of a repeated field.
func (c Converter) instance(f *Field, s scope, name string) (scope, error) {
	tmpl := s.template
	if f.Template != "" {
		tmpl = f.Template
	}
	if tmpl == "" {
		return scope{}, configErrorf(s.path, "repeated field needs a prefix template")
	}
	return scope{
		prefix:   c.column(&Field{Name: name}, s),
		template: tmpl,
		path:     joinPath(s.path, name),
	}, nil
}

func (c Converter) repeated(row Row, f *Field, s scope) (any, error) {
	out := make([]any, len(f.Prefixes))
	for i, p := range f.Prefixes {
		is, err := c.instance(f, s, p)
		if err != nil {
			return nil, err
		}
		v, err := c.convert(row, f.Elem, is, false)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (c Converter) discriminated(row Row, f *Field, s scope, root bool) (any, error) {
	cs, err := c.children(f, s)
	if err != nil {
		return nil, err
	}
	keyScope := cs.at(joinPath(s.path, f.Key.Name))
	if root {
		keyScope = cs.at(f.Key.Name)
	}
	kv, err := c.primitive(row, f.Key, keyScope)
	if err != nil {
		return nil, err
	}
	tag, err := f.Key.Type.FormatValue(kv)
	if err != nil {
		return nil, fmt.Errorf("field %s: format discriminant: %w", keyScope.path, err)
	}
	variant, ok := f.Variants[tag]
	if !ok {
		col := c.column(f.Key, cs)
		raw, _ := row.Cell(col)
		return nil, c.cellError(row, keyScope, col, raw, fmt.Errorf("%w: %q", ErrUnmappedDiscriminant, tag))
	}
	var v any
	if variant.Node == NodeComposite {
		// Variant children sit directly under the discriminated field.
		values, err := c.fields(row, variant.Fields, cs, root)
		if err != nil {
			return nil, err
		}
		if v, err = c.assemble(variant, s, values); err != nil {
			return nil, err
		}
	} else if v, err = c.convert(row, variant, cs, false); err != nil {
		return nil, err
	}
	return Tagged{Tag: tag, Value: v}, nil
}

func (c Converter) numbered(row Row, f *Field, s scope) (any, error) {
	out := []any{}
	// Each index needs its own columns, so the header bounds the probe.
	limit := f.Start + row.Header.Len()
	for n := f.Start; n <= limit; n++ {
		ns := numberedScope(f, s, n)
		if c.absent(row, f.Elem, ns, true) {
			break
		}
		v, err := c.convert(row, f.Elem, ns, false)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// absent reports whether every required leaf column of f is missing or empty
// in scope s. When f has no required leaves, all leaves are considered.
func (c Converter) absent(row Row, f *Field, s scope, requiredOnly bool) bool {
	var required, all []string
	c.leaves(f, s, false, func(col string, optional bool) {
		all = append(all, col)
		if !optional {
			required = append(required, col)
		}
	})
	cols := all
	if requiredOnly && len(required) > 0 {
		cols = required
	}
	for _, col := range cols {
		if raw, ok := row.Cell(col); ok && strings.TrimSpace(raw) != "" {
			return false
		}
	}
	return true
}

// leaves visits the leaf columns of f as they would be resolved in scope s.
// Numbered fields contribute their first index only; discriminated fields
// contribute their key.
func (c Converter) leaves(f *Field, s scope, optional bool, visit func(col string, optional bool)) {
	switch f.Node {
	case NodePrimitive, NodeList:
		visit(c.column(f, s), optional)
	case NodeOptional:
		c.leaves(f.Elem, s, true, visit)
	case NodeComposite:
		cs, err := c.children(f, s)
		if err != nil {
			return
		}
		for _, child := range f.Fields {
			c.leaves(child, cs, optional, visit)
		}
	case NodeRepeated:
		for _, p := range f.Prefixes {
			if is, err := c.instance(f, s, p); err == nil {
				c.leaves(f.Elem, is, optional, visit)
			}
		}
	case NodeDiscriminated:
		if cs, err := c.children(f, s); err == nil {
			c.leaves(f.Key, cs, optional, visit)
		}
	case NodeNumbered:
		c.leaves(f.Elem, numberedScope(f, s, f.Start), true, visit)
	}
}

// Check reports naming problems that only show up once a schema is combined
// with naming rules, such as a repeated field with no template in effect.
func (c Converter) Check(f *Field) error {
	return c.check(f, c.root().at(f.Name))
}

func (c Converter) check(f *Field, s scope) error {
	switch f.Node {
	case NodeOptional:
		return c.check(f.Elem, s)
	case NodeComposite:
		cs, err := c.children(f, s)
		if err != nil {
			return err
		}
		for _, child := range f.Fields {
			if err := c.check(child, cs.at(joinPath(s.path, child.Name))); err != nil {
				return err
			}
		}
	case NodeRepeated:
		for _, p := range f.Prefixes {
			is, err := c.instance(f, s, p)
			if err != nil {
				return err
			}
			if err := c.check(f.Elem, is); err != nil {
				return err
			}
		}
	case NodeDiscriminated:
		cs, err := c.children(f, s)
		if err != nil {
			return err
		}
		for _, v := range f.Variants {
			if err := c.check(v, cs.at(s.path)); err != nil {
				return err
			}
		}
	case NodeNumbered:
		return c.check(f.Elem, s)
	}
	return nil
}
