package core

import (
	"fmt"
	"slices"
)

// NodeKind identifies the shape of a schema node.
type NodeKind int

const (
	NodePrimitive     NodeKind = iota // one cell parsed with a Type
	NodeOptional                      // Elem, or nil when absent or empty
	NodeList                          // one list cell, each element parsed with Type
	NodeComposite                     // ordered children
	NodeRepeated                      // Elem instantiated once per prefix
	NodeDiscriminated                 // Key selects one of Variants
	NodeNumbered                      // Elem probed with suffixes Start, Start+1, ...
)

func (k NodeKind) String() string {
	switch k {
	case NodePrimitive:
		return "primitive"
	case NodeOptional:
		return "optional"
	case NodeList:
		return "list"
	case NodeComposite:
		return "composite"
	case NodeRepeated:
		return "repeated"
	case NodeDiscriminated:
		return "discriminated"
	case NodeNumbered:
		return "numbered"
	}
	return fmt.Sprintf("NodeKind(%d)", int(k))
}

// DefaultSuffix is the column template used by numbered repetition.
// $c is the resolved column, $n the index.
const DefaultSuffix = "$c_$n"

// Field is a node of a schema tree. Build trees with the constructors below
// rather than by hand; they set Node consistently.
type Field struct {
	Name string
	Node NodeKind

	// Type parses primitive and list cells.
	Type Type
	// Column overrides naming for this field (a per-field rename).
	Column string

	// Fields are the children of a composite, in column order.
	Fields []*Field
	// Elem is the wrapped node of optional, repeated and numbered fields.
	Elem *Field

	// Prefixes are the instance names of a repeated field.
	Prefixes []string
	// UsePrefix makes a composite's resolved name the $x prefix of its children.
	UsePrefix bool
	// Template overrides the naming template for this subtree.
	Template string

	// Key and Variants describe a discriminated field.
	Key      *Field
	Variants map[string]*Field

	// Start and Suffix configure numbered repetition.
	Start  int
	Suffix string

	// Build assembles a composite's child values into a caller type; Split is
	// its inverse, used when rendering. Without them a composite is a Record.
	Build func(values []any) (any, error)
	Split func(v any) ([]any, error)
}

// Leaf returns a primitive field parsed with t.
func Leaf(name string, t Type) *Field {
	return &Field{Name: name, Node: NodePrimitive, Type: t.withDefaults()}
}

func String(name string) *Field  { return Leaf(name, StringType) }
func Int(name string) *Field     { return Leaf(name, IntType) }
func Float(name string) *Field   { return Leaf(name, FloatType) }
func Bool(name string) *Field    { return Leaf(name, BoolType) }
func Date(name string) *Field    { return Leaf(name, DateType) }
func Decimal(name string) *Field { return Leaf(name, DecimalType) }
func UUID(name string) *Field    { return Leaf(name, UUIDType) }

// Optional wraps f so that an absent or empty value converts to nil.
func Optional(f *Field) *Field {
	return &Field{Name: f.Name, Node: NodeOptional, Elem: f}
}

// List returns a field read from one list cell such as {a,b,c}.
func List(name string, elem Type) *Field {
	return &Field{Name: name, Node: NodeList, Type: elem.withDefaults()}
}

// Composite returns a composite field with the given children.
func Composite(name string, fields ...*Field) *Field {
	return &Field{Name: name, Node: NodeComposite, Fields: fields}
}

// Repeated instantiates elem once per prefix, e.g. actor1, actor2, actor3.
// Each instance resolves its columns under its own prefix, so a template
// must be in effect.
func Repeated(name string, elem *Field, prefixes ...string) *Field {
	return &Field{Name: name, Node: NodeRepeated, Elem: elem, Prefixes: prefixes}
}

// Discriminated reads key, then converts the variant registered for the
// key's formatted value.
func Discriminated(name string, key *Field, variants map[string]*Field) *Field {
	return &Field{Name: name, Node: NodeDiscriminated, Key: key, Variants: variants}
}

// Numbered reads a variable-length sequence of elem from suffixed columns
// (question_id_1, question_id_2, ...) starting at start.
func Numbered(name string, elem *Field, start int) *Field {
	return &Field{Name: name, Node: NodeNumbered, Elem: elem, Start: start}
}

// As sets the column name explicitly.
func (f *Field) As(column string) *Field {
	f.Column = column
	return f
}

// Prefixed marks a composite whose children are resolved under its name.
func (f *Field) Prefixed() *Field {
	f.UsePrefix = true
	return f
}

// WithTemplate sets the prefix template for this subtree.
func (f *Field) WithTemplate(template string) *Field {
	f.Template = template
	return f
}

// WithSuffix sets the numbered column template.
func (f *Field) WithSuffix(template string) *Field {
	f.Suffix = template
	return f
}

// WithBuild sets the constructor used for composite values and its inverse.
func (f *Field) WithBuild(build func([]any) (any, error), split func(any) ([]any, error)) *Field {
	f.Build = build
	f.Split = split
	return f
}

// Validate checks the tree for structural mistakes. Naming-dependent checks
// happen in NewBuilder.
func (f *Field) Validate() error {
	return f.validate("")
}

func (f *Field) validate(parent string) error {
	if f == nil {
		return configErrorf(parent, "nil field")
	}
	path := joinPath(parent, f.Name)
	if f.Name == "" {
		return configErrorf(path, "name is required")
	}

	switch f.Node {
	case NodePrimitive, NodeList:
		if f.Type.Parse == nil {
			return configErrorf(path, "%s field has no cell type", f.Node)
		}
	case NodeOptional:
		if f.Elem == nil {
			return configErrorf(path, "optional field wraps nothing")
		}
		if f.Elem.Node == NodeOptional {
			return configErrorf(path, "optional of optional")
		}
		return f.Elem.validate(parent)
	case NodeComposite:
		if len(f.Fields) == 0 {
			return configErrorf(path, "composite has no fields")
		}
		seen := make(map[string]bool, len(f.Fields))
		for _, c := range f.Fields {
			if c != nil && seen[c.Name] {
				return configErrorf(path, "duplicate child %q", c.Name)
			}
			if err := c.validate(path); err != nil {
				return err
			}
			seen[c.Name] = true
		}
	case NodeRepeated:
		if len(f.Prefixes) == 0 {
			return configErrorf(path, "repeated field has no prefixes")
		}
		for i, p := range f.Prefixes {
			if p == "" {
				return configErrorf(path, "empty prefix")
			}
			if slices.Contains(f.Prefixes[:i], p) {
				return configErrorf(path, "duplicate prefix %q", p)
			}
		}
		if f.Elem == nil {
			return configErrorf(path, "repeated field has no element")
		}
		return f.Elem.validate(path)
	case NodeDiscriminated:
		if f.Key == nil || f.Key.Node != NodePrimitive {
			return configErrorf(path, "discriminant must be a primitive field")
		}
		if err := f.Key.validate(path); err != nil {
			return err
		}
		if len(f.Variants) == 0 {
			return configErrorf(path, "discriminated field has no variants")
		}
		for tag, v := range f.Variants {
			if err := v.validate(path); err != nil {
				return fmt.Errorf("variant %q: %w", tag, err)
			}
		}
	case NodeNumbered:
		if f.Elem == nil {
			return configErrorf(path, "numbered field has no element")
		}
		if f.Start < 0 {
			return configErrorf(path, "negative start index %d", f.Start)
		}
		return f.Elem.validate(path)
	default:
		return configErrorf(path, "unknown node kind %s", f.Node)
	}
	return nil
}

func joinPath(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "." + name
}
