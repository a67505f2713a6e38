// Package schema loads table schemas from YAML documents.
//
// A document describes one dataset:
//
//	name: survey
//	naming:
//	  mapper: snake
//	fields:
//	  - name: respondent
//	  - name: questions
//	    kind: numbered
//	    start: 1
//	    elem:
//	      name: questionId
//	      type: int
//
// Fields default to kind "primitive" with type "string", and to
// "composite" when they have children. Type names are looked up in the
// core cell type registry, so any registered type may be used.
package schema

import (
	"bytes"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/JonMunkholm/csvtable/internal/core"
	"github.com/JonMunkholm/csvtable/internal/csv"
)

// Field kinds accepted in documents.
const (
	KindPrimitive     = "primitive"
	KindList          = "list"
	KindComposite     = "composite"
	KindRepeated      = "repeated"
	KindDiscriminated = "discriminated"
	KindNumbered      = "numbered"
)

// Document is the YAML form of a core.Definition.
type Document struct {
	Name        string      `yaml:"name"`
	Description string      `yaml:"description,omitempty"`
	Naming      NamingDoc   `yaml:"naming,omitempty"`
	Grammar     *GrammarDoc `yaml:"grammar,omitempty"`
	Fields      []FieldDoc  `yaml:"fields"`
}

// NamingDoc selects a mapper by name; see core.MapperByName.
type NamingDoc struct {
	Mapper   string            `yaml:"mapper,omitempty"`
	Template string            `yaml:"template,omitempty"`
	Renames  map[string]string `yaml:"renames,omitempty"`
}

// GrammarDoc overrides tokens of the default grammar. Every token is a
// single character; the patterns are regular expressions.
type GrammarDoc struct {
	Delimiter        string `yaml:"delimiter,omitempty"`
	DelimiterPattern string `yaml:"delimiter_pattern,omitempty"`
	CellPattern      string `yaml:"cell_pattern,omitempty"`
	Quote            string `yaml:"quote,omitempty"`
	ListOpen         string `yaml:"list_open,omitempty"`
	ListClose        string `yaml:"list_close,omitempty"`
	ListSeparator    string `yaml:"list_separator,omitempty"`
	Multiline        bool   `yaml:"multiline,omitempty"`
}

// FieldDoc is one node of the schema tree.
type FieldDoc struct {
	Name     string `yaml:"name"`
	Kind     string `yaml:"kind,omitempty"`
	Type     string `yaml:"type,omitempty"`
	Optional bool   `yaml:"optional,omitempty"`
	Column   string `yaml:"column,omitempty"`

	Fields   []FieldDoc `yaml:"fields,omitempty"`
	Prefixed bool       `yaml:"prefixed,omitempty"`
	Template string     `yaml:"template,omitempty"`

	Elem     *FieldDoc `yaml:"elem,omitempty"`
	Prefixes []string  `yaml:"prefixes,omitempty"`

	Key      *FieldDoc           `yaml:"key,omitempty"`
	Variants map[string]FieldDoc `yaml:"variants,omitempty"`

	Start  int    `yaml:"start,omitempty"`
	Suffix string `yaml:"suffix,omitempty"`
}

// Parse decodes a YAML document. Unknown keys are rejected.
func Parse(data []byte) (*Document, error) {
	var doc Document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: parse schema document: %v", core.ErrConfiguration, err)
	}
	return &doc, nil
}

// Definition converts the document into a registrable definition.
func (d *Document) Definition() (core.Definition, error) {
	if d.Name == "" {
		return core.Definition{}, fmt.Errorf("%w: schema document has no name", core.ErrConfiguration)
	}
	if len(d.Fields) == 0 {
		return core.Definition{}, fmt.Errorf("%w: schema %s has no fields", core.ErrConfiguration, d.Name)
	}

	fields, err := fieldsOf(d.Name, d.Fields)
	if err != nil {
		return core.Definition{}, err
	}

	naming, err := d.Naming.naming()
	if err != nil {
		return core.Definition{}, err
	}

	def := core.Definition{
		Name:        d.Name,
		Description: d.Description,
		Schema:      core.Composite(d.Name, fields...),
		Naming:      naming,
	}
	if d.Grammar != nil {
		if def.Grammar, err = d.Grammar.grammar(); err != nil {
			return core.Definition{}, err
		}
	}
	return def, nil
}

func (n NamingDoc) naming() (core.Naming, error) {
	mapper, ok := core.MapperByName(n.Mapper)
	if !ok {
		return core.Naming{}, fmt.Errorf("%w: unknown name mapper %q", core.ErrConfiguration, n.Mapper)
	}
	return core.Naming{Mapper: mapper, Template: n.Template, Renames: n.Renames}, nil
}

func (g *GrammarDoc) grammar() (*csv.Grammar, error) {
	cfg := csv.DefaultConfig()
	tokens := []struct {
		name string
		src  string
		dst  *byte
	}{
		{"delimiter", g.Delimiter, &cfg.Delimiter},
		{"quote", g.Quote, &cfg.Quote},
		{"list_open", g.ListOpen, &cfg.ListOpen},
		{"list_close", g.ListClose, &cfg.ListClose},
		{"list_separator", g.ListSeparator, &cfg.ListSeparator},
	}
	for _, tok := range tokens {
		if tok.src == "" {
			continue
		}
		if len(tok.src) != 1 {
			return nil, fmt.Errorf("%w: grammar %s must be one character, got %q", core.ErrConfiguration, tok.name, tok.src)
		}
		*tok.dst = tok.src[0]
	}
	cfg.DelimiterPattern = g.DelimiterPattern
	cfg.CellPattern = g.CellPattern
	cfg.Multiline = g.Multiline
	gr, err := csv.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrConfiguration, err)
	}
	return gr, nil
}

func (fd FieldDoc) kind() string {
	if fd.Kind != "" {
		return strings.ToLower(fd.Kind)
	}
	if len(fd.Fields) > 0 {
		return KindComposite
	}
	return KindPrimitive
}

func (fd FieldDoc) field(parent string) (*core.Field, error) {
	path := parent + "." + fd.Name
	if fd.Name == "" {
		return nil, fmt.Errorf("%w: field under %s has no name", core.ErrConfiguration, parent)
	}

	var f *core.Field
	switch fd.kind() {
	case KindPrimitive:
		t, err := lookupType(path, fd.Type)
		if err != nil {
			return nil, err
		}
		f = core.Leaf(fd.Name, t)
	case KindList:
		t, err := lookupType(path, fd.Type)
		if err != nil {
			return nil, err
		}
		f = core.List(fd.Name, t)
	case KindComposite:
		children, err := fieldsOf(path, fd.Fields)
		if err != nil {
			return nil, err
		}
		f = core.Composite(fd.Name, children...)
		if fd.Prefixed {
			f.Prefixed()
		}
	case KindRepeated:
		elem, err := fd.elem(path)
		if err != nil {
			return nil, err
		}
		f = core.Repeated(fd.Name, elem, fd.Prefixes...)
	case KindDiscriminated:
		if fd.Key == nil {
			return nil, fmt.Errorf("%w: field %s: discriminated field needs a key", core.ErrConfiguration, path)
		}
		key, err := fd.Key.field(path)
		if err != nil {
			return nil, err
		}
		variants := make(map[string]*core.Field, len(fd.Variants))
		for tag, vd := range fd.Variants {
			if vd.Name == "" {
				vd.Name = tag
			}
			v, err := vd.field(path)
			if err != nil {
				return nil, err
			}
			variants[tag] = v
		}
		f = core.Discriminated(fd.Name, key, variants)
	case KindNumbered:
		elem, err := fd.elem(path)
		if err != nil {
			return nil, err
		}
		f = core.Numbered(fd.Name, elem, fd.Start).WithSuffix(fd.Suffix)
	default:
		return nil, fmt.Errorf("%w: field %s: unknown kind %q", core.ErrConfiguration, path, fd.Kind)
	}

	if fd.Column != "" {
		f.As(fd.Column)
	}
	if fd.Template != "" {
		f.WithTemplate(fd.Template)
	}
	if fd.Optional {
		f = core.Optional(f)
	}
	return f, nil
}

func (fd FieldDoc) elem(path string) (*core.Field, error) {
	if fd.Elem != nil {
		return fd.Elem.field(path)
	}
	// A bare list of children is shorthand for a composite element.
	if len(fd.Fields) > 0 {
		return FieldDoc{Name: fd.Name, Fields: fd.Fields}.field(path)
	}
	return nil, fmt.Errorf("%w: field %s: %s field needs an elem", core.ErrConfiguration, path, fd.kind())
}

func fieldsOf(path string, docs []FieldDoc) ([]*core.Field, error) {
	fields := make([]*core.Field, 0, len(docs))
	for _, d := range docs {
		f, err := d.field(path)
		if err != nil {
			return nil, err
		}
		fields = append(fields, f)
	}
	return fields, nil
}

func lookupType(path, name string) (core.Type, error) {
	if name == "" {
		name = "string"
	}
	t, ok := core.LookupType(name)
	if !ok {
		return core.Type{}, fmt.Errorf("%w: field %s: unknown type %q (known: %s)",
			core.ErrConfiguration, path, name, strings.Join(core.TypeNames(), ", "))
	}
	return t, nil
}
