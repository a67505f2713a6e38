package schema

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/JonMunkholm/csvtable/internal/core"
)

//go:embed builtin/*.yaml
var builtin embed.FS

// Load reads and converts one schema document.
func Load(filename string) (core.Definition, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return core.Definition{}, fmt.Errorf("read schema %s: %w", filename, err)
	}
	return parseDefinition(filename, data)
}

// LoadFS converts every *.yaml or *.yml document in the root of fsys, in
// file name order.
func LoadFS(fsys fs.FS) ([]core.Definition, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("read schema directory: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		ext := strings.ToLower(path.Ext(e.Name()))
		if e.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	var errs []error
	defs := make([]core.Definition, 0, len(names))
	for _, name := range names {
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			errs = append(errs, fmt.Errorf("read schema %s: %w", name, err))
			continue
		}
		def, err := parseDefinition(name, data)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		defs = append(defs, def)
	}
	return defs, errors.Join(errs...)
}

// LoadDir is LoadFS over a directory on disk.
func LoadDir(dir string) ([]core.Definition, error) {
	return LoadFS(os.DirFS(dir))
}

// Builtin returns the schemas shipped with the binary.
func Builtin() ([]core.Definition, error) {
	sub, err := fs.Sub(builtin, "builtin")
	if err != nil {
		return nil, err
	}
	return LoadFS(sub)
}

// Register adds defs to the core registry. Every definition is attempted;
// failures are joined.
func Register(defs []core.Definition) error {
	var errs []error
	for _, def := range defs {
		if err := core.TryRegister(def); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func parseDefinition(name string, data []byte) (core.Definition, error) {
	doc, err := Parse(data)
	if err != nil {
		return core.Definition{}, fmt.Errorf("%s: %w", name, err)
	}
	def, err := doc.Definition()
	if err != nil {
		return core.Definition{}, fmt.Errorf("%s: %w", name, err)
	}
	return def, nil
}
