package core

import (
	"fmt"
	"sort"
	"sync"

	"github.com/JonMunkholm/csvtable/internal/csv"
)

// Definition is a named schema together with its naming rules.
type Definition struct {
	Name        string
	Description string
	Schema      *Field
	Naming      Naming
	// Grammar overrides the service grammar for this dataset, e.g. when its
	// list cells use a separator of their own.
	Grammar *csv.Grammar
}

// Columns returns the header a blank template of the definition would have.
func (d Definition) Columns() ([]string, error) {
	return Columns(d.Schema, d.Naming)
}

var (
	registry   = make(map[string]Definition)
	registryMu sync.RWMutex
)

// Register adds a schema definition to the registry.
// Panics if a schema with the same name is already registered or if the
// schema is invalid.
func Register(def Definition) {
	if err := def.validate(); err != nil {
		panic(fmt.Sprintf("invalid schema %s: %v", def.Name, err))
	}

	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[def.Name]; exists {
		panic(fmt.Sprintf("schema already registered: %s", def.Name))
	}
	registry[def.Name] = def
}

// TryRegister is Register that reports problems as errors. It is used for
// schemas loaded at run time.
func TryRegister(def Definition) error {
	if err := def.validate(); err != nil {
		return fmt.Errorf("schema %s: %w", def.Name, err)
	}

	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[def.Name]; exists {
		return fmt.Errorf("%w: schema already registered: %s", ErrConfiguration, def.Name)
	}
	registry[def.Name] = def
	return nil
}

func (d Definition) validate() error {
	if d.Name == "" {
		return fmt.Errorf("%w: schema name is required", ErrConfiguration)
	}
	if d.Schema == nil {
		return fmt.Errorf("%w: schema has no root field", ErrConfiguration)
	}
	if err := d.Schema.Validate(); err != nil {
		return err
	}
	return Converter{Naming: d.Naming}.Check(d.Schema)
}

// Get returns a schema definition by name.
// Returns false if not found.
func Get(name string) (Definition, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	def, ok := registry[name]
	return def, ok
}

// All returns all registered definitions, sorted by name.
func All() []Definition {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]Definition, 0, len(registry))
	for _, def := range registry {
		result = append(result, def)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})

	return result
}

// Count returns the number of registered schemas.
func Count() int {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return len(registry)
}

// Clear removes all registered schemas.
// Primarily useful for testing.
func Clear() {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = make(map[string]Definition)
}
