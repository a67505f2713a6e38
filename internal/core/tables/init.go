// Package tables registers the bundled dataset schemas with the core
// registry. Import it for its side effects.
package tables

// Each file registers its datasets from init().
