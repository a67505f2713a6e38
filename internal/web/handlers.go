package web

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/csvtable/internal/core"
	"github.com/JonMunkholm/csvtable/internal/csv"
)

// schemaSummary is one entry of the schema catalog.
type schemaSummary struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Columns     []string `json:"columns"`
}

// columnJSON describes one column of a blank template.
type columnJSON struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	List     bool   `json:"list,omitempty"`
	Nullable bool   `json:"nullable,omitempty"`
}

// schemaDetail is the response of GET /api/schemas/{name}.
type schemaDetail struct {
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Columns     []columnJSON `json:"columns"`
	Grammar     grammarJSON  `json:"grammar"`
}

type grammarJSON struct {
	Delimiter        string `json:"delimiter"`
	DelimiterPattern string `json:"delimiter_pattern,omitempty"`
	CellPattern      string `json:"cell_pattern,omitempty"`
	Quote            string `json:"quote"`
	ListOpen         string `json:"list_open"`
	ListClose        string `json:"list_close"`
	ListSeparator    string `json:"list_separator"`
	Multiline        bool   `json:"multiline"`
}

func newGrammarJSON(g *csv.Grammar) grammarJSON {
	c := g.Config()
	return grammarJSON{
		Delimiter:        string(c.Delimiter),
		DelimiterPattern: c.DelimiterPattern,
		CellPattern:      c.CellPattern,
		Quote:            string(c.Quote),
		ListOpen:         string(c.ListOpen),
		ListClose:        string(c.ListClose),
		ListSeparator:    string(c.ListSeparator),
		Multiline:        c.Multiline,
	}
}

// handleHealth reports the state of the optional backing services.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := map[string]string{}
	status := http.StatusOK
	probe := func(name string, p Pinger) {
		if err := p.Ping(ctx); err != nil {
			s.log.Warn("health check failed", "dependency", name, "error", err)
			checks[name] = "unavailable"
			status = http.StatusServiceUnavailable
			return
		}
		checks[name] = "ok"
	}
	if s.db != nil {
		probe("database", s.db)
	}
	if s.cache != nil {
		probe("cache", s.cache)
	}

	state := "ok"
	if status != http.StatusOK {
		state = "degraded"
	}
	s.writeJSON(w, status, map[string]any{
		"status":  state,
		"checks":  checks,
		"schemas": core.Count(),
		"builds":  s.limiter.Status(),
	})
}

// handleListSchemas returns every registered schema with its blank header.
func (s *Server) handleListSchemas(w http.ResponseWriter, r *http.Request) {
	defs := core.All()
	out := make([]schemaSummary, 0, len(defs))
	for _, def := range defs {
		cols, err := def.Columns()
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		out = append(out, schemaSummary{Name: def.Name, Description: def.Description, Columns: cols})
	}
	s.writeJSON(w, http.StatusOK, out)
}

// handleGetSchema describes the columns and grammar of one schema.
func (s *Server) handleGetSchema(w http.ResponseWriter, r *http.Request) {
	def, err := s.definition(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	specs, err := core.Layout(def.Schema, def.Naming)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	cols := make([]columnJSON, len(specs))
	for i, spec := range specs {
		cols[i] = columnJSON{
			Name:     spec.Name,
			Type:     spec.Field.Type.Name,
			List:     spec.Field.Node == core.NodeList,
			Nullable: spec.Nullable,
		}
	}
	s.writeJSON(w, http.StatusOK, schemaDetail{
		Name:        def.Name,
		Description: def.Description,
		Columns:     cols,
		Grammar:     newGrammarJSON(s.grammarFor(def)),
	})
}

// handleTemplate serves a header-only file for a schema.
func (s *Server) handleTemplate(w http.ResponseWriter, r *http.Request) {
	def, err := s.definition(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	cols, err := def.Columns()
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+def.Name+`_template.csv"`)
	cw := csv.NewWriter(w, s.grammarFor(def))
	if err := cw.Write(cols); err != nil {
		s.log.Warn("failed to write template", "schema", def.Name, "error", err)
		return
	}
	if err := cw.Flush(); err != nil {
		s.log.Warn("failed to write template", "schema", def.Name, "error", err)
	}
}

// handleInvalidateCache drops every cached response of a schema.
func (s *Server) handleInvalidateCache(w http.ResponseWriter, r *http.Request) {
	if s.cache == nil {
		s.respondError(w, r, errCacheDisabled)
		return
	}
	name := chi.URLParam(r, "name")
	n, err := s.cache.Invalidate(r.Context(), name)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.log.Info("cache invalidated", "schema", name, "removed", n)
	s.writeJSON(w, http.StatusOK, map[string]any{"schema": name, "removed": n})
}
