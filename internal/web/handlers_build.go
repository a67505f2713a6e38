package web

import (
	"bytes"
	"errors"
	"net/http"
	"strconv"

	"github.com/JonMunkholm/csvtable/internal/cache"
	"github.com/JonMunkholm/csvtable/internal/columnar"
	"github.com/JonMunkholm/csvtable/internal/core"
	"github.com/JonMunkholm/csvtable/internal/logging"
	"github.com/JonMunkholm/csvtable/internal/pgload"
)

// buildStats summarizes a build for clients.
type buildStats struct {
	Rows       int   `json:"rows"`
	Converted  int   `json:"converted"`
	Failed     int   `json:"failed"`
	Skipped    int   `json:"skipped"`
	Truncated  bool  `json:"truncated"`
	Bytes      int64 `json:"bytes"`
	DurationMS int64 `json:"duration_ms"`
}

func newBuildStats(res *core.Result) buildStats {
	return buildStats{
		Rows:       res.Rows,
		Converted:  res.Table.Len(),
		Failed:     len(res.Failures),
		Skipped:    res.Skipped,
		Truncated:  res.Truncated,
		Bytes:      res.Bytes,
		DurationMS: res.Duration.Milliseconds(),
	}
}

func failuresJSON(fs []core.Failure) []failureJSON {
	out := make([]failureJSON, len(fs))
	for i := range fs {
		out[i] = newFailureJSON(&fs[i])
	}
	return out
}

// parseResponse is the response of the parse endpoint.
type parseResponse struct {
	Schema   string        `json:"schema"`
	Header   []string      `json:"header"`
	Rows     []any         `json:"rows"`
	Failures []failureJSON `json:"failures"`
	Stats    buildStats    `json:"stats"`
}

// handleParse builds a table and returns its rows as JSON.
func (s *Server) handleParse(w http.ResponseWriter, r *http.Request) {
	req, err := s.prepare(w, r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	res, err := s.run(r.Context(), req)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	header, _ := res.Table.Header()
	s.writeJSON(w, http.StatusOK, parseResponse{
		Schema:   req.def.Name,
		Header:   header.Names(),
		Rows:     res.Table.Rows(),
		Failures: failuresJSON(res.Failures),
		Stats:    newBuildStats(res),
	})
}

// handleNormalize builds a table and renders it back as delimited text in
// the schema's canonical column layout. Responses are cached by schema,
// options and body when a cache is configured.
func (s *Server) handleNormalize(w http.ResponseWriter, r *http.Request) {
	req, err := s.prepare(w, r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	log := logging.With(r.Context(), s.log)

	var key string
	if s.cache != nil {
		key = cache.Key(req.def.Name, req.params.cacheKey(), grammarKey(s.grammarFor(req.def)), req.body)
		entry, err := s.cache.Get(r.Context(), key)
		switch {
		case err == nil:
			s.metrics.ObserveCache("hit")
			writeEntry(w, entry, "HIT")
			return
		case errors.Is(err, cache.ErrMiss):
			s.metrics.ObserveCache("miss")
		default:
			// A broken cache must not fail the request.
			s.metrics.ObserveCache("error")
			log.Warn("cache lookup failed", "error", err)
		}
	}

	res, err := s.run(r.Context(), req)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := core.WriteTable(&buf, s.grammarFor(req.def), req.def.Schema, req.def.Naming, res.Table); err != nil {
		s.respondError(w, r, err)
		return
	}

	entry := &cache.Entry{
		Status:      http.StatusOK,
		ContentType: "text/csv; charset=utf-8",
		Headers: map[string]string{
			"Content-Disposition": `attachment; filename="` + req.def.Name + `.csv"`,
			"X-Rows-Converted":    strconv.Itoa(res.Table.Len()),
			"X-Rows-Failed":       strconv.Itoa(len(res.Failures)),
		},
		Body: buf.Bytes(),
	}
	if s.cache != nil {
		if err := s.cache.Put(r.Context(), key, entry); err != nil {
			log.Warn("cache store failed", "error", err)
		}
		writeEntry(w, entry, "MISS")
		return
	}
	writeEntry(w, entry, "")
}

func writeEntry(w http.ResponseWriter, e *cache.Entry, cacheStatus string) {
	for k, v := range e.Headers {
		w.Header().Set(k, v)
	}
	if cacheStatus != "" {
		w.Header().Set("X-Cache", cacheStatus)
	}
	w.Header().Set("Content-Type", e.ContentType)
	w.WriteHeader(e.Status)
	w.Write(e.Body)
}

// handleParquet builds a table and returns it as a Parquet file.
func (s *Server) handleParquet(w http.ResponseWriter, r *http.Request) {
	req, err := s.prepare(w, r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	res, err := s.run(r.Context(), req)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := columnar.ExportParquet(&buf, req.def, res.Table); err != nil {
		s.respondError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.apache.parquet")
	w.Header().Set("Content-Disposition", `attachment; filename="`+req.def.Name+`.parquet"`)
	w.Header().Set("X-Rows-Converted", strconv.Itoa(res.Table.Len()))
	w.Header().Set("X-Rows-Failed", strconv.Itoa(len(res.Failures)))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

// loadResponse is the response of the load endpoint.
type loadResponse struct {
	Schema   string         `json:"schema"`
	Load     *pgload.Result `json:"load"`
	Failures []failureJSON  `json:"failures"`
	Stats    buildStats     `json:"stats"`
}

// handleLoad builds a table and copies its rows into PostgreSQL. Only rows
// that converted are loaded; failures are reported alongside.
func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		s.respondError(w, r, errDatabaseDisabled)
		return
	}
	req, err := s.prepare(w, r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	res, err := s.run(r.Context(), req)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	loaded, err := pgload.Load(r.Context(), s.db, req.def, res.Table, pgload.Options{
		Table:  r.URL.Query().Get("table"),
		Create: s.cfg.Database.CreateTables,
		Logger: logging.With(r.Context(), s.log),
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, loadResponse{
		Schema:   req.def.Name,
		Load:     loaded,
		Failures: failuresJSON(res.Failures),
		Stats:    newBuildStats(res),
	})
}
