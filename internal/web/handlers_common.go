package web

// handlers_common.go contains the request parsing and build plumbing shared
// by the build endpoints.

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/csvtable/internal/core"
	"github.com/JonMunkholm/csvtable/internal/csv"
	"github.com/JonMunkholm/csvtable/internal/logging"
)

// buildParams are the query options of a build request.
//
//	forgiving=true|false   collect failing rows instead of aborting
//	max_failures=N         stop a forgiving build after N failures
//	header_rows=N          number of header lines
//	header=a,b,c           use this header instead of reading one
//	synthesize=letters     generate a header for headerless input
//	sample=N               keep every Nth data row
type buildParams struct {
	forgiving   bool
	maxFailures int
	headerRows  int
	header      []string
	synthesize  core.HeaderStyle
	sample      int
}

// parseBuildParams reads build options from the query string, starting
// from the configured defaults.
func (s *Server) parseBuildParams(r *http.Request) (buildParams, error) {
	q := r.URL.Query()
	p := buildParams{
		forgiving:   s.cfg.Table.Forgiving,
		maxFailures: s.cfg.Table.MaxFailures,
		headerRows:  s.cfg.Table.HeaderRows,
	}

	var err error
	if p.forgiving, err = parseBoolParam(r, "forgiving", p.forgiving); err != nil {
		return p, err
	}
	if p.maxFailures, err = parseIntParam(r, "max_failures", p.maxFailures); err != nil {
		return p, err
	}
	if p.headerRows, err = parseIntParam(r, "header_rows", p.headerRows); err != nil {
		return p, err
	}
	if p.sample, err = parseIntParam(r, "sample", 1); err != nil {
		return p, err
	}
	if h := q.Get("header"); h != "" {
		p.header = strings.Split(h, ",")
	}
	if p.synthesize, err = core.ParseHeaderStyle(q.Get("synthesize")); err != nil {
		return p, fmt.Errorf("%w: synthesize: %v", errBadRequest, err)
	}
	return p, nil
}

// options applies p to the configured build options.
func (s *Server) options(p buildParams) core.Options {
	opts := s.cfg.Table.Options()
	opts.Forgiving = p.forgiving
	opts.MaxFailures = p.maxFailures
	opts.HeaderRows = p.headerRows
	opts.Header = p.header
	opts.Synthesize = p.synthesize
	if p.header != nil || p.synthesize != core.HeaderNone {
		// A supplied header replaces the header lines entirely.
		opts.HeaderRows = 0
	}
	if p.sample > 1 {
		opts.Predicate = core.Sampler(p.sample)
	}
	return opts
}

// cacheKey is a canonical encoding of everything in p that changes a
// response.
func (p buildParams) cacheKey() []byte {
	return fmt.Appendf(nil, "forgiving=%t;max_failures=%d;header_rows=%d;header=%q;synthesize=%d;sample=%d",
		p.forgiving, p.maxFailures, p.headerRows, p.header, p.synthesize, p.sample)
}

// grammarKey encodes the grammar a response was tokenized and rendered
// with, so entries written under another configuration are not served.
func grammarKey(g *csv.Grammar) []byte {
	c := g.Config()
	return fmt.Appendf(nil, "delim=%q;delim_re=%q;cell_re=%q;quote=%q;list=%q%q%q;multiline=%t",
		c.Delimiter, c.DelimiterPattern, c.CellPattern, c.Quote,
		c.ListOpen, c.ListSeparator, c.ListClose, c.Multiline)
}

// buildRequest is a validated build request with its body read.
type buildRequest struct {
	def    core.Definition
	params buildParams
	body   []byte
}

// prepare looks up the schema, parses options and reads the body.
func (s *Server) prepare(w http.ResponseWriter, r *http.Request) (*buildRequest, error) {
	def, err := s.definition(r)
	if err != nil {
		return nil, err
	}
	params, err := s.parseBuildParams(r)
	if err != nil {
		return nil, err
	}
	body, err := s.readBody(w, r)
	if err != nil {
		return nil, err
	}
	return &buildRequest{def: def, params: params, body: body}, nil
}

// run builds the table of req, holding a build slot for the duration.
func (s *Server) run(ctx context.Context, req *buildRequest) (*core.Result, error) {
	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.limiter.Release()

	if s.cfg.Upload.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Upload.Timeout)
		defer cancel()
	}

	opts := s.options(req.params)
	opts.Logger = logging.With(ctx, s.log)

	b, err := core.NewBuilder(s.grammarFor(req.def), req.def.Schema, req.def.Naming, opts)
	if err != nil {
		return nil, err
	}
	res, err := b.Build(ctx, bytes.NewReader(req.body))
	s.metrics.ObserveBuild(req.def.Name, opts.Forgiving, res, err)
	return res, err
}

// grammarFor returns the dataset grammar, falling back to the service one.
func (s *Server) grammarFor(def core.Definition) *csv.Grammar {
	if def.Grammar != nil {
		return def.Grammar
	}
	return s.grammar
}

// definition returns the schema named in the URL.
func (s *Server) definition(r *http.Request) (core.Definition, error) {
	name := chi.URLParam(r, "name")
	def, ok := core.Get(name)
	if !ok {
		return core.Definition{}, fmt.Errorf("%w: %q", errSchemaNotFound, name)
	}
	return def, nil
}

// readBody returns the uploaded file. Multipart forms carry it in the
// "file" field; any other content type is the file itself.
func (s *Server) readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	maxSize := s.cfg.Upload.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)

	var src io.Reader = r.Body
	if mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")); mt == "multipart/form-data" {
		if err := r.ParseMultipartForm(maxSize); err != nil {
			return nil, fmt.Errorf("read form: %w", err)
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			return nil, fmt.Errorf("%w: no file provided", errBadRequest)
		}
		defer file.Close()
		src = file
	}

	data, err := io.ReadAll(src)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errEmptyInput
	}
	return data, nil
}

// parseIntParam parses a non-negative integer query parameter with a
// default value.
func parseIntParam(r *http.Request, name string, defaultVal int) (int, error) {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal, nil
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer, got %q", errBadRequest, name, val)
	}
	return i, nil
}

// parseBoolParam parses a boolean query parameter with a default value.
func parseBoolParam(r *http.Request, name string, defaultVal bool) (bool, error) {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("%w: %s must be a boolean, got %q", errBadRequest, name, val)
	}
	return b, nil
}
