package core

// builder.go assembles a Table from delimited input.
//
// A build moves through three phases:
//
//  1. awaiting_header: leading lines are read as header rows, or a fixed or
//     synthetic header is used instead. This is strictly sequential.
//  2. reading_rows: each data line is tokenized, bound to the header and
//     converted. With Workers > 1 rows are converted concurrently in batches
//     and committed in row order.
//  3. done: the table is returned with any collected failures.
//
// In forgiving mode a failing row is recorded and left out of the table. In
// strict mode the first failure aborts the build and no table is returned.

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/JonMunkholm/csvtable/internal/csv"
)

// Phase is the state of a build.
type Phase string

const (
	PhaseAwaitingHeader Phase = "awaiting_header"
	PhaseReadingRows    Phase = "reading_rows"
	PhaseDone           Phase = "done"
)

// DefaultBatchSize is the number of rows handed to the worker pool at once.
const DefaultBatchSize = 256

// Options control header acquisition and failure policy.
type Options struct {
	// HeaderRows is the number of leading lines read as the header. Rows of a
	// multi-row header are joined column-wise with HeaderSeparator. Zero means
	// one, unless Header or Synthesize supplies the header, in which case no
	// lines are consumed.
	HeaderRows      int
	HeaderSeparator string

	// Header replaces the header read from input.
	Header []string
	// Synthesize generates a header as wide as the first data row.
	Synthesize HeaderStyle

	// Forgiving collects row failures instead of aborting.
	Forgiving bool
	// MaxFailures stops a forgiving build early once reached. Zero is unlimited.
	MaxFailures int

	// Predicate filters rows before conversion; rejected rows are counted in
	// Result.Skipped.
	Predicate func(Row) bool

	// Workers converts rows concurrently when greater than one.
	Workers   int
	BatchSize int

	Logger *slog.Logger
}

// Failure describes one row that could not be converted.
type Failure struct {
	Row    int       `json:"row"`
	Line   int       `json:"line,omitempty"`
	Path   string    `json:"path,omitempty"`
	Column string    `json:"column,omitempty"`
	Raw    string    `json:"raw,omitempty"`
	Kind   ErrorKind `json:"kind"`
	Err    error     `json:"-"`
}

func (f *Failure) Error() string {
	if f.Line > 0 {
		return fmt.Sprintf("line %d: %v", f.Line, f.Err)
	}
	return f.Err.Error()
}

func (f *Failure) Unwrap() error { return f.Err }

// Result is the outcome of a successful build.
type Result struct {
	Table     Table[any]
	Failures  []Failure
	Rows      int  // data rows considered, after the predicate
	Skipped   int  // data rows rejected by the predicate
	Truncated bool // the build stopped at MaxFailures
	Bytes     int64
	Duration  time.Duration
	Phase     Phase

	// CloseErr is a failure to close the input after an otherwise
	// successful BuildFile.
	CloseErr error
}

// Builder converts delimited input into Tables. It is safe for concurrent use.
type Builder struct {
	grammar *csv.Grammar
	schema  *Field
	conv    Converter
	opts    Options
	log     *slog.Logger
}

// NewBuilder validates schema against naming and returns a Builder. A nil
// grammar means csv.Default.
func NewBuilder(g *csv.Grammar, schema *Field, naming Naming, opts Options) (*Builder, error) {
	if g == nil {
		g = csv.Default
	}
	if schema == nil {
		return nil, configErrorf("", "schema is required")
	}
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	conv := Converter{Naming: naming}
	if err := conv.Check(schema); err != nil {
		return nil, err
	}
	if opts.HeaderRows < 0 {
		return nil, fmt.Errorf("%w: negative header row count %d", ErrConfiguration, opts.HeaderRows)
	}
	if opts.HeaderRows == 0 && opts.Header == nil && opts.Synthesize == HeaderNone {
		opts.HeaderRows = 1
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}

	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	return &Builder{
		grammar: g,
		schema:  schema,
		conv:    conv,
		opts:    opts,
		log:     log.With("schema", schema.Name),
	}, nil
}

// Schema returns the root field.
func (b *Builder) Schema() *Field { return b.schema }

// Naming returns the naming rules.
func (b *Builder) Naming() Naming { return b.conv.Naming }

// Grammar returns the tokenizer.
func (b *Builder) Grammar() *csv.Grammar { return b.grammar }

// record is one tokenized input line.
type record struct {
	cells []string
	line  int
	raw   string
	err   error // tokenizing failure
}

// source yields records until io.EOF.
type source func() (record, error)

// Build reads delimited text from r. A leading BOM is dropped and invalid
// UTF-8 replaced.
func (b *Builder) Build(ctx context.Context, r io.Reader) (*Result, error) {
	cr := csv.NewCountingReader(r, 0)
	lr := csv.NewLineReader(csv.Sanitize(cr), b.grammar)
	res, err := b.run(ctx, func() (record, error) {
		for {
			line, start, err := lr.Next()
			if err != nil {
				return record{}, err
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			return b.tokenize(line, start), nil
		}
	})
	if res != nil {
		res.Bytes = cr.BytesRead()
	}
	return res, err
}

// BuildFile opens path, builds from it and closes it on every exit path.
// A close failure after a successful build is logged and returned in
// Result.CloseErr.
func (b *Builder) BuildFile(ctx context.Context, path string) (res *Result, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			b.log.Warn("failed to close input", "path", path, "error", cerr)
			if res != nil {
				res.CloseErr = cerr
			}
		}
	}()

	return b.Build(ctx, f)
}

// BuildLines builds from already separated logical lines.
func (b *Builder) BuildLines(ctx context.Context, lines []string) (*Result, error) {
	i := 0
	return b.run(ctx, func() (record, error) {
		for i < len(lines) {
			line := lines[i]
			i++
			if strings.TrimSpace(line) == "" {
				continue
			}
			return b.tokenize(line, i), nil
		}
		return record{}, io.EOF
	})
}

// BuildRecords builds from pre-split cells, skipping the tokenizer.
func (b *Builder) BuildRecords(ctx context.Context, records [][]string) (*Result, error) {
	i := 0
	return b.run(ctx, func() (record, error) {
		for i < len(records) {
			cells := records[i]
			i++
			if len(cells) == 0 || (len(cells) == 1 && strings.TrimSpace(cells[0]) == "") {
				continue
			}
			return record{cells: cells, line: i}, nil
		}
		return record{}, io.EOF
	})
}

func (b *Builder) tokenize(line string, lineNo int) record {
	cells, err := b.grammar.TokenizeLine(line, lineNo)
	return record{cells: cells, line: lineNo, raw: line, err: err}
}

// pending is a data row waiting to be committed.
type pending struct {
	row   Row
	raw   string
	value any
	err   error
}

type buildState struct {
	b      *Builder
	res    *Result
	header Header
	rows   []any
	next   int // data row index
}

func (b *Builder) run(ctx context.Context, next source) (*Result, error) {
	start := time.Now()
	r := &buildState{b: b, res: &Result{Phase: PhaseAwaitingHeader}}

	header, first, err := b.readHeader(next)
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	r.header = header
	r.res.Phase = PhaseReadingRows
	b.log.Debug("header acquired", "columns", header.Len())

	if first != nil {
		if stop, err := r.feed(ctx, []record{*first}); err != nil || stop {
			return r.finish(start, err)
		}
	}

	batch := make([]record, 0, b.batchSize())
	for {
		if err := ctx.Err(); err != nil {
			return r.finish(start, err)
		}
		rec, err := next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return r.finish(start, fmt.Errorf("read input: %w", err))
		}
		batch = append(batch, rec)
		if len(batch) < cap(batch) {
			continue
		}
		stop, err := r.feed(ctx, batch)
		if err != nil || stop {
			return r.finish(start, err)
		}
		batch = batch[:0]
	}
	_, err = r.feed(ctx, batch)
	return r.finish(start, err)
}

func (b *Builder) batchSize() int {
	if b.opts.Workers > 1 {
		return b.opts.BatchSize
	}
	return 1
}

// readHeader acquires the header. For synthetic headers the first data
// record is returned so it can be fed as a row.
func (b *Builder) readHeader(next source) (Header, *record, error) {
	var rows [][]string
	for len(rows) < b.opts.HeaderRows {
		rec, err := next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Header{}, nil, err
		}
		if rec.err != nil {
			return Header{}, nil, rec.err
		}
		rows = append(rows, rec.cells)
	}

	switch {
	case b.opts.Header != nil:
		h, err := NewHeader(b.opts.Header)
		return h, nil, err
	case b.opts.Synthesize != HeaderNone:
		rec, err := next()
		if errors.Is(err, io.EOF) {
			return SyntheticHeader(0, b.opts.Synthesize), nil, nil
		}
		if err != nil {
			return Header{}, nil, err
		}
		return SyntheticHeader(len(rec.cells), b.opts.Synthesize), &rec, nil
	case len(rows) == 0:
		// Empty input: an empty header and no rows.
		return MustHeader(), nil, nil
	case len(rows) == 1:
		h, err := NewHeader(rows[0])
		return h, nil, err
	}
	h, err := NewHeader(JoinHeaderRows(rows, b.opts.HeaderSeparator))
	return h, nil, err
}

// feed converts a batch and commits it in order. stop reports that the
// build must not read further input.
func (r *buildState) feed(ctx context.Context, batch []record) (bool, error) {
	b := r.b
	ps := make([]pending, 0, len(batch))
	for _, rec := range batch {
		p := pending{
			row: Row{Cells: rec.cells, Header: r.header, Index: r.next, Line: rec.line},
			raw: rec.raw,
			err: rec.err,
		}
		r.next++
		if p.err == nil && b.opts.Predicate != nil && !b.opts.Predicate(p.row) {
			r.res.Skipped++
			continue
		}
		ps = append(ps, p)
	}

	if err := r.convert(ctx, ps); err != nil {
		return true, err
	}

	for i := range ps {
		stop, err := r.commit(&ps[i])
		if err != nil || stop {
			return true, err
		}
	}
	return false, nil
}

func (r *buildState) convert(ctx context.Context, ps []pending) error {
	b := r.b
	if b.opts.Workers <= 1 || len(ps) < 2 {
		for i := range ps {
			if ps[i].err == nil {
				ps[i].value, ps[i].err = b.conv.Convert(ps[i].row, b.schema)
			}
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.opts.Workers)
	for i := range ps {
		if ps[i].err != nil {
			continue
		}
		p := &ps[i]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			p.value, p.err = b.conv.Convert(p.row, b.schema)
			return nil
		})
	}
	return g.Wait()
}

func (r *buildState) commit(p *pending) (bool, error) {
	b := r.b
	r.res.Rows++
	if p.err == nil {
		r.rows = append(r.rows, p.value)
		return false, nil
	}

	f := newFailure(p)
	if !b.opts.Forgiving {
		return true, &f
	}
	r.res.Failures = append(r.res.Failures, f)
	if b.opts.MaxFailures > 0 && len(r.res.Failures) >= b.opts.MaxFailures {
		r.res.Truncated = true
		return true, nil
	}
	return false, nil
}

func newFailure(p *pending) Failure {
	f := Failure{
		Row:  p.row.Index,
		Line: p.row.Line,
		Raw:  p.raw,
		Kind: KindOf(p.err),
		Err:  p.err,
	}
	var ce *CellError
	if errors.As(p.err, &ce) {
		f.Path, f.Column, f.Raw = ce.Path, ce.Column, ce.Raw
	}
	var pe *csv.ParseError
	if errors.As(p.err, &pe) {
		f.Line = pe.Line
	}
	return f
}

func (r *buildState) finish(start time.Time, err error) (*Result, error) {
	b := r.b
	if err != nil {
		var f *Failure
		if errors.As(err, &f) {
			b.log.Debug("build aborted", "row", f.Row, "kind", f.Kind, "error", f.Err)
		}
		return nil, err
	}

	res := r.res
	res.Table = NewTableWithHeader(r.header, r.rows)
	res.Phase = PhaseDone
	res.Duration = time.Since(start)

	// Failures are reported once, after the table is complete.
	if n := len(res.Failures); n > 0 {
		first := res.Failures[0]
		b.log.Warn("rows failed conversion",
			"failures", n,
			"first_row", first.Row,
			"first_kind", first.Kind,
			"first_error", first.Err,
			"truncated", res.Truncated,
		)
		for _, f := range res.Failures {
			b.log.Debug("row failure", "row", f.Row, "path", f.Path, "column", f.Column, "kind", f.Kind)
		}
	}
	b.log.Info("table built",
		"rows", res.Rows,
		"converted", res.Table.Len(),
		"failures", len(res.Failures),
		"skipped", res.Skipped,
		"duration_ms", res.Duration.Milliseconds(),
	)
	return res, nil
}

// Sampler returns a predicate keeping every nth data row, starting with the
// first. n <= 1 keeps every row.
func Sampler(n int) func(Row) bool {
	if n <= 1 {
		return func(Row) bool { return true }
	}
	return func(r Row) bool { return r.Index%n == 0 }
}
