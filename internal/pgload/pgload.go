// Package pgload copies built tables into PostgreSQL.
//
// Each load runs in one transaction: the target table is optionally
// created from the schema layout, then every row is sent with COPY. A
// failure rolls the whole table back.
package pgload

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/JonMunkholm/csvtable/internal/core"
)

// Beginner starts transactions. *pgxpool.Pool and *pgx.Conn satisfy it.
type Beginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Column is one target column of a load.
type Column struct {
	Name     string // database column
	Header   string // rendered header column it is read from
	Type     string // PostgreSQL type used when creating the table
	Nullable bool

	field *core.Field
	// text columns are sent as formatted cells.
	text bool
}

// Plan maps a schema layout onto a database table.
type Plan struct {
	Table   pgx.Identifier
	Columns []Column

	schema *core.Field
	naming core.Naming
	header core.Header
}

// NewPlan lays out def for the given rows. Numbered fields get as many
// column groups as the longest row needs.
func NewPlan(table string, def core.Definition, rows []any) (*Plan, error) {
	if table == "" {
		table = def.Name
	}
	specs, err := core.Layout(def.Schema, def.Naming, rows...)
	if err != nil {
		return nil, err
	}

	names := make([]string, len(specs))
	cols := make([]Column, len(specs))
	seen := make(map[string]string, len(specs))
	for i, s := range specs {
		name := toDBColumnName(s.Name)
		if prev, dup := seen[name]; dup {
			return nil, fmt.Errorf("%w: columns %q and %q both map to %q", core.ErrConfiguration, prev, s.Name, name)
		}
		seen[name] = s.Name
		names[i] = s.Name
		typ, text := pgType(s.Field)
		cols[i] = Column{Name: name, Header: s.Name, Type: typ, Nullable: s.Nullable, field: s.Field, text: text}
	}

	header, err := core.NewHeader(names)
	if err != nil {
		return nil, err
	}
	return &Plan{
		Table:   pgx.Identifier(strings.Split(table, ".")),
		Columns: cols,
		schema:  def.Schema,
		naming:  def.Naming,
		header:  header,
	}, nil
}

// ColumnNames returns the database column names in copy order.
func (p *Plan) ColumnNames() []string {
	out := make([]string, len(p.Columns))
	for i, c := range p.Columns {
		out[i] = c.Name
	}
	return out
}

// CreateSQL returns a CREATE TABLE IF NOT EXISTS statement for the plan.
func (p *Plan) CreateSQL() string {
	defs := make([]string, len(p.Columns))
	for i, c := range p.Columns {
		def := quoteIdentifier(c.Name) + " " + c.Type
		if !c.Nullable {
			def += " NOT NULL"
		}
		defs[i] = def
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)", p.Table.Sanitize(), strings.Join(defs, ",\n\t"))
}

// Source returns a CopyFromSource over rows.
func (p *Plan) Source(rows []any) pgx.CopyFromSource {
	return &source{plan: p, rows: rows, idx: -1}
}

type source struct {
	plan *Plan
	rows []any
	idx  int
	vals []any
	err  error
}

func (s *source) Next() bool {
	if s.err != nil {
		return false
	}
	s.idx++
	if s.idx >= len(s.rows) {
		return false
	}
	s.vals, s.err = s.plan.values(s.rows[s.idx])
	if s.err != nil {
		s.err = fmt.Errorf("row %d: %w", s.idx, s.err)
		return false
	}
	return true
}

func (s *source) Values() ([]any, error) { return s.vals, s.err }
func (s *source) Err() error             { return s.err }

func (p *Plan) values(row any) ([]any, error) {
	vals, err := core.Flatten(p.schema, p.naming, p.header, row)
	if err != nil {
		return nil, err
	}
	for i, c := range p.Columns {
		if vals[i] == nil {
			continue
		}
		switch {
		case c.field.Node == core.NodeList:
			if vals[i], err = formatList(c.field, vals[i]); err != nil {
				return nil, fmt.Errorf("column %s: %w", c.Name, err)
			}
		case c.text:
			if vals[i], err = core.FormatCell(c.field, vals[i]); err != nil {
				return nil, fmt.Errorf("column %s: %w", c.Name, err)
			}
		}
	}
	return vals, nil
}

// Options control a load.
type Options struct {
	// Table is the target table, optionally schema-qualified. Defaults to
	// the definition name.
	Table string
	// Create issues CREATE TABLE IF NOT EXISTS before copying.
	Create bool
	Logger *slog.Logger
}

// Result summarizes a load.
type Result struct {
	Table    string        `json:"table"`
	Rows     int64         `json:"rows"`
	Duration time.Duration `json:"duration"`
}

// Load copies t into the database inside a single transaction.
func Load(ctx context.Context, db Beginner, def core.Definition, t core.Table[any], opts Options) (*Result, error) {
	start := time.Now()
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("operation cancelled: %w", err)
	}

	rows := t.Rows()
	plan, err := NewPlan(opts.Table, def, rows)
	if err != nil {
		return nil, err
	}

	tx, err := db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) // No-op if already committed

	if opts.Create {
		if _, err := tx.Exec(ctx, plan.CreateSQL()); err != nil {
			return nil, fmt.Errorf("create table %s: %w", plan.Table.Sanitize(), err)
		}
	}

	n, err := tx.CopyFrom(ctx, plan.Table, plan.ColumnNames(), plan.Source(rows))
	if err != nil {
		return nil, fmt.Errorf("copy into %s: %w", plan.Table.Sanitize(), err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	res := &Result{Table: strings.Join(plan.Table, "."), Rows: n, Duration: time.Since(start)}
	log.Info("table loaded",
		"schema", def.Name,
		"table", res.Table,
		"rows", n,
		"duration_ms", res.Duration.Milliseconds(),
	)
	return res, nil
}
