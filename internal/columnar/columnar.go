// Package columnar converts built tables to Apache Arrow and writes them as
// Parquet.
//
// Columns follow the rendered layout of the schema, so a Parquet export has
// the same column names as a CSV export of the same table. Cell types map
// to Arrow types as follows; every other type is stored as its formatted
// text.
//
//	string  utf8
//	int     int64
//	float   float64
//	bool    bool
//	date    date32
//	list    list<elem>
package columnar

import (
	"fmt"
	"io"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"

	"github.com/JonMunkholm/csvtable/internal/core"
)

func arrowType(t core.Type) arrow.DataType {
	switch t.Name {
	case core.IntType.Name:
		return arrow.PrimitiveTypes.Int64
	case core.FloatType.Name:
		return arrow.PrimitiveTypes.Float64
	case core.BoolType.Name:
		return arrow.FixedWidthTypes.Boolean
	case core.DateType.Name:
		return arrow.FixedWidthTypes.Date32
	default:
		return arrow.BinaryTypes.String
	}
}

// Schema returns the Arrow schema of a layout.
func Schema(specs []core.ColumnSpec) *arrow.Schema {
	fields := make([]arrow.Field, len(specs))
	for i, s := range specs {
		typ := arrowType(s.Field.Type)
		if s.Field.Node == core.NodeList {
			typ = arrow.ListOf(typ)
		}
		fields[i] = arrow.Field{Name: s.Name, Type: typ, Nullable: s.Nullable}
	}
	return arrow.NewSchema(fields, nil)
}

// ToArrow converts t into an Arrow table laid out for def. The caller must
// Release the result.
func ToArrow(mem memory.Allocator, def core.Definition, t core.Table[any]) (arrow.Table, error) {
	if mem == nil {
		mem = memory.NewGoAllocator()
	}
	rows := t.Rows()
	specs, err := core.Layout(def.Schema, def.Naming, rows...)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(specs))
	for i, s := range specs {
		names[i] = s.Name
	}
	header, err := core.NewHeader(names)
	if err != nil {
		return nil, err
	}

	schema := Schema(specs)
	b := array.NewRecordBuilder(mem, schema)
	defer b.Release()

	for r, row := range rows {
		vals, err := core.Flatten(def.Schema, def.Naming, header, row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", r, err)
		}
		for i, v := range vals {
			if err := appendValue(b.Field(i), specs[i].Field, v); err != nil {
				return nil, fmt.Errorf("row %d: column %s: %w", r, specs[i].Name, err)
			}
		}
	}

	rec := b.NewRecord()
	defer rec.Release()
	return array.NewTableFromRecords(schema, []arrow.Record{rec}), nil
}

func appendValue(b array.Builder, f *core.Field, v any) error {
	if v == nil {
		b.AppendNull()
		return nil
	}
	if f.Node == core.NodeList {
		vs, ok := v.([]any)
		if !ok {
			return fmt.Errorf("expected list, got %T", v)
		}
		lb := b.(*array.ListBuilder)
		lb.Append(true)
		for _, e := range vs {
			if err := appendScalar(lb.ValueBuilder(), f.Type, e); err != nil {
				return err
			}
		}
		return nil
	}
	return appendScalar(b, f.Type, v)
}

func appendScalar(b array.Builder, t core.Type, v any) error {
	if v == nil {
		b.AppendNull()
		return nil
	}
	switch b := b.(type) {
	case *array.Int64Builder:
		n, ok := v.(int64)
		if !ok {
			return fmt.Errorf("expected int64, got %T", v)
		}
		b.Append(n)
	case *array.Float64Builder:
		x, ok := v.(float64)
		if !ok {
			return fmt.Errorf("expected float64, got %T", v)
		}
		b.Append(x)
	case *array.BooleanBuilder:
		x, ok := v.(bool)
		if !ok {
			return fmt.Errorf("expected bool, got %T", v)
		}
		b.Append(x)
	case *array.Date32Builder:
		x, ok := v.(time.Time)
		if !ok {
			return fmt.Errorf("expected time.Time, got %T", v)
		}
		b.Append(arrow.Date32FromTime(x))
	case *array.StringBuilder:
		s, err := t.FormatValue(v)
		if err != nil {
			return err
		}
		b.Append(s)
	default:
		return fmt.Errorf("unsupported arrow builder %T", b)
	}
	return nil
}

// WriteParquet writes tbl to w as a Snappy-compressed Parquet file with the
// Arrow schema stored in its metadata.
func WriteParquet(w io.Writer, tbl arrow.Table) error {
	props := parquet.NewWriterProperties(parquet.WithCompression(compress.Codecs.Snappy))
	arrowProps := pqarrow.NewArrowWriterProperties(pqarrow.WithStoreSchema())

	writer, err := pqarrow.NewFileWriter(tbl.Schema(), w, props, arrowProps)
	if err != nil {
		return fmt.Errorf("failed to create parquet writer: %w", err)
	}

	chunk := tbl.NumRows()
	if chunk == 0 {
		chunk = 1
	}
	if err := writer.WriteTable(tbl, chunk); err != nil {
		writer.Close()
		return fmt.Errorf("failed to write table to parquet: %w", err)
	}
	// Close writes the footer.
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finish parquet file: %w", err)
	}
	return nil
}

// ExportParquet converts t and writes it as Parquet.
func ExportParquet(w io.Writer, def core.Definition, t core.Table[any]) error {
	tbl, err := ToArrow(nil, def, t)
	if err != nil {
		return err
	}
	defer tbl.Release()
	return WriteParquet(w, tbl)
}
