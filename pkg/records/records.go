// Package records decodes Parquet rows into generic records, reading only the
// columns a caller asks for.
package records

import (
	"context"
	"errors"
	"io"

	"github.com/parquet-go/parquet-go"

	"github.com/eunmann/lakemeta/internal/logctx"
	"github.com/eunmann/lakemeta/pkg/footer"
)

// DefaultBatchSize is the number of rows decoded per read call.
const DefaultBatchSize = 1024

// ErrNoMatchingFields is returned when none of the requested fields exist in
// the file.
var ErrNoMatchingFields = errors.New("no requested field in file schema")

// Record is one decoded row keyed by top-level field name. Null values are
// stored as nil or missing.
type Record map[string]any

// Iterator is a lazy sequence of records from one file. Next returns io.EOF
// after the last record. Close must be called exactly once, also after an
// error or early exit.
type Iterator interface {
	Next() (Record, error)
	Close() error
}

// Opener opens a projected record sequence. fields lists the top-level
// fields to decode; an empty list decodes every field. Fields the file does
// not have are ignored.
type Opener interface {
	Open(ctx context.Context, path string, fields []string) (Iterator, error)
}

// ParquetOpener decodes local Parquet files.
type ParquetOpener struct {
	// BatchSize is the number of rows decoded per read. Zero means
	// DefaultBatchSize.
	BatchSize int
}

// Open implements Opener.
func (o ParquetOpener) Open(ctx context.Context, path string, fields []string) (Iterator, error) {
	f, err := footer.Open(path)
	if err != nil {
		return nil, err
	}

	pf := f.Parquet()
	schema := Projection(pf.Schema(), fields)
	if len(schema.Fields()) == 0 {
		f.Close()
		return nil, footer.WrapIO("project", path, ErrNoMatchingFields)
	}
	batch := o.BatchSize
	if batch <= 0 {
		batch = DefaultBatchSize
	}

	logger := logctx.FromContext(ctx)
	logger.Debug().
		Str("path", path).
		Strs("fields", fields).
		Int("projected_columns", len(schema.Columns())).
		Msg("opened record reader")

	return &parquetIterator{
		ctx:    ctx,
		path:   path,
		file:   f,
		reader: parquet.NewGenericReader[map[string]any](pf, schema),
		rows:   make([]map[string]any, batch),
	}, nil
}

type parquetIterator struct {
	ctx    context.Context
	path   string
	file   *footer.File
	reader *parquet.GenericReader[map[string]any]

	rows []map[string]any
	pos  int
	n    int
	eof  bool
}

func (it *parquetIterator) Next() (Record, error) {
	for it.pos >= it.n {
		if it.eof {
			return nil, io.EOF
		}
		if err := it.ctx.Err(); err != nil {
			return nil, err
		}
		if err := it.fill(); err != nil {
			return nil, err
		}
	}

	rec := Record(it.rows[it.pos])
	it.rows[it.pos] = nil
	it.pos++
	return rec, nil
}

func (it *parquetIterator) fill() error {
	// Records are handed out, so every batch decodes into fresh maps.
	for i := range it.rows {
		it.rows[i] = make(map[string]any)
	}

	n, err := it.reader.Read(it.rows)
	it.pos, it.n = 0, n
	if errors.Is(err, io.EOF) {
		it.eof = true
		return nil
	}
	if err != nil {
		return footer.WrapIO("decode rows", it.path, err)
	}
	return nil
}

func (it *parquetIterator) Close() error {
	rerr := it.reader.Close()
	ferr := it.file.Close()
	if rerr != nil {
		return footer.WrapIO("close reader", it.path, rerr)
	}
	return ferr
}

// Projection narrows schema to the named top-level fields, keeping their
// full subtrees. Names missing from schema are skipped. An empty list returns
// schema unchanged.
func Projection(schema *parquet.Schema, fields []string) *parquet.Schema {
	if len(fields) == 0 {
		return schema
	}

	wanted := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		wanted[f] = struct{}{}
	}

	group := make(parquet.Group, len(wanted))
	for _, f := range schema.Fields() {
		if _, ok := wanted[f.Name()]; ok {
			group[f.Name()] = f
		}
	}
	return parquet.NewSchema(schema.Name(), group)
}

// ReadAll decodes every record of path, projected to fields.
func ReadAll(ctx context.Context, o Opener, path string, fields []string) (recs []Record, err error) {
	it, err := o.Open(ctx, path, fields)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := it.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	for {
		rec, err := it.Next()
		if errors.Is(err, io.EOF) {
			return recs, nil
		}
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
}
