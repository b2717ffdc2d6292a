// Package footer reads Parquet file footers: row group (block) statistics,
// the file schema and the key/value metadata section.
//
// Only the footer is decoded. Page indexes and bloom filters are skipped, so
// reading metadata costs one small read at the end of the file no matter how
// large the file is.
package footer

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/parquet-go/parquet-go"

	"github.com/eunmann/lakemeta/internal/logctx"
)

// FileMetadata is the decoded footer of one Parquet file.
type FileMetadata struct {
	Path      string
	NumRows   int64
	CreatedBy string
	Schema    *parquet.Schema
	KeyValue  map[string]string
	Blocks    []BlockMetadata
}

// BlockMetadata describes one row group.
type BlockMetadata struct {
	RowCount int64
	Columns  []ColumnChunkMetadata
}

// ColumnChunkMetadata describes one column of one row group.
type ColumnChunkMetadata struct {
	// Path is the dot-joined column path, e.g. "address.city".
	Path string
	// Type is the leaf type including its logical annotation. It is nil when
	// the column cannot be resolved in the file schema.
	Type       parquet.Type
	Statistics Statistics
}

// RowCount returns the total number of rows over all blocks.
func (m *FileMetadata) RowCount() int64 {
	var n int64
	for _, b := range m.Blocks {
		n += b.RowCount
	}
	return n
}

// FooterValues returns the key/value footer entries for names. Missing names
// are skipped unless required is set, in which case the first missing name
// fails the call with a *MetadataNotFoundError.
func (m *FileMetadata) FooterValues(required bool, names ...string) (map[string]string, error) {
	vals := make(map[string]string, len(names))
	for _, name := range names {
		v, ok := m.KeyValue[name]
		if !ok {
			if required {
				return nil, &MetadataNotFoundError{Key: name, Path: m.Path}
			}
			continue
		}
		vals[name] = v
	}
	return vals, nil
}

// File is an open Parquet file whose footer has been decoded.
type File struct {
	path   string
	closer io.Closer
	pf     *parquet.File
	md     *FileMetadata
}

// Open opens the Parquet file at path and decodes its footer.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &IOError{Op: "open", Path: path, Err: err}
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, &IOError{Op: "stat", Path: path, Err: err}
	}

	file, err := OpenReaderAt(f, info.Size(), path)
	if err != nil {
		f.Close()
		return nil, err
	}
	file.closer = f
	return file, nil
}

// OpenReaderAt decodes the footer of a Parquet file exposed as r. path is
// only used to label metadata and errors. Closing the returned File does not
// close r.
func OpenReaderAt(r io.ReaderAt, size int64, path string) (*File, error) {
	pf, err := parquet.OpenFile(r, size,
		parquet.SkipPageIndex(true),
		parquet.SkipBloomFilters(true),
	)
	if err != nil {
		return nil, &IOError{Op: "read footer", Path: path, Err: err}
	}

	return &File{
		path: path,
		pf:   pf,
		md:   buildMetadata(path, pf),
	}, nil
}

// Path returns the path the file was opened with.
func (f *File) Path() string { return f.path }

// Metadata returns the decoded footer.
func (f *File) Metadata() *FileMetadata { return f.md }

// Parquet returns the underlying parquet-go file for row access.
func (f *File) Parquet() *parquet.File { return f.pf }

// Close releases the file handle if Open created it.
func (f *File) Close() error {
	if f.closer == nil {
		return nil
	}
	err := f.closer.Close()
	f.closer = nil
	if err != nil {
		return &IOError{Op: "close", Path: f.path, Err: err}
	}
	return nil
}

// ReadMetadata opens path, decodes its footer and closes it again.
func ReadMetadata(ctx context.Context, path string) (*FileMetadata, error) {
	f, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	md := f.Metadata()
	logger := logctx.FromContext(ctx)
	logger.Debug().
		Str("path", path).
		Int("blocks", len(md.Blocks)).
		Int64("rows", md.NumRows).
		Msg("read parquet footer")
	return md, nil
}

// ReadFooterValues reads the key/value footer entries for names from path.
// See FileMetadata.FooterValues for the required semantics.
func ReadFooterValues(ctx context.Context, path string, required bool, names ...string) (map[string]string, error) {
	md, err := ReadMetadata(ctx, path)
	if err != nil {
		return nil, err
	}
	return md.FooterValues(required, names...)
}

// ReadSchema returns the schema of the file at path.
func ReadSchema(ctx context.Context, path string) (*parquet.Schema, error) {
	md, err := ReadMetadata(ctx, path)
	if err != nil {
		return nil, err
	}
	return md.Schema, nil
}

// RowCount returns the number of rows of the file at path, summed over its
// row groups.
func RowCount(ctx context.Context, path string) (int64, error) {
	md, err := ReadMetadata(ctx, path)
	if err != nil {
		return 0, err
	}
	return md.RowCount(), nil
}

func buildMetadata(path string, pf *parquet.File) *FileMetadata {
	raw := pf.Metadata()
	schema := pf.Schema()

	md := &FileMetadata{
		Path:      path,
		NumRows:   raw.NumRows,
		CreatedBy: raw.CreatedBy,
		Schema:    schema,
		KeyValue:  make(map[string]string, len(raw.KeyValueMetadata)),
		Blocks:    make([]BlockMetadata, 0, len(raw.RowGroups)),
	}
	for _, kv := range raw.KeyValueMetadata {
		md.KeyValue[kv.Key] = kv.Value
	}

	types := make(map[string]parquet.Type)
	for _, rg := range raw.RowGroups {
		block := BlockMetadata{
			RowCount: rg.NumRows,
			Columns:  make([]ColumnChunkMetadata, 0, len(rg.Columns)),
		}
		for i := range rg.Columns {
			cm := &rg.Columns[i].MetaData
			name := strings.Join(cm.PathInSchema, ".")

			typ, ok := types[name]
			if !ok {
				typ = leafType(schema, cm.PathInSchema)
				types[name] = typ
			}

			block.Columns = append(block.Columns, ColumnChunkMetadata{
				Path:       name,
				Type:       typ,
				Statistics: decodeStatistics(typ, &cm.Statistics),
			})
		}
		md.Blocks = append(md.Blocks, block)
	}
	return md
}

func leafType(schema *parquet.Schema, path []string) parquet.Type {
	leaf, ok := schema.Lookup(path...)
	if !ok {
		return nil
	}
	return leaf.Node.Type()
}

// String renders a short human description, used by the CLI schema command.
func (c ColumnChunkMetadata) String() string {
	if c.Type == nil {
		return c.Path
	}
	return fmt.Sprintf("%s %s", c.Path, c.Type)
}
