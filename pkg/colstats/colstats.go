// Package colstats aggregates per-row-group column statistics from a Parquet
// footer into one value range per column per file. The ranges are what a
// query planner consults to skip files whose values cannot match a predicate.
package colstats

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/parquet-go/parquet-go"

	"github.com/eunmann/lakemeta/internal/logctx"
	"github.com/eunmann/lakemeta/pkg/footer"
)

// ColumnRange is the value range of one column, either within one row group
// or folded over a whole file.
//
// A null Min or Max means no non-null value was observed or the writer did not
// record statistics. MinString and MaxString always come from the same input
// as Min and Max.
type ColumnRange struct {
	FilePath   string
	ColumnName string
	Min        parquet.Value
	Max        parquet.Value
	MinString  string
	MaxString  string
	NullCount  int64
	// Type orders Min and Max. Ranges of columns missing from the schema
	// carry a nil Type and never hold bounds.
	Type parquet.Type
}

// HasMin reports whether a minimum is recorded.
func (r ColumnRange) HasMin() bool { return !r.Min.IsNull() }

// HasMax reports whether a maximum is recorded.
func (r ColumnRange) HasMax() bool { return !r.Max.IsNull() }

// Contains reports whether v may occur in the column. It is false only when
// the range proves v is absent: v is outside the bounds, or v is null and no
// nulls were counted. Unknown bounds never exclude a value.
func (r ColumnRange) Contains(v parquet.Value) bool {
	if v.IsNull() {
		return r.NullCount > 0
	}
	if r.Type == nil {
		return true
	}
	if r.HasMin() && r.Type.Compare(v, r.Min) < 0 {
		return false
	}
	if r.HasMax() && r.Type.Compare(v, r.Max) > 0 {
		return false
	}
	return true
}

// Merge folds two ranges of the same column. Null counts add up, the smaller
// minimum and larger maximum win and an absent bound yields to a present one.
// On ties the minimum is taken from a and the maximum from b. The string
// renderings travel with the bound they were rendered from.
func Merge(a, b ColumnRange) ColumnRange {
	typ := a.Type
	if typ == nil {
		typ = b.Type
	}

	out := ColumnRange{
		FilePath:   a.FilePath,
		ColumnName: a.ColumnName,
		NullCount:  a.NullCount + b.NullCount,
		Type:       typ,
	}

	switch {
	case !b.HasMin():
		out.Min, out.MinString = a.Min, a.MinString
	case !a.HasMin():
		out.Min, out.MinString = b.Min, b.MinString
	case compare(typ, a.Min, b.Min) <= 0:
		out.Min, out.MinString = a.Min, a.MinString
	default:
		out.Min, out.MinString = b.Min, b.MinString
	}

	switch {
	case !a.HasMax():
		out.Max, out.MaxString = b.Max, b.MaxString
	case !b.HasMax():
		out.Max, out.MaxString = a.Max, a.MaxString
	case compare(typ, a.Max, b.Max) > 0:
		out.Max, out.MaxString = a.Max, a.MaxString
	default:
		out.Max, out.MaxString = b.Max, b.MaxString
	}

	return out
}

func compare(typ parquet.Type, a, b parquet.Value) int {
	if typ == nil {
		return 0
	}
	return typ.Compare(a, b)
}

// dateRenderMu serializes rendering of DATE statistics, which share one
// scratch buffer inside the footer package.
var dateRenderMu sync.Mutex

// FromChunk builds the range of one column chunk.
func FromChunk(filePath string, cc footer.ColumnChunkMetadata) ColumnRange {
	st := cc.Statistics
	r := ColumnRange{
		FilePath:   filePath,
		ColumnName: cc.Path,
		Min:        st.Min,
		Max:        st.Max,
		NullCount:  st.NullCount,
		Type:       cc.Type,
	}

	if footer.IsDate(cc.Type) {
		dateRenderMu.Lock()
		r.MinString = st.MinAsString()
		r.MaxString = st.MaxAsString()
		dateRenderMu.Unlock()
	} else {
		r.MinString = st.MinAsString()
		r.MaxString = st.MaxAsString()
	}
	return r
}

// Aggregate folds the statistics of the requested columns over every block
// of md into one range per column. Requested columns absent from every block
// are left out. The result is sorted by column name.
func Aggregate(md *footer.FileMetadata, filePath string, columns []string) []ColumnRange {
	wanted := make(map[string]struct{}, len(columns))
	for _, c := range columns {
		wanted[c] = struct{}{}
	}

	acc := make(map[string]*ColumnRange, len(wanted))
	for _, block := range md.Blocks {
		for _, cc := range block.Columns {
			if _, ok := wanted[cc.Path]; !ok {
				continue
			}
			r := FromChunk(filePath, cc)
			if prev, ok := acc[cc.Path]; ok {
				*prev = Merge(*prev, r)
				continue
			}
			acc[cc.Path] = &r
		}
	}

	out := make([]ColumnRange, 0, len(acc))
	for _, r := range acc {
		out = append(out, *r)
	}
	slices.SortFunc(out, func(a, b ColumnRange) int {
		return strings.Compare(a.ColumnName, b.ColumnName)
	})
	return out
}

// ReadRanges reads the footer of the Parquet file at path and aggregates the
// requested columns. Only footer I/O errors are returned.
func ReadRanges(ctx context.Context, path string, columns []string) ([]ColumnRange, error) {
	md, err := footer.ReadMetadata(ctx, path)
	if err != nil {
		return nil, err
	}

	ranges := Aggregate(md, path, columns)
	logger := logctx.FromContext(ctx)
	logger.Debug().
		Str("path", path).
		Int("requested", len(columns)).
		Int("ranges", len(ranges)).
		Msg("aggregated column ranges")
	return ranges, nil
}
