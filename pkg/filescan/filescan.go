// Package filescan runs the per-file metadata and key extraction operations
// over many files concurrently, the way a query planner or index builder
// fans out over the data files of a table.
package filescan

import (
	"context"
	"fmt"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/eunmann/lakemeta/internal/logctx"
	"github.com/eunmann/lakemeta/pkg/colstats"
	"github.com/eunmann/lakemeta/pkg/footer"
	"github.com/eunmann/lakemeta/pkg/recordkey"
	"github.com/eunmann/lakemeta/pkg/records"
	"github.com/eunmann/lakemeta/pkg/s3fetch"
)

// DefaultConcurrency is the number of files processed at once when
// Scanner.Concurrency is not set.
const DefaultConcurrency = 4

// Scanner fans an operation out over files.
type Scanner struct {
	// Concurrency bounds the number of files processed at once.
	Concurrency int
	// KeepGoing skips files that fail instead of aborting the scan. The
	// failures are returned together as a *multierror.Error next to the
	// results of the files that succeeded.
	KeepGoing bool
	// Resolver makes s3:// files local. Nil supports local files only.
	Resolver *s3fetch.Resolver
	// Opener decodes records. Nil means records.ParquetOpener{}.
	Opener records.Opener
}

// FileRanges holds the column ranges of one file.
type FileRanges struct {
	Path   string                 `json:"path"`
	Ranges []colstats.ColumnRange `json:"ranges"`
}

// FileKeys holds the record identities of one file, in file order.
type FileKeys struct {
	Path string          `json:"path"`
	Keys []recordkey.Key `json:"keys"`
}

// FileKeySet holds the distinct record keys of one file that passed a
// filter.
type FileKeySet struct {
	Path string             `json:"path"`
	Keys mapset.Set[string] `json:"keys"`
}

// FileRowCount holds the row count of one file.
type FileRowCount struct {
	Path string `json:"path"`
	Rows int64  `json:"rows"`
}

// ColumnRanges aggregates the requested columns of every file.
func (s *Scanner) ColumnRanges(ctx context.Context, paths, columns []string) ([]FileRanges, error) {
	return run(ctx, s, "ranges", paths, func(ctx context.Context, path, local string) (FileRanges, error) {
		ranges, err := colstats.ReadRanges(ctx, local, columns)
		if err != nil {
			return FileRanges{}, err
		}
		for i := range ranges {
			ranges[i].FilePath = path
		}
		return FileRanges{Path: path, Ranges: ranges}, nil
	})
}

// RecordKeys extracts the record identities of every file.
func (s *Scanner) RecordKeys(ctx context.Context, paths []string, strategy recordkey.Strategy) ([]FileKeys, error) {
	src := s.opener()
	return run(ctx, s, "key-pairs", paths, func(ctx context.Context, path, local string) (FileKeys, error) {
		keys, err := recordkey.FetchRecordKeyPartitionPath(ctx, src, local, strategy)
		if err != nil {
			return FileKeys{}, err
		}
		return FileKeys{Path: path, Keys: keys}, nil
	})
}

// FilterKeys collects the record keys of every file that filter contains.
// A nil or empty filter accepts every key.
func (s *Scanner) FilterKeys(ctx context.Context, paths []string, filter recordkey.KeyFilter) ([]FileKeySet, error) {
	src := s.opener()
	return run(ctx, s, "keys", paths, func(ctx context.Context, path, local string) (FileKeySet, error) {
		keys, err := recordkey.FilterRowKeys(ctx, src, local, filter)
		if err != nil {
			return FileKeySet{}, err
		}
		return FileKeySet{Path: path, Keys: keys}, nil
	})
}

// RowCounts reads the row count of every file from its footer.
func (s *Scanner) RowCounts(ctx context.Context, paths []string) ([]FileRowCount, error) {
	return run(ctx, s, "rowcount", paths, func(ctx context.Context, path, local string) (FileRowCount, error) {
		n, err := footer.RowCount(ctx, local)
		if err != nil {
			return FileRowCount{}, err
		}
		return FileRowCount{Path: path, Rows: n}, nil
	})
}

func (s *Scanner) opener() records.Opener {
	if s.Opener == nil {
		return records.ParquetOpener{}
	}
	return s.Opener
}

// run applies fn to every path with bounded concurrency and returns the
// results in input order. Skipped files leave no entry.
func run[T any](ctx context.Context, s *Scanner, op string, paths []string,
	fn func(ctx context.Context, path, local string) (T, error)) ([]T, error) {
	limit := s.Concurrency
	if limit <= 0 {
		limit = DefaultConcurrency
	}

	var (
		results = make([]T, len(paths))
		done    = make([]bool, len(paths))
		mu      sync.Mutex
		merr    *multierror.Error
	)

	log := logctx.FromContext(ctx)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i, path := range paths {
		g.Go(func() error {
			fctx := logctx.WithInt(logctx.WithFile(gctx, path), "file_index", i)
			res, err := processFile(fctx, s.Resolver, path, fn)
			if err != nil {
				err = fmt.Errorf("%s %s: %w", op, path, err)
				if !s.KeepGoing || gctx.Err() != nil {
					return err
				}
				logger := logctx.FromContext(fctx)
				logger.Warn().Err(err).Msg("skipping file")
				mu.Lock()
				merr = multierror.Append(merr, err)
				mu.Unlock()
				return nil
			}
			results[i] = res
			done[i] = true
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]T, 0, len(paths))
	for i, ok := range done {
		if ok {
			out = append(out, results[i])
		}
	}

	log.Debug().
		Str("op", op).
		Int("files", len(paths)).
		Int("ok", len(out)).
		Msg("scan complete")
	return out, merr.ErrorOrNil()
}

func processFile[T any](ctx context.Context, r *s3fetch.Resolver, path string,
	fn func(ctx context.Context, path, local string) (T, error)) (T, error) {
	local, cleanup, err := r.Local(ctx, path)
	if err != nil {
		var zero T
		return zero, err
	}
	defer cleanup()
	return fn(ctx, path, local)
}
