// Package recordkey extracts record identities (record key and partition
// path) from the rows of Parquet data files, either from the metadata fields
// the writer stamped into every row or through a pluggable KeyGenerator.
package recordkey

import (
	"context"
	"errors"
	"fmt"
	"io"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/eunmann/lakemeta/internal/logctx"
	"github.com/eunmann/lakemeta/pkg/footer"
	"github.com/eunmann/lakemeta/pkg/records"
)

// Metadata fields carrying the record identity in every data file row.
const (
	RecordKeyMetadataField     = "_hoodie_record_key"
	PartitionPathMetadataField = "_hoodie_partition_path"
)

// ErrMissingField is returned when a record lacks a field its projection
// should have provided.
var ErrMissingField = errors.New("record is missing field")

// Key identifies one record.
type Key struct {
	RecordKey     string `json:"record_key"`
	PartitionPath string `json:"partition_path"`
}

// KeyFilter is a read-only membership test over record keys.
type KeyFilter interface {
	Contains(key string) bool
	Len() int
}

// CandidateSet is an in-memory KeyFilter.
type CandidateSet struct {
	set mapset.Set[string]
}

// NewCandidateSet returns a filter accepting exactly keys.
func NewCandidateSet(keys ...string) CandidateSet {
	return CandidateSet{set: mapset.NewSet(keys...)}
}

// CandidateSetOf wraps an existing set. The set must not change while the
// filter is in use.
func CandidateSetOf(s mapset.Set[string]) CandidateSet {
	return CandidateSet{set: s}
}

func (c CandidateSet) Contains(key string) bool {
	return c.set != nil && c.set.Contains(key)
}

func (c CandidateSet) Len() int {
	if c.set == nil {
		return 0
	}
	return c.set.Cardinality()
}

// Strategy selects where record identities come from: the metadata fields,
// or a KeyGenerator. The zero value selects the metadata fields.
type Strategy struct {
	gen KeyGenerator
}

// MetadataFields reads identities from the _hoodie_record_key and
// _hoodie_partition_path fields.
func MetadataFields() Strategy { return Strategy{} }

// WithGenerator derives identities with gen.
func WithGenerator(gen KeyGenerator) Strategy { return Strategy{gen: gen} }

// Generator returns the configured generator, if any.
func (s Strategy) Generator() (KeyGenerator, bool) { return s.gen, s.gen != nil }

// Fields returns the top-level fields a read must project to: both metadata
// fields, or the union of the generator's record key and partition path
// fields in declaration order.
func (s Strategy) Fields() []string {
	if s.gen == nil {
		return []string{RecordKeyMetadataField, PartitionPathMetadataField}
	}

	declared := append(append([]string(nil), s.gen.RecordKeyFields()...), s.gen.PartitionPathFields()...)
	seen := make(map[string]struct{}, len(declared))
	fields := make([]string, 0, len(declared))
	for _, f := range declared {
		top := topLevel(f)
		if _, ok := seen[top]; ok {
			continue
		}
		seen[top] = struct{}{}
		fields = append(fields, top)
	}
	return fields
}

func (s Strategy) key(rec records.Record) (Key, error) {
	if s.gen == nil {
		rk, err := metadataField(rec, RecordKeyMetadataField)
		if err != nil {
			return Key{}, err
		}
		pp, err := metadataField(rec, PartitionPathMetadataField)
		if err != nil {
			return Key{}, err
		}
		return Key{RecordKey: rk, PartitionPath: pp}, nil
	}

	rk, err := s.gen.RecordKey(rec)
	if err != nil {
		return Key{}, err
	}
	pp, err := s.gen.PartitionPath(rec)
	if err != nil {
		return Key{}, err
	}
	return Key{RecordKey: rk, PartitionPath: pp}, nil
}

func metadataField(rec records.Record, field string) (string, error) {
	v, ok := FieldString(rec, field)
	if !ok {
		return "", fmt.Errorf("%w %q", ErrMissingField, field)
	}
	return v, nil
}

// FilterRowKeys returns the distinct record keys of the file at path that
// filter contains. A nil or empty filter accepts every key.
func FilterRowKeys(ctx context.Context, src records.Opener, path string, filter KeyFilter) (mapset.Set[string], error) {
	acceptAll := filter == nil || filter.Len() == 0
	keys := mapset.NewThreadUnsafeSet[string]()
	rows := 0

	err := scan(ctx, src, path, []string{RecordKeyMetadataField}, func(rec records.Record) error {
		rows++
		key, err := metadataField(rec, RecordKeyMetadataField)
		if err != nil {
			return err
		}
		if acceptAll || filter.Contains(key) {
			keys.Add(key)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger := logctx.FromContext(ctx)
	logger.Debug().
		Str("path", path).
		Int("rows", rows).
		Int("keys", keys.Cardinality()).
		Bool("filtered", !acceptAll).
		Msg("filtered row keys")
	return keys, nil
}

// FetchRecordKeyPartitionPath returns the identity of every record of the
// file at path, in file order and without deduplication.
func FetchRecordKeyPartitionPath(ctx context.Context, src records.Opener, path string, strategy Strategy) ([]Key, error) {
	var keys []Key
	err := scan(ctx, src, path, strategy.Fields(), func(rec records.Record) error {
		k, err := strategy.key(rec)
		if err != nil {
			return err
		}
		keys = append(keys, k)
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger := logctx.FromContext(ctx)
	logger.Debug().
		Str("path", path).
		Int("keys", len(keys)).
		Bool("generator", strategy.gen != nil).
		Msg("fetched record keys")
	return keys, nil
}

// scan feeds every record of path, projected to fields, to fn. The reader is
// closed on every path; its close error is reported only if the scan itself
// succeeded.
func scan(ctx context.Context, src records.Opener, path string, fields []string, fn func(records.Record) error) (err error) {
	it, err := src.Open(ctx, path, fields)
	if err != nil {
		return footer.WrapIO("open records", path, err)
	}
	defer func() {
		if cerr := it.Close(); cerr != nil && err == nil {
			err = footer.WrapIO("close records", path, cerr)
		}
	}()

	for {
		rec, err := it.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return err
			}
			return footer.WrapIO("read records", path, err)
		}
		if err := fn(rec); err != nil {
			return footer.WrapIO("extract key", path, err)
		}
	}
}
