package recordkey

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/eunmann/lakemeta/pkg/records"
)

// Placeholders written into keys for null and empty field values.
const (
	NullPlaceholder          = "__null__"
	EmptyPlaceholder         = "__empty__"
	DefaultPartitionPath     = "__HIVE_DEFAULT_PARTITION__"
	recordKeyFieldSeparator  = ","
	recordKeyValueSeparator  = ":"
	partitionFieldSeparator  = "/"
	hivePartitionKVSeparator = "="
)

var (
	// ErrEmptyRecordKey is returned when every record key field of a record
	// is null or empty.
	ErrEmptyRecordKey = errors.New("record key is null or empty")
	// ErrUnknownKeyGenerator is returned by NewGenerator for an unknown type.
	ErrUnknownKeyGenerator = errors.New("unknown key generator type")
	// ErrInvalidKeyGeneratorConfig is returned when the configured fields do
	// not suit the generator type.
	ErrInvalidKeyGeneratorConfig = errors.New("invalid key generator config")
)

// KeyGenerator derives the record key and partition path of a record. Both
// derivations only look at the fields the generator declares. Field names
// may address nested groups with dots, e.g. "meta.id".
type KeyGenerator interface {
	RecordKeyFields() []string
	PartitionPathFields() []string
	RecordKey(rec records.Record) (string, error)
	PartitionPath(rec records.Record) (string, error)
}

// Generator types accepted in Config.Type.
const (
	TypeMetadata       = "metadata"
	TypeSimple         = "simple"
	TypeComplex        = "complex"
	TypeNonPartitioned = "nonpartitioned"
)

// Config selects and configures a key generator.
type Config struct {
	Type                string   `mapstructure:"type" json:"type"`
	RecordKeyFields     []string `mapstructure:"record_key_fields" json:"record_key_fields"`
	PartitionPathFields []string `mapstructure:"partition_path_fields" json:"partition_path_fields"`
	HiveStyle           bool     `mapstructure:"hive_style" json:"hive_style"`
	URLEncode           bool     `mapstructure:"url_encode" json:"url_encode"`
}

// NewGenerator builds the generator described by cfg.
func NewGenerator(cfg Config) (KeyGenerator, error) {
	opts := partitionOptions{hiveStyle: cfg.HiveStyle, urlEncode: cfg.URLEncode}

	switch normalizeType(cfg.Type) {
	case TypeSimple:
		if len(cfg.RecordKeyFields) != 1 || len(cfg.PartitionPathFields) > 1 {
			return nil, fmt.Errorf("%w: simple generator takes one record key field and at most one partition path field, got %d and %d",
				ErrInvalidKeyGeneratorConfig, len(cfg.RecordKeyFields), len(cfg.PartitionPathFields))
		}
		g := &SimpleKeyGenerator{RecordKeyField: cfg.RecordKeyFields[0], opts: opts}
		if len(cfg.PartitionPathFields) == 1 {
			g.PartitionPathField = cfg.PartitionPathFields[0]
		}
		return g, nil
	case TypeComplex:
		if len(cfg.RecordKeyFields) == 0 {
			return nil, fmt.Errorf("%w: complex generator needs record key fields", ErrInvalidKeyGeneratorConfig)
		}
		return NewComplexKeyGenerator(cfg.RecordKeyFields, cfg.PartitionPathFields, cfg.HiveStyle, cfg.URLEncode), nil
	case TypeNonPartitioned:
		if len(cfg.RecordKeyFields) == 0 {
			return nil, fmt.Errorf("%w: nonpartitioned generator needs record key fields", ErrInvalidKeyGeneratorConfig)
		}
		return &NonPartitionedKeyGenerator{Fields: cfg.RecordKeyFields}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKeyGenerator, cfg.Type)
	}
}

// NewStrategy is NewGenerator that also accepts the metadata type (and an
// empty type), which selects the record's own metadata fields.
func NewStrategy(cfg Config) (Strategy, error) {
	switch normalizeType(cfg.Type) {
	case "", TypeMetadata:
		return MetadataFields(), nil
	}
	gen, err := NewGenerator(cfg)
	if err != nil {
		return Strategy{}, err
	}
	return WithGenerator(gen), nil
}

func normalizeType(t string) string {
	t = strings.ToLower(strings.TrimSpace(t))
	t = strings.TrimSuffix(t, "keygenerator")
	t = strings.ReplaceAll(t, "_", "")
	if t == "nonpartition" {
		return TypeNonPartitioned
	}
	return t
}

type partitionOptions struct {
	hiveStyle bool
	urlEncode bool
}

// SimpleKeyGenerator uses one field as record key and at most one field as
// partition path.
type SimpleKeyGenerator struct {
	RecordKeyField     string
	PartitionPathField string

	opts partitionOptions
}

// NewSimpleKeyGenerator returns a SimpleKeyGenerator. An empty
// partitionField yields an empty partition path.
func NewSimpleKeyGenerator(recordKeyField, partitionField string, hiveStyle, urlEncode bool) *SimpleKeyGenerator {
	return &SimpleKeyGenerator{
		RecordKeyField:     recordKeyField,
		PartitionPathField: partitionField,
		opts:               partitionOptions{hiveStyle: hiveStyle, urlEncode: urlEncode},
	}
}

func (g *SimpleKeyGenerator) RecordKeyFields() []string { return []string{g.RecordKeyField} }

func (g *SimpleKeyGenerator) PartitionPathFields() []string {
	if g.PartitionPathField == "" {
		return nil
	}
	return []string{g.PartitionPathField}
}

func (g *SimpleKeyGenerator) RecordKey(rec records.Record) (string, error) {
	v, ok := FieldString(rec, g.RecordKeyField)
	if !ok || v == "" {
		return "", fmt.Errorf("%w: field %q", ErrEmptyRecordKey, g.RecordKeyField)
	}
	return v, nil
}

func (g *SimpleKeyGenerator) PartitionPath(rec records.Record) (string, error) {
	if g.PartitionPathField == "" {
		return "", nil
	}
	return partitionPath(rec, []string{g.PartitionPathField}, g.opts), nil
}

// ComplexKeyGenerator builds record keys from several fields as
// "f1:v1,f2:v2" and partition paths as "v1/v2", or "f1=v1/f2=v2" in hive
// style.
type ComplexKeyGenerator struct {
	KeyFields       []string
	PartitionFields []string

	opts partitionOptions
}

// NewComplexKeyGenerator returns a ComplexKeyGenerator.
func NewComplexKeyGenerator(keyFields, partitionFields []string, hiveStyle, urlEncode bool) *ComplexKeyGenerator {
	return &ComplexKeyGenerator{
		KeyFields:       keyFields,
		PartitionFields: partitionFields,
		opts:            partitionOptions{hiveStyle: hiveStyle, urlEncode: urlEncode},
	}
}

func (g *ComplexKeyGenerator) RecordKeyFields() []string     { return g.KeyFields }
func (g *ComplexKeyGenerator) PartitionPathFields() []string { return g.PartitionFields }

func (g *ComplexKeyGenerator) RecordKey(rec records.Record) (string, error) {
	return compositeRecordKey(rec, g.KeyFields)
}

func (g *ComplexKeyGenerator) PartitionPath(rec records.Record) (string, error) {
	return partitionPath(rec, g.PartitionFields, g.opts), nil
}

// NonPartitionedKeyGenerator builds record keys like ComplexKeyGenerator and
// puts every record in the empty partition.
type NonPartitionedKeyGenerator struct {
	Fields []string
}

func (g *NonPartitionedKeyGenerator) RecordKeyFields() []string     { return g.Fields }
func (g *NonPartitionedKeyGenerator) PartitionPathFields() []string { return nil }

func (g *NonPartitionedKeyGenerator) RecordKey(rec records.Record) (string, error) {
	return compositeRecordKey(rec, g.Fields)
}

func (g *NonPartitionedKeyGenerator) PartitionPath(records.Record) (string, error) {
	return "", nil
}

func compositeRecordKey(rec records.Record, fields []string) (string, error) {
	var b strings.Builder
	allEmpty := true
	for i, f := range fields {
		if i > 0 {
			b.WriteString(recordKeyFieldSeparator)
		}
		b.WriteString(f)
		b.WriteString(recordKeyValueSeparator)

		v, ok := FieldString(rec, f)
		switch {
		case !ok:
			b.WriteString(NullPlaceholder)
		case v == "":
			b.WriteString(EmptyPlaceholder)
		default:
			b.WriteString(v)
			allEmpty = false
		}
	}
	if allEmpty {
		return "", fmt.Errorf("%w: fields %v", ErrEmptyRecordKey, fields)
	}
	return b.String(), nil
}

func partitionPath(rec records.Record, fields []string, opts partitionOptions) string {
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		v, ok := FieldString(rec, f)
		switch {
		case !ok || v == "":
			v = DefaultPartitionPath
		case opts.urlEncode:
			v = url.PathEscape(v)
		}
		if opts.hiveStyle {
			v = f + hivePartitionKVSeparator + v
		}
		parts = append(parts, v)
	}
	return strings.Join(parts, partitionFieldSeparator)
}

// FieldString renders the value of field in rec. Dotted names walk nested
// groups. The second result is false when the value is null or missing.
func FieldString(rec records.Record, field string) (string, bool) {
	v, ok := lookup(rec, field)
	if !ok || v == nil {
		return "", false
	}

	switch x := v.(type) {
	case string:
		return x, true
	case []byte:
		return string(x), true
	case bool:
		return strconv.FormatBool(x), true
	case int:
		return strconv.Itoa(x), true
	case int32:
		return strconv.FormatInt(int64(x), 10), true
	case int64:
		return strconv.FormatInt(x, 10), true
	case uint32:
		return strconv.FormatUint(uint64(x), 10), true
	case uint64:
		return strconv.FormatUint(x, 10), true
	case float32:
		return strconv.FormatFloat(float64(x), 'g', -1, 32), true
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64), true
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano), true
	case fmt.Stringer:
		return x.String(), true
	default:
		return fmt.Sprint(x), true
	}
}

func lookup(rec records.Record, field string) (any, bool) {
	var cur any = map[string]any(rec)
	for part := range strings.SplitSeq(field, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			if r, isRec := cur.(records.Record); isRec {
				m = r
			} else {
				return nil, false
			}
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// topLevel returns the top-level field a possibly dotted name lives under.
func topLevel(field string) string {
	if i := strings.IndexByte(field, '.'); i >= 0 {
		return field[:i]
	}
	return field
}
