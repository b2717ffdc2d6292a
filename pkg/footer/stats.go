package footer

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"math"
	"strconv"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/format"
)

// Statistics holds the decoded row group statistics of one column chunk.
// A null Min or Max means the bound is absent: the chunk holds no non-null
// values, or the writer did not record usable statistics.
type Statistics struct {
	Min       parquet.Value
	Max       parquet.Value
	NullCount int64

	typ parquet.Type
}

// NewStatistics builds statistics for a column of type typ. It is meant for
// callers assembling metadata by hand, such as tests and converters.
func NewStatistics(typ parquet.Type, min, max parquet.Value, nullCount int64) Statistics {
	return Statistics{Min: min, Max: max, NullCount: nullCount, typ: typ}
}

// HasMin reports whether a minimum is recorded.
func (s Statistics) HasMin() bool { return !s.Min.IsNull() }

// HasMax reports whether a maximum is recorded.
func (s Statistics) HasMax() bool { return !s.Max.IsNull() }

// MinAsString renders the minimum according to the column's logical type, or
// returns "" when it is absent.
//
// Rendering DATE columns reuses a process-wide buffer and is not safe for
// concurrent use; see IsDate.
func (s Statistics) MinAsString() string { return render(s.typ, s.Min) }

// MaxAsString is the counterpart of MinAsString for the maximum. The same
// locking rule applies to DATE columns.
func (s Statistics) MaxAsString() string { return render(s.typ, s.Max) }

// IsDate reports whether typ carries the DATE logical annotation. Callers
// rendering statistics of such columns from several goroutines must
// serialize the calls.
func IsDate(typ parquet.Type) bool {
	if typ == nil {
		return false
	}
	lt := typ.LogicalType()
	return lt != nil && lt.Date != nil
}

func decodeStatistics(typ parquet.Type, raw *format.Statistics) Statistics {
	s := Statistics{NullCount: raw.NullCount, typ: typ}
	if typ == nil {
		return s
	}

	minBytes, maxBytes := raw.MinValue, raw.MaxValue
	if minBytes == nil && maxBytes == nil && legacyOrderValid(typ) {
		minBytes, maxBytes = raw.Min, raw.Max
	}

	kind := typ.Kind()
	if minBytes != nil {
		s.Min = decodeValue(kind, minBytes)
	}
	if maxBytes != nil {
		s.Max = decodeValue(kind, maxBytes)
	}
	return s
}

// legacyOrderValid reports whether the deprecated min/max statistics fields
// were written with the same ordering parquet-go compares with. They used
// signed byte-wise ordering, which is wrong for binary and unsigned columns.
func legacyOrderValid(typ parquet.Type) bool {
	switch typ.Kind() {
	case parquet.ByteArray, parquet.FixedLenByteArray, parquet.Int96:
		return false
	}
	lt := typ.LogicalType()
	return lt == nil || lt.Integer == nil || lt.Integer.IsSigned
}

// decodeValue decodes a plain-encoded statistics bound. Anything malformed,
// NaN bounds and INT96 (which has no defined order) decode to the null value.
func decodeValue(kind parquet.Kind, b []byte) parquet.Value {
	switch kind {
	case parquet.Boolean:
		if len(b) < 1 {
			return parquet.Value{}
		}
		return parquet.BooleanValue(b[0] != 0)
	case parquet.Int32:
		if len(b) != 4 {
			return parquet.Value{}
		}
		return parquet.Int32Value(int32(binary.LittleEndian.Uint32(b)))
	case parquet.Int64:
		if len(b) != 8 {
			return parquet.Value{}
		}
		return parquet.Int64Value(int64(binary.LittleEndian.Uint64(b)))
	case parquet.Float:
		if len(b) != 4 {
			return parquet.Value{}
		}
		f := math.Float32frombits(binary.LittleEndian.Uint32(b))
		if math.IsNaN(float64(f)) {
			return parquet.Value{}
		}
		return parquet.FloatValue(f)
	case parquet.Double:
		if len(b) != 8 {
			return parquet.Value{}
		}
		f := math.Float64frombits(binary.LittleEndian.Uint64(b))
		if math.IsNaN(f) {
			return parquet.Value{}
		}
		return parquet.DoubleValue(f)
	case parquet.ByteArray:
		return parquet.ByteArrayValue(bytes.Clone(b))
	case parquet.FixedLenByteArray:
		return parquet.FixedLenByteArrayValue(bytes.Clone(b))
	default:
		return parquet.Value{}
	}
}

// dateScratch backs every DATE rendering to avoid an allocation per chunk.
var dateScratch = make([]byte, 0, len(time.DateOnly))

// render formats v according to the logical type of typ. It returns "" for
// a null value or unknown type. DATE values go through dateScratch, so
// callers must hold a lock when IsDate(typ).
func render(typ parquet.Type, v parquet.Value) string {
	if typ == nil || v.IsNull() {
		return ""
	}

	if lt := typ.LogicalType(); lt != nil {
		switch {
		case lt.Date != nil:
			return renderDate(v.Int32())
		case lt.Timestamp != nil:
			return renderTimestamp(v.Int64(), lt.Timestamp.Unit)
		case lt.UTF8 != nil, lt.Enum != nil, lt.Json != nil:
			return string(v.ByteArray())
		case lt.Integer != nil && !lt.Integer.IsSigned:
			if v.Kind() == parquet.Int32 {
				return strconv.FormatUint(uint64(uint32(v.Int32())), 10)
			}
			return strconv.FormatUint(uint64(v.Int64()), 10)
		}
	}

	switch v.Kind() {
	case parquet.Boolean:
		return strconv.FormatBool(v.Boolean())
	case parquet.Int32:
		return strconv.FormatInt(int64(v.Int32()), 10)
	case parquet.Int64:
		return strconv.FormatInt(v.Int64(), 10)
	case parquet.Float:
		return strconv.FormatFloat(float64(v.Float()), 'g', -1, 32)
	case parquet.Double:
		return strconv.FormatFloat(v.Double(), 'g', -1, 64)
	case parquet.ByteArray, parquet.FixedLenByteArray:
		return "0x" + hex.EncodeToString(v.ByteArray())
	default:
		return v.String()
	}
}

func renderDate(days int32) string {
	t := time.Unix(int64(days)*86400, 0).UTC()
	dateScratch = t.AppendFormat(dateScratch[:0], time.DateOnly)
	return string(dateScratch)
}

func renderTimestamp(v int64, unit format.TimeUnit) string {
	var t time.Time
	switch {
	case unit.Millis != nil:
		t = time.UnixMilli(v)
	case unit.Micros != nil:
		t = time.UnixMicro(v)
	default:
		t = time.Unix(0, v)
	}
	return t.UTC().Format(time.RFC3339Nano)
}
