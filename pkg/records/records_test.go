package records

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"

	"github.com/parquet-go/parquet-go"

	"github.com/eunmann/lakemeta/pkg/footer"
)

type hoodieRow struct {
	RecordKey     string  `parquet:"_hoodie_record_key"`
	PartitionPath string  `parquet:"_hoodie_partition_path"`
	Name          string  `parquet:"name"`
	Score         float64 `parquet:"score"`
}

func writeRows(t *testing.T, n int) string {
	t.Helper()
	rows := make([]hoodieRow, n)
	for i := range rows {
		rows[i] = hoodieRow{
			RecordKey:     "k" + string(rune('a'+i%26)),
			PartitionPath: "p",
			Name:          "name",
			Score:         float64(i),
		}
	}
	path := filepath.Join(t.TempDir(), "rows.parquet")
	if err := parquet.WriteFile(path, rows); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	return path
}

func TestParquetOpener_Projection(t *testing.T) {
	path := writeRows(t, 30)
	ctx := context.Background()

	it, err := ParquetOpener{BatchSize: 7}.Open(ctx, path, []string{"_hoodie_record_key", "not_there"})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer it.Close()

	count := 0
	for {
		rec, err := it.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		if len(rec) != 1 {
			t.Fatalf("record %d has fields %v, want only _hoodie_record_key", count, rec)
		}
		if _, ok := rec["_hoodie_record_key"]; !ok {
			t.Fatalf("record %d missing _hoodie_record_key: %v", count, rec)
		}
		count++
	}
	if count != 30 {
		t.Errorf("count = %d, want 30", count)
	}

	if _, err := it.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("Next after EOF = %v, want io.EOF", err)
	}
}

func TestReadAll(t *testing.T) {
	path := writeRows(t, 5)

	recs, err := ReadAll(context.Background(), ParquetOpener{}, path, nil)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(recs) != 5 {
		t.Fatalf("len = %d, want 5", len(recs))
	}
	if len(recs[0]) != 4 {
		t.Errorf("full read returned fields %v", recs[0])
	}
	if got := recs[3]["score"]; got != float64(3) {
		t.Errorf("score = %v (%T), want 3", got, got)
	}
}

func TestParquetOpener_Errors(t *testing.T) {
	ctx := context.Background()

	_, err := ParquetOpener{}.Open(ctx, filepath.Join(t.TempDir(), "missing.parquet"), nil)
	if !errors.Is(err, footer.ErrIO) {
		t.Errorf("missing file: expected footer.ErrIO, got %v", err)
	}

	path := writeRows(t, 1)
	_, err = ParquetOpener{}.Open(ctx, path, []string{"nope"})
	if !errors.Is(err, ErrNoMatchingFields) || !errors.Is(err, footer.ErrIO) {
		t.Errorf("no fields: expected ErrNoMatchingFields as I/O error, got %v", err)
	}
}

func TestParquetOpener_Canceled(t *testing.T) {
	path := writeRows(t, 3)
	ctx, cancel := context.WithCancel(context.Background())

	it, err := ParquetOpener{}.Open(ctx, path, nil)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer it.Close()

	cancel()
	if _, err := it.Next(); !errors.Is(err, context.Canceled) {
		t.Errorf("Next after cancel = %v, want context.Canceled", err)
	}
}

func TestProjection(t *testing.T) {
	schema := parquet.SchemaOf(hoodieRow{})

	if got := Projection(schema, nil); got != schema {
		t.Error("empty field list should return the schema unchanged")
	}

	p := Projection(schema, []string{"name", "_hoodie_partition_path", "missing"})
	fields := p.Fields()
	if len(fields) != 2 {
		t.Fatalf("len(fields) = %d, want 2", len(fields))
	}
	for _, f := range fields {
		if f.Name() != "name" && f.Name() != "_hoodie_partition_path" {
			t.Errorf("unexpected field %q", f.Name())
		}
	}
}
