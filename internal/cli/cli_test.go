package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/parquet-go/parquet-go"

	"github.com/eunmann/lakemeta/pkg/filescan"
	"github.com/eunmann/lakemeta/pkg/footer"
)

type eventRow struct {
	RecordKey     string `parquet:"_hoodie_record_key"`
	PartitionPath string `parquet:"_hoodie_partition_path"`
	ID            int64  `parquet:"id"`
	Region        string `parquet:"region"`
	Age           *int32 `parquet:"age,optional"`
}

func i32(v int32) *int32 { return &v }

func writeEvents(t *testing.T, dir, name string, groups ...[]eventRow) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	defer f.Close()

	w := parquet.NewGenericWriter[eventRow](f, parquet.KeyValueMetadata("hoodie_min_record_key", "k1"))
	for _, g := range groups {
		if _, err := w.Write(g); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
		if err := w.Flush(); err != nil {
			t.Fatalf("Flush failed: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	return path
}

func sampleFile(t *testing.T, dir string) string {
	return writeEvents(t, dir, "events.parquet",
		[]eventRow{
			{RecordKey: "k1", PartitionPath: "eu", ID: 1, Region: "eu", Age: i32(10)},
			{RecordKey: "k2", PartitionPath: "us", ID: 2, Region: "us", Age: i32(50)},
			{RecordKey: "k3", PartitionPath: "eu", ID: 3, Region: "eu", Age: nil},
		},
		[]eventRow{
			{RecordKey: "k4", PartitionPath: "us", ID: 4, Region: "us", Age: i32(5)},
			{RecordKey: "k2", PartitionPath: "us", ID: 5, Region: "us", Age: i32(40)},
		},
	)
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := run(context.Background(), args, &out)
	return out.String(), err
}

func decodeLines[T any](t *testing.T, out string) []T {
	t.Helper()
	var lines []T
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		var v T
		if err := json.Unmarshal(sc.Bytes(), &v); err != nil {
			t.Fatalf("decode %q: %v", sc.Text(), err)
		}
		lines = append(lines, v)
	}
	return lines
}

func TestRunNoArgs(t *testing.T) {
	err := run(context.Background(), nil, &bytes.Buffer{})
	if err == nil {
		t.Fatal("expected error with no args")
	}
	if !strings.Contains(err.Error(), "usage") {
		t.Errorf("expected usage message, got: %v", err)
	}
}

func TestRunUnknownCommand(t *testing.T) {
	_, err := runCLI(t, "unknown")
	if err == nil {
		t.Fatal("expected error with unknown command")
	}
	if !strings.Contains(err.Error(), "unknown command") {
		t.Errorf("expected 'unknown command' error, got: %v", err)
	}
}

func TestRangesMissingColumns(t *testing.T) {
	_, err := runCLI(t, "ranges", "f.parquet")
	if err == nil || !strings.Contains(err.Error(), "--columns") {
		t.Errorf("expected '--columns' error, got: %v", err)
	}
}

func TestRanges(t *testing.T) {
	path := sampleFile(t, t.TempDir())

	out, err := runCLI(t, "ranges", "--columns", "age,region,missing", path)
	if err != nil {
		t.Fatalf("ranges failed: %v", err)
	}
	lines := decodeLines[rangeLine](t, out)
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2: %s", len(lines), out)
	}

	age := lines[0]
	if age.Column != "age" || age.Min == nil || *age.Min != "5" || age.Max == nil || *age.Max != "50" || age.NullCount != 1 {
		t.Errorf("age line = %+v", age)
	}
	region := lines[1]
	if region.Column != "region" || *region.Min != "eu" || *region.Max != "us" {
		t.Errorf("region line = %+v", region)
	}
}

func TestKeys(t *testing.T) {
	path := sampleFile(t, t.TempDir())

	out, err := runCLI(t, "keys", "--candidates", "k2,k9", path)
	if err != nil {
		t.Fatalf("keys failed: %v", err)
	}
	lines := decodeLines[keysLine](t, out)
	if len(lines) != 1 || strings.Join(lines[0].Keys, ",") != "k2" {
		t.Errorf("got %+v, want [k2]", lines)
	}

	out, err = runCLI(t, "keys", path)
	if err != nil {
		t.Fatalf("keys (all) failed: %v", err)
	}
	lines = decodeLines[keysLine](t, out)
	if len(lines) != 1 || strings.Join(lines[0].Keys, ",") != "k1,k2,k3,k4" {
		t.Errorf("got %+v, want all keys", lines)
	}
}

func TestIndexKeysThenFilter(t *testing.T) {
	dir := t.TempDir()
	path := sampleFile(t, dir)
	other := writeEvents(t, dir, "other.parquet", []eventRow{
		{RecordKey: "k3", PartitionPath: "eu", ID: 9, Region: "eu"},
		{RecordKey: "k7", PartitionPath: "eu", ID: 10, Region: "eu"},
	})
	idx := filepath.Join(dir, "other.idx")

	if _, err := runCLI(t, "index-keys", "--out", idx, other); err != nil {
		t.Fatalf("index-keys failed: %v", err)
	}

	out, err := runCLI(t, "keys", "--candidates-index", idx, path)
	if err != nil {
		t.Fatalf("keys failed: %v", err)
	}
	lines := decodeLines[keysLine](t, out)
	if len(lines) != 1 || strings.Join(lines[0].Keys, ",") != "k3" {
		t.Errorf("got %+v, want [k3]", lines)
	}

	if _, err := runCLI(t, "keys", "--candidates", "a", "--candidates-index", idx, path); err == nil {
		t.Error("expected error for both candidate flags")
	}
}

func TestKeyPairs(t *testing.T) {
	path := sampleFile(t, t.TempDir())

	out, err := runCLI(t, "key-pairs", path)
	if err != nil {
		t.Fatalf("key-pairs failed: %v", err)
	}
	lines := decodeLines[keyPairLine](t, out)
	if len(lines) != 5 {
		t.Fatalf("got %d lines, want 5", len(lines))
	}
	if lines[4].RecordKey != "k2" || lines[4].PartitionPath != "us" {
		t.Errorf("last line = %+v", lines[4])
	}

	out, err = runCLI(t, "key-pairs", "--keygen-type", "complex",
		"--record-key-fields", "id,region", "--partition-path-fields", "region", "--hive-style", path)
	if err != nil {
		t.Fatalf("key-pairs (complex) failed: %v", err)
	}
	lines = decodeLines[keyPairLine](t, out)
	if lines[0].RecordKey != "id:1,region:eu" || lines[0].PartitionPath != "region=eu" {
		t.Errorf("first line = %+v", lines[0])
	}
}

func TestKeyPairs_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := sampleFile(t, dir)
	cfg := filepath.Join(dir, "lakemeta.yaml")
	yaml := "keygen:\n  type: simple\n  record_key_fields: [id]\n  partition_path_fields: [region]\nconcurrency: 2\n"
	if err := os.WriteFile(cfg, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := runCLI(t, "--config", cfg, "key-pairs", path)
	if err != nil {
		t.Fatalf("key-pairs failed: %v", err)
	}
	lines := decodeLines[keyPairLine](t, out)
	if len(lines) != 5 || lines[1].RecordKey != "2" || lines[1].PartitionPath != "us" {
		t.Errorf("got %+v", lines)
	}
}

func TestKeyPairs_Env(t *testing.T) {
	path := sampleFile(t, t.TempDir())
	t.Setenv("LAKEMETA_KEYGEN_TYPE", "nonpartitioned")
	t.Setenv("LAKEMETA_KEYGEN_RECORD_KEY_FIELDS", "id")

	out, err := runCLI(t, "key-pairs", path)
	if err != nil {
		t.Fatalf("key-pairs failed: %v", err)
	}
	lines := decodeLines[keyPairLine](t, out)
	if len(lines) != 5 || lines[0].RecordKey != "id:1" || lines[0].PartitionPath != "" {
		t.Errorf("got %+v", lines)
	}
}

func TestKeyPairs_UnknownGenerator(t *testing.T) {
	path := sampleFile(t, t.TempDir())
	_, err := runCLI(t, "key-pairs", "--keygen-type", "custom", path)
	if err == nil || !strings.Contains(err.Error(), "unknown key generator") {
		t.Errorf("expected unknown key generator error, got %v", err)
	}
}

func TestFooter(t *testing.T) {
	path := sampleFile(t, t.TempDir())

	out, err := runCLI(t, "footer", "--names", "hoodie_min_record_key", path)
	if err != nil {
		t.Fatalf("footer failed: %v", err)
	}
	lines := decodeLines[footerLine](t, out)
	if len(lines) != 1 || lines[0].Values["hoodie_min_record_key"] != "k1" {
		t.Errorf("got %+v", lines)
	}

	_, err = runCLI(t, "footer", "--required", "--names", "hoodie_bloom_filter", path)
	if !errors.Is(err, footer.ErrMetadataNotFound) {
		t.Errorf("expected ErrMetadataNotFound, got %v", err)
	}
}

func TestRowCount_KeepGoing(t *testing.T) {
	dir := t.TempDir()
	path := sampleFile(t, dir)
	missing := filepath.Join(dir, "missing.parquet")

	if _, err := runCLI(t, "rowcount", missing, path); !errors.Is(err, footer.ErrIO) {
		t.Fatalf("expected footer.ErrIO without --keep-going, got %v", err)
	}

	out, err := runCLI(t, "rowcount", "--keep-going", missing, path)
	if !errors.Is(err, ErrFilesSkipped) {
		t.Fatalf("expected ErrFilesSkipped with --keep-going, got %v", err)
	}
	if !strings.Contains(err.Error(), "1 file(s)") {
		t.Errorf("error should count skipped files: %v", err)
	}
	lines := decodeLines[filescan.FileRowCount](t, out)
	if len(lines) != 1 || lines[0].Path != path || lines[0].Rows != 5 {
		t.Errorf("got %+v", lines)
	}
}

func TestRowCount_KeepGoingAllReadable(t *testing.T) {
	path := sampleFile(t, t.TempDir())

	out, err := runCLI(t, "rowcount", "--keep-going", path)
	if err != nil {
		t.Fatalf("rowcount --keep-going failed: %v", err)
	}
	if lines := decodeLines[filescan.FileRowCount](t, out); len(lines) != 1 {
		t.Errorf("got %+v", lines)
	}
}

func TestSchema(t *testing.T) {
	path := sampleFile(t, t.TempDir())

	out, err := runCLI(t, "schema", path)
	if err != nil {
		t.Fatalf("schema failed: %v", err)
	}
	lines := decodeLines[columnLine](t, out)
	if len(lines) != 5 {
		t.Fatalf("got %d columns, want 5", len(lines))
	}
	found := false
	for _, l := range lines {
		if l.Column == "age" && l.Type != "" {
			found = true
		}
	}
	if !found {
		t.Errorf("age column missing from %+v", lines)
	}
}
