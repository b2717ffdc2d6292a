package s3fetch

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// fakeS3 serves objects from memory and honors byte range requests.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	calls   int
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	data, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{Message: aws.String("no such key")}
	}

	start, end := 0, len(data)-1
	if r := aws.ToString(in.Range); r != "" {
		if _, err := fmt.Sscanf(r, "bytes=%d-%d", &start, &end); err != nil {
			return nil, fmt.Errorf("bad range %q: %w", r, err)
		}
		end = min(end, len(data)-1)
	}
	body := data[start : end+1]

	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: aws.Int64(int64(len(body))),
		ContentRange:  aws.String(fmt.Sprintf("bytes %d-%d/%d", start, end, len(data))),
	}, nil
}

func TestDefaultDownloaderConfig(t *testing.T) {
	cfg := DefaultDownloaderConfig()

	if cfg.Concurrency < 4 {
		t.Errorf("Concurrency = %d, want >= 4", cfg.Concurrency)
	}
	if cfg.Concurrency > 16 {
		t.Errorf("Concurrency = %d, want <= 16", cfg.Concurrency)
	}
	if cfg.PartSize != 16*1024*1024 {
		t.Errorf("PartSize = %d, want 16MB", cfg.PartSize)
	}
}

func TestDownloaderConfig_Defaults(t *testing.T) {
	d := NewDownloader(&fakeS3{}, DownloaderConfig{})
	cfg := d.Config()
	if cfg.Concurrency != DefaultDownloaderConfig().Concurrency {
		t.Errorf("Concurrency = %d, want default", cfg.Concurrency)
	}
	if cfg.PartSize != DefaultDownloaderConfig().PartSize {
		t.Errorf("PartSize = %d, want default", cfg.PartSize)
	}

	d = NewDownloader(&fakeS3{}, DownloaderConfig{Concurrency: 2, PartSize: 8 * 1024 * 1024})
	if d.Config().Concurrency != 2 || d.Config().PartSize != 8*1024*1024 {
		t.Errorf("custom config not kept: %+v", d.Config())
	}
}

func TestDownloadToFile(t *testing.T) {
	data := make([]byte, 256*1024)
	if _, err := rand.Read(data); err != nil {
		t.Fatalf("generate random data: %v", err)
	}
	client := &fakeS3{objects: map[string][]byte{"bucket/data/part-0.parquet": data}}
	d := NewDownloader(client, DownloaderConfig{Concurrency: 2})

	dest := filepath.Join(t.TempDir(), "out.parquet")
	result, err := d.DownloadToFile(context.Background(), "bucket", "data/part-0.parquet", dest)
	if err != nil {
		t.Fatalf("DownloadToFile failed: %v", err)
	}
	if result.Bytes != int64(len(data)) {
		t.Errorf("Bytes = %d, want %d", result.Bytes, len(data))
	}
	if result.Bucket != "bucket" || result.Key != "data/part-0.parquet" {
		t.Errorf("result names s3://%s/%s", result.Bucket, result.Key)
	}

	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("read downloaded file: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Error("downloaded content differs")
	}
}

func TestDownloadToFile_Missing(t *testing.T) {
	d := NewDownloader(&fakeS3{objects: map[string][]byte{}}, DownloaderConfig{})
	dest := filepath.Join(t.TempDir(), "out.parquet")

	_, err := d.DownloadToFile(context.Background(), "bucket", "nope", dest)
	if err == nil {
		t.Fatal("expected error for missing object")
	}
	if _, statErr := os.Stat(dest); !errors.Is(statErr, os.ErrNotExist) {
		t.Errorf("partial file left behind: %v", statErr)
	}
}

// TestDownloaderIntegration requires AWS credentials and is skipped in CI.
// To run: go test -run TestDownloaderIntegration -v.
func TestDownloaderIntegration(t *testing.T) {
	if os.Getenv("AWS_INTEGRATION_TEST") == "" {
		t.Skip("skipping integration test; set AWS_INTEGRATION_TEST=1 to run")
	}

	ctx := context.Background()
	client, err := NewClient(ctx, ClientOptions{})
	if err != nil {
		t.Fatalf("create client: %v", err)
	}

	bucket := os.Getenv("AWS_TEST_BUCKET")
	key := os.Getenv("AWS_TEST_KEY")
	if bucket == "" || key == "" {
		t.Skip("AWS_TEST_BUCKET and AWS_TEST_KEY required for integration test")
	}

	path, result, err := client.NewDownloader(DefaultDownloaderConfig()).DownloadToTemp(ctx, bucket, key)
	if err != nil {
		t.Fatalf("download object: %v", err)
	}
	defer os.Remove(path)

	t.Logf("Downloaded %d bytes in %v", result.Bytes, result.Duration)

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat download: %v", err)
	}
	if info.Size() != result.Bytes {
		t.Errorf("file has %d bytes, but download reported %d", info.Size(), result.Bytes)
	}
}
