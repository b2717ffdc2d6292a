package s3fetch

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const defaultPartSize = 16 << 20

// DownloaderConfig tunes ranged GETs of data files.
type DownloaderConfig struct {
	// Concurrency is the number of parts fetched at once. Zero selects
	// NumCPU clamped to [4, 16].
	Concurrency int
	// PartSize is the byte length of one ranged GET. Zero selects 16 MiB.
	PartSize int64
	// TempDir receives DownloadToTemp files. Empty means os.TempDir().
	TempDir string
}

// DefaultDownloaderConfig sizes the downloader for the local machine.
func DefaultDownloaderConfig() DownloaderConfig {
	return DownloaderConfig{
		Concurrency: min(max(runtime.NumCPU(), 4), 16),
		PartSize:    defaultPartSize,
	}
}

// Downloader copies Parquet objects to local files with parallel ranged
// GETs, since footers and row groups are read by offset.
type Downloader struct {
	mgr *manager.Downloader
	cfg DownloaderConfig
}

// NewDownloader wraps client, usually an *s3.Client. Unset fields of cfg
// take their DefaultDownloaderConfig values.
func NewDownloader(client manager.DownloadAPIClient, cfg DownloaderConfig) *Downloader {
	def := DefaultDownloaderConfig()
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.PartSize <= 0 {
		cfg.PartSize = def.PartSize
	}

	return &Downloader{
		mgr: manager.NewDownloader(client, func(d *manager.Downloader) {
			d.Concurrency = cfg.Concurrency
			d.PartSize = cfg.PartSize
			d.BufferProvider = manager.NewPooledBufferedWriterReadFromProvider(int(cfg.PartSize))
		}),
		cfg: cfg,
	}
}

// DownloadResult reports one finished object copy.
type DownloadResult struct {
	Bucket string
	Key    string
	Bytes  int64
	// Duration covers the transfer only, not temp file creation.
	Duration time.Duration
}

// DownloadToTemp copies s3://bucket/key into a fresh file under TempDir and
// returns its path. Removing the file is up to the caller.
func (d *Downloader) DownloadToTemp(ctx context.Context, bucket, key string) (string, *DownloadResult, error) {
	f, err := os.CreateTemp(d.cfg.TempDir, "lakemeta-*-"+sanitizeFilename(key))
	if err != nil {
		return "", nil, fmt.Errorf("create temp file: %w", err)
	}
	path := f.Name()
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", nil, fmt.Errorf("create temp file: %w", err)
	}

	res, err := d.DownloadToFile(ctx, bucket, key, path)
	if err != nil {
		return "", nil, err
	}
	return path, res, nil
}

// DownloadToFile copies s3://bucket/key to dest, truncating it. On failure
// dest is removed.
func (d *Downloader) DownloadToFile(ctx context.Context, bucket, key, dest string) (*DownloadResult, error) {
	f, err := os.Create(dest)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", dest, err)
	}

	start := time.Now()
	n, err := d.mgr.Download(ctx, f, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	elapsed := time.Since(start)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = cerr
	}
	if err != nil {
		os.Remove(dest)
		return nil, fmt.Errorf("download s3://%s/%s: %w", bucket, key, err)
	}

	return &DownloadResult{Bucket: bucket, Key: key, Bytes: n, Duration: elapsed}, nil
}

// Config returns the effective configuration.
func (d *Downloader) Config() DownloaderConfig { return d.cfg }
