// Package s3fetch makes data files stored in S3 available as local files.
package s3fetch

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/eunmann/lakemeta/internal/logctx"
)

// ErrNoDownloader is returned when an S3 URI is resolved without a
// configured Downloader.
var ErrNoDownloader = errors.New("s3 access is not configured")

// Resolver turns file arguments into local paths. A nil *Resolver resolves
// local paths only.
type Resolver struct {
	Downloader *Downloader
}

// NewResolver returns a resolver downloading through d.
func NewResolver(d *Downloader) *Resolver {
	return &Resolver{Downloader: d}
}

// Local returns a local path for uri. Local paths are returned unchanged;
// S3 URIs are downloaded to a temporary file. On success cleanup is non-nil
// and must be called once the file is no longer needed.
func (r *Resolver) Local(ctx context.Context, uri string) (path string, cleanup func(), err error) {
	if !IsS3URI(uri) {
		return uri, func() {}, nil
	}

	bucket, key, err := ParseS3URI(uri)
	if err != nil {
		return "", nil, err
	}
	if key == "" {
		return "", nil, fmt.Errorf("invalid S3 URI %q: missing object key", uri)
	}
	if r == nil || r.Downloader == nil {
		return "", nil, fmt.Errorf("resolve %s: %w", uri, ErrNoDownloader)
	}

	path, result, err := r.Downloader.DownloadToTemp(ctx, bucket, key)
	if err != nil {
		return "", nil, err
	}

	logger := logctx.FromContext(ctx)
	logger.Debug().
		Str("uri", uri).
		Str("local", path).
		Int64("bytes", result.Bytes).
		Dur("duration", result.Duration).
		Msg("downloaded object")

	return path, func() { os.Remove(path) }, nil
}
