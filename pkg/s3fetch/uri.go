package s3fetch

import (
	"errors"
	"path/filepath"
	"strings"
)

var uriSchemes = []string{"s3://", "s3a://", "s3n://"}

// IsS3URI reports whether uri names an S3 object rather than a local path.
func IsS3URI(uri string) bool {
	_, ok := trimScheme(uri)
	return ok
}

// ParseS3URI parses an S3 URI (s3://bucket/key) into bucket and key
// components. The Hadoop schemes s3a:// and s3n:// are accepted as well.
func ParseS3URI(uri string) (bucket, key string, err error) {
	path, ok := trimScheme(uri)
	if !ok {
		return "", "", errors.New("invalid S3 URI: must start with s3://")
	}

	parts := strings.SplitN(path, "/", 2)
	if parts[0] == "" {
		return "", "", errors.New("invalid S3 URI: missing bucket name")
	}

	bucket = parts[0]
	if len(parts) == 2 {
		key = parts[1]
	}
	return bucket, key, nil
}

func trimScheme(uri string) (string, bool) {
	for _, s := range uriSchemes {
		if strings.HasPrefix(uri, s) {
			return strings.TrimPrefix(uri, s), true
		}
	}
	return "", false
}

// sanitizeFilename converts an S3 key to a safe local filename.
func sanitizeFilename(key string) string {
	// filepath.Base extracts the final path component, removing all directory separators
	return filepath.Base(key)
}
