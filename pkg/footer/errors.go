package footer

import (
	"errors"
	"fmt"
)

var (
	// ErrIO matches every *IOError.
	ErrIO = errors.New("parquet i/o failure")

	// ErrMetadataNotFound matches every *MetadataNotFoundError.
	ErrMetadataNotFound = errors.New("parquet footer metadata not found")
)

// IOError reports a failure to open, read or decode a Parquet file. It wraps
// the underlying cause and always names the file.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// Is reports whether target is ErrIO.
func (e *IOError) Is(target error) bool { return target == ErrIO }

// WrapIO returns err as an *IOError for path, or nil if err is nil. An error
// that already is an *IOError is returned unchanged.
func WrapIO(op, path string, err error) error {
	if err == nil {
		return nil
	}
	var ioErr *IOError
	if errors.As(err, &ioErr) {
		return err
	}
	return &IOError{Op: op, Path: path, Err: err}
}

// MetadataNotFoundError is returned when a required key/value footer entry
// is missing.
type MetadataNotFoundError struct {
	Key  string
	Path string
}

func (e *MetadataNotFoundError) Error() string {
	return fmt.Sprintf("could not find key %q in parquet footer of %s", e.Key, e.Path)
}

// Is reports whether target is ErrMetadataNotFound.
func (e *MetadataNotFoundError) Is(target error) bool { return target == ErrMetadataNotFound }
