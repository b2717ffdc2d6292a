package keyindex

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/relab/bbhash"
)

// Index is an open key index. It is safe for concurrent reads; Close must
// only be called once all reads have finished.
type Index struct {
	mmap   *mmapFile
	mph    *bbhash.BBHash2
	count  uint64
	fps    []byte
	offs   []byte
	blob   []byte
	source string
}

// Open memory-maps the index file at path.
func Open(path string) (*Index, error) {
	m, err := openMmap(path)
	if err != nil {
		return nil, fmt.Errorf("open key index %s: %w", path, err)
	}

	idx, err := parse(m.data)
	if err != nil {
		m.Close()
		return nil, fmt.Errorf("open key index %s: %w", path, err)
	}
	idx.mmap = m
	idx.source = path
	return idx, nil
}

func parse(data []byte) (*Index, error) {
	header, err := DecodeHeader(data)
	if err != nil {
		return nil, err
	}
	if header.Magic != MagicNumber {
		return nil, ErrMagicMismatch
	}
	if header.Version != Version {
		return nil, ErrVersionMismatch
	}
	if !header.fits(uint64(len(data))) {
		return nil, fmt.Errorf("%w: count %d, mph %d, blob %d do not fit %d bytes",
			ErrInvalidHeader, header.Count, header.MPHLength, header.BlobSize, len(data))
	}

	idx := &Index{count: header.Count}
	rest := data[HeaderSize:]

	mphData := rest[:header.MPHLength]
	rest = rest[header.MPHLength:]
	if header.Count > 0 {
		idx.mph = &bbhash.BBHash2{}
		if err := idx.mph.UnmarshalBinary(bytes.Clone(mphData)); err != nil {
			return nil, fmt.Errorf("unmarshal MPHF: %w", err)
		}
	}

	idx.fps = rest[:header.Count*8]
	rest = rest[header.Count*8:]
	idx.offs = rest[:(header.Count+1)*8]
	idx.blob = rest[(header.Count+1)*8:]
	return idx, nil
}

// Len returns the number of keys.
func (idx *Index) Len() int { return int(idx.count) }

// Path returns the file the index was opened from.
func (idx *Index) Path() string { return idx.source }

// Contains reports whether key was added to the index. It never reports
// false positives.
func (idx *Index) Contains(key string) bool {
	if idx.count == 0 {
		return false
	}

	pos := idx.mph.Find(hashKey(key))
	if pos == 0 || pos > idx.count {
		return false
	}
	pos--

	if binary.LittleEndian.Uint64(idx.fps[pos*8:]) != fingerprint(key) {
		return false
	}
	return idx.key(pos) == key
}

// Key returns the key stored at slot i, in hash order.
func (idx *Index) Key(i int) string {
	if i < 0 || uint64(i) >= idx.count {
		return ""
	}
	return idx.key(uint64(i))
}

func (idx *Index) key(pos uint64) string {
	start := binary.LittleEndian.Uint64(idx.offs[pos*8:])
	end := binary.LittleEndian.Uint64(idx.offs[(pos+1)*8:])
	if start > end || end > uint64(len(idx.blob)) {
		return ""
	}
	return string(idx.blob[start:end])
}

// Close unmaps the index.
func (idx *Index) Close() error {
	if idx.mmap == nil {
		return nil
	}
	err := idx.mmap.Close()
	idx.mmap = nil
	return err
}
