// Package keyindex persists the record keys of a data file as a compact,
// memory-mapped membership index built on a minimal perfect hash function.
//
// File layout (little endian):
//
//	header        magic u32 | version u32 | count u64 | mph length u64 | blob length u64
//	mph           serialized bbhash function
//	fingerprints  count x u64, in hash order
//	offsets       (count+1) x u64 into the key blob
//	blob          key bytes, in hash order
package keyindex

import (
	"encoding/binary"
	"errors"
)

const (
	// MagicNumber identifies key index files.
	MagicNumber uint32 = 0x4c4b4b49 // "LKKI"
	// Version is the current format version.
	Version uint32 = 1
)

var (
	// ErrInvalidHeader indicates an invalid or truncated file.
	ErrInvalidHeader = errors.New("invalid key index header")
	// ErrMagicMismatch indicates the file is not a key index.
	ErrMagicMismatch = errors.New("magic number mismatch")
	// ErrVersionMismatch indicates an unsupported format version.
	ErrVersionMismatch = errors.New("unsupported key index version")
)

// Header is the fixed-size prefix of an index file.
type Header struct {
	Magic     uint32
	Version   uint32
	Count     uint64
	MPHLength uint64
	BlobSize  uint64
}

// HeaderSize is the size of the header in bytes.
const HeaderSize = 4 + 4 + 8 + 8 + 8

// EncodeHeader writes a header to a byte slice.
func EncodeHeader(h Header) []byte {
	buf := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], h.Magic)
	binary.LittleEndian.PutUint32(buf[4:8], h.Version)
	binary.LittleEndian.PutUint64(buf[8:16], h.Count)
	binary.LittleEndian.PutUint64(buf[16:24], h.MPHLength)
	binary.LittleEndian.PutUint64(buf[24:32], h.BlobSize)
	return buf
}

// DecodeHeader reads a header from a byte slice.
func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, ErrInvalidHeader
	}
	return Header{
		Magic:     binary.LittleEndian.Uint32(buf[0:4]),
		Version:   binary.LittleEndian.Uint32(buf[4:8]),
		Count:     binary.LittleEndian.Uint64(buf[8:16]),
		MPHLength: binary.LittleEndian.Uint64(buf[16:24]),
		BlobSize:  binary.LittleEndian.Uint64(buf[24:32]),
	}, nil
}

// fits reports whether h describes a file of exactly size bytes. Each
// section is checked against the bytes left so corrupt counts cannot
// overflow the sum.
func (h Header) fits(size uint64) bool {
	if size < HeaderSize {
		return false
	}
	left := size - HeaderSize
	if h.MPHLength > left {
		return false
	}
	left -= h.MPHLength
	if left < 8 {
		return false
	}
	left -= 8
	if h.Count > left/16 {
		return false
	}
	left -= h.Count * 16
	return h.BlobSize == left
}
