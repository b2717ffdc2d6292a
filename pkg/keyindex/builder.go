package keyindex

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"slices"

	"github.com/cespare/xxhash/v2"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/relab/bbhash"
)

// Builder collects record keys and writes them as an index file.
type Builder struct {
	keys mapset.Set[string]
}

// NewBuilder creates an empty builder.
func NewBuilder() *Builder {
	return &Builder{keys: mapset.NewThreadUnsafeSet[string]()}
}

// Add adds a key. Duplicates are stored once.
func (b *Builder) Add(key string) {
	b.keys.Add(key)
}

// Len returns the number of distinct keys added.
func (b *Builder) Len() int {
	return b.keys.Cardinality()
}

// Build writes the index to path. The file is written next to path and
// renamed into place, so readers never see a partial index.
func (b *Builder) Build(path string) error {
	keys := b.keys.ToSlice()
	slices.Sort(keys)

	var (
		mphData []byte
		ordered = make([]string, len(keys))
	)
	if len(keys) > 0 {
		hashes := make([]uint64, len(keys))
		for i, k := range keys {
			hashes[i] = hashKey(k)
		}

		// gamma=2.0 trades a little space for faster construction.
		mph, err := bbhash.New(hashes, bbhash.Gamma(2.0))
		if err != nil {
			return fmt.Errorf("build MPHF: %w", err)
		}
		mphData, err = mph.MarshalBinary()
		if err != nil {
			return fmt.Errorf("marshal MPHF: %w", err)
		}

		// bbhash positions are 1-indexed.
		filled := make([]bool, len(keys))
		for i, k := range keys {
			pos := mph.Find(hashes[i])
			if pos == 0 || pos > uint64(len(keys)) || filled[pos-1] {
				return fmt.Errorf("MPHF lookup failed for %q", k)
			}
			ordered[pos-1] = k
			filled[pos-1] = true
		}
	}

	var blobSize uint64
	for _, k := range ordered {
		blobSize += uint64(len(k))
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}
	tmpPath := tmp.Name()
	fail := func(err error) error {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}

	w := bufio.NewWriter(tmp)
	header := EncodeHeader(Header{
		Magic:     MagicNumber,
		Version:   Version,
		Count:     uint64(len(ordered)),
		MPHLength: uint64(len(mphData)),
		BlobSize:  blobSize,
	})
	if _, err := w.Write(header); err != nil {
		return fail(fmt.Errorf("write header: %w", err))
	}
	if _, err := w.Write(mphData); err != nil {
		return fail(fmt.Errorf("write MPHF: %w", err))
	}

	var buf [8]byte
	for _, k := range ordered {
		binary.LittleEndian.PutUint64(buf[:], fingerprint(k))
		if _, err := w.Write(buf[:]); err != nil {
			return fail(fmt.Errorf("write fingerprint: %w", err))
		}
	}

	var off uint64
	for _, k := range ordered {
		binary.LittleEndian.PutUint64(buf[:], off)
		if _, err := w.Write(buf[:]); err != nil {
			return fail(fmt.Errorf("write offset: %w", err))
		}
		off += uint64(len(k))
	}
	binary.LittleEndian.PutUint64(buf[:], off)
	if _, err := w.Write(buf[:]); err != nil {
		return fail(fmt.Errorf("write offset: %w", err))
	}

	for _, k := range ordered {
		if _, err := w.WriteString(k); err != nil {
			return fail(fmt.Errorf("write key blob: %w", err))
		}
	}

	if err := w.Flush(); err != nil {
		return fail(fmt.Errorf("flush index: %w", err))
	}
	if err := tmp.Sync(); err != nil {
		return fail(fmt.Errorf("sync index: %w", err))
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close index: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename index: %w", err)
	}
	return nil
}

// hashKey is the MPHF input hash.
func hashKey(s string) uint64 {
	return xxhash.Sum64String(s)
}

// fingerprint uses a hash independent of hashKey so that a foreign key
// landing on an occupied slot is rejected without touching the blob.
func fingerprint(s string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return h.Sum64()
}
