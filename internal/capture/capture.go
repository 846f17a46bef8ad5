// Package capture quarantines datagrams that failed to decode, so they can
// be inspected offline with `msgwire inspect --quarantine`.
//
// Captured bytes are snappy-compressed (block format) before storage.
package capture

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang/snappy"
	"github.com/google/uuid"
)

// Extension is appended to every stored key.
const Extension = ".bin.sz"

// MaxDecodedSize bounds Decode, so a hostile capture cannot force a large
// allocation.
const MaxDecodedSize = 16 << 20

// ErrTooLarge is returned by Decode when the decoded size exceeds MaxDecodedSize.
var ErrTooLarge = errors.New("capture: decoded size exceeds limit")

// Store keeps quarantined datagrams.
type Store interface {
	// Put stores data under key. Implementations add Extension.
	Put(ctx context.Context, key string, data []byte) error

	// Name identifies the store in logs and metrics.
	Name() string
}

// Key builds a unique, time-ordered key for a datagram from connID.
func Key(connID string, now time.Time) string {
	return fmt.Sprintf("%s-%s-%s",
		now.UTC().Format("20060102T150405.000000000Z"),
		connID,
		uuid.NewString())
}

// Encode compresses a datagram for storage.
func Encode(data []byte) []byte {
	return snappy.Encode(nil, data)
}

// Decode reverses Encode.
func Decode(data []byte) ([]byte, error) {
	n, err := snappy.DecodedLen(data)
	if err != nil {
		return nil, fmt.Errorf("capture: decode: %w", err)
	}
	if n > MaxDecodedSize {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooLarge, n, MaxDecodedSize)
	}
	out, err := snappy.Decode(nil, data)
	if err != nil {
		return nil, fmt.Errorf("capture: decode: %w", err)
	}
	return out, nil
}

// ReadFile reads a file written by DirStore and returns the original bytes.
// Files without Extension are returned as is.
func ReadFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(path, Extension) {
		return data, nil
	}
	return Decode(data)
}

// DirStore writes each datagram to its own file in a directory.
type DirStore struct {
	dir string
}

// NewDirStore creates dir if needed and returns a store writing into it.
func NewDirStore(dir string) (*DirStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("capture: create %s: %w", dir, err)
	}
	return &DirStore{dir: dir}, nil
}

// Name implements Store.
func (s *DirStore) Name() string { return "dir" }

// Dir returns the directory the store writes into.
func (s *DirStore) Dir() string { return s.dir }

// Put implements Store. The file is written under a temporary name and
// renamed, so readers never see a partial capture.
func (s *DirStore) Put(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.ContainsAny(key, `/\`) {
		return fmt.Errorf("capture: invalid key %q", key)
	}

	final := filepath.Join(s.dir, key+Extension)
	tmp, err := os.CreateTemp(s.dir, ".capture-*")
	if err != nil {
		return fmt.Errorf("capture: %w", err)
	}
	if _, err := tmp.Write(Encode(data)); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("capture: write %s: %w", final, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("capture: write %s: %w", final, err)
	}
	if err := os.Rename(tmp.Name(), final); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("capture: rename %s: %w", final, err)
	}
	return nil
}
