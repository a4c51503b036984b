// Package cache persists downloaded source data under a local data directory
// so later runs can skip the network.
package cache

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/couchcryptid/covid-map-etl/internal/filewriter"
)

// Store reads and writes named files in one directory.
type Store struct {
	dir string
}

// NewStore returns a Store rooted at dir. The directory is created on first write.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the root directory.
func (s *Store) Dir() string { return s.dir }

// Path returns the full path of the named entry.
func (s *Store) Path(name string) string {
	return filepath.Join(s.dir, name)
}

// Exists reports whether the named entry is present.
func (s *Store) Exists(name string) bool {
	info, err := os.Stat(s.Path(name))
	return err == nil && info.Mode().IsRegular()
}

// Read returns the named entry. A missing entry wraps fs.ErrNotExist.
func (s *Store) Read(name string) ([]byte, error) {
	data, err := os.ReadFile(s.Path(name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("cache entry %s: %w", name, fs.ErrNotExist)
		}
		return nil, fmt.Errorf("read cache entry %s: %w", name, err)
	}
	return data, nil
}

// Write atomically replaces the named entry.
func (s *Store) Write(name string, data []byte) error {
	if err := filewriter.WriteFile(s.Path(name), data); err != nil {
		return fmt.Errorf("write cache entry %s: %w", name, err)
	}
	return nil
}
