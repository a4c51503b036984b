// Package filewriter writes output files atomically.
package filewriter

import (
	"fmt"
	"os"
	"path/filepath"
)

// FileWriter writes to a temp file next to the target and renames it into
// place on Close. The first write error is kept and later writes become no-ops,
// so callers can check a single error at the end.
type FileWriter struct {
	path string
	f    *os.File
	werr error
}

// New creates the parent directory of path if needed and opens a temp file
// beside it.
func New(path string) (*FileWriter, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create directory %s: %w", dir, err)
	}
	f, err := os.CreateTemp(dir, filepath.Base(path)+".*")
	if err != nil {
		return nil, fmt.Errorf("create temp file for %s: %w", path, err)
	}
	return &FileWriter{path: path, f: f}, nil
}

// Path returns the final destination.
func (fw *FileWriter) Path() string { return fw.path }

// SetPath changes the destination used by Close. The new path should be on the
// same filesystem as the original one.
func (fw *FileWriter) SetPath(path string) { fw.path = path }

// Write implements io.Writer.
func (fw *FileWriter) Write(p []byte) (int, error) {
	if fw.werr != nil {
		return 0, fw.werr
	}
	var n int
	n, fw.werr = fw.f.Write(p)
	return n, fw.werr
}

// Close renames the temp file onto the target path. If a write failed earlier
// that error is returned and the target is left untouched.
func (fw *FileWriter) Close() error {
	defer os.Remove(fw.f.Name()) // no-op after a successful rename
	cerr := fw.f.Close()
	if fw.werr != nil {
		return fw.werr
	}
	if cerr != nil {
		return cerr
	}
	if err := os.Chmod(fw.f.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(fw.f.Name(), fw.path)
}

// Abort discards the temp file without touching the target.
func (fw *FileWriter) Abort() {
	fw.f.Close()
	os.Remove(fw.f.Name())
}

// WriteFile atomically replaces path with data.
func WriteFile(path string, data []byte) error {
	fw, err := New(path)
	if err != nil {
		return err
	}
	if _, err := fw.Write(data); err != nil {
		fw.Abort()
		return err
	}
	return fw.Close()
}
