package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/starford/rplanner/internal/apperr"
)

// DefaultPatterns matches the image formats a note can embed.
var DefaultPatterns = []string{"*.{png,jpg,jpeg,gif,webp,svg}"}

// FS implements Provider backed by a flat local directory.
type FS struct {
	root     string // absolute path to the image directory
	patterns []string
}

// NewFS creates a new FS provider rooted at dir, creating it when missing.
// An empty patterns list falls back to DefaultPatterns.
func NewFS(dir string, patterns []string) (*FS, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: root is not a directory: %s", abs)
	}
	if len(patterns) == 0 {
		patterns = DefaultPatterns
	}
	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("storage: invalid pattern %q", p)
		}
	}
	return &FS{root: abs, patterns: patterns}, nil
}

// Root returns the absolute image directory.
func (f *FS) Root() string { return f.root }

// safePath resolves name inside the image directory. The resolved parent
// must be the image directory itself, so separators and ".." are rejected.
func (f *FS) safePath(name string) (string, error) {
	if name == "" || name == "." || name == ".." {
		return "", fmt.Errorf("storage: invalid image name %q: %w", name, apperr.ErrInvalidOperation)
	}
	if filepath.IsAbs(name) {
		return "", fmt.Errorf("storage: absolute paths not allowed: %s: %w", name, apperr.ErrInvalidOperation)
	}
	abs, err := filepath.Abs(filepath.Join(f.root, name))
	if err != nil {
		return "", fmt.Errorf("storage: resolve path: %w", err)
	}
	if filepath.Dir(abs) != f.root {
		return "", fmt.Errorf("storage: path escapes image directory: %s: %w", name, apperr.ErrInvalidOperation)
	}
	return abs, nil
}

// Matches reports whether name matches one of the configured patterns.
func (f *FS) Matches(name string) bool {
	for _, p := range f.patterns {
		if ok, _ := doublestar.Match(p, name); ok {
			return true
		}
	}
	return false
}

// List returns the sorted names of matching regular files in the directory.
func (f *FS) List() ([]string, error) {
	entries, err := os.ReadDir(f.root)
	if err != nil {
		return nil, fmt.Errorf("storage: list: %w", err)
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() || !f.Matches(e.Name()) {
			continue
		}
		out = append(out, e.Name())
	}
	sort.Strings(out)
	return out, nil
}

// Read returns the raw bytes of an image.
func (f *FS) Read(name string) ([]byte, error) {
	abs, err := f.safePath(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("storage: image %s: %w", name, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", name, err)
	}
	return data, nil
}

// Exists reports whether the named image is a regular file in the directory.
func (f *FS) Exists(name string) (bool, error) {
	abs, err := f.safePath(name)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(abs)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("storage: stat %s: %w", name, err)
	}
	return info.Mode().IsRegular(), nil
}

// Path returns the absolute path of name after the traversal check.
func (f *FS) Path(name string) (string, error) {
	return f.safePath(name)
}

// Write atomically writes content: tmp file → fsync → rename.
func (f *FS) Write(name string, content []byte) error {
	abs, err := f.safePath(name)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(f.root, ".rplanner-tmp-*")
	if err != nil {
		return fmt.Errorf("storage: create temp: %w", err)
	}
	tmpName := tmp.Name()

	// Clean up on any failure path.
	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("storage: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("storage: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("storage: close temp: %w", err)
	}
	if err := os.Rename(tmpName, abs); err != nil {
		return fmt.Errorf("storage: rename: %w", err)
	}
	success = true
	return nil
}

// Verify *FS satisfies Provider at compile time.
var _ Provider = (*FS)(nil)
