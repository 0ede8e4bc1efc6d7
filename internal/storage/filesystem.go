// Package storage persists books on the local disk.
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dotcommander/scribe/internal/domain"
)

// ErrNotFound is returned by Load and Delete for keys that do not exist
var ErrNotFound = errors.New("key not found")

var _ domain.Storage = (*FileSystem)(nil)

// FileSystem is a key/value store where each key is a relative file path under baseDir
type FileSystem struct {
	baseDir string
}

func NewFileSystem(baseDir string) *FileSystem {
	return &FileSystem{
		baseDir: filepath.Clean(baseDir),
	}
}

// Dir is the directory keys resolve against
func (fs *FileSystem) Dir() string {
	return fs.baseDir
}

// sanitizePath maps a key to a path inside baseDir, rejecting traversal
func (fs *FileSystem) sanitizePath(key string) (string, error) {
	cleaned := filepath.Clean(key)

	if strings.Contains(cleaned, "..") {
		return "", fmt.Errorf("invalid path: contains parent directory reference")
	}
	if filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("invalid path: absolute paths not allowed")
	}

	fullPath := filepath.Join(fs.baseDir, cleaned)
	if !strings.HasPrefix(fullPath, fs.baseDir+string(filepath.Separator)) && fullPath != fs.baseDir {
		return "", fmt.Errorf("invalid path: outside base directory")
	}
	return fullPath, nil
}

// Save writes data through a temporary file and a rename so readers and the
// watcher never observe a half written document
func (fs *FileSystem) Save(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	fullPath, err := fs.sanitizePath(key)
	if err != nil {
		return fmt.Errorf("saving %q: %w", key, err)
	}

	dir := filepath.Dir(fullPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return fmt.Errorf("setting permissions: %w", err)
	}
	if err := os.Rename(tmpName, fullPath); err != nil {
		return fmt.Errorf("replacing file: %w", err)
	}
	return nil
}

func (fs *FileSystem) Load(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fullPath, err := fs.sanitizePath(key)
	if err != nil {
		return nil, fmt.Errorf("loading %q: %w", key, err)
	}

	data, err := os.ReadFile(fullPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading %q: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	return data, nil
}

// List returns the keys matching a glob pattern, relative to baseDir
func (fs *FileSystem) List(ctx context.Context, pattern string) ([]string, error) {
	cleaned := filepath.Clean(pattern)
	if strings.Contains(cleaned, "..") {
		return nil, fmt.Errorf("invalid pattern: contains parent directory reference")
	}
	if filepath.IsAbs(cleaned) {
		return nil, fmt.Errorf("invalid pattern: absolute paths not allowed")
	}

	matches, err := filepath.Glob(filepath.Join(fs.baseDir, cleaned))
	if err != nil {
		return nil, fmt.Errorf("listing files: %w", err)
	}

	var results []string
	for _, match := range matches {
		if !strings.HasPrefix(match, fs.baseDir+string(filepath.Separator)) {
			continue
		}
		if strings.HasPrefix(filepath.Base(match), ".tmp-") {
			continue
		}
		rel, err := filepath.Rel(fs.baseDir, match)
		if err != nil {
			continue
		}
		results = append(results, filepath.ToSlash(rel))
	}
	return results, nil
}

func (fs *FileSystem) Exists(ctx context.Context, key string) bool {
	fullPath, err := fs.sanitizePath(key)
	if err != nil {
		return false
	}
	_, err = os.Stat(fullPath)
	return err == nil
}

func (fs *FileSystem) Delete(ctx context.Context, key string) error {
	fullPath, err := fs.sanitizePath(key)
	if err != nil {
		return fmt.Errorf("deleting %q: %w", key, err)
	}

	err = os.Remove(fullPath)
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("deleting %q: %w", key, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("deleting file: %w", err)
	}
	return nil
}
