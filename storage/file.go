package storage

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FileStore exposes the local filesystem through the Store contract.
// Directory existence is observed the same way as on object storage: a
// prefix "exists" only when at least one file lives under it.
type FileStore struct{}

// NewFileStore creates a local filesystem store
func NewFileStore() *FileStore {
	return &FileStore{}
}

// List walks the directory named by prefix and returns up to limit file
// paths. A prefix that is not a directory yields an empty slice, which
// is how single files and missing locations look on object storage.
func (s *FileStore) List(ctx context.Context, prefix string, limit int) ([]string, error) {
	dir := strings.TrimSuffix(prefix, "/")

	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("probing %s: %w", prefix, err)
	}
	if !info.IsDir() {
		return nil, nil
	}

	var keys []string
	err = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			return nil
		}
		keys = append(keys, filepath.ToSlash(p))
		if limit > 0 && len(keys) >= limit {
			return filepath.SkipAll
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", prefix, err)
	}
	return keys, nil
}

// Get reads the file at key
func (s *FileStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(key)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
		}
		return nil, fmt.Errorf("reading %s: %w", key, err)
	}
	return data, nil
}
