package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
)

const fileSuffix = ".dat"

// FileCache stores one file per resource under a directory, by default the
// per-user cache directory.
type FileCache struct {
	dir string
}

// DefaultCacheDir returns <user cache dir>/fxratemanager.
func DefaultCacheDir() (string, error) {
	base, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("resolve user cache dir: %w", err)
	}
	return filepath.Join(base, "fxratemanager"), nil
}

// NewFileCache creates the directory if needed. An empty dir selects
// DefaultCacheDir.
func NewFileCache(dir string) (*FileCache, error) {
	if dir == "" {
		d, err := DefaultCacheDir()
		if err != nil {
			return nil, err
		}
		dir = d
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir %s: %w", dir, err)
	}
	return &FileCache{dir: dir}, nil
}

// Dir returns the directory holding the cache files.
func (c *FileCache) Dir() string { return c.dir }

func (c *FileCache) path(id string) string {
	return filepath.Join(c.dir, url.PathEscape(id)+fileSuffix)
}

func (c *FileCache) Close() error { return nil }

func (c *FileCache) Ping(ctx context.Context) error {
	_, err := os.Stat(c.dir)
	return err
}

func (c *FileCache) IsCached(ctx context.Context, id string) bool {
	fi, err := os.Stat(c.path(id))
	return err == nil && fi.Mode().IsRegular()
}

func (c *FileCache) Read(ctx context.Context, id string) ([]byte, error) {
	data, err := os.ReadFile(c.path(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotCached
		}
		return nil, err
	}
	return data, nil
}

func (c *FileCache) Write(ctx context.Context, id string, data []byte) error {
	return writeFileAtomically(c.path(id), bytes.NewReader(data))
}

func (c *FileCache) Clear(ctx context.Context, id string) error {
	err := os.Remove(c.path(id))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func writeFileAtomically(path string, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
