package quota

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileStore writes each record to <Dir>/<key>.json, replacing it atomically.
type FileStore struct {
	Dir string
}

func (f *FileStore) path(key string) string {
	return filepath.Join(f.Dir, key+".json")
}

func (f *FileStore) Load(_ context.Context, key string) ([]byte, error) {
	if strings.TrimSpace(f.Dir) == "" {
		return nil, errors.New("quota: file store dir not configured")
	}
	b, err := os.ReadFile(f.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	return b, err
}

func (f *FileStore) Save(_ context.Context, key string, value []byte) error {
	if strings.TrimSpace(f.Dir) == "" {
		return errors.New("quota: file store dir not configured")
	}
	if err := os.MkdirAll(f.Dir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	tmp := f.path(key) + ".tmp"
	if err := os.WriteFile(tmp, value, 0o644); err != nil {
		return fmt.Errorf("write quota record: %w", err)
	}
	return os.Rename(tmp, f.path(key))
}

func (f *FileStore) Close() error { return nil }
