package artifacts

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// LocalStore writes files below a directory.
type LocalStore struct {
	dir string
	now func() time.Time
}

func NewLocalStore(dir string) *LocalStore {
	return &LocalStore{dir: dir, now: time.Now}
}

func (s *LocalStore) Save(_ context.Context, name string, data []byte) (string, error) {
	target := filepath.Join(s.dir, filepath.FromSlash(objectKey(s.now(), name)))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("creating artifact directory: %w", err)
	}
	if err := os.WriteFile(target, data, 0o644); err != nil {
		return "", fmt.Errorf("writing artifact %s: %w", target, err)
	}
	return target, nil
}
