package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// FileBackend keeps the price set as a JSON document. Writes go to a temp
// file in the same directory and are renamed into place.
type FileBackend struct {
	path string
	mu   sync.RWMutex
}

func NewFileBackend(path string) *FileBackend {
	if path == "" {
		path = filepath.Join("data", "metal-prices.json")
	}
	return &FileBackend{path: path}
}

func (f *FileBackend) Path() string { return f.path }

func (f *FileBackend) Read(_ context.Context) (*StoredPriceSet, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	b, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) || (err == nil && len(b) == 0) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", f.path, err)
	}
	var set StoredPriceSet
	if err := json.Unmarshal(b, &set); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", f.path, err)
	}
	return &set, nil
}

func (f *FileBackend) Write(_ context.Context, set *StoredPriceSet) error {
	b, err := json.MarshalIndent(set, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding price set: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name()) // no-op after a successful rename

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("replacing %s: %w", f.path, err)
	}
	return nil
}

func (f *FileBackend) Close() error { return nil }
