package cache

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errand-route-service/internal/domain"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// FileStore keeps the cache snapshot as JSON lines in a single file.
type FileStore struct {
	Path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{Path: path}
}

// Load reads every decodable line. A missing file is an empty snapshot.
func (f *FileStore) Load(ctx context.Context) ([]domain.CacheEntry, int, error) {
	if f.Path == "" {
		return nil, 0, errors.New("file cache store: path must not be empty")
	}

	data, err := os.ReadFile(f.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("file cache store: read %q: %w", f.Path, err)
	}

	var (
		out     []domain.CacheEntry
		skipped int
	)
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}

		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}

		var e domain.CacheEntry
		if err := json.Unmarshal(line, &e); err != nil {
			skipped++
			continue
		}
		out = append(out, e)
	}
	if err := sc.Err(); err != nil {
		return nil, 0, fmt.Errorf("file cache store: scan %q: %w", f.Path, err)
	}

	return out, skipped, nil
}

// Save writes to a temp file in the target directory and renames it into place.
func (f *FileStore) Save(ctx context.Context, entries []domain.CacheEntry) error {
	if f.Path == "" {
		return errors.New("file cache store: path must not be empty")
	}

	dir := filepath.Dir(f.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("file cache store: create dir %q: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(f.Path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("file cache store: create temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	w := bufio.NewWriter(tmp)
	enc := json.NewEncoder(w)
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			_ = tmp.Close()
			return err
		}
		if err := enc.Encode(e); err != nil {
			_ = tmp.Close()
			return fmt.Errorf("file cache store: encode key=%q: %w", e.Key, err)
		}
	}

	if err := w.Flush(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("file cache store: flush: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("file cache store: sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("file cache store: close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.Path); err != nil {
		return fmt.Errorf("file cache store: rename into %q: %w", f.Path, err)
	}

	return nil
}
