package academicapi

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/henny-hen/DASOS-backend/internal/metrics"
)

// PayloadCache keeps raw payloads so reruns do not hit the API. The redis
// package's Client satisfies it as well.
type PayloadCache interface {
	Get(ctx context.Context, academicYear, semester, name string) ([]byte, bool, error)
	Set(ctx context.Context, academicYear, semester, name string, payload []byte) error
}

// FileCache lays payloads out as {dir}/{year}_{semester}/{name}.json.
type FileCache struct {
	dir string
}

func NewFileCache(dir string) *FileCache {
	return &FileCache{dir: dir}
}

func (c *FileCache) path(academicYear, semester, name string) string {
	return filepath.Join(c.dir, academicYear+"_"+semester, name+".json")
}

func (c *FileCache) Get(_ context.Context, academicYear, semester, name string) ([]byte, bool, error) {
	data, err := os.ReadFile(c.path(academicYear, semester, name))
	if errors.Is(err, fs.ErrNotExist) {
		metrics.CacheMisses.WithLabelValues("file").Inc()
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read cached payload: %w", err)
	}
	metrics.CacheHits.WithLabelValues("file").Inc()
	return data, true, nil
}

func (c *FileCache) Set(_ context.Context, academicYear, semester, name string, payload []byte) error {
	path := c.path(academicYear, semester, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create cache dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".payload-*")
	if err != nil {
		return fmt.Errorf("failed to create cache file: %w", err)
	}
	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to store cache file: %w", err)
	}
	return nil
}
