package artifact

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
)

// LocalSink writes artifacts under a base directory.
type LocalSink struct {
	baseDir string
}

// NewLocalSink creates a sink rooted at baseDir, creating it if needed.
func NewLocalSink(baseDir string) (*LocalSink, error) {
	baseDir = filepath.Clean(baseDir)
	if baseDir == "" || baseDir == "." {
		return nil, fmt.Errorf("%w: base directory cannot be empty", ErrInvalidName)
	}

	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve base directory: %w", err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &LocalSink{baseDir: abs}, nil
}

// Save writes data to name and returns its file:// URL. contentType is not
// recorded on disk.
func (s *LocalSink) Save(ctx context.Context, name, contentType string, data []byte) (string, error) {
	key, err := cleanName(name)
	if err != nil {
		return "", err
	}
	fullPath := filepath.Join(s.baseDir, filepath.FromSlash(key))

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(fullPath, data, 0644); err != nil {
		os.Remove(fullPath)
		return "", fmt.Errorf("failed to write artifact: %w", err)
	}

	u := url.URL{Scheme: "file", Path: filepath.ToSlash(fullPath)}
	return u.String(), nil
}
