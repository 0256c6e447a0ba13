// Package artifact persists what a task run produced: the agent's written
// result and the final screenshot of the page.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

var (
	// ErrInvalidName is returned when an artifact name is empty or escapes its root.
	ErrInvalidName = errors.New("invalid artifact name")

	// ErrBucketNotFound is returned when the configured S3 bucket does not exist.
	ErrBucketNotFound = errors.New("artifact bucket not found")
)

// Content types used for run artifacts.
const (
	ContentTypeMarkdown = "text/markdown; charset=utf-8"
	ContentTypePNG      = "image/png"
)

// Sink stores artifacts and returns a URL for reading them back.
type Sink interface {
	Save(ctx context.Context, name, contentType string, data []byte) (string, error)
}

// Config selects a Sink. An empty Type disables artifacts.
type Config struct {
	Type          string
	BaseDir       string
	S3Bucket      string
	S3Region      string
	PresignExpiry time.Duration
}

// New creates the Sink described by cfg. It returns a nil Sink when
// artifacts are disabled.
func New(ctx context.Context, cfg Config) (Sink, error) {
	switch strings.ToLower(cfg.Type) {
	case "":
		return nil, nil

	case "local":
		if cfg.BaseDir == "" {
			return nil, fmt.Errorf("base_dir is required for local artifacts")
		}
		sink, err := NewLocalSink(cfg.BaseDir)
		if err != nil {
			return nil, err
		}
		return sink, nil

	case "s3":
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("s3_bucket is required for S3 artifacts")
		}
		if cfg.S3Region == "" {
			return nil, fmt.Errorf("s3_region is required for S3 artifacts")
		}
		sink, err := NewS3Sink(ctx, cfg.S3Bucket, cfg.S3Region, cfg.PresignExpiry)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize S3 artifacts: %w", err)
		}
		return sink, nil

	default:
		return nil, fmt.Errorf("unsupported artifact type: %s", cfg.Type)
	}
}

// cleanName rejects empty, absolute and parent-relative names and returns a
// slash-separated key.
func cleanName(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("%w: name cannot be empty", ErrInvalidName)
	}
	clean := filepath.Clean(name)
	if filepath.IsAbs(clean) {
		return "", fmt.Errorf("%w: absolute names not allowed", ErrInvalidName)
	}
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) || clean == "." {
		return "", fmt.Errorf("%w: name escapes the artifact root", ErrInvalidName)
	}
	return filepath.ToSlash(clean), nil
}
