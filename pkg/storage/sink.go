package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Sink receives export streams.
type Sink interface {
	// PutObject stores the content under key and returns its location.
	PutObject(ctx context.Context, key string, content io.Reader, contentType string) (string, error)
}

// FileSink writes exports below a root directory.
type FileSink struct {
	rootDir string
}

// NewFileSink creates the root directory when missing.
func NewFileSink(rootDir string) (*FileSink, error) {
	if err := os.MkdirAll(rootDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create export directory: %w", err)
	}
	return &FileSink{rootDir: rootDir}, nil
}

// PutObject writes to a temporary file and renames it into place so readers
// never observe a partial export.
func (s *FileSink) PutObject(ctx context.Context, key string, content io.Reader, contentType string) (string, error) {
	// Rooting the key before cleaning keeps ".." segments inside rootDir.
	clean := filepath.Clean("/" + key)
	if clean == "/" || strings.HasSuffix(key, "/") {
		return "", fmt.Errorf("invalid export key %q", key)
	}
	path := filepath.Join(s.rootDir, clean)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create export directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".export-*")
	if err != nil {
		return "", fmt.Errorf("failed to create export file: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	if _, err := io.Copy(tmp, &ctxReader{ctx: ctx, r: content}); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to write export: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to close export: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("failed to publish export: %w", err)
	}
	return "file://" + path, nil
}

// ctxReader stops a copy once ctx is cancelled.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
