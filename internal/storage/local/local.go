// Package local implements the filesystem archive backend. It suits development and
// single-node deployments; multiple server instances need a shared volume.
package local

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/task-manager/task-manager/internal/config"
	"github.com/task-manager/task-manager/internal/storage"
)

func init() {
	storage.Register("local", func(cfg *config.AuditArchiveConfig) (storage.ObjectStore, error) {
		return New(&cfg.Local)
	})
}

// LocalStorage writes objects below a base directory
type LocalStorage struct {
	basePath string
}

// New creates the base directory if needed
func New(cfg *config.LocalStorageConfig) (*LocalStorage, error) {
	if cfg.BasePath == "" {
		return nil, fmt.Errorf("local storage base_path is required")
	}
	if err := os.MkdirAll(cfg.BasePath, 0750); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &LocalStorage{basePath: cfg.BasePath}, nil
}

// Put writes data to a temporary file and renames it into place so readers never see
// a partial object
func (s *LocalStorage) Put(_ context.Context, key string, data []byte, _ string) (*storage.PutResult, error) {
	fullPath, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0750); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	tmp := fullPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		_ = os.Remove(tmp)
		return nil, fmt.Errorf("failed to write file: %w", err)
	}
	if err := os.Rename(tmp, fullPath); err != nil {
		_ = os.Remove(tmp)
		return nil, fmt.Errorf("failed to move file into place: %w", err)
	}

	return &storage.PutResult{
		Key:        key,
		Size:       int64(len(data)),
		Checksum:   storage.Checksum(data),
		UploadedAt: time.Now().UTC(),
	}, nil
}

// resolve maps key below basePath, rejecting keys that escape it
func (s *LocalStorage) resolve(key string) (string, error) {
	fullPath := filepath.Join(s.basePath, filepath.FromSlash(key))
	rel, err := filepath.Rel(s.basePath, fullPath)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return fullPath, nil
}

// Close is a no-op
func (s *LocalStorage) Close() error { return nil }
