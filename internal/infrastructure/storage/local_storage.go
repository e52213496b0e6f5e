package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"imagevault/internal/config"
	"imagevault/internal/domain/image"
)

// LocalStorage stores blobs on the local filesystem. Intended for
// development and single-node deployments.
type LocalStorage struct {
	basePath string
	log      zerolog.Logger
}

// NewLocalStorage creates a filesystem storage backend rooted at the
// configured path.
func NewLocalStorage(cfg *config.Config, log zerolog.Logger) (*LocalStorage, error) {
	logger := log.With().Str("component", "local-storage").Logger()

	basePath := strings.TrimSpace(cfg.LocalStoragePath)
	if basePath == "" {
		return nil, fmt.Errorf("IMAGE_LOCAL_STORAGE_PATH is required for the local storage backend")
	}

	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("create local storage directory: %w", err)
	}

	logger.Info().Str("path", basePath).Msg("local storage initialized")

	return &LocalStorage{
		basePath: basePath,
		log:      logger,
	}, nil
}

func (l *LocalStorage) fullPath(key string) string {
	return filepath.Join(l.basePath, filepath.FromSlash(key))
}

// Put writes the blob to disk, creating parent directories as needed.
func (l *LocalStorage) Put(ctx context.Context, key string, data []byte, contentType string) error {
	fullPath := l.fullPath(key)

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	if err := os.WriteFile(fullPath, data, 0644); err != nil {
		return fmt.Errorf("write file: %w", err)
	}

	l.log.Debug().
		Str("key", key).
		Int("bytes", len(data)).
		Msg("blob written to local storage")

	return nil
}

// Delete removes the blob file. A missing file reports ErrBlobNotFound so
// callers can tell confirmed-absent from a failed delete.
func (l *LocalStorage) Delete(ctx context.Context, key string) error {
	err := os.Remove(l.fullPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("delete %s: %w", key, image.ErrBlobNotFound)
		}
		return fmt.Errorf("delete file: %w", err)
	}

	l.log.Debug().Str("key", key).Msg("blob removed from local storage")
	return nil
}

// Health checks that the storage directory is writable.
func (l *LocalStorage) Health(ctx context.Context) error {
	testFile := filepath.Join(l.basePath, ".health_check")
	if err := os.WriteFile(testFile, []byte("ok"), 0644); err != nil {
		return fmt.Errorf("storage directory not writable: %w", err)
	}
	_ = os.Remove(testFile)
	return nil
}
