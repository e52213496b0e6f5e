package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imagevault/internal/config"
	"imagevault/internal/domain/image"
)

func newLocalStorage(t *testing.T) *LocalStorage {
	t.Helper()
	store, err := NewLocalStorage(&config.Config{LocalStoragePath: t.TempDir()}, zerolog.Nop())
	require.NoError(t, err)
	return store
}

func TestLocalPutAndDelete(t *testing.T) {
	store := newLocalStorage(t)
	ctx := context.Background()

	key := "images/owner-1/01h000000000000000000000000.jpg"
	require.NoError(t, store.Put(ctx, key, []byte("blob"), "image/jpeg"))

	data, err := os.ReadFile(filepath.Join(store.basePath, filepath.FromSlash(key)))
	require.NoError(t, err)
	assert.Equal(t, []byte("blob"), data)

	require.NoError(t, store.Delete(ctx, key))
	_, err = os.Stat(filepath.Join(store.basePath, filepath.FromSlash(key)))
	assert.True(t, os.IsNotExist(err))
}

func TestLocalDeleteMissingKey(t *testing.T) {
	store := newLocalStorage(t)

	err := store.Delete(context.Background(), "images/owner-1/missing.jpg")
	require.Error(t, err)
	assert.True(t, errors.Is(err, image.ErrBlobNotFound))
}

func TestLocalRequiresPath(t *testing.T) {
	_, err := NewLocalStorage(&config.Config{}, zerolog.Nop())
	require.Error(t, err)
}

func TestLocalHealth(t *testing.T) {
	store := newLocalStorage(t)
	require.NoError(t, store.Health(context.Background()))
}
