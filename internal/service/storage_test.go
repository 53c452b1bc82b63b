package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"support_chat/internal/config"
	pkgerrors "support_chat/pkg/errors"
	"support_chat/pkg/logger"
)

func newStorage(t *testing.T, maxSizeMB int64) (StorageService, string) {
	t.Helper()

	dir := t.TempDir()
	storage, err := NewStorageService(config.UploadConfig{
		Dir:        dir,
		MaxSizeMB:  maxSizeMB,
		PublicBase: "/files",
	}, logger.New("error"))
	require.NoError(t, err)
	return storage, dir
}

func TestSaveUploadKeepsExtension(t *testing.T) {
	storage, dir := newStorage(t, 1)

	storedName, localURL, err := storage.SaveUpload("photo.png", strings.NewReader("image-bytes"))
	require.NoError(t, err)

	assert.True(t, strings.HasSuffix(storedName, ".png"))
	assert.NotEqual(t, "photo.png", storedName)
	assert.Equal(t, "/files/"+storedName, localURL)

	content, err := os.ReadFile(filepath.Join(dir, storedName))
	require.NoError(t, err)
	assert.Equal(t, "image-bytes", string(content))
}

func TestSaveUploadRejectsOversized(t *testing.T) {
	storage, dir := newStorage(t, 1)

	big := strings.NewReader(strings.Repeat("x", 1024*1024+1))
	_, _, err := storage.SaveUpload("dump.bin", big)
	assert.ErrorIs(t, err, pkgerrors.ErrBadRequest)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFetchRemoteStoresFile(t *testing.T) {
	storage, _ := newStorage(t, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("voice-bytes"))
	}))
	defer srv.Close()

	storedName, localURL, err := storage.FetchRemote(context.Background(), srv.URL+"/voice/file_1.ogg", "")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(storedName, ".ogg"))
	assert.True(t, strings.HasPrefix(localURL, "/files/"))
}

func TestFetchRemoteFailsOnHTTPError(t *testing.T) {
	storage, _ := newStorage(t, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, _, err := storage.FetchRemote(context.Background(), srv.URL+"/missing", "")
	assert.Error(t, err)
}
