package storage_test

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	rootstorage "tourism_media/internal/storage"
	storage "tourism_media/internal/storage/filestorage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupFileStorage(t *testing.T) (*storage.LocalFileStorage, string) {
	t.Helper()

	tempDir := t.TempDir()

	fs, err := storage.NewLocalFileStorage(tempDir, "http://test.local/uploads/")
	require.NoError(t, err)

	return fs, tempDir
}

func stagingEntries(t *testing.T, dir string) int {
	t.Helper()

	entries, err := os.ReadDir(filepath.Join(dir, ".staging"))
	require.NoError(t, err)

	return len(entries)
}

func TestLocalFileStorage_Save(t *testing.T) {
	fs, tempDir := setupFileStorage(t)
	ctx := context.Background()

	t.Run("successful save", func(t *testing.T) {
		filePath, size, err := fs.Save(ctx, strings.NewReader("test content"), "places/abc", "Photo.JPG")
		require.NoError(t, err)

		assert.True(t, strings.HasPrefix(filePath, "places/abc/"))
		assert.True(t, strings.HasSuffix(filePath, ".jpg"))
		assert.Equal(t, int64(12), size)

		data, err := os.ReadFile(fs.GetFullPath(filePath))
		require.NoError(t, err)
		assert.Equal(t, "test content", string(data))

		assert.Zero(t, stagingEntries(t, tempDir))
	})

	t.Run("save with empty subpath", func(t *testing.T) {
		filePath, _, err := fs.Save(ctx, strings.NewReader("x"), "", "a.png")
		require.NoError(t, err)
		assert.NotContains(t, filePath, "/")
	})

	t.Run("rejects escaping subpath", func(t *testing.T) {
		_, _, err := fs.Save(ctx, strings.NewReader("x"), "../outside", "a.png")
		assert.ErrorIs(t, err, rootstorage.ErrInvalidPath)
	})

	t.Run("save with context cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(ctx)
		cancel()

		_, _, err := fs.Save(ctx, strings.NewReader("x"), "subdir", "a.png")
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("reader failure leaves nothing behind", func(t *testing.T) {
		r := io.MultiReader(bytes.NewReader([]byte("partial")), failingReader{})

		_, _, err := fs.Save(ctx, r, "broken", "a.png")
		require.Error(t, err)

		_, statErr := os.Stat(filepath.Join(tempDir, "broken"))
		assert.True(t, os.IsNotExist(statErr))
		assert.Zero(t, stagingEntries(t, tempDir))
	})
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, io.ErrUnexpectedEOF }

func TestLocalFileStorage_Delete(t *testing.T) {
	fs, _ := setupFileStorage(t)
	ctx := context.Background()

	t.Run("successful delete", func(t *testing.T) {
		filePath, _, err := fs.Save(ctx, strings.NewReader("content"), "", "to_delete.jpg")
		require.NoError(t, err)

		require.NoError(t, fs.Delete(ctx, filePath))

		_, err = os.Stat(fs.GetFullPath(filePath))
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("delete non-existent file", func(t *testing.T) {
		err := fs.Delete(ctx, "nonexistent.jpg")
		assert.ErrorIs(t, err, rootstorage.ErrFileNotFound)
	})
}

func TestLocalFileStorage_Paths(t *testing.T) {
	fs, dir := setupFileStorage(t)

	assert.Equal(t, "http://test.local/uploads/places/1/a.jpg", fs.URL("places/1/a.jpg"))
	assert.Equal(t, filepath.Join(dir, "test", "file.txt"), fs.GetFullPath("test/file.txt"))
}

func TestNewLocalFileStorage(t *testing.T) {
	t.Run("successful creation", func(t *testing.T) {
		fs, err := storage.NewLocalFileStorage(t.TempDir(), "http://test.local")
		require.NoError(t, err)
		assert.NotNil(t, fs)
	})

	t.Run("invalid directory", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0644))

		_, err := storage.NewLocalFileStorage(filepath.Join(file, "nested"), "http://test.local")
		assert.Error(t, err)
	})
}

func TestLocalFileStorage_Sweeping(t *testing.T) {
	fs, tempDir := setupFileStorage(t)
	ctx := context.Background()

	oldPath, _, err := fs.Save(ctx, strings.NewReader("old"), "places/p1", "old.jpg")
	require.NoError(t, err)
	freshPath, _, err := fs.Save(ctx, strings.NewReader("fresh"), "places/p1", "fresh.jpg")
	require.NoError(t, err)

	past := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(fs.GetFullPath(oldPath), past, past))

	staged := filepath.Join(tempDir, ".staging", "abandoned.tmp")
	require.NoError(t, os.WriteFile(staged, []byte("x"), 0644))
	require.NoError(t, os.Chtimes(staged, past, past))

	cutoff := time.Now().Add(-time.Hour)

	paths, err := fs.ListOlderThan(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, []string{oldPath}, paths)
	assert.NotContains(t, paths, freshPath)

	removed, err := fs.CleanStaging(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Zero(t, stagingEntries(t, tempDir))
}

func TestConcurrentSaves(t *testing.T) {
	fs, _ := setupFileStorage(t)
	ctx := context.Background()

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		paths = map[string]struct{}{}
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, _, err := fs.Save(ctx, strings.NewReader("data"), "concurrent", "same.jpg")
			assert.NoError(t, err)

			mu.Lock()
			paths[p] = struct{}{}
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, paths, 10)
}
