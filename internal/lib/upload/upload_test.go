package upload

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"tourism_media/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type explodingReader struct{}

func (explodingReader) Read([]byte) (int, error) { return 0, errors.New("must not be read") }

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func TestRead(t *testing.T) {
	policy := models.UploadPolicy{AllowedMimeTypes: []string{"image/png", "image/jpeg"}, MaxFileSize: 64}

	t.Run("valid", func(t *testing.T) {
		file, err := Read(bytes.NewReader(pngHeader), int64(len(pngHeader)), "image/png", policy)
		require.NoError(t, err)
		assert.Equal(t, pngHeader, file.Data)
		assert.Equal(t, "image/png", file.MimeType)
		assert.Equal(t, ".png", file.Ext)
	})

	t.Run("mime sniffed when missing", func(t *testing.T) {
		file, err := Read(bytes.NewReader(pngHeader), 0, "", policy)
		require.NoError(t, err)
		assert.Equal(t, "image/png", file.MimeType)
	})

	t.Run("declared oversize rejected before reading", func(t *testing.T) {
		_, err := Read(explodingReader{}, 1000, "image/png", policy)
		assert.ErrorIs(t, err, models.ErrValidation)
	})

	t.Run("disallowed type rejected before reading", func(t *testing.T) {
		_, err := Read(explodingReader{}, 10, "image/gif", policy)
		assert.ErrorIs(t, err, models.ErrValidation)
	})

	t.Run("actual oversize rejected", func(t *testing.T) {
		_, err := Read(strings.NewReader(strings.Repeat("x", 100)), 0, "image/png", policy)
		assert.ErrorIs(t, err, models.ErrValidation)
	})

	t.Run("sniffed text rejected", func(t *testing.T) {
		_, err := Read(strings.NewReader("plain words"), 0, "", policy)
		assert.ErrorIs(t, err, models.ErrValidation)
	})

	t.Run("html declared as jpeg rejected", func(t *testing.T) {
		_, err := Read(strings.NewReader("<html><script>alert(1)</script></html>"), 0, "image/jpeg", policy)
		require.ErrorIs(t, err, models.ErrValidation)
		assert.Contains(t, err.Error(), "text/html")
	})

	t.Run("png declared as jpeg rejected", func(t *testing.T) {
		_, err := Read(bytes.NewReader(pngHeader), 0, "image/jpeg", policy)
		require.ErrorIs(t, err, models.ErrValidation)
		assert.Contains(t, err.Error(), "does not match")
	})

	t.Run("nil reader", func(t *testing.T) {
		_, err := Read(nil, 0, "image/png", policy)
		assert.True(t, models.IsValidationError(err))
	})
}

func TestFile_Name(t *testing.T) {
	file := File{Ext: ".jpg"}

	assert.Equal(t, "x.jpg", file.Name("x.html"))
	assert.Equal(t, "beach.jpg", file.Name("beach"))
	assert.Equal(t, "image.jpg", file.Name(""))
}
