// Package upload читает загружаемые изображения с учетом ограничений на тип и размер.
package upload

import (
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"tourism_media/internal/domain/models"
)

// File прочитанное изображение с типом, определенным по содержимому
type File struct {
	Data     []byte
	MimeType string
	// Ext расширение по фактическому типу, с точкой
	Ext string
}

// Name заменяет расширение клиентского имени на расширение фактического типа
func (f File) Name(filename string) string {
	base := strings.TrimSuffix(path.Base(filename), path.Ext(filename))
	if base == "" || base == "." || base == "/" {
		base = "image"
	}
	return base + f.Ext
}

// Read проверяет заявленный размер и тип до чтения, затем читает не больше лимита.
// Тип всегда определяется по байтам: он должен входить в политику и совпадать
// с заявленным, если клиент его передал.
func Read(r io.Reader, declaredSize int64, mimeType string, policy models.UploadPolicy) (File, error) {
	if r == nil {
		return File{}, models.NewValidationError("image is required")
	}

	if policy.MaxFileSize > 0 && declaredSize > policy.MaxFileSize {
		return File{}, models.NewValidationError(
			fmt.Sprintf("file size %d exceeds limit of %d bytes", declaredSize, policy.MaxFileSize))
	}
	if mimeType != "" && !policy.Allowed(mimeType) {
		return File{}, policy.Check(mimeType, 1)
	}

	limit := policy.MaxFileSize
	if limit <= 0 {
		limit = 1 << 40
	}

	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return File{}, fmt.Errorf("read upload: %w", err)
	}

	detected := mimetype.Detect(data)
	actual := baseType(detected.String())

	if err := policy.Check(actual, int64(len(data))); err != nil {
		return File{}, err
	}
	if mimeType != "" && !detected.Is(baseType(mimeType)) {
		return File{}, models.NewValidationError(
			fmt.Sprintf("declared type %q does not match content type %q", mimeType, actual))
	}

	return File{Data: data, MimeType: actual, Ext: detected.Extension()}, nil
}

func baseType(t string) string {
	if i := strings.IndexByte(t, ';'); i >= 0 {
		t = t[:i]
	}
	return strings.ToLower(strings.TrimSpace(t))
}
