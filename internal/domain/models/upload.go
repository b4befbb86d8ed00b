package models

import (
	"fmt"
	"strings"
)

// UploadPolicy ограничения на загружаемые изображения
type UploadPolicy struct {
	AllowedMimeTypes []string
	MaxFileSize      int64
}

func (p UploadPolicy) Allowed(mimeType string) bool {
	mimeType = normalizeMime(mimeType)
	for _, t := range p.AllowedMimeTypes {
		if normalizeMime(t) == mimeType {
			return true
		}
	}
	return false
}

// Check проверяет тип и размер файла до любых операций ввода-вывода
func (p UploadPolicy) Check(mimeType string, size int64) error {
	var errs []string
	if !p.Allowed(mimeType) {
		errs = append(errs, fmt.Sprintf("mime type %q is not allowed, must be one of: %v", mimeType, p.AllowedMimeTypes))
	}
	if size <= 0 {
		errs = append(errs, "file is empty")
	}
	if p.MaxFileSize > 0 && size > p.MaxFileSize {
		errs = append(errs, fmt.Sprintf("file size %d exceeds limit of %d bytes", size, p.MaxFileSize))
	}
	if len(errs) > 0 {
		return NewValidationError(errs...)
	}
	return nil
}

func normalizeMime(t string) string {
	if i := strings.IndexByte(t, ';'); i >= 0 {
		t = t[:i]
	}
	return strings.ToLower(strings.TrimSpace(t))
}
