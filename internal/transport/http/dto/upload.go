package dto

import (
	"io"
	"mime/multipart"
)

// ImageUploadInput загружаемое изображение вместе с метаданными клиента
type ImageUploadInput struct {
	Reader   io.Reader `json:"-"`
	Filename string    `json:"filename"`
	// MimeType из заголовка части, пустой определяется по содержимому
	MimeType    string `json:"mime_type"`
	Size        int64  `json:"size"`
	Width       *int   `json:"width,omitempty" validate:"omitempty,min=1"`
	Height      *int   `json:"height,omitempty" validate:"omitempty,min=1"`
	Description string `json:"description,omitempty" validate:"max=2000"`
}

// FromFileHeader открывает часть multipart-формы, вызывающий закрывает файл
func FromFileHeader(fh *multipart.FileHeader) (ImageUploadInput, io.Closer, error) {
	f, err := fh.Open()
	if err != nil {
		return ImageUploadInput{}, nil, err
	}

	return ImageUploadInput{
		Reader:   f,
		Filename: fh.Filename,
		MimeType: fh.Header.Get("Content-Type"),
		Size:     fh.Size,
	}, f, nil
}
