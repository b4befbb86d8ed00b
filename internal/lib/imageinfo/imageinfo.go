// Package imageinfo определяет размеры изображения по его байтам.
package imageinfo

import (
	"bytes"
	"fmt"

	"github.com/disintegration/imaging"
)

type Dimensions struct {
	Width  int
	Height int
}

// Inspect декодирует изображение с учетом EXIF-ориентации,
// поэтому для повернутых JPEG ширина и высота меняются местами
func Inspect(data []byte) (Dimensions, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return Dimensions{}, fmt.Errorf("imageinfo.Inspect: %w", err)
	}

	b := img.Bounds()

	return Dimensions{Width: b.Dx(), Height: b.Dy()}, nil
}
