package models

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// Photo элемент галереи места
type Photo struct {
	ID          uuid.UUID `json:"id" db:"id"`
	PlaceID     uuid.UUID `json:"place_id" db:"place_id"`
	URL         string    `json:"url" db:"url"`
	StoragePath string    `json:"storage_path" db:"storage_path"`
	IsPrincipal bool      `json:"is_principal" db:"is_principal"`
	Order       int       `json:"order" db:"sort_order"`
	Description *string   `json:"description,omitempty" db:"description"`
	Width       *int      `json:"width,omitempty" db:"width"`
	Height      *int      `json:"height,omitempty" db:"height"`
	FileSize    *int64    `json:"file_size,omitempty" db:"file_size"`
	MimeType    *string   `json:"mime_type,omitempty" db:"mime_type"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// SortGallery упорядочивает фото: главное первым, затем по order, при равенстве по created_at
func SortGallery(photos []Photo) {
	sort.SliceStable(photos, func(i, j int) bool {
		a, b := photos[i], photos[j]
		if a.IsPrincipal != b.IsPrincipal {
			return a.IsPrincipal
		}
		if a.Order != b.Order {
			return a.Order < b.Order
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
}

// Principal возвращает главное фото или nil
func Principal(photos []Photo) *Photo {
	for i := range photos {
		if photos[i].IsPrincipal {
			return &photos[i]
		}
	}
	return nil
}

// MaxOrder возвращает максимальный order среди фото, -1 для пустой галереи
func MaxOrder(photos []Photo) int {
	maxOrder := -1
	for _, p := range photos {
		if p.Order > maxOrder {
			maxOrder = p.Order
		}
	}
	return maxOrder
}

// FallbackPrincipal выбирает замену главному фото: наименьший order, затем самый ранний created_at.
// Фото с id exclude не рассматривается.
func FallbackPrincipal(photos []Photo, exclude uuid.UUID) *Photo {
	var best *Photo
	for i := range photos {
		p := &photos[i]
		if p.ID == exclude {
			continue
		}
		if best == nil ||
			p.Order < best.Order ||
			(p.Order == best.Order && p.CreatedAt.Before(best.CreatedAt)) {
			best = p
		}
	}
	return best
}
