package dto

import (
	"tourism_media/internal/domain/models"
)

type CreatePlaceRequest struct {
	Name        string `json:"name" validate:"required,max=255"`
	Description string `json:"description" validate:"max=5000"`
	Location    string `json:"location" validate:"required"`
	Category    string `json:"category" validate:"required,max=100"`
}

func (r CreatePlaceRequest) ToDomain() models.Place {
	return models.Place{
		Name:        r.Name,
		Description: models.TrimmedOrNil(r.Description),
		Location:    r.Location,
		Category:    r.Category,
	}
}

type AddRatingRequest struct {
	Author  string `json:"author" validate:"required,max=255"`
	Score   int    `json:"score" validate:"required,min=1,max=5"`
	Comment string `json:"comment" validate:"max=2000"`
}

type UpdatePhotoDescriptionRequest struct {
	Description string `json:"description" validate:"max=2000"`
}

type RatingsPage struct {
	Items []models.Rating `json:"items"`
	Page  int             `json:"page"`
	Limit int             `json:"limit"`
	Total int             `json:"total"`
}

// BatchResult результат загрузки одного файла из пакета
type BatchResult struct {
	Index    int
	Filename string
	Photo    *models.Photo
	Err      error
}

// BatchItemResponse результат одного файла пакетной загрузки
type BatchItemResponse struct {
	Index    int           `json:"index"`
	Filename string        `json:"filename"`
	Photo    *models.Photo `json:"photo,omitempty"`
	Error    string        `json:"error,omitempty"`
	Details  string        `json:"details,omitempty"`
}
