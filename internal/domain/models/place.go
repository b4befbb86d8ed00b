package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type Place struct {
	ID                uuid.UUID `json:"id" db:"id"`
	Name              string    `json:"name" db:"name"`
	Description       *string   `json:"description,omitempty" db:"description"`
	Location          string    `json:"location" db:"location"`
	Category          string    `json:"category" db:"category"`
	AverageRating     float64   `json:"average_rating" db:"average_rating"`
	TotalRatings      int       `json:"total_ratings" db:"total_ratings"`
	PrincipalPhotoURL *string   `json:"principal_photo_url,omitempty" db:"principal_photo_url"`
	CreatedAt         time.Time `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time `json:"updated_at" db:"updated_at"`
}

// Rating оценка места с необязательным комментарием
type Rating struct {
	ID        uuid.UUID `json:"id" db:"id"`
	PlaceID   uuid.UUID `json:"place_id" db:"place_id"`
	Author    string    `json:"author" db:"author"`
	Score     int       `json:"score" db:"score"`
	Comment   *string   `json:"comment,omitempty" db:"comment"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

const (
	MinRatingScore = 1
	MaxRatingScore = 5
)

func (r Rating) Validate() error {
	var errs []string
	if r.PlaceID == uuid.Nil {
		errs = append(errs, "place id is required")
	}
	if strings.TrimSpace(r.Author) == "" {
		errs = append(errs, "author is required")
	}
	if r.Score < MinRatingScore || r.Score > MaxRatingScore {
		errs = append(errs, "score must be between 1 and 5")
	}
	if len(errs) > 0 {
		return NewValidationError(errs...)
	}
	return nil
}

func (p Place) Validate() error {
	var errs []string
	if strings.TrimSpace(p.Name) == "" {
		errs = append(errs, "name is required")
	}
	if len(p.Name) > 255 {
		errs = append(errs, "name must be 255 characters or less")
	}
	if strings.TrimSpace(p.Location) == "" {
		errs = append(errs, "location is required")
	}
	if strings.TrimSpace(p.Category) == "" {
		errs = append(errs, "category is required")
	}
	if len(errs) > 0 {
		return NewValidationError(errs...)
	}
	return nil
}

// TrimmedOrNil обрезает пробелы, пустая строка превращается в nil
func TrimmedOrNil(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
