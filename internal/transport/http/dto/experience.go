package dto

import (
	"github.com/google/uuid"

	"tourism_media/internal/domain/models"
)

// SubmitExperienceInput заявка пользователя на публикацию фото
type SubmitExperienceInput struct {
	Image         ImageUploadInput
	Description   string
	PlaceID       *uuid.UUID
	TermsAccepted bool
}

type DecisionRequest struct {
	Decision string `json:"decision" validate:"required"`
}

type ExperiencePage struct {
	Items []models.Experience `json:"items"`
	Page  int                 `json:"page"`
	Limit int                 `json:"limit"`
	Total int                 `json:"total"`
}

type DecisionResponse struct {
	Experience     models.Experience `json:"experience"`
	AlreadyDecided bool              `json:"already_decided"`
}
