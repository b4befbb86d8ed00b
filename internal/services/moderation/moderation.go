// Package moderation содержит клиентов внешнего сервиса оценки контента.
package moderation

import (
	"context"

	"tourism_media/internal/domain/models"
)

// Image то, что отправляется на оценку
type Image struct {
	Data     []byte
	MimeType string
	// Text описание, приложенное к фото, оценивается на текстовые флаги
	Text string
}

type Scorer interface {
	Score(ctx context.Context, img Image) (models.ModerationResult, error)
}
