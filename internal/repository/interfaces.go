package repository

import (
	"context"
	"time"

	"tourism_media/internal/domain/models"

	"github.com/google/uuid"
)

// GalleryTx операции над фото одного места внутри транзакции с заблокированным местом
type GalleryTx interface {
	ListPhotos(ctx context.Context, placeID uuid.UUID) ([]models.Photo, error)
	CreatePhoto(ctx context.Context, photo *models.Photo) error
	UpdatePhoto(ctx context.Context, photo *models.Photo) error
	DeletePhoto(ctx context.Context, photoID uuid.UUID) error
}

type GalleryRepository interface {
	// InPlaceTx выполняет fn под блокировкой места, ErrNotFound если места нет
	InPlaceTx(ctx context.Context, placeID uuid.UUID, fn func(ctx context.Context, tx GalleryTx) error) error
	ListPhotos(ctx context.Context, placeID uuid.UUID) ([]models.Photo, error)
	UpdatePhotoDescription(ctx context.Context, placeID, photoID uuid.UUID, description *string) (models.Photo, error)
}

type ExperienceRepository interface {
	CreateExperience(ctx context.Context, e *models.Experience) error
	GetExperience(ctx context.Context, id uuid.UUID) (models.Experience, error)
	ExperienceExists(ctx context.Context, id uuid.UUID) (bool, error)
	// DecideIfPending переводит заявку из pending; false если она уже решена
	DecideIfPending(ctx context.Context, id uuid.UUID, state models.ExperienceState, decidedAt time.Time) (models.Experience, bool, error)
	AddViews(ctx context.Context, id uuid.UUID, n int64) error
	ListByState(ctx context.Context, state models.ExperienceState, filter models.ExperienceFilter) ([]models.Experience, int, error)
	Stats(ctx context.Context) (models.ExperienceStats, error)
}

type PlaceRepository interface {
	CreatePlace(ctx context.Context, place models.Place) (models.Place, error)
	GetPlace(ctx context.Context, id uuid.UUID) (models.Place, error)
	DeletePlace(ctx context.Context, id uuid.UUID) ([]string, error)
	AddRating(ctx context.Context, rating models.Rating) (models.Rating, models.Place, error)
	RecomputeRatingRollup(ctx context.Context, placeID uuid.UUID) (models.Place, error)
	RefreshPrincipalPhoto(ctx context.Context, placeID uuid.UUID) (models.Place, error)
	ListRatings(ctx context.Context, placeID uuid.UUID, page, limit int) ([]models.Rating, int, error)
}

// BlobReferences сообщает, какие пути блобов все еще упоминаются в метаданных
type BlobReferences interface {
	ReferencedPaths(ctx context.Context, paths []string) (map[string]bool, error)
}

// ViewBuffer буфер счетчиков просмотров
type ViewBuffer interface {
	Increment(ctx context.Context, id uuid.UUID) error
	Drain(ctx context.Context, limit int64) (map[uuid.UUID]int64, error)
	Restore(ctx context.Context, id uuid.UUID, n int64) error
}
