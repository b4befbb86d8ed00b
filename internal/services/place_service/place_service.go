package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"tourism_media/internal/domain/models"
	"tourism_media/internal/lib/logger/sl"
	"tourism_media/internal/repository"
	rootstorage "tourism_media/internal/storage"
	storage "tourism_media/internal/storage/filestorage"
	"tourism_media/internal/transport/http/dto"
)

// GalleryCache сбрасывает кэш галереи удаленного места
type GalleryCache interface {
	PlaceRemoved(ctx context.Context, placeID uuid.UUID)
}

type PlaceService struct {
	log       *slog.Logger
	repo      repository.PlaceRepository
	files     storage.FileStorage
	galleries GalleryCache
}

func NewPlaceService(log *slog.Logger, repo repository.PlaceRepository, files storage.FileStorage) *PlaceService {
	return &PlaceService{
		log:   log,
		repo:  repo,
		files: files,
	}
}

// SetGalleryCache подключает галерею после создания, галерея сама зависит от PlaceService
func (s *PlaceService) SetGalleryCache(galleries GalleryCache) {
	s.galleries = galleries
}

func (s *PlaceService) CreatePlace(ctx context.Context, req dto.CreatePlaceRequest) (*models.Place, error) {
	const op = "service.PlaceService.CreatePlace"
	log := s.log.With(
		slog.String("op", op),
		slog.String("name", req.Name),
	)

	place := req.ToDomain()
	if err := place.Validate(); err != nil {
		log.Warn("invalid place", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	created, err := s.repo.CreatePlace(ctx, place)
	if err != nil {
		log.Error("failed to create place", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("place created", slog.String("place_id", created.ID.String()))

	return &created, nil
}

func (s *PlaceService) GetPlace(ctx context.Context, id uuid.UUID) (*models.Place, error) {
	const op = "service.PlaceService.GetPlace"

	place, err := s.repo.GetPlace(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &place, nil
}

// DeletePlace удаляет место вместе с фото и оценками.
// Файлы удаляются после коммита, ошибки удаления только логируются.
func (s *PlaceService) DeletePlace(ctx context.Context, id uuid.UUID) error {
	const op = "service.PlaceService.DeletePlace"
	log := s.log.With(
		slog.String("op", op),
		slog.String("place_id", id.String()),
	)

	paths, err := s.repo.DeletePlace(ctx, id)
	if err != nil {
		log.Warn("failed to delete place", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	ctx = context.WithoutCancel(ctx)
	if s.galleries != nil {
		s.galleries.PlaceRemoved(ctx, id)
	}
	for _, p := range paths {
		if err := s.files.Delete(ctx, p); err != nil && !errors.Is(err, rootstorage.ErrFileNotFound) {
			log.Warn("failed to delete blob", slog.String("path", p), sl.Err(err))
		}
	}

	log.Info("place deleted", slog.Int("blobs", len(paths)))

	return nil
}

// AddRating сохраняет оценку и пересчитывает средний рейтинг в той же транзакции
func (s *PlaceService) AddRating(ctx context.Context, placeID uuid.UUID, req dto.AddRatingRequest) (*models.Rating, *models.Place, error) {
	const op = "service.PlaceService.AddRating"
	log := s.log.With(
		slog.String("op", op),
		slog.String("place_id", placeID.String()),
	)

	rating := models.Rating{
		PlaceID: placeID,
		Author:  req.Author,
		Score:   req.Score,
		Comment: models.TrimmedOrNil(req.Comment),
	}
	if err := rating.Validate(); err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	created, place, err := s.repo.AddRating(ctx, rating)
	if err != nil {
		log.Warn("failed to add rating", sl.Err(err))
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("rating added",
		slog.Int("score", created.Score),
		slog.Float64("average", place.AverageRating),
		slog.Int("total", place.TotalRatings),
	)

	return &created, &place, nil
}

// ListRatings возвращает оценки места, новые первыми
func (s *PlaceService) ListRatings(ctx context.Context, placeID uuid.UUID, page, limit int) (*dto.RatingsPage, error) {
	const op = "service.PlaceService.ListRatings"

	page, limit = models.NormalizePage(page, limit)

	if _, err := s.repo.GetPlace(ctx, placeID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	ratings, total, err := s.repo.ListRatings(ctx, placeID, page, limit)
	if err != nil {
		s.log.Error("failed to list ratings", slog.String("op", op), sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &dto.RatingsPage{
		Items: ratings,
		Page:  page,
		Limit: limit,
		Total: total,
	}, nil
}

// RecomputeRatingRollup пересчитывает средний рейтинг и число оценок, повторный вызов ничего не меняет
func (s *PlaceService) RecomputeRatingRollup(ctx context.Context, placeID uuid.UUID) (*models.Place, error) {
	const op = "service.PlaceService.RecomputeRatingRollup"

	place, err := s.repo.RecomputeRatingRollup(ctx, placeID)
	if err != nil {
		s.log.Warn("failed to recompute rating", slog.String("op", op), sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &place, nil
}

// PrincipalChanged заново выводит principal_photo_url из таблицы фото
func (s *PlaceService) PrincipalChanged(ctx context.Context, placeID uuid.UUID) error {
	const op = "service.PlaceService.PrincipalChanged"

	place, err := s.repo.RefreshPrincipalPhoto(ctx, placeID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	url := ""
	if place.PrincipalPhotoURL != nil {
		url = *place.PrincipalPhotoURL
	}
	s.log.Debug("principal photo refreshed",
		slog.String("op", op),
		slog.String("place_id", placeID.String()),
		slog.String("url", url),
	)

	return nil
}
