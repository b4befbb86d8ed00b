package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"

	"tourism_media/internal/domain/models"
	"tourism_media/internal/lib/imageinfo"
	"tourism_media/internal/lib/logger/sl"
	"tourism_media/internal/lib/upload"
	"tourism_media/internal/metrics"
	"tourism_media/internal/repository"
	rootstorage "tourism_media/internal/storage"
	storage "tourism_media/internal/storage/filestorage"
	"tourism_media/internal/transport/http/dto"
)

const (
	maxDescriptionLength = 2000
	// maxCacheTTL ограничивает устаревание галереи, если событие сброса потерялось
	maxCacheTTL = 10 * time.Second
)

// PrincipalListener получает уведомление после коммита смены главного фото
type PrincipalListener interface {
	PrincipalChanged(ctx context.Context, placeID uuid.UUID) error
}

// CacheEvents рассылает сброс кэша галереи между экземплярами
type CacheEvents interface {
	PublishInvalidate(ctx context.Context, placeID uuid.UUID) error
}

type GalleryService struct {
	log    *slog.Logger
	repo   repository.GalleryRepository
	files  storage.FileStorage
	policy models.UploadPolicy
	places PrincipalListener
	events CacheEvents
	cache  *gocache.Cache
}

func NewGalleryService(
	log *slog.Logger,
	repo repository.GalleryRepository,
	files storage.FileStorage,
	policy models.UploadPolicy,
	places PrincipalListener,
	events CacheEvents,
	cacheTTL time.Duration,
) *GalleryService {
	if cacheTTL <= 0 || cacheTTL > maxCacheTTL {
		cacheTTL = maxCacheTTL
	}

	return &GalleryService{
		log:    log,
		repo:   repo,
		files:  files,
		policy: policy,
		places: places,
		events: events,
		cache:  gocache.New(cacheTTL, 2*cacheTTL),
	}
}

type storedImage struct {
	path     string
	url      string
	size     int64
	mimeType string
	width    *int
	height   *int
}

// AddPhoto сохраняет файл и добавляет фото в конец галереи.
// Первое фото места становится главным.
func (s *GalleryService) AddPhoto(ctx context.Context, placeID uuid.UUID, input dto.ImageUploadInput) (*models.Photo, error) {
	const op = "service.GalleryService.AddPhoto"
	log := s.log.With(
		slog.String("op", op),
		slog.String("place_id", placeID.String()),
		slog.String("filename", input.Filename),
	)

	description, err := normalizeDescription(input.Description)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	img, err := s.storeImage(ctx, placeID, input)
	if err != nil {
		log.Warn("failed to store image", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	photo := img.photo(placeID, description)

	err = s.repo.InPlaceTx(ctx, placeID, func(ctx context.Context, tx repository.GalleryTx) error {
		photos, err := tx.ListPhotos(ctx, placeID)
		if err != nil {
			return err
		}

		photo.Order = models.MaxOrder(photos) + 1
		if models.Principal(photos) == nil {
			photo.IsPrincipal = true
		}

		return tx.CreatePhoto(ctx, photo)
	})
	if err != nil {
		s.discardBlob(ctx, log, img.path)
		log.Error("failed to create photo", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.invalidate(ctx, placeID)
	metrics.PhotosUploadedTotal.Inc()

	if photo.IsPrincipal {
		s.principalChanged(ctx, log, placeID, "first_photo")
	}

	log.Info("photo added", slog.String("photo_id", photo.ID.String()), slog.Bool("principal", photo.IsPrincipal))

	return photo, nil
}

// AddPhotoBatch загружает файлы по очереди, ошибка одного файла не прерывает остальные
func (s *GalleryService) AddPhotoBatch(ctx context.Context, placeID uuid.UUID, inputs []dto.ImageUploadInput) []dto.BatchResult {
	results := make([]dto.BatchResult, 0, len(inputs))

	for i, input := range inputs {
		photo, err := s.AddPhoto(ctx, placeID, input)
		results = append(results, dto.BatchResult{
			Index:    i,
			Filename: input.Filename,
			Photo:    photo,
			Err:      err,
		})
	}

	return results
}

// ReplacePrincipal подменяет содержимое главного фото, сохраняя его id и позицию.
// Если главного фото нет, новое фото становится главным.
func (s *GalleryService) ReplacePrincipal(ctx context.Context, placeID uuid.UUID, input dto.ImageUploadInput) (*models.Photo, error) {
	const op = "service.GalleryService.ReplacePrincipal"
	log := s.log.With(
		slog.String("op", op),
		slog.String("place_id", placeID.String()),
	)

	description, err := normalizeDescription(input.Description)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	img, err := s.storeImage(ctx, placeID, input)
	if err != nil {
		log.Warn("failed to store image", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var (
		result  *models.Photo
		oldPath string
	)

	err = s.repo.InPlaceTx(ctx, placeID, func(ctx context.Context, tx repository.GalleryTx) error {
		photos, err := tx.ListPhotos(ctx, placeID)
		if err != nil {
			return err
		}

		current := models.Principal(photos)
		if current == nil {
			photo := img.photo(placeID, description)
			photo.IsPrincipal = true
			photo.Order = models.MaxOrder(photos) + 1
			if err := tx.CreatePhoto(ctx, photo); err != nil {
				return err
			}
			result = photo
			return nil
		}

		updated := *current
		oldPath = current.StoragePath
		updated.URL = img.url
		updated.StoragePath = img.path
		updated.FileSize = &img.size
		updated.MimeType = &img.mimeType
		updated.Width = img.width
		updated.Height = img.height
		if description != nil {
			updated.Description = description
		}

		if err := tx.UpdatePhoto(ctx, &updated); err != nil {
			return err
		}
		result = &updated
		return nil
	})
	if err != nil {
		s.discardBlob(ctx, log, img.path)
		log.Error("failed to replace principal photo", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if oldPath != "" {
		s.discardBlob(ctx, log, oldPath)
	} else {
		metrics.PhotosUploadedTotal.Inc()
	}

	s.invalidate(ctx, placeID)
	s.principalChanged(ctx, log, placeID, "replaced")

	log.Info("principal photo replaced", slog.String("photo_id", result.ID.String()))

	return result, nil
}

// SetPrincipal делает фото главным, прежнее главное уходит в конец галереи
func (s *GalleryService) SetPrincipal(ctx context.Context, placeID, photoID uuid.UUID) (*models.Photo, error) {
	const op = "service.GalleryService.SetPrincipal"
	log := s.log.With(
		slog.String("op", op),
		slog.String("place_id", placeID.String()),
		slog.String("photo_id", photoID.String()),
	)

	var (
		result  *models.Photo
		changed bool
	)

	err := s.repo.InPlaceTx(ctx, placeID, func(ctx context.Context, tx repository.GalleryTx) error {
		photos, err := tx.ListPhotos(ctx, placeID)
		if err != nil {
			return err
		}

		var target *models.Photo
		for i := range photos {
			if photos[i].ID == photoID {
				target = &photos[i]
				break
			}
		}
		if target == nil {
			return fmt.Errorf("photo %s in place %s: %w", photoID, placeID, models.ErrNotFound)
		}

		if target.IsPrincipal {
			result = target
			return nil
		}

		// снимаем флаг до установки нового, иначе сработает уникальный индекс
		if current := models.Principal(photos); current != nil {
			demoted := *current
			demoted.IsPrincipal = false
			demoted.Order = models.MaxOrder(photos) + 1
			if err := tx.UpdatePhoto(ctx, &demoted); err != nil {
				return err
			}
		}

		promoted := *target
		promoted.IsPrincipal = true
		if err := tx.UpdatePhoto(ctx, &promoted); err != nil {
			return err
		}

		result = &promoted
		changed = true
		return nil
	})
	if err != nil {
		log.Warn("failed to set principal photo", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if changed {
		s.invalidate(ctx, placeID)
		s.principalChanged(ctx, log, placeID, "set")
		log.Info("principal photo set")
	}

	return result, nil
}

// DeletePhoto удаляет фото; если оно было главным, главным становится фото с наименьшим order.
// Файл удаляется после коммита, ошибка удаления только логируется.
func (s *GalleryService) DeletePhoto(ctx context.Context, placeID, photoID uuid.UUID) error {
	const op = "service.GalleryService.DeletePhoto"
	log := s.log.With(
		slog.String("op", op),
		slog.String("place_id", placeID.String()),
		slog.String("photo_id", photoID.String()),
	)

	var (
		blobPath     string
		wasPrincipal bool
	)

	err := s.repo.InPlaceTx(ctx, placeID, func(ctx context.Context, tx repository.GalleryTx) error {
		photos, err := tx.ListPhotos(ctx, placeID)
		if err != nil {
			return err
		}

		var target *models.Photo
		for i := range photos {
			if photos[i].ID == photoID {
				target = &photos[i]
				break
			}
		}
		if target == nil {
			return fmt.Errorf("photo %s in place %s: %w", photoID, placeID, models.ErrNotFound)
		}

		blobPath = target.StoragePath
		wasPrincipal = target.IsPrincipal

		if err := tx.DeletePhoto(ctx, photoID); err != nil {
			return err
		}

		if !wasPrincipal {
			return nil
		}

		fallback := models.FallbackPrincipal(photos, photoID)
		if fallback == nil {
			return nil
		}

		promoted := *fallback
		promoted.IsPrincipal = true
		return tx.UpdatePhoto(ctx, &promoted)
	})
	if err != nil {
		log.Warn("failed to delete photo", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	s.invalidate(ctx, placeID)
	s.discardBlob(ctx, log, blobPath)

	if wasPrincipal {
		s.principalChanged(ctx, log, placeID, "deleted")
	}

	log.Info("photo deleted")

	return nil
}

// ListGallery возвращает галерею места: главное фото первым, затем по order
func (s *GalleryService) ListGallery(ctx context.Context, placeID uuid.UUID) ([]models.Photo, error) {
	const op = "service.GalleryService.ListGallery"

	if cached, ok := s.cache.Get(placeID.String()); ok {
		return clonePhotos(cached.([]models.Photo)), nil
	}

	photos, err := s.repo.ListPhotos(ctx, placeID)
	if err != nil {
		s.log.Error("failed to list gallery", slog.String("op", op), sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	models.SortGallery(photos)
	s.cache.SetDefault(placeID.String(), clonePhotos(photos))

	return photos, nil
}

// UpdateDescription меняет описание фото места, пустая строка очищает его
func (s *GalleryService) UpdateDescription(ctx context.Context, placeID, photoID uuid.UUID, text string) (*models.Photo, error) {
	const op = "service.GalleryService.UpdateDescription"
	log := s.log.With(
		slog.String("op", op),
		slog.String("place_id", placeID.String()),
		slog.String("photo_id", photoID.String()),
	)

	description, err := normalizeDescription(text)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	photo, err := s.repo.UpdatePhotoDescription(ctx, placeID, photoID, description)
	if err != nil {
		log.Warn("failed to update description", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.invalidate(ctx, placeID)

	return &photo, nil
}

func (s *GalleryService) storeImage(ctx context.Context, placeID uuid.UUID, input dto.ImageUploadInput) (storedImage, error) {
	const op = "service.GalleryService.storeImage"

	file, err := upload.Read(input.Reader, input.Size, input.MimeType, s.policy)
	if err != nil {
		return storedImage{}, err
	}

	img := storedImage{mimeType: file.MimeType, width: input.Width, height: input.Height}
	if img.width == nil || img.height == nil {
		if dims, err := imageinfo.Inspect(file.Data); err == nil {
			img.width, img.height = &dims.Width, &dims.Height
		} else {
			s.log.Debug("image dimensions unknown", slog.String("op", op), sl.Err(err))
		}
	}

	filePath, size, err := s.files.Save(ctx, bytes.NewReader(file.Data), path.Join("places", placeID.String()), file.Name(input.Filename))
	if err != nil {
		return storedImage{}, models.StorageError(op, err)
	}

	img.path = filePath
	img.url = s.files.URL(filePath)
	img.size = size

	return img, nil
}

func (img storedImage) photo(placeID uuid.UUID, description *string) *models.Photo {
	size := img.size
	mimeType := img.mimeType

	return &models.Photo{
		PlaceID:     placeID,
		URL:         img.url,
		StoragePath: img.path,
		Description: description,
		Width:       img.width,
		Height:      img.height,
		FileSize:    &size,
		MimeType:    &mimeType,
	}
}

// discardBlob удаляет файл даже после отмены запроса, остатки подберет чистильщик
func (s *GalleryService) discardBlob(ctx context.Context, log *slog.Logger, filePath string) {
	if filePath == "" {
		return
	}
	if err := s.files.Delete(context.WithoutCancel(ctx), filePath); err != nil && !errors.Is(err, rootstorage.ErrFileNotFound) {
		log.Warn("failed to delete blob", slog.String("path", filePath), sl.Err(err))
	}
}

func (s *GalleryService) principalChanged(ctx context.Context, log *slog.Logger, placeID uuid.UUID, reason string) {
	metrics.PrincipalChangesTotal.WithLabelValues(reason).Inc()

	if s.places == nil {
		return
	}
	if err := s.places.PrincipalChanged(context.WithoutCancel(ctx), placeID); err != nil {
		log.Error("failed to refresh place principal photo", sl.Err(err))
	}
}

// invalidate сбрасывает локальный кэш и оповещает остальные экземпляры
func (s *GalleryService) invalidate(ctx context.Context, placeID uuid.UUID) {
	s.cache.Delete(placeID.String())

	if s.events == nil {
		return
	}
	if err := s.events.PublishInvalidate(context.WithoutCancel(ctx), placeID); err != nil {
		s.log.Warn("failed to publish gallery invalidation",
			slog.String("place_id", placeID.String()), sl.Err(err))
	}
}

// Evict сбрасывает кэш места по событию другого экземпляра
func (s *GalleryService) Evict(placeID uuid.UUID) {
	s.cache.Delete(placeID.String())
}

// PlaceRemoved вызывается после удаления места вместе с его фото
func (s *GalleryService) PlaceRemoved(ctx context.Context, placeID uuid.UUID) {
	s.invalidate(ctx, placeID)
}

func normalizeDescription(text string) (*string, error) {
	description := models.TrimmedOrNil(text)
	if description != nil && len([]rune(*description)) > maxDescriptionLength {
		return nil, models.NewValidationError(
			fmt.Sprintf("description must be %d characters or less", maxDescriptionLength))
	}
	return description, nil
}

func clonePhotos(photos []models.Photo) []models.Photo {
	out := make([]models.Photo, len(photos))
	copy(out, photos)
	return out
}
