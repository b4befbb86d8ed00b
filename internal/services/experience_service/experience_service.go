package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"tourism_media/internal/domain/models"
	"tourism_media/internal/lib/logger/sl"
	"tourism_media/internal/lib/upload"
	"tourism_media/internal/metrics"
	"tourism_media/internal/repository"
	"tourism_media/internal/services/moderation"
	storage "tourism_media/internal/storage/filestorage"
	"tourism_media/internal/transport/http/dto"
)

const (
	experiencesDir       = "experiences"
	maxDescriptionLength = 2000
)

type ExperienceService struct {
	log    *slog.Logger
	repo   repository.ExperienceRepository
	views  repository.ViewBuffer
	scorer moderation.Scorer
	files  storage.FileStorage
	policy models.ModerationPolicy
	limits models.UploadPolicy
	now    func() time.Time
}

// NewExperienceService views может быть nil, тогда просмотры пишутся сразу в базу
func NewExperienceService(
	log *slog.Logger,
	repo repository.ExperienceRepository,
	views repository.ViewBuffer,
	scorer moderation.Scorer,
	files storage.FileStorage,
	policy models.ModerationPolicy,
	limits models.UploadPolicy,
) *ExperienceService {
	return &ExperienceService{
		log:    log,
		repo:   repo,
		views:  views,
		scorer: scorer,
		files:  files,
		policy: policy,
		limits: limits,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Submit оценивает фото модератором до сохранения: при недоступном модераторе
// не сохраняется ни запись, ни файл
func (s *ExperienceService) Submit(ctx context.Context, input dto.SubmitExperienceInput) (*models.Experience, error) {
	const op = "service.ExperienceService.Submit"
	log := s.log.With(
		slog.String("op", op),
		slog.String("filename", input.Image.Filename),
	)

	if !input.TermsAccepted {
		return nil, fmt.Errorf("%s: %w", op, models.ErrTermsNotAccepted)
	}

	description := models.TrimmedOrNil(input.Description)
	if description != nil && len([]rune(*description)) > maxDescriptionLength {
		return nil, fmt.Errorf("%s: %w", op, models.NewValidationError(
			fmt.Sprintf("description must be %d characters or less", maxDescriptionLength)))
	}

	file, err := upload.Read(input.Image.Reader, input.Image.Size, input.Image.MimeType, s.limits)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	img := moderation.Image{Data: file.Data, MimeType: file.MimeType}
	if description != nil {
		img.Text = *description
	}

	result, err := s.scorer.Score(ctx, img)
	if err == nil {
		err = result.Validate()
	}
	if err != nil {
		log.Warn("moderation failed, submission dropped", sl.Err(err))
		if !errors.Is(err, models.ErrModerationUnavailable) {
			err = fmt.Errorf("%w: %w", models.ErrModerationUnavailable, err)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	state := s.policy.Decide(result)

	filePath, _, err := s.files.Save(ctx, bytes.NewReader(file.Data), experiencesDir, file.Name(input.Image.Filename))
	if err != nil {
		log.Error("failed to store image", sl.Err(err))
		return nil, models.StorageError(op, err)
	}

	categories := result.Categories
	experience := &models.Experience{
		PhotoURL:             s.files.URL(filePath),
		StoragePath:          filePath,
		Description:          description,
		PlaceID:              input.PlaceID,
		State:                state,
		ModerationScore:      result.Score,
		ModerationCategories: &categories,
		TextFlags:            result.TextFlags,
	}
	if state.Terminal() {
		decidedAt := s.now()
		experience.DecidedAt = &decidedAt
	}

	if err := s.repo.CreateExperience(ctx, experience); err != nil {
		if delErr := s.files.Delete(context.WithoutCancel(ctx), filePath); delErr != nil {
			log.Warn("failed to delete blob", slog.String("path", filePath), sl.Err(delErr))
		}
		log.Warn("failed to create experience", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	metrics.ExperiencesSubmittedTotal.WithLabelValues(string(state)).Inc()

	log.Info("experience submitted",
		slog.String("experience_id", experience.ID.String()),
		slog.String("state", string(state)),
		slog.Float64("score", result.Score),
	)

	return experience, nil
}

// Decide ручное решение модератора, допустимо только из pending.
// Повтор того же решения возвращает текущую запись вместе с ErrAlreadyDecided.
func (s *ExperienceService) Decide(ctx context.Context, id uuid.UUID, decision string) (*models.Experience, error) {
	const op = "service.ExperienceService.Decide"
	log := s.log.With(
		slog.String("op", op),
		slog.String("experience_id", id.String()),
		slog.String("decision", decision),
	)

	target := models.ExperienceState(decision)
	if !models.StatePending.CanTransitionTo(target) {
		return nil, fmt.Errorf("%s: %w", op, models.NewValidationError(
			fmt.Sprintf("decision must be %q or %q", models.StateApproved, models.StateRejected)))
	}

	experience, applied, err := s.repo.DecideIfPending(ctx, id, target, s.now())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if applied {
		metrics.ExperienceDecisionsTotal.WithLabelValues(decision).Inc()
		log.Info("experience decided")
		return &experience, nil
	}

	if experience.State == target {
		return &experience, fmt.Errorf("%s: %w", op, models.ErrAlreadyDecided)
	}

	log.Warn("decision conflicts with current state", slog.String("state", string(experience.State)))

	return nil, fmt.Errorf("%s: %s -> %s: %w", op, experience.State, target, models.ErrInvalidTransition)
}

// IncrementView засчитывает просмотр в любом состоянии заявки
func (s *ExperienceService) IncrementView(ctx context.Context, id uuid.UUID) error {
	const op = "service.ExperienceService.IncrementView"

	exists, err := s.repo.ExperienceExists(ctx, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if !exists {
		return fmt.Errorf("%s: %w", op, models.ErrNotFound)
	}

	if s.views != nil {
		err := s.views.Increment(ctx, id)
		if err == nil {
			return nil
		}
		s.log.Warn("view buffer unavailable, writing through",
			slog.String("op", op),
			slog.String("experience_id", id.String()),
			sl.Err(err),
		)
	}

	if err := s.repo.AddViews(ctx, id, 1); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// ListApproved опубликованные впечатления, новые первыми
func (s *ExperienceService) ListApproved(ctx context.Context, filter models.ExperienceFilter) (*dto.ExperiencePage, error) {
	return s.list(ctx, "service.ExperienceService.ListApproved", models.StateApproved, filter)
}

// ListPending очередь ручной модерации
func (s *ExperienceService) ListPending(ctx context.Context, page, limit int) (*dto.ExperiencePage, error) {
	return s.list(ctx, "service.ExperienceService.ListPending", models.StatePending,
		models.ExperienceFilter{Page: page, Limit: limit})
}

func (s *ExperienceService) list(ctx context.Context, op string, state models.ExperienceState, filter models.ExperienceFilter) (*dto.ExperiencePage, error) {
	filter.Normalize()

	items, total, err := s.repo.ListByState(ctx, state, filter)
	if err != nil {
		s.log.Error("failed to list experiences", slog.String("op", op), sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &dto.ExperiencePage{
		Items: items,
		Page:  filter.Page,
		Limit: filter.Limit,
		Total: total,
	}, nil
}

// GetApproved неопубликованные впечатления снаружи не видны
func (s *ExperienceService) GetApproved(ctx context.Context, id uuid.UUID) (*models.Experience, error) {
	const op = "service.ExperienceService.GetApproved"

	experience, err := s.repo.GetExperience(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if experience.State != models.StateApproved {
		return nil, fmt.Errorf("%s: %w", op, models.ErrNotFound)
	}

	return &experience, nil
}

func (s *ExperienceService) Stats(ctx context.Context) (*models.ExperienceStats, error) {
	const op = "service.ExperienceService.Stats"

	stats, err := s.repo.Stats(ctx)
	if err != nil {
		s.log.Error("failed to collect stats", slog.String("op", op), sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &stats, nil
}
