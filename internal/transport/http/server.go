package http

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"tourism_media/internal/domain/models"
	"tourism_media/internal/lib/logger/sl"
	"tourism_media/internal/transport/http/dto"
	"tourism_media/internal/transport/http/dto/response"

	_ "tourism_media/docs"
)

type PlaceService interface {
	CreatePlace(ctx context.Context, req dto.CreatePlaceRequest) (*models.Place, error)
	GetPlace(ctx context.Context, id uuid.UUID) (*models.Place, error)
	DeletePlace(ctx context.Context, id uuid.UUID) error
	AddRating(ctx context.Context, placeID uuid.UUID, req dto.AddRatingRequest) (*models.Rating, *models.Place, error)
	ListRatings(ctx context.Context, placeID uuid.UUID, page, limit int) (*dto.RatingsPage, error)
	RecomputeRatingRollup(ctx context.Context, placeID uuid.UUID) (*models.Place, error)
}

type GalleryService interface {
	AddPhoto(ctx context.Context, placeID uuid.UUID, input dto.ImageUploadInput) (*models.Photo, error)
	AddPhotoBatch(ctx context.Context, placeID uuid.UUID, inputs []dto.ImageUploadInput) []dto.BatchResult
	ReplacePrincipal(ctx context.Context, placeID uuid.UUID, input dto.ImageUploadInput) (*models.Photo, error)
	SetPrincipal(ctx context.Context, placeID, photoID uuid.UUID) (*models.Photo, error)
	DeletePhoto(ctx context.Context, placeID, photoID uuid.UUID) error
	ListGallery(ctx context.Context, placeID uuid.UUID) ([]models.Photo, error)
	UpdateDescription(ctx context.Context, placeID, photoID uuid.UUID, text string) (*models.Photo, error)
}

type ExperienceService interface {
	Submit(ctx context.Context, input dto.SubmitExperienceInput) (*models.Experience, error)
	Decide(ctx context.Context, id uuid.UUID, decision string) (*models.Experience, error)
	IncrementView(ctx context.Context, id uuid.UUID) error
	ListApproved(ctx context.Context, filter models.ExperienceFilter) (*dto.ExperiencePage, error)
	ListPending(ctx context.Context, page, limit int) (*dto.ExperiencePage, error)
	GetApproved(ctx context.Context, id uuid.UUID) (*models.Experience, error)
	Stats(ctx context.Context) (*models.ExperienceStats, error)
}

// HealthChecker зависимость, проверяемая в /health
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

type Routers struct {
	log               *slog.Logger
	PlaceService      PlaceService
	GalleryService    GalleryService
	ExperienceService ExperienceService
	health            map[string]HealthChecker
}

func NewRouter(
	log *slog.Logger,
	placeService PlaceService,
	galleryService GalleryService,
	experienceService ExperienceService,
	health map[string]HealthChecker,
) *Routers {
	return &Routers{
		log:               log,
		PlaceService:      placeService,
		GalleryService:    galleryService,
		ExperienceService: experienceService,
		health:            health,
	}
}

// Health godoc
// @Summary Проверка состояния
// @Description Проверяет доступность базы данных и Redis
// @Tags system
// @Produce json
// @Success 200 {object} response.Response{data=map[string]string}
// @Failure 503 {object} response.Response{data=map[string]string}
// @Router /health [get]
func (r *Routers) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := make(map[string]string, len(r.health))
	for name, checker := range r.health {
		if err := checker.HealthCheck(ctx); err != nil {
			r.log.Warn("health check failed", slog.String("dependency", name), sl.Err(err))
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	resp := response.SuccessResponse(checks)
	if status != http.StatusOK {
		resp.Status = "error"
	}

	return c.JSON(status, resp)
}

// CreatePlace godoc
// @Summary Создание места
// @Tags places
// @Accept json
// @Produce json
// @Param request body dto.CreatePlaceRequest true "Данные места"
// @Success 201 {object} response.Response{data=models.Place}
// @Failure 400 {object} response.ErrorResponse "Неверный формат запроса"
// @Security BearerAuth
// @Failure 401 {object} response.ErrorResponse
// @Router /api/v1/places [post]
func (r *Routers) CreatePlace(c echo.Context) error {
	const op = "http.routers.CreatePlace"
	log := r.log.With(slog.String("op", op))

	var req dto.CreatePlaceRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, response.ErrInvalidRequestFormat)
	}
	if err := c.Validate(req); err != nil {
		log.Warn("invalid request", sl.Err(err))
		return c.JSON(http.StatusBadRequest, invalidRequest(err))
	}

	place, err := r.PlaceService.CreatePlace(c.Request().Context(), req)
	if err != nil {
		return r.fail(c, log, err)
	}

	return c.JSON(http.StatusCreated, response.SuccessResponse(place))
}

// GetPlace godoc
// @Summary Получение места
// @Tags places
// @Produce json
// @Param id path string true "ID места"
// @Success 200 {object} response.Response{data=models.Place}
// @Failure 404 {object} response.ErrorResponse "Место не найдено"
// @Router /api/v1/places/{id} [get]
func (r *Routers) GetPlace(c echo.Context) error {
	const op = "http.routers.GetPlace"
	log := r.log.With(slog.String("op", op))

	placeID, err := pathUUID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, response.ErrInvalidID)
	}

	place, err := r.PlaceService.GetPlace(c.Request().Context(), placeID)
	if err != nil {
		return r.fail(c, log, err)
	}

	return c.JSON(http.StatusOK, response.SuccessResponse(place))
}

// DeletePlace godoc
// @Summary Удаление места
// @Description Удаляет место вместе с фото и оценками. Впечатления остаются без места.
// @Tags places
// @Security BearerAuth
// @Param id path string true "ID места"
// @Success 204
// @Failure 404 {object} response.ErrorResponse "Место не найдено"
// @Router /api/v1/places/{id} [delete]
func (r *Routers) DeletePlace(c echo.Context) error {
	const op = "http.routers.DeletePlace"
	log := r.log.With(slog.String("op", op))

	placeID, err := pathUUID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, response.ErrInvalidID)
	}

	if err := r.PlaceService.DeletePlace(c.Request().Context(), placeID); err != nil {
		return r.fail(c, log, err)
	}

	return c.NoContent(http.StatusNoContent)
}

// AddRating godoc
// @Summary Оценка места
// @Description Сохраняет оценку 1..5 и пересчитывает средний рейтинг
// @Tags places
// @Accept json
// @Produce json
// @Param id path string true "ID места"
// @Param request body dto.AddRatingRequest true "Оценка"
// @Success 201 {object} response.Response{data=object{rating=models.Rating,place=models.Place}}
// @Failure 400 {object} response.ErrorResponse
// @Failure 404 {object} response.ErrorResponse
// @Router /api/v1/places/{id}/ratings [post]
func (r *Routers) AddRating(c echo.Context) error {
	const op = "http.routers.AddRating"
	log := r.log.With(slog.String("op", op))

	placeID, err := pathUUID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, response.ErrInvalidID)
	}

	var req dto.AddRatingRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, response.ErrInvalidRequestFormat)
	}
	if err := c.Validate(req); err != nil {
		return c.JSON(http.StatusBadRequest, invalidRequest(err))
	}

	rating, place, err := r.PlaceService.AddRating(c.Request().Context(), placeID, req)
	if err != nil {
		return r.fail(c, log, err)
	}

	return c.JSON(http.StatusCreated, response.SuccessResponse(map[string]interface{}{
		"rating": rating,
		"place":  place,
	}))
}

// ListRatings godoc
// @Summary Оценки места
// @Tags places
// @Produce json
// @Param id path string true "ID места"
// @Param page query int false "Номер страницы" default(1)
// @Param limit query int false "Размер страницы" default(10)
// @Success 200 {object} response.Response{data=dto.RatingsPage}
// @Failure 404 {object} response.ErrorResponse
// @Router /api/v1/places/{id}/ratings [get]
func (r *Routers) ListRatings(c echo.Context) error {
	const op = "http.routers.ListRatings"
	log := r.log.With(slog.String("op", op))

	placeID, err := pathUUID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, response.ErrInvalidID)
	}

	page, limit, err := pagination(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, invalidRequest(err))
	}

	ratings, err := r.PlaceService.ListRatings(c.Request().Context(), placeID, page, limit)
	if err != nil {
		return r.fail(c, log, err)
	}

	return c.JSON(http.StatusOK, response.SuccessResponse(ratings))
}

// RecomputeRating godoc
// @Summary Пересчет рейтинга места
// @Tags places
// @Security BearerAuth
// @Produce json
// @Param id path string true "ID места"
// @Success 200 {object} response.Response{data=models.Place}
// @Router /api/v1/places/{id}/rollup [post]
func (r *Routers) RecomputeRating(c echo.Context) error {
	const op = "http.routers.RecomputeRating"
	log := r.log.With(slog.String("op", op))

	placeID, err := pathUUID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, response.ErrInvalidID)
	}

	place, err := r.PlaceService.RecomputeRatingRollup(c.Request().Context(), placeID)
	if err != nil {
		return r.fail(c, log, err)
	}

	return c.JSON(http.StatusOK, response.SuccessResponse(place))
}

// AddPhotos godoc
// @Summary Загрузка фото в галерею места
// @Description Поле image загружает одно фото, поле images несколько. Первое фото места становится главным.
// @Tags gallery
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "ID места"
// @Param image formData file false "Фото"
// @Param images formData file false "Несколько фото"
// @Param description formData string false "Описание"
// @Param width formData int false "Ширина"
// @Param height formData int false "Высота"
// @Success 201 {object} response.Response{data=models.Photo}
// @Success 207 {object} response.Response{data=[]dto.BatchItemResponse}
// @Failure 400 {object} response.ErrorResponse
// @Failure 404 {object} response.ErrorResponse
// @Security BearerAuth
// @Failure 401 {object} response.ErrorResponse
// @Router /api/v1/places/{id}/photos [post]
func (r *Routers) AddPhotos(c echo.Context) error {
	const op = "http.routers.AddPhotos"
	log := r.log.With(slog.String("op", op))

	placeID, err := pathUUID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, response.ErrInvalidID)
	}

	form, err := c.MultipartForm()
	if err != nil {
		log.Warn("failed to parse multipart form", sl.Err(err))
		return c.JSON(http.StatusBadRequest, response.ErrInvalidRequestFormat)
	}

	if headers := form.File["images"]; len(headers) > 0 {
		inputs := make([]dto.ImageUploadInput, 0, len(headers))
		for _, fh := range headers {
			input, closer, err := dto.FromFileHeader(fh)
			if err != nil {
				log.Error("failed to open uploaded file", sl.Err(err))
				return c.JSON(http.StatusBadRequest, response.ErrInvalidRequestFormat)
			}
			defer closer.Close()
			inputs = append(inputs, input)
		}

		results := r.GalleryService.AddPhotoBatch(c.Request().Context(), placeID, inputs)

		status := http.StatusCreated
		items := make([]dto.BatchItemResponse, 0, len(results))
		for _, res := range results {
			item := dto.BatchItemResponse{Index: res.Index, Filename: res.Filename, Photo: res.Photo}
			if res.Err != nil {
				_, body := errorResponse(log.With(slog.String("filename", res.Filename)), res.Err)
				item.Error, item.Details = body.Error, body.Details
				status = http.StatusMultiStatus
			}
			items = append(items, item)
		}

		return c.JSON(status, response.SuccessResponse(items))
	}

	input, closer, errResp := r.imageFromForm(c, "image")
	if errResp != nil {
		return c.JSON(http.StatusBadRequest, errResp)
	}
	defer closer.Close()

	photo, err := r.GalleryService.AddPhoto(c.Request().Context(), placeID, input)
	if err != nil {
		return r.fail(c, log, err)
	}

	return c.JSON(http.StatusCreated, response.SuccessResponse(photo))
}

// ReplacePrincipal godoc
// @Summary Замена главного фото
// @Description Подменяет содержимое главного фото, сохраняя его id и позицию
// @Tags gallery
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "ID места"
// @Param image formData file true "Фото"
// @Param description formData string false "Описание"
// @Success 200 {object} response.Response{data=models.Photo}
// @Security BearerAuth
// @Failure 401 {object} response.ErrorResponse
// @Router /api/v1/places/{id}/photos/principal [post]
func (r *Routers) ReplacePrincipal(c echo.Context) error {
	const op = "http.routers.ReplacePrincipal"
	log := r.log.With(slog.String("op", op))

	placeID, err := pathUUID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, response.ErrInvalidID)
	}

	input, closer, errResp := r.imageFromForm(c, "image")
	if errResp != nil {
		return c.JSON(http.StatusBadRequest, errResp)
	}
	defer closer.Close()

	photo, err := r.GalleryService.ReplacePrincipal(c.Request().Context(), placeID, input)
	if err != nil {
		return r.fail(c, log, err)
	}

	return c.JSON(http.StatusOK, response.SuccessResponse(photo))
}

// SetPrincipal godoc
// @Summary Выбор главного фото
// @Tags gallery
// @Produce json
// @Param id path string true "ID места"
// @Param photo_id path string true "ID фото"
// @Success 200 {object} response.Response{data=models.Photo}
// @Failure 404 {object} response.ErrorResponse
// @Security BearerAuth
// @Failure 401 {object} response.ErrorResponse
// @Router /api/v1/places/{id}/photos/{photo_id}/principal [put]
func (r *Routers) SetPrincipal(c echo.Context) error {
	const op = "http.routers.SetPrincipal"
	log := r.log.With(slog.String("op", op))

	placeID, err := pathUUID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, response.ErrInvalidID)
	}
	photoID, err := pathUUID(c, "photo_id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, response.ErrInvalidID)
	}

	photo, err := r.GalleryService.SetPrincipal(c.Request().Context(), placeID, photoID)
	if err != nil {
		return r.fail(c, log, err)
	}

	return c.JSON(http.StatusOK, response.SuccessResponse(photo))
}

// UpdatePhotoDescription godoc
// @Summary Изменение описания фото
// @Tags gallery
// @Accept json
// @Produce json
// @Param id path string true "ID места"
// @Param photo_id path string true "ID фото"
// @Param request body dto.UpdatePhotoDescriptionRequest true "Описание, пустое очищает"
// @Success 200 {object} response.Response{data=models.Photo}
// @Failure 404 {object} response.ErrorResponse
// @Security BearerAuth
// @Failure 401 {object} response.ErrorResponse
// @Router /api/v1/places/{id}/photos/{photo_id} [patch]
func (r *Routers) UpdatePhotoDescription(c echo.Context) error {
	const op = "http.routers.UpdatePhotoDescription"
	log := r.log.With(slog.String("op", op))

	placeID, err := pathUUID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, response.ErrInvalidID)
	}
	photoID, err := pathUUID(c, "photo_id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, response.ErrInvalidID)
	}

	var req dto.UpdatePhotoDescriptionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, response.ErrInvalidRequestFormat)
	}
	if err := c.Validate(req); err != nil {
		return c.JSON(http.StatusBadRequest, invalidRequest(err))
	}

	photo, err := r.GalleryService.UpdateDescription(c.Request().Context(), placeID, photoID, req.Description)
	if err != nil {
		return r.fail(c, log, err)
	}

	return c.JSON(http.StatusOK, response.SuccessResponse(photo))
}

// DeletePhoto godoc
// @Summary Удаление фото
// @Description Если фото было главным, главным становится фото с наименьшим порядком
// @Tags gallery
// @Param id path string true "ID места"
// @Param photo_id path string true "ID фото"
// @Success 204
// @Failure 404 {object} response.ErrorResponse
// @Security BearerAuth
// @Failure 401 {object} response.ErrorResponse
// @Router /api/v1/places/{id}/photos/{photo_id} [delete]
func (r *Routers) DeletePhoto(c echo.Context) error {
	const op = "http.routers.DeletePhoto"
	log := r.log.With(slog.String("op", op))

	placeID, err := pathUUID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, response.ErrInvalidID)
	}
	photoID, err := pathUUID(c, "photo_id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, response.ErrInvalidID)
	}

	if err := r.GalleryService.DeletePhoto(c.Request().Context(), placeID, photoID); err != nil {
		return r.fail(c, log, err)
	}

	return c.NoContent(http.StatusNoContent)
}

// ListGallery godoc
// @Summary Галерея места
// @Description Главное фото первым, затем по порядку
// @Tags gallery
// @Produce json
// @Param id path string true "ID места"
// @Success 200 {object} response.Response{data=[]models.Photo}
// @Router /api/v1/places/{id}/gallery [get]
func (r *Routers) ListGallery(c echo.Context) error {
	const op = "http.routers.ListGallery"
	log := r.log.With(slog.String("op", op))

	placeID, err := pathUUID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, response.ErrInvalidID)
	}

	photos, err := r.GalleryService.ListGallery(c.Request().Context(), placeID)
	if err != nil {
		return r.fail(c, log, err)
	}

	return c.JSON(http.StatusOK, response.SuccessResponse(photos))
}

// fail переводит доменную ошибку в HTTP-ответ
func (r *Routers) fail(c echo.Context, log *slog.Logger, err error) error {
	status, body := errorResponse(log, err)
	return c.JSON(status, body)
}

// errorResponse переводит доменную ошибку в код и тело ответа, цепочка ошибок остается в логе
func errorResponse(log *slog.Logger, err error) (int, response.ErrorResponse) {
	var ve *models.ValidationError

	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest,
			response.ErrorResponseWithDetails("validation_failed", strings.Join(ve.Errors, "; "))
	case errors.Is(err, models.ErrTermsNotAccepted):
		return http.StatusBadRequest,
			response.ErrorResponseWithDetails("terms_not_accepted", "Terms of use must be accepted")
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound,
			response.ErrorResponseWithDetails("not_found", "Resource not found")
	case errors.Is(err, models.ErrInvalidTransition):
		return http.StatusConflict,
			response.ErrorResponseWithDetails("invalid_transition", "Experience is already decided differently")
	case errors.Is(err, models.ErrModerationUnavailable):
		log.Warn("moderation unavailable", sl.Err(err))
		return http.StatusServiceUnavailable,
			response.ErrorResponseWithDetails("moderation_unavailable", "Moderation service is unavailable, try again later")
	case errors.Is(err, models.ErrStorage):
		log.Error("storage failure", sl.Err(err))
		return http.StatusInternalServerError,
			response.ErrorResponseWithDetails("storage_failure", "Failed to store file")
	default:
		log.Error("request failed", sl.Err(err))
		return http.StatusInternalServerError, response.ErrInternal
	}
}

// imageFromForm читает одно фото и необязательные поля description, width, height
func (r *Routers) imageFromForm(c echo.Context, field string) (dto.ImageUploadInput, io.Closer, *response.ErrorResponse) {
	fh, err := c.FormFile(field)
	if err != nil {
		return dto.ImageUploadInput{}, nil, &response.ErrImageRequired
	}

	input, closer, err := dto.FromFileHeader(fh)
	if err != nil {
		r.log.Error("failed to open uploaded file", sl.Err(err))
		return dto.ImageUploadInput{}, nil, &response.ErrInvalidRequestFormat
	}

	input.Description = c.FormValue("description")

	for name, dst := range map[string]**int{"width": &input.Width, "height": &input.Height} {
		raw := c.FormValue(name)
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			closer.Close()
			resp := response.ErrorResponseWithDetails("invalid_request", name+" must be a positive integer")
			return dto.ImageUploadInput{}, nil, &resp
		}
		*dst = &v
	}

	return input, closer, nil
}

func pathUUID(c echo.Context, name string) (uuid.UUID, error) {
	return uuid.Parse(c.Param(name))
}

func pagination(c echo.Context) (int, int, error) {
	page, err := queryInt(c, "page")
	if err != nil {
		return 0, 0, err
	}
	limit, err := queryInt(c, "limit")
	if err != nil {
		return 0, 0, err
	}
	return page, limit, nil
}

func queryInt(c echo.Context, name string) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New(name + " must be an integer")
	}
	return v, nil
}

func invalidRequest(err error) response.ErrorResponse {
	resp := response.ErrInvalidRequestFormat
	resp.Details = err.Error()
	return resp
}
