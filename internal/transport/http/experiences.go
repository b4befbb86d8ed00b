package http

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo-contrib/session"
	"github.com/labstack/echo/v4"

	"tourism_media/internal/domain/models"
	"tourism_media/internal/lib/logger/sl"
	"tourism_media/internal/transport/http/dto"
	"tourism_media/internal/transport/http/dto/response"
)

const (
	sessionName       = "session"
	termsAcceptedKey  = "terms_accepted"
	termsFormField    = "accept_terms"
	experienceIDParam = "id"
)

// AcceptTerms godoc
// @Summary Принятие условий публикации
// @Description Сохраняет согласие с условиями в сессии, после чего можно отправлять фото без поля accept_terms
// @Tags experiences
// @Produce json
// @Success 200 {object} response.Response
// @Router /api/v1/experiences/terms [post]
func (r *Routers) AcceptTerms(c echo.Context) error {
	const op = "http.routers.AcceptTerms"
	log := r.log.With(slog.String("op", op))

	sess, err := session.Get(sessionName, c)
	if err != nil {
		log.Error("failed to get session", sl.Err(err))
		return c.JSON(http.StatusInternalServerError, response.ErrInternal)
	}

	sess.Values[termsAcceptedKey] = true
	if err := sess.Save(c.Request(), c.Response()); err != nil {
		log.Error("failed to save session", sl.Err(err))
		return c.JSON(http.StatusInternalServerError, response.ErrInternal)
	}

	return c.JSON(http.StatusOK, response.Response{
		Status:  "success",
		Message: "terms accepted",
	})
}

// SubmitExperience godoc
// @Summary Отправка фото впечатления
// @Description Фото оценивается модератором. В зависимости от оценки заявка публикуется, отклоняется или ждет ручной проверки.
// @Tags experiences
// @Accept multipart/form-data
// @Produce json
// @Param image formData file true "Фото"
// @Param description formData string false "Описание"
// @Param place_id formData string false "ID места"
// @Param accept_terms formData bool false "Согласие с условиями, если оно не сохранено в сессии"
// @Success 201 {object} response.Response{data=models.Experience}
// @Failure 400 {object} response.ErrorResponse "Неверные данные или не приняты условия"
// @Failure 404 {object} response.ErrorResponse "Место не найдено"
// @Failure 503 {object} response.ErrorResponse "Модерация недоступна"
// @Router /api/v1/experiences [post]
func (r *Routers) SubmitExperience(c echo.Context) error {
	const op = "http.routers.SubmitExperience"
	log := r.log.With(slog.String("op", op))

	var placeID *uuid.UUID
	if raw := c.FormValue("place_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return c.JSON(http.StatusBadRequest, response.ErrInvalidID)
		}
		placeID = &id
	}

	image, closer, errResp := r.imageFromForm(c, "image")
	if errResp != nil {
		return c.JSON(http.StatusBadRequest, errResp)
	}
	defer closer.Close()

	input := dto.SubmitExperienceInput{
		Image:         image,
		Description:   image.Description,
		PlaceID:       placeID,
		TermsAccepted: termsAccepted(c),
	}

	experience, err := r.ExperienceService.Submit(c.Request().Context(), input)
	if err != nil {
		return r.fail(c, log, err)
	}

	log.Info("experience submitted",
		slog.String("experience_id", experience.ID.String()),
		slog.String("state", string(experience.State)),
	)

	return c.JSON(http.StatusCreated, response.SuccessResponse(experience))
}

// ListExperiences godoc
// @Summary Опубликованные впечатления
// @Description Только одобренные, новые первыми
// @Tags experiences
// @Produce json
// @Param page query int false "Номер страницы" default(1)
// @Param limit query int false "Размер страницы, не больше 100" default(10)
// @Param place_id query string false "ID места"
// @Success 200 {object} response.Response{data=dto.ExperiencePage}
// @Router /api/v1/experiences [get]
func (r *Routers) ListExperiences(c echo.Context) error {
	const op = "http.routers.ListExperiences"
	log := r.log.With(slog.String("op", op))

	page, limit, err := pagination(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, invalidRequest(err))
	}

	filter := models.ExperienceFilter{Page: page, Limit: limit}
	if raw := c.QueryParam("place_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return c.JSON(http.StatusBadRequest, response.ErrInvalidID)
		}
		filter.PlaceID = &id
	}

	result, err := r.ExperienceService.ListApproved(c.Request().Context(), filter)
	if err != nil {
		return r.fail(c, log, err)
	}

	return c.JSON(http.StatusOK, response.SuccessResponse(result))
}

// GetExperience godoc
// @Summary Опубликованное впечатление
// @Tags experiences
// @Produce json
// @Param id path string true "ID впечатления"
// @Success 200 {object} response.Response{data=models.Experience}
// @Failure 404 {object} response.ErrorResponse
// @Router /api/v1/experiences/{id} [get]
func (r *Routers) GetExperience(c echo.Context) error {
	const op = "http.routers.GetExperience"
	log := r.log.With(slog.String("op", op))

	id, err := pathUUID(c, experienceIDParam)
	if err != nil {
		return c.JSON(http.StatusBadRequest, response.ErrInvalidID)
	}

	experience, err := r.ExperienceService.GetApproved(c.Request().Context(), id)
	if err != nil {
		return r.fail(c, log, err)
	}

	return c.JSON(http.StatusOK, response.SuccessResponse(experience))
}

// IncrementView godoc
// @Summary Учет просмотра
// @Tags experiences
// @Param id path string true "ID впечатления"
// @Success 204
// @Failure 404 {object} response.ErrorResponse
// @Router /api/v1/experiences/{id}/view [post]
func (r *Routers) IncrementView(c echo.Context) error {
	const op = "http.routers.IncrementView"
	log := r.log.With(slog.String("op", op))

	id, err := pathUUID(c, experienceIDParam)
	if err != nil {
		return c.JSON(http.StatusBadRequest, response.ErrInvalidID)
	}

	if err := r.ExperienceService.IncrementView(c.Request().Context(), id); err != nil {
		return r.fail(c, log, err)
	}

	return c.NoContent(http.StatusNoContent)
}

// ListPending godoc
// @Summary Очередь ручной модерации
// @Tags moderation
// @Security BearerAuth
// @Produce json
// @Param page query int false "Номер страницы" default(1)
// @Param limit query int false "Размер страницы" default(10)
// @Success 200 {object} response.Response{data=dto.ExperiencePage}
// @Router /api/v1/experiences/pending [get]
func (r *Routers) ListPending(c echo.Context) error {
	const op = "http.routers.ListPending"
	log := r.log.With(slog.String("op", op))

	page, limit, err := pagination(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, invalidRequest(err))
	}

	result, err := r.ExperienceService.ListPending(c.Request().Context(), page, limit)
	if err != nil {
		return r.fail(c, log, err)
	}

	return c.JSON(http.StatusOK, response.SuccessResponse(result))
}

// DecideExperience godoc
// @Summary Решение модератора
// @Description Переводит заявку из pending в approved или rejected. Повтор того же решения возвращает already_decided=true.
// @Tags moderation
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "ID впечатления"
// @Param request body dto.DecisionRequest true "approved или rejected"
// @Success 200 {object} response.Response{data=dto.DecisionResponse}
// @Failure 400 {object} response.ErrorResponse
// @Failure 404 {object} response.ErrorResponse
// @Failure 409 {object} response.ErrorResponse "Заявка уже решена иначе"
// @Router /api/v1/experiences/{id}/decision [post]
func (r *Routers) DecideExperience(c echo.Context) error {
	const op = "http.routers.DecideExperience"
	log := r.log.With(slog.String("op", op))

	id, err := pathUUID(c, experienceIDParam)
	if err != nil {
		return c.JSON(http.StatusBadRequest, response.ErrInvalidID)
	}

	var req dto.DecisionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, response.ErrInvalidRequestFormat)
	}
	if err := c.Validate(req); err != nil {
		return c.JSON(http.StatusBadRequest, invalidRequest(err))
	}

	experience, err := r.ExperienceService.Decide(c.Request().Context(), id, req.Decision)
	if errors.Is(err, models.ErrAlreadyDecided) && experience != nil {
		return c.JSON(http.StatusOK, response.SuccessResponse(dto.DecisionResponse{
			Experience:     *experience,
			AlreadyDecided: true,
		}))
	}
	if err != nil {
		return r.fail(c, log, err)
	}

	log.Info("experience decided",
		slog.String("experience_id", id.String()),
		slog.String("decision", req.Decision),
	)

	return c.JSON(http.StatusOK, response.SuccessResponse(dto.DecisionResponse{Experience: *experience}))
}

// ExperienceStats godoc
// @Summary Статистика впечатлений
// @Tags moderation
// @Security BearerAuth
// @Produce json
// @Success 200 {object} response.Response{data=models.ExperienceStats}
// @Router /api/v1/experiences/stats [get]
func (r *Routers) ExperienceStats(c echo.Context) error {
	const op = "http.routers.ExperienceStats"
	log := r.log.With(slog.String("op", op))

	stats, err := r.ExperienceService.Stats(c.Request().Context())
	if err != nil {
		return r.fail(c, log, err)
	}

	return c.JSON(http.StatusOK, response.SuccessResponse(stats))
}

// termsAccepted согласие берется из поля формы или из сессии
func termsAccepted(c echo.Context) bool {
	if raw := c.FormValue(termsFormField); raw != "" {
		if ok, err := strconv.ParseBool(raw); err == nil && ok {
			return true
		}
	}

	sess, err := session.Get(sessionName, c)
	if err != nil {
		return false
	}
	accepted, _ := sess.Values[termsAcceptedKey].(bool)

	return accepted
}
