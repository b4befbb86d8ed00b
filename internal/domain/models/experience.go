package models

import (
	"time"

	"github.com/google/uuid"
)

type ExperienceState string

const (
	StatePending  ExperienceState = "pending"
	StateApproved ExperienceState = "approved"
	StateRejected ExperienceState = "rejected"
)

// validTransitions матрица допустимых переходов, терминальные состояния без выходов
var validTransitions = map[ExperienceState]map[ExperienceState]bool{
	StatePending:  {StateApproved: true, StateRejected: true},
	StateApproved: {},
	StateRejected: {},
}

func (s ExperienceState) Valid() bool {
	_, ok := validTransitions[s]
	return ok
}

func (s ExperienceState) Terminal() bool {
	return s.Valid() && len(validTransitions[s]) == 0
}

func (s ExperienceState) CanTransitionTo(target ExperienceState) bool {
	return validTransitions[s][target]
}

// Experience фото, присланное пользователем и прошедшее (или ожидающее) модерацию
type Experience struct {
	ID                   uuid.UUID             `json:"id" db:"id"`
	PhotoURL             string                `json:"photo_url" db:"photo_url"`
	StoragePath          string                `json:"storage_path" db:"storage_path"`
	Description          *string               `json:"description,omitempty" db:"description"`
	PlaceID              *uuid.UUID            `json:"place_id,omitempty" db:"place_id"`
	State                ExperienceState       `json:"state" db:"state"`
	ModerationScore      float64               `json:"moderation_score" db:"moderation_score"`
	ModerationCategories *ModerationCategories `json:"moderation_categories,omitempty" db:"moderation_categories"`
	TextFlags            []string              `json:"text_flags,omitempty" db:"text_flags"`
	ViewCount            int64                 `json:"view_count" db:"view_count"`
	CreatedAt            time.Time             `json:"created_at" db:"created_at"`
	DecidedAt            *time.Time            `json:"decided_at,omitempty" db:"decided_at"`
}

// PlaceKnown false, если место не указано или было удалено
func (e Experience) PlaceKnown() bool {
	return e.PlaceID != nil
}

// ExperienceFilter параметры выборки опубликованных впечатлений
type ExperienceFilter struct {
	PlaceID *uuid.UUID
	Page    int
	Limit   int
}

const (
	DefaultPageLimit = 10
	MaxPageLimit     = 100
)

// Normalize приводит параметры пагинации к допустимым значениям
func (f *ExperienceFilter) Normalize() {
	f.Page, f.Limit = NormalizePage(f.Page, f.Limit)
}

func NormalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > MaxPageLimit {
		limit = DefaultPageLimit
	}
	return page, limit
}

func (f ExperienceFilter) Offset() int {
	return (f.Page - 1) * f.Limit
}

type ExperienceStats struct {
	CountsByState map[ExperienceState]int64 `json:"counts_by_state"`
	TotalViews    int64                     `json:"total_views"`
}
