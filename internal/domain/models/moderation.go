package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// ModerationCategories оценки по категориям контента, каждая в [0,1]
type ModerationCategories struct {
	Adult      float64 `json:"adult"`
	Violence   float64 `json:"violence"`
	Suggestive float64 `json:"suggestive"`
}

// ModerationResult ответ внешнего модератора
type ModerationResult struct {
	Score      float64              `json:"score"`
	Categories ModerationCategories `json:"categories"`
	TextFlags  []string             `json:"text_flags,omitempty"`
}

// Validate проверяет, что все оценки лежат в [0,1]
func (r ModerationResult) Validate() error {
	values := map[string]float64{
		"score":      r.Score,
		"adult":      r.Categories.Adult,
		"violence":   r.Categories.Violence,
		"suggestive": r.Categories.Suggestive,
	}
	for name, v := range values {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s out of range: %v", name, v)
		}
	}
	return nil
}

// ModerationPolicy пороги автоматической модерации
type ModerationPolicy struct {
	AutoApproveThreshold float64
	AutoRejectThreshold  float64
	PerCategoryThreshold float64
}

// Decide выводит начальное состояние заявки из оценок модератора
func (p ModerationPolicy) Decide(r ModerationResult) ExperienceState {
	if r.Score >= p.AutoRejectThreshold || p.categoryExceeded(r.Categories) {
		return StateRejected
	}
	if r.Score <= p.AutoApproveThreshold {
		return StateApproved
	}
	return StatePending
}

func (p ModerationPolicy) categoryExceeded(c ModerationCategories) bool {
	return c.Adult > p.PerCategoryThreshold ||
		c.Violence > p.PerCategoryThreshold ||
		c.Suggestive > p.PerCategoryThreshold
}

// Validate проверяет согласованность порогов
func (p ModerationPolicy) Validate() error {
	var errs []string
	for name, v := range map[string]float64{
		"auto_approve_threshold": p.AutoApproveThreshold,
		"auto_reject_threshold":  p.AutoRejectThreshold,
		"per_category_threshold": p.PerCategoryThreshold,
	} {
		if v < 0 || v > 1 {
			errs = append(errs, fmt.Sprintf("%s must be within [0,1]", name))
		}
	}
	if p.AutoApproveThreshold >= p.AutoRejectThreshold {
		errs = append(errs, "auto_approve_threshold must be below auto_reject_threshold")
	}
	if len(errs) > 0 {
		return NewValidationError(errs...)
	}
	return nil
}

// Value реализует driver.Valuer для записи в JSONB
func (c ModerationCategories) Value() (driver.Value, error) {
	return json.Marshal(c)
}

// Scan реализует sql.Scanner для чтения из JSONB
func (c *ModerationCategories) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*c = ModerationCategories{}
		return nil
	case []byte:
		return json.Unmarshal(v, c)
	case string:
		return json.Unmarshal([]byte(v), c)
	default:
		return fmt.Errorf("unsupported moderation categories type %T", value)
	}
}
