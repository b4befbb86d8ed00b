package models

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrValidation            = errors.New("validation failed")
	ErrNotFound              = errors.New("not found")
	ErrInvalidTransition     = errors.New("invalid state transition")
	ErrAlreadyDecided        = errors.New("experience already decided")
	ErrTermsNotAccepted      = errors.New("terms not accepted")
	ErrStorage               = errors.New("storage failure")
	ErrModerationUnavailable = errors.New("moderation unavailable")
)

// ValidationError собирает все нарушения входных данных в одну ошибку
type ValidationError struct {
	Errors []string
}

func NewValidationError(errs ...string) *ValidationError {
	return &ValidationError{Errors: errs}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", ErrValidation, strings.Join(e.Errors, "; "))
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// IsValidationError проверяет, является ли ошибка ошибкой валидации
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// StorageError оборачивает ошибку блоб-хранилища, сохраняя исходную причину
func StorageError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStorage, err)
}
