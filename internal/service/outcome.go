package service

import (
	"context"
	"errors"

	repo "memo/internal/repository"
	"memo/internal/storage"
)

// Outcome - тег результата любой операции сервиса.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	// OutcomeFailure - отказ по правилам предметной области
	OutcomeFailure
	OutcomeCancelled
	// OutcomeError - непредвиденная ошибка
	OutcomeError
	OutcomeInvalid
	OutcomeNotFound
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailure:
		return "failure"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeError:
		return "error"
	case OutcomeInvalid:
		return "invalid"
	case OutcomeNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

func Classify(err error) Outcome {
	if err == nil {
		return OutcomeSuccess
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return OutcomeCancelled
	}

	if busErr, ok := AsBusinessError(err); ok {
		switch busErr.Code {
		case CodeNotFound:
			return OutcomeNotFound
		case CodeValidation, CodeTooLarge:
			return OutcomeInvalid
		default:
			return OutcomeFailure
		}
	}

	switch {
	case errors.Is(err, repo.ErrNotFound), errors.Is(err, storage.ErrNotFound):
		return OutcomeNotFound
	case errors.Is(err, repo.ErrVersionConflict), errors.Is(err, repo.ErrAlreadyExists):
		return OutcomeFailure
	case errors.Is(err, storage.ErrTooLarge), errors.Is(err, storage.ErrBadPath):
		return OutcomeInvalid
	}

	return OutcomeError
}

// StatusMessage - строка для пользователя; внутренние подробности не раскрываются.
func StatusMessage(err error) string {
	if busErr, ok := AsBusinessError(err); ok {
		return busErr.Message
	}

	switch Classify(err) {
	case OutcomeSuccess:
		return "Готово"
	case OutcomeCancelled:
		return "Операция отменена"
	case OutcomeNotFound:
		return "Не найдено"
	case OutcomeInvalid:
		return "Неверные данные"
	case OutcomeFailure:
		return "Операция отклонена"
	default:
		return "Внутренняя ошибка, попробуйте позже"
	}
}
