package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"memo/internal/logger"
	"memo/internal/models/task"
	repo "memo/internal/repository"
	"memo/internal/storage"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	maxTitleLength   = 255
	defaultPageLimit = 50
	maxPageLimit     = 200
	maxMergeAttempts = 3
)

// здесь происходит проверка ошибок бизнес-логики

type TaskService struct {
	repo      TaskRepository
	blobs     BlobStorage
	hooks     ReminderHooks
	maxUpload int64
}

type Option func(*TaskService)

func WithBlobStorage(blobs BlobStorage, maxUpload int64) Option {
	return func(s *TaskService) {
		s.blobs = blobs
		s.maxUpload = maxUpload
	}
}

func WithReminderHooks(hooks ReminderHooks) Option {
	return func(s *TaskService) {
		if hooks != nil {
			s.hooks = hooks
		}
	}
}

func NewTaskService(repo TaskRepository, opts ...Option) *TaskService {
	s := &TaskService{
		repo:  repo,
		hooks: noopHooks{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *TaskService) HealthCheck(ctx context.Context) error {
	if err := s.repo.HealthCheck(ctx); err != nil {
		return fmt.Errorf("проверка здоровья сервиса: %w", err)
	}
	return nil
}

func (s *TaskService) CreateTask(ctx context.Context, userID string, options ...task.TaskOption) (*task.Task, error) {
	newTask := &task.Task{UserID: userID}
	for _, opt := range options {
		opt(newTask)
	}

	if err := validateTask(newTask); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, newTask); err != nil {
		if errors.Is(err, repo.ErrAlreadyExists) {
			return nil, NewBusinessError(CodeAlreadyExists, "задача уже существует", ToDetail("id", newTask.ID))
		}
		return nil, fmt.Errorf("создание задачи: %w", err)
	}

	logger.Info("Service: Задача создана",
		zap.String("task_id", newTask.ID),
		zap.String("user_id", userID))

	s.hooks.TaskChanged(ctx, newTask)
	return newTask, nil
}

func (s *TaskService) GetTask(ctx context.Context, userID, id string) (*task.Task, error) {
	t, err := s.repo.GetByID(ctx, userID, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			logger.Info("Service: Задача не найдена", zap.String("target_id", id))
			return nil, NewNotFound("задача", id)
		}
		return nil, fmt.Errorf("получение задачи: %w", err)
	}
	return t, nil
}

func (s *TaskService) ListTasks(ctx context.Context, userID string, filter task.Filter) ([]*task.Task, error) {
	if filter.Page < 0 {
		return nil, NewValidationError("page", "не может быть отрицательным")
	}
	if filter.Limit < 0 || filter.Limit > maxPageLimit {
		return nil, NewValidationError("limit", fmt.Sprintf("допустимо от 1 до %d", maxPageLimit))
	}
	if filter.Limit == 0 {
		filter.Limit = defaultPageLimit
	}
	if filter.Page == 0 {
		filter.Page = 1
	}

	tasks, err := s.repo.List(ctx, userID, filter)
	if err != nil {
		return nil, fmt.Errorf("получение задач: %w", err)
	}
	return tasks, nil
}

// SearchTasks ищет подстроку в названии, описании и тегах.
func (s *TaskService) SearchTasks(ctx context.Context, userID, query string, page, limit int) ([]*task.Task, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, NewValidationError("q", "пустой поисковый запрос")
	}
	return s.ListTasks(ctx, userID, task.Filter{Query: query, Page: page, Limit: limit})
}

// UpdateTask меняет только переданные поля. expectedVersion == 0 означает
// слияние с последней версией: при конфликте задача перечитывается.
func (s *TaskService) UpdateTask(ctx context.Context, userID, id string, expectedVersion int, options ...task.TaskOption) (*task.Task, error) {
	updated, err := s.mutate(ctx, userID, id, expectedVersion, func(t *task.Task) error {
		for _, opt := range options {
			opt(t)
		}
		return validateTask(t)
	})
	if err != nil {
		return nil, err
	}

	logger.Info("Service: Задача обновлена",
		zap.String("task_id", id),
		zap.Int("version", updated.Version))

	s.hooks.TaskChanged(ctx, updated)
	return updated, nil
}

func (s *TaskService) SetCompleted(ctx context.Context, userID, id string, completed bool) (*task.Task, error) {
	updated, err := s.repo.SetCompleted(ctx, userID, id, completed)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, NewNotFound("задача", id)
		}
		return nil, fmt.Errorf("изменение статуса задачи: %w", err)
	}

	logger.Info("Service: Статус задачи изменён",
		zap.String("task_id", id),
		zap.Bool("completed", completed))

	s.hooks.TaskChanged(ctx, updated)
	return updated, nil
}

// DeleteTask удаляет задачу; объекты вложений удаляются без гарантий.
func (s *TaskService) DeleteTask(ctx context.Context, userID, id string) error {
	existing, err := s.GetTask(ctx, userID, id)
	if err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, userID, id); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return NewNotFound("задача", id)
		}
		return fmt.Errorf("удаление задачи: %w", err)
	}

	for _, att := range existing.Attachments {
		s.deleteBlob(ctx, att.Path)
	}

	logger.Info("Service: Задача удалена", zap.String("task_id", id))

	s.hooks.TaskRemoved(ctx, id)
	return nil
}

func (s *TaskService) ListCategories(ctx context.Context, userID string) ([]string, error) {
	categories, err := s.repo.ListCategories(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("получение категорий: %w", err)
	}
	return categories, nil
}

func (s *TaskService) ListTags(ctx context.Context, userID string) ([]string, error) {
	tags, err := s.repo.ListTags(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("получение тегов: %w", err)
	}
	return tags, nil
}

func (s *TaskService) AddAttachment(ctx context.Context, userID, taskID, name, contentType string, content io.Reader) (*task.Attachment, error) {
	if s.blobs == nil {
		return nil, errors.New("хранилище вложений не настроено")
	}
	if strings.TrimSpace(name) == "" {
		return nil, NewValidationError("file", "не указано имя файла")
	}

	// задача должна существовать до загрузки содержимого
	if _, err := s.GetTask(ctx, userID, taskID); err != nil {
		return nil, err
	}

	att := task.Attachment{
		ID:          uuid.NewString(),
		Name:        name,
		Path:        storage.AttachmentPath(userID, taskID, name),
		ContentType: contentType,
	}
	att.URL = fmt.Sprintf("/tasks/%s/attachments/%s", taskID, att.ID)

	size, err := s.blobs.Put(ctx, att.Path, content, s.maxUpload)
	if err != nil {
		if errors.Is(err, storage.ErrTooLarge) {
			return nil, NewBusinessError(CodeTooLarge,
				fmt.Sprintf("файл больше %d байт", s.maxUpload),
				ToDetail("limit", s.maxUpload))
		}
		return nil, fmt.Errorf("сохранение вложения: %w", err)
	}
	att.Size = size

	updated, err := s.mutate(ctx, userID, taskID, 0, func(t *task.Task) error {
		if t.Attachments == nil {
			t.Attachments = map[string]task.Attachment{}
		}
		t.Attachments[att.ID] = att
		return nil
	})
	if err != nil {
		s.deleteBlob(ctx, att.Path)
		return nil, err
	}

	logger.Info("Service: Вложение добавлено",
		zap.String("task_id", taskID),
		zap.String("attachment_id", att.ID),
		zap.Int64("size", size))

	s.hooks.TaskChanged(ctx, updated)
	return &att, nil
}

func (s *TaskService) OpenAttachment(ctx context.Context, userID, taskID, attachmentID string) (*task.Attachment, io.ReadCloser, error) {
	if s.blobs == nil {
		return nil, nil, errors.New("хранилище вложений не настроено")
	}

	t, err := s.GetTask(ctx, userID, taskID)
	if err != nil {
		return nil, nil, err
	}

	att, ok := t.Attachments[attachmentID]
	if !ok {
		return nil, nil, NewNotFound("вложение", attachmentID)
	}

	rc, err := s.blobs.Open(ctx, att.Path)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil, NewNotFound("вложение", attachmentID)
		}
		return nil, nil, fmt.Errorf("чтение вложения: %w", err)
	}
	return &att, rc, nil
}

func (s *TaskService) RemoveAttachment(ctx context.Context, userID, taskID, attachmentID string) error {
	var removed task.Attachment
	updated, err := s.mutate(ctx, userID, taskID, 0, func(t *task.Task) error {
		att, ok := t.Attachments[attachmentID]
		if !ok {
			return NewNotFound("вложение", attachmentID)
		}
		removed = att
		delete(t.Attachments, attachmentID)
		return nil
	})
	if err != nil {
		return err
	}

	s.deleteBlob(ctx, removed.Path)
	s.hooks.TaskChanged(ctx, updated)
	return nil
}

// mutate перечитывает задачу и повторяет изменение при конфликте версий,
// если вызывающий не требует конкретную версию.
func (s *TaskService) mutate(ctx context.Context, userID, id string, expectedVersion int, change func(*task.Task) error) (*task.Task, error) {
	for attempt := 1; ; attempt++ {
		t, err := s.GetTask(ctx, userID, id)
		if err != nil {
			return nil, err
		}
		if expectedVersion > 0 && t.Version != expectedVersion {
			return nil, NewVersionConflict("задача", id, repo.ErrVersionConflict)
		}

		if err := change(t); err != nil {
			return nil, err
		}

		err = s.repo.Update(ctx, t)
		switch {
		case err == nil:
			return t, nil
		case errors.Is(err, repo.ErrNotFound):
			return nil, NewNotFound("задача", id)
		case errors.Is(err, repo.ErrVersionConflict):
			if expectedVersion > 0 || attempt >= maxMergeAttempts {
				return nil, NewVersionConflict("задача", id, err)
			}
			logger.Debug("Service: Конфликт версий, повтор слияния",
				zap.String("task_id", id),
				zap.Int("attempt", attempt))
		default:
			return nil, fmt.Errorf("обновление задачи: %w", err)
		}
	}
}

func (s *TaskService) deleteBlob(ctx context.Context, path string) {
	if s.blobs == nil || path == "" {
		return
	}
	if err := s.blobs.Delete(ctx, path); err != nil && !errors.Is(err, storage.ErrNotFound) {
		logger.Warn("Service: Не удалось удалить объект вложения",
			zap.String("path", path),
			zap.Error(err))
	}
}

func validateTask(t *task.Task) error {
	t.Title = strings.TrimSpace(t.Title)
	if t.Title == "" {
		return NewValidationError("title", "название не может быть пустым")
	}
	if utf8.RuneCountInString(t.Title) > maxTitleLength {
		return NewValidationError("title", fmt.Sprintf("не длиннее %d символов", maxTitleLength))
	}
	if !t.Priority.Valid() {
		return NewValidationError("priority", "допустимо от 0 до 3")
	}
	return nil
}
