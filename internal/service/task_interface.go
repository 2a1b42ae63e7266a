package service

import (
	"context"
	"io"
	"time"

	"memo/internal/models/task"
	"memo/internal/models/user"
)

type TaskRepository interface {
	HealthCheck(context.Context) error
	Create(context.Context, *task.Task) error
	GetByID(ctx context.Context, userID, id string) (*task.Task, error)
	List(ctx context.Context, userID string, filter task.Filter) ([]*task.Task, error)
	Update(context.Context, *task.Task) error
	SetCompleted(ctx context.Context, userID, id string, completed bool) (*task.Task, error)
	Delete(ctx context.Context, userID, id string) error
	ListDueBetween(ctx context.Context, from, to time.Time, limit int) ([]*task.Task, error)
	ListCategories(ctx context.Context, userID string) ([]string, error)
	ListTags(ctx context.Context, userID string) ([]string, error)
}

type UserRepository interface {
	Create(context.Context, *user.User) error
	GetByID(ctx context.Context, id string) (*user.User, error)
	GetByEmail(ctx context.Context, email string) (*user.User, error)
	SetTelegramChatID(ctx context.Context, id string, chatID int64) error
}

// BlobStorage хранит содержимое вложений.
type BlobStorage interface {
	Put(ctx context.Context, path string, r io.Reader, limit int64) (int64, error)
	Open(ctx context.Context, path string) (io.ReadCloser, error)
	Delete(ctx context.Context, path string) error
}

// ReminderHooks получает уведомления о каждой мутации задачи, чтобы
// перевзвести или отменить будильник и убрать показанное уведомление.
type ReminderHooks interface {
	TaskChanged(ctx context.Context, t *task.Task)
	TaskRemoved(ctx context.Context, taskID string)
}

type noopHooks struct{}

func (noopHooks) TaskChanged(context.Context, *task.Task) {}
func (noopHooks) TaskRemoved(context.Context, string)     {}
