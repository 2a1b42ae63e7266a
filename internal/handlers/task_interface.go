package handlers

import (
	"context"
	"io"

	"memo/internal/models/task"
	"memo/internal/models/user"
	"memo/internal/reminder"
	"memo/internal/service"
)

type TaskService interface {
	HealthCheck(ctx context.Context) error
	CreateTask(ctx context.Context, userID string, options ...task.TaskOption) (*task.Task, error)
	GetTask(ctx context.Context, userID, id string) (*task.Task, error)
	ListTasks(ctx context.Context, userID string, filter task.Filter) ([]*task.Task, error)
	SearchTasks(ctx context.Context, userID, query string, page, limit int) ([]*task.Task, error)
	UpdateTask(ctx context.Context, userID, id string, expectedVersion int, options ...task.TaskOption) (*task.Task, error)
	SetCompleted(ctx context.Context, userID, id string, completed bool) (*task.Task, error)
	DeleteTask(ctx context.Context, userID, id string) error
	ListCategories(ctx context.Context, userID string) ([]string, error)
	ListTags(ctx context.Context, userID string) ([]string, error)
	AddAttachment(ctx context.Context, userID, taskID, name, contentType string, content io.Reader) (*task.Attachment, error)
	OpenAttachment(ctx context.Context, userID, taskID, attachmentID string) (*task.Attachment, io.ReadCloser, error)
	RemoveAttachment(ctx context.Context, userID, taskID, attachmentID string) error
}

type AuthService interface {
	SignUp(ctx context.Context, email, password, displayName string) (*service.Session, error)
	SignIn(ctx context.Context, email, password string) (*service.Session, error)
	SignInWithIDToken(ctx context.Context, idToken string) (*service.Session, error)
	Profile(ctx context.Context, userID string) (*user.User, error)
	LinkTelegram(ctx context.Context, userID string, chatID int64) error
}

type NotificationCenter interface {
	List(userID string) []reminder.Notification
	Handle(ctx context.Context, userID, taskID string, action reminder.Action) error
	Dismiss(ctx context.Context, userID, taskID string) error
}

type ReminderSync interface {
	Check(ctx context.Context) (reminder.CycleResult, error)
}
