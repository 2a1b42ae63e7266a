package dto

import (
	"time"

	"memo/internal/models/task"
	"memo/internal/models/user"
	"memo/internal/reminder"
	"memo/internal/service"
)

type CreateTaskRequest struct {
	Title       string     `json:"title" validate:"required,max=255"`
	Description string     `json:"description" validate:"max=10000"`
	DueAt       *time.Time `json:"due_at"`
	Priority    int        `json:"priority" validate:"min=0,max=3"`
	Category    string     `json:"category" validate:"max=100"`
	Tags        []string   `json:"tags" validate:"max=20,dive,max=50"`
}

func (r CreateTaskRequest) Options() []task.TaskOption {
	return []task.TaskOption{
		task.WithTitle(r.Title),
		task.WithDescription(r.Description),
		task.WithDueAt(r.DueAt),
		task.WithPriority(task.Priority(r.Priority)),
		task.WithCategory(r.Category),
		task.WithTags(r.Tags),
	}
}

// UpdateTaskRequest - частичное обновление: переданы только меняющиеся поля.
type UpdateTaskRequest struct {
	Version     int        `json:"version" validate:"min=0"`
	Title       *string    `json:"title,omitempty" validate:"omitempty,min=1,max=255"`
	Description *string    `json:"description,omitempty" validate:"omitempty,max=10000"`
	DueAt       *time.Time `json:"due_at,omitempty"`
	ClearDue    bool       `json:"clear_due,omitempty"`
	Priority    *int       `json:"priority,omitempty" validate:"omitempty,min=0,max=3"`
	Category    *string    `json:"category,omitempty" validate:"omitempty,max=100"`
	Tags        []string   `json:"tags,omitempty" validate:"omitempty,max=20,dive,max=50"`
	Completed   *bool      `json:"completed,omitempty"`
}

func (r UpdateTaskRequest) Options() []task.TaskOption {
	var opts []task.TaskOption
	if r.Title != nil {
		opts = append(opts, task.WithTitle(*r.Title))
	}
	if r.Description != nil {
		opts = append(opts, task.WithDescription(*r.Description))
	}
	switch {
	case r.ClearDue:
		opts = append(opts, task.WithDueAt(nil))
	case r.DueAt != nil:
		opts = append(opts, task.WithDueAt(r.DueAt))
	}
	if r.Priority != nil {
		opts = append(opts, task.WithPriority(task.Priority(*r.Priority)))
	}
	if r.Category != nil {
		opts = append(opts, task.WithCategory(*r.Category))
	}
	if r.Tags != nil {
		opts = append(opts, task.WithTags(r.Tags))
	}
	if r.Completed != nil {
		opts = append(opts, task.WithCompleted(*r.Completed))
	}
	return opts
}

type AttachmentResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	URL         string `json:"url"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type,omitempty"`
}

type TaskResponse struct {
	ID          string               `json:"id"`
	Title       string               `json:"title"`
	Description string               `json:"description,omitempty"`
	DueAt       *time.Time           `json:"due_at,omitempty"`
	Priority    int                  `json:"priority"`
	Category    string               `json:"category,omitempty"`
	Tags        []string             `json:"tags"`
	Completed   bool                 `json:"completed"`
	Attachments []AttachmentResponse `json:"attachments"`
	CreatedAt   time.Time            `json:"created_at"`
	UpdatedAt   *time.Time           `json:"updated_at,omitempty"`
	Version     int                  `json:"version"`
	IsOverdue   bool                 `json:"is_overdue"`
}

func FromAttachment(a task.Attachment) AttachmentResponse {
	return AttachmentResponse{
		ID:          a.ID,
		Name:        a.Name,
		URL:         a.URL,
		Size:        a.Size,
		ContentType: a.ContentType,
	}
}

func FromTask(t *task.Task, now time.Time) TaskResponse {
	tags := t.Tags
	if tags == nil {
		tags = []string{}
	}
	attachments := make([]AttachmentResponse, 0, len(t.Attachments))
	for _, a := range t.Attachments {
		attachments = append(attachments, FromAttachment(a))
	}

	return TaskResponse{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		DueAt:       t.DueAt,
		Priority:    int(t.Priority),
		Category:    t.Category,
		Tags:        tags,
		Completed:   t.Completed,
		Attachments: attachments,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
		Version:     t.Version,
		IsOverdue:   !t.Completed && t.DueAt != nil && t.DueAt.Before(now),
	}
}

func FromTaskList(tasks []*task.Task, now time.Time) []TaskResponse {
	result := make([]TaskResponse, len(tasks))
	for i, t := range tasks {
		result[i] = FromTask(t, now)
	}
	return result
}

type SignUpRequest struct {
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required,min=8,max=72"`
	DisplayName string `json:"display_name" validate:"max=100"`
}

type SignInRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type FederatedSignInRequest struct {
	IDToken string `json:"id_token" validate:"required"`
}

type LinkTelegramRequest struct {
	ChatID int64 `json:"chat_id" validate:"min=0"`
}

type UserResponse struct {
	ID             string `json:"id"`
	DisplayName    string `json:"display_name"`
	Email          string `json:"email"`
	PhotoURL       string `json:"photo_url,omitempty"`
	Provider       string `json:"provider"`
	TelegramLinked bool   `json:"telegram_linked"`
}

func FromUser(u *user.User) UserResponse {
	return UserResponse{
		ID:             u.ID,
		DisplayName:    u.DisplayName,
		Email:          u.Email,
		PhotoURL:       u.PhotoURL,
		Provider:       u.Provider,
		TelegramLinked: u.TelegramChatID != 0,
	}
}

type SessionResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      UserResponse `json:"user"`
}

func FromSession(s *service.Session) SessionResponse {
	return SessionResponse{
		Token:     s.Token,
		ExpiresAt: s.ExpiresAt,
		User:      FromUser(s.User),
	}
}

type NotificationResponse struct {
	TaskID    string    `json:"task_id"`
	Title     string    `json:"title"`
	Due       string    `json:"due,omitempty"`
	TriggerAt time.Time `json:"trigger_at"`
	ShownAt   time.Time `json:"shown_at"`
	Actions   []string  `json:"actions"`
}

func FromNotifications(ns []reminder.Notification) []NotificationResponse {
	result := make([]NotificationResponse, len(ns))
	for i, n := range ns {
		actions := make([]string, len(n.Actions))
		for j, a := range n.Actions {
			actions[j] = string(a)
		}
		result[i] = NotificationResponse{
			TaskID:    n.TaskID,
			Title:     n.Title,
			Due:       n.DueText,
			TriggerAt: n.TriggerAt,
			ShownAt:   n.ShownAt,
			Actions:   actions,
		}
	}
	return result
}

type SyncResponse struct {
	StartedAt time.Time `json:"started_at"`
	Found     int       `json:"found"`
	Armed     int       `json:"armed"`
}

func FromCycle(res reminder.CycleResult) SyncResponse {
	return SyncResponse{StartedAt: res.StartedAt, Found: res.Found, Armed: res.Armed}
}
