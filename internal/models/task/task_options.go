package task

import (
	"strings"
	"time"
)

// TaskOption описывает одно изменение при частичном обновлении (merge):
// поля, для которых опция не передана, остаются как есть.
type TaskOption func(*Task)

func WithTitle(title string) TaskOption {
	return func(task *Task) {
		task.Title = strings.TrimSpace(title)
	}
}

func WithDescription(description string) TaskOption {
	return func(task *Task) {
		task.Description = description
	}
}

// WithDueAt с nil снимает срок.
func WithDueAt(dueAt *time.Time) TaskOption {
	return func(task *Task) {
		if dueAt == nil {
			task.DueAt = nil
			return
		}
		due := dueAt.UTC()
		task.DueAt = &due
	}
}

func WithPriority(priority Priority) TaskOption {
	return func(task *Task) {
		task.Priority = priority
	}
}

func WithCategory(category string) TaskOption {
	return func(task *Task) {
		task.Category = strings.TrimSpace(category)
	}
}

func WithTags(tags []string) TaskOption {
	return func(task *Task) {
		task.Tags = NormalizeTags(tags)
	}
}

func WithCompleted(completed bool) TaskOption {
	return func(task *Task) {
		task.Completed = completed
	}
}
