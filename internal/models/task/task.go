package task

import (
	"sort"
	"strings"
	"time"
)

type Task struct {
	ID          string                `json:"id" db:"id"`
	UserID      string                `json:"user_id" db:"user_id"`
	Title       string                `json:"title" db:"title"`
	Description string                `json:"description,omitempty" db:"description"`
	DueAt       *time.Time            `json:"due_at,omitempty" db:"due_at"`
	Priority    Priority              `json:"priority" db:"priority"`
	Category    string                `json:"category,omitempty" db:"category"`
	Tags        []string              `json:"tags" db:"tags"`
	Completed   bool                  `json:"completed" db:"completed"`
	Attachments map[string]Attachment `json:"attachments,omitempty" db:"attachments"`
	CreatedAt   time.Time             `json:"created_at" db:"created_at"`
	UpdatedAt   *time.Time            `json:"updated_at,omitempty" db:"updated_at"`
	Version     int                   `json:"version" db:"version"`
}

type Attachment struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Path        string `json:"path"`
	URL         string `json:"url"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type,omitempty"`
}

type Priority int

const (
	PriorityNone Priority = iota
	PriorityLow
	PriorityMedium
	PriorityHigh
)

func (p Priority) Valid() bool {
	return p >= PriorityNone && p <= PriorityHigh
}

func (p Priority) String() string {
	switch p {
	case PriorityNone:
		return "none"
	case PriorityLow:
		return "low"
	case PriorityMedium:
		return "medium"
	case PriorityHigh:
		return "high"
	default:
		return "unknown"
	}
}

// Filter задаёт выборку задач одного пользователя; пустые поля не ограничивают.
type Filter struct {
	Category  string
	Tag       string
	Completed *bool
	Query     string
	Page      int
	Limit     int
}

func (f Filter) Offset() int {
	if f.Page <= 1 {
		return 0
	}
	return (f.Page - 1) * f.Limit
}

// Matches используется хранилищем в памяти; postgres повторяет те же условия в SQL.
func (f Filter) Matches(t *Task) bool {
	if f.Category != "" && t.Category != f.Category {
		return false
	}
	if f.Tag != "" && !t.HasTag(f.Tag) {
		return false
	}
	if f.Completed != nil && t.Completed != *f.Completed {
		return false
	}
	if f.Query != "" {
		q := strings.ToLower(f.Query)
		if strings.Contains(strings.ToLower(t.Title), q) || strings.Contains(strings.ToLower(t.Description), q) {
			return true
		}
		for _, tag := range t.Tags {
			if strings.Contains(strings.ToLower(tag), q) {
				return true
			}
		}
		return false
	}
	return true
}

func (t *Task) HasTag(tag string) bool {
	for _, tg := range t.Tags {
		if tg == tag {
			return true
		}
	}
	return false
}

// IsDueWithin: незавершённая задача со сроком в [from, to].
func (t *Task) IsDueWithin(from, to time.Time) bool {
	if t.Completed || t.DueAt == nil {
		return false
	}
	return !t.DueAt.Before(from) && !t.DueAt.After(to)
}

// Clone нужен хранилищу в памяти, чтобы вызывающий не менял сохранённую копию.
func (t *Task) Clone() *Task {
	c := *t
	if t.DueAt != nil {
		due := *t.DueAt
		c.DueAt = &due
	}
	if t.UpdatedAt != nil {
		upd := *t.UpdatedAt
		c.UpdatedAt = &upd
	}
	c.Tags = append([]string{}, t.Tags...)
	if t.Attachments != nil {
		c.Attachments = make(map[string]Attachment, len(t.Attachments))
		for k, v := range t.Attachments {
			c.Attachments[k] = v
		}
	}
	return &c
}

// NormalizeTags: обрезает пробелы, убирает пустые и повторы, сортирует.
func NormalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	res := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		res = append(res, tag)
	}
	sort.Strings(res)
	return res
}
