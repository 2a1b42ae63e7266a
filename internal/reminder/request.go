package reminder

import (
	"errors"
	"time"

	"memo/internal/alarm"
	"memo/internal/models/task"
)

const DueLayout = "02 Jan 2006, 15:04"

// ключи полезной нагрузки будильника
const (
	ExtraTaskID = "task_id"
	ExtraUserID = "user_id"
	ExtraTitle  = "title"
	ExtraDue    = "due"
	ExtraDueAt  = "due_at"
)

var ErrBadPayload = errors.New("будильник без идентификатора задачи")

// Request описывает одно напоминание; создаётся заново в каждом цикле.
type Request struct {
	TaskID    string
	UserID    string
	Title     string
	DueText   string
	DueAt     time.Time
	TriggerAt time.Time
}

// NewRequest возвращает false для задач без срока и выполненных задач.
func NewRequest(t *task.Task, loc *time.Location) (Request, bool) {
	if t == nil || t.DueAt == nil || t.Completed {
		return Request{}, false
	}
	return Request{
		TaskID:    t.ID,
		UserID:    t.UserID,
		Title:     t.Title,
		DueText:   FormatDue(*t.DueAt, loc),
		DueAt:     *t.DueAt,
		TriggerAt: *t.DueAt,
	}, true
}

// Snoozed - будильник взведён не на срок задачи, а отложен пользователем.
func (r Request) Snoozed() bool {
	return !r.TriggerAt.Equal(r.DueAt)
}

func FormatDue(due time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return due.In(loc).Format(DueLayout)
}

func (r Request) Extras() map[string]string {
	extras := map[string]string{
		ExtraTaskID: r.TaskID,
		ExtraUserID: r.UserID,
		ExtraTitle:  r.Title,
		ExtraDue:    r.DueText,
	}
	if !r.DueAt.IsZero() {
		extras[ExtraDueAt] = r.DueAt.Format(time.RFC3339Nano)
	}
	return extras
}

func RequestFromAlarm(a alarm.Alarm) (Request, error) {
	id := a.Payload[ExtraTaskID]
	if id == "" {
		id = a.Key
	}
	if id == "" {
		return Request{}, ErrBadPayload
	}
	// без due_at будильник считается взведённым на срок
	dueAt, err := time.Parse(time.RFC3339Nano, a.Payload[ExtraDueAt])
	if err != nil {
		dueAt = a.At
	}
	return Request{
		TaskID:    id,
		UserID:    a.Payload[ExtraUserID],
		Title:     a.Payload[ExtraTitle],
		DueText:   a.Payload[ExtraDue],
		DueAt:     dueAt,
		TriggerAt: a.At,
	}, nil
}
