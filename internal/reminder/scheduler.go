package reminder

import (
	"context"
	"time"

	"memo/internal/alarm"
	"memo/internal/logger"
	"memo/internal/metrics"
	"memo/internal/models/task"

	"github.com/jmhodges/clock"
	"go.uber.org/zap"
)

type AlarmSetter interface {
	Set(key string, at time.Time, payload map[string]string) (alarm.Alarm, error)
	Cancel(key string) bool
	Get(key string) (alarm.Alarm, bool)
}

// Scheduler держит не более одного будильника на задачу.
type Scheduler struct {
	alarms    AlarmSetter
	clk       clock.Clock
	lookahead time.Duration
	loc       *time.Location
	metrics   *metrics.Metrics
}

func NewScheduler(alarms AlarmSetter, clk clock.Clock, lookahead time.Duration, loc *time.Location, m *metrics.Metrics) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	return &Scheduler{
		alarms:    alarms,
		clk:       clk,
		lookahead: lookahead,
		loc:       loc,
		metrics:   m,
	}
}

func (s *Scheduler) Location() *time.Location {
	return s.loc
}

// Schedule взводит будильник на срок каждой задачи и возвращает их число.
func (s *Scheduler) Schedule(ctx context.Context, tasks []*task.Task) int {
	armed := 0
	for _, t := range tasks {
		req, ok := NewRequest(t, s.loc)
		if !ok {
			continue
		}
		if _, snoozed := s.snoozed(t); snoozed {
			continue
		}
		if err := s.Arm(req); err != nil {
			logger.Warn("Reminder: Не удалось взвести будильник",
				zap.String("task_id", t.ID),
				zap.Error(err))
			continue
		}
		armed++
	}
	return armed
}

func (s *Scheduler) Arm(req Request) error {
	a, err := s.alarms.Set(req.TaskID, req.TriggerAt, req.Extras())
	if err != nil {
		return err
	}
	s.metrics.AlarmArmed(a.Mode.String())
	logger.Debug("Reminder: Будильник взведён",
		zap.String("task_id", req.TaskID),
		zap.Time("trigger_at", req.TriggerAt),
		zap.String("mode", a.Mode.String()))
	return nil
}

func (s *Scheduler) Cancel(taskID string) bool {
	return s.alarms.Cancel(taskID)
}

// InWindow - задача не выполнена и её срок попадает в текущее окно выборки.
func (s *Scheduler) InWindow(t *task.Task) bool {
	now := s.clk.Now()
	return t.IsDueWithin(now, now.Add(s.lookahead))
}

// TaskChanged приводит будильник в соответствие с изменённой задачей.
// Отложенный будильник сохраняется, пока срок задачи не изменился.
func (s *Scheduler) TaskChanged(ctx context.Context, t *task.Task) {
	if req, ok := s.snoozed(t); ok {
		if err := s.Arm(req); err != nil {
			logger.Warn("Reminder: Не удалось обновить отложенный будильник",
				zap.String("task_id", t.ID),
				zap.Error(err))
		}
		return
	}

	now := s.clk.Now()
	if !t.IsDueWithin(now, now.Add(s.lookahead)) {
		if s.Cancel(t.ID) {
			logger.Debug("Reminder: Будильник снят после изменения задачи", zap.String("task_id", t.ID))
		}
		return
	}

	req, _ := NewRequest(t, s.loc)
	if err := s.Arm(req); err != nil {
		logger.Warn("Reminder: Не удалось перевзвести будильник",
			zap.String("task_id", t.ID),
			zap.Error(err))
	}
}

func (s *Scheduler) TaskRemoved(ctx context.Context, taskID string) {
	s.Cancel(taskID)
}

// snoozed возвращает запрос с данными задачи и временем ожидающего
// отложенного будильника, если срок задачи после откладывания не менялся.
func (s *Scheduler) snoozed(t *task.Task) (Request, bool) {
	req, ok := NewRequest(t, s.loc)
	if !ok {
		return Request{}, false
	}
	a, ok := s.alarms.Get(t.ID)
	if !ok {
		return Request{}, false
	}
	pending, err := RequestFromAlarm(a)
	if err != nil || !pending.Snoozed() || !pending.DueAt.Equal(req.DueAt) {
		return Request{}, false
	}
	req.TriggerAt = pending.TriggerAt
	return req, true
}
