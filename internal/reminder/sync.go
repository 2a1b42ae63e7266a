package reminder

import (
	"context"
	"time"

	"memo/internal/logger"
	"memo/internal/metrics"

	"github.com/jmhodges/clock"
	"go.uber.org/zap"
)

type CycleResult struct {
	StartedAt time.Time
	Found     int
	Armed     int
}

// Sync выполняет один цикл напоминаний: выборка задач и взвод будильников.
type Sync struct {
	query     *Query
	scheduler *Scheduler
	clk       clock.Clock
	metrics   *metrics.Metrics
}

func NewSync(query *Query, scheduler *Scheduler, clk clock.Clock, m *metrics.Metrics) *Sync {
	return &Sync{query: query, scheduler: scheduler, clk: clk, metrics: m}
}

func (s *Sync) RunCycle(ctx context.Context) (CycleResult, error) {
	res := CycleResult{StartedAt: s.clk.Now()}

	tasks, err := s.query.Due(ctx, res.StartedAt)
	s.metrics.ReminderCycle(len(tasks), err)
	if err != nil {
		return res, err
	}

	res.Found = len(tasks)
	res.Armed = s.scheduler.Schedule(ctx, tasks)

	logger.Debug("Reminder: Цикл выполнен",
		zap.Int("found", res.Found),
		zap.Int("armed", res.Armed))
	return res, nil
}
