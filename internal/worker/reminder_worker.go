package worker

import (
	"context"
	"time"

	"memo/internal/logger"
	"memo/internal/reminder"

	"github.com/jmhodges/clock"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const cycleKey = "reminder-cycle"

type Cycle interface {
	RunCycle(ctx context.Context) (reminder.CycleResult, error)
}

// ReminderWorker периодически запускает цикл напоминаний. Внеочередной
// запуск через Trigger не сдвигает расписание.
type ReminderWorker struct {
	cycle    Cycle
	clk      clock.Clock
	interval time.Duration
	trigger  chan struct{}
	group    singleflight.Group
}

func NewReminderWorker(cycle Cycle, clk clock.Clock, interval *time.Duration) *ReminderWorker {
	var intervalToSet time.Duration
	if interval == nil || *interval <= 0 {
		intervalToSet = 30 * time.Minute
	} else {
		intervalToSet = *interval
	}

	return &ReminderWorker{
		cycle:    cycle,
		clk:      clk,
		interval: intervalToSet,
		trigger:  make(chan struct{}, 1),
	}
}

func (w *ReminderWorker) Interval() time.Duration {
	return w.interval
}

func (w *ReminderWorker) Start(ctx context.Context) {
	timer := w.clk.NewTimer(w.interval)
	defer timer.Stop()

	logger.Info("Worker: Цикл напоминаний запущен", zap.Duration("interval", w.interval))
	w.Check(ctx)

	for {
		select {
		case <-timer.C:
			logger.Debug("Worker: Плановая проверка напоминаний", zap.Time("started_at", w.clk.Now()))
			w.Check(ctx)
			timer.Reset(w.interval)
		case <-w.trigger:
			logger.Debug("Worker: Внеочередная проверка напоминаний")
			w.Check(ctx)
		case <-ctx.Done():
			logger.Info("Worker: Цикл напоминаний останавливается")
			return
		}
	}
}

// Trigger просит выполнить цикл как можно скорее; повторные вызовы
// до начала цикла схлопываются.
func (w *ReminderWorker) Trigger() {
	select {
	case w.trigger <- struct{}{}:
	default:
	}
}

// Check выполняет цикл; одновременные вызовы получают результат одного цикла.
// Ошибка цикла означает пустой результат.
func (w *ReminderWorker) Check(ctx context.Context) (reminder.CycleResult, error) {
	v, err, shared := w.group.Do(cycleKey, func() (any, error) {
		start := w.clk.Now()

		res, err := w.cycle.RunCycle(ctx)
		if err != nil {
			return reminder.CycleResult{StartedAt: start}, err
		}

		logger.Info("Worker: Завершение цикла напоминаний",
			zap.Duration("ms", w.clk.Since(start)),
			zap.Int("found", res.Found),
			zap.Int("armed", res.Armed))
		return res, nil
	})

	res, _ := v.(reminder.CycleResult)
	if err != nil {
		logger.Warn("Worker: Ошибка цикла напоминаний", zap.Error(err), zap.Bool("shared", shared))
		return reminder.CycleResult{StartedAt: res.StartedAt}, err
	}
	return res, nil
}
