package reminder

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"memo/internal/alarm"
	"memo/internal/logger"
	"memo/internal/metrics"
	"memo/internal/models/task"
	repo "memo/internal/repository"
	"memo/internal/service"

	"github.com/jmhodges/clock"
	"go.uber.org/zap"
)

const trayChannel = "tray"

var (
	ErrNotShown      = fmt.Errorf("уведомление не показано: %w", repo.ErrNotFound)
	ErrUnknownAction = errors.New("неизвестное действие")
)

type Action string

const (
	ActionDone   Action = "done"
	ActionSnooze Action = "snooze"
)

func ParseAction(s string) (Action, error) {
	switch a := Action(s); a {
	case ActionDone, ActionSnooze:
		return a, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownAction, s)
	}
}

type Notification struct {
	TaskID    string    `json:"task_id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	DueText   string    `json:"due"`
	DueAt     time.Time `json:"due_at"`
	TriggerAt time.Time `json:"trigger_at"`
	ShownAt   time.Time `json:"shown_at"`
	Actions   []Action  `json:"actions"`
}

// Notifier - дополнительный канал доставки уведомлений.
type Notifier interface {
	Name() string
	Show(ctx context.Context, n Notification) error
	Dismiss(ctx context.Context, n Notification) error
}

type TaskCompleter interface {
	SetCompleted(ctx context.Context, userID, id string, completed bool) (*task.Task, error)
}

// ActionRequest приходит из каналов доставки.
type ActionRequest struct {
	UserID string
	TaskID string
	Action Action
	Source string
}

// Presenter показывает сработавшие напоминания и выполняет действия
// пользователя: Done отмечает задачу выполненной, Snooze откладывает.
type Presenter struct {
	store     TaskCompleter
	scheduler *Scheduler
	clk       clock.Clock
	snooze    time.Duration
	metrics   *metrics.Metrics
	notifiers []Notifier

	mu    sync.Mutex
	shown map[string]Notification
}

func NewPresenter(store TaskCompleter, scheduler *Scheduler, clk clock.Clock, snooze time.Duration, m *metrics.Metrics, notifiers ...Notifier) *Presenter {
	return &Presenter{
		store:     store,
		scheduler: scheduler,
		clk:       clk,
		snooze:    snooze,
		metrics:   m,
		notifiers: notifiers,
		shown:     make(map[string]Notification),
	}
}

// Run обрабатывает сработавшие будильники и действия до отмены ctx
// или закрытия канала будильников.
func (p *Presenter) Run(ctx context.Context, events <-chan alarm.Alarm, actions <-chan ActionRequest) error {
	logger.Info("Reminder: Обработка уведомлений запущена")
	for {
		select {
		case <-ctx.Done():
			logger.Info("Reminder: Обработка уведомлений останавливается")
			return nil

		case a, ok := <-events:
			if !ok {
				logger.Info("Reminder: Канал будильников закрыт")
				return nil
			}
			if _, err := p.Show(ctx, a); err != nil {
				logger.Warn("Reminder: Не удалось показать уведомление", zap.String("key", a.Key), zap.Error(err))
			}

		case req, ok := <-actions:
			if !ok {
				actions = nil
				continue
			}
			if err := p.Handle(ctx, req.UserID, req.TaskID, req.Action); err != nil {
				logger.Info("Reminder: Действие не выполнено",
					zap.String("task_id", req.TaskID),
					zap.String("action", string(req.Action)),
					zap.String("source", req.Source),
					zap.Error(err))
			}
		}
	}
}

// Show показывает уведомление; повторный показ той же задачи заменяет прежний.
func (p *Presenter) Show(ctx context.Context, a alarm.Alarm) (Notification, error) {
	req, err := RequestFromAlarm(a)
	if err != nil {
		return Notification{}, err
	}

	n := Notification{
		TaskID:    req.TaskID,
		UserID:    req.UserID,
		Title:     req.Title,
		DueText:   req.DueText,
		DueAt:     req.DueAt,
		TriggerAt: req.TriggerAt,
		ShownAt:   p.clk.Now(),
		Actions:   []Action{ActionDone, ActionSnooze},
	}

	p.mu.Lock()
	p.shown[n.TaskID] = n
	p.mu.Unlock()

	p.metrics.NotificationShown(trayChannel)
	logger.Info("Reminder: Показано уведомление",
		zap.String("task_id", n.TaskID),
		zap.String("user_id", n.UserID),
		zap.String("due", n.DueText))

	for _, notifier := range p.notifiers {
		if err := notifier.Show(ctx, n); err != nil {
			logger.Warn("Reminder: Ошибка доставки уведомления",
				zap.String("channel", notifier.Name()),
				zap.String("task_id", n.TaskID),
				zap.Error(err))
			continue
		}
		p.metrics.NotificationShown(notifier.Name())
	}
	return n, nil
}

// Handle выполняет действие над показанным уведомлением. Уведомление
// убирается в любом случае, ошибка отметки выполнения не повторяется.
func (p *Presenter) Handle(ctx context.Context, userID, taskID string, action Action) (err error) {
	defer func() {
		p.metrics.Action(string(action), service.Classify(err).String())
	}()

	if _, err := ParseAction(string(action)); err != nil {
		return err
	}

	n, ok := p.take(userID, taskID)
	if !ok {
		return ErrNotShown
	}
	defer p.dismiss(ctx, n)

	switch action {
	case ActionDone:
		p.scheduler.Cancel(taskID)
		if _, err := p.store.SetCompleted(ctx, n.UserID, taskID, true); err != nil {
			logger.Error("Reminder: Не удалось отметить задачу выполненной", err, zap.String("task_id", taskID))
			return fmt.Errorf("отметка выполнения: %w", err)
		}
		logger.Info("Reminder: Задача отмечена выполненной из уведомления", zap.String("task_id", taskID))

	case ActionSnooze:
		if p.snooze <= 0 {
			return nil
		}
		req := Request{
			TaskID:    n.TaskID,
			UserID:    n.UserID,
			Title:     n.Title,
			DueText:   n.DueText,
			DueAt:     n.DueAt,
			TriggerAt: p.clk.Now().Add(p.snooze),
		}
		if err := p.scheduler.Arm(req); err != nil {
			return fmt.Errorf("откладывание напоминания: %w", err)
		}
		logger.Info("Reminder: Напоминание отложено",
			zap.String("task_id", taskID),
			zap.Time("until", req.TriggerAt))
	}
	return nil
}

// Dismiss убирает уведомление по запросу пользователя.
func (p *Presenter) Dismiss(ctx context.Context, userID, taskID string) error {
	n, ok := p.take(userID, taskID)
	if !ok {
		return ErrNotShown
	}
	p.dismiss(ctx, n)
	return nil
}

// Clear убирает уведомление задачи независимо от пользователя.
func (p *Presenter) Clear(ctx context.Context, taskID string) bool {
	p.mu.Lock()
	n, ok := p.shown[taskID]
	delete(p.shown, taskID)
	p.mu.Unlock()

	if ok {
		p.dismiss(ctx, n)
	}
	return ok
}

func (p *Presenter) Get(taskID string) (Notification, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	n, ok := p.shown[taskID]
	return n, ok
}

// List возвращает показанные уведомления пользователя, новые первыми.
func (p *Presenter) List(userID string) []Notification {
	p.mu.Lock()
	res := []Notification{}
	for _, n := range p.shown {
		if n.UserID == userID {
			res = append(res, n)
		}
	}
	p.mu.Unlock()

	sort.Slice(res, func(i, j int) bool {
		if res[i].ShownAt.Equal(res[j].ShownAt) {
			return res[i].TaskID < res[j].TaskID
		}
		return res[i].ShownAt.After(res[j].ShownAt)
	})
	return res
}

func (p *Presenter) take(userID, taskID string) (Notification, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	n, ok := p.shown[taskID]
	if !ok || n.UserID != userID {
		return Notification{}, false
	}
	delete(p.shown, taskID)
	return n, true
}

func (p *Presenter) dismiss(ctx context.Context, n Notification) {
	for _, notifier := range p.notifiers {
		if err := notifier.Dismiss(ctx, n); err != nil {
			logger.Warn("Reminder: Не удалось убрать уведомление",
				zap.String("channel", notifier.Name()),
				zap.String("task_id", n.TaskID),
				zap.Error(err))
		}
	}
}

// Hooks связывает мутации задач с будильниками и показанными уведомлениями.
type Hooks struct {
	scheduler *Scheduler
	presenter *Presenter
	resync    func()
}

// NewHooks; resync может быть nil.
func NewHooks(scheduler *Scheduler, presenter *Presenter, resync func()) *Hooks {
	return &Hooks{scheduler: scheduler, presenter: presenter, resync: resync}
}

func (h *Hooks) TaskChanged(ctx context.Context, t *task.Task) {
	h.scheduler.TaskChanged(ctx, t)
	if t.Completed || t.DueAt == nil {
		h.presenter.Clear(ctx, t.ID)
	}
	if h.resync != nil && h.scheduler.InWindow(t) {
		h.resync()
	}
}

func (h *Hooks) TaskRemoved(ctx context.Context, taskID string) {
	h.scheduler.TaskRemoved(ctx, taskID)
	h.presenter.Clear(ctx, taskID)
}
