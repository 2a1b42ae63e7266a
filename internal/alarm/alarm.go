// Package alarm взводит будильники с точным временем срабатывания.
// Будильник идентифицируется ключом: повторная установка с тем же ключом
// заменяет ожидающий будильник.
package alarm

import (
	"errors"
	"sort"
	"sync"
	"time"

	"memo/internal/logger"

	"github.com/jmhodges/clock"
	"go.uber.org/zap"
)

var (
	ErrClosed   = errors.New("менеджер будильников остановлен")
	ErrEmptyKey = errors.New("пустой ключ будильника")
)

type Mode int

const (
	ModeExactAllowWhileIdle Mode = iota
	ModeExact
	ModeExactLegacy
)

func (m Mode) String() string {
	switch m {
	case ModeExactAllowWhileIdle:
		return "exact-allow-while-idle"
	case ModeExact:
		return "exact"
	case ModeExactLegacy:
		return "exact-legacy"
	default:
		return "unknown"
	}
}

// Capabilities описывает, что разрешено платформой.
type Capabilities struct {
	ExactGranted bool
	IdleTolerant bool
}

func SelectMode(c Capabilities) Mode {
	switch {
	case c.ExactGranted && c.IdleTolerant:
		return ModeExactAllowWhileIdle
	case c.ExactGranted:
		return ModeExact
	default:
		return ModeExactLegacy
	}
}

type Alarm struct {
	Key     string
	At      time.Time
	Mode    Mode
	Payload map[string]string
}

type entry struct {
	alarm Alarm
	stop  chan struct{}
}

type Manager struct {
	clk  clock.Clock
	mode Mode

	mu      sync.Mutex
	pending map[string]*entry
	closed  bool

	events chan Alarm
	done   chan struct{}
	wg     sync.WaitGroup

	onChange func(pending int)
}

type ManagerOption func(*Manager)

// WithPendingObserver вызывается после каждого изменения числа ожидающих будильников.
func WithPendingObserver(fn func(pending int)) ManagerOption {
	return func(m *Manager) {
		m.onChange = fn
	}
}

func NewManager(clk clock.Clock, caps Capabilities, opts ...ManagerOption) *Manager {
	m := &Manager{
		clk:      clk,
		mode:     SelectMode(caps),
		pending:  make(map[string]*entry),
		events:   make(chan Alarm),
		done:     make(chan struct{}),
		onChange: func(int) {},
	}
	for _, opt := range opts {
		opt(m)
	}

	logger.Info("Alarm: Режим будильников", zap.String("mode", m.mode.String()))
	return m
}

func (m *Manager) Mode() Mode {
	return m.mode
}

// Events отдаёт сработавшие будильники; канал закрывается в Close.
func (m *Manager) Events() <-chan Alarm {
	return m.events
}

// Set взводит будильник на время at, заменяя ожидающий с тем же ключом.
// Будильник в прошлом срабатывает сразу.
func (m *Manager) Set(key string, at time.Time, payload map[string]string) (Alarm, error) {
	if key == "" {
		return Alarm{}, ErrEmptyKey
	}

	a := Alarm{Key: key, At: at, Mode: m.mode, Payload: copyPayload(payload)}
	e := &entry{alarm: a, stop: make(chan struct{})}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return Alarm{}, ErrClosed
	}
	old, replaced := m.pending[key]
	if replaced {
		close(old.stop)
	}
	m.pending[key] = e
	count := len(m.pending)

	var fire <-chan time.Time
	var timer *clock.Timer
	if d := at.Sub(m.clk.Now()); d > 0 {
		timer = m.clk.NewTimer(d)
		fire = timer.C
	} else {
		ready := make(chan time.Time, 1)
		ready <- at
		fire = ready
	}

	m.wg.Add(1)
	m.mu.Unlock()

	go m.wait(e, fire, timer)

	logger.Debug("Alarm: Будильник взведён",
		zap.String("key", key),
		zap.Time("at", at),
		zap.String("mode", m.mode.String()),
		zap.Bool("replaced", replaced))
	m.onChange(count)
	return a, nil
}

func (m *Manager) Cancel(key string) bool {
	m.mu.Lock()
	e, ok := m.pending[key]
	if ok {
		delete(m.pending, key)
		close(e.stop)
	}
	count := len(m.pending)
	m.mu.Unlock()

	if ok {
		logger.Debug("Alarm: Будильник отменён", zap.String("key", key))
		m.onChange(count)
	}
	return ok
}

func (m *Manager) Get(key string) (Alarm, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.pending[key]
	if !ok {
		return Alarm{}, false
	}
	return e.alarm, true
}

// Pending возвращает ожидающие будильники по возрастанию времени.
func (m *Manager) Pending() []Alarm {
	m.mu.Lock()
	res := make([]Alarm, 0, len(m.pending))
	for _, e := range m.pending {
		res = append(res, e.alarm)
	}
	m.mu.Unlock()

	sort.Slice(res, func(i, j int) bool {
		if res[i].At.Equal(res[j].At) {
			return res[i].Key < res[j].Key
		}
		return res[i].At.Before(res[j].At)
	})
	return res
}

// Close отменяет все ожидающие будильники и закрывает канал событий.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	for key, e := range m.pending {
		close(e.stop)
		delete(m.pending, key)
	}
	close(m.done)
	m.mu.Unlock()

	m.wg.Wait()
	close(m.events)
	logger.Info("Alarm: Менеджер будильников остановлен")
}

func (m *Manager) wait(e *entry, fire <-chan time.Time, timer *clock.Timer) {
	defer m.wg.Done()

	select {
	case <-fire:
	case <-e.stop:
		if timer != nil {
			timer.Stop()
		}
		return
	}

	m.mu.Lock()
	if m.pending[e.alarm.Key] != e {
		// заменён или отменён в момент срабатывания
		m.mu.Unlock()
		return
	}
	delete(m.pending, e.alarm.Key)
	count := len(m.pending)
	m.mu.Unlock()
	m.onChange(count)

	logger.Debug("Alarm: Будильник сработал", zap.String("key", e.alarm.Key))

	select {
	case m.events <- e.alarm:
	case <-m.done:
		logger.Warn("Alarm: Событие потеряно при остановке", zap.String("key", e.alarm.Key))
	}
}

func copyPayload(p map[string]string) map[string]string {
	res := make(map[string]string, len(p))
	for k, v := range p {
		res[k] = v
	}
	return res
}
