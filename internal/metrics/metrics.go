package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "memo"

// Metrics собирает счётчики сервиса в собственный реестр.
// Методы безопасны для nil, поэтому компоненты можно создавать без метрик.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	reminderCycles     *prometheus.CounterVec
	reminderDue        prometheus.Gauge
	alarmsArmed        *prometheus.CounterVec
	alarmsPending      prometheus.Gauge
	notificationsShown *prometheus.CounterVec
	actions            *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		reminderCycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reminder",
			Name:      "cycles_total",
			Help:      "Reminder query cycles by result.",
		}, []string{"result"}),
		reminderDue: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "reminder",
			Name:      "last_cycle_tasks",
			Help:      "Tasks returned by the last reminder query.",
		}),
		alarmsArmed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alarm",
			Name:      "armed_total",
			Help:      "Alarms armed by mode.",
		}, []string{"mode"}),
		alarmsPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "alarm",
			Name:      "pending",
			Help:      "Alarms waiting to fire.",
		}),
		notificationsShown: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notification",
			Name:      "shown_total",
			Help:      "Notifications shown by delivery channel.",
		}, []string{"channel"}),
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notification",
			Name:      "actions_total",
			Help:      "Notification actions by action and outcome.",
		}, []string{"action", "outcome"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests,
		m.httpDuration,
		m.reminderCycles,
		m.reminderDue,
		m.alarmsArmed,
		m.alarmsPending,
		m.notificationsShown,
		m.actions,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func (m *Metrics) ReminderCycle(found int, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.reminderCycles.WithLabelValues("error").Inc()
		return
	}
	m.reminderCycles.WithLabelValues("ok").Inc()
	m.reminderDue.Set(float64(found))
}

func (m *Metrics) AlarmArmed(mode string) {
	if m == nil {
		return
	}
	m.alarmsArmed.WithLabelValues(mode).Inc()
}

func (m *Metrics) AlarmsPending(n int) {
	if m == nil {
		return
	}
	m.alarmsPending.Set(float64(n))
}

func (m *Metrics) NotificationShown(channel string) {
	if m == nil {
		return
	}
	m.notificationsShown.WithLabelValues(channel).Inc()
}

func (m *Metrics) Action(action, outcome string) {
	if m == nil {
		return
	}
	m.actions.WithLabelValues(action, outcome).Inc()
}
