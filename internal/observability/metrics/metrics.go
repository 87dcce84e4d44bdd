package metrics

import "github.com/prometheus/client_golang/prometheus"

// BookingMetrics exposes counters/histograms for booking commands and their
// notification side effects.
type BookingMetrics struct {
	commandsTotal       *prometheus.CounterVec
	notificationsTotal  *prometheus.CounterVec
	notificationLatency *prometheus.HistogramVec
	queueDepth          prometheus.Gauge
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		commandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "booking",
			Name:      "commands_total",
			Help:      "Total interpreted booking commands by outcome",
		}, []string{"mode", "intent", "outcome"}),
		notificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "booking",
			Name:      "notifications_total",
			Help:      "Total notification tasks by kind and status",
		}, []string{"kind", "status"}),
		notificationLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "clinic",
			Subsystem: "booking",
			Name:      "notification_latency_seconds",
			Help:      "Time spent delivering a notification task",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "clinic",
			Subsystem: "booking",
			Name:      "notification_queue_depth",
			Help:      "Notification tasks waiting in the in-memory queue",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.commandsTotal, m.notificationsTotal, m.notificationLatency, m.queueDepth)
	return m
}

func (m *BookingMetrics) ObserveCommand(mode, intent, outcome string) {
	if m == nil {
		return
	}
	m.commandsTotal.WithLabelValues(mode, intent, outcome).Inc()
}

func (m *BookingMetrics) ObserveNotification(kind, status string) {
	if m == nil {
		return
	}
	m.notificationsTotal.WithLabelValues(kind, status).Inc()
}

func (m *BookingMetrics) ObserveNotificationLatency(kind string, seconds float64) {
	if m == nil {
		return
	}
	m.notificationLatency.WithLabelValues(kind).Observe(seconds)
}

func (m *BookingMetrics) SetQueueDepth(depth int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(depth))
}
