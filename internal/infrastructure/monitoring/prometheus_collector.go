package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type PrometheusCollector struct {
	// Gauges
	sessionsActive prometheus.Gauge
	roomsActive    prometheus.Gauge

	// Counters
	connectionsTotal    prometheus.Counter
	messagesTotal       *prometheus.CounterVec
	messageErrorsTotal  *prometheus.CounterVec
	broadcastDeliveries *prometheus.CounterVec
	eventLogFailures    prometheus.Counter
	roomsReaped         prometheus.Counter

	// Histograms
	messageDuration    *prometheus.HistogramVec
	connectionDuration prometheus.Histogram
	fanoutSize         prometheus.Histogram
}

// NewPrometheusCollector registers the collectors with reg. Pass
// prometheus.DefaultRegisterer in production and a fresh registry in tests.
func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	factory := promauto.With(reg)

	return &PrometheusCollector{
		sessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "syncplay_sessions_active",
			Help: "Number of live websocket sessions",
		}),

		roomsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "syncplay_rooms_active",
			Help: "Number of rooms with at least one participant",
		}),

		connectionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "syncplay_connections_total",
			Help: "Total number of websocket connections accepted",
		}),

		messagesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "syncplay_messages_total",
			Help: "Inbound protocol messages by type",
		}, []string{"type"}),

		messageErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "syncplay_message_errors_total",
			Help: "Error replies sent to clients by code",
		}, []string{"code"}),

		broadcastDeliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "syncplay_broadcast_deliveries_total",
			Help: "Fanout deliveries by result",
		}, []string{"result"}),

		eventLogFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "syncplay_event_log_failures_total",
			Help: "Event log appends that failed",
		}),

		roomsReaped: factory.NewCounter(prometheus.CounterOpts{
			Name: "syncplay_rooms_reaped_total",
			Help: "Stale rooms deleted by the reaper",
		}),

		messageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "syncplay_message_duration_seconds",
			Help:    "Time spent handling one inbound message",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}, []string{"type"}),

		connectionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "syncplay_connection_duration_seconds",
			Help:    "Lifetime of websocket connections",
			Buckets: prometheus.ExponentialBuckets(1, 4, 10),
		}),

		fanoutSize: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "syncplay_fanout_recipients",
			Help:    "Recipients per broadcast",
			Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100},
		}),
	}
}

func (p *PrometheusCollector) RecordSessionOpened() {
	p.sessionsActive.Inc()
	p.connectionsTotal.Inc()
}

func (p *PrometheusCollector) RecordSessionClosed(lifetime time.Duration) {
	p.sessionsActive.Dec()
	p.connectionDuration.Observe(lifetime.Seconds())
}

func (p *PrometheusCollector) RecordRoomActivated() {
	p.roomsActive.Inc()
}

func (p *PrometheusCollector) RecordRoomEmptied() {
	p.roomsActive.Dec()
}

func (p *PrometheusCollector) RecordMessage(messageType string, duration time.Duration) {
	p.messagesTotal.WithLabelValues(messageType).Inc()
	p.messageDuration.WithLabelValues(messageType).Observe(duration.Seconds())
}

func (p *PrometheusCollector) RecordMessageError(code string) {
	p.messageErrorsTotal.WithLabelValues(code).Inc()
}

func (p *PrometheusCollector) RecordBroadcast(recipients, failed int) {
	p.fanoutSize.Observe(float64(recipients))
	if delivered := recipients - failed; delivered > 0 {
		p.broadcastDeliveries.WithLabelValues("delivered").Add(float64(delivered))
	}
	if failed > 0 {
		p.broadcastDeliveries.WithLabelValues("failed").Add(float64(failed))
	}
}

func (p *PrometheusCollector) RecordEventLogFailure() {
	p.eventLogFailures.Inc()
}

func (p *PrometheusCollector) RecordRoomsReaped(count int) {
	p.roomsReaped.Add(float64(count))
}
