package monitoring

import (
	"time"

	"deskrelay/internal/core/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusCollector implements ports.MetricsRecorder over the default
// registry; expose it through promhttp.
type PrometheusCollector struct {
	peersConnected      prometheus.Gauge
	registrationsTotal  *prometheus.CounterVec
	registerFailures    *prometheus.CounterVec
	sessionsCreated     prometheus.Counter
	sessionsDeactivated prometheus.Counter
	sessionsReaped      prometheus.Counter
	messagesRelayed     *prometheus.CounterVec
	relayDrops          prometheus.Counter
	connectionDuration  prometheus.Histogram
}

func NewPrometheusCollector() *PrometheusCollector {
	return &PrometheusCollector{
		peersConnected: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "deskrelay_peers_connected",
			Help: "Number of currently registered peers",
		}),

		registrationsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "deskrelay_registrations_total",
			Help: "Successful peer registrations by role",
		}, []string{"role"}),

		registerFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "deskrelay_registration_failures_total",
			Help: "Rejected peer registrations by reason",
		}, []string{"reason"}),

		sessionsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "deskrelay_sessions_created_total",
			Help: "Total sessions created by host registrations",
		}),

		sessionsDeactivated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "deskrelay_sessions_deactivated_total",
			Help: "Sessions deactivated by host disconnects",
		}),

		sessionsReaped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "deskrelay_sessions_reaped_total",
			Help: "Sessions removed by the age-based reaper",
		}),

		messagesRelayed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "deskrelay_messages_relayed_total",
			Help: "Handshake messages relayed by kind",
		}, []string{"kind"}),

		relayDrops: promauto.NewCounter(prometheus.CounterOpts{
			Name: "deskrelay_relay_drops_total",
			Help: "Relay messages dropped because the recipient was missing or unreachable",
		}),

		connectionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "deskrelay_connection_duration_seconds",
			Help:    "Time between peer registration and disconnect",
			Buckets: prometheus.ExponentialBuckets(1, 4, 10),
		}),
	}
}

func (p *PrometheusCollector) RecordPeerRegistered(role domain.Role) {
	p.peersConnected.Inc()
	p.registrationsTotal.WithLabelValues(string(role)).Inc()
}

func (p *PrometheusCollector) RecordRegistrationRejected(reason string) {
	p.registerFailures.WithLabelValues(reason).Inc()
}

func (p *PrometheusCollector) RecordPeerDisconnected(role domain.Role, connectedFor time.Duration) {
	p.peersConnected.Dec()
	p.connectionDuration.Observe(connectedFor.Seconds())
}

func (p *PrometheusCollector) RecordSessionCreated() {
	p.sessionsCreated.Inc()
}

func (p *PrometheusCollector) RecordSessionDeactivated() {
	p.sessionsDeactivated.Inc()
}

func (p *PrometheusCollector) RecordSessionsReaped(count int) {
	p.sessionsReaped.Add(float64(count))
}

func (p *PrometheusCollector) RecordMessageRelayed(kind string) {
	p.messagesRelayed.WithLabelValues(kind).Inc()
}

func (p *PrometheusCollector) RecordRelayDrop() {
	p.relayDrops.Inc()
}
