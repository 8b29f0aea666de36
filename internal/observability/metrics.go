package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	ActiveSessions         prometheus.Gauge
	SessionEvents          *prometheus.CounterVec
	NormalizationDrops     *prometheus.CounterVec
	ClassificationWarnings prometheus.Counter
	DtmfDigits             *prometheus.CounterVec
	DialogueActions        *prometheus.CounterVec
	ActionFailures         *prometheus.CounterVec
	RelayPublished         *prometheus.CounterVec
	RelayDropped           *prometheus.CounterVec
	RelayDeliveryFailures  *prometheus.CounterVec
	DispatchResults        *prometheus.CounterVec
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of active call sessions.",
		}),
		SessionEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Normalized session events by type.",
		}, []string{"event"}),
		NormalizationDrops: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "normalization_drops_total",
			Help:      "Raw provider events dropped as malformed, by reason.",
		}, []string{"reason"}),
		ClassificationWarnings: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classification_warnings_total",
			Help:      "Participants with ambiguous connection attributes defaulted to web.",
		}),
		DtmfDigits: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dtmf_digits_total",
			Help:      "DTMF digits received by digit.",
		}, []string{"digit"}),
		DialogueActions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dialogue_actions_total",
			Help:      "Dialogue actions emitted by kind.",
		}, []string{"action"}),
		ActionFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "action_failures_total",
			Help:      "Dialogue action sink failures by kind.",
		}, []string{"action"}),
		RelayPublished: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_published_total",
			Help:      "Relay payloads published by topic and delivery mode.",
		}, []string{"topic", "mode"}),
		RelayDropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_dropped_total",
			Help:      "Best-effort relay payloads dropped under backpressure, by topic.",
		}, []string{"topic"}),
		RelayDeliveryFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_delivery_failures_total",
			Help:      "Reliable relay publishes that could not be confirmed, by topic.",
		}, []string{"topic"}),
		DispatchResults: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_results_total",
			Help:      "Command dispatch results by status.",
		}, []string{"status"}),
	}
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
