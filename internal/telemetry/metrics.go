package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "livescoring"

// Registry is dedicated to this process so the default Go collectors stay out of /metrics.
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

// Metrics is the global metrics registry.
var Metrics = struct {
	WSConnects         prometheus.Counter
	WSReconnects       prometheus.Counter
	WSMessagesReceived prometheus.Counter
	WSParseErrors      prometheus.Counter
	ActiveTopics       prometheus.Gauge
	FramesArchived     prometheus.Counter

	SnapshotFetches  *prometheus.CounterVec
	SnapshotErrors   *prometheus.CounterVec
	SnapshotLatency  prometheus.Histogram
	PushApplied      *prometheus.CounterVec
	StaleDropped     prometheus.Counter
	DuplicateEvents  prometheus.Counter
	InboxOverflows   prometheus.Counter
	ActionsSent      *prometheus.CounterVec
	ActionErrors     *prometheus.CounterVec
	ValidationErrors prometheus.Counter
	Notifications    *prometheus.CounterVec

	FeedClients prometheus.Gauge
	FeedDropped prometheus.Counter
}{
	WSConnects: factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "channel", Name: "connects_total",
		Help: "Successful STOMP connections.",
	}),
	WSReconnects: factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "channel", Name: "reconnect_attempts_total",
		Help: "Reconnect attempts after a transport close.",
	}),
	WSMessagesReceived: factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "channel", Name: "messages_total",
		Help: "MESSAGE frames received.",
	}),
	WSParseErrors: factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "channel", Name: "parse_errors_total",
		Help: "Frames dropped because they could not be decoded.",
	}),
	ActiveTopics: factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "channel", Name: "active_topics",
		Help: "Topics currently subscribed on the live socket.",
	}),
	FramesArchived: factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "channel", Name: "frames_archived_total",
		Help: "MESSAGE bodies written to the frame archive.",
	}),
	SnapshotFetches: factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "backend", Name: "fetches_total",
		Help: "Snapshot requests by operation.",
	}, []string{"op"}),
	SnapshotErrors: factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "backend", Name: "fetch_errors_total",
		Help: "Failed snapshot requests by operation.",
	}, []string{"op"}),
	SnapshotLatency: factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace, Subsystem: "backend", Name: "request_seconds",
		Help:    "Backend request latency.",
		Buckets: prometheus.DefBuckets,
	}),
	PushApplied: factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "reconciler", Name: "push_applied_total",
		Help: "Push messages applied by envelope type.",
	}, []string{"type"}),
	StaleDropped: factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "reconciler", Name: "stale_dropped_total",
		Help: "Push messages or fetch results dropped because the selection changed.",
	}),
	DuplicateEvents: factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "reconciler", Name: "duplicate_events_total",
		Help: "Scoring events discarded because their sequence id was already logged.",
	}),
	InboxOverflows: factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "reconciler", Name: "inbox_overflows_total",
		Help: "Closures dropped because the session inbox was full.",
	}),
	ActionsSent: factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "dispatch", Name: "actions_total",
		Help: "Scoring commands accepted by the backend.",
	}, []string{"action"}),
	ActionErrors: factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "dispatch", Name: "action_errors_total",
		Help: "Scoring commands rejected by the backend.",
	}, []string{"action"}),
	ValidationErrors: factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "dispatch", Name: "validation_errors_total",
		Help: "Commands blocked before reaching the backend.",
	}),
	Notifications: factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "completion", Name: "notifications_total",
		Help: "Terminal notifications emitted by kind.",
	}, []string{"kind"}),
	FeedClients: factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "feed", Name: "clients",
		Help: "Connected live feed clients.",
	}),
	FeedDropped: factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "feed", Name: "dropped_total",
		Help: "Feed messages dropped for slow clients.",
	}),
}

// Handler serves the registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}
