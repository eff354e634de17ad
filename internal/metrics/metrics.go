package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	EventsSeen       prometheus.Counter
	MatchCount       prometheus.Counter
	ForwardSuccesses prometheus.Counter
	ForwardFailures  prometheus.Counter
	RateLimited      prometheus.Counter
	ForwardDuration  prometheus.Histogram
	TotalRules       prometheus.Gauge
	TotalSources     prometheus.Gauge
	Commands         *prometheus.CounterVec
	ForwarderRunning prometheus.Gauge
}

// NewMetrics creates the metrics and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		EventsSeen: factory.NewCounter(prometheus.CounterOpts{
			Name: "telegram_forwarder_events_total",
			Help: "Total number of inbound messages seen by the forwarder",
		}),
		MatchCount: factory.NewCounter(prometheus.CounterOpts{
			Name: "telegram_forwarder_match_count",
			Help: "Total number of messages that matched a forwarding rule",
		}),
		ForwardSuccesses: factory.NewCounter(prometheus.CounterOpts{
			Name: "telegram_forwarder_forward_successes",
			Help: "Total number of successful message copies",
		}),
		ForwardFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "telegram_forwarder_forward_failures",
			Help: "Total number of dropped message copies",
		}),
		RateLimited: factory.NewCounter(prometheus.CounterOpts{
			Name: "telegram_forwarder_rate_limited_total",
			Help: "Total number of copies that hit a rate limit",
		}),
		ForwardDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "telegram_forwarder_forward_duration_seconds",
			Help:    "Time spent copying a matched message, including backoff",
			Buckets: prometheus.DefBuckets,
		}),
		TotalRules: factory.NewGauge(prometheus.GaugeOpts{
			Name: "telegram_forwarder_rules",
			Help: "Number of configured forwarding rules",
		}),
		TotalSources: factory.NewGauge(prometheus.GaugeOpts{
			Name: "telegram_forwarder_sources",
			Help: "Number of source chats across all forwarding rules",
		}),
		Commands: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "telegram_forwarder_commands_total",
			Help: "Admin commands processed, by command and result",
		}, []string{"command", "result"}),
		ForwarderRunning: factory.NewGauge(prometheus.GaugeOpts{
			Name: "telegram_forwarder_forwarder_running",
			Help: "1 while the forwarding identity is connected",
		}),
	}
}
