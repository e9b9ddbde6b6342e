package prometheus

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var registry = prometheus.NewRegistry()

var registerer = prometheus.WrapRegistererWith(prometheus.Labels{"app": "gateguard"}, registry)

var (
	// Latency buckets in milliseconds. Validation should be fast, the upper
	// buckets exist for multipart uploads and webhook self-tests.
	latencyBuckets = []float64{
		1, 2.5, 5,
		10, 25, 50,
		100, 250, 1000,
		5000, 10000,
	}

	GatewayRequestTotal = promauto.With(registerer).NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateguard_requests_total",
			Help: "Total number of requests that went through the chain",
		},
		[]string{"method", "status"},
	)

	GatewayRequestLatency = promauto.With(registerer).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateguard_latency_ms",
			Help:    "Time spent in the chain in milliseconds",
			Buckets: latencyBuckets,
		},
		[]string{"route_class"},
	)

	GatewayRejections = promauto.With(registerer).NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateguard_rejections_total",
			Help: "Requests rejected by a validation stage",
		},
		[]string{"stage", "code"},
	)

	RateLimitBreaches = promauto.With(registerer).NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateguard_rate_limit_breaches_total",
			Help: "Transitions of an identifier into the blocked state per rule",
		},
		[]string{"rule"},
	)

	BlacklistedIdentifiers = promauto.With(registerer).NewGauge(
		prometheus.GaugeOpts{
			Name: "gateguard_blacklisted_identifiers",
			Help: "Identifiers currently on the blacklist",
		},
	)

	WebhookValidations = promauto.With(registerer).NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateguard_webhook_validations_total",
			Help: "Webhook validation outcomes per endpoint",
		},
		[]string{"webhook", "result"},
	)

	UploadedFiles = promauto.With(registerer).NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateguard_uploaded_files_total",
			Help: "Files inspected by the upload validator",
		},
		[]string{"result"},
	)
)

type MetricsConfig struct {
	EnableLatency bool
}

func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{EnableLatency: true}
}

var (
	Config   = DefaultMetricsConfig()
	initOnce sync.Once
)

func Initialize(cfg MetricsConfig) {
	Config = cfg
	initOnce.Do(func() {
		registry.MustRegister(
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			collectors.NewGoCollector(),
		)
		prometheus.DefaultRegisterer = registry
		prometheus.DefaultGatherer = registry
	})
}

func Registry() *prometheus.Registry {
	return registry
}
