// Package metrics holds the Prometheus collectors of the service.
//
// Collectors always exist so callers never nil-check them; they are only
// exposed when Enabled is set before Init.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace = "certhub"
)

var (
	once     sync.Once
	registry *prometheus.Registry

	// Enabled controls whether collectors are registered and served
	Enabled bool

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 30, 120},
		},
		[]string{"method", "endpoint"},
	)

	ConcurrentRequests = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_concurrent_requests",
			Help:      "Number of in-flight HTTP requests",
		},
	)

	IssuanceTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "issuance_total",
			Help:      "Certificate issuance attempts by mode and result",
		},
		[]string{"mode", "result"},
	)

	IssuanceDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "issuance_duration_seconds",
			Help:      "Duration of issuance flows in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300},
		},
		[]string{"mode"},
	)

	CAPollDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ca_poll_duration_seconds",
			Help:      "Time spent polling the CA per stage",
			Buckets:   []float64{0.5, 2, 5, 15, 30, 60, 120},
		},
		[]string{"stage", "result"},
	)

	DNSProviderCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dns_provider_calls_total",
			Help:      "DNS vendor API calls by provider, operation and result",
		},
		[]string{"provider", "operation", "result"},
	)

	DNSProviderCallDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dns_provider_call_duration_seconds",
			Help:      "Duration of DNS vendor API calls in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"provider", "operation"},
	)

	CertificatesSweptTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "certificates_swept_total",
			Help:      "Certificates changed by the background sweeper",
		},
		[]string{"action"},
	)

	Up = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "up",
			Help:      "Service is up",
		},
	)
)

func initRegistry() {
	registry = prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	registry.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDurationSeconds,
		ConcurrentRequests,
		IssuanceTotal,
		IssuanceDurationSeconds,
		CAPollDurationSeconds,
		DNSProviderCallsTotal,
		DNSProviderCallDurationSeconds,
		CertificatesSweptTotal,
		Up,
	)

	Up.Set(1)
}

// Init initializes the metrics registry with all collectors.
// Enabled must be set before the first call.
func Init() *prometheus.Registry {
	once.Do(func() {
		if !Enabled {
			registry = prometheus.NewRegistry()
			return
		}
		initRegistry()
	})

	return registry
}

// GetRegistry returns the prometheus registry
func GetRegistry() *prometheus.Registry {
	if registry == nil {
		return Init()
	}
	return registry
}

// Handler serves the registry in the Prometheus exposition format
func Handler() http.Handler {
	return promhttp.HandlerFor(GetRegistry(), promhttp.HandlerOpts{})
}

// Result maps an error to a result label
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
