package http

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "pbx_gate"

// Metrics holds the Prometheus metrics of the gateway API.
type Metrics struct {
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	LoginAttempts    *prometheus.CounterVec
	RecordingFetches *prometheus.CounterVec
	ThrottledTotal   prometheus.Counter
}

// NewMetrics creates and registers all metrics with the given registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		RequestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "requests_total",
				Help:      "Total number of gateway API requests",
			},
			[]string{"route", "status"}, // status=ok/error
		),
		RequestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "request_duration_seconds",
				Help:      "Gateway API request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		LoginAttempts: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "login_attempts_total",
				Help:      "PBX login attempts by method and result",
			},
			[]string{"method", "result"}, // result=ok/rejected/error
		),
		RecordingFetches: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "recording_fetches_total",
				Help:      "Recording fetches by cache outcome",
			},
			[]string{"result"}, // result=hit/miss/failed
		),
		ThrottledTotal: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "login_throttled_total",
				Help:      "Login attempts refused by the login throttle",
			},
		),
	}
}

// StoreSizes reports the current size of the in-memory stores.
type StoreSizes struct {
	Sessions      func() int
	CacheEntries  func() int
	ThrottledKeys func() int
}

// RegisterStoreGauges exposes the non-nil size functions as gauges.
func RegisterStoreGauges(reg prometheus.Registerer, sizes StoreSizes) {
	gauge := func(name, help string, fn func() int) {
		if fn == nil {
			return
		}
		promauto.With(reg).NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      name,
			Help:      help,
		}, func() float64 { return float64(fn()) })
	}
	gauge("sessions", "Number of stored PBX sessions", sizes.Sessions)
	gauge("cache_entries", "Number of cached recordings", sizes.CacheEntries)
	gauge("throttle_keys", "Number of tracked login throttle keys", sizes.ThrottledKeys)
}
