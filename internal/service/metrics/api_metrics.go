package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// API holds per-endpoint latency and error metrics of the engine API.
type API struct {
	Latency *prometheus.HistogramVec
	Errors  *prometheus.CounterVec
}

func NewAPI(reg prometheus.Registerer) *API {
	f := promauto.With(reg)
	return &API{
		Latency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "signalfuse",
			Subsystem: "api",
			Name:      "latency_seconds",
			Help:      "Latency of engine endpoints",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),
		Errors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "signalfuse",
			Subsystem: "api",
			Name:      "errors_total",
			Help:      "Errors by engine endpoint and code",
		}, []string{"endpoint", "code"}),
	}
}

func (m *API) Observe(endpoint string, seconds float64) {
	if m == nil {
		return
	}
	m.Latency.WithLabelValues(endpoint).Observe(seconds)
}

func (m *API) Fail(endpoint, code string) {
	if m == nil {
		return
	}
	m.Errors.WithLabelValues(endpoint, code).Inc()
}
