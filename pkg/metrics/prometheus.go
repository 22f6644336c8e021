package metrics

import (
	"SignalFuse/internal/domain/models"
	"SignalFuse/internal/domain/repository"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "signalfuse"

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	signals        *prometheus.CounterVec
	detectorErrors *prometheus.CounterVec
	consensusConf  *prometheus.GaugeVec
	consensusAgree *prometheus.GaugeVec
	consensusScore *prometheus.GaugeVec
	decisions      *prometheus.CounterVec
	suppressions   *prometheus.CounterVec
	messagesSent   *prometheus.CounterVec
	errorsTotal    *prometheus.CounterVec
	lastPrice      *prometheus.GaugeVec
	latency        *prometheus.HistogramVec
}

// New registers the collectors on the default registry.
func New() *Recorder {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry registers the collectors on reg.
func NewWithRegistry(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		signals: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signals_total",
			Help:      "Signals emitted by detector and direction",
		}, []string{"detector", "direction"}),
		detectorErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "detector_failures_total",
			Help:      "Detector evaluations that failed",
		}, []string{"detector", "kind"}),
		consensusConf: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "consensus_confidence",
			Help:      "Confidence of the latest consensus",
		}, []string{"symbol"}),
		consensusAgree: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "consensus_agreement",
			Help:      "Agreement level of the latest consensus",
		}, []string{"symbol"}),
		consensusScore: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "consensus_weighted_score",
			Help:      "Net weighted score of the latest consensus",
		}, []string{"symbol"}),
		decisions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "execution_decisions_total",
			Help:      "Execution decisions authorized by the gate",
		}, []string{"symbol", "direction"}),
		suppressions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "suppressed_total",
			Help:      "Consensus records suppressed by the gate",
		}, []string{"symbol", "reason"}),
		messagesSent: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_sent_total",
			Help:      "Cycle results delivered to a sink",
		}, []string{"sink", "symbol"}),
		errorsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Total number of errors encountered",
		}, []string{"type"}),
		lastPrice: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_price",
			Help:      "Last ingested close for a symbol",
		}, []string{"symbol"}),
		latency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Duration of operations in seconds",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"operation"}),
	}
}

func (r *Recorder) RecordSignal(detector string, direction models.Direction) {
	r.signals.WithLabelValues(detector, string(direction)).Inc()
}

func (r *Recorder) RecordDetectorFailure(detector, kind string) {
	r.detectorErrors.WithLabelValues(detector, kind).Inc()
}

func (r *Recorder) RecordConsensus(symbol string, c models.Consensus) {
	r.consensusConf.WithLabelValues(symbol).Set(c.Confidence)
	r.consensusAgree.WithLabelValues(symbol).Set(c.Agreement)
	r.consensusScore.WithLabelValues(symbol).Set(c.WeightedScore)
}

func (r *Recorder) RecordDecision(symbol string, direction models.Direction) {
	r.decisions.WithLabelValues(symbol, string(direction)).Inc()
}

func (r *Recorder) RecordSuppressed(symbol string, code models.SuppressionCode) {
	r.suppressions.WithLabelValues(symbol, string(code)).Inc()
}

// RecordMessageSent records a cycle result delivered to a sink.
func (r *Recorder) RecordMessageSent(sink, symbol string) {
	r.messagesSent.WithLabelValues(sink, symbol).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLastPrice records the last price for a symbol.
func (r *Recorder) RecordLastPrice(symbol string, price float64) {
	r.lastPrice.WithLabelValues(symbol).Set(price)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

var _ repository.Metrics = (*Recorder)(nil)
