package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"SignalFuse/internal/domain/models"

	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 3, 4, 14, 0, 0, 0, time.UTC)

func testSeries(t *testing.T, symbol string, n int) models.Series {
	t.Helper()
	bars := make([]models.Bar, n)
	for i := range bars {
		p := 100 + float64(i)
		bars[i] = models.Bar{Timestamp: t0.Add(time.Duration(i) * time.Minute), Open: p, High: p + 1, Low: p - 1, Close: p + 0.5, Volume: 1000}
	}
	s, err := models.NewSeries(symbol, bars)
	require.NoError(t, err)
	return s
}

type fakeMetrics struct {
	mu         sync.Mutex
	signals    map[string]int
	failures   map[string]string
	consensus  int
	errors     map[string]int
	sent       map[string]int
	latencyOps map[string]int
	lastPrices map[string]float64
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{
		signals:    map[string]int{},
		failures:   map[string]string{},
		errors:     map[string]int{},
		sent:       map[string]int{},
		latencyOps: map[string]int{},
		lastPrices: map[string]float64{},
	}
}

func (m *fakeMetrics) RecordSignal(detector string, _ models.Direction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signals[detector]++
}

func (m *fakeMetrics) RecordDetectorFailure(detector, kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[detector] = kind
}

func (m *fakeMetrics) RecordConsensus(string, models.Consensus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.consensus++
}

func (m *fakeMetrics) RecordDecision(string, models.Direction)         {}
func (m *fakeMetrics) RecordSuppressed(string, models.SuppressionCode) {}

func (m *fakeMetrics) RecordMessageSent(sink, _ string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent[sink]++
}

func (m *fakeMetrics) RecordError(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[kind]++
}

func (m *fakeMetrics) RecordLatency(op string, _ float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latencyOps[op]++
}

func (m *fakeMetrics) RecordLastPrice(symbol string, price float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastPrices[symbol] = price
}

// fakeEvaluator runs per-name functions; names keep their declared order.
type fakeEvaluator struct {
	names []string
	fns   map[string]func(models.Series) (*models.Signal, error)
}

func (f *fakeEvaluator) Names() []string { return f.names }

func (f *fakeEvaluator) Evaluate(name string, s models.Series) (*models.Signal, error) {
	fn, ok := f.fns[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrUnknownDetector, name)
	}
	return fn(s)
}

func emit(name string, dir models.Direction, conf float64, delay time.Duration) func(models.Series) (*models.Signal, error) {
	return func(s models.Series) (*models.Signal, error) {
		time.Sleep(delay)
		last := s.Last()
		return &models.Signal{Detector: name, Direction: dir, Confidence: conf, Price: last.Close, GeneratedAt: last.Timestamp, Risk: models.RiskLow}, nil
	}
}

type fakeGate struct {
	calls int
	out   models.GateOutcome
	err   error
}

func (g *fakeGate) Process(_ context.Context, symbol string, c models.Consensus) (models.GateOutcome, error) {
	g.calls++
	return g.out, g.err
}

func (g *fakeGate) EmergencyStop(context.Context, string, string) (models.ExecutionState, error) {
	return models.ExecutionState{}, errors.New("not implemented")
}

func (g *fakeGate) Reset(context.Context, string) (models.ExecutionState, error) {
	return models.ExecutionState{}, errors.New("not implemented")
}

func (g *fakeGate) State(context.Context, string) (models.ExecutionState, error) {
	return models.ExecutionState{}, errors.New("not implemented")
}

type recordingSink struct {
	name string
	err  error
	mu   sync.Mutex
	got  []*models.CycleResult
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Publish(_ context.Context, r *models.CycleResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, r)
	return s.err
}

func (s *recordingSink) Close() error { return s.err }
