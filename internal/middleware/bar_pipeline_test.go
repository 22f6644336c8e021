package middleware

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"SignalFuse/internal/domain/models"
	domrepo "SignalFuse/internal/domain/repository"
	"SignalFuse/internal/usecase"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 3, 4, 14, 0, 0, 0, time.UTC)

func bar(i int, c float64) models.Bar {
	return models.Bar{Timestamp: t0.Add(time.Duration(i) * time.Minute), Open: c, High: c + 1, Low: c - 1, Close: c, Volume: 5}
}

type countingMetrics struct {
	mu     sync.Mutex
	errors map[string]int
}

func newCountingMetrics() *countingMetrics { return &countingMetrics{errors: map[string]int{}} }

func (m *countingMetrics) RecordSignal(string, models.Direction)           {}
func (m *countingMetrics) RecordDetectorFailure(string, string)            {}
func (m *countingMetrics) RecordConsensus(string, models.Consensus)        {}
func (m *countingMetrics) RecordDecision(string, models.Direction)         {}
func (m *countingMetrics) RecordSuppressed(string, models.SuppressionCode) {}
func (m *countingMetrics) RecordMessageSent(string, string)                {}
func (m *countingMetrics) RecordLatency(string, float64)                   {}
func (m *countingMetrics) RecordError(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[kind]++
}

func (m *countingMetrics) count(kind string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errors[kind]
}

type fakeRunner struct {
	mu      sync.Mutex
	lens    []int
	execute []bool
	err     error
}

func (r *fakeRunner) Run(_ context.Context, s models.Series, execute bool) (*models.CycleResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lens = append(r.lens, s.Len())
	r.execute = append(r.execute, execute)
	return &models.CycleResult{Symbol: s.Symbol()}, r.err
}

type flakyWriter struct {
	mu       sync.Mutex
	failures int
	stored   []models.Bar
}

func (w *flakyWriter) StoreBar(_ context.Context, _ string, _ domrepo.Timeframe, b models.Bar) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.failures > 0 {
		w.failures--
		return errors.New("clickhouse unavailable")
	}
	w.stored = append(w.stored, b)
	return nil
}

func (w *flakyWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.stored)
}

func TestPipelineRunsCycleOncePerAcceptedBar(t *testing.T) {
	runner := &fakeRunner{}
	m := newCountingMetrics()
	p := NewBarPipeline(usecase.NewSeriesBook(100), runner, m, nil, WithMinBars(2), WithAutoExecute(true))
	ctx := context.Background()

	require.NoError(t, p.Ingest(ctx, "AAPL", bar(0, 100)))
	require.NoError(t, p.Ingest(ctx, "AAPL", bar(1, 101)))
	require.NoError(t, p.Ingest(ctx, "AAPL", bar(1, 102))) // duplicate
	require.NoError(t, p.Ingest(ctx, "AAPL", bar(0, 99)))  // out of order
	require.NoError(t, p.Ingest(ctx, "AAPL", bar(2, 103)))

	assert.Equal(t, []int{2, 3}, runner.lens)
	assert.Equal(t, []bool{true, true}, runner.execute)
	assert.Equal(t, 1, m.count("pipeline_duplicate"))
	assert.Equal(t, 1, m.count("pipeline_out_of_order"))
}

func TestPipelineRejectsInvalidBars(t *testing.T) {
	m := newCountingMetrics()
	runner := &fakeRunner{}
	p := NewBarPipeline(usecase.NewSeriesBook(10), runner, m, nil)
	ctx := context.Background()

	inverted := bar(0, 100)
	inverted.High, inverted.Low = 90, 110
	nan := bar(1, 100)
	nan.Close = math.NaN()
	negVol := bar(2, 100)
	negVol.Volume = -1

	assert.Error(t, p.Ingest(ctx, "AAPL", inverted))
	assert.Error(t, p.Ingest(ctx, "AAPL", nan))
	assert.Error(t, p.Ingest(ctx, "AAPL", negVol))
	assert.Error(t, p.Ingest(ctx, "", bar(3, 100)))
	assert.Equal(t, 4, m.count("pipeline_validate"))
	assert.Empty(t, runner.lens)
}

func TestPipelineFiltersSymbols(t *testing.T) {
	runner := &fakeRunner{}
	m := newCountingMetrics()
	p := NewBarPipeline(usecase.NewSeriesBook(10), runner, m, nil, WithSymbols([]string{"AAPL"}))

	require.NoError(t, p.Ingest(context.Background(), "TSLA", bar(0, 100)))
	assert.Empty(t, runner.lens)
	assert.Equal(t, 1, m.count("pipeline_filtered"))
}

func TestPipelineSwallowsCycleErrors(t *testing.T) {
	runner := &fakeRunner{err: &models.StaleStateError{Symbol: "AAPL"}}
	m := newCountingMetrics()
	p := NewBarPipeline(usecase.NewSeriesBook(10), runner, m, nil)

	require.NoError(t, p.Ingest(context.Background(), "AAPL", bar(0, 100)))
	assert.Equal(t, 1, m.count("pipeline_cycle"))
}

func TestPipelineRetriesFailedWrites(t *testing.T) {
	w := &flakyWriter{failures: 1}
	m := newCountingMetrics()
	p := NewBarPipeline(usecase.NewSeriesBook(10), nil, m, nil, WithBarWriter(w, domrepo.TF1m))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)
	defer p.Stop()

	require.NoError(t, p.Ingest(ctx, "AAPL", bar(0, 100)))
	assert.Equal(t, 1, m.count("pipeline_store"))

	assert.Eventually(t, func() bool { return w.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.Zero(t, p.Pending())
}
