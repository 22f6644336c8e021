package usecase

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"SignalFuse/internal/domain/models"
	"SignalFuse/internal/services/consensus"
	"SignalFuse/internal/services/detectors"
	"SignalFuse/internal/services/gate"
	"SignalFuse/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func allBuy(conf float64) *fakeEvaluator {
	ev := &fakeEvaluator{names: detectors.Names(), fns: map[string]func(models.Series) (*models.Signal, error){}}
	for _, n := range ev.names {
		ev.fns[n] = emit(n, models.Buy, conf, 0)
	}
	return ev
}

func TestCycleIsolatesDetectorFailures(t *testing.T) {
	ev := &fakeEvaluator{
		names: detectors.Names(),
		fns: map[string]func(models.Series) (*models.Signal, error){
			detectors.DarvasBox:         emit(detectors.DarvasBox, models.Buy, 80, 20*time.Millisecond),
			detectors.WilliamsAlligator: func(models.Series) (*models.Signal, error) { return nil, errors.New("boom") },
			detectors.RenkoBreakout:     func(models.Series) (*models.Signal, error) { panic("index out of range") },
			detectors.HeikinAshi:        emit(detectors.HeikinAshi, models.Buy, 70, 0),
			detectors.ElliottWave:       func(models.Series) (*models.Signal, error) { return nil, nil },
		},
	}
	m := newFakeMetrics()
	u := NewEvaluationCycle(ev, consensus.NewEngine(detectors.DefaultWeights()), nil, m, nil)

	res, err := u.Run(context.Background(), testSeries(t, "AAPL", 30), false)
	require.NoError(t, err)

	require.Len(t, res.Signals, 2)
	assert.Equal(t, detectors.DarvasBox, res.Signals[0].Detector)
	assert.Equal(t, detectors.HeikinAshi, res.Signals[1].Detector)
	assert.Contains(t, res.Errors, detectors.WilliamsAlligator)
	assert.Contains(t, res.Errors[detectors.RenkoBreakout], "panicked")
	assert.Equal(t, "error", m.failures[detectors.WilliamsAlligator])
	assert.Equal(t, "panic", m.failures[detectors.RenkoBreakout])

	assert.Equal(t, 2, res.Consensus.ActiveCount)
	assert.Equal(t, models.Buy, res.Consensus.Direction)
	assert.Nil(t, res.Outcome)
	assert.Equal(t, "AAPL", res.Symbol)
	assert.Equal(t, 30, res.Bars)
	assert.Equal(t, t0.Add(29*time.Minute), res.BarTime)
}

func TestCycleClassifiesInvalidParameter(t *testing.T) {
	ev := &fakeEvaluator{
		names: []string{detectors.DarvasBox},
		fns: map[string]func(models.Series) (*models.Signal, error){
			detectors.DarvasBox: func(models.Series) (*models.Signal, error) {
				return nil, &models.InvalidParameterError{Detector: detectors.DarvasBox, Param: "lookback", Value: -1, Reason: "gte"}
			},
		},
	}
	m := newFakeMetrics()
	res, err := NewEvaluationCycle(ev, consensus.NewEngine(nil), nil, m, nil).Run(context.Background(), testSeries(t, "AAPL", 5), false)
	require.NoError(t, err)
	assert.Equal(t, "invalid_parameter", m.failures[detectors.DarvasBox])
	assert.Equal(t, models.Hold, res.Consensus.Direction)
	assert.Equal(t, models.RiskHigh, res.Consensus.RiskAssessment)
}

func TestCycleSkipsGateWithoutExecute(t *testing.T) {
	g := &fakeGate{}
	u := NewEvaluationCycle(allBuy(80), consensus.NewEngine(detectors.DefaultWeights()), g, nil, nil)
	res, err := u.Run(context.Background(), testSeries(t, "AAPL", 10), false)
	require.NoError(t, err)
	assert.Zero(t, g.calls)
	assert.Nil(t, res.Outcome)
	assert.Nil(t, res.Errors)
}

func TestCycleExecutesThroughRegistry(t *testing.T) {
	reg, err := gate.NewRegistry(gate.RegistryConfig{
		ConsensusThreshold: 60,
		DailyTradeCap:      1,
		Clock:              func() time.Time { return t0 },
	}, nil, nil, nil)
	require.NoError(t, err)

	ok := &recordingSink{name: "ok"}
	bad := &recordingSink{name: "bad", err: errors.New("broker down")}
	m := newFakeMetrics()
	u := NewEvaluationCycle(allBuy(80), consensus.NewEngine(detectors.DefaultWeights()), reg, m, nil, WithSinks(ok, bad))

	res, err := u.Run(context.Background(), testSeries(t, "AAPL", 10), true)
	require.NoError(t, err)
	assert.Equal(t, models.Buy, res.Consensus.Direction)
	assert.Equal(t, 95.0, res.Consensus.Confidence)
	assert.Equal(t, models.RiskLow, res.Consensus.RiskAssessment)
	require.NotNil(t, res.Outcome)
	require.NotNil(t, res.Outcome.Decision)
	assert.NotEmpty(t, res.Outcome.Decision.ID)

	assert.Len(t, ok.got, 1)
	assert.Len(t, bad.got, 1)
	assert.Equal(t, 1, m.sent["ok"])
	assert.Equal(t, 1, m.errors["sink_bad"])

	// Same day, cap of one: the second cycle is suppressed but still delivered.
	res, err = u.Run(context.Background(), testSeries(t, "AAPL", 11), true)
	require.NoError(t, err)
	require.NotNil(t, res.Outcome.Suppressed)
	assert.Equal(t, models.SuppressedDailyCap, res.Outcome.Suppressed.Code)
	assert.Len(t, ok.got, 2)
}

func TestCycleLogsGateOutcomeOnce(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewWriter(&buf, "info")
	reg, err := gate.NewRegistry(gate.RegistryConfig{
		ConsensusThreshold: 60,
		DailyTradeCap:      1,
		Clock:              func() time.Time { return t0 },
	}, nil, nil, log)
	require.NoError(t, err)
	u := NewEvaluationCycle(allBuy(80), consensus.NewEngine(detectors.DefaultWeights()), reg, nil, log)

	_, err = u.Run(context.Background(), testSeries(t, "AAPL", 10), true)
	require.NoError(t, err)
	_, err = u.Run(context.Background(), testSeries(t, "AAPL", 11), true)
	require.NoError(t, err)

	out := buf.String()
	assert.Equal(t, 1, strings.Count(out, "execution authorized"))
	assert.Equal(t, 1, strings.Count(out, "consensus suppressed"))
	assert.NotContains(t, out, "execution decision")
}

func TestCycleSurfacesStaleState(t *testing.T) {
	stale := &models.StaleStateError{Symbol: "AAPL", LastTradeDate: t0.AddDate(0, 0, 1), Now: t0}
	g := &fakeGate{err: stale}
	sink := &recordingSink{name: "ok"}
	u := NewEvaluationCycle(allBuy(80), consensus.NewEngine(detectors.DefaultWeights()), g, nil, nil, WithSinks(sink))

	res, err := u.Run(context.Background(), testSeries(t, "AAPL", 10), true)
	require.Error(t, err)
	var se *models.StaleStateError
	assert.ErrorAs(t, err, &se)
	require.NotNil(t, res)
	assert.Nil(t, res.Outcome)
	assert.Len(t, res.Signals, 5)
	assert.Empty(t, sink.got)
}

func TestCycleKeepsOutcomeWhenStateSaveFails(t *testing.T) {
	g := &fakeGate{
		out: models.GateOutcome{Decision: &models.ExecutionDecision{ID: "d-1", Symbol: "AAPL", Direction: models.Buy}},
		err: errors.New("save gate state AAPL: redis timeout"),
	}
	sink := &recordingSink{name: "ok"}
	u := NewEvaluationCycle(allBuy(80), consensus.NewEngine(detectors.DefaultWeights()), g, nil, nil, WithSinks(sink))

	res, err := u.Run(context.Background(), testSeries(t, "AAPL", 10), true)
	require.NoError(t, err)
	require.NotNil(t, res.Outcome)
	assert.Equal(t, "d-1", res.Outcome.Decision.ID)
	assert.Contains(t, res.Errors["gate"], "redis timeout")
	assert.Len(t, sink.got, 1)
}

func TestCycleRejectsEmptySeries(t *testing.T) {
	u := NewEvaluationCycle(allBuy(80), consensus.NewEngine(nil), nil, nil, nil)
	_, err := u.Run(context.Background(), models.Series{}, false)
	var ipe *models.InvalidParameterError
	assert.ErrorAs(t, err, &ipe)
}

func TestCycleCloseJoinsSinkErrors(t *testing.T) {
	u := NewEvaluationCycle(allBuy(80), consensus.NewEngine(nil), nil, nil, nil,
		WithSinks(&recordingSink{name: "a"}, &recordingSink{name: "b", err: errors.New("closed twice")}))
	err := u.Close()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "close b")
}
