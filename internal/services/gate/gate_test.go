package gate

import (
	"testing"
	"time"

	"SignalFuse/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func strongBuy() models.Consensus {
	return models.Consensus{
		Direction:      models.Buy,
		Confidence:     80,
		Agreement:      100,
		ActiveCount:    5,
		BuyCount:       5,
		WeightedScore:  0.8,
		RiskAssessment: models.RiskLow,
	}
}

func newTestGate(t *testing.T, dailyCap int) (*Gate, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2024, 3, 4, 14, 0, 0, 0, time.UTC)}
	g, err := New("AAPL", 60, dailyCap, WithClock(clock.Now))
	require.NoError(t, err)
	return g, clock
}

func TestGateExecutes(t *testing.T) {
	g, clock := newTestGate(t, 5)
	out, err := g.Process(strongBuy())
	require.NoError(t, err)
	require.True(t, out.Executed())
	assert.Nil(t, out.Suppressed)

	assert.NotEmpty(t, out.Decision.ID)
	assert.Equal(t, models.Buy, out.Decision.Direction)
	assert.Equal(t, 80.0, out.Decision.Confidence)
	assert.Equal(t, clock.t, out.Decision.Timestamp)
	assert.Equal(t, models.PhaseExecuted, out.State.Phase)
	assert.Equal(t, 1, out.State.TradesToday)
	assert.Equal(t, time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC), out.State.LastTradeDate)
}

func TestGateDailyCapOfOne(t *testing.T) {
	g, _ := newTestGate(t, 1)

	first, err := g.Process(strongBuy())
	require.NoError(t, err)
	assert.True(t, first.Executed())

	second, err := g.Process(strongBuy())
	require.NoError(t, err)
	assert.False(t, second.Executed())
	require.NotNil(t, second.Suppressed)
	assert.Equal(t, models.SuppressedDailyCap, second.Suppressed.Code)
	assert.Equal(t, 1, second.State.TradesToday)
	assert.Equal(t, models.PhaseIdle, second.State.Phase)
}

func TestGateZeroCapNeverExecutes(t *testing.T) {
	g, _ := newTestGate(t, 0)
	out, err := g.Process(strongBuy())
	require.NoError(t, err)
	assert.Equal(t, models.SuppressedDailyCap, out.Suppressed.Code)
}

func TestGateRolloverResetsCount(t *testing.T) {
	g, clock := newTestGate(t, 2)
	for i := 0; i < 2; i++ {
		out, err := g.Process(strongBuy())
		require.NoError(t, err)
		require.True(t, out.Executed())
	}
	out, err := g.Process(strongBuy())
	require.NoError(t, err)
	require.False(t, out.Executed())

	clock.Advance(12 * time.Hour)
	out, err = g.Process(strongBuy())
	require.NoError(t, err)
	assert.True(t, out.Executed())
	assert.Equal(t, 1, out.State.TradesToday)
	assert.Equal(t, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), out.State.LastTradeDate)
}

func TestGateRolloverUsesLocation(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	clock := &fakeClock{t: time.Date(2024, 3, 4, 20, 0, 0, 0, time.UTC)}
	g, err := New("AAPL", 60, 1, WithClock(clock.Now), WithLocation(ny))
	require.NoError(t, err)

	out, err := g.Process(strongBuy())
	require.NoError(t, err)
	require.True(t, out.Executed())

	// 02:00 UTC next day is still the 4th in New York.
	clock.Advance(6 * time.Hour)
	out, err = g.Process(strongBuy())
	require.NoError(t, err)
	assert.Equal(t, models.SuppressedDailyCap, out.Suppressed.Code)

	clock.Advance(4 * time.Hour)
	out, err = g.Process(strongBuy())
	require.NoError(t, err)
	assert.True(t, out.Executed())
}

func TestGateEmergencyStopDominates(t *testing.T) {
	g, clock := newTestGate(t, 100)
	st := g.EmergencyStop("fat finger")
	assert.True(t, st.EmergencyStop)
	assert.Equal(t, "fat finger", st.StopReason)

	perfect := strongBuy()
	perfect.Confidence = 95
	for i := 0; i < 10; i++ {
		out, err := g.Process(perfect)
		require.NoError(t, err)
		require.False(t, out.Executed())
		assert.Equal(t, models.SuppressedEmergencyStop, out.Suppressed.Code)
		clock.Advance(30 * time.Hour)
	}

	st = g.Reset()
	assert.False(t, st.EmergencyStop)
	out, err := g.Process(perfect)
	require.NoError(t, err)
	assert.True(t, out.Executed())
}

func TestGateResetKeepsTradeCount(t *testing.T) {
	g, _ := newTestGate(t, 1)
	_, err := g.Process(strongBuy())
	require.NoError(t, err)

	g.EmergencyStop("halt")
	st := g.Reset()
	assert.Equal(t, 1, st.TradesToday)

	out, err := g.Process(strongBuy())
	require.NoError(t, err)
	assert.Equal(t, models.SuppressedDailyCap, out.Suppressed.Code)
}

func TestGateSuppressionReasons(t *testing.T) {
	hold := strongBuy()
	hold.Direction = models.Hold

	weak := strongBuy()
	weak.Confidence = 59.9

	risky := strongBuy()
	risky.RiskAssessment = models.RiskHigh

	cases := []struct {
		name string
		c    models.Consensus
		want models.SuppressionCode
	}{
		{"hold", hold, models.SuppressedHoldDirection},
		{"below threshold", weak, models.SuppressedBelowThreshold},
		{"high risk", risky, models.SuppressedHighRisk},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			g, _ := newTestGate(t, 5)
			out, err := g.Process(tc.c)
			require.NoError(t, err)
			require.NotNil(t, out.Suppressed)
			assert.Equal(t, tc.want, out.Suppressed.Code)
			assert.Equal(t, 1, out.State.SuppressedTotal)
			assert.Equal(t, tc.want, out.State.LastSuppressed)
			assert.Equal(t, 0, out.State.TradesToday)
		})
	}
}

func TestGateSellAtThreshold(t *testing.T) {
	g, _ := newTestGate(t, 5)
	c := strongBuy()
	c.Direction = models.Sell
	c.Confidence = 60
	c.RiskAssessment = models.RiskMedium

	out, err := g.Process(c)
	require.NoError(t, err)
	require.True(t, out.Executed())
	assert.Equal(t, models.Sell, out.Decision.Direction)
}

func TestGateStaleState(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 3, 4, 14, 0, 0, 0, time.UTC)}
	g, err := Restore(models.ExecutionState{
		Symbol:             "AAPL",
		TradesToday:        2,
		LastTradeDate:      time.Date(2024, 3, 6, 0, 0, 0, 0, time.UTC),
		DailyTradeCap:      5,
		ConsensusThreshold: 60,
	}, WithClock(clock.Now))
	require.NoError(t, err)

	out, err := g.Process(strongBuy())
	var stale *models.StaleStateError
	require.ErrorAs(t, err, &stale)
	assert.Equal(t, "AAPL", stale.Symbol)
	assert.Nil(t, out.Decision)
	assert.Nil(t, out.Suppressed)
	assert.Equal(t, 2, g.State().TradesToday)
}

func TestValidateLimits(t *testing.T) {
	var ipe *models.InvalidParameterError
	require.ErrorAs(t, ValidateLimits(101, 5), &ipe)
	assert.Equal(t, "consensus_threshold", ipe.Param)
	require.ErrorAs(t, ValidateLimits(60, -1), &ipe)
	assert.Equal(t, "daily_trade_cap", ipe.Param)
	assert.NoError(t, ValidateLimits(0, 0))

	_, err := New("AAPL", -1, 5)
	assert.Error(t, err)
}
