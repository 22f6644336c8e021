package detectors

import (
	"testing"

	"SignalFuse/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// accelerating builds closes start + step*i + curve*i^2.
func accelerating(n int, start, step, curve float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		x := float64(i)
		out[i] = start + step*x + curve*x*x
	}
	return out
}

func TestAlligatorEatingUp(t *testing.T) {
	s := closesSeries(t, accelerating(25, 100, 1, 0.05), 0.5)
	sig, err := evaluateAlligator(s, nil)
	require.NoError(t, err)
	require.NotNil(t, sig)

	assert.Equal(t, models.Buy, sig.Direction)
	assert.Equal(t, 80.0, sig.Confidence)
	assert.Equal(t, models.RiskLow, sig.Risk)
	require.NotNil(t, sig.StopLoss)
	assert.InDelta(t, 115.7, *sig.StopLoss, 1e-9)
	assert.Contains(t, sig.Explanation, "eating")
}

func TestAlligatorEatingDown(t *testing.T) {
	s := closesSeries(t, accelerating(25, 200, -1, -0.05), 0.5)
	sig, err := evaluateAlligator(s, nil)
	require.NoError(t, err)
	require.NotNil(t, sig)

	assert.Equal(t, models.Sell, sig.Direction)
	assert.Equal(t, 80.0, sig.Confidence)
}

func TestAlligatorOrderedButNotWideningIsAwakening(t *testing.T) {
	cases := map[string][]float64{
		"constant spread":  linear(25, 100, 1),
		"spread narrowing": accelerating(25, 100, 2, -0.04),
	}
	for name, closes := range cases {
		t.Run(name, func(t *testing.T) {
			sig, err := evaluateAlligator(closesSeries(t, closes, 0.5), nil)
			require.NoError(t, err)
			require.NotNil(t, sig)
			assert.Equal(t, models.Buy, sig.Direction)
			assert.Equal(t, 65.0, sig.Confidence)
			assert.Contains(t, sig.Explanation, "awakening")
		})
	}
}

func TestAlligatorSleeping(t *testing.T) {
	s := closesSeries(t, linear(25, 100, 0), 0.5)
	sig, err := evaluateAlligator(s, nil)
	require.NoError(t, err)
	require.NotNil(t, sig)

	assert.Equal(t, models.Hold, sig.Direction)
	assert.Equal(t, 40.0, sig.Confidence)
	assert.Nil(t, sig.StopLoss)
}

func TestAlligatorSensitivityCapped(t *testing.T) {
	s := closesSeries(t, accelerating(25, 100, 1, 0.05), 0.5)
	sig, err := evaluateAlligator(s, Params{"sensitivity": SensitivityHigh})
	require.NoError(t, err)
	assert.Equal(t, 95.0, sig.Confidence)

	sig, err = evaluateAlligator(s, Params{"sensitivity": SensitivityLow})
	require.NoError(t, err)
	assert.InDelta(t, 64.0, sig.Confidence, 1e-9)
}

func TestAlligatorPeriodOrdering(t *testing.T) {
	s := closesSeries(t, linear(25, 100, 1), 0.5)
	_, err := evaluateAlligator(s, Params{"jaw_period": 5})

	var ipe *models.InvalidParameterError
	require.ErrorAs(t, err, &ipe)
	assert.Equal(t, "jaw_period", ipe.Param)
}

func TestAlligatorInsufficientData(t *testing.T) {
	_, err := evaluateAlligator(closesSeries(t, linear(21, 100, 1), 0.5), nil)
	assert.ErrorIs(t, err, models.ErrInsufficientData)
}

func TestAlligatorRejectsOversizedPeriods(t *testing.T) {
	err := ValidateParams(WilliamsAlligator, Params{"jaw_period": 1e9})
	var ipe *models.InvalidParameterError
	require.ErrorAs(t, err, &ipe)
	assert.Equal(t, "jaw_period", ipe.Param)

	assert.Error(t, ValidateParams(WilliamsAlligator, Params{"lips_shift": 1e12}))
}

func TestClassifyAlligator(t *testing.T) {
	narrow := alligatorLines{jaw: 100, teeth: 101, lips: 102}
	wide := alligatorLines{jaw: 100, teeth: 103, lips: 106}
	cases := []struct {
		name  string
		lines alligatorLines
		prev  alligatorLines
		price float64
		phase AlligatorPhase
		dir   models.Direction
	}{
		{"eating up", wide, narrow, 108, PhaseEating, models.Buy},
		{"ordered but converging", narrow, wide, 108, PhaseAwakening, models.Buy},
		{"eating down", alligatorLines{jaw: 106, teeth: 103, lips: 100}, alligatorLines{jaw: 104, teeth: 103, lips: 102}, 98, PhaseEating, models.Sell},
		{"awakening up", alligatorLines{jaw: 105, teeth: 100, lips: 102}, narrow, 104, PhaseAwakening, models.Buy},
		{"awakening down", alligatorLines{jaw: 95, teeth: 100, lips: 98}, narrow, 96, PhaseAwakening, models.Sell},
		{"satisfied", alligatorLines{jaw: 100, teeth: 104, lips: 106}, narrow, 103, PhaseSatisfied, models.Hold},
		{"sleeping", alligatorLines{jaw: 100, teeth: 100.2, lips: 100.1}, narrow, 100, PhaseSleeping, models.Hold},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			phase, dir := classifyAlligator(tc.lines, tc.prev, tc.price)
			assert.Equal(t, tc.phase, phase)
			assert.Equal(t, tc.dir, dir)
		})
	}
}
