package detectors

import (
	"fmt"
	"math"

	"SignalFuse/internal/domain/models"
	"SignalFuse/internal/services/features"
)

// Sensitivity multipliers.
const (
	SensitivityLow    = 0.8
	SensitivityMedium = 1.0
	SensitivityHigh   = 1.2
)

// AlligatorPhase is the state read from the three lines.
type AlligatorPhase string

const (
	PhaseSleeping  AlligatorPhase = "sleeping"
	PhaseAwakening AlligatorPhase = "awakening"
	PhaseEating    AlligatorPhase = "eating"
	PhaseSatisfied AlligatorPhase = "satisfied"
)

const (
	alligatorEatingConfidence    = 80
	alligatorAwakeningConfidence = 65
	alligatorSatisfiedConfidence = 50
	alligatorSleepingConfidence  = 40
	alligatorMaxConfidence       = 95
	alligatorSleepSpread         = 0.01
	// relative widening below this counts as flat
	alligatorDivergeEps = 1e-9
)

type alligatorParams struct {
	JawPeriod   int     `param:"jaw_period" default:"13" validate:"gte=2,lte=500,gtfield=TeethPeriod"`
	TeethPeriod int     `param:"teeth_period" default:"8" validate:"gte=2,lte=500,gtfield=LipsPeriod"`
	LipsPeriod  int     `param:"lips_period" default:"5" validate:"gte=1,lte=500"`
	JawShift    int     `param:"jaw_shift" default:"8" validate:"gte=0,lte=100"`
	TeethShift  int     `param:"teeth_shift" default:"5" validate:"gte=0,lte=100"`
	LipsShift   int     `param:"lips_shift" default:"3" validate:"gte=0,lte=100"`
	Sensitivity float64 `param:"sensitivity" default:"1.0" validate:"gte=0.5,lte=1.5"`
}

type alligatorLines struct {
	jaw, teeth, lips float64
}

func (l alligatorLines) spread() float64 {
	return math.Max(l.jaw, math.Max(l.teeth, l.lips)) - math.Min(l.jaw, math.Min(l.teeth, l.lips))
}

// alligatorAt reads the three lines at bar i.
func alligatorAt(closes []float64, cfg alligatorParams, i int) alligatorLines {
	jaw, _ := features.SMAAt(closes, cfg.JawPeriod, i-cfg.JawShift)
	teeth, _ := features.SMAAt(closes, cfg.TeethPeriod, i-cfg.TeethShift)
	lips, _ := features.SMAAt(closes, cfg.LipsPeriod, i-cfg.LipsShift)
	return alligatorLines{jaw: jaw, teeth: teeth, lips: lips}
}

func evaluateAlligator(s models.Series, p Params) (*models.Signal, error) {
	var cfg alligatorParams
	if err := decodeParams(WilliamsAlligator, p, &cfg); err != nil {
		return nil, err
	}
	// one extra bar for the previous spread
	need := max(cfg.JawPeriod+cfg.JawShift, cfg.TeethPeriod+cfg.TeethShift, cfg.LipsPeriod+cfg.LipsShift) + 1
	n := s.Len()
	if n < need {
		return nil, insufficient(WilliamsAlligator, need, n)
	}

	closes := s.Closes()
	last := n - 1
	// Each line at the current bar reads the average that ended `shift` bars ago.
	lines := alligatorAt(closes, cfg, last)
	prev := alligatorAt(closes, cfg, last-1)
	jaw, teeth, lips := lines.jaw, lines.teeth, lines.lips

	price := closes[last]
	phase, dir := classifyAlligator(lines, prev, price)

	var base float64
	risk := models.RiskMedium
	switch phase {
	case PhaseEating:
		base, risk = alligatorEatingConfidence, models.RiskLow
	case PhaseAwakening:
		base = alligatorAwakeningConfidence
	case PhaseSleeping:
		base, risk = alligatorSleepingConfidence, models.RiskLow
	default:
		base = alligatorSatisfiedConfidence
	}
	conf := math.Min(alligatorMaxConfidence, base*cfg.Sensitivity)

	sig := newSignal(WilliamsAlligator, s, dir, conf, risk,
		fmt.Sprintf("alligator %s: lips %.4f teeth %.4f jaw %.4f price %.4f", phase, lips, teeth, jaw, price))
	if dir != models.Hold {
		sig.StopLoss = models.Float64Ptr(jaw)
	}
	return sig, nil
}

// classifyAlligator reads the phase from the current lines. Eating also needs the spread
// to have widened since prev.
func classifyAlligator(l, prev alligatorLines, price float64) (AlligatorPhase, models.Direction) {
	spread := l.spread()
	if price > 0 && spread/price < alligatorSleepSpread {
		return PhaseSleeping, models.Hold
	}
	diverging := spread-prev.spread() > alligatorDivergeEps*math.Max(price, 1)
	switch {
	case diverging && l.lips > l.teeth && l.teeth > l.jaw && price > l.lips:
		return PhaseEating, models.Buy
	case diverging && l.lips < l.teeth && l.teeth < l.jaw && price < l.lips:
		return PhaseEating, models.Sell
	case l.lips > l.teeth && price > l.lips:
		return PhaseAwakening, models.Buy
	case l.lips < l.teeth && price < l.lips:
		return PhaseAwakening, models.Sell
	}
	return PhaseSatisfied, models.Hold
}
