package detectors

import (
	"fmt"
	"math"

	"SignalFuse/internal/domain/models"
)

const (
	haTrendConfidence    = 65
	haReversalConfidence = 75
)

// CandleKind classifies a Heikin-Ashi candle.
type CandleKind string

const (
	KindBullish      CandleKind = "bullish"
	KindBearish      CandleKind = "bearish"
	KindDoji         CandleKind = "doji"
	KindHammer       CandleKind = "hammer"
	KindShootingStar CandleKind = "shooting_star"
)

type heikinAshiParams struct {
	MinTrendLength int     `param:"min_trend_length" default:"3" validate:"gte=1,lte=1000"`
	DojiBodyRatio  float64 `param:"doji_body_ratio" default:"0.1" validate:"gte=0,lt=1"`
	ShadowRatio    float64 `param:"shadow_ratio" default:"2.0" validate:"gt=0"`
}

// HACandle is one smoothed candle.
type HACandle struct {
	Open, High, Low, Close float64
}

// HeikinAshiCandles smooths raw bars. haOpen[0] is the midpoint of the first bar's open and close.
func HeikinAshiCandles(bars []models.Bar) []HACandle {
	out := make([]HACandle, len(bars))
	for i, b := range bars {
		c := HACandle{Close: (b.Open + b.High + b.Low + b.Close) / 4}
		if i == 0 {
			c.Open = (b.Open + b.Close) / 2
		} else {
			c.Open = (out[i-1].Open + out[i-1].Close) / 2
		}
		c.High = math.Max(b.High, math.Max(c.Open, c.Close))
		c.Low = math.Min(b.Low, math.Min(c.Open, c.Close))
		out[i] = c
	}
	return out
}

// ClassifyCandle reads a candle's shape from its body-to-shadow ratios. Hammer and shooting star
// take precedence over doji so that small-bodied reversal candles are recognised.
func ClassifyCandle(c HACandle, dojiBodyRatio, shadowRatio float64) CandleKind {
	rng := c.High - c.Low
	if rng <= 0 {
		return KindDoji
	}
	body := math.Abs(c.Close - c.Open)
	upper := c.High - math.Max(c.Open, c.Close)
	lower := math.Min(c.Open, c.Close) - c.Low
	switch {
	case lower > 0 && lower >= shadowRatio*body && lower >= shadowRatio*upper:
		return KindHammer
	case upper > 0 && upper >= shadowRatio*body && upper >= shadowRatio*lower:
		return KindShootingStar
	case body/rng <= dojiBodyRatio:
		return KindDoji
	case c.Close > c.Open:
		return KindBullish
	default:
		return KindBearish
	}
}

func evaluateHeikinAshi(s models.Series, p Params) (*models.Signal, error) {
	var cfg heikinAshiParams
	if err := decodeParams(HeikinAshi, p, &cfg); err != nil {
		return nil, err
	}
	n := s.Len()
	if n < cfg.MinTrendLength+1 {
		return nil, insufficient(HeikinAshi, cfg.MinTrendLength+1, n)
	}

	ha := HeikinAshiCandles(s.Bars())
	kinds := make([]CandleKind, len(ha))
	for i, c := range ha {
		kinds[i] = ClassifyCandle(c, cfg.DojiBodyRatio, cfg.ShadowRatio)
	}
	last := ha[n-1]

	switch kinds[n-1] {
	case KindHammer:
		if prior := runOf(kinds[:n-1], KindBearish); prior >= cfg.MinTrendLength {
			sig := newSignal(HeikinAshi, s, models.Buy, haReversalConfidence, models.RiskMedium,
				fmt.Sprintf("hammer after %d bearish candles", prior))
			sig.StopLoss = models.Float64Ptr(last.Low)
			return sig, nil
		}
		return nil, nil
	case KindShootingStar:
		if prior := runOf(kinds[:n-1], KindBullish); prior >= cfg.MinTrendLength {
			sig := newSignal(HeikinAshi, s, models.Sell, haReversalConfidence, models.RiskMedium,
				fmt.Sprintf("shooting star after %d bullish candles", prior))
			sig.StopLoss = models.Float64Ptr(last.High)
			return sig, nil
		}
		return nil, nil
	case KindBullish:
		if run := runOf(kinds, KindBullish); run >= cfg.MinTrendLength {
			sig := newSignal(HeikinAshi, s, models.Buy, haTrendConfidence, models.RiskLow,
				fmt.Sprintf("%d consecutive bullish candles", run))
			sig.StopLoss = models.Float64Ptr(last.Low)
			return sig, nil
		}
	case KindBearish:
		if run := runOf(kinds, KindBearish); run >= cfg.MinTrendLength {
			sig := newSignal(HeikinAshi, s, models.Sell, haTrendConfidence, models.RiskLow,
				fmt.Sprintf("%d consecutive bearish candles", run))
			sig.StopLoss = models.Float64Ptr(last.High)
			return sig, nil
		}
	}
	return nil, nil
}

// runOf counts trailing candles of kind k.
func runOf(kinds []CandleKind, k CandleKind) int {
	run := 0
	for i := len(kinds) - 1; i >= 0 && kinds[i] == k; i-- {
		run++
	}
	return run
}
