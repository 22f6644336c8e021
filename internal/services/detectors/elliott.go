package detectors

import (
	"fmt"
	"math"

	"SignalFuse/internal/domain/models"
	"SignalFuse/internal/services/features"
)

const (
	elliottBaseConfidence = 60
	elliottFibBonus       = 10
	elliottWave3Bonus     = 5
	elliottMaxConfidence  = 95
)

type elliottParams struct {
	PivotLookback   int     `param:"pivot_lookback" default:"5" validate:"gte=1,lte=100"`
	MinWaveSize     float64 `param:"min_wave_size" default:"0.01" validate:"gte=0,lt=1"`
	MinPivots       int     `param:"min_pivots" default:"8" validate:"gte=4,lte=1000"`
	MinConfidence   float64 `param:"min_confidence" default:"60" validate:"gte=0,lte=100"`
	SignalThreshold float64 `param:"signal_threshold" default:"70" validate:"gte=0,lte=100"`
}

// WavePattern is a validated impulse or corrective structure.
type WavePattern struct {
	Impulse    bool
	Bullish    bool
	Completed  bool
	Confidence float64
	End        int
	Pivots     []features.Pivot
	Note       string
}

func evaluateElliott(s models.Series, p Params) (*models.Signal, error) {
	var cfg elliottParams
	if err := decodeParams(ElliottWave, p, &cfg); err != nil {
		return nil, err
	}
	n := s.Len()
	need := 2*cfg.PivotLookback + 1
	if n < need {
		return nil, insufficient(ElliottWave, need, n)
	}
	pivots := features.FindPivots(s.Highs(), s.Lows(), cfg.PivotLookback, cfg.MinWaveSize)
	if len(pivots) < cfg.MinPivots {
		return nil, fmt.Errorf("%s: need %d pivots, have %d: %w", ElliottWave, cfg.MinPivots, len(pivots), models.ErrInsufficientData)
	}

	lastClose := s.Last().Close
	var patterns []WavePattern
	patterns = append(patterns, findImpulses(pivots, lastClose)...)
	patterns = append(patterns, findCorrections(pivots, lastClose)...)

	var best *WavePattern
	for i := range patterns {
		pt := &patterns[i]
		if pt.Confidence < cfg.MinConfidence {
			continue
		}
		if best == nil || pt.Confidence > best.Confidence || (pt.Confidence == best.Confidence && pt.End > best.End) {
			best = pt
		}
	}
	if best == nil || best.Confidence < cfg.SignalThreshold {
		return nil, nil
	}

	dir := patternDirection(*best)
	risk := models.RiskHigh
	if best.Confidence >= 80 {
		risk = models.RiskMedium
	}
	sig := newSignal(ElliottWave, s, dir, math.Min(elliottMaxConfidence, best.Confidence), risk, best.Note)
	if best.Impulse && !best.Completed {
		sig.StopLoss = models.Float64Ptr(best.Pivots[4].Price)
	}
	return sig, nil
}

// patternDirection maps completion state to a call: ride an unfinished impulse, fade a finished
// one, and resume the trend after a finished correction.
func patternDirection(pt WavePattern) models.Direction {
	up := pt.Bullish
	if pt.Impulse && pt.Completed {
		up = !up
	}
	if !pt.Impulse {
		up = !up
	}
	if up {
		return models.Buy
	}
	return models.Sell
}

// findImpulses scans 5-pivot windows p0..p4. Wave 5 runs to the next pivot when there is one,
// otherwise to the latest close.
func findImpulses(pivots []features.Pivot, lastClose float64) []WavePattern {
	var out []WavePattern
	for i := 0; i+4 < len(pivots); i++ {
		p := pivots[i : i+5]
		bullish := p[0].Kind == features.PivotLow
		sign := 1.0
		if !bullish {
			sign = -1
		}
		w1 := sign * (p[1].Price - p[0].Price)
		w2 := sign * (p[1].Price - p[2].Price)
		w3 := sign * (p[3].Price - p[2].Price)
		w4 := sign * (p[3].Price - p[4].Price)

		end5, completed, end := lastClose, false, i+4
		if i+5 < len(pivots) {
			end5, completed, end = pivots[i+5].Price, true, i+5
		}
		w5 := sign * (end5 - p[4].Price)

		if w1 <= 0 || w3 <= 0 || w2 <= 0 || w4 <= 0 {
			continue
		}
		if w2 > w1 || w4 > features.Fib786*w3 {
			continue
		}
		if completed && w5 <= 0 {
			continue
		}
		if w5 > 0 && w3 < w1 && w3 < w5 {
			continue
		}

		r2, r4 := w2/w1, w4/w3
		conf := float64(elliottBaseConfidence)
		if features.InBand(r2, features.Fib382, features.Fib618) {
			conf += elliottFibBonus
		}
		if features.InBand(r4, features.Fib236, features.Fib500) {
			conf += elliottFibBonus
		}
		if w3 >= w1 && (w5 <= 0 || w3 >= w5) {
			conf += elliottWave3Bonus
		}

		state := "in wave 5"
		if completed {
			state = "completed"
		}
		out = append(out, WavePattern{
			Impulse:    true,
			Bullish:    bullish,
			Completed:  completed,
			Confidence: conf,
			End:        end,
			Pivots:     p,
			Note: fmt.Sprintf("%s impulse %s (wave 2 retrace %.3f, wave 4 retrace %.3f)",
				trendWord(bullish), state, r2, r4),
		})
	}
	return out
}

// findCorrections scans 3-pivot windows a, b, c. Leg C runs to the next pivot or the latest close.
// Only corrections whose C leg has moved past the end of A are kept.
func findCorrections(pivots []features.Pivot, lastClose float64) []WavePattern {
	var out []WavePattern
	for i := 0; i+2 < len(pivots); i++ {
		a, b, c := pivots[i], pivots[i+1], pivots[i+2]
		bullish := a.Kind == features.PivotLow
		sign := 1.0
		if !bullish {
			sign = -1
		}
		cEnd, end := lastClose, i+2
		if i+3 < len(pivots) {
			cEnd, end = pivots[i+3].Price, i+3
		}
		legA := sign * (b.Price - a.Price)
		legB := sign * (b.Price - c.Price)
		legC := sign * (cEnd - c.Price)
		if legA <= 0 || legB <= 0 || legB >= legA || legC <= 0 {
			continue
		}
		if sign*(cEnd-b.Price) <= 0 {
			continue
		}

		rB, rC := legB/legA, legC/legA
		conf := float64(elliottBaseConfidence)
		if features.InBand(rB, features.Fib382, features.Fib618) {
			conf += elliottFibBonus
		}
		if features.InBand(rC, features.Fib618, features.Fib1618) {
			conf += elliottFibBonus
		}
		out = append(out, WavePattern{
			Bullish:    bullish,
			Completed:  true,
			Confidence: conf,
			End:        end,
			Pivots:     []features.Pivot{a, b, c},
			Note: fmt.Sprintf("%s ABC correction completed (B retrace %.3f, C/A %.3f)",
				trendWord(bullish), rB, rC),
		})
	}
	return out
}

func trendWord(bullish bool) string {
	if bullish {
		return "bullish"
	}
	return "bearish"
}
