package features

import (
	"math"

	"SignalFuse/internal/domain/models"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Fibonacci ratios used for retracement bands.
const (
	Fib236  = 0.236
	Fib382  = 0.382
	Fib500  = 0.5
	Fib618  = 0.618
	Fib786  = 0.786
	Fib1618 = 1.618
)

// SMAAt returns the simple moving average of values over the period ending at index end (inclusive).
func SMAAt(values []float64, period, end int) (float64, bool) {
	if period <= 0 || end >= len(values) || end-period+1 < 0 {
		return 0, false
	}
	return stat.Mean(values[end-period+1:end+1], nil), true
}

// SMA returns the moving average series aligned with values; entries before the first full window are NaN.
func SMA(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	for i := range values {
		v, ok := SMAAt(values, period, i)
		if !ok {
			out[i] = math.NaN()
			continue
		}
		out[i] = v
	}
	return out
}

// TrueRange returns the true range of each bar after the first.
func TrueRange(bars []models.Bar) []float64 {
	if len(bars) < 2 {
		return nil
	}
	out := make([]float64, 0, len(bars)-1)
	for i := 1; i < len(bars); i++ {
		prev := bars[i-1].Close
		cur := bars[i]
		out = append(out, math.Max(cur.High-cur.Low, math.Max(math.Abs(cur.High-prev), math.Abs(cur.Low-prev))))
	}
	return out
}

// ATR is the simple average true range over the last period bars. Needs period+1 bars.
func ATR(bars []models.Bar, period int) (float64, bool) {
	if period <= 0 || len(bars) < period+1 {
		return 0, false
	}
	tr := TrueRange(bars)
	return stat.Mean(tr[len(tr)-period:], nil), true
}

// Mean is the arithmetic mean, zero for an empty slice.
func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	return stat.Mean(xs, nil)
}

// Range returns max and min of xs.
func Range(xs []float64) (hi, lo float64, ok bool) {
	if len(xs) == 0 {
		return 0, 0, false
	}
	return floats.Max(xs), floats.Min(xs), true
}

// Clamp bounds x to [lo, hi].
func Clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}

// InBand reports whether x lies in [lo, hi].
func InBand(x, lo, hi float64) bool {
	return x >= lo && x <= hi
}
