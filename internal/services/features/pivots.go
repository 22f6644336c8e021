package features

import "math"

// PivotKind marks a local extreme as a high or a low.
type PivotKind int

const (
	PivotLow PivotKind = iota
	PivotHigh
)

func (k PivotKind) String() string {
	if k == PivotHigh {
		return "high"
	}
	return "low"
}

// Pivot is a local price extreme.
type Pivot struct {
	Index int
	Price float64
	Kind  PivotKind
}

// FindPivots returns alternating pivot highs and lows.
// A bar is a pivot when its high (low) is strictly above (below) every other bar within lookback
// on both sides. Consecutive pivots of the same kind keep the more extreme one, and a pivot whose
// relative move from the previous pivot is not above minMove is skipped.
func FindPivots(highs, lows []float64, lookback int, minMove float64) []Pivot {
	n := len(highs)
	if lookback <= 0 || n != len(lows) || n < 2*lookback+1 {
		return nil
	}
	var out []Pivot
	for i := lookback; i < n-lookback; i++ {
		isHigh, isLow := true, true
		for j := i - lookback; j <= i+lookback; j++ {
			if j == i {
				continue
			}
			if highs[j] >= highs[i] {
				isHigh = false
			}
			if lows[j] <= lows[i] {
				isLow = false
			}
		}
		if !isHigh && !isLow {
			continue
		}
		cand := Pivot{Index: i, Price: lows[i], Kind: PivotLow}
		if isHigh && (!isLow || (len(out) > 0 && out[len(out)-1].Kind == PivotLow)) {
			cand = Pivot{Index: i, Price: highs[i], Kind: PivotHigh}
		}
		out = addPivot(out, cand, minMove)
	}
	return out
}

func addPivot(out []Pivot, cand Pivot, minMove float64) []Pivot {
	if len(out) == 0 {
		return append(out, cand)
	}
	prev := out[len(out)-1]
	if prev.Kind == cand.Kind {
		if (cand.Kind == PivotHigh && cand.Price > prev.Price) || (cand.Kind == PivotLow && cand.Price < prev.Price) {
			out[len(out)-1] = cand
		}
		return out
	}
	if prev.Price <= 0 || math.Abs(cand.Price-prev.Price)/prev.Price <= minMove {
		return out
	}
	return append(out, cand)
}
