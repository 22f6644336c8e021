package detectors

import (
	"fmt"

	"SignalFuse/internal/domain/models"
	"SignalFuse/internal/services/features"
)

// Fixed Darvas confidences. They do not scale with the breakout margin.
const (
	darvasBuyConfidence  = 85
	darvasSellConfidence = 80
)

type darvasParams struct {
	MinConsolidationPeriod int     `param:"min_consolidation_period" default:"10" validate:"gte=2,lte=1000"`
	BreakoutPct            float64 `param:"breakout_pct" default:"0.1" validate:"gte=0,lte=10"`
	VolumeThreshold        float64 `param:"volume_threshold" default:"1.5" validate:"gte=0"`
	MaxBoxRangePct         float64 `param:"max_box_range_pct" default:"0.05" validate:"gt=0,lt=1"`
}

type darvasBox struct {
	start     int
	top       float64
	bottom    float64
	avgVolume float64
}

func evaluateDarvas(s models.Series, p Params) (*models.Signal, error) {
	var cfg darvasParams
	if err := decodeParams(DarvasBox, p, &cfg); err != nil {
		return nil, err
	}
	n := s.Len()
	if n < cfg.MinConsolidationPeriod+1 {
		return nil, insufficient(DarvasBox, cfg.MinConsolidationPeriod+1, n)
	}

	bars := s.Bars()
	box, ok := findDarvasBox(bars[:n-1], cfg.MinConsolidationPeriod, cfg.MaxBoxRangePct)
	if !ok {
		return nil, nil
	}

	last := bars[n-1]
	boxRange := box.top - box.bottom
	if last.Volume <= box.avgVolume*cfg.VolumeThreshold {
		return nil, nil
	}

	switch {
	case last.Close > box.top+boxRange*cfg.BreakoutPct:
		sig := newSignal(DarvasBox, s, models.Buy, darvasBuyConfidence, models.RiskMedium,
			fmt.Sprintf("close %.4f broke above box %.4f-%.4f on volume %.0f (box avg %.0f)",
				last.Close, box.bottom, box.top, last.Volume, box.avgVolume))
		sig.StopLoss = models.Float64Ptr(box.bottom)
		sig.TakeProfit = models.Float64Ptr(last.Close + boxRange)
		return sig, nil
	case last.Close < box.bottom-boxRange*cfg.BreakoutPct:
		sig := newSignal(DarvasBox, s, models.Sell, darvasSellConfidence, models.RiskMedium,
			fmt.Sprintf("close %.4f broke below box %.4f-%.4f on volume %.0f (box avg %.0f)",
				last.Close, box.bottom, box.top, last.Volume, box.avgVolume))
		sig.StopLoss = models.Float64Ptr(box.top)
		sig.TakeProfit = models.Float64Ptr(last.Close - boxRange)
		return sig, nil
	}
	return nil, nil
}

// findDarvasBox scans overlapping windows from the most recent backwards and returns the first
// window whose band is tight enough to count as consolidation.
func findDarvasBox(bars []models.Bar, period int, maxRangePct float64) (darvasBox, bool) {
	highs := make([]float64, len(bars))
	lows := make([]float64, len(bars))
	vols := make([]float64, len(bars))
	for i, b := range bars {
		highs[i], lows[i], vols[i] = b.High, b.Low, b.Volume
	}
	for start := len(bars) - period; start >= 0; start-- {
		top, _, _ := features.Range(highs[start : start+period])
		_, bottom, _ := features.Range(lows[start : start+period])
		if bottom <= 0 {
			continue
		}
		if (top-bottom)/bottom < maxRangePct {
			return darvasBox{
				start:     start,
				top:       top,
				bottom:    bottom,
				avgVolume: features.Mean(vols[start : start+period]),
			}, true
		}
	}
	return darvasBox{}, false
}
