package consensus

import (
	"math"

	"SignalFuse/internal/domain/models"
	domsvc "SignalFuse/internal/domain/service"
	"SignalFuse/internal/services/features"
)

// Fusion thresholds.
const (
	DirectionThreshold = 0.3
	maxConfidence      = 95
	directedBase       = 30
	holdBase           = 20
	holdSlope          = 50
)

// Fuse combines signals into a consensus using per-detector weights.
// A detector missing from weights contributes zero weight but still counts as active.
func Fuse(signals []models.Signal, weights map[string]float64) models.Consensus {
	var c models.Consensus
	c.ActiveCount = len(signals)

	var totalWeight, confSum float64
	for _, s := range signals {
		w := weights[s.Detector]
		adjusted := w * (s.Confidence / 100)
		totalWeight += w
		confSum += s.Confidence
		switch s.Direction {
		case models.Buy:
			c.BuyCount++
			c.WeightedBuy += adjusted
		case models.Sell:
			c.SellCount++
			c.WeightedSell += adjusted
		default:
			c.HoldCount++
		}
	}

	net := (c.WeightedBuy - c.WeightedSell) / math.Max(totalWeight, 1)
	c.WeightedScore = features.Clamp(net, -1, 1)

	switch {
	case c.WeightedScore > DirectionThreshold:
		c.Direction = models.Buy
	case c.WeightedScore < -DirectionThreshold:
		c.Direction = models.Sell
	default:
		c.Direction = models.Hold
	}

	mag := math.Abs(c.WeightedScore)
	if c.Direction == models.Hold {
		c.Confidence = holdBase + mag*holdSlope
	} else {
		c.Confidence = math.Min(maxConfidence, mag*100+directedBase)
	}
	c.Confidence = features.Clamp(c.Confidence, 0, 100)

	if c.ActiveCount > 0 {
		top := max(c.BuyCount, c.SellCount, c.HoldCount)
		c.Agreement = features.Clamp(float64(top)/float64(c.ActiveCount)*100, 0, 100)
	}

	meanConf := 0.0
	if c.ActiveCount > 0 {
		meanConf = confSum / float64(c.ActiveCount)
	}
	c.RiskAssessment = assessRisk(meanConf, c.Agreement, c.ActiveCount)
	return c
}

func assessRisk(meanConf, agreement float64, active int) models.RiskLevel {
	switch {
	case active == 0:
		return models.RiskHigh
	case meanConf >= 80 && agreement >= 70:
		return models.RiskLow
	case meanConf >= 60 && agreement >= 50:
		return models.RiskMedium
	default:
		return models.RiskHigh
	}
}

// Engine fuses with a fixed weight table.
type Engine struct {
	weights map[string]float64
}

// NewEngine copies weights.
func NewEngine(weights map[string]float64) *Engine {
	w := make(map[string]float64, len(weights))
	for k, v := range weights {
		w[k] = v
	}
	return &Engine{weights: w}
}

func (e *Engine) Fuse(signals []models.Signal) models.Consensus {
	return Fuse(signals, e.weights)
}

// Weights returns a copy of the weight table.
func (e *Engine) Weights() map[string]float64 {
	out := make(map[string]float64, len(e.weights))
	for k, v := range e.weights {
		out[k] = v
	}
	return out
}

var _ domsvc.Fuser = (*Engine)(nil)
