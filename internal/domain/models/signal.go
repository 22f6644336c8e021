package models

import "time"

// Direction is the directional call of a signal or consensus.
type Direction string

const (
	Buy  Direction = "BUY"
	Sell Direction = "SELL"
	Hold Direction = "HOLD"
)

// RiskLevel grades a signal or consensus.
type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

// Signal is one detector's output for one evaluation.
// GeneratedAt is the timestamp of the bar the signal was computed on.
type Signal struct {
	Detector    string    `json:"detector" validate:"required"`
	Direction   Direction `json:"direction" validate:"oneof=BUY SELL HOLD"`
	Confidence  float64   `json:"confidence" validate:"gte=0,lte=100"`
	Price       float64   `json:"price"`
	GeneratedAt time.Time `json:"generated_at"`
	Explanation string    `json:"explanation,omitempty"`
	Risk        RiskLevel `json:"risk_level,omitempty"`
	StopLoss    *float64  `json:"stop_loss,omitempty"`
	TakeProfit  *float64  `json:"take_profit,omitempty"`
}

// Consensus is the fused decision over one signal set.
type Consensus struct {
	Direction      Direction `json:"overall_direction"`
	Confidence     float64   `json:"confidence" validate:"gte=0,lte=100"`
	Agreement      float64   `json:"agreement_level" validate:"gte=0,lte=100"`
	ActiveCount    int       `json:"active_detector_count" validate:"gte=0"`
	BuyCount       int       `json:"buy_count" validate:"gte=0"`
	SellCount      int       `json:"sell_count" validate:"gte=0"`
	HoldCount      int       `json:"hold_count" validate:"gte=0"`
	WeightedScore  float64   `json:"weighted_score"`
	WeightedBuy    float64   `json:"weighted_buy"`
	WeightedSell   float64   `json:"weighted_sell"`
	RiskAssessment RiskLevel `json:"risk_assessment"`
}

// Float64Ptr returns a pointer to v.
func Float64Ptr(v float64) *float64 { return &v }
