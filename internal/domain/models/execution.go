package models

import "time"

// GatePhase is the execution gate state for the latest evaluation.
type GatePhase string

const (
	PhaseIdle     GatePhase = "IDLE"
	PhaseArmed    GatePhase = "ARMED"
	PhaseExecuted GatePhase = "EXECUTED"
)

// SuppressionCode names why a consensus did not become a decision.
type SuppressionCode string

const (
	SuppressedEmergencyStop  SuppressionCode = "emergency_stop"
	SuppressedDailyCap       SuppressionCode = "daily_cap"
	SuppressedHoldDirection  SuppressionCode = "hold_direction"
	SuppressedBelowThreshold SuppressionCode = "below_threshold"
	SuppressedHighRisk       SuppressionCode = "high_risk"
)

// ExecutionState is the persisted per-instrument gate record.
// LastTradeDate is midnight of the last trading date in the gate's location.
type ExecutionState struct {
	Symbol             string          `json:"symbol"`
	Phase              GatePhase       `json:"phase"`
	TradesToday        int             `json:"trades_today"`
	LastTradeDate      time.Time       `json:"last_trade_date"`
	EmergencyStop      bool            `json:"emergency_stop"`
	StopReason         string          `json:"stop_reason,omitempty"`
	DailyTradeCap      int             `json:"daily_trade_cap"`
	ConsensusThreshold float64         `json:"consensus_threshold"`
	SuppressedTotal    int             `json:"suppressed_total"`
	LastSuppressed     SuppressionCode `json:"last_suppressed,omitempty"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// ExecutionDecision authorizes one execution event.
type ExecutionDecision struct {
	ID         string    `json:"id"`
	Symbol     string    `json:"symbol"`
	Direction  Direction `json:"direction"`
	Confidence float64   `json:"confidence"`
	Timestamp  time.Time `json:"timestamp"`
}

// SuppressedReason records a consensus the gate declined.
type SuppressedReason struct {
	Code       SuppressionCode `json:"code"`
	Message    string          `json:"message"`
	Direction  Direction       `json:"direction"`
	Confidence float64         `json:"confidence"`
	Timestamp  time.Time       `json:"timestamp"`
}

// GateOutcome holds exactly one of Decision or Suppressed, plus the state after processing.
type GateOutcome struct {
	Decision   *ExecutionDecision `json:"decision,omitempty"`
	Suppressed *SuppressedReason  `json:"suppressed,omitempty"`
	State      ExecutionState     `json:"state"`
}

// Executed reports whether the outcome carries a decision.
func (o GateOutcome) Executed() bool { return o.Decision != nil }
