package models

import "fmt"

// Requests for the engine HTTP endpoints. Defined in domain for reuse by the CLI.

type EvaluateRequest struct {
	Symbol string             `json:"symbol" default:"ADHOC"`
	Bars   []Bar              `json:"bars" validate:"required,min=1,dive"`
	Params map[string]float64 `json:"params"`
}

type ConsensusRequest struct {
	Signals []Signal           `json:"signals" validate:"dive"`
	Weights map[string]float64 `json:"weights"`
}

// Check rejects negative weight overrides.
func (r *ConsensusRequest) Check() error {
	for name, w := range r.Weights {
		if w < 0 {
			return &InvalidParameterError{Param: "weights." + name, Value: w, Reason: "must be >= 0"}
		}
	}
	return nil
}

type CycleRequest struct {
	Symbol  string `json:"symbol" validate:"required"`
	Bars    []Bar  `json:"bars" validate:"required,min=1,dive"`
	Execute bool   `json:"execute"`
}

type LatestCycleRequest struct {
	Symbol  string `query:"symbol" json:"symbol" validate:"required"`
	N       int    `query:"n" json:"n" default:"300" validate:"gte=1,lte=5000"`
	TF      string `query:"tf" json:"tf" default:"1m" validate:"oneof=1m 5m 15m 1h 1d"`
	Execute bool   `query:"execute" json:"execute"`
}

type EmergencyStopRequest struct {
	Reason string `json:"reason" default:"operator" validate:"max=256"`
}

// Check validates a client-supplied consensus before it reaches a gate.
func (c *Consensus) Check() error {
	switch c.Direction {
	case Buy, Sell, Hold:
		return nil
	}
	return &InvalidParameterError{Param: "overall_direction", Value: c.Direction, Reason: fmt.Sprintf("must be %s, %s or %s", Buy, Sell, Hold)}
}
