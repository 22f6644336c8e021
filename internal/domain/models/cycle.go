package models

import "time"

// CycleResult is the record of one detectors -> fusion -> gate pass for one instrument.
type CycleResult struct {
	Symbol     string            `json:"symbol"`
	Timestamp  time.Time         `json:"timestamp"`
	BarTime    time.Time         `json:"bar_time"`
	Bars       int               `json:"bars"`
	Signals    []Signal          `json:"signals"`
	Consensus  Consensus         `json:"consensus"`
	Outcome    *GateOutcome      `json:"outcome,omitempty"`
	Errors     map[string]string `json:"errors,omitempty"`
	DurationMs int64             `json:"duration_ms"`
}
