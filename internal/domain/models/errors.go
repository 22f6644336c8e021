package models

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInsufficientData marks a series shorter than a detector's minimum window.
	ErrInsufficientData = errors.New("insufficient data")
	// ErrUnknownDetector marks a detector name missing from the detector table.
	ErrUnknownDetector = errors.New("unknown detector")
)

// InvalidParameterError reports an out-of-range or unknown configuration value.
type InvalidParameterError struct {
	Detector string
	Param    string
	Value    any
	Reason   string
}

func (e *InvalidParameterError) Error() string {
	if e.Detector == "" {
		return fmt.Sprintf("invalid parameter %s=%v: %s", e.Param, e.Value, e.Reason)
	}
	return fmt.Sprintf("%s: invalid parameter %s=%v: %s", e.Detector, e.Param, e.Value, e.Reason)
}

// FieldName is the offending parameter, prefixed with "params." for detector options.
func (e *InvalidParameterError) FieldName() string {
	if e.Detector == "" {
		return e.Param
	}
	return "params." + e.Param
}

// StaleStateError reports an execution state dated after the evaluation date.
type StaleStateError struct {
	Symbol        string
	LastTradeDate time.Time
	Now           time.Time
}

func (e *StaleStateError) Error() string {
	return fmt.Sprintf("stale execution state for %s: last trade date %s is after %s",
		e.Symbol, e.LastTradeDate.Format("2006-01-02"), e.Now.Format("2006-01-02"))
}
