package models

import (
	"fmt"
	"math"
	"time"
)

// Bar represents one OHLCV observation for a fixed interval.
type Bar struct {
	Timestamp time.Time `json:"timestamp" validate:"required"`
	Open      float64   `json:"open" validate:"gt=0"`
	High      float64   `json:"high" validate:"gt=0"`
	Low       float64   `json:"low" validate:"gt=0"`
	Close     float64   `json:"close" validate:"gt=0"`
	Volume    float64   `json:"volume" validate:"gte=0"`
}

// Validate checks the bar is internally consistent.
func (b Bar) Validate() error {
	if b.Timestamp.IsZero() {
		return fmt.Errorf("bar timestamp is zero")
	}
	for _, v := range []float64{b.Open, b.High, b.Low, b.Close, b.Volume} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("bar %s has non-finite value", b.Timestamp.Format(time.RFC3339))
		}
	}
	if b.Open <= 0 || b.High <= 0 || b.Low <= 0 || b.Close <= 0 {
		return fmt.Errorf("bar %s has non-positive price", b.Timestamp.Format(time.RFC3339))
	}
	if b.High < b.Low {
		return fmt.Errorf("bar %s high %.4f below low %.4f", b.Timestamp.Format(time.RFC3339), b.High, b.Low)
	}
	if b.Volume < 0 {
		return fmt.Errorf("bar %s has negative volume", b.Timestamp.Format(time.RFC3339))
	}
	return nil
}

// Series is an immutable, time-ordered run of bars for one instrument.
// Timestamps are strictly increasing.
type Series struct {
	symbol string
	bars   []Bar
}

// NewSeries copies bars into a Series after checking ordering.
func NewSeries(symbol string, bars []Bar) (Series, error) {
	for i := 1; i < len(bars); i++ {
		if !bars[i].Timestamp.After(bars[i-1].Timestamp) {
			return Series{}, fmt.Errorf("series %s: bar %d at %s not after %s",
				symbol, i, bars[i].Timestamp.Format(time.RFC3339), bars[i-1].Timestamp.Format(time.RFC3339))
		}
	}
	cp := make([]Bar, len(bars))
	copy(cp, bars)
	return Series{symbol: symbol, bars: cp}, nil
}

func (s Series) Symbol() string { return s.symbol }

func (s Series) Len() int { return len(s.bars) }

// At returns the i-th bar.
func (s Series) At(i int) Bar { return s.bars[i] }

// Last returns the most recent bar. It panics on an empty series.
func (s Series) Last() Bar { return s.bars[len(s.bars)-1] }

// Bars returns a copy of the underlying bars.
func (s Series) Bars() []Bar {
	out := make([]Bar, len(s.bars))
	copy(out, s.bars)
	return out
}

// Tail returns the last n bars as a new series.
func (s Series) Tail(n int) Series {
	if n >= len(s.bars) {
		return s
	}
	if n < 0 {
		n = 0
	}
	return Series{symbol: s.symbol, bars: s.bars[len(s.bars)-n:]}
}

func (s Series) Opens() []float64   { return s.column(func(b Bar) float64 { return b.Open }) }
func (s Series) Highs() []float64   { return s.column(func(b Bar) float64 { return b.High }) }
func (s Series) Lows() []float64    { return s.column(func(b Bar) float64 { return b.Low }) }
func (s Series) Closes() []float64  { return s.column(func(b Bar) float64 { return b.Close }) }
func (s Series) Volumes() []float64 { return s.column(func(b Bar) float64 { return b.Volume }) }

func (s Series) column(f func(Bar) float64) []float64 {
	out := make([]float64, len(s.bars))
	for i, b := range s.bars {
		out[i] = f(b)
	}
	return out
}
