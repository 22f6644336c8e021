package repository

import (
	"context"
	"time"

	"SignalFuse/internal/domain/models"
	"SignalFuse/pkg/util"
)

// Timeframe is a bar resolution label, stored as-is in the tf column.
type Timeframe string

const (
	TF1m  Timeframe = "1m"
	TF5m  Timeframe = "5m"
	TF15m Timeframe = "15m"
	TF1h  Timeframe = "1h"
	TF1d  Timeframe = "1d"
)

// Valid reports whether the engine evaluates bars of this resolution.
func (tf Timeframe) Valid() bool {
	switch tf {
	case TF1m, TF5m, TF15m, TF1h, TF1d:
		return true
	}
	return false
}

// Duration is the bar length; unknown labels count as one minute.
func (tf Timeframe) Duration() time.Duration {
	if d, ok := util.TimeframeDuration(string(tf)); ok && tf.Valid() {
		return d
	}
	return time.Minute
}

// NormalizeTimeframe maps an empty or unsupported label to TF1m.
func NormalizeTimeframe(s string) Timeframe {
	if tf := Timeframe(s); tf.Valid() {
		return tf
	}
	return TF1m
}

// BarStore provides read access to historical bars.
type BarStore interface {
	GetBars(ctx context.Context, symbol string, from, to time.Time, tf Timeframe) ([]models.Bar, error)
	GetLatestNBars(ctx context.Context, symbol string, n int, tf Timeframe) ([]models.Bar, error)
}

// BarWriter persists ingested bars.
type BarWriter interface {
	StoreBar(ctx context.Context, symbol string, tf Timeframe, bar models.Bar) error
}

// StateStore persists one ExecutionState per instrument.
type StateStore interface {
	Load(ctx context.Context, symbol string) (models.ExecutionState, bool, error)
	Save(ctx context.Context, state models.ExecutionState) error
}

// CycleSink receives every completed evaluation cycle.
type CycleSink interface {
	Name() string
	Publish(ctx context.Context, r *models.CycleResult) error
	Close() error
}

type Metrics interface {
	RecordSignal(detector string, direction models.Direction)
	RecordDetectorFailure(detector, kind string)
	RecordConsensus(symbol string, c models.Consensus)
	RecordDecision(symbol string, direction models.Direction)
	RecordSuppressed(symbol string, code models.SuppressionCode)
	RecordMessageSent(sink, symbol string)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}
