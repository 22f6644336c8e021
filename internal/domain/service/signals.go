package service

import (
	"context"

	"SignalFuse/internal/domain/models"
)

// Evaluator runs registered detectors by name against a series.
// A nil signal with a nil error means the detector had nothing to say.
type Evaluator interface {
	Names() []string
	Evaluate(name string, series models.Series) (*models.Signal, error)
}

// Fuser combines one signal set into a consensus.
type Fuser interface {
	Fuse(signals []models.Signal) models.Consensus
}

// GateKeeper owns the per-instrument execution gates.
type GateKeeper interface {
	Process(ctx context.Context, symbol string, c models.Consensus) (models.GateOutcome, error)
	EmergencyStop(ctx context.Context, symbol, reason string) (models.ExecutionState, error)
	Reset(ctx context.Context, symbol string) (models.ExecutionState, error)
	State(ctx context.Context, symbol string) (models.ExecutionState, error)
}
