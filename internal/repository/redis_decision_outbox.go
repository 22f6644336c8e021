package repository

import (
	"context"
	"fmt"

	"SignalFuse/internal/domain/models"
	domrepo "SignalFuse/internal/domain/repository"
	"SignalFuse/pkg/queue"
)

// DecisionMessageType tags execution decisions on the outbox queue.
const DecisionMessageType = "execution_decision"

// DecisionOutbox pushes every ExecutionDecision onto a Redis list for order routers.
// Cycles without a decision are skipped.
type DecisionOutbox struct {
	q queue.Publisher
}

func NewDecisionOutbox(q queue.Publisher) *DecisionOutbox {
	return &DecisionOutbox{q: q}
}

func (o *DecisionOutbox) Name() string { return "redis_outbox" }

func (o *DecisionOutbox) Publish(ctx context.Context, r *models.CycleResult) error {
	if r == nil || r.Outcome == nil || r.Outcome.Decision == nil {
		return nil
	}
	if err := o.q.Enqueue(ctx, DecisionMessageType, r.Outcome.Decision); err != nil {
		return fmt.Errorf("outbox %s: %w", r.Outcome.Decision.ID, err)
	}
	return nil
}

// Close is a no-op; the Redis client belongs to the cache.
func (o *DecisionOutbox) Close() error { return nil }

var _ domrepo.CycleSink = (*DecisionOutbox)(nil)
