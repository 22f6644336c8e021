package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"SignalFuse/internal/domain/models"
	domrepo "SignalFuse/internal/domain/repository"
	"SignalFuse/pkg/logger"

	"github.com/sony/gobreaker"
)

// ErrPublisherOpen is returned while the breaker rejects publishes.
var ErrPublisherOpen = errors.New("cycle publisher circuit open")

// MessagePublisher is the slice of pkg/kafka.Producer the publisher needs.
type MessagePublisher interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
	Close() error
}

// BreakerSettings trips the breaker after MaxFailures consecutive failures and
// lets a trial publish through again after OpenTimeout.
type BreakerSettings struct {
	MaxFailures uint32
	OpenTimeout time.Duration
}

// KafkaCyclePublisher sends cycle results to Kafka keyed by symbol.
type KafkaCyclePublisher struct {
	producer MessagePublisher
	topic    string
	cb       *gobreaker.CircuitBreaker
	l        *logger.Logger
}

func NewKafkaCyclePublisher(producer MessagePublisher, topic string, bs BreakerSettings, l *logger.Logger) *KafkaCyclePublisher {
	if bs.MaxFailures == 0 {
		bs.MaxFailures = 5
	}
	if bs.OpenTimeout <= 0 {
		bs.OpenTimeout = 30 * time.Second
	}
	log := logger.OrNop(l).With(logger.Component("cycle_publisher"))
	st := gobreaker.Settings{
		Name:    "kafka_cycles",
		Timeout: bs.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= bs.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state change",
				logger.String("breaker", name),
				logger.String("from", from.String()),
				logger.String("to", to.String()))
		},
	}
	return &KafkaCyclePublisher{producer: producer, topic: topic, cb: gobreaker.NewCircuitBreaker(st), l: log}
}

func (p *KafkaCyclePublisher) Name() string { return "kafka" }

func (p *KafkaCyclePublisher) Publish(ctx context.Context, r *models.CycleResult) error {
	_, err := p.cb.Execute(func() (interface{}, error) {
		return nil, p.producer.Publish(ctx, p.topic, []byte(r.Symbol), r)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", ErrPublisherOpen, err)
	}
	return err
}

// State reports the breaker state.
func (p *KafkaCyclePublisher) State() gobreaker.State { return p.cb.State() }

func (p *KafkaCyclePublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

var _ domrepo.CycleSink = (*KafkaCyclePublisher)(nil)
