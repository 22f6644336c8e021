package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"SignalFuse/internal/domain/models"
	domrepo "SignalFuse/internal/domain/repository"
	domsvc "SignalFuse/internal/domain/service"
	"SignalFuse/pkg/logger"
)

// CycleOption configures EvaluationCycle.
type CycleOption func(*EvaluationCycle)

// WithSinks adds the destinations every completed cycle is delivered to.
func WithSinks(sinks ...domrepo.CycleSink) CycleOption {
	return func(u *EvaluationCycle) { u.sinks = append(u.sinks, sinks...) }
}

func WithCycleClock(now func() time.Time) CycleOption {
	return func(u *EvaluationCycle) { u.now = now }
}

// WithSinkTimeout bounds each sink delivery.
func WithSinkTimeout(d time.Duration) CycleOption {
	return func(u *EvaluationCycle) {
		if d > 0 {
			u.sinkTimeout = d
		}
	}
}

// EvaluationCycle runs detectors -> fusion -> gate for one instrument series.
type EvaluationCycle struct {
	evaluator   domsvc.Evaluator
	fuser       domsvc.Fuser
	gates       domsvc.GateKeeper
	metrics     domrepo.Metrics
	log         *logger.Logger
	sinks       []domrepo.CycleSink
	now         func() time.Time
	sinkTimeout time.Duration
}

func NewEvaluationCycle(ev domsvc.Evaluator, fuser domsvc.Fuser, gates domsvc.GateKeeper, m domrepo.Metrics, log *logger.Logger, opts ...CycleOption) *EvaluationCycle {
	u := &EvaluationCycle{
		evaluator:   ev,
		fuser:       fuser,
		gates:       gates,
		metrics:     m,
		log:         logger.OrNop(log).With(logger.Component("cycle")),
		now:         time.Now,
		sinkTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

type detectorResult struct {
	name   string
	signal *models.Signal
	err    error
	panic  bool
}

// Run evaluates every detector concurrently, fuses the signals and, when execute is set,
// passes the consensus through the instrument's gate. Detector failures are recorded in
// CycleResult.Errors and never abort the cycle. A gate error that leaves no outcome (stale
// state, unreadable state) is returned together with the partial result.
func (u *EvaluationCycle) Run(ctx context.Context, series models.Series, execute bool) (*models.CycleResult, error) {
	if series.Len() == 0 {
		return nil, &models.InvalidParameterError{Param: "bars", Value: 0, Reason: "series is empty"}
	}
	start := u.now()
	symbol := series.Symbol()
	res := &models.CycleResult{
		Symbol:    symbol,
		Timestamp: start,
		BarTime:   series.Last().Timestamp,
		Bars:      series.Len(),
		Errors:    map[string]string{},
	}

	names := u.evaluator.Names()
	results := make([]detectorResult, len(names))
	var wg sync.WaitGroup
	for i, name := range names {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			results[i] = u.evaluate(name, series)
		}(i, name)
	}
	wg.Wait()

	res.Signals = make([]models.Signal, 0, len(names))
	for _, r := range results {
		switch {
		case r.err != nil:
			res.Errors[r.name] = r.err.Error()
			kind := "error"
			var ipe *models.InvalidParameterError
			if r.panic {
				kind = "panic"
			} else if errors.As(r.err, &ipe) {
				kind = "invalid_parameter"
			}
			u.recordFailure(r.name, kind)
			u.log.Warn("detector failed", logger.Symbol(symbol), logger.Detector(r.name), logger.String("kind", kind), logger.Error(r.err))
		case r.signal != nil:
			res.Signals = append(res.Signals, *r.signal)
			if u.metrics != nil {
				u.metrics.RecordSignal(r.name, r.signal.Direction)
			}
		}
	}

	res.Consensus = u.fuser.Fuse(res.Signals)
	if u.metrics != nil {
		u.metrics.RecordConsensus(symbol, res.Consensus)
	}

	var gateErr error
	if execute && u.gates != nil {
		out, err := u.gates.Process(ctx, symbol, res.Consensus)
		if out.Decision != nil || out.Suppressed != nil {
			res.Outcome = &out
		}
		if err != nil {
			res.Errors["gate"] = err.Error()
			if res.Outcome == nil {
				gateErr = fmt.Errorf("gate %s: %w", symbol, err)
			}
		}
	}

	if len(res.Errors) == 0 {
		res.Errors = nil
	}
	res.DurationMs = u.now().Sub(start).Milliseconds()
	if u.metrics != nil {
		u.metrics.RecordLatency("cycle", u.now().Sub(start).Seconds())
	}
	u.log.Debug("cycle completed",
		logger.Symbol(symbol),
		logger.Int("signals", len(res.Signals)),
		logger.String("direction", string(res.Consensus.Direction)),
		logger.Float64("confidence", res.Consensus.Confidence))

	if gateErr == nil {
		u.deliver(ctx, res)
	}
	return res, gateErr
}

// evaluate runs one detector and converts a panic into an error.
func (u *EvaluationCycle) evaluate(name string, series models.Series) (r detectorResult) {
	r.name = name
	defer func() {
		if p := recover(); p != nil {
			r.signal = nil
			r.err = fmt.Errorf("%s panicked: %v", name, p)
			r.panic = true
		}
	}()
	r.signal, r.err = u.evaluator.Evaluate(name, series)
	return r
}

func (u *EvaluationCycle) recordFailure(name, kind string) {
	if u.metrics != nil {
		u.metrics.RecordDetectorFailure(name, kind)
	}
}

// deliver hands the result to every sink. Sink failures are logged and counted only.
func (u *EvaluationCycle) deliver(ctx context.Context, res *models.CycleResult) {
	for _, sink := range u.sinks {
		sctx, cancel := context.WithTimeout(ctx, u.sinkTimeout)
		err := sink.Publish(sctx, res)
		cancel()
		if err != nil {
			if u.metrics != nil {
				u.metrics.RecordError("sink_" + sink.Name())
			}
			u.log.Error("cycle sink failed", logger.Symbol(res.Symbol), logger.String("sink", sink.Name()), logger.Error(err))
			continue
		}
		if u.metrics != nil {
			u.metrics.RecordMessageSent(sink.Name(), res.Symbol)
		}
	}
}

// Close closes every sink.
func (u *EvaluationCycle) Close() error {
	var errs []error
	for _, sink := range u.sinks {
		if err := sink.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", sink.Name(), err))
		}
	}
	return errors.Join(errs...)
}
