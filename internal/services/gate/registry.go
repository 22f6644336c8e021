package gate

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"SignalFuse/internal/domain/models"
	"SignalFuse/internal/domain/repository"
	domsvc "SignalFuse/internal/domain/service"
	"SignalFuse/pkg/logger"
)

// RegistryConfig holds the limits applied to every instrument gate.
type RegistryConfig struct {
	ConsensusThreshold float64
	DailyTradeCap      int
	Location           *time.Location
	Clock              func() time.Time
}

// Registry keeps one gate per instrument. Gates are loaded lazily from the state store and
// saved after every mutation while the instrument lock is still held.
type Registry struct {
	cfg     RegistryConfig
	store   repository.StateStore
	metrics repository.Metrics
	log     *logger.Logger

	mu    sync.Mutex
	gates map[string]*slot
}

type slot struct {
	mu   sync.Mutex
	gate *Gate
}

func NewRegistry(cfg RegistryConfig, store repository.StateStore, m repository.Metrics, log *logger.Logger) (*Registry, error) {
	if err := ValidateLimits(cfg.ConsensusThreshold, cfg.DailyTradeCap); err != nil {
		return nil, err
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Registry{
		cfg:     cfg,
		store:   store,
		metrics: m,
		log:     logger.OrNop(log).With(logger.Component("gate")),
		gates:   make(map[string]*slot),
	}, nil
}

func (r *Registry) slot(symbol string) *slot {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.gates[symbol]
	if !ok {
		s = &slot{}
		r.gates[symbol] = s
	}
	return s
}

// load must be called with s.mu held.
func (r *Registry) load(ctx context.Context, symbol string, s *slot) (*Gate, error) {
	if s.gate != nil {
		return s.gate, nil
	}
	opts := []Option{WithClock(r.cfg.Clock), WithLocation(r.cfg.Location), WithLogger(r.log)}

	var g *Gate
	var err error
	state, found := models.ExecutionState{}, false
	if r.store != nil {
		state, found, err = r.store.Load(ctx, symbol)
		if err != nil {
			return nil, fmt.Errorf("load gate state %s: %w", symbol, err)
		}
	}
	if found {
		state.Symbol = symbol
		state.ConsensusThreshold = r.cfg.ConsensusThreshold
		state.DailyTradeCap = r.cfg.DailyTradeCap
		g, err = Restore(state, opts...)
		if err == nil && state.EmergencyStop {
			r.log.Warn("restored gate is emergency stopped", logger.Symbol(symbol), logger.String("reason", state.StopReason))
		}
	} else {
		g, err = New(symbol, r.cfg.ConsensusThreshold, r.cfg.DailyTradeCap, opts...)
	}
	if err != nil {
		return nil, err
	}
	s.gate = g
	return g, nil
}

func (r *Registry) save(ctx context.Context, st models.ExecutionState) error {
	if r.store == nil {
		return nil
	}
	if err := r.store.Save(ctx, st); err != nil {
		r.log.Error("failed to persist gate state", logger.Symbol(st.Symbol), logger.Error(err))
		if r.metrics != nil {
			r.metrics.RecordError("state_store")
		}
		return fmt.Errorf("save gate state %s: %w", st.Symbol, err)
	}
	return nil
}

func (r *Registry) withGate(ctx context.Context, symbol string, fn func(*Gate) error) error {
	if symbol == "" {
		return &models.InvalidParameterError{Param: "symbol", Value: symbol, Reason: "required"}
	}
	s := r.slot(symbol)
	s.mu.Lock()
	defer s.mu.Unlock()
	g, err := r.load(ctx, symbol, s)
	if err != nil {
		return err
	}
	return fn(g)
}

// Process runs a consensus through the instrument's gate and persists the resulting state.
// When saving fails the outcome is still returned together with the error.
func (r *Registry) Process(ctx context.Context, symbol string, c models.Consensus) (models.GateOutcome, error) {
	var out models.GateOutcome
	err := r.withGate(ctx, symbol, func(g *Gate) error {
		var perr error
		out, perr = g.Process(c)
		if perr != nil {
			return perr
		}
		if r.metrics != nil {
			if out.Decision != nil {
				r.metrics.RecordDecision(symbol, out.Decision.Direction)
			} else if out.Suppressed != nil {
				r.metrics.RecordSuppressed(symbol, out.Suppressed.Code)
			}
		}
		return r.save(ctx, out.State)
	})
	return out, err
}

func (r *Registry) EmergencyStop(ctx context.Context, symbol, reason string) (models.ExecutionState, error) {
	var st models.ExecutionState
	err := r.withGate(ctx, symbol, func(g *Gate) error {
		st = g.EmergencyStop(reason)
		return r.save(ctx, st)
	})
	return st, err
}

func (r *Registry) Reset(ctx context.Context, symbol string) (models.ExecutionState, error) {
	var st models.ExecutionState
	err := r.withGate(ctx, symbol, func(g *Gate) error {
		st = g.Reset()
		return r.save(ctx, st)
	})
	return st, err
}

func (r *Registry) State(ctx context.Context, symbol string) (models.ExecutionState, error) {
	var st models.ExecutionState
	err := r.withGate(ctx, symbol, func(g *Gate) error {
		st = g.State()
		return nil
	})
	return st, err
}

// Symbols lists instruments with a gate in memory.
func (r *Registry) Symbols() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.gates))
	for s := range r.gates {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

var _ domsvc.GateKeeper = (*Registry)(nil)
