package gate

import (
	"fmt"
	"sync"
	"time"

	"SignalFuse/internal/domain/models"
	"SignalFuse/pkg/logger"
	"SignalFuse/pkg/util"

	"github.com/google/uuid"
)

type Option func(*Gate)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) { g.now = now }
}

// WithLocation sets the time zone that defines a trading day. Defaults to UTC.
func WithLocation(loc *time.Location) Option {
	return func(g *Gate) {
		if loc != nil {
			g.loc = loc
		}
	}
}

func WithLogger(l *logger.Logger) Option {
	return func(g *Gate) { g.log = logger.OrNop(l) }
}

// Gate is the execution state machine of one instrument.
// Every method is safe for concurrent use; Process holds the lock across check and increment.
type Gate struct {
	mu    sync.Mutex
	state models.ExecutionState
	now   func() time.Time
	loc   *time.Location
	log   *logger.Logger
}

// New creates an idle gate.
func New(symbol string, threshold float64, dailyCap int, opts ...Option) (*Gate, error) {
	if err := ValidateLimits(threshold, dailyCap); err != nil {
		return nil, err
	}
	g := newGate(opts)
	g.state = models.ExecutionState{
		Symbol:             symbol,
		Phase:              models.PhaseIdle,
		DailyTradeCap:      dailyCap,
		ConsensusThreshold: threshold,
		UpdatedAt:          g.now(),
	}
	return g, nil
}

// Restore resumes a gate from a persisted state. The stop flag and trade count survive.
func Restore(state models.ExecutionState, opts ...Option) (*Gate, error) {
	if err := ValidateLimits(state.ConsensusThreshold, state.DailyTradeCap); err != nil {
		return nil, err
	}
	g := newGate(opts)
	if state.Phase == "" {
		state.Phase = models.PhaseIdle
	}
	if !state.LastTradeDate.IsZero() {
		state.LastTradeDate = util.DateOf(state.LastTradeDate, g.loc)
	}
	g.state = state
	return g, nil
}

func newGate(opts []Option) *Gate {
	g := &Gate{now: time.Now, loc: time.UTC, log: logger.Nop()}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// ValidateLimits checks gate parameters.
func ValidateLimits(threshold float64, dailyCap int) error {
	if threshold < 0 || threshold > 100 {
		return &models.InvalidParameterError{Param: "consensus_threshold", Value: threshold, Reason: "must be within [0, 100]"}
	}
	if dailyCap < 0 {
		return &models.InvalidParameterError{Param: "daily_trade_cap", Value: dailyCap, Reason: "must not be negative"}
	}
	return nil
}

// Process runs one consensus through the gate and returns either a decision or a suppression.
// A last trade date after today is reported as *models.StaleStateError and leaves state untouched.
func (g *Gate) Process(c models.Consensus) (models.GateOutcome, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	st := &g.state

	if st.EmergencyStop {
		return g.suppress(now, c, models.SuppressedEmergencyStop,
			fmt.Sprintf("emergency stop active: %s", st.StopReason)), nil
	}

	today := util.DateOf(now, g.loc)
	if !st.LastTradeDate.IsZero() && st.LastTradeDate.After(today) {
		return models.GateOutcome{State: g.state}, &models.StaleStateError{
			Symbol:        st.Symbol,
			LastTradeDate: st.LastTradeDate,
			Now:           today,
		}
	}
	if !st.LastTradeDate.Equal(today) {
		if st.TradesToday > 0 {
			g.log.Info("trading day rolled over",
				logger.Symbol(st.Symbol),
				logger.Int("trades_yesterday", st.TradesToday),
				logger.Time("today", today))
		}
		st.TradesToday = 0
		st.LastTradeDate = today
	}

	switch {
	case st.TradesToday >= st.DailyTradeCap:
		return g.suppress(now, c, models.SuppressedDailyCap,
			fmt.Sprintf("daily trade cap %d reached", st.DailyTradeCap)), nil
	case c.Direction == models.Hold:
		return g.suppress(now, c, models.SuppressedHoldDirection, "consensus direction is HOLD"), nil
	case c.Confidence < st.ConsensusThreshold:
		return g.suppress(now, c, models.SuppressedBelowThreshold,
			fmt.Sprintf("confidence %.2f below threshold %.2f", c.Confidence, st.ConsensusThreshold)), nil
	case c.RiskAssessment == models.RiskHigh:
		return g.suppress(now, c, models.SuppressedHighRisk, "consensus risk is HIGH"), nil
	}

	st.Phase = models.PhaseArmed
	decision := &models.ExecutionDecision{
		ID:         uuid.NewString(),
		Symbol:     st.Symbol,
		Direction:  c.Direction,
		Confidence: c.Confidence,
		Timestamp:  now,
	}
	st.TradesToday++
	st.Phase = models.PhaseExecuted
	st.UpdatedAt = now

	g.log.Info("execution authorized",
		logger.Symbol(st.Symbol),
		logger.String("decision_id", decision.ID),
		logger.String("direction", string(c.Direction)),
		logger.Float64("confidence", c.Confidence),
		logger.Int("trades_today", st.TradesToday))
	return models.GateOutcome{Decision: decision, State: g.state}, nil
}

func (g *Gate) suppress(now time.Time, c models.Consensus, code models.SuppressionCode, msg string) models.GateOutcome {
	g.state.Phase = models.PhaseIdle
	g.state.SuppressedTotal++
	g.state.LastSuppressed = code
	g.state.UpdatedAt = now
	g.log.Info("consensus suppressed",
		logger.Symbol(g.state.Symbol),
		logger.String("reason", string(code)),
		logger.String("direction", string(c.Direction)),
		logger.Float64("confidence", c.Confidence))
	return models.GateOutcome{
		Suppressed: &models.SuppressedReason{
			Code:       code,
			Message:    msg,
			Direction:  c.Direction,
			Confidence: c.Confidence,
			Timestamp:  now,
		},
		State: g.state,
	}
}

// EmergencyStop latches the stop flag. Only Reset clears it.
func (g *Gate) EmergencyStop(reason string) models.ExecutionState {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state.EmergencyStop = true
	g.state.StopReason = reason
	g.state.Phase = models.PhaseIdle
	g.state.UpdatedAt = g.now()
	g.log.Warn("emergency stop engaged", logger.Symbol(g.state.Symbol), logger.String("reason", reason))
	return g.state
}

// Reset clears the emergency stop. The daily trade count is kept.
func (g *Gate) Reset() models.ExecutionState {
	g.mu.Lock()
	defer g.mu.Unlock()
	wasStopped := g.state.EmergencyStop
	g.state.EmergencyStop = false
	g.state.StopReason = ""
	g.state.Phase = models.PhaseIdle
	g.state.UpdatedAt = g.now()
	g.log.Warn("gate reset", logger.Symbol(g.state.Symbol), logger.Bool("was_stopped", wasStopped))
	return g.state
}

// SetLimits updates threshold and cap without touching counters.
func (g *Gate) SetLimits(threshold float64, dailyCap int) error {
	if err := ValidateLimits(threshold, dailyCap); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state.ConsensusThreshold = threshold
	g.state.DailyTradeCap = dailyCap
	return nil
}

func (g *Gate) State() models.ExecutionState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}
