package detectors

import (
	"errors"
	"fmt"

	"SignalFuse/internal/domain/models"
	domsvc "SignalFuse/internal/domain/service"
	"SignalFuse/internal/services/features"
)

// Detector names.
const (
	DarvasBox         = "darvas_box"
	WilliamsAlligator = "williams_alligator"
	RenkoBreakout     = "renko_breakout"
	HeikinAshi        = "heikin_ashi"
	ElliottWave       = "elliott_wave"
)

type evalFunc func(models.Series, Params) (*models.Signal, error)

// Detector is one entry of the detector table.
type Detector struct {
	Name          string
	DefaultWeight float64
	newParams     func() any
	evaluate      evalFunc
}

var table = []Detector{
	{Name: DarvasBox, DefaultWeight: 0.25, newParams: func() any { return &darvasParams{} }, evaluate: evaluateDarvas},
	{Name: WilliamsAlligator, DefaultWeight: 0.20, newParams: func() any { return &alligatorParams{} }, evaluate: evaluateAlligator},
	{Name: RenkoBreakout, DefaultWeight: 0.20, newParams: func() any { return &renkoParams{} }, evaluate: evaluateRenko},
	{Name: HeikinAshi, DefaultWeight: 0.15, newParams: func() any { return &heikinAshiParams{} }, evaluate: evaluateHeikinAshi},
	{Name: ElliottWave, DefaultWeight: 0.20, newParams: func() any { return &elliottParams{} }, evaluate: evaluateElliott},
}

// Names returns every registered detector in canonical order.
func Names() []string {
	out := make([]string, len(table))
	for i, d := range table {
		out[i] = d.Name
	}
	return out
}

// Lookup finds a detector by name.
func Lookup(name string) (Detector, bool) {
	for _, d := range table {
		if d.Name == name {
			return d, true
		}
	}
	return Detector{}, false
}

// DefaultWeights returns the default fusion weight table. The weights sum to 1.0.
func DefaultWeights() map[string]float64 {
	out := make(map[string]float64, len(table))
	for _, d := range table {
		out[d.Name] = d.DefaultWeight
	}
	return out
}

// Defaults returns the detector's default parameters.
func (d Detector) Defaults() Params {
	p := d.newParams()
	_ = decodeParams(d.Name, nil, p)
	return encodeParams(p)
}

// ValidateParams checks a parameter map without evaluating anything.
func ValidateParams(name string, p Params) error {
	d, ok := Lookup(name)
	if !ok {
		return fmt.Errorf("%w: %s", models.ErrUnknownDetector, name)
	}
	return decodeParams(name, p, d.newParams())
}

// Evaluate runs one detector. Insufficient data yields (nil, nil).
func Evaluate(name string, series models.Series, p Params) (*models.Signal, error) {
	d, ok := Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrUnknownDetector, name)
	}
	sig, err := d.evaluate(series, p)
	if errors.Is(err, models.ErrInsufficientData) {
		return nil, nil
	}
	return sig, err
}

// Table is the configured detector set consumed by the evaluation cycle.
type Table struct {
	entries []entry
}

type entry struct {
	name   string
	params Params
}

// NewTable validates per-detector params and keeps the enabled detectors in canonical order.
// An empty enabled list enables every detector.
func NewTable(params map[string]Params, enabled []string) (*Table, error) {
	for name := range params {
		if _, ok := Lookup(name); !ok {
			return nil, fmt.Errorf("%w: %s", models.ErrUnknownDetector, name)
		}
	}
	on := make(map[string]bool, len(enabled))
	for _, name := range enabled {
		if _, ok := Lookup(name); !ok {
			return nil, fmt.Errorf("%w: %s", models.ErrUnknownDetector, name)
		}
		on[name] = true
	}

	t := &Table{}
	for _, d := range table {
		if len(on) > 0 && !on[d.Name] {
			continue
		}
		p := params[d.Name]
		if err := ValidateParams(d.Name, p); err != nil {
			return nil, err
		}
		t.entries = append(t.entries, entry{name: d.Name, params: p})
	}
	return t, nil
}

func (t *Table) Names() []string {
	out := make([]string, len(t.entries))
	for i, e := range t.entries {
		out[i] = e.name
	}
	return out
}

// Params returns the configured overrides for a detector.
func (t *Table) Params(name string) Params {
	for _, e := range t.entries {
		if e.name == name {
			return e.params
		}
	}
	return nil
}

func (t *Table) Evaluate(name string, series models.Series) (*models.Signal, error) {
	for _, e := range t.entries {
		if e.name == name {
			return Evaluate(name, series, e.params)
		}
	}
	return nil, fmt.Errorf("%w: %s", models.ErrUnknownDetector, name)
}

var _ domsvc.Evaluator = (*Table)(nil)

func insufficient(detector string, need, have int) error {
	return fmt.Errorf("%s: need %d bars, have %d: %w", detector, need, have, models.ErrInsufficientData)
}

func newSignal(detector string, s models.Series, dir models.Direction, conf float64, risk models.RiskLevel, explanation string) *models.Signal {
	last := s.Last()
	return &models.Signal{
		Detector:    detector,
		Direction:   dir,
		Confidence:  features.Clamp(conf, 0, 100),
		Price:       last.Close,
		GeneratedAt: last.Timestamp,
		Explanation: explanation,
		Risk:        risk,
	}
}
