package api

import (
	"context"
	"fmt"
	"strings"
	"time"

	"SignalFuse/internal/domain/models"
	domrepo "SignalFuse/internal/domain/repository"
	domsvc "SignalFuse/internal/domain/service"
	"SignalFuse/internal/service/metrics"
	"SignalFuse/internal/service/ratelimit"
	"SignalFuse/internal/services/consensus"
	"SignalFuse/internal/services/detectors"
	xhttp "SignalFuse/pkg/http"
	xlogger "SignalFuse/pkg/logger"

	"github.com/labstack/echo/v4"
)

type CycleRunner interface {
	Run(ctx context.Context, series models.Series, execute bool) (*models.CycleResult, error)
}

type SeriesLoader interface {
	LatestSeries(ctx context.Context, symbol string, n int, tf domrepo.Timeframe) (models.Series, error)
}

// DetectorTable is the configured detector set.
type DetectorTable interface {
	Names() []string
	Params(name string) detectors.Params
}

type WeightedFuser interface {
	domsvc.Fuser
	Weights() map[string]float64
}

type HandlerOption func(*EngineHandler)

func WithSeriesLoader(s SeriesLoader) HandlerOption {
	return func(h *EngineHandler) { h.bars = s }
}

func WithHub(hub *Hub) HandlerOption {
	return func(h *EngineHandler) { h.hub = hub }
}

// WithRateLimiter guards the gate mutation endpoints.
func WithRateLimiter(rl *ratelimit.Limiter) HandlerOption {
	return func(h *EngineHandler) { h.rl = rl }
}

func WithAPIMetrics(m *metrics.API) HandlerOption {
	return func(h *EngineHandler) { h.m = m }
}

// EngineHandler exposes detectors, fusion, cycles and gates over HTTP.
type EngineHandler struct {
	logger *xlogger.Logger
	table  DetectorTable
	fuser  WeightedFuser
	cycle  CycleRunner
	gates  domsvc.GateKeeper
	bars   SeriesLoader
	hub    *Hub
	rl     *ratelimit.Limiter
	m      *metrics.API
}

func NewEngineHandler(logger *xlogger.Logger, table DetectorTable, fuser WeightedFuser, cycle CycleRunner, gates domsvc.GateKeeper, opts ...HandlerOption) *EngineHandler {
	h := &EngineHandler{
		logger: xlogger.OrNop(logger).With(xlogger.Component("api")),
		table:  table,
		fuser:  fuser,
		cycle:  cycle,
		gates:  gates,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *EngineHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/detectors", h.timed("detectors", h.ListDetectors))
	g.POST("/detectors/:name/evaluate", h.timed("detector_evaluate", h.EvaluateDetector))
	g.POST("/consensus", h.timed("consensus", h.Consensus))
	g.POST("/cycles", h.timed("cycle", h.RunCycle))
	g.GET("/cycles/latest", h.timed("cycle_latest", h.LatestCycle))

	var guard []echo.MiddlewareFunc
	if h.rl != nil {
		guard = append(guard, h.rl.Middleware(h.logger))
	}
	gates := g.Group("/gates")
	gates.GET("/:symbol", h.timed("gate_state", h.GateState))
	gates.POST("/:symbol/process", h.timed("gate_process", h.ProcessGate), guard...)
	gates.POST("/:symbol/emergency-stop", h.timed("gate_stop", h.EmergencyStop), guard...)
	gates.POST("/:symbol/reset", h.timed("gate_reset", h.ResetGate), guard...)

	if h.hub != nil {
		e.GET("/ws/cycles", h.hub.ServeWS)
	}
}

func (h *EngineHandler) timed(endpoint string, next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		h.m.Observe(endpoint, time.Since(start).Seconds())
		return err
	}
}

// fail logs err, counts it and writes the mapped error response.
func (h *EngineHandler) fail(c echo.Context, endpoint string, err error) error {
	appErr := toAppError(err)
	h.m.Fail(endpoint, appErr.Code)
	if appErr.Status >= 500 {
		h.logger.Error(endpoint+" failed", xlogger.Error(err))
	} else {
		h.logger.Debug(endpoint+" rejected", xlogger.String("code", appErr.Code), xlogger.Error(err))
	}
	return xhttp.AppErrorResponse(c, appErr)
}

func (h *EngineHandler) badRequest(c echo.Context, endpoint string, verr interface{}) error {
	h.m.Fail(endpoint, xhttp.CodeBadRequest)
	return xhttp.BadRequestResponse(c, verr)
}

type detectorView struct {
	Name          string           `json:"name"`
	Enabled       bool             `json:"enabled"`
	DefaultWeight float64          `json:"default_weight"`
	Weight        float64          `json:"weight"`
	Defaults      detectors.Params `json:"defaults"`
	Params        detectors.Params `json:"params,omitempty"`
}

func (h *EngineHandler) ListDetectors(c echo.Context) error {
	enabled := make(map[string]bool)
	for _, n := range h.table.Names() {
		enabled[n] = true
	}
	weights := h.fuser.Weights()
	names := detectors.Names()
	rows := make([]detectorView, 0, len(names))
	for _, name := range names {
		d, _ := detectors.Lookup(name)
		rows = append(rows, detectorView{
			Name:          name,
			Enabled:       enabled[name],
			DefaultWeight: d.DefaultWeight,
			Weight:        weights[name],
			Defaults:      d.Defaults(),
			Params:        h.table.Params(name),
		})
	}
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

func (h *EngineHandler) EvaluateDetector(c echo.Context) error {
	const endpoint = "detector_evaluate"
	name := c.Param("name")
	if _, ok := detectors.Lookup(name); !ok {
		return h.fail(c, endpoint, fmt.Errorf("%w: %s", models.ErrUnknownDetector, name))
	}
	req := &models.EvaluateRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return h.badRequest(c, endpoint, verr)
	}
	params := detectors.Params(req.Params)
	if len(params) == 0 {
		params = h.table.Params(name)
	}
	if err := detectors.ValidateParams(name, params); err != nil {
		return h.fail(c, endpoint, err)
	}
	series, err := seriesFrom(normalizeSymbol(req.Symbol), req.Bars)
	if err != nil {
		return h.fail(c, endpoint, err)
	}
	sig, err := detectors.Evaluate(name, series, params)
	if err != nil {
		return h.fail(c, endpoint, err)
	}
	return xhttp.SuccessResponse(c, sig)
}

func (h *EngineHandler) Consensus(c echo.Context) error {
	const endpoint = "consensus"
	req := &models.ConsensusRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return h.badRequest(c, endpoint, verr)
	}
	if len(req.Weights) == 0 {
		return xhttp.SuccessResponse(c, h.fuser.Fuse(req.Signals))
	}
	return xhttp.SuccessResponse(c, consensus.Fuse(req.Signals, req.Weights))
}

func (h *EngineHandler) RunCycle(c echo.Context) error {
	const endpoint = "cycle"
	req := &models.CycleRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return h.badRequest(c, endpoint, verr)
	}
	series, err := seriesFrom(normalizeSymbol(req.Symbol), req.Bars)
	if err != nil {
		return h.fail(c, endpoint, err)
	}
	res, err := h.cycle.Run(c.Request().Context(), series, req.Execute)
	if err != nil {
		return h.fail(c, endpoint, err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *EngineHandler) LatestCycle(c echo.Context) error {
	const endpoint = "cycle_latest"
	if h.bars == nil {
		return h.fail(c, endpoint, xhttp.UnavailableError("bar store not configured"))
	}
	req := &models.LatestCycleRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return h.badRequest(c, endpoint, verr)
	}
	ctx := c.Request().Context()
	series, err := h.bars.LatestSeries(ctx, normalizeSymbol(req.Symbol), req.N, domrepo.NormalizeTimeframe(req.TF))
	if err != nil {
		return h.fail(c, endpoint, err)
	}
	res, err := h.cycle.Run(ctx, series, req.Execute)
	if err != nil {
		return h.fail(c, endpoint, err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *EngineHandler) GateState(c echo.Context) error {
	st, err := h.gates.State(c.Request().Context(), normalizeSymbol(c.Param("symbol")))
	if err != nil {
		return h.fail(c, "gate_state", err)
	}
	return xhttp.SuccessResponse(c, st)
}

func (h *EngineHandler) ProcessGate(c echo.Context) error {
	const endpoint = "gate_process"
	req := &models.Consensus{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return h.badRequest(c, endpoint, verr)
	}
	symbol := normalizeSymbol(c.Param("symbol"))
	out, err := h.gates.Process(c.Request().Context(), symbol, *req)
	if err != nil && out.Decision == nil && out.Suppressed == nil {
		return h.fail(c, endpoint, err)
	}
	if err != nil {
		h.logger.Error("gate state not persisted", xlogger.Symbol(symbol), xlogger.Error(err))
	}
	return xhttp.SuccessResponse(c, out)
}

func (h *EngineHandler) EmergencyStop(c echo.Context) error {
	const endpoint = "gate_stop"
	req := &models.EmergencyStopRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return h.badRequest(c, endpoint, verr)
	}
	symbol := normalizeSymbol(c.Param("symbol"))
	st, err := h.gates.EmergencyStop(c.Request().Context(), symbol, req.Reason)
	if err != nil {
		return h.fail(c, endpoint, err)
	}
	h.logger.Info("operator emergency stop", xlogger.Symbol(symbol), xlogger.String("reason", req.Reason), xlogger.String("remote", c.RealIP()))
	return xhttp.SuccessResponse(c, st)
}

func (h *EngineHandler) ResetGate(c echo.Context) error {
	symbol := normalizeSymbol(c.Param("symbol"))
	st, err := h.gates.Reset(c.Request().Context(), symbol)
	if err != nil {
		return h.fail(c, "gate_reset", err)
	}
	h.logger.Info("operator reset", xlogger.Symbol(symbol), xlogger.String("remote", c.RealIP()))
	return xhttp.SuccessResponse(c, st)
}

func normalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

func seriesFrom(symbol string, bars []models.Bar) (models.Series, error) {
	for i, b := range bars {
		if err := b.Validate(); err != nil {
			return models.Series{}, xhttp.BadRequestErrorf("bars[%d]: %v", i, err)
		}
	}
	s, err := models.NewSeries(symbol, bars)
	if err != nil {
		return models.Series{}, xhttp.BadRequestError(err.Error())
	}
	return s, nil
}

var _ xhttp.Handler = (*EngineHandler)(nil)
