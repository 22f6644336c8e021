package middleware

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"SignalFuse/internal/domain/models"
	domrepo "SignalFuse/internal/domain/repository"
	"SignalFuse/internal/usecase"
	"SignalFuse/pkg/logger"
)

// Book is the rolling bar window the pipeline appends to.
type Book interface {
	Append(symbol string, bar models.Bar) error
	Snapshot(symbol string) (models.Series, bool)
}

// CycleRunner evaluates a series.
type CycleRunner interface {
	Run(ctx context.Context, series models.Series, execute bool) (*models.CycleResult, error)
}

type pendingBar struct {
	symbol string
	bar    models.Bar
}

// BarPipeline sits between bar ingestion and the evaluation cycle. It validates bars, drops
// duplicates and out-of-order bars, persists accepted bars and triggers one cycle per bar.
// Failed writes are buffered and retried in the background.
type BarPipeline struct {
	book    Book
	runner  CycleRunner
	writer  domrepo.BarWriter
	tf      domrepo.Timeframe
	metrics domrepo.Metrics
	log     *logger.Logger

	execute bool
	minBars int
	symbols map[string]bool

	bufSize int
	bufCh   chan pendingBar
	stopCh  chan struct{}
	started bool
	mu      sync.Mutex
}

type PipelineOption func(*BarPipeline)

// WithBarWriter persists every accepted bar under timeframe tf.
func WithBarWriter(w domrepo.BarWriter, tf domrepo.Timeframe) PipelineOption {
	return func(p *BarPipeline) {
		p.writer = w
		p.tf = tf
	}
}

// WithAutoExecute passes each cycle's consensus through the gate.
func WithAutoExecute(on bool) PipelineOption {
	return func(p *BarPipeline) { p.execute = on }
}

// WithSymbols restricts ingestion to the listed symbols. An empty list accepts all.
func WithSymbols(symbols []string) PipelineOption {
	return func(p *BarPipeline) {
		for _, s := range symbols {
			p.symbols[s] = true
		}
	}
}

// WithMinBars sets how many bars a window needs before cycles run.
func WithMinBars(n int) PipelineOption {
	return func(p *BarPipeline) {
		if n > 0 {
			p.minBars = n
		}
	}
}

// WithBufferSize sets the retry buffer size for failed writes.
func WithBufferSize(n int) PipelineOption {
	return func(p *BarPipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

func NewBarPipeline(book Book, runner CycleRunner, metrics domrepo.Metrics, log *logger.Logger, opts ...PipelineOption) *BarPipeline {
	p := &BarPipeline{
		book:    book,
		runner:  runner,
		metrics: metrics,
		log:     logger.OrNop(log).With(logger.Component("bar_pipeline")),
		tf:      domrepo.TF1m,
		minBars: 1,
		symbols: make(map[string]bool),
		bufSize: 1000,
		stopCh:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.bufCh = make(chan pendingBar, p.bufSize)
	return p
}

// Start launches background retries of buffered writes.
func (p *BarPipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started || p.writer == nil {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	go func() {
		backoff := 50 * time.Millisecond
		for {
			select {
			case <-p.stopCh:
				return
			case <-ctx.Done():
				return
			case pb := <-p.bufCh:
				if err := p.writer.StoreBar(ctx, pb.symbol, p.tf, pb.bar); err != nil {
					if backoff < 2*time.Second {
						backoff *= 2
					}
					p.recordError("pipeline_flush")
					select {
					case <-time.After(backoff):
					case <-p.stopCh:
						return
					}
					select {
					case p.bufCh <- pb:
					default:
						p.recordError("pipeline_buffer_drop")
					}
					continue
				}
				backoff = 50 * time.Millisecond
			}
		}
	}()
}

// Stop stops the background retries. Bars still buffered are dropped.
func (p *BarPipeline) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		return
	}
	p.started = false
	close(p.stopCh)
}

// Pending returns the number of buffered writes.
func (p *BarPipeline) Pending() int { return len(p.bufCh) }

// Ingest validates and appends one bar, then runs a cycle on the updated window.
// Rejected bars return an error; filtered, duplicate and out-of-order bars are dropped silently.
func (p *BarPipeline) Ingest(ctx context.Context, symbol string, bar models.Bar) error {
	start := time.Now()
	if symbol == "" {
		p.recordError("pipeline_validate")
		return fmt.Errorf("bar symbol empty")
	}
	if err := bar.Validate(); err != nil {
		p.recordError("pipeline_validate")
		return fmt.Errorf("%s: %w", symbol, err)
	}
	if len(p.symbols) > 0 && !p.symbols[symbol] {
		p.recordError("pipeline_filtered")
		return nil
	}

	if err := p.book.Append(symbol, bar); err != nil {
		switch {
		case errors.Is(err, usecase.ErrDuplicateBar):
			p.recordError("pipeline_duplicate")
			return nil
		case errors.Is(err, usecase.ErrOutOfOrderBar):
			p.recordError("pipeline_out_of_order")
			p.log.Debug("dropped out of order bar", logger.Symbol(symbol), logger.Time("bar_time", bar.Timestamp))
			return nil
		default:
			return err
		}
	}

	if p.writer != nil {
		if err := p.writer.StoreBar(ctx, symbol, p.tf, bar); err != nil {
			p.recordError("pipeline_store")
			select {
			case p.bufCh <- pendingBar{symbol: symbol, bar: bar}:
			default:
				p.recordError("pipeline_buffer_full")
			}
			p.log.Warn("bar write failed, buffered", logger.Symbol(symbol), logger.Int("pending", len(p.bufCh)), logger.Error(err))
		}
	}

	series, ok := p.book.Snapshot(symbol)
	if !ok || series.Len() < p.minBars || p.runner == nil {
		return nil
	}
	if _, err := p.runner.Run(ctx, series, p.execute); err != nil {
		// not returned: a redelivered bar would only be dropped as a duplicate
		p.recordError("pipeline_cycle")
		p.log.Error("cycle failed", logger.Symbol(symbol), logger.Error(err))
	}
	if p.metrics != nil {
		p.metrics.RecordLatency("pipeline_ingest", time.Since(start).Seconds())
	}
	return nil
}

func (p *BarPipeline) recordError(kind string) {
	if p.metrics != nil {
		p.metrics.RecordError(kind)
	}
}

var _ usecase.BarIngestor = (*BarPipeline)(nil)
