package server

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"SignalFuse/pkg/config"
	xhttp "SignalFuse/pkg/http"
	pkgkafka "SignalFuse/pkg/kafka"
	"SignalFuse/pkg/logger"
)

// Pipeline is a background stage started before the consumer and stopped after it.
type Pipeline interface {
	Start(ctx context.Context)
	Stop()
}

type closer struct {
	name string
	fn   func() error
}

// Option configures App.
type Option func(*App)

// WithConsumer attaches a Kafka consumer and the handlers it dispatches to.
func WithConsumer(c *pkgkafka.Consumer, handlers ...pkgkafka.MessageHandler) Option {
	return func(a *App) {
		a.consumer = c
		a.handlers = append(a.handlers, handlers...)
	}
}

func WithPipeline(p Pipeline) Option {
	return func(a *App) { a.pipeline = p }
}

// WithWarmup runs fn once before ingestion starts. A warmup error is logged, not fatal.
func WithWarmup(fn func(ctx context.Context) error) Option {
	return func(a *App) { a.warmup = fn }
}

// WithCloser registers a resource closed during shutdown, in registration order.
func WithCloser(name string, fn func() error) Option {
	return func(a *App) {
		if fn != nil {
			a.closers = append(a.closers, closer{name: name, fn: fn})
		}
	}
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	log        *logger.Logger
	httpServer *xhttp.Server
	consumer   *pkgkafka.Consumer
	handlers   []pkgkafka.MessageHandler
	pipeline   Pipeline
	warmup     func(ctx context.Context) error
	closers    []closer
}

// New creates a new App instance with all dependencies.
func New(cfg *config.Config, log *logger.Logger, httpServer *xhttp.Server, opts ...Option) *App {
	a := &App{
		cfg:        cfg,
		log:        logger.OrNop(log).With(logger.Component("app")),
		httpServer: httpServer,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return a.RunContext(ctx)
}

// RunContext starts every component and blocks until ctx is done.
func (a *App) RunContext(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if a.warmup != nil {
		wctx, wcancel := context.WithTimeout(ctx, 30*time.Second)
		if err := a.warmup(wctx); err != nil {
			a.log.Warn("warmup failed", logger.Error(err))
		}
		wcancel()
	}

	if a.pipeline != nil {
		a.pipeline.Start(runCtx)
	}

	if a.consumer != nil && len(a.handlers) > 0 {
		for _, h := range a.handlers {
			a.consumer.RegisterHandler(h)
		}
		if err := a.consumer.Start(); err != nil {
			a.log.Error("kafka consumer start error", logger.Error(err))
			a.shutdown()
			return fmt.Errorf("start consumer: %w", err)
		}
		for _, h := range a.handlers {
			a.log.Info("kafka consumer started", logger.String("topic", h.Topic()))
		}
	}

	if a.httpServer != nil {
		if err := a.httpServer.Start(); err != nil {
			a.log.Error("http server start error", logger.Error(err))
			a.shutdown()
			return err
		}
	}

	a.log.Info("signalfuse running",
		logger.String("env", a.cfg.Environment),
		logger.Strings("symbols", a.cfg.Engine.Symbols),
		logger.Bool("auto_execute", a.cfg.Engine.AutoExecute))

	<-ctx.Done()
	a.log.Info("shutdown signal received")
	return a.shutdown()
}

// shutdown stops ingestion first, then the HTTP server, then closes resources.
func (a *App) shutdown() error {
	timeout := a.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			a.log.Warn("kafka consumer stop error", logger.Error(err))
		}
	}
	if a.pipeline != nil {
		a.pipeline.Stop()
	}
	if a.httpServer != nil {
		if err := a.httpServer.Stop(ctx); err != nil {
			a.log.Error("http shutdown error", logger.Error(err))
		}
	}
	for _, c := range a.closers {
		if err := c.fn(); err != nil {
			a.log.Warn("close error", logger.String("resource", c.name), logger.Error(err))
		}
	}
	a.log.Info("shutdown complete")
	return nil
}
