package di

import (
	"context"
	"fmt"
	"time"

	domrepo "SignalFuse/internal/domain/repository"
	"SignalFuse/internal/handler/api"
	mid "SignalFuse/internal/middleware"
	internalrepo "SignalFuse/internal/repository"
	apimetrics "SignalFuse/internal/service/metrics"
	"SignalFuse/internal/service/ratelimit"
	"SignalFuse/internal/services/consensus"
	"SignalFuse/internal/services/detectors"
	"SignalFuse/internal/services/gate"
	"SignalFuse/internal/usecase"
	"SignalFuse/pkg/cache"
	pkgch "SignalFuse/pkg/clickhouse"
	"SignalFuse/pkg/config"
	xhttp "SignalFuse/pkg/http"
	pkgkafka "SignalFuse/pkg/kafka"
	"SignalFuse/pkg/logger"
	"SignalFuse/pkg/metrics"
	"SignalFuse/pkg/queue"
	"SignalFuse/pkg/server"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/segmentio/kafka-go"
)

// CycleSinks is the ordered list of destinations for completed cycles.
type CycleSinks []domrepo.CycleSink

// ProvideLogger builds the application logger from the logging section.
func ProvideLogger(cfg *config.Config) (*logger.Logger, error) {
	l, err := logger.New(&logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() *metrics.Recorder {
	return metrics.New()
}

// ProvideKafkaProducer creates a Kafka producer. Nil when Kafka is disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(pkgkafka.ProducerConfig{
		Brokers:          cfg.Kafka.Brokers,
		RequiredAcks:     cfg.Kafka.RequiredAcks,
		Compression:      cfg.Kafka.Compression,
		MaxAttempts:      cfg.Kafka.Producer.MaxAttempts,
		WriteTimeout:     cfg.Kafka.Producer.WriteTimeout,
		ReadTimeout:      cfg.Kafka.Producer.ReadTimeout,
		BatchSize:        cfg.Kafka.Producer.BatchSize,
		BatchBytes:       cfg.Kafka.Producer.BatchBytes,
		Linger:           cfg.Kafka.Producer.Linger,
		Async:            cfg.Kafka.Producer.Async,
		AutoCreateTopics: cfg.Kafka.Producer.AutoCreate,
	})
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideClickHouseClient connects and creates the schema. Nil when ClickHouse is disabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}
	ch := cfg.ClickHouse
	client, err := pkgch.NewClient(pkgch.ClientConfig{
		Host:         ch.Host,
		Port:         ch.Port,
		Database:     ch.Database,
		User:         ch.User,
		Password:     ch.Password,
		UseHTTP:      ch.UseHTTP,
		AsyncInsert:  ch.AsyncInsert,
		WaitForAsync: ch.WaitForAsync,
		DialTimeout:  ch.DialTimeout,
		ReadTimeout:  ch.ReadTimeout,
		WriteTimeout: ch.WriteTimeout,
		MaxExecTime:  ch.MaxExecutionTime,
	})
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.InitSchema(ctx, internalrepo.Schema(ch.Database, ch.BarsTable, ch.CyclesTable)); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, nil
}

// ProvideCache returns Redis when enabled, otherwise an in-process cache.
func ProvideCache(cfg *config.Config) (cache.Service, error) {
	if !cfg.Redis.Enabled {
		return cache.NewMemoryCache(), nil
	}
	c, err := cache.NewRedisCache(
		cache.WithRedisAddr(cfg.Redis.Addr),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
		cache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return c, nil
}

func ProvideStateStore(c cache.Service, cfg *config.Config) domrepo.StateStore {
	return internalrepo.NewCacheStateStore(c, cfg.Redis.StateTTL)
}

// ProvideDetectorTable validates the configured parameter maps. An invalid map aborts startup.
func ProvideDetectorTable(cfg *config.Config) (*detectors.Table, error) {
	params := make(map[string]detectors.Params, len(cfg.Engine.Detectors))
	for name, p := range cfg.Engine.Detectors {
		params[name] = detectors.Params(p)
	}
	t, err := detectors.NewTable(params, cfg.Engine.Enabled)
	if err != nil {
		return nil, fmt.Errorf("detector table: %w", err)
	}
	return t, nil
}

// ProvideFusionEngine uses the configured weights or the default table.
func ProvideFusionEngine(cfg *config.Config) (*consensus.Engine, error) {
	if len(cfg.Engine.Weights) == 0 {
		return consensus.NewEngine(detectors.DefaultWeights()), nil
	}
	for name := range cfg.Engine.Weights {
		if _, ok := detectors.Lookup(name); !ok {
			return nil, fmt.Errorf("engine.weights: unknown detector %q", name)
		}
	}
	return consensus.NewEngine(cfg.Engine.Weights), nil
}

func ProvideGateRegistry(cfg *config.Config, store domrepo.StateStore, m *metrics.Recorder, l *logger.Logger) (*gate.Registry, error) {
	loc, err := cfg.Engine.Location()
	if err != nil {
		return nil, err
	}
	return gate.NewRegistry(gate.RegistryConfig{
		ConsensusThreshold: cfg.Engine.Gate.ConsensusThreshold,
		DailyTradeCap:      cfg.Engine.Gate.DailyTradeCap,
		Location:           loc,
	}, store, m, l)
}

func ProvideHub(l *logger.Logger) *api.Hub {
	return api.NewHub(l)
}

// ProvideDecisionQueue returns the outbox list. Nil unless Redis and the outbox are enabled.
func ProvideDecisionQueue(cfg *config.Config, c cache.Service, l *logger.Logger) *queue.RedisQueue {
	rc, ok := c.(*cache.RedisCache)
	if !ok || !cfg.Redis.Outbox.Enabled {
		return nil
	}
	return queue.NewRedisQueue(rc.Client(),
		queue.WithKeyPrefix(cfg.Redis.Outbox.Prefix),
		queue.WithMaxLen(cfg.Redis.Outbox.MaxLen),
		queue.WithLogger(l),
	)
}

// ProvideCycleSinks collects the enabled cycle destinations.
func ProvideCycleSinks(cfg *config.Config, producer *pkgkafka.Producer, ch *pkgch.Client, outbox *queue.RedisQueue, hub *api.Hub, l *logger.Logger) CycleSinks {
	sinks := CycleSinks{hub}
	if producer != nil {
		sinks = append(sinks, internalrepo.NewKafkaCyclePublisher(producer, cfg.Kafka.CyclesTopic, internalrepo.BreakerSettings{
			MaxFailures: cfg.Kafka.Breaker.MaxFailures,
			OpenTimeout: cfg.Kafka.Breaker.OpenTimeout,
		}, l))
	}
	if ch != nil {
		sinks = append(sinks, internalrepo.NewCHCycleStorage(ch.DB(), ch.Table(cfg.ClickHouse.CyclesTable), l))
	}
	if outbox != nil {
		sinks = append(sinks, internalrepo.NewDecisionOutbox(outbox))
	}
	return sinks
}

func ProvideEvaluationCycle(
	table *detectors.Table,
	engine *consensus.Engine,
	gates *gate.Registry,
	m *metrics.Recorder,
	l *logger.Logger,
	sinks CycleSinks,
) *usecase.EvaluationCycle {
	return usecase.NewEvaluationCycle(table, engine, gates, m, l, usecase.WithSinks(sinks...))
}

func ProvideSeriesBook(cfg *config.Config) *usecase.SeriesBook {
	return usecase.NewSeriesBook(cfg.Engine.Window)
}

// ProvideBarStore returns nil without ClickHouse.
func ProvideBarStore(ch *pkgch.Client, cfg *config.Config, l *logger.Logger) *internalrepo.CHBarStore {
	if ch == nil {
		return nil
	}
	return internalrepo.NewCHBarStore(ch.DB(), ch.Table(cfg.ClickHouse.BarsTable), l)
}

func ProvideBarsUseCase(store *internalrepo.CHBarStore) *usecase.BarsUseCase {
	if store == nil {
		return usecase.NewBarsUseCase(nil)
	}
	return usecase.NewBarsUseCase(store)
}

func ProvideBarPipeline(
	cfg *config.Config,
	book *usecase.SeriesBook,
	cycle *usecase.EvaluationCycle,
	m *metrics.Recorder,
	store *internalrepo.CHBarStore,
	l *logger.Logger,
) *mid.BarPipeline {
	opts := []mid.PipelineOption{
		mid.WithSymbols(cfg.Engine.Symbols),
		mid.WithAutoExecute(cfg.Engine.AutoExecute),
	}
	if store != nil {
		opts = append(opts, mid.WithBarWriter(store, domrepo.NormalizeTimeframe(cfg.Engine.Timeframe)))
	}
	return mid.NewBarPipeline(book, cycle, m, l, opts...)
}

// ProvideKafkaConsumer creates a Kafka consumer configured from YAML. Nil when Kafka is disabled.
func ProvideKafkaConsumer(cfg *config.Config, m *metrics.Recorder, l *logger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	kc := cfg.Kafka.Consumer
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(kc.GroupID),
		pkgkafka.WithConsumerStartOffset(kc.StartOffset),
		pkgkafka.WithConsumerWorkers(kc.Workers),
		pkgkafka.WithConsumerBufferSize(kc.BufferSize),
		pkgkafka.WithConsumerRetry(kc.RetryMax, kc.BackoffMin, kc.BackoffMax),
		pkgkafka.WithConsumerDLQ(kc.DLQTopic),
		pkgkafka.WithConsumerFetch(kc.MinBytes, kc.MaxBytes),
		pkgkafka.WithConsumerLogger(l),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.WithConsumerHook(pkgkafka.HookFuncs{
		Err: func(_ context.Context, topic string, _ kafka.Message, _ []byte, _ error) {
			m.RecordError("consumer_" + topic)
		},
	})
	return consumer, nil
}

func ProvideKafkaBarsHandler(cfg *config.Config, pipeline *mid.BarPipeline, m *metrics.Recorder, l *logger.Logger) *usecase.KafkaBarsHandler {
	return usecase.NewKafkaBarsHandler(cfg.Kafka.BarsTopic, pipeline, m, l)
}

func ProvideEngineHandler(
	cfg *config.Config,
	l *logger.Logger,
	table *detectors.Table,
	engine *consensus.Engine,
	cycle *usecase.EvaluationCycle,
	gates *gate.Registry,
	bars *usecase.BarsUseCase,
	hub *api.Hub,
) *api.EngineHandler {
	return api.NewEngineHandler(l, table, engine, cycle, gates,
		api.WithSeriesLoader(bars),
		api.WithHub(hub),
		api.WithRateLimiter(ratelimit.New(cfg.Server.RateLimit.RPS, cfg.Server.RateLimit.Burst)),
		api.WithAPIMetrics(apimetrics.NewAPI(prometheus.DefaultRegisterer)),
	)
}

func ProvideHTTPServer(cfg *config.Config, h *api.EngineHandler, l *logger.Logger, ch *pkgch.Client, c cache.Service) *xhttp.Server {
	opts := []xhttp.ServerOption{
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithLogger(l),
		xhttp.WithCORS(cfg.Server.CORS.Origins, cfg.Server.CORS.MaxAge),
	}
	if cfg.Metrics.Enabled {
		opts = append(opts, xhttp.WithMetricsPath(cfg.Metrics.Path))
	} else {
		opts = append(opts, xhttp.WithMetricsPath(""))
	}
	if ch != nil {
		opts = append(opts, xhttp.WithHealthCheck("clickhouse", ch.Health))
	}
	if rc, ok := c.(*cache.RedisCache); ok {
		opts = append(opts, xhttp.WithHealthCheck("redis", func(ctx context.Context) error {
			return rc.Client().Ping(ctx).Err()
		}))
	}
	return xhttp.NewServer(h, opts...)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *logger.Logger,
	srv *xhttp.Server,
	consumer *pkgkafka.Consumer,
	kh *usecase.KafkaBarsHandler,
	pipeline *mid.BarPipeline,
	book *usecase.SeriesBook,
	bars *usecase.BarsUseCase,
	barStore *internalrepo.CHBarStore,
	cycle *usecase.EvaluationCycle,
	producer *pkgkafka.Producer,
	ch *pkgch.Client,
	c cache.Service,
) *server.App {
	opts := []server.Option{server.WithPipeline(pipeline)}
	if consumer != nil {
		opts = append(opts, server.WithConsumer(consumer, kh))
	}
	if barStore != nil && len(cfg.Engine.Symbols) > 0 {
		tf := domrepo.NormalizeTimeframe(cfg.Engine.Timeframe)
		opts = append(opts, server.WithWarmup(func(ctx context.Context) error {
			return bars.Warmup(ctx, book, cfg.Engine.Symbols, cfg.Engine.Window, tf)
		}))
	}
	// the collector publishes through the producer, so it is removed before the sinks close it
	if producer != nil && cfg.Logging.Collector.Enabled {
		col := cfg.Logging.Collector
		l.AddCollector(&logger.CollectionConfig{
			TimeInterval:   col.Interval,
			CountThreshold: col.CountThreshold,
			Topic:          col.Topic,
			Levels:         col.Levels,
			Publisher:      producer,
		})
		opts = append(opts, server.WithCloser("log_collector", func() error {
			l.RemoveCollector()
			return nil
		}))
	}
	opts = append(opts,
		server.WithCloser("cycle_sinks", cycle.Close),
		server.WithCloser("cache", c.Close),
	)
	if ch != nil {
		opts = append(opts, server.WithCloser("clickhouse", ch.Close))
	}
	return server.New(cfg, l, srv, opts...)
}

// ProvideOfflineLogger logs to stderr so stdout stays reserved for results.
func ProvideOfflineLogger(cfg *config.Config) (*logger.Logger, error) {
	return logger.New(&logger.Config{Level: cfg.Logging.Level, Format: "console", Output: "stderr"})
}

func ProvideOfflineCache() cache.Service {
	return cache.NewMemoryCache()
}

func ProvideOfflineSinks() CycleSinks {
	return nil
}
