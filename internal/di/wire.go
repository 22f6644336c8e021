//go:build wireinject
// +build wireinject

package di

import (
	"SignalFuse/internal/usecase"
	"SignalFuse/pkg/config"
	"SignalFuse/pkg/queue"
	"SignalFuse/pkg/server"

	"github.com/google/wire"
)

var engineSet = wire.NewSet(
	ProvideMetrics,
	ProvideDetectorTable,
	ProvideFusionEngine,
	ProvideGateRegistry,
	ProvideStateStore,
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		ProvideLogger,

		// Infrastructure clients
		ProvideKafkaProducer,
		ProvideKafkaConsumer,
		ProvideClickHouseClient,
		ProvideCache,

		// Engine
		engineSet,
		ProvideHub,
		ProvideDecisionQueue,
		ProvideCycleSinks,
		ProvideEvaluationCycle,

		// Ingestion
		ProvideBarStore,
		ProvideBarsUseCase,
		ProvideSeriesBook,
		ProvideBarPipeline,
		ProvideKafkaBarsHandler,

		// HTTP
		ProvideEngineHandler,
		ProvideHTTPServer,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}

// InitializeOfflineCycle builds an evaluation cycle without Kafka, ClickHouse or Redis.
func InitializeOfflineCycle(cfg *config.Config) (*usecase.EvaluationCycle, error) {
	wire.Build(
		ProvideOfflineLogger,
		ProvideOfflineCache,
		engineSet,
		ProvideOfflineSinks,
		ProvideEvaluationCycle,
	)
	return &usecase.EvaluationCycle{}, nil
}

// InitializeDecisionQueue opens the Redis decision outbox. The queue is nil when the outbox is disabled.
func InitializeDecisionQueue(cfg *config.Config) (*queue.RedisQueue, error) {
	wire.Build(
		ProvideOfflineLogger,
		ProvideCache,
		ProvideDecisionQueue,
	)
	return &queue.RedisQueue{}, nil
}
