//go:build wireinject
// +build wireinject

package di

import (
	"github.com/obertruper/BOT-AI-V3-sub003/pkg/config"
	"github.com/obertruper/BOT-AI-V3-sub003/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Observability
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,
		ProvideCacheBackend,

		// Repositories
		ProvideCandleStore,
		ProvideVerdictPublisher,

		// Prediction pipeline
		ProvideRegistry,
		ProvideScalerStore,
		ProvideRunner,
		ProvideEngineer,
		ProvideInterpreter,
		ProvideSignalCache,
		ProvideDiversityMonitor,
		ProvidePredictor,

		// Ingestion
		ProvideCandleCloseHandler,
		ProvideMarketStream,
		ProvideRealtimePipeline,

		// HTTP and application
		ProvideHTTPServer,
		ProvideApp,
	)
	return &server.App{}, nil
}
