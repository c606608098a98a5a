//go:build wireinject
// +build wireinject

package di

import (
	"MMDiag/pkg/config"
	"MMDiag/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideMetrics,
		ProvideParams,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideCache,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,

		// Repositories
		ProvideBaselineStore,
		ProvideFeatureHistory,
		ProvideDiagnosticSink,
		ProvidePublisher,

		// Diagnostic engine
		ProvideCalculator,
		ProvideNormalizer,
		ProvideClassifier,
		ProvideScorer,
		ProvideExplainer,

		// Use cases
		ProvideDailyRun,
		ProvideQueue,
		ProvideBatchRun,
		ProvideOnboarding,
		ProvideRecompute,
		ProvideKafkaFeaturesHandler,

		// HTTP and application server
		ProvideHTTPHandler,
		ProvideApp,
	)
	return &server.App{}, nil
}
