//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"EMSpark/pkg/config"
	"EMSpark/pkg/server"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideMetrics,

		// Query understanding
		ProvideParser,
		ProvideFallback,
		ProvideResolver,

		// Infrastructure clients
		ProvideCache,
		ProvideBackend,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,

		// Repositories
		ProvideEventPublisher,
		ProvideRedisQueue,
		ProvideJobQueue,
		ProvideJobResults,

		// Use cases
		ProvideRenderer,
		ProvideMarketReport,
		ProvideReportJobHandler,

		// Transport
		ProvideRateLimiter,
		ProvideHealthChecks,
		ProvideHTTPServer,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil, nil
}
