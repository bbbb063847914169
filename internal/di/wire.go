//go:build wireinject
// +build wireinject

package di

import (
	"TokenPulse/pkg/config"
	"TokenPulse/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideKafkaProducer,
		ProvideHistoryCache,

		// Repositories
		ProvideArchiveStore,
		ProvideArchiver,
		ProvideArchivePipeline,

		// Feed
		ProvideEventSource,
		ProvideHolderClient,
		ProvideFeedAdapter,

		// Use cases
		ProvideRegistry,

		// HTTP
		ProvideRateLimiter,
		ProvideHTTPHandler,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
