//go:build wireinject
// +build wireinject

package di

import (
	"ClimaPulse/pkg/config"
	"ClimaPulse/pkg/server"

	"github.com/google/wire"
)

var infraSet = wire.NewSet(
	ProvideRegistry,
	ProvideMetrics,
	ProvideKafkaProducer,
	ProvideLogger,
	ProvideCacheStore,
	ProvideClickHouseClient,
	ProvideHistoryStore,
)

var serviceSet = wire.NewSet(
	ProvideValidationGate,
	ProvideResultCache,
	ProvideRetryPolicy,
	ProvideRemote,
	ProvideSyntheticProducer,
	ProvideNotifier,
)

var usecaseSet = wire.NewSet(
	ProvideGateway,
	ProvideAlertEvaluator,
	ProvideDataSource,
	ProvideSubscriptionManager,
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		infraSet,
		serviceSet,
		usecaseSet,

		// HTTP surface
		ProvideHTTPHandler,
		ProvideHTTPServer,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
