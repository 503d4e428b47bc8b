//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"SignalTrack/internal/usecase"
	"SignalTrack/pkg/config"
	"SignalTrack/pkg/server"
)

var coreSet = wire.NewSet(
	ProvideLogger,
	ProvideStore,
	ProvideCache,
	ProvideLocker,
	ProvideTickBuffer,
	ProvideMarketData,
	ProvideTrainer,
	ProvideMetrics,
	ProvideKafkaProducer,
	ProvidePublisher,
	ProvideArchive,
	ProvideRetrainController,
	ProvideTracker,
)

// InitializeApp wires the long-running service.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		coreSet,
		ProvideQueue,
		ProvideKafkaConsumer,
		ProvideStream,
		ProvideHandler,
		ProvideHTTPServer,
		ProvideApp,
	)
	return nil, nil, nil
}

// InitializeTracker wires only what a single tracking cycle needs.
func InitializeTracker(cfg *config.Config) (*usecase.Tracker, func(), error) {
	wire.Build(coreSet)
	return nil, nil, nil
}
