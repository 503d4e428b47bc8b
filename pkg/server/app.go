package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"SignalTrack/internal/service/finnhub"
	"SignalTrack/internal/usecase"
	"SignalTrack/pkg/config"
	xhttp "SignalTrack/pkg/http"
	pkgkafka "SignalTrack/pkg/kafka"
	"SignalTrack/pkg/logger"
	"SignalTrack/pkg/queue"
)

// App runs the HTTP API alongside the optional background inputs: the Kafka
// candidate consumer, the Redis cycle queue and the Finnhub trade stream.
type App struct {
	cfg      *config.Config
	log      *logger.Logger
	tracker  *usecase.Tracker
	http     *xhttp.Server
	consumer *pkgkafka.Consumer
	queue    *queue.RedisQueue
	stream   *finnhub.Stream
}

// New creates a new App. consumer, queue and stream may be nil.
func New(
	cfg *config.Config,
	log *logger.Logger,
	tracker *usecase.Tracker,
	srv *xhttp.Server,
	consumer *pkgkafka.Consumer,
	q *queue.RedisQueue,
	stream *finnhub.Stream,
) *App {
	return &App{cfg: cfg, log: log, tracker: tracker, http: srv, consumer: consumer, queue: q, stream: stream}
}

// Run starts the application and blocks until interrupted or the listener fails.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if a.stream != nil {
		go a.stream.Run(ctx)
		a.log.Info("finnhub stream started", logger.Strings("symbols", a.cfg.MarketData.Stream.Symbols))
	}

	if a.consumer != nil {
		if err := a.consumer.Start(ctx); err != nil {
			return err
		}
	}

	if a.queue != nil {
		if err := a.queue.Start(ctx); err != nil {
			a.shutdown()
			return err
		}
	}

	if err := a.http.Start(); err != nil {
		a.shutdown()
		return err
	}

	var runErr error
	select {
	case <-ctx.Done():
		a.log.Info("shutdown signal received")
	case runErr = <-a.http.Err():
	}
	a.shutdown()
	return runErr
}

// shutdown stops inputs first so no new work arrives while the server drains.
func (a *App) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			a.log.Warn("kafka consumer stop error", logger.Error(err))
		}
	}
	if a.queue != nil {
		if err := a.queue.Stop(ctx); err != nil {
			a.log.Warn("queue stop error", logger.Error(err))
		}
	}
	if err := a.http.Stop(ctx); err != nil {
		a.log.Error("http shutdown error", logger.Error(err))
	}
	a.log.Info("shutdown complete")
}
