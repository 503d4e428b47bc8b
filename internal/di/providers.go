package di

import (
	"context"
	"fmt"
	"time"

	"SignalTrack/internal/domain/repository"
	domsvc "SignalTrack/internal/domain/service"
	"SignalTrack/internal/handler/api"
	internalrepo "SignalTrack/internal/repository"
	"SignalTrack/internal/service/finnhub"
	"SignalTrack/internal/service/marketdata"
	"SignalTrack/internal/service/training"
	"SignalTrack/internal/usecase"
	"SignalTrack/pkg/cache"
	pkgch "SignalTrack/pkg/clickhouse"
	"SignalTrack/pkg/config"
	xhttp "SignalTrack/pkg/http"
	pkgkafka "SignalTrack/pkg/kafka"
	"SignalTrack/pkg/logger"
	"SignalTrack/pkg/metrics"
	"SignalTrack/pkg/queue"
	"SignalTrack/pkg/server"
)

// Optional infrastructure (Redis, Kafka, ClickHouse, the Finnhub stream) is
// provided as nil when disabled. Providers returning interfaces return an
// untyped nil so downstream nil checks hold.

func ProvideLogger(cfg *config.Config) (*logger.Logger, error) {
	l, err := logger.New(&logger.Config{
		Level:      cfg.Logger.Level,
		Format:     cfg.Logger.Format,
		Output:     cfg.Logger.Output,
		MaxSizeMB:  cfg.Logger.MaxSizeMB,
		MaxBackups: cfg.Logger.MaxBackups,
		MaxAgeDays: cfg.Logger.MaxAgeDays,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(logger.String("env", cfg.Environment)), nil
}

// ProvideStore opens the signal store selected by store.backend.
func ProvideStore(cfg *config.Config, l *logger.Logger) (repository.Store, func(), error) {
	var (
		st  repository.Store
		err error
	)
	switch cfg.Store.Backend {
	case "memory":
		st = internalrepo.NewMemoryStore()
	default:
		st, err = internalrepo.NewBoltStore(cfg.Store.Path, cfg.Store.Timeout)
		if err != nil {
			return nil, nil, fmt.Errorf("store: %w", err)
		}
	}
	l.Info("signal store ready", logger.String("backend", cfg.Store.Backend), logger.String("path", cfg.Store.Path))
	return st, func() {
		if err := st.Close(); err != nil {
			l.Warn("store close error", logger.Error(err))
		}
	}, nil
}

// ProvideCache returns Redis when enabled, otherwise an in-process cache.
func ProvideCache(cfg *config.Config, l *logger.Logger) (cache.Service, func(), error) {
	var (
		c   cache.Service
		err error
	)
	if cfg.Redis.Enabled {
		c, err = cache.NewRedisCache(
			cache.WithRedisAddr(cfg.Redis.Host, cfg.Redis.Port),
			cache.WithRedisAuth(cfg.Redis.Password, cfg.Redis.DB),
			cache.WithRedisPool(cfg.Redis.PoolSize, 2),
			cache.WithRedisPrefix(cfg.Redis.Prefix),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("redis cache: %w", err)
		}
		l.Info("redis cache connected", logger.String("host", cfg.Redis.Host), logger.Int("port", cfg.Redis.Port))
	} else {
		c = cache.NewMemoryCache(cache.WithMemoryMaxSize(4096), cache.WithMemoryCleanup(time.Minute))
	}
	return c, func() {
		if err := c.Close(); err != nil {
			l.Warn("cache close error", logger.Error(err))
		}
	}, nil
}

// ProvideLocker backs the retrain guard with the cache lock. With the memory
// cache this only adds a process-local lock on top of the controller's own.
func ProvideLocker(c cache.Service) repository.Locker {
	return internalrepo.NewCacheLocker(c, "sigtrack")
}

func ProvideTickBuffer() *marketdata.TickBuffer {
	return marketdata.NewTickBuffer(1024)
}

// ProvideMarketData chains quote providers behind the price cache, and puts the
// stream buffer in front when the Finnhub stream is enabled.
func ProvideMarketData(cfg *config.Config, c cache.Service, buf *marketdata.TickBuffer, l *logger.Logger) repository.MarketData {
	md := cfg.MarketData
	binance := xhttp.NewClient(
		xhttp.WithBaseURL(md.BinanceURL),
		xhttp.WithTimeout(cfg.Tracker.FetchTimeout),
		xhttp.WithRateLimit(md.RatePerSec, md.Burst),
	)
	fh := xhttp.NewClient(
		xhttp.WithBaseURL(md.FinnhubURL),
		xhttp.WithTimeout(cfg.Tracker.FetchTimeout),
		xhttp.WithRateLimit(md.RatePerSec, md.Burst),
	)
	quotes := marketdata.NewQuoteProvider(binance, fh, md.FinnhubAPIKey)
	cached := marketdata.NewCachedProvider(c, quotes, md.CacheTTL, l)
	if md.Stream.Enabled {
		return marketdata.NewFallback(buf, cached)
	}
	return cached
}

func ProvideStream(cfg *config.Config, buf *marketdata.TickBuffer, l *logger.Logger) *finnhub.Stream {
	s := cfg.MarketData.Stream
	if !s.Enabled {
		return nil
	}
	return finnhub.NewStream(cfg.MarketData.FinnhubAPIKey, s.WebSocketURL, s.Symbols, s.ReconnectDelay, s.PingInterval, buf, l)
}

func ProvideTrainer(cfg *config.Config) (domsvc.Trainer, error) {
	switch cfg.Trainer.Type {
	case "", "local":
		return training.NewLogisticTrainer(cfg.Trainer.Epochs, cfg.Trainer.LearningRate), nil
	case "http":
		if cfg.Trainer.ServiceURL == "" {
			return nil, fmt.Errorf("trainer.service_url is required for http trainer")
		}
		return training.NewHTTPTrainer(cfg.Trainer.ServiceURL, cfg.Trainer.Timeout), nil
	default:
		return nil, fmt.Errorf("unknown trainer type %q", cfg.Trainer.Type)
	}
}

func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, func(), error) {
	if !cfg.Kafka.Enabled {
		return nil, func() {}, nil
	}
	p, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithMaxAttempts(cfg.Kafka.MaxAttempts),
		pkgkafka.WithWriteTimeout(cfg.Kafka.WriteTimeout),
		pkgkafka.WithBatching(cfg.Kafka.BatchSize, cfg.Kafka.BatchTimeout),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}
	return p, func() { _ = p.Close() }, nil
}

func ProvidePublisher(cfg *config.Config, p *pkgkafka.Producer) repository.EventPublisher {
	if p == nil {
		return nil
	}
	return internalrepo.NewKafkaEventPublisher(p, cfg.Kafka.EventsTopic)
}

// ProvideArchive connects to ClickHouse and creates the archive tables.
func ProvideArchive(cfg *config.Config, l *logger.Logger) (repository.Archive, func(), error) {
	ch := cfg.ClickHouse
	if !ch.Enabled {
		return nil, func() {}, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithAddr(ch.Host, ch.Port),
		pkgch.WithDatabase(ch.Database),
		pkgch.WithCredentials(ch.User, ch.Password),
		pkgch.WithPool(10, 5, 10*time.Minute),
		pkgch.WithHTTP(ch.UseHTTP),
		pkgch.WithTimeouts(ch.DialTimeout, ch.ReadTimeout, ch.MaxExecutionTime),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("clickhouse client: %w", err)
	}

	a := internalrepo.NewCHArchive(client, l)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.Init(ctx); err != nil {
		_ = a.Close()
		return nil, nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	l.Info("clickhouse archive ready", logger.String("database", ch.Database))
	return a, func() {
		if err := a.Close(); err != nil {
			l.Warn("clickhouse close error", logger.Error(err))
		}
	}, nil
}

func ProvideRetrainController(
	cfg *config.Config,
	store repository.Store,
	trainer domsvc.Trainer,
	locker repository.Locker,
	pub repository.EventPublisher,
	m repository.Metrics,
	l *logger.Logger,
) *usecase.RetrainController {
	r := cfg.Retrain
	return usecase.NewRetrainController(store, trainer, locker, pub, m, l.With(logger.String("component", "retrain")), usecase.RetrainConfig{
		Cadence:             r.Cadence,
		HitRateFloor:        r.HitRateFloor,
		DriftSnapshots:      r.DriftSnapshots,
		ValidationMargin:    r.ValidationMargin,
		MinValidationMetric: r.MinValidationMetric,
		MinTrainingSamples:  r.MinTrainingSamples,
		MinNewOutcomes:      r.MinNewOutcomes,
		HoldoutFraction:     r.HoldoutFraction,
		LockTTL:             r.LockTTL,
	})
}

func ProvideTracker(
	cfg *config.Config,
	store repository.Store,
	market repository.MarketData,
	retrain *usecase.RetrainController,
	pub repository.EventPublisher,
	archive repository.Archive,
	m repository.Metrics,
	l *logger.Logger,
) *usecase.Tracker {
	return usecase.NewTracker(store, market, retrain, pub, archive, m, l.With(logger.String("component", "tracker")), usecase.TrackerConfig{
		PerformanceWindow: cfg.Tracker.PerformanceWindow,
		DefaultSignalTTL:  cfg.Tracker.DefaultSignalTTL,
		FetchTimeout:      cfg.Tracker.FetchTimeout,
		MaxConcurrency:    cfg.Tracker.MaxConcurrency,
	})
}

// ProvideQueue shares the Redis connection of the cache. Without Redis there is
// no queue and cycles run inline.
func ProvideQueue(cfg *config.Config, c cache.Service, t *usecase.Tracker, l *logger.Logger) *queue.RedisQueue {
	rc, ok := c.(*cache.RedisCache)
	if !ok {
		return nil
	}
	q := queue.NewRedisQueue(l.With(logger.String("component", "queue")), &queue.QueueConfig{Workers: cfg.Queue.Workers}, rc.Client(),
		queue.WithKeyPrefix(cfg.Redis.Prefix+":queue"))
	q.RegisterJob(usecase.NewCycleJob(t, l))
	return q
}

func ProvideKafkaConsumer(cfg *config.Config, t *usecase.Tracker, m repository.Metrics, l *logger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	k := cfg.Kafka.Consumer
	c, err := pkgkafka.NewConsumer(l.With(logger.String("component", "kafka")),
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(k.GroupID),
		pkgkafka.WithConsumerWorkers(k.Workers),
		pkgkafka.WithConsumerBufferSize(k.BufferSize),
		pkgkafka.WithConsumerRetry(k.RetryMax, k.BackoffMin, k.BackoffMax),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	c.RegisterHandler(usecase.NewCandidateHandler(cfg.Kafka.CandidatesTopic, t, m, l))
	return c, nil
}

func ProvideHandler(t *usecase.Tracker, q *queue.RedisQueue, l *logger.Logger) *api.SignalsEchoHandler {
	if q == nil {
		return api.NewSignalsEchoHandler(l, t, nil)
	}
	return api.NewSignalsEchoHandler(l, t, q)
}

func ProvideHTTPServer(cfg *config.Config, h *api.SignalsEchoHandler, t *usecase.Tracker, c cache.Service, l *logger.Logger) *xhttp.Server {
	health := xhttp.NewHealthHandler(2 * time.Second).Add("tracker", t.Health)
	if rc, ok := c.(*cache.RedisCache); ok {
		health.Add("redis", rc.Ping)
	}
	return xhttp.NewServer(xhttp.Handlers{h, health}, l,
		xhttp.WithHost(cfg.Server.Host),
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithSlowThreshold(cfg.Server.SlowThreshold),
		xhttp.WithCORS(cfg.Server.CORS),
	)
}

func ProvideApp(
	cfg *config.Config,
	l *logger.Logger,
	t *usecase.Tracker,
	srv *xhttp.Server,
	consumer *pkgkafka.Consumer,
	q *queue.RedisQueue,
	stream *finnhub.Stream,
) *server.App {
	return server.New(cfg, l, t, srv, consumer, q, stream)
}
