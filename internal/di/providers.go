package di

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"EMSpark/internal/domain/models"
	"EMSpark/internal/domain/repository"
	"EMSpark/internal/handler/api"
	internalrepo "EMSpark/internal/repository"
	"EMSpark/internal/service/ratelimit"
	"EMSpark/internal/services/fallback"
	"EMSpark/internal/services/query"
	"EMSpark/internal/services/report"
	"EMSpark/internal/usecase"
	"EMSpark/pkg/cache"
	pkgch "EMSpark/pkg/clickhouse"
	"EMSpark/pkg/config"
	xhttp "EMSpark/pkg/http"
	"EMSpark/pkg/http/middleware"
	pkgkafka "EMSpark/pkg/kafka"
	"EMSpark/pkg/logger"
	"EMSpark/pkg/metrics"
	"EMSpark/pkg/postgres"
	"EMSpark/pkg/queue"
	"EMSpark/pkg/server"
)

const connectTimeout = 15 * time.Second

// Backend bundles the market-data stores of the configured backend.
type Backend struct {
	Prices      repository.PriceStore
	Derivatives repository.DerivativeStore
}

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*logger.Logger, error) {
	l, err := logger.New(&logger.Config{
		Level:   cfg.Logging.Level,
		Format:  cfg.Logging.Format,
		Output:  cfg.Logging.Output,
		Service: "emspark",
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() *metrics.Recorder {
	return metrics.New(prometheus.DefaultRegisterer)
}

func markets(codes []string) []models.Market {
	out := make([]models.Market, 0, len(codes))
	for _, c := range codes {
		if m, ok := models.ParseMarket(c); ok {
			out = append(out, m)
		}
	}
	return out
}

// ProvideParser creates the rule-based query parser.
func ProvideParser(cfg *config.Config) (*query.Parser, error) {
	qc, err := ParserConfig(cfg)
	if err != nil {
		return nil, err
	}
	return query.NewParser(qc), nil
}

// ParserConfig maps the query section of the config onto the parser.
func ParserConfig(cfg *config.Config) (query.Config, error) {
	loc, err := time.LoadLocation(cfg.Query.Timezone)
	if err != nil {
		return query.Config{}, fmt.Errorf("query timezone: %w", err)
	}
	def, _ := models.ParseMarket(cfg.Query.DefaultMarket)
	stat, _ := models.ParseStat(cfg.Query.DefaultStat)
	return query.Config{
		DefaultMarket:  def,
		DefaultStat:    stat,
		EnabledMarkets: markets(cfg.Query.EnabledMarkets),
		Location:       loc,
	}, nil
}

// ProvideFallback returns the LLM classifier, or a no-op when it is
// disabled or no API key is configured.
func ProvideFallback(cfg *config.Config, l *logger.Logger) query.FallbackClassifier {
	if !cfg.Fallback.Enabled || cfg.Fallback.APIKey == "" {
		l.Info("LLM fallback disabled")
		return fallback.Noop{}
	}
	return fallback.NewLLMClassifier(fallback.Config{
		APIKey:      cfg.Fallback.APIKey,
		BaseURL:     cfg.Fallback.BaseURL,
		Model:       cfg.Fallback.Model,
		Timeout:     cfg.Fallback.Timeout,
		Retries:     cfg.Fallback.Retries,
		Temperature: cfg.Fallback.Temperature,
	}, l)
}

// ProvideResolver combines the parser and the fallback.
func ProvideResolver(p *query.Parser, fb query.FallbackClassifier, rec *metrics.Recorder, l *logger.Logger) *query.Resolver {
	return query.NewResolver(p, fb, rec, l)
}

// ProvideCache creates the cache service: in-memory only, or Redis behind
// an in-memory L1.
func ProvideCache(cfg *config.Config) (cache.Service, func(), error) {
	if cfg.Cache.MemoryOnly {
		mc := cache.NewMemoryCache(cache.WithMemoryMaxSize(cfg.Cache.MemoryMaxSize))
		return mc, func() { _ = mc.Close() }, nil
	}
	rc, err := cache.NewRedisCache(
		cache.WithRedisAddr(cfg.Cache.Redis.Addr),
		cache.WithRedisPassword(cfg.Cache.Redis.Password),
		cache.WithRedisDB(cfg.Cache.Redis.DB),
		cache.WithRedisPool(cfg.Cache.Redis.PoolSize, 2, 5*time.Second),
		cache.WithRedisPrefix(cfg.Cache.Redis.Prefix),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("redis cache: %w", err)
	}
	lc := cache.NewLayeredCache(rc, cache.WithLayeredMemorySize(cfg.Cache.MemoryMaxSize))
	return lc, func() { _ = lc.Close() }, nil
}

// ProvideBackend opens the configured market-data backend. Price reads go
// through the cache when caching is enabled.
func ProvideBackend(cfg *config.Config, c cache.Service, p *query.Parser, rec *metrics.Recorder, l *logger.Logger) (*Backend, func(), error) {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	var (
		prices repository.PriceStore
		derivs repository.DerivativeStore
	)
	switch cfg.Backend.Type {
	case "clickhouse":
		ch, err := pkgch.NewClient(
			pkgch.WithHost(cfg.ClickHouse.Host),
			pkgch.WithPort(cfg.ClickHouse.Port),
			pkgch.WithDatabase(cfg.ClickHouse.Database),
			pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
			pkgch.WithMaxConnections(10, 5),
			pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
			pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
			pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("clickhouse client: %w", err)
		}
		if err := ch.Health(ctx); err != nil {
			_ = ch.Close()
			return nil, nil, fmt.Errorf("clickhouse ping: %w", err)
		}
		store := internalrepo.NewCHPriceStore(ch, l)
		prices, derivs = store, store
	default:
		pool, err := postgres.NewPool(ctx, cfg.Postgres.URL,
			postgres.WithConns(cfg.Postgres.MaxConns, cfg.Postgres.MinConns),
			postgres.WithConnectTimeout(cfg.Postgres.ConnectTimeout),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres pool: %w", err)
		}
		store := internalrepo.NewPostgresPriceStore(pool, l)
		prices, derivs = store, store
	}
	l.Info("Market data backend ready", logger.String("backend", prices.Name()))

	raw := prices
	if cfg.Cache.Enabled {
		prices = internalrepo.NewCachedPriceStore(raw, c, l,
			internalrepo.WithTTLs(cfg.Cache.HistoricalTTL, cfg.Cache.RecentTTL),
			internalrepo.WithToday(p.Today),
			internalrepo.WithCacheMetrics(rec),
		)
	}
	cleanup := func() {
		if err := raw.Close(); err != nil {
			l.Warn("Backend close failed", logger.Error(err))
		}
	}
	return &Backend{Prices: prices, Derivatives: derivs}, cleanup, nil
}

// ProvideKafkaProducer creates a Kafka producer, or nil when Kafka is off.
func ProvideKafkaProducer(cfg *config.Config, rec *metrics.Recorder) (*pkgkafka.Producer, func(), error) {
	if !cfg.Kafka.Enabled {
		return nil, func() {}, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.BatchBytes, cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
		pkgkafka.WithObserver(func(topic string, count int, err error) {
			if err != nil {
				rec.RecordError("kafka_produce")
				return
			}
			for i := 0; i < count; i++ {
				rec.RecordMessageSent(topic)
			}
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, func() { _ = producer.Close() }, nil
}

// ProvideEventPublisher publishes to Kafka, or drops events when it is off.
func ProvideEventPublisher(producer *pkgkafka.Producer, cfg *config.Config) repository.EventPublisher {
	if producer == nil {
		return internalrepo.NopEventPublisher{}
	}
	return internalrepo.NewKafkaEventPublisher(producer, cfg.Kafka.Topics.Events, cfg.Kafka.Topics.Results)
}

// ProvideJobQueue prefers Kafka, then the Redis work queue. It returns a
// nil interface when neither is configured so the API reports async mode
// as unavailable.
func ProvideJobQueue(producer *pkgkafka.Producer, rq *queue.RedisQueue, cfg *config.Config) api.JobQueue {
	switch {
	case producer != nil:
		return internalrepo.NewKafkaJobQueue(producer, cfg.Kafka.Topics.Requests)
	case rq != nil:
		return internalrepo.NewRedisJobQueue(rq)
	default:
		return nil
	}
}

// ProvideJobResults exposes stored async results while a queue exists.
func ProvideJobResults(jobs api.JobQueue, h *usecase.ReportJobHandler) api.JobResults {
	if jobs == nil {
		return nil
	}
	return h
}

// ProvideRedisQueue builds the Redis work queue, or nil when it is off or
// Kafka carries report jobs.
func ProvideRedisQueue(cfg *config.Config, c cache.Service, h *usecase.ReportJobHandler, l *logger.Logger) (*queue.RedisQueue, error) {
	if !cfg.Queue.Enabled || cfg.Kafka.Enabled {
		return nil, nil
	}
	lc, ok := c.(*cache.LayeredCache)
	if !ok {
		return nil, fmt.Errorf("redis queue: cache is not redis-backed")
	}
	rc, ok := lc.L2().(*cache.RedisCache)
	if !ok {
		return nil, fmt.Errorf("redis queue: cache is not redis-backed")
	}
	q := queue.NewRedisQueue(l, queue.Config{
		Workers:      cfg.Queue.Workers,
		RetryLimit:   cfg.Queue.RetryLimit,
		RetryDelay:   cfg.Queue.RetryDelay,
		PollInterval: cfg.Queue.PollInterval,
		KeyPrefix:    cfg.Queue.KeyPrefix,
	}, rc.Client(), queue.WithPermanent(pkgkafka.IsPermanent))
	q.Register(internalrepo.ReportJobType, h.HandleMessage)
	return q, nil
}

// ProvideRenderer creates the report renderer.
func ProvideRenderer() *report.Renderer {
	return report.NewRenderer()
}

// ProvideMarketReport creates the report use case.
func ProvideMarketReport(
	cfg *config.Config,
	resolver *query.Resolver,
	backend *Backend,
	events repository.EventPublisher,
	renderer *report.Renderer,
	rec *metrics.Recorder,
	l *logger.Logger,
) *usecase.MarketReport {
	return usecase.NewMarketReport(resolver, backend.Prices, backend.Derivatives, events, renderer, rec, l, usecase.ReportConfig{
		Markets:       markets(cfg.Report.Markets),
		Timeout:       cfg.Report.Timeout,
		Derivatives:   cfg.Report.Derivatives,
		MaxSpanDays:   cfg.Report.MaxSpanDays,
		AutoAddGDAM:   cfg.Report.AutoAddGDAM,
		MaxListedRows: cfg.Report.MaxListedRows,
	})
}

// ProvideKafkaConsumer creates the report-job consumer, or nil unless both
// Kafka and the consumer are enabled.
func ProvideKafkaConsumer(cfg *config.Config, rec *metrics.Recorder, l *logger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled || !cfg.Kafka.Consumer.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(l,
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
		pkgkafka.WithConsumerObserver(func(topic string, _ time.Duration, err error) {
			if err != nil {
				rec.RecordError("kafka_consume")
			}
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.WithConsumerHook(pkgkafka.RequestHook())
	return consumer, nil
}

// ProvideReportJobHandler answers queued report requests.
func ProvideReportJobHandler(cfg *config.Config, uc *usecase.MarketReport, events repository.EventPublisher, c cache.Service, rec *metrics.Recorder, l *logger.Logger) *usecase.ReportJobHandler {
	return usecase.NewReportJobHandler(cfg.Kafka.Topics.Requests, uc, events, c, rec, l)
}

// ProvideRateLimiter returns a per-process or cache-shared limiter, or nil
// when rate limiting is off.
func ProvideRateLimiter(cfg *config.Config, c cache.Service) middleware.KeyLimiter {
	rl := cfg.Server.RateLimit
	if !rl.Enabled {
		return nil
	}
	if rl.Mode == "shared" {
		return ratelimit.NewShared(c, rl.Limit, rl.Window)
	}
	return ratelimit.New(rl.RPS, rl.Burst)
}

// ProvideHealthChecks lists the dependencies probed by /api/health.
func ProvideHealthChecks(backend *Backend, c cache.Service) map[string]api.HealthCheck {
	checks := map[string]api.HealthCheck{
		"backend": backend.Prices.Health,
	}
	if lc, ok := c.(*cache.LayeredCache); ok {
		checks["cache"] = lc.Health
	}
	return checks
}

// ProvideHTTPServer builds the Echo server with the query and chat APIs.
func ProvideHTTPServer(
	cfg *config.Config,
	resolver *query.Resolver,
	uc *usecase.MarketReport,
	jobs api.JobQueue,
	results api.JobResults,
	checks map[string]api.HealthCheck,
	limiter middleware.KeyLimiter,
	rec *metrics.Recorder,
	l *logger.Logger,
) *xhttp.Server {
	handlers := []xhttp.Handler{
		api.NewQueryEchoHandler(l, resolver, uc, jobs, results, checks),
		api.NewChatHandler(l, uc, cfg.Server.AllowedOrigins),
	}
	opts := []xhttp.ServerOption{
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
	}
	if cfg.Metrics.Enabled {
		opts = append(opts, xhttp.WithMetrics(rec, cfg.Metrics.Path))
	}
	if limiter != nil {
		opts = append(opts, xhttp.WithRateLimit(limiter))
	}
	return xhttp.NewServer(l, handlers, opts...)
}

// ProvideApp creates the application server and attaches the error digest
// collector when enabled.
func ProvideApp(
	cfg *config.Config,
	l *logger.Logger,
	httpServer *xhttp.Server,
	consumer *pkgkafka.Consumer,
	jobs *usecase.ReportJobHandler,
	rq *queue.RedisQueue,
	producer *pkgkafka.Producer,
) *server.App {
	if cfg.Logging.Collector.Enabled && producer != nil {
		l.AddCollector(&logger.CollectionConfig{
			Service:        "emspark",
			TimeInterval:   cfg.Logging.Collector.Interval,
			CountThreshold: cfg.Logging.Collector.Threshold,
			Topic:          cfg.Kafka.Topics.Logs,
			Publisher:      producer,
		})
	}
	return server.New(cfg, l, httpServer, consumer, jobs, rq)
}
