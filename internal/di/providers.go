package di

import (
	"context"
	"fmt"
	"net"
	"time"

	"MMDiag/internal/domain/repository"
	domservice "MMDiag/internal/domain/service"
	"MMDiag/internal/handler/api"
	internalrepo "MMDiag/internal/repository"
	"MMDiag/internal/services/diagnostic"
	"MMDiag/internal/usecase"
	"MMDiag/pkg/cache"
	pkgch "MMDiag/pkg/clickhouse"
	"MMDiag/pkg/config"
	xhttp "MMDiag/pkg/http"
	pkgkafka "MMDiag/pkg/kafka"
	applogger "MMDiag/pkg/logger"
	"MMDiag/pkg/metrics"
	"MMDiag/pkg/queue"
	"MMDiag/pkg/server"
	"MMDiag/pkg/util"

	goredis "github.com/redis/go-redis/v9"
)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	level := "info"
	format := "json"
	if cfg.Environment == "development" {
		level = "debug"
		format = "console"
	}
	return applogger.New(&applogger.Config{Level: level, Format: format, Output: "stdout"})
}

// ProvideParams builds diagnostic engine parameters from config, falling back
// to the documented defaults for anything unset.
func ProvideParams(cfg *config.Config) (diagnostic.Params, error) {
	p := diagnostic.DefaultParams()
	if cfg.Diagnostics.Window > 0 {
		p.Window = cfg.Diagnostics.Window
	}
	if cfg.Diagnostics.MinObs > 0 {
		p.MinObs = cfg.Diagnostics.MinObs
	}
	if cfg.Diagnostics.DriftThreshold > 0 {
		p.DriftThreshold = cfg.Diagnostics.DriftThreshold
	}
	if len(cfg.Diagnostics.Weights) > 0 {
		p.Weights = cfg.Diagnostics.Weights
	}
	if err := p.Validate(); err != nil {
		return diagnostic.Params{}, fmt.Errorf("diagnostics config: %w", err)
	}
	return p, nil
}

// ProvideClickHouseClient creates a ClickHouse client and initializes the
// schema.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stmts := append([]string{}, internalrepo.FeatureHistorySchema...)
	stmts = append(stmts, internalrepo.DiagnosticSchema...)
	if err := client.InitSchema(ctx, stmts); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, nil
}

// ProvideCache creates the baseline cache: Redis when configured, in-process
// memory otherwise.
func ProvideCache(cfg *config.Config) (cache.Service, error) {
	if !cfg.Redis.Enabled {
		return cache.NewMemoryCache(), nil
	}
	host, port := splitHostPort(cfg.Redis.Addr)
	c, err := cache.NewRedisCache(
		cache.WithRedisHost(host),
		cache.WithRedisPort(port),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
		cache.WithRedisPrefix("mmdiag"),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return cache.NewLayeredCache(c), nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideBaselineStore layers the cache over the durable file store.
func ProvideBaselineStore(cfg *config.Config, c cache.Service, l *applogger.Logger) (repository.BaselineStore, error) {
	fs, err := internalrepo.NewFileBaselineStore(cfg.Baselines.Dir)
	if err != nil {
		return nil, err
	}
	fs.SetLogger(l)
	return internalrepo.NewCachedBaselineStore(fs, c, cfg.Redis.CacheTTL), nil
}

// ProvideFeatureHistory creates the ClickHouse feature history.
func ProvideFeatureHistory(chClient *pkgch.Client, l *applogger.Logger) repository.FeatureHistory {
	h := internalrepo.NewCHFeatureHistory(chClient)
	h.SetLogger(l)
	return h
}

// ProvideDiagnosticSink creates the ClickHouse diagnostic sink.
func ProvideDiagnosticSink(chClient *pkgch.Client, l *applogger.Logger) repository.DiagnosticSink {
	s := internalrepo.NewCHDiagnosticSink(chClient)
	s.SetLogger(l)
	return s
}

// ProvideKafkaProducer creates a Kafka producer for the results topic.
// Returns nil when no results topic is configured.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if cfg.Kafka.ResultsTopic == "" || len(cfg.Kafka.Brokers) == 0 {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvidePublisher creates the results publisher, nil when Kafka is not
// configured.
func ProvidePublisher(producer *pkgkafka.Producer, cfg *config.Config) repository.Publisher {
	if producer == nil {
		return nil
	}
	return internalrepo.NewKafkaDiagnosticPublisher(producer, cfg.Kafka.ResultsTopic)
}

// ProvideCalculator creates the baseline calculator.
func ProvideCalculator(params diagnostic.Params, l *applogger.Logger) (*diagnostic.BaselineCalculator, error) {
	return diagnostic.NewBaselineCalculator(params, l)
}

// ProvideNormalizer creates the feature normalizer.
func ProvideNormalizer(params diagnostic.Params) (domservice.Normalizer, error) {
	return diagnostic.NewNormalizer(params)
}

// ProvideClassifier creates the regime classifier.
func ProvideClassifier(params diagnostic.Params) (domservice.RegimeClassifier, error) {
	return diagnostic.NewClassifier(params)
}

// ProvideScorer creates the unusualness scorer.
func ProvideScorer(params diagnostic.Params) (domservice.UnusualnessScorer, error) {
	return diagnostic.NewScorer(params)
}

// ProvideExplainer creates the explainer.
func ProvideExplainer(params diagnostic.Params) (domservice.Explainer, error) {
	return diagnostic.NewExplainer(params)
}

// ProvideDailyRun assembles the daily pipeline use case.
func ProvideDailyRun(
	baselines repository.BaselineStore,
	history repository.FeatureHistory,
	sink repository.DiagnosticSink,
	publisher repository.Publisher,
	m repository.Metrics,
	calc *diagnostic.BaselineCalculator,
	normalizer domservice.Normalizer,
	classifier domservice.RegimeClassifier,
	scorer domservice.UnusualnessScorer,
	explainer domservice.Explainer,
	l *applogger.Logger,
) (*usecase.DailyRunUseCase, error) {
	return usecase.NewDailyRunUseCase(usecase.DailyRunDeps{
		Baselines:  baselines,
		History:    history,
		Sink:       sink,
		Publisher:  publisher,
		Metrics:    m,
		Calc:       calc,
		Normalizer: normalizer,
		Classifier: classifier,
		Scorer:     scorer,
		Explainer:  explainer,
		Logger:     l,
	})
}

// ProvideBatchRun creates the batch fan-out use case.
func ProvideBatchRun(runner *usecase.DailyRunUseCase, baselines repository.BaselineStore, q *queue.RedisQueue, cfg *config.Config, l *applogger.Logger) *usecase.BatchRunUseCase {
	uc := usecase.NewBatchRunUseCase(runner, baselines, cfg.Diagnostics.BatchWorkers, l)
	if q != nil {
		uc.WithQueue(q)
	}
	return uc
}

// ProvideQueue creates the Redis work queue with the daily run job
// registered. Returns nil when the queue is disabled.
func ProvideQueue(cfg *config.Config, runner *usecase.DailyRunUseCase, l *applogger.Logger) (*queue.RedisQueue, error) {
	if !cfg.Queue.Enabled {
		return nil, nil
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	q := queue.NewRedisQueue(l, &queue.QueueConfig{
		Workers:    cfg.Queue.Workers,
		RetryLimit: cfg.Queue.RetryLimit,
		RetryDelay: cfg.Queue.RetryDelay,
	}, client, queue.ModeProducerConsumer)
	q.RegisterJob(usecase.NewDailyRunJob(runner))
	return q, nil
}

// ProvideOnboarding creates the onboarding use case.
func ProvideOnboarding(baselines repository.BaselineStore, history repository.FeatureHistory, calc *diagnostic.BaselineCalculator, l *applogger.Logger) *usecase.OnboardingUseCase {
	return usecase.NewOnboardingUseCase(baselines, history, calc, l)
}

// ProvideRecompute creates the locked-statistics recompute use case.
func ProvideRecompute(baselines repository.BaselineStore, calc *diagnostic.BaselineCalculator, m repository.Metrics, l *applogger.Logger) *usecase.RecomputeUseCase {
	return usecase.NewRecomputeUseCase(baselines, calc, m, l)
}

// ProvideKafkaFeaturesHandler registers the handler for the features topic.
func ProvideKafkaFeaturesHandler(history repository.FeatureHistory, runner *usecase.DailyRunUseCase, m repository.Metrics, cfg *config.Config) *usecase.KafkaFeaturesHandler {
	return usecase.NewKafkaFeaturesHandler(cfg.Kafka.FeaturesTopic, history, runner, m)
}

// ProvideKafkaConsumer creates a Kafka consumer configured from YAML, nil
// when ingestion is disabled.
func ProvideKafkaConsumer(cfg *config.Config) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Consumer.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvideHTTPHandler assembles the echo API handler.
func ProvideHTTPHandler(
	l *applogger.Logger,
	sink repository.DiagnosticSink,
	baselines repository.BaselineStore,
	runner *usecase.DailyRunUseCase,
	batch *usecase.BatchRunUseCase,
	onboard *usecase.OnboardingUseCase,
	recompute *usecase.RecomputeUseCase,
) xhttp.Handler {
	return api.NewDiagnosticsEchoHandler(l, sink, baselines, runner, batch, onboard, recompute)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	consumer *pkgkafka.Consumer,
	kh *usecase.KafkaFeaturesHandler,
	chClient *pkgch.Client,
	httpHandler xhttp.Handler,
	publisher repository.Publisher,
	producer *pkgkafka.Producer,
	q *queue.RedisQueue,
) *server.App {
	if consumer != nil {
		consumer.WithConsumerHook(pkgkafka.NoopHook{})
	}
	if producer != nil && cfg.Kafka.LogsTopic != "" {
		l.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   30 * time.Second,
			CountThreshold: 100,
			Topic:          cfg.Kafka.LogsTopic,
			Publisher:      logPublisher{producer},
		})
	}
	app := server.New(cfg, l, consumer, kh, chClient, httpHandler)
	if q != nil {
		app.WithQueue(q)
	}
	if publisher != nil {
		app.AddCloser(publisher)
	}
	return app
}

// logPublisher adapts the Kafka producer to the log collector's sink.
type logPublisher struct {
	p *pkgkafka.Producer
}

func (lp logPublisher) PublishMessage(ctx context.Context, topic string, payload interface{}) error {
	return lp.p.Publish(ctx, topic, nil, payload)
}

// splitHostPort is a forgiving "host:port" splitter for the redis address.
func splitHostPort(addr string) (string, int) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return addr, 6379
	}
	port := util.ParseIntDefault(portStr, 6379)
	if port <= 0 {
		port = 6379
	}
	return host, port
}
