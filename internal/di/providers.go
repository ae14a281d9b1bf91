package di

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/obertruper/BOT-AI-V3-sub003/internal/domain/models"
	domrepo "github.com/obertruper/BOT-AI-V3-sub003/internal/domain/repository"
	"github.com/obertruper/BOT-AI-V3-sub003/internal/features"
	"github.com/obertruper/BOT-AI-V3-sub003/internal/features/registry"
	"github.com/obertruper/BOT-AI-V3-sub003/internal/handler/api"
	mid "github.com/obertruper/BOT-AI-V3-sub003/internal/middleware"
	"github.com/obertruper/BOT-AI-V3-sub003/internal/model"
	internalrepo "github.com/obertruper/BOT-AI-V3-sub003/internal/repository"
	"github.com/obertruper/BOT-AI-V3-sub003/internal/service/bybit"
	"github.com/obertruper/BOT-AI-V3-sub003/internal/service/ratelimit"
	"github.com/obertruper/BOT-AI-V3-sub003/internal/signal"
	"github.com/obertruper/BOT-AI-V3-sub003/internal/usecase"
	pkgcache "github.com/obertruper/BOT-AI-V3-sub003/pkg/cache"
	pkgch "github.com/obertruper/BOT-AI-V3-sub003/pkg/clickhouse"
	"github.com/obertruper/BOT-AI-V3-sub003/pkg/config"
	xhttp "github.com/obertruper/BOT-AI-V3-sub003/pkg/http"
	pkgkafka "github.com/obertruper/BOT-AI-V3-sub003/pkg/kafka"
	applogger "github.com/obertruper/BOT-AI-V3-sub003/pkg/logger"
	"github.com/obertruper/BOT-AI-V3-sub003/pkg/metrics"
	"github.com/obertruper/BOT-AI-V3-sub003/pkg/server"

	kafkago "github.com/segmentio/kafka-go"
)

// ProvideLogger creates the application logger. Production logs JSON,
// everything else gets the console writer.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	lc := &applogger.Config{Level: "info", Format: "console", Output: "stdout"}
	switch cfg.Environment {
	case "development":
		lc.Level = "debug"
	case "production":
		lc.Format = "json"
	}
	return applogger.New(lc)
}

// ProvideMetrics creates the Prometheus metrics recorder.
func ProvideMetrics() domrepo.Metrics {
	return metrics.New()
}

// ProvideClickHouseClient creates the ClickHouse client and ensures the
// candle schema exists.
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
	if err := client.InitSchema(ctx, internalrepo.CandleSchema); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, nil
}

// ProvideCandleStore creates the candle repository.
func ProvideCandleStore(client *pkgch.Client, cfg *config.Config, log *applogger.Logger) *internalrepo.ClickHouseCandleStore {
	return internalrepo.NewCandleStore(client, log,
		internalrepo.WithCandleTable(cfg.ClickHouse.CandleTable),
	)
}

// ProvideKafkaProducer creates the Kafka producer, or nil when Kafka is
// disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
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

// ProvideVerdictPublisher wraps the producer, or returns nil when Kafka is
// disabled so the predictor runs without publishing.
func ProvideVerdictPublisher(producer *pkgkafka.Producer, cfg *config.Config, log *applogger.Logger) domrepo.VerdictPublisher {
	if producer == nil {
		return nil
	}
	return internalrepo.NewVerdictPublisher(producer, log,
		internalrepo.WithVerdictTopic(cfg.Kafka.VerdictTopic),
	)
}

// consumerMetricsHook records per-message handling latency and failures.
type consumerMetricsHook struct {
	m domrepo.Metrics
}

type hookStartKey struct{}

func (h consumerMetricsHook) BeforeHandle(ctx context.Context, topic string, km kafkago.Message, data []byte) (context.Context, kafkago.Message, []byte, error) {
	return context.WithValue(ctx, hookStartKey{}, time.Now()), km, data, nil
}

func (h consumerMetricsHook) AfterHandle(ctx context.Context, topic string, km kafkago.Message, data []byte, err error) {
	if start, ok := ctx.Value(hookStartKey{}).(time.Time); ok {
		h.m.RecordLatency("kafka_handle", time.Since(start).Seconds())
	}
}

func (h consumerMetricsHook) OnError(ctx context.Context, topic string, km kafkago.Message, data []byte, err error) {
	h.m.RecordError("kafka_consume")
}

// ProvideKafkaConsumer creates the candle-close consumer, or nil when Kafka
// is disabled.
func ProvideKafkaConsumer(cfg *config.Config, m domrepo.Metrics) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled {
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
	consumer.WithConsumerHook(consumerMetricsHook{m: m})
	return consumer, nil
}

// ProvideCacheBackend creates the layered Redis cache shared across replicas
// by the signal cache, or nil when Redis is disabled (in-process only).
func ProvideCacheBackend(cfg *config.Config) (pkgcache.Service, error) {
	if !cfg.Redis.Enabled {
		return nil, nil
	}
	host, portStr, err := net.SplitHostPort(cfg.Redis.Addr)
	if err != nil {
		return nil, fmt.Errorf("redis addr %q: %w", cfg.Redis.Addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("redis port %q: %w", portStr, err)
	}
	rc, err := pkgcache.NewRedisCache(
		pkgcache.WithRedisHost(host),
		pkgcache.WithRedisPort(port),
		pkgcache.WithRedisPassword(cfg.Redis.Password),
		pkgcache.WithRedisDB(cfg.Redis.DB),
		pkgcache.WithRedisPrefix("botai"),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return pkgcache.NewLayeredCache(rc), nil
}

// ProvideRegistry creates the feature name registry.
func ProvideRegistry(log *applogger.Logger) (*registry.Registry, error) {
	return registry.New(log)
}

// ProvideScalerStore creates the per-symbol scaler store.
func ProvideScalerStore(log *applogger.Logger) *features.ScalerStore {
	return features.NewScalerStore(log)
}

// ProvideRunner loads the model checkpoint. A missing or malformed
// checkpoint is a startup failure.
func ProvideRunner(cfg *config.Config, log *applogger.Logger) (*model.Runner, error) {
	r := model.NewRunner(log)
	if err := r.Load(cfg.Model.CheckpointPath); err != nil {
		return nil, fmt.Errorf("model checkpoint: %w", err)
	}
	return r, nil
}

// ProvideEngineer creates the feature engineer with the checkpoint scaler
// installed and a cross-asset reference provider reading the reference
// symbol from ClickHouse. Missing reference bars fall back to neutral
// cross-asset features instead of failing the prediction.
func ProvideEngineer(
	reg *registry.Registry,
	scalers *features.ScalerStore,
	store *internalrepo.ClickHouseCandleStore,
	runner *model.Runner,
	cfg *config.Config,
	log *applogger.Logger,
) *features.Engineer {
	scalers.SetPretrained(runner.Scaler())

	interval := cfg.CandleInterval()
	refSymbol := cfg.Pipeline.ReferenceSymbol
	exchange := cfg.Pipeline.Exchange
	reference := func(times []time.Time) ([]float64, bool) {
		if len(times) == 0 || refSymbol == "" {
			return nil, false
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		series, err := store.Fetch(ctx, refSymbol, exchange, interval,
			times[0], times[len(times)-1].Add(interval))
		if err != nil || series == nil {
			return nil, false
		}
		byTime := make(map[int64]float64, len(series.Candles))
		for _, c := range series.Candles {
			byTime[c.Timestamp.Unix()] = c.Close
		}
		closes := make([]float64, len(times))
		for i, t := range times {
			v, ok := byTime[t.Unix()]
			if !ok {
				return nil, false
			}
			closes[i] = v
		}
		return closes, true
	}

	return features.NewEngineer(reg, scalers, log,
		features.WithReference(reference),
		features.WithInterval(interval),
	)
}

// ProvideInterpreter creates the verdict interpreter.
func ProvideInterpreter(cfg *config.Config) *signal.Interpreter {
	return signal.NewInterpreter(
		signal.WithRiskReward(cfg.Pipeline.RiskRewardRatio),
		signal.WithBaseStopPct(cfg.Pipeline.BaseStopLossPct),
	)
}

// ProvideSignalCache creates the time-bucketed verdict cache.
func ProvideSignalCache(backend pkgcache.Service, cfg *config.Config, log *applogger.Logger) *signal.Cache {
	opts := []signal.CacheOption{
		signal.WithTTL(cfg.Pipeline.CacheTTL),
		signal.WithBucket(cfg.Pipeline.CacheBucket),
	}
	if backend != nil {
		opts = append(opts, signal.WithBackend(backend))
	}
	return signal.NewCache(log, opts...)
}

// ProvideDiversityMonitor creates the monitor and routes its alerts to the
// metrics recorder.
func ProvideDiversityMonitor(m domrepo.Metrics, cfg *config.Config, log *applogger.Logger) *signal.DiversityMonitor {
	return signal.NewDiversityMonitor(log,
		signal.WithWindow(cfg.Pipeline.DiversityWindow),
		signal.WithAlertFunc(func(level signal.AlertLevel, _ models.SignalType, _ float64) {
			m.RecordDiversityAlert(string(level))
		}),
	)
}

// ProvidePredictor assembles the prediction pipeline.
func ProvidePredictor(
	store *internalrepo.ClickHouseCandleStore,
	engineer *features.Engineer,
	runner *model.Runner,
	interp *signal.Interpreter,
	cache *signal.Cache,
	monitor *signal.DiversityMonitor,
	publisher domrepo.VerdictPublisher,
	m domrepo.Metrics,
	cfg *config.Config,
	log *applogger.Logger,
) *usecase.Predictor {
	opts := []usecase.PredictorOption{
		usecase.WithMetrics(m),
		usecase.WithCandleInterval(cfg.CandleInterval()),
	}
	if publisher != nil {
		opts = append(opts, usecase.WithPublisher(publisher))
	}
	return usecase.NewPredictor(store, engineer, runner, interp, cache, monitor, log, opts...)
}

// ProvideCandleCloseHandler creates the Kafka handler triggering predictions
// on bar close events.
func ProvideCandleCloseHandler(predictor *usecase.Predictor, cfg *config.Config, log *applogger.Logger) *usecase.CandleCloseHandler {
	return usecase.NewCandleCloseHandler(predictor, log,
		usecase.WithCandleCloseTopic(cfg.Kafka.CandleTopic),
		usecase.WithPredictTimeout(cfg.Pipeline.PredictTimeout),
	)
}

// ProvideMarketStream creates the Bybit kline stream, or nil when disabled.
func ProvideMarketStream(cfg *config.Config, log *applogger.Logger) domrepo.MarketStream {
	if !cfg.Bybit.Enabled {
		return nil
	}
	return bybit.New(
		cfg.Bybit.WebSocketURL,
		cfg.Pipeline.Symbols,
		cfg.Bybit.Interval,
		cfg.Bybit.ReconnectDelay,
		cfg.Bybit.PingInterval,
		log,
	)
}

// ProvideRealtimePipeline puts the validation/dedup middleware in front of
// the stream processor.
func ProvideRealtimePipeline(
	store *internalrepo.ClickHouseCandleStore,
	predictor *usecase.Predictor,
	m domrepo.Metrics,
	cfg *config.Config,
	log *applogger.Logger,
) *mid.RealtimePipeline {
	proc := usecase.NewStreamProcessor(store, predictor, cfg.Pipeline.Exchange, cfg.CandleInterval(), log)
	return mid.NewRealtimePipeline(proc, m, mid.WithBufferSize(1000))
}

// ProvideHTTPServer creates the Echo server with the signals API mounted.
func ProvideHTTPServer(predictor *usecase.Predictor, store *internalrepo.ClickHouseCandleStore, cfg *config.Config, log *applogger.Logger) *xhttp.Server {
	handler := api.NewSignalsEchoHandler(log, predictor, store, cfg.CandleInterval(), ratelimit.New(), cfg.Pipeline.RequestRateLimit)
	return xhttp.NewServer(handler,
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
	)
}

// ProvideApp creates the application with its runtime dependencies.
func ProvideApp(
	cfg *config.Config,
	log *applogger.Logger,
	httpServer *xhttp.Server,
	consumer *pkgkafka.Consumer,
	candleHandler *usecase.CandleCloseHandler,
	stream domrepo.MarketStream,
	pipeline *mid.RealtimePipeline,
	sigCache *signal.Cache,
	store *internalrepo.ClickHouseCandleStore,
	publisher domrepo.VerdictPublisher,
) *server.App {
	return server.New(cfg, log, httpServer, consumer, candleHandler, stream, pipeline, sigCache, store, publisher)
}
