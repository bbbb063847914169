package di

import (
	"context"
	"fmt"
	"time"

	"TokenPulse/internal/domain/repository"
	"TokenPulse/internal/handler/api"
	mid "TokenPulse/internal/middleware"
	internalrepo "TokenPulse/internal/repository"
	icache "TokenPulse/internal/service/cache"
	"TokenPulse/internal/service/feed"
	"TokenPulse/internal/service/ratelimit"
	"TokenPulse/internal/service/solana"
	"TokenPulse/internal/services/protocol"
	"TokenPulse/internal/usecase"
	pkgch "TokenPulse/pkg/clickhouse"
	"TokenPulse/pkg/config"
	xhttp "TokenPulse/pkg/http"
	pkgkafka "TokenPulse/pkg/kafka"
	applogger "TokenPulse/pkg/logger"
	"TokenPulse/pkg/metrics"
	"TokenPulse/pkg/server"
	"TokenPulse/pkg/util"
)

const startupTimeout = 10 * time.Second

// ProvideLogger builds the process logger from the log section.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(applogger.String("env", cfg.Environment)), nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideClickHouseClient creates a ClickHouse client. It returns nil when no
// host is configured.
func ProvideClickHouseClient(cfg *config.Config, l *applogger.Logger) (*pkgch.Client, error) {
	if cfg.ClickHouse.Host == "" {
		return nil, nil
	}
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
	if !cfg.ClickHouse.InitSchema {
		return client, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()
	if err := client.InitSchema(ctx, pkgch.ArchiveSchema(cfg.ClickHouse.Database, cfg.Archive.Table)); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	l.Info("clickhouse schema ready",
		applogger.String("database", cfg.ClickHouse.Database),
		applogger.String("table", cfg.Archive.Table),
	)
	return client, nil
}

// ProvideArchiveStore wraps the ClickHouse client as transaction archive and
// history store. It returns nil without a client.
func ProvideArchiveStore(client *pkgch.Client, cfg *config.Config, l *applogger.Logger) *internalrepo.CHArchive {
	if client == nil {
		return nil
	}
	store := internalrepo.NewCHArchive(client.DB(), cfg.ClickHouse.Database+"."+cfg.Archive.Table, cfg.Monitor.Decimals())
	store.SetLogger(l.With(applogger.String("component", "ch_archive")))
	return store
}

// ProvideKafkaProducer creates a Kafka producer when transactions are
// archived to Kafka, nil otherwise.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if cfg.Archive.Backend != "kafka" {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatch(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.BatchBytes, cfg.Kafka.Producer.Linger),
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

// ProvideArchiver selects the archive backend. It returns nil when archiving
// is off.
func ProvideArchiver(
	cfg *config.Config,
	producer *pkgkafka.Producer,
	store *internalrepo.CHArchive,
	m repository.Metrics,
) (*usecase.Archiver, error) {
	// keep the interfaces untyped nil for the unused side
	var (
		pub repository.Publisher
		st  repository.Storage
	)
	switch cfg.Archive.Backend {
	case "none":
		return nil, nil
	case "kafka":
		if producer == nil {
			return nil, fmt.Errorf("archive backend kafka: no producer")
		}
		pub = internalrepo.NewKafkaPublisher(producer, cfg.Kafka.Topic)
	case "clickhouse":
		if store == nil {
			return nil, fmt.Errorf("archive backend clickhouse: no clickhouse host")
		}
		st = store
	default:
		return nil, fmt.Errorf("unknown archive backend %q", cfg.Archive.Backend)
	}
	return usecase.NewArchiver(pub, st, m, cfg.Archive.Backend), nil
}

// ProvideArchivePipeline buffers accepted transactions in front of the
// archiver. It returns nil when archiving is off.
func ProvideArchivePipeline(archiver *usecase.Archiver, m repository.Metrics, cfg *config.Config, l *applogger.Logger) *mid.ArchivePipeline {
	if archiver == nil {
		return nil
	}
	return mid.NewArchivePipeline(archiver, m,
		mid.WithBufferSize(cfg.Archive.BufferSize),
		mid.WithBackoff(cfg.Archive.BackoffMin, cfg.Archive.BackoffMax),
		mid.WithMaxAttempts(cfg.Archive.MaxAttempts),
		mid.WithPipelineLogger(l.With(applogger.String("component", "archive_pipeline"))),
	)
}

// ProvideHistoryCache uses Redis when enabled and an in-process TTL cache
// otherwise.
func ProvideHistoryCache(cfg *config.Config, l *applogger.Logger) (icache.BytesCache, error) {
	if !cfg.Redis.Enabled {
		return icache.NewTTLCache(), nil
	}
	rc := icache.NewRedisCache(icache.RedisConfig{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		Prefix:   cfg.Redis.Prefix,
	})
	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()
	if err := rc.Ping(ctx); err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Redis.Addr, err)
	}
	l.Info("redis history cache ready", applogger.String("addr", cfg.Redis.Addr))
	return rc, nil
}

// ProvideEventSource picks the swap event stream.
func ProvideEventSource(cfg *config.Config, l *applogger.Logger) repository.EventSource {
	if cfg.Feed.Events.Type == config.EventsKafka {
		ks := feed.NewKafkaStream(cfg.Kafka.Brokers, cfg.Feed.KafkaTopic, cfg.Kafka.Consumer.GroupPrefix, cfg.Feed.KafkaOffset)
		ks.SetLogger(l.With(applogger.String("component", "kafka_stream")))
		return ks
	}
	ws := feed.NewWebSocketStream(
		cfg.Feed.WebSocket.URL,
		cfg.Feed.WebSocket.APIKey,
		cfg.Feed.WebSocket.PingInterval,
		cfg.Feed.WebSocket.HandshakeTimeout,
	)
	ws.SetLogger(l.With(applogger.String("component", "ws_stream")))
	return ws
}

// ProvideHolderClient creates the Solana RPC holder poller.
func ProvideHolderClient(cfg *config.Config, l *applogger.Logger) *solana.HolderClient {
	hc := solana.NewHolderClient(cfg.Feed.Solana.RPCURL, cfg.Feed.Solana.Timeout)
	hc.SetLogger(l.With(applogger.String("component", "solana_rpc")))
	return hc
}

// ProvideFeedAdapter composes the event stream, holder poller and, when
// ClickHouse is configured, the history store.
func ProvideFeedAdapter(events repository.EventSource, holders *solana.HolderClient, store *internalrepo.CHArchive) (repository.FeedAdapter, error) {
	var history repository.HistorySource
	if store != nil {
		history = store
	}
	return feed.NewAdapter(events, holders, history)
}

// ProvideRegistry creates one monitor session per configured token.
func ProvideRegistry(
	cfg *config.Config,
	fa repository.FeedAdapter,
	cache icache.BytesCache,
	pipeline *mid.ArchivePipeline,
	m repository.Metrics,
	l *applogger.Logger,
) (*usecase.Registry, error) {
	history := usecase.NewHistoryQuery(fa, cache, cfg.History.CacheTTL, cfg.History.MaxDays)
	history.SetLogger(l.With(applogger.String("component", "history")))
	history.SetMetrics(m)

	classifier := protocol.New(cfg.Monitor.Venues)
	mc := cfg.Monitor
	backoff := usecase.Backoff{
		Base:       mc.Backoff.Base,
		Multiplier: mc.Backoff.Multiplier,
		Max:        mc.Backoff.Max,
		Jitter:     mc.Backoff.Jitter,
		MaxRetries: mc.Backoff.MaxRetries,
	}

	sessions := make([]*usecase.MonitorSession, 0, len(mc.Tokens))
	for _, tok := range mc.Tokens {
		opts := []usecase.SessionOption{
			usecase.WithSessionLogger(l.With(applogger.String("token", util.ShortAddress(tok.ID)))),
			usecase.WithSessionMetrics(m),
			usecase.WithHistory(history),
		}
		if pipeline != nil {
			opts = append(opts, usecase.WithSink(pipeline))
		}
		s, err := usecase.NewMonitorSession(usecase.SessionConfig{
			TokenID:        tok.ID,
			Decimals:       tok.Decimals,
			TopN:           mc.TopN,
			BufferCapacity: mc.BufferCapacity,
			DedupWindow:    mc.DedupWindow,
			PollInterval:   mc.PollInterval,
			FutureSkew:     mc.FutureSkew,
			Windows:        mc.Windows,
			MaxRetained:    mc.MaxRetained,
			Backoff:        backoff,
		}, fa, classifier, opts...)
		if err != nil {
			return nil, fmt.Errorf("session %s: %w", tok.ID, err)
		}
		sessions = append(sessions, s)
	}
	return usecase.NewRegistry(sessions...), nil
}

// ProvideRateLimiter creates the per-client API limiter.
func ProvideRateLimiter(cfg *config.Config) *ratelimit.Limiter {
	return ratelimit.New(cfg.RateLimit.Capacity, cfg.RateLimit.RefillPerSec)
}

// ProvideHTTPHandler creates the read API.
func ProvideHTTPHandler(l *applogger.Logger, reg *usecase.Registry, rl *ratelimit.Limiter) xhttp.Handler {
	return api.NewMonitorEchoHandler(l.With(applogger.String("component", "api")), reg, rl)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	reg *usecase.Registry,
	pipeline *mid.ArchivePipeline,
	archiver *usecase.Archiver,
	cache icache.BytesCache,
	rl *ratelimit.Limiter,
	chClient *pkgch.Client,
	handler xhttp.Handler,
) *server.App {
	return server.New(cfg, l, reg, pipeline, archiver, cache, rl, chClient, handler)
}
