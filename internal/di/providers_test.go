package di

import (
	"testing"

	"TokenPulse/internal/domain/repository"
	icache "TokenPulse/internal/service/cache"
	"TokenPulse/internal/service/feed"
	"TokenPulse/pkg/config"
)

const usdc = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Default()
	if err != nil {
		t.Fatalf("defaults: %v", err)
	}
	cfg.Monitor.Tokens = []config.TokenConfig{{ID: usdc, Decimals: 6}}
	cfg.Feed.WebSocket.URL = "ws://127.0.0.1:1/relay"
	cfg.Log.Output = "stderr"
	return cfg
}

func TestProvideArchiverSelection(t *testing.T) {
	cfg := testConfig(t)

	a, err := ProvideArchiver(cfg, nil, nil, repository.NopMetrics{})
	if err != nil || a != nil {
		t.Fatalf("backend none: archiver=%v err=%v", a, err)
	}
	if p := ProvideArchivePipeline(nil, repository.NopMetrics{}, cfg, nil); p != nil {
		t.Fatalf("pipeline without archiver")
	}

	cfg.Archive.Backend = "clickhouse"
	if _, err := ProvideArchiver(cfg, nil, nil, repository.NopMetrics{}); err == nil {
		t.Fatalf("clickhouse backend without store must fail")
	}
	cfg.Archive.Backend = "kafka"
	if _, err := ProvideArchiver(cfg, nil, nil, repository.NopMetrics{}); err == nil {
		t.Fatalf("kafka backend without producer must fail")
	}
}

func TestProvideOptionalClients(t *testing.T) {
	cfg := testConfig(t)

	ch, err := ProvideClickHouseClient(cfg, nil)
	if err != nil || ch != nil {
		t.Fatalf("no host: client=%v err=%v", ch, err)
	}
	if store := ProvideArchiveStore(nil, cfg, nil); store != nil {
		t.Fatalf("store without client")
	}
	p, err := ProvideKafkaProducer(cfg)
	if err != nil || p != nil {
		t.Fatalf("producer for backend none: %v %v", p, err)
	}

	c, err := ProvideHistoryCache(cfg, nil)
	if err != nil {
		t.Fatalf("history cache: %v", err)
	}
	if _, ok := c.(*icache.TTLCache); !ok {
		t.Fatalf("expected in-process cache, got %T", c)
	}
}

func TestProvideEventSource(t *testing.T) {
	cfg := testConfig(t)
	if _, ok := ProvideEventSource(cfg, nil).(*feed.WebSocketStream); !ok {
		t.Fatalf("websocket by default")
	}
	cfg.Feed.Events.Type = config.EventsKafka
	cfg.Kafka.Brokers = []string{"127.0.0.1:9092"}
	if _, ok := ProvideEventSource(cfg, nil).(*feed.KafkaStream); !ok {
		t.Fatalf("kafka when configured")
	}
}

func TestProvideRegistryAndHandler(t *testing.T) {
	cfg := testConfig(t)
	cfg.Monitor.Tokens = append(cfg.Monitor.Tokens, config.TokenConfig{
		ID:       "So11111111111111111111111111111111111111112",
		Decimals: 9,
	})

	fa, err := ProvideFeedAdapter(ProvideEventSource(cfg, nil), ProvideHolderClient(cfg, nil), nil)
	if err != nil {
		t.Fatalf("feed adapter: %v", err)
	}
	reg, err := ProvideRegistry(cfg, fa, icache.NewTTLCache(), nil, repository.NopMetrics{}, nil)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	tokens := reg.Tokens()
	if len(tokens) != 2 || tokens[0] != usdc {
		t.Fatalf("tokens %v", tokens)
	}
	s, err := reg.Get(usdc)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ids := s.WindowIDs(); len(ids) != 3 {
		t.Fatalf("windows %v", ids)
	}

	h := ProvideHTTPHandler(nil, reg, ProvideRateLimiter(cfg))
	app := ProvideApp(cfg, nil, reg, nil, nil, icache.NewTTLCache(), nil, nil, h)
	if app.Registry() != reg {
		t.Fatalf("app registry not wired")
	}
}
