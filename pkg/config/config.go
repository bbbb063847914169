package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string          `yaml:"environment" default:"dev" validate:"required"`
	Log         LogConfig       `yaml:"log"`
	Server      ServerConfig    `yaml:"server"`
	Metrics     MetricsConfig   `yaml:"metrics"`
	RateLimit   RateLimitConfig `yaml:"ratelimit"`
	Monitor     MonitorConfig   `yaml:"monitor"`
	Feed        FeedConfig      `yaml:"feed"`
	Archive     ArchiveConfig   `yaml:"archive"`
	History     HistoryConfig   `yaml:"history"`
	Redis       RedisConfig     `yaml:"redis"`
	Kafka       KafkaConfig     `yaml:"kafka"`
	ClickHouse  ClickHouse      `yaml:"clickhouse"`
}

type LogConfig struct {
	Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error fatal panic"`
	Format string `yaml:"format" default:"console" validate:"oneof=json console"`
	Output string `yaml:"output" default:"stdout"`
}

type ServerConfig struct {
	Port            int           `yaml:"port" default:"8080" validate:"gt=0,lte=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
	SlowRequest     time.Duration `yaml:"slow_request" default:"500ms"`
	CORS            bool          `yaml:"cors" default:"true"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" default:"true"`
	Path    string `yaml:"path" default:"/metrics"`
}

type RateLimitConfig struct {
	Capacity     int     `yaml:"capacity" default:"20" validate:"gte=0"`
	RefillPerSec float64 `yaml:"refill_per_sec" default:"10" validate:"gte=0"`
}

type TokenConfig struct {
	ID       string `yaml:"id" validate:"required"`
	Decimals uint8  `yaml:"decimals" validate:"lte=18"`
}

type BackoffConfig struct {
	Base       time.Duration `yaml:"base" default:"1s" validate:"gt=0"`
	Multiplier float64       `yaml:"multiplier" default:"2" validate:"gte=1"`
	Max        time.Duration `yaml:"max" default:"30s" validate:"gtefield=Base"`
	Jitter     float64       `yaml:"jitter" default:"0.2" validate:"gte=0,lte=1"`
	// MaxRetries counts retries after the first subscribe attempt, so the
	// default of 5 makes up to 6 attempts with 5 sleeps between them.
	MaxRetries int           `yaml:"max_retries" default:"5" validate:"gte=0"`
}

type MonitorConfig struct {
	Tokens         []TokenConfig       `yaml:"tokens" validate:"required,min=1,dive"`
	TopN           int                 `yaml:"top_n" default:"60" validate:"gt=0"`
	BufferCapacity int                 `yaml:"buffer_capacity" default:"100" validate:"gt=0"`
	// DedupWindow values below BufferCapacity are raised to it.
	DedupWindow    int                 `yaml:"dedup_window" validate:"gte=0"`
	PollInterval   time.Duration       `yaml:"poll_interval" default:"30s" validate:"gt=0"`
	FutureSkew     time.Duration       `yaml:"future_skew" default:"2m" validate:"gte=0"`
	Windows        []string            `yaml:"windows" default:"[\"1h\",\"24h\",\"7d\"]" validate:"min=1"`
	MaxRetained    int                 `yaml:"max_retained" default:"200000" validate:"gt=0"`
	Backoff        BackoffConfig       `yaml:"backoff"`
	Venues         map[string][]string `yaml:"venues"`
}

// TokenIDs lists the configured mints in config order.
func (m MonitorConfig) TokenIDs() []string {
	out := make([]string, len(m.Tokens))
	for i, t := range m.Tokens {
		out[i] = t.ID
	}
	return out
}

// Decimals maps each configured mint to its decimals.
func (m MonitorConfig) Decimals() map[string]uint8 {
	out := make(map[string]uint8, len(m.Tokens))
	for _, t := range m.Tokens {
		out[t.ID] = t.Decimals
	}
	return out
}

const (
	EventsWebSocket = "websocket"
	EventsKafka     = "kafka"
)

type FeedConfig struct {
	Events struct {
		Type string `yaml:"type" default:"websocket" validate:"oneof=websocket kafka"`
	} `yaml:"events"`
	WebSocket struct {
		URL              string        `yaml:"url"`
		APIKey           string        `yaml:"api_key"`
		PingInterval     time.Duration `yaml:"ping_interval" default:"20s"`
		HandshakeTimeout time.Duration `yaml:"handshake_timeout" default:"10s"`
	} `yaml:"websocket"`
	KafkaTopic  string `yaml:"kafka_topic" default:"solana.swaps"`
	KafkaOffset string `yaml:"kafka_offset" default:"latest" validate:"oneof=earliest latest"`
	Solana      struct {
		RPCURL  string        `yaml:"rpc_url" default:"https://api.mainnet-beta.solana.com" validate:"required,url"`
		Timeout time.Duration `yaml:"timeout" default:"10s"`
	} `yaml:"solana"`
}

type ArchiveConfig struct {
	Backend     string        `yaml:"backend" default:"none" validate:"oneof=none kafka clickhouse"`
	BufferSize  int           `yaml:"buffer_size" default:"2000" validate:"gt=0"`
	MaxAttempts int           `yaml:"max_attempts" default:"10" validate:"gt=0"`
	BackoffMin  time.Duration `yaml:"backoff_min" default:"50ms"`
	BackoffMax  time.Duration `yaml:"backoff_max" default:"2s"`
	Table       string        `yaml:"table" default:"token_transactions"`
}

type HistoryConfig struct {
	CacheTTL time.Duration `yaml:"cache_ttl" default:"5m"`
	MaxDays  int           `yaml:"max_days" default:"365" validate:"gt=0"`
}

type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr" default:"localhost:6379"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix" default:"tokenpulse:"`
}

type KafkaConfig struct {
	Brokers      []string `yaml:"brokers"`
	Topic        string   `yaml:"topic" default:"tokenpulse.transactions"`
	RequiredAcks int      `yaml:"required_acks" default:"-1"`
	Compression  string   `yaml:"compression" default:"snappy"`
	Producer     struct {
		MaxAttempts  int           `yaml:"max_attempts" default:"5"`
		Linger       time.Duration `yaml:"linger" default:"50ms"`
		BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
		BatchSize    int           `yaml:"batch_size" default:"500"`
		WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
		ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
		Async        bool          `yaml:"async"`
	} `yaml:"producer"`
	Consumer struct {
		GroupPrefix string `yaml:"group_prefix" default:"tokenpulse"`
	} `yaml:"consumer"`
}

type ClickHouse struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port" default:"9000"`
	Database         string        `yaml:"database" default:"tokenpulse"`
	User             string        `yaml:"user" default:"default"`
	Password         string        `yaml:"password"`
	UseHTTP          bool          `yaml:"use_http"`
	AsyncInsert      bool          `yaml:"async_insert"`
	WaitForAsync     bool          `yaml:"wait_for_async_insert"`
	DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
	ReadTimeout      time.Duration `yaml:"read_timeout" default:"30s"`
	WriteTimeout     time.Duration `yaml:"write_timeout" default:"30s"`
	MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"60s"`
	InitSchema       bool          `yaml:"init_schema" default:"true"`
}

// HistoryEnabled reports whether a store can answer historical queries.
func (c *Config) HistoryEnabled() bool { return c.ClickHouse.Host != "" }

var validate = validator.New()

// Default returns a configuration with every default applied and no tokens.
func Default() (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	return &c, nil
}

// Load reads and parses a YAML configuration file. Keys missing from the file
// keep their defaults.
func Load(path string) (*Config, error) {
	c, err := parse(path)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func parse(path string) (*Config, error) {
	c, err := Default()
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := parse(path)
	if err != nil {
		return nil, err
	}
	if err := c.applyEnv(); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("SOLANA_RPC_URL"); v != "" {
		c.Feed.Solana.RPCURL = v
	}
	if v := os.Getenv("FEED_WS_URL"); v != "" {
		c.Feed.WebSocket.URL = v
	}
	if v := os.Getenv("FEED_API_KEY"); v != "" {
		c.Feed.WebSocket.APIKey = v
	}
	if v := os.Getenv("TOKENS"); v != "" {
		tokens, err := parseTokens(v)
		if err != nil {
			return err
		}
		c.Monitor.Tokens = tokens
	}
	if v := os.Getenv("ARCHIVE_BACKEND"); v != "" {
		c.Archive.Backend = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = splitList(v)
	}
	if v := os.Getenv("KAFKA_TOPIC"); v != "" {
		c.Kafka.Topic = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
		c.Redis.Enabled = true
	}
	return nil
}

// parseTokens reads "mint[:decimals],mint[:decimals]".
func parseTokens(s string) ([]TokenConfig, error) {
	var out []TokenConfig
	for _, item := range splitList(s) {
		id, dec, found := strings.Cut(item, ":")
		t := TokenConfig{ID: id}
		if found {
			d, err := strconv.ParseUint(dec, 10, 8)
			if err != nil {
				return nil, fmt.Errorf("TOKENS: bad decimals for %s: %w", id, err)
			}
			t.Decimals = uint8(d)
		}
		out = append(out, t)
	}
	return out, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks struct tags and the rules that span sections.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	seen := make(map[string]bool, len(c.Monitor.Tokens))
	for _, t := range c.Monitor.Tokens {
		if seen[t.ID] {
			return fmt.Errorf("monitor.tokens: %s listed twice", t.ID)
		}
		seen[t.ID] = true
	}
	switch c.Feed.Events.Type {
	case EventsWebSocket:
		if c.Feed.WebSocket.URL == "" {
			return fmt.Errorf("feed.websocket.url is required for websocket events")
		}
	case EventsKafka:
		if len(c.Kafka.Brokers) == 0 || c.Feed.KafkaTopic == "" {
			return fmt.Errorf("kafka.brokers and feed.kafka_topic are required for kafka events")
		}
	}
	switch c.Archive.Backend {
	case "kafka":
		if len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == "" {
			return fmt.Errorf("kafka.brokers and kafka.topic are required for the kafka archive")
		}
	case "clickhouse":
		if c.ClickHouse.Host == "" {
			return fmt.Errorf("clickhouse.host is required for the clickhouse archive")
		}
	}
	return nil
}
