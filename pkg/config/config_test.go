package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

const minimal = `
monitor:
  tokens:
    - {id: 9BB6NFEcjBCtnNLFko2FqVQBq8HHM13kCyYcdQbgpump, decimals: 6}
  backoff: {jitter: 0}
feed:
  websocket: {url: "wss://relay.example/ws"}
`

func TestLoadAppliesDefaults(t *testing.T) {
	c, err := Load(writeConfig(t, minimal))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Environment != "dev" || c.Server.Port != 8080 || c.Log.Format != "console" {
		t.Fatalf("ambient defaults %+v %+v", c.Server, c.Log)
	}
	m := c.Monitor
	if m.TopN != 60 || m.BufferCapacity != 100 || m.PollInterval != 30*time.Second || m.MaxRetained != 200000 {
		t.Fatalf("monitor defaults %+v", m)
	}
	if len(m.Windows) != 3 || m.Windows[0] != "1h" || m.Windows[2] != "7d" {
		t.Fatalf("windows %v", m.Windows)
	}
	if m.Backoff.Base != time.Second || m.Backoff.Max != 30*time.Second || m.Backoff.MaxRetries != 5 {
		t.Fatalf("backoff %+v", m.Backoff)
	}
	// an explicit zero in the file wins over the default
	if m.Backoff.Jitter != 0 {
		t.Fatalf("jitter %v", m.Backoff.Jitter)
	}
	if c.Archive.Backend != "none" || c.History.MaxDays != 365 || c.Feed.Events.Type != EventsWebSocket {
		t.Fatalf("archive/history/feed defaults")
	}
	if got := m.Decimals()["9BB6NFEcjBCtnNLFko2FqVQBq8HHM13kCyYcdQbgpump"]; got != 6 {
		t.Fatalf("decimals %d", got)
	}
	if c.HistoryEnabled() {
		t.Fatalf("history without clickhouse host")
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"no tokens": `
feed: {websocket: {url: "wss://x"}}`,
		"unknown backend": minimal + `
archive: {backend: s3}`,
		"kafka archive without brokers": minimal + `
archive: {backend: kafka}`,
		"clickhouse archive without host": minimal + `
archive: {backend: clickhouse}`,
		"websocket events without url": `
monitor: {tokens: [{id: M}]}`,
		"duplicate token": `
monitor: {tokens: [{id: M}, {id: M}]}
feed: {websocket: {url: "wss://x"}}`,
		"backoff max below base": `
monitor:
  tokens: [{id: M}]
  backoff: {base: 10s, max: 1s}
feed: {websocket: {url: "wss://x"}}`,
	}
	for name, body := range cases {
		if _, err := Load(writeConfig(t, body)); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	t.Setenv("TOKENS", "MintA:9, MintB")
	t.Setenv("ARCHIVE_BACKEND", "kafka")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("KAFKA_TOPIC", "swaps.archive")
	t.Setenv("FEED_WS_URL", "wss://other/ws")
	t.Setenv("FEED_API_KEY", "secret")
	t.Setenv("SOLANA_RPC_URL", "https://rpc.example")
	t.Setenv("REDIS_ADDR", "cache:6379")

	c, err := LoadWithEnv(writeConfig(t, minimal))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if ids := c.Monitor.TokenIDs(); len(ids) != 2 || ids[0] != "MintA" || ids[1] != "MintB" {
		t.Fatalf("tokens %v", ids)
	}
	if c.Monitor.Tokens[0].Decimals != 9 || c.Monitor.Tokens[1].Decimals != 0 {
		t.Fatalf("decimals %+v", c.Monitor.Tokens)
	}
	if c.Archive.Backend != "kafka" || len(c.Kafka.Brokers) != 2 || c.Kafka.Topic != "swaps.archive" {
		t.Fatalf("kafka %+v", c.Kafka)
	}
	if c.Feed.WebSocket.URL != "wss://other/ws" || c.Feed.WebSocket.APIKey != "secret" || c.Feed.Solana.RPCURL != "https://rpc.example" {
		t.Fatalf("feed %+v", c.Feed)
	}
	if !c.Redis.Enabled || c.Redis.Addr != "cache:6379" {
		t.Fatalf("redis %+v", c.Redis)
	}

	t.Setenv("TOKENS", "MintA:x")
	if _, err := LoadWithEnv(writeConfig(t, minimal)); err == nil {
		t.Fatalf("bad decimals accepted")
	}
}
