package clickhouse

import (
	"strings"
	"testing"
	"time"
)

func TestBuildDSN(t *testing.T) {
	cfg := ClientConfig{
		Host:        "ch",
		Port:        9000,
		Database:    "tokenpulse",
		User:        "default",
		Password:    "pw",
		DialTimeout: 5 * time.Second,
		MaxExecTime: 30 * time.Second,
		AsyncInsert: true,
	}
	got := buildDSN(cfg)
	want := "clickhouse://default:pw@ch:9000/tokenpulse?dial_timeout=5s&max_execution_time=30&async_insert=1"
	if got != want {
		t.Fatalf("dsn\n got %s\nwant %s", got, want)
	}

	cfg = ClientConfig{Host: "ch", Port: 8123, Database: "db", UseHTTP: true, ReadTimeout: time.Second, AsyncInsert: true, WaitForAsync: true}
	got = buildDSN(cfg)
	if !strings.HasPrefix(got, "clickhouse+http://") || !strings.HasSuffix(got, "?read_timeout=1s&async_insert=1&wait_for_async_insert=1") {
		t.Fatalf("http dsn %s", got)
	}
}

func TestArchiveSchema(t *testing.T) {
	stmts := ArchiveSchema("tokenpulse", "tx_archive")
	if len(stmts) != 2 || !strings.Contains(stmts[1], "tokenpulse.tx_archive") || !strings.Contains(stmts[1], "ORDER BY (token, ts, signature)") {
		t.Fatalf("schema %v", stmts)
	}
}

func TestNewClientRequiresHost(t *testing.T) {
	if _, err := NewClient(WithPort(9000)); err == nil {
		t.Fatalf("expected host error")
	}
}
