package kafka

import (
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
)

func TestToKafkaMessage(t *testing.T) {
	at := time.Unix(1_700_000_000, 0)
	km, err := toKafkaMessage("swaps", Message{
		Key:     []byte("mint"),
		Value:   map[string]int{"slot": 7},
		Headers: map[string]string{"token": "mint"},
	}, at)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if km.Topic != "swaps" || string(km.Key) != "mint" || string(km.Value) != `{"slot":7}` {
		t.Fatalf("message %+v", km)
	}
	if len(km.Headers) != 1 || km.Headers[0].Key != "token" || string(km.Headers[0].Value) != "mint" {
		t.Fatalf("headers %+v", km.Headers)
	}
	if !km.Time.Equal(at) {
		t.Fatalf("time %v", km.Time)
	}

	raw, _ := toKafkaMessage("swaps", Message{Value: []byte("raw")}, at)
	if string(raw.Value) != "raw" {
		t.Fatalf("bytes re-encoded: %q", raw.Value)
	}
	if _, err := toKafkaMessage("swaps", Message{Value: make(chan int)}, at); err == nil {
		t.Fatalf("expected marshal error")
	}
}

func TestParseCompression(t *testing.T) {
	cases := map[string]kafka.Compression{
		"gzip":    kafka.Gzip,
		"snappy":  kafka.Snappy,
		"lz4":     kafka.Lz4,
		"zstd":    kafka.Zstd,
		"unknown": kafka.Gzip,
	}
	for in, want := range cases {
		if got := parseCompression(in); got != want {
			t.Errorf("%s: got %v", in, got)
		}
	}
}

func TestBackoffWithJitterBounds(t *testing.T) {
	for attempt := 1; attempt <= 8; attempt++ {
		d := backoffWithJitter(100*time.Millisecond, time.Second, attempt)
		exp := 100 * time.Millisecond << uint(attempt-1)
		if exp > time.Second {
			exp = time.Second
		}
		if d > exp || d <= exp/2 {
			t.Fatalf("attempt %d: %v outside (%v, %v]", attempt, d, exp/2, exp)
		}
	}
}

func TestHeaderValue(t *testing.T) {
	km := kafka.Message{Headers: []kafka.Header{{Key: "token", Value: []byte("abc")}}}
	if HeaderValue(km, "token") != "abc" || HeaderValue(km, "trace_id") != "" {
		t.Fatalf("header lookup")
	}
}
