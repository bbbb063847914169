package cache

import (
	"context"
	"testing"
	"time"
)

func TestTTLCacheExpiry(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewTTLCache().WithClock(func() time.Time { return now })
	ctx := context.Background()

	if err := c.SetBytes(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	b, ok, err := c.GetBytes(ctx, "k")
	if err != nil || !ok || string(b) != "v" {
		t.Fatalf("get: %q %v %v", b, ok, err)
	}

	now = now.Add(2 * time.Minute)
	if _, ok, _ := c.GetBytes(ctx, "k"); ok {
		t.Fatalf("expected expiry")
	}
}

func TestTTLCacheCopiesValues(t *testing.T) {
	c := NewTTLCache()
	ctx := context.Background()
	v := []byte("abc")
	_ = c.SetBytes(ctx, "k", v, 0)
	v[0] = 'x'
	got, _, _ := c.GetBytes(ctx, "k")
	got[1] = 'y'
	again, _, _ := c.GetBytes(ctx, "k")
	if string(again) != "abc" {
		t.Fatalf("cache aliases caller bytes: %q", again)
	}
}

func TestTTLCacheSweep(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewTTLCache().WithClock(func() time.Time { return now })
	ctx := context.Background()
	_ = c.SetBytes(ctx, "a", []byte("1"), time.Second)
	_ = c.SetBytes(ctx, "b", []byte("2"), time.Hour)
	_ = c.SetBytes(ctx, "c", []byte("3"), 0)
	now = now.Add(time.Minute)
	if n := c.Sweep(); n != 1 {
		t.Fatalf("swept %d", n)
	}
	if c.Len() != 2 {
		t.Fatalf("len %d", c.Len())
	}
}
