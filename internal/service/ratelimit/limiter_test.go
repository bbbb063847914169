package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

func TestAllowRefills(t *testing.T) {
	now := time.Date(2025, 3, 8, 12, 0, 0, 0, time.UTC)
	l := New(2, 1).WithClock(func() time.Time { return now })
	if !l.Allow("a") || !l.Allow("a") {
		t.Fatalf("burst of capacity rejected")
	}
	if l.Allow("a") {
		t.Fatalf("third request allowed")
	}
	if !l.Allow("b") {
		t.Fatalf("keys share a bucket")
	}
	now = now.Add(1500 * time.Millisecond)
	if !l.Allow("a") {
		t.Fatalf("no refill after 1.5s")
	}
	if l.Allow("a") {
		t.Fatalf("refilled more than elapsed time allows")
	}

	now = now.Add(time.Hour)
	if n := l.Sweep(time.Minute); n != 2 {
		t.Fatalf("swept %d", n)
	}
}

func TestMiddleware(t *testing.T) {
	e := echo.New()
	e.Use(New(1, 0).Middleware())
	e.GET("/x", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) })

	codes := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req.RemoteAddr = "10.0.0.1:5000"
		e.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	if codes[0] != http.StatusNoContent || codes[1] != http.StatusTooManyRequests {
		t.Fatalf("codes %v", codes)
	}

	if !New(0, 0).Allow("x") {
		t.Fatalf("zero capacity must disable limiting")
	}
}
