package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"TokenPulse/internal/domain/models"
	"TokenPulse/internal/service/cache"
)

func TestBackoffDelay(t *testing.T) {
	b := Backoff{Base: time.Second, Multiplier: 2, Max: 10 * time.Second, Jitter: 0.5}
	zero := func() float64 { return 0 }
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 10 * time.Second},
		{9, 10 * time.Second},
	}
	for _, c := range cases {
		if got := b.Delay(c.attempt, zero); got != c.want {
			t.Errorf("attempt %d: got %v want %v", c.attempt, got, c.want)
		}
	}
	// full jitter draw removes half
	if got := b.Delay(1, func() float64 { return 1 }); got != 500*time.Millisecond {
		t.Fatalf("jittered delay %v", got)
	}
}

func TestTxBuffer(t *testing.T) {
	b := NewTxBuffer(3)
	for _, sig := range []string{"a", "b", "c"} {
		if _, evicted := b.Push(models.Transaction{Signature: sig}); evicted {
			t.Fatalf("evicted before full")
		}
	}
	old, evicted := b.Push(models.Transaction{Signature: "d"})
	if !evicted || old.Signature != "a" {
		t.Fatalf("evicted %v %q", evicted, old.Signature)
	}
	got := signatures(b.NewestFirst())
	if len(got) != 3 || got[0] != "d" || got[2] != "b" {
		t.Fatalf("newest first %v", got)
	}
	got = signatures(b.ArrivalOrder())
	if got[0] != "b" || got[2] != "d" {
		t.Fatalf("arrival order %v", got)
	}
	if b.Len() != 3 || b.Cap() != 3 {
		t.Fatalf("len %d cap %d", b.Len(), b.Cap())
	}
}

func TestHistoryQueryCaches(t *testing.T) {
	feed := newFakeFeed()
	day := time.Date(2025, 3, 7, 0, 0, 0, 0, time.UTC)
	feed.history = []models.DailyRecord{{Date: day, Transactions: 12, Volume: 3.5}}
	h := NewHistoryQuery(feed, cache.NewTTLCache(), time.Minute, 30)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		recs, err := h.Query(ctx, token, day.Add(3*time.Hour), day.Add(20*time.Hour))
		if err != nil || len(recs) != 1 || recs[0].Transactions != 12 || !recs[0].Date.Equal(day) {
			t.Fatalf("query %d: %+v %v", i, recs, err)
		}
	}
	if feed.historyCalls != 1 {
		t.Fatalf("source called %d times", feed.historyCalls)
	}

	if _, err := h.Query(ctx, token, day.Add(-60*24*time.Hour), day); !errors.Is(err, models.ErrInvalidRange) {
		t.Fatalf("oversized range: %v", err)
	}
}

func TestHistoryQueryWrapsTransientErrors(t *testing.T) {
	feed := newFakeFeed()
	feed.historyErr = errors.New("clickhouse: i/o timeout")
	h := NewHistoryQuery(feed, nil, 0, 0)
	_, err := h.Query(context.Background(), token, clock.Add(-time.Hour), clock)
	if !errors.Is(err, models.ErrConnection) {
		t.Fatalf("err %v", err)
	}
}

func TestRegistry(t *testing.T) {
	feed := newFakeFeed()
	a := newTestSession(t, feed, SessionConfig{})
	r := NewRegistry(a, nil, a)
	if ids := r.Tokens(); len(ids) != 1 || ids[0] != token {
		t.Fatalf("tokens %v", ids)
	}
	if _, err := r.Get("nope"); !errors.Is(err, ErrUnknownToken) {
		t.Fatalf("unknown token: %v", err)
	}
	if err := r.StartAll(context.Background()); err != nil {
		t.Fatalf("start all: %v", err)
	}
	eventually(t, "subscribed", func() bool { return r.Statuses()[0].State == models.StateSubscribed })
	if err := r.StopAll(context.Background()); err != nil {
		t.Fatalf("stop all: %v", err)
	}
	if r.Statuses()[0].State != models.StateDisconnected {
		t.Fatalf("state after stop %s", r.Statuses()[0].State)
	}
}

type recordingArchive struct {
	published []string
	stored    []string
	fail      error
}

func (r *recordingArchive) Publish(_ context.Context, _ string, tx models.Transaction) error {
	r.published = append(r.published, tx.Signature)
	return r.fail
}

func (r *recordingArchive) PublishBatch(_ context.Context, _ string, txs []models.Transaction) error {
	for _, tx := range txs {
		r.published = append(r.published, tx.Signature)
	}
	return r.fail
}

func (r *recordingArchive) Store(_ context.Context, _ string, tx models.Transaction) error {
	r.stored = append(r.stored, tx.Signature)
	return r.fail
}

func (r *recordingArchive) StoreBatch(_ context.Context, _ string, txs []models.Transaction) error {
	for _, tx := range txs {
		r.stored = append(r.stored, tx.Signature)
	}
	return r.fail
}

func (r *recordingArchive) Health(context.Context) error { return nil }
func (r *recordingArchive) Close() error                 { return nil }

func TestArchiverRoutesByBackend(t *testing.T) {
	ctx := context.Background()
	tx := models.Transaction{Signature: "s1"}

	rec := &recordingArchive{}
	if err := NewArchiver(rec, rec, nil, BackendKafka).Process(ctx, token, tx); err != nil {
		t.Fatalf("kafka: %v", err)
	}
	if err := NewArchiver(rec, rec, nil, BackendClickHouse).ProcessBatch(ctx, token, []models.Transaction{tx, tx}); err != nil {
		t.Fatalf("clickhouse: %v", err)
	}
	if len(rec.published) != 1 || len(rec.stored) != 2 {
		t.Fatalf("published %v stored %v", rec.published, rec.stored)
	}
	if err := NewArchiver(nil, nil, nil, BackendNone).Process(ctx, token, tx); err != nil {
		t.Fatalf("none: %v", err)
	}
	if err := NewArchiver(rec, rec, nil, "s3").Process(ctx, token, tx); err == nil {
		t.Fatalf("unknown backend accepted")
	}
	rec.fail = errors.New("broker down")
	if err := NewArchiver(rec, rec, nil, BackendKafka).Process(ctx, token, tx); !errors.Is(err, rec.fail) {
		t.Fatalf("error not wrapped: %v", err)
	}
}
