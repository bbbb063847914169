package middleware

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"TokenPulse/internal/domain/models"
)

type flakyProc struct {
	mu       sync.Mutex
	failures map[string]int
	got      []string
	calls    int
}

func (f *flakyProc) Process(_ context.Context, _ string, tx models.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failures[tx.Signature] > 0 {
		f.failures[tx.Signature]--
		return errors.New("backend down")
	}
	f.got = append(f.got, tx.Signature)
	return nil
}

func (f *flakyProc) delivered() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.got...)
}

func sample(sig string) models.Transaction {
	return models.Transaction{Signature: sig, Timestamp: time.Unix(1_700_000_000, 0), Amount: 1, Side: models.SideBuy}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met in time")
}

func TestPipelineRetriesInOrder(t *testing.T) {
	proc := &flakyProc{failures: map[string]int{"b": 2}}
	p := NewArchivePipeline(proc, nil, WithBackoff(time.Millisecond, 4*time.Millisecond))
	p.Start(context.Background())
	defer p.Stop(context.Background())

	for _, sig := range []string{"a", "b", "c", "d"} {
		if !p.Enqueue("tok", sample(sig)) {
			t.Fatalf("enqueue %s refused", sig)
		}
	}
	waitFor(t, func() bool { return len(proc.delivered()) == 4 })

	// a failed item holds back the ones queued after it
	got := proc.delivered()
	for i, want := range []string{"a", "b", "c", "d"} {
		if got[i] != want {
			t.Fatalf("delivered %v", got)
		}
	}
	proc.mu.Lock()
	defer proc.mu.Unlock()
	if proc.calls != 6 {
		t.Fatalf("calls %d, want 4 deliveries and 2 failed attempts", proc.calls)
	}
}

func TestStopFlushesItemUnderRetry(t *testing.T) {
	proc := &flakyProc{failures: map[string]int{"slow": 1}}
	p := NewArchivePipeline(proc, nil, WithBackoff(time.Hour, time.Hour))
	p.Start(context.Background())
	p.Enqueue("tok", sample("slow"))
	p.Enqueue("tok", sample("next"))
	waitFor(t, func() bool {
		proc.mu.Lock()
		defer proc.mu.Unlock()
		return proc.calls == 1
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := p.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if got := proc.delivered(); len(got) != 2 || got[0] != "slow" || got[1] != "next" {
		t.Fatalf("delivered %v", got)
	}
}

func TestPipelineGivesUp(t *testing.T) {
	proc := &flakyProc{failures: map[string]int{"bad": 100}}
	p := NewArchivePipeline(proc, nil, WithBackoff(time.Millisecond, time.Millisecond), WithMaxAttempts(3))
	p.Start(context.Background())
	defer p.Stop(context.Background())

	p.Enqueue("tok", sample("bad"))
	p.Enqueue("tok", sample("ok"))
	waitFor(t, func() bool { return len(proc.delivered()) == 1 })
	time.Sleep(20 * time.Millisecond)

	proc.mu.Lock()
	defer proc.mu.Unlock()
	if proc.calls != 4 {
		t.Fatalf("calls %d, want 3 attempts for bad and 1 for ok", proc.calls)
	}
}

func TestEnqueueNeverBlocks(t *testing.T) {
	proc := &flakyProc{}
	p := NewArchivePipeline(proc, nil, WithBufferSize(2))
	// not started, so nothing drains
	accepted := 0
	for i := 0; i < 5; i++ {
		if p.Enqueue("tok", sample(fmt.Sprintf("s%d", i))) {
			accepted++
		}
	}
	if accepted != 2 {
		t.Fatalf("accepted %d", accepted)
	}
	if p.Enqueue("tok", models.Transaction{}) {
		t.Fatalf("invalid transaction accepted")
	}
}

func TestStopDrains(t *testing.T) {
	proc := &flakyProc{}
	p := NewArchivePipeline(proc, nil)
	p.Start(context.Background())
	for i := 0; i < 50; i++ {
		p.Enqueue("tok", sample(fmt.Sprintf("s%d", i)))
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := p.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if n := len(proc.delivered()); n != 50 {
		t.Fatalf("delivered %d", n)
	}
	if p.Enqueue("tok", sample("late")) {
		t.Fatalf("enqueue after stop accepted")
	}
	if err := p.Stop(ctx); err != nil {
		t.Fatalf("second stop: %v", err)
	}
}
