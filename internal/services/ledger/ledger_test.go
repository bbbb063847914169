package ledger

import (
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"TokenPulse/internal/domain/models"
)

func TestRefreshDenseRanksWithTieBreak(t *testing.T) {
	l := New()
	got := l.Refresh([]models.RawBalance{
		{Address: "carol", Balance: 50},
		{Address: "bob", Balance: 100},
		{Address: "alice", Balance: 100},
		{Address: "dave", Balance: 10},
	}, 1000, 3)

	want := []string{"alice", "bob", "carol"}
	if len(got) != len(want) {
		t.Fatalf("got %d holders", len(got))
	}
	for i, h := range got {
		if h.Address != want[i] || h.Rank != i+1 {
			t.Errorf("position %d: got %s rank %d", i, h.Address, h.Rank)
		}
	}
	if p := got[0].PercentageOfSupply; p == nil || *p != 10 {
		t.Fatalf("unexpected percentage %v", p)
	}
}

func TestRefreshRanksProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	l := New()
	for round := 0; round < 50; round++ {
		n := rng.Intn(40)
		raw := make([]models.RawBalance, n)
		for i := range raw {
			raw[i] = models.RawBalance{Address: fmt.Sprintf("addr-%02d", rng.Intn(60)), Balance: uint64(rng.Intn(5) + 1)}
		}
		topN := 1 + rng.Intn(20)
		got := l.Refresh(raw, 0, topN)
		if len(got) > topN {
			t.Fatalf("round %d: %d holders exceeds topN %d", round, len(got), topN)
		}
		for i, h := range got {
			if h.Rank != i+1 {
				t.Fatalf("round %d: rank %d at position %d", round, h.Rank, i)
			}
			if i == 0 {
				continue
			}
			prev := got[i-1]
			if prev.Balance < h.Balance || (prev.Balance == h.Balance && prev.Address >= h.Address) {
				t.Fatalf("round %d: order broken between %+v and %+v", round, prev, h)
			}
		}
	}
}

func TestRefreshMergesAndDropsZero(t *testing.T) {
	l := New()
	got := l.Refresh([]models.RawBalance{
		{Address: "a", Balance: 5},
		{Address: "a", Balance: 7},
		{Address: "b", Balance: 0},
		{Address: "", Balance: 9},
	}, 0, 10)
	if len(got) != 1 || got[0].Balance != 12 {
		t.Fatalf("unexpected %+v", got)
	}
}

func TestUnknownSupplyLeavesPercentageNil(t *testing.T) {
	l := New()
	got := l.Refresh([]models.RawBalance{{Address: "a", Balance: 5}}, 0, 10)
	if got[0].PercentageOfSupply != nil {
		t.Fatalf("percentage must be nil when supply is unknown")
	}
	if l.TopTenShare() != nil {
		t.Fatalf("top ten share must be nil when supply is unknown")
	}
}

func TestRankDelta(t *testing.T) {
	l := New()
	l.Refresh([]models.RawBalance{{Address: "a", Balance: 10}, {Address: "b", Balance: 5}}, 100, 10)
	got := l.Refresh([]models.RawBalance{{Address: "a", Balance: 1}, {Address: "b", Balance: 5}, {Address: "c", Balance: 3}}, 100, 10)

	byAddr := map[string]models.TokenHolder{}
	for _, h := range got {
		byAddr[h.Address] = h
	}
	if d := byAddr["b"].RankDelta; d == nil || *d != 1 {
		t.Fatalf("b moved up one, got %v", d)
	}
	if d := byAddr["a"].RankDelta; d == nil || *d != -2 {
		t.Fatalf("a moved down two, got %v", d)
	}
	if byAddr["c"].RankDelta != nil {
		t.Fatalf("c is new")
	}
}

func TestTopTenShare(t *testing.T) {
	l := New()
	var raw []models.RawBalance
	for i := 0; i < 12; i++ {
		raw = append(raw, models.RawBalance{Address: fmt.Sprintf("h%02d", i), Balance: 10})
	}
	l.Refresh(raw, 1000, 60)
	share := l.TopTenShare()
	if share == nil || *share != 10 {
		t.Fatalf("unexpected share %v", share)
	}
}

func TestHoldersReturnsCopy(t *testing.T) {
	l := New()
	l.Refresh([]models.RawBalance{{Address: "a", Balance: 10}}, 100, 10)
	h := l.Holders()
	h[0].Address = "mutated"
	*h[0].PercentageOfSupply = 99
	again := l.Holders()
	if again[0].Address != "a" || *again[0].PercentageOfSupply != 10 {
		t.Fatalf("ledger state leaked: %+v", again[0])
	}
}

func TestConcurrentReadersSeeCompleteLedgers(t *testing.T) {
	l := New()
	small := []models.RawBalance{{Address: "a", Balance: 1}}
	large := make([]models.RawBalance, 50)
	for i := range large {
		large[i] = models.RawBalance{Address: fmt.Sprintf("x%02d", i), Balance: uint64(100 - i)}
	}

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			if i%2 == 0 {
				l.Refresh(small, 0, 60)
			} else {
				l.Refresh(large, 0, 60)
			}
		}
		close(stop)
	}()
	for {
		select {
		case <-stop:
			wg.Wait()
			return
		default:
		}
		h := l.Holders()
		if n := len(h); n != 0 && n != 1 && n != 50 {
			t.Fatalf("observed partial ledger of %d holders", n)
		}
	}
}
