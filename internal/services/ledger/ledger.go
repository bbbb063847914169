package ledger

import (
	"sort"
	"sync/atomic"
	"time"

	"TokenPulse/internal/domain/models"
)

type state struct {
	holders     []models.TokenHolder
	ranks       map[string]int
	totalSupply uint64
	refreshedAt time.Time
}

// Ledger holds the current ranked top-N holders. Each refresh swaps in a
// complete new state, so readers never see a partial ranking.
type Ledger struct {
	cur atomic.Pointer[state]
	now func() time.Time
}

func New() *Ledger {
	l := &Ledger{now: time.Now}
	l.cur.Store(&state{ranks: map[string]int{}})
	return l
}

// Refresh ranks raw balances and replaces the ledger. totalSupply of 0 means
// unknown, in which case percentages are nil.
func (l *Ledger) Refresh(raw []models.RawBalance, totalSupply uint64, topN int) []models.TokenHolder {
	merged := make(map[string]uint64, len(raw))
	for _, b := range raw {
		if b.Address == "" || b.Balance == 0 {
			continue
		}
		merged[b.Address] += b.Balance
	}
	ordered := make([]models.RawBalance, 0, len(merged))
	for addr, bal := range merged {
		ordered = append(ordered, models.RawBalance{Address: addr, Balance: bal})
	}
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].Balance != ordered[j].Balance {
			return ordered[i].Balance > ordered[j].Balance
		}
		return ordered[i].Address < ordered[j].Address
	})
	if topN > 0 && len(ordered) > topN {
		ordered = ordered[:topN]
	}

	prev := l.cur.Load()
	next := &state{
		holders:     make([]models.TokenHolder, len(ordered)),
		ranks:       make(map[string]int, len(ordered)),
		totalSupply: totalSupply,
		refreshedAt: l.now(),
	}
	for i, b := range ordered {
		rank := i + 1
		h := models.TokenHolder{Address: b.Address, Balance: b.Balance, Rank: rank}
		if totalSupply > 0 {
			pct := float64(b.Balance) / float64(totalSupply) * 100
			if pct > 100 {
				pct = 100
			}
			h.PercentageOfSupply = &pct
		}
		if old, ok := prev.ranks[b.Address]; ok {
			delta := old - rank
			h.RankDelta = &delta
		}
		next.holders[i] = h
		next.ranks[b.Address] = rank
	}
	l.cur.Store(next)
	return copyHolders(next.holders)
}

// Holders returns a copy of the current ranking.
func (l *Ledger) Holders() []models.TokenHolder {
	return copyHolders(l.cur.Load().holders)
}

func (l *Ledger) TotalSupply() uint64 { return l.cur.Load().totalSupply }

func (l *Ledger) RefreshedAt() time.Time { return l.cur.Load().refreshedAt }

// TopTenShare is the combined supply share of the ten largest holders,
// nil when supply is unknown.
func (l *Ledger) TopTenShare() *float64 {
	s := l.cur.Load()
	if s.totalSupply == 0 {
		return nil
	}
	var sum uint64
	for i, h := range s.holders {
		if i == 10 {
			break
		}
		sum += h.Balance
	}
	share := float64(sum) / float64(s.totalSupply) * 100
	if share > 100 {
		share = 100
	}
	return &share
}

func copyHolders(in []models.TokenHolder) []models.TokenHolder {
	out := make([]models.TokenHolder, len(in))
	for i, h := range in {
		out[i] = h
		if h.PercentageOfSupply != nil {
			v := *h.PercentageOfSupply
			out[i].PercentageOfSupply = &v
		}
		if h.RankDelta != nil {
			v := *h.RankDelta
			out[i].RankDelta = &v
		}
	}
	return out
}
