package activity

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/axiomhq/hyperloglog"

	"TokenPulse/internal/domain/models"
	"TokenPulse/pkg/util"
)

// DefaultWindows are used when no window ids are configured.
var DefaultWindows = []string{"1h", "24h", "7d"}

var (
	ErrUnknownWindow = errors.New("unknown window")
	ErrInvalidBucket = errors.New("invalid bucket size")
)

// Lazy eviction on read keeps this much extra history so concurrent readers
// with slightly older clocks still see complete windows.
const evictGrace = time.Minute

// maxBuckets bounds the slot slice Buckets allocates for a single request.
const maxBuckets = 10_000

type window struct {
	id   string
	size time.Duration
}

type entry struct {
	seq uint64
	tx  models.Transaction
}

type Option func(*Aggregator)

// WithMaxRetained caps the retained history regardless of window sizes.
func WithMaxRetained(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.maxRetained = n
		}
	}
}

// WithDecimals sets the token decimals used to turn base units into volume.
func WithDecimals(d uint8) Option {
	return func(a *Aggregator) { a.scale = math.Pow10(int(d)) }
}

// Aggregator keeps the transactions of the largest window sorted by timestamp and
// computes each window on read.
type Aggregator struct {
	windows     []window
	maxAge      time.Duration
	maxRetained int
	scale       float64

	mu      sync.RWMutex
	history []entry // ordered by (timestamp, seq)
	seq     uint64
	wallets *hyperloglog.Sketch
}

func New(windowIDs []string, opts ...Option) (*Aggregator, error) {
	if len(windowIDs) == 0 {
		windowIDs = DefaultWindows
	}
	a := &Aggregator{
		maxRetained: 200_000,
		scale:       1,
		wallets:     hyperloglog.New14(),
	}
	seen := make(map[string]bool, len(windowIDs))
	for _, id := range windowIDs {
		if seen[id] {
			continue
		}
		size, err := util.ParseWindow(id)
		if err != nil {
			return nil, err
		}
		seen[id] = true
		a.windows = append(a.windows, window{id: id, size: size})
		if size > a.maxAge {
			a.maxAge = size
		}
	}
	sort.Slice(a.windows, func(i, j int) bool { return a.windows[i].size < a.windows[j].size })
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// WindowIDs lists configured windows from shortest to longest.
func (a *Aggregator) WindowIDs() []string {
	out := make([]string, len(a.windows))
	for i, w := range a.windows {
		out[i] = w.id
	}
	return out
}

// Ingest records tx in every window whose range contains its timestamp.
func (a *Aggregator) Ingest(tx models.Transaction) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.seq++
	e := entry{seq: a.seq, tx: tx}
	// feeds deliver mostly in order, so the common case is an append
	i := len(a.history)
	if i > 0 && tx.Timestamp.Before(a.history[i-1].tx.Timestamp) {
		i = sort.Search(len(a.history), func(k int) bool {
			return a.history[k].tx.Timestamp.After(tx.Timestamp)
		})
	}
	a.history = append(a.history, entry{})
	copy(a.history[i+1:], a.history[i:])
	a.history[i] = e
	a.wallets.Insert([]byte(tx.Wallet))

	if over := len(a.history) - a.maxRetained; over > 0 {
		a.history = append(a.history[:0], a.history[over:]...)
	}
}

// Evict drops transactions older than the largest window as of now.
func (a *Aggregator) Evict(now time.Time) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.evictLocked(now)
}

func (a *Aggregator) evictLocked(now time.Time) int {
	cutoff := now.Add(-a.maxAge)
	n := sort.Search(len(a.history), func(k int) bool {
		return !a.history[k].tx.Timestamp.Before(cutoff)
	})
	if n > 0 {
		a.history = append(a.history[:0], a.history[n:]...)
	}
	return n
}

// Rebuild replaces the retained history with txs.
func (a *Aggregator) Rebuild(txs []models.Transaction) {
	a.mu.Lock()
	a.history = a.history[:0]
	a.seq = 0
	a.mu.Unlock()
	for _, tx := range txs {
		a.Ingest(tx)
	}
}

// Snapshot computes window id ending at now. Eviction it performs only drops
// entries outside every window, so it is invisible to other readers.
func (a *Aggregator) Snapshot(id string, now time.Time) (models.AggregateWindow, error) {
	w, ok := a.window(id)
	if !ok {
		return models.AggregateWindow{}, fmt.Errorf("%w %q", ErrUnknownWindow, id)
	}
	a.mu.Lock()
	a.evictLocked(now.Add(-evictGrace))
	a.mu.Unlock()

	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.compute(w, now), nil
}

// Snapshots computes every configured window at the same instant.
func (a *Aggregator) Snapshots(now time.Time) []models.AggregateWindow {
	a.mu.Lock()
	a.evictLocked(now.Add(-evictGrace))
	a.mu.Unlock()

	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]models.AggregateWindow, 0, len(a.windows))
	for _, w := range a.windows {
		out = append(out, a.compute(w, now))
	}
	return out
}

func (a *Aggregator) compute(w window, now time.Time) models.AggregateWindow {
	start := now.Add(-w.size)
	agg := models.AggregateWindow{
		WindowID:    w.id,
		WindowStart: start,
		WindowEnd:   now,
		VenueCounts: make(map[string]uint64),
	}
	wallets := make(map[string]struct{})
	i := sort.Search(len(a.history), func(k int) bool {
		return !a.history[k].tx.Timestamp.Before(start)
	})
	for ; i < len(a.history); i++ {
		tx := a.history[i].tx
		if !tx.Timestamp.Before(now) {
			break
		}
		vol := a.volume(tx)
		if tx.Side == models.SideBuy {
			agg.BuyCount++
			agg.BuyVolume += vol
		} else {
			agg.SellCount++
			agg.SellVolume += vol
		}
		agg.TotalVolume += vol
		agg.VenueCounts[tx.Venue]++
		wallets[tx.Wallet] = struct{}{}
	}
	agg.ActiveWallets = make([]string, 0, len(wallets))
	for addr := range wallets {
		agg.ActiveWallets = append(agg.ActiveWallets, addr)
	}
	sort.Strings(agg.ActiveWallets)
	return agg
}

// Buckets splits window id into fixed slots, oldest first.
func (a *Aggregator) Buckets(id string, bucket time.Duration, now time.Time) ([]models.ActivityBucket, error) {
	w, ok := a.window(id)
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownWindow, id)
	}
	if bucket <= 0 || bucket > w.size {
		return nil, fmt.Errorf("%w: %s does not fit window %s", ErrInvalidBucket, bucket, id)
	}
	n := int(w.size / bucket)
	if w.size%bucket != 0 {
		n++
	}
	if n > maxBuckets {
		return nil, fmt.Errorf("%w: %s splits window %s into %d slots, at most %d", ErrInvalidBucket, bucket, id, n, maxBuckets)
	}
	start := now.Add(-time.Duration(n) * bucket)
	out := make([]models.ActivityBucket, n)
	for k := range out {
		out[k].Start = start.Add(time.Duration(k) * bucket)
	}

	a.mu.RLock()
	defer a.mu.RUnlock()
	i := sort.Search(len(a.history), func(k int) bool {
		return !a.history[k].tx.Timestamp.Before(start)
	})
	for ; i < len(a.history); i++ {
		tx := a.history[i].tx
		if !tx.Timestamp.Before(now) {
			break
		}
		k := int(tx.Timestamp.Sub(start) / bucket)
		vol := a.volume(tx)
		if tx.Side == models.SideBuy {
			out[k].BuyCount++
			out[k].BuyVolume += vol
		} else {
			out[k].SellCount++
			out[k].SellVolume += vol
		}
	}
	return out, nil
}

// UniqueWalletsSeen estimates distinct wallets ingested since construction,
// including ones already evicted.
func (a *Aggregator) UniqueWalletsSeen() uint64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.wallets.Estimate()
}

// Retained is the number of transactions currently held.
func (a *Aggregator) Retained() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.history)
}

func (a *Aggregator) window(id string) (window, bool) {
	for _, w := range a.windows {
		if w.id == id {
			return w, true
		}
	}
	return window{}, false
}

func (a *Aggregator) volume(tx models.Transaction) float64 {
	return float64(tx.Amount) / a.scale * tx.Price
}
