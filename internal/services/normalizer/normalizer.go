package normalizer

import (
	"fmt"
	"math"
	"sync"
	"time"

	"TokenPulse/internal/domain/models"
)

// VenueClassifier labels a raw event with the venue that routed it.
type VenueClassifier interface {
	Classify(ev models.RawEvent) string
}

type Option func(*Normalizer)

// WithClock overrides time.Now for skew checks.
func WithClock(now func() time.Time) Option {
	return func(n *Normalizer) {
		if now != nil {
			n.now = now
		}
	}
}

// WithSkew sets how far into the future a timestamp may be.
func WithSkew(d time.Duration) Option {
	return func(n *Normalizer) {
		if d >= 0 {
			n.skew = d
		}
	}
}

// WithDedupWindow sets how many accepted signatures are remembered.
func WithDedupWindow(size int) Option {
	return func(n *Normalizer) {
		if size > 0 {
			n.window = size
		}
	}
}

// Normalizer turns raw feed events into transactions and drops repeats.
type Normalizer struct {
	classifier VenueClassifier
	now        func() time.Time
	skew       time.Duration
	window     int

	mu    sync.Mutex
	seen  map[string]struct{}
	order []string // FIFO of accepted signatures, ring of size window
	head  int
	stats models.RejectionStats
}

func New(classifier VenueClassifier, opts ...Option) *Normalizer {
	n := &Normalizer{
		classifier: classifier,
		now:        time.Now,
		skew:       2 * time.Minute,
		window:     100,
	}
	for _, opt := range opts {
		opt(n)
	}
	n.seen = make(map[string]struct{}, n.window)
	n.order = make([]string, 0, n.window)
	return n
}

// Normalize validates ev and returns the canonical transaction, or a rejection
// wrapping one of the models rejection errors.
func (n *Normalizer) Normalize(ev models.RawEvent) (models.Transaction, error) {
	tx, err := n.convert(ev)

	n.mu.Lock()
	defer n.mu.Unlock()
	if err != nil {
		n.count(err)
		return models.Transaction{}, err
	}
	if _, dup := n.seen[tx.Signature]; dup {
		n.stats.Duplicate++
		return models.Transaction{}, fmt.Errorf("%s: %w", tx.Signature, models.ErrDuplicate)
	}
	n.remember(tx.Signature)
	return tx, nil
}

func (n *Normalizer) convert(ev models.RawEvent) (models.Transaction, error) {
	switch {
	case ev.Signature == "":
		return models.Transaction{}, fmt.Errorf("missing signature: %w", models.ErrMalformedEvent)
	case ev.Wallet == "":
		return models.Transaction{}, fmt.Errorf("%s: missing wallet: %w", ev.Signature, models.ErrMalformedEvent)
	case ev.Timestamp.IsZero():
		return models.Transaction{}, fmt.Errorf("%s: missing timestamp: %w", ev.Signature, models.ErrMalformedEvent)
	case math.IsNaN(ev.Price) || math.IsInf(ev.Price, 0) || ev.Price < 0:
		return models.Transaction{}, fmt.Errorf("%s: bad price %v: %w", ev.Signature, ev.Price, models.ErrMalformedEvent)
	}

	var side models.Side
	var amount int64
	switch ev.Role {
	case models.RoleBuyer:
		side, amount = models.SideBuy, ev.TokenDelta
	case models.RoleSeller:
		side, amount = models.SideSell, ev.TokenDelta
	case models.RoleUnknown:
		amount = ev.TokenDelta
		side = models.SideBuy
		if ev.TokenDelta < 0 {
			side = models.SideSell
			amount = -ev.TokenDelta
		}
	default:
		return models.Transaction{}, fmt.Errorf("%s: unknown role %q: %w", ev.Signature, ev.Role, models.ErrMalformedEvent)
	}
	if amount <= 0 {
		return models.Transaction{}, fmt.Errorf("%s: amount %d: %w", ev.Signature, ev.TokenDelta, models.ErrNonPositiveAmount)
	}
	if ev.Timestamp.After(n.now().Add(n.skew)) {
		return models.Transaction{}, fmt.Errorf("%s: %s: %w", ev.Signature, ev.Timestamp.Format(time.RFC3339), models.ErrFutureTimestamp)
	}

	venue := "Others"
	if n.classifier != nil {
		venue = n.classifier.Classify(ev)
	}
	return models.Transaction{
		Signature: ev.Signature,
		Slot:      ev.Slot,
		Timestamp: ev.Timestamp.UTC(),
		Side:      side,
		Wallet:    ev.Wallet,
		Amount:    uint64(amount),
		Price:     ev.Price,
		Venue:     venue,
	}, nil
}

// remember must be called with mu held.
func (n *Normalizer) remember(sig string) {
	if len(n.order) < n.window {
		n.order = append(n.order, sig)
	} else {
		delete(n.seen, n.order[n.head])
		n.order[n.head] = sig
		n.head = (n.head + 1) % n.window
	}
	n.seen[sig] = struct{}{}
}

func (n *Normalizer) count(err error) {
	switch Reason(err) {
	case "non_positive":
		n.stats.NonPositive++
	case "future":
		n.stats.Future++
	default:
		n.stats.Malformed++
	}
}

// Stats returns the rejection counters so far.
func (n *Normalizer) Stats() models.RejectionStats {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.stats
}
