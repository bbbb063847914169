package usecase

import (
	"context"
	"math"
	"time"
)

// Backoff describes the resubscribe schedule: retry n waits
// Base*Multiplier^(n-1), capped at Max, minus up to Jitter of that value.
type Backoff struct {
	Base       time.Duration
	Multiplier float64
	Max        time.Duration
	Jitter     float64
	MaxRetries int // retries after the first attempt; total attempts are MaxRetries+1
}

// DefaultBackoff is 1s doubling up to 30s with 20% jitter and five retries.
func DefaultBackoff() Backoff {
	return Backoff{
		Base:       time.Second,
		Multiplier: 2,
		Max:        30 * time.Second,
		Jitter:     0.2,
		MaxRetries: 5,
	}
}

// Delay returns the wait before retry attempt (1-based). rnd yields values in [0,1).
func (b Backoff) Delay(attempt int, rnd func() float64) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	base := b.Base
	if base <= 0 {
		base = 50 * time.Millisecond
	}
	mult := b.Multiplier
	if mult < 1 {
		mult = 1
	}
	exp := float64(base) * math.Pow(mult, float64(attempt-1))
	if b.Max > 0 && exp > float64(b.Max) {
		exp = float64(b.Max)
	}
	if b.Jitter > 0 && rnd != nil {
		j := b.Jitter
		if j > 1 {
			j = 1
		}
		exp -= exp * j * rnd()
	}
	return time.Duration(exp)
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
