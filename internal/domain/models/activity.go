package models

import (
	"sort"
	"time"
)

type NetDirection string

const (
	BuyHeavy  NetDirection = "buy-heavy"
	SellHeavy NetDirection = "sell-heavy"
	Balanced  NetDirection = "balanced"
)

// AggregateWindow is a point-in-time view of one rolling window.
// Counts cover transactions with timestamp in [WindowStart, WindowEnd).
type AggregateWindow struct {
	WindowID      string
	WindowStart   time.Time
	WindowEnd     time.Time
	BuyCount      uint64
	SellCount     uint64
	BuyVolume     float64
	SellVolume    float64
	TotalVolume   float64
	ActiveWallets []string
	VenueCounts   map[string]uint64
}

func (w AggregateWindow) Total() uint64 { return w.BuyCount + w.SellCount }

func (w AggregateWindow) NetDirection() NetDirection {
	switch {
	case w.BuyCount > w.SellCount:
		return BuyHeavy
	case w.SellCount > w.BuyCount:
		return SellHeavy
	default:
		return Balanced
	}
}

type VenueShare struct {
	Venue      string
	Count      uint64
	Percentage float64
}

// VenueBreakdown returns venues ordered by count, then name.
func (w AggregateWindow) VenueBreakdown() []VenueShare {
	total := w.Total()
	out := make([]VenueShare, 0, len(w.VenueCounts))
	for venue, n := range w.VenueCounts {
		share := VenueShare{Venue: venue, Count: n}
		if total > 0 {
			share.Percentage = float64(n) / float64(total) * 100
		}
		out = append(out, share)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Venue < out[j].Venue
	})
	return out
}

// ActivityBucket is one slot of the buy vs sell time series.
type ActivityBucket struct {
	Start      time.Time
	BuyCount   uint64
	SellCount  uint64
	BuyVolume  float64
	SellVolume float64
}

// DailyRecord is one UTC day of historical activity.
type DailyRecord struct {
	Date          time.Time
	Transactions  uint64
	Volume        float64
	UniqueWallets uint64
	AvgPrice      float64
	BuyCount      uint64
	SellCount     uint64
}
