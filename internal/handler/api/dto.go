package api

import (
	"time"

	"TokenPulse/internal/domain/models"
)

type StatusDTO struct {
	Token            string     `json:"token"`
	State            string     `json:"state"`
	LastError        string     `json:"last_error,omitempty"`
	Reconnects       int        `json:"reconnects"`
	SubscribedSince  *time.Time `json:"subscribed_since,omitempty"`
	LastHolderPoll   *time.Time `json:"last_holder_poll,omitempty"`
	LastEventArrival *time.Time `json:"last_event_arrival,omitempty"`
}

type HolderDTO struct {
	Address            string   `json:"address"`
	Balance            uint64   `json:"balance"`
	Rank               int      `json:"rank"`
	PercentageOfSupply *float64 `json:"percentage_of_supply"`
	RankDelta          *int     `json:"rank_delta"`
}

type TransactionDTO struct {
	Signature string    `json:"signature"`
	Slot      uint64    `json:"slot"`
	Timestamp time.Time `json:"timestamp"`
	Side      string    `json:"side"`
	Wallet    string    `json:"wallet"`
	Amount    uint64    `json:"amount"`
	Price     float64   `json:"price"`
	Venue     string    `json:"venue"`
}

type VenueDTO struct {
	Venue      string  `json:"venue"`
	Count      uint64  `json:"count"`
	Percentage float64 `json:"percentage"`
}

type AggregateDTO struct {
	Window        string     `json:"window"`
	Start         time.Time  `json:"start"`
	End           time.Time  `json:"end"`
	BuyCount      uint64     `json:"buy_count"`
	SellCount     uint64     `json:"sell_count"`
	BuyVolume     float64    `json:"buy_volume"`
	SellVolume    float64    `json:"sell_volume"`
	TotalVolume   float64    `json:"total_volume"`
	ActiveWallets int        `json:"active_wallets"`
	NetDirection  string     `json:"net_direction"`
	Venues        []VenueDTO `json:"venues"`
}

type BucketDTO struct {
	Start      time.Time `json:"start"`
	BuyCount   uint64    `json:"buy_count"`
	SellCount  uint64    `json:"sell_count"`
	BuyVolume  float64   `json:"buy_volume"`
	SellVolume float64   `json:"sell_volume"`
}

type DailyDTO struct {
	Date          string  `json:"date"`
	Transactions  uint64  `json:"transactions"`
	Volume        float64 `json:"volume"`
	UniqueWallets uint64  `json:"unique_wallets"`
	AvgPrice      float64 `json:"avg_price"`
	BuyCount      uint64  `json:"buy_count"`
	SellCount     uint64  `json:"sell_count"`
}

type RejectionsDTO struct {
	Duplicate   uint64 `json:"duplicate"`
	NonPositive uint64 `json:"non_positive"`
	Future      uint64 `json:"future"`
	Malformed   uint64 `json:"malformed"`
}

type SnapshotDTO struct {
	Status             StatusDTO        `json:"status"`
	TotalSupply        uint64           `json:"total_supply"`
	TopTenShare        *float64         `json:"top_ten_share"`
	Holders            []HolderDTO      `json:"holders"`
	RecentTransactions []TransactionDTO `json:"recent_transactions"`
	Aggregates         []AggregateDTO   `json:"aggregates"`
	UniqueWalletsSeen  uint64           `json:"unique_wallets_seen"`
	Rejections         RejectionsDTO    `json:"rejections"`
	TakenAt            time.Time        `json:"taken_at"`
}

func optTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func toStatusDTO(s models.SessionStatus) StatusDTO {
	return StatusDTO{
		Token:            s.TokenID,
		State:            string(s.State),
		LastError:        s.LastError,
		Reconnects:       s.Reconnects,
		SubscribedSince:  optTime(s.SubscribedSince),
		LastHolderPoll:   optTime(s.LastHolderPoll),
		LastEventArrival: optTime(s.LastEventArrival),
	}
}

func toHolderDTOs(hs []models.TokenHolder) []HolderDTO {
	out := make([]HolderDTO, len(hs))
	for i, h := range hs {
		out[i] = HolderDTO{
			Address:            h.Address,
			Balance:            h.Balance,
			Rank:               h.Rank,
			PercentageOfSupply: h.PercentageOfSupply,
			RankDelta:          h.RankDelta,
		}
	}
	return out
}

func toTransactionDTOs(txs []models.Transaction) []TransactionDTO {
	out := make([]TransactionDTO, len(txs))
	for i, tx := range txs {
		out[i] = TransactionDTO{
			Signature: tx.Signature,
			Slot:      tx.Slot,
			Timestamp: tx.Timestamp,
			Side:      string(tx.Side),
			Wallet:    tx.Wallet,
			Amount:    tx.Amount,
			Price:     tx.Price,
			Venue:     tx.Venue,
		}
	}
	return out
}

func toAggregateDTO(w models.AggregateWindow) AggregateDTO {
	br := w.VenueBreakdown()
	venues := make([]VenueDTO, len(br))
	for i, v := range br {
		venues[i] = VenueDTO{Venue: v.Venue, Count: v.Count, Percentage: v.Percentage}
	}
	return AggregateDTO{
		Window:        w.WindowID,
		Start:         w.WindowStart,
		End:           w.WindowEnd,
		BuyCount:      w.BuyCount,
		SellCount:     w.SellCount,
		BuyVolume:     w.BuyVolume,
		SellVolume:    w.SellVolume,
		TotalVolume:   w.TotalVolume,
		ActiveWallets: len(w.ActiveWallets),
		NetDirection:  string(w.NetDirection()),
		Venues:        venues,
	}
}

func toBucketDTOs(bs []models.ActivityBucket) []BucketDTO {
	out := make([]BucketDTO, len(bs))
	for i, b := range bs {
		out[i] = BucketDTO{Start: b.Start, BuyCount: b.BuyCount, SellCount: b.SellCount, BuyVolume: b.BuyVolume, SellVolume: b.SellVolume}
	}
	return out
}

func toDailyDTOs(recs []models.DailyRecord) []DailyDTO {
	out := make([]DailyDTO, len(recs))
	for i, r := range recs {
		out[i] = DailyDTO{
			Date:          r.Date.UTC().Format("2006-01-02"),
			Transactions:  r.Transactions,
			Volume:        r.Volume,
			UniqueWallets: r.UniqueWallets,
			AvgPrice:      r.AvgPrice,
			BuyCount:      r.BuyCount,
			SellCount:     r.SellCount,
		}
	}
	return out
}

func toSnapshotDTO(s models.Snapshot, txLimit int) SnapshotDTO {
	recent := s.RecentTransactions
	if txLimit >= 0 && len(recent) > txLimit {
		recent = recent[:txLimit]
	}
	aggs := make([]AggregateDTO, len(s.Aggregates))
	for i, w := range s.Aggregates {
		aggs[i] = toAggregateDTO(w)
	}
	return SnapshotDTO{
		Status:             toStatusDTO(s.Status),
		TotalSupply:        s.TotalSupply,
		TopTenShare:        s.TopTenShare,
		Holders:            toHolderDTOs(s.Holders),
		RecentTransactions: toTransactionDTOs(recent),
		Aggregates:         aggs,
		UniqueWalletsSeen:  s.UniqueWalletsSeen,
		Rejections: RejectionsDTO{
			Duplicate:   s.Rejections.Duplicate,
			NonPositive: s.Rejections.NonPositive,
			Future:      s.Rejections.Future,
			Malformed:   s.Rejections.Malformed,
		},
		TakenAt: s.TakenAt,
	}
}
