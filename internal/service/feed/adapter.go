package feed

import (
	"context"
	"fmt"
	"time"

	"TokenPulse/internal/domain/models"
	drepo "TokenPulse/internal/domain/repository"
)

// Adapter joins an event stream, a holder source and an optional history store
// into one FeedAdapter.
type Adapter struct {
	events  drepo.EventSource
	holders drepo.HolderSource
	history drepo.HistorySource
}

var (
	_ drepo.FeedAdapter  = (*Adapter)(nil)
	_ drepo.SupplySource = (*Adapter)(nil)
)

// NewAdapter requires events and holders. A nil history makes every historical
// query fail with ErrHistoricalRangeUnavailable.
func NewAdapter(events drepo.EventSource, holders drepo.HolderSource, history drepo.HistorySource) (*Adapter, error) {
	if events == nil {
		return nil, fmt.Errorf("feed adapter: event source is required")
	}
	if holders == nil {
		return nil, fmt.Errorf("feed adapter: holder source is required")
	}
	return &Adapter{events: events, holders: holders, history: history}, nil
}

func (a *Adapter) Subscribe(ctx context.Context, tokenID string, onEvent func(models.RawEvent), onError func(error)) (drepo.SubscriptionHandle, error) {
	return a.events.Subscribe(ctx, tokenID, onEvent, onError)
}

func (a *Adapter) Unsubscribe(ctx context.Context, h drepo.SubscriptionHandle) error {
	return a.events.Unsubscribe(ctx, h)
}

func (a *Adapter) PollHolders(ctx context.Context, tokenID string, limit int) ([]models.RawBalance, error) {
	return a.holders.PollHolders(ctx, tokenID, limit)
}

// TotalSupply reports 0 when the holder source cannot tell the supply.
func (a *Adapter) TotalSupply(ctx context.Context, tokenID string) (uint64, error) {
	if s, ok := a.holders.(drepo.SupplySource); ok {
		return s.TotalSupply(ctx, tokenID)
	}
	return 0, nil
}

func (a *Adapter) QueryHistorical(ctx context.Context, tokenID string, from, to time.Time) ([]models.DailyRecord, error) {
	if a.history == nil {
		return nil, fmt.Errorf("%w: no history store configured", models.ErrHistoricalRangeUnavailable)
	}
	return a.history.QueryHistorical(ctx, tokenID, from, to)
}
