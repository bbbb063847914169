package repository

import (
	"context"
	"time"

	"TokenPulse/internal/domain/models"
)

// SubscriptionHandle identifies a live event subscription of a feed adapter.
type SubscriptionHandle string

type HolderSource interface {
	PollHolders(ctx context.Context, tokenID string, limit int) ([]models.RawBalance, error)
}

// SupplySource is optionally implemented by holder sources that know the mint supply.
type SupplySource interface {
	TotalSupply(ctx context.Context, tokenID string) (uint64, error)
}

// EventSource pushes raw swap events. onError reports a failed stream; the
// subscription is dead after it fires and must be released with Unsubscribe.
type EventSource interface {
	Subscribe(ctx context.Context, tokenID string, onEvent func(models.RawEvent), onError func(error)) (SubscriptionHandle, error)
	Unsubscribe(ctx context.Context, h SubscriptionHandle) error
}

type HistorySource interface {
	QueryHistorical(ctx context.Context, tokenID string, from, to time.Time) ([]models.DailyRecord, error)
}

// FeedAdapter is everything a monitor session consumes from the network.
type FeedAdapter interface {
	HolderSource
	EventSource
	HistorySource
}

// Publisher ships accepted transactions to a message bus.
type Publisher interface {
	Publish(ctx context.Context, tokenID string, tx models.Transaction) error
	PublishBatch(ctx context.Context, tokenID string, txs []models.Transaction) error
	Close() error
}

// Storage persists accepted transactions for later historical queries.
type Storage interface {
	Store(ctx context.Context, tokenID string, tx models.Transaction) error
	StoreBatch(ctx context.Context, tokenID string, txs []models.Transaction) error
	Health(ctx context.Context) error
	Close() error
}

type Metrics interface {
	RecordEvent(token string)
	RecordRejected(token, reason string)
	RecordState(token string, state models.ConnState)
	RecordReconnect(token string)
	RecordBufferSize(token string, n int)
	RecordArchived(backend, token string)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}

// NopMetrics discards everything. Useful for tests and library use.
type NopMetrics struct{}

func (NopMetrics) RecordEvent(string) {}
func (NopMetrics) RecordRejected(string, string) {}
func (NopMetrics) RecordState(string, models.ConnState) {}
func (NopMetrics) RecordReconnect(string) {}
func (NopMetrics) RecordBufferSize(string, int) {}
func (NopMetrics) RecordArchived(string, string) {}
func (NopMetrics) RecordError(string) {}
func (NopMetrics) RecordLatency(string, float64) {}
