package usecase

import (
	"context"
	"fmt"
	"time"

	"TokenPulse/internal/domain/models"
	drepo "TokenPulse/internal/domain/repository"
)

const (
	BackendNone       = "none"
	BackendKafka      = "kafka"
	BackendClickHouse = "clickhouse"
)

// Archiver routes accepted transactions to the configured archive backend.
type Archiver struct {
	pub     drepo.Publisher
	store   drepo.Storage
	metrics drepo.Metrics
	backend string
}

func NewArchiver(pub drepo.Publisher, store drepo.Storage, metrics drepo.Metrics, backend string) *Archiver {
	if metrics == nil {
		metrics = drepo.NopMetrics{}
	}
	return &Archiver{
		pub:     pub,
		store:   store,
		metrics: metrics,
		backend: backend,
	}
}

func (a *Archiver) Backend() string { return a.backend }

// Process archives a single transaction.
func (a *Archiver) Process(ctx context.Context, tokenID string, tx models.Transaction) error {
	start := time.Now()
	var err error

	switch a.backend {
	case BackendKafka:
		if a.pub == nil {
			return fmt.Errorf("kafka backend without publisher")
		}
		err = a.pub.Publish(ctx, tokenID, tx)
	case BackendClickHouse:
		if a.store == nil {
			return fmt.Errorf("clickhouse backend without storage")
		}
		err = a.store.Store(ctx, tokenID, tx)
	case BackendNone, "":
		return nil
	default:
		err = fmt.Errorf("unknown backend: %s", a.backend)
	}

	if err != nil {
		a.metrics.RecordError("archive")
		return fmt.Errorf("archive %s: %w", tx.Signature, err)
	}

	a.metrics.RecordArchived(a.backend, tokenID)
	a.metrics.RecordLatency("archive", time.Since(start).Seconds())
	return nil
}

// ProcessBatch archives txs of one token in a single backend call.
func (a *Archiver) ProcessBatch(ctx context.Context, tokenID string, txs []models.Transaction) error {
	if len(txs) == 0 {
		return nil
	}

	start := time.Now()
	var err error

	switch a.backend {
	case BackendKafka:
		if a.pub == nil {
			return fmt.Errorf("kafka backend without publisher")
		}
		err = a.pub.PublishBatch(ctx, tokenID, txs)
	case BackendClickHouse:
		if a.store == nil {
			return fmt.Errorf("clickhouse backend without storage")
		}
		err = a.store.StoreBatch(ctx, tokenID, txs)
	case BackendNone, "":
		return nil
	default:
		err = fmt.Errorf("unknown backend: %s", a.backend)
	}

	if err != nil {
		a.metrics.RecordError("archive_batch")
		return fmt.Errorf("archive batch: %w", err)
	}

	for range txs {
		a.metrics.RecordArchived(a.backend, tokenID)
	}
	a.metrics.RecordLatency("archive_batch", time.Since(start).Seconds())
	return nil
}

// Close closes underlying resources if available.
func (a *Archiver) Close() {
	if a.pub != nil {
		_ = a.pub.Close()
	}
	if a.store != nil {
		_ = a.store.Close()
	}
}
