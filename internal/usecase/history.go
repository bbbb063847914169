package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"TokenPulse/internal/domain/models"
	drepo "TokenPulse/internal/domain/repository"
	"TokenPulse/internal/service/cache"
	"TokenPulse/pkg/logger"
	"TokenPulse/pkg/util"
)

// HistoryQuery answers daily historical ranges from a HistorySource, memoizing
// results in a BytesCache.
type HistoryQuery struct {
	src     drepo.HistorySource
	cache   cache.BytesCache
	ttl     time.Duration
	maxDays int
	metrics drepo.Metrics
	log     *logger.Logger
}

func NewHistoryQuery(src drepo.HistorySource, c cache.BytesCache, ttl time.Duration, maxDays int) *HistoryQuery {
	if maxDays <= 0 {
		maxDays = 365
	}
	return &HistoryQuery{src: src, cache: c, ttl: ttl, maxDays: maxDays, metrics: drepo.NopMetrics{}}
}

func (h *HistoryQuery) SetLogger(l *logger.Logger) { h.log = l }

func (h *HistoryQuery) SetMetrics(m drepo.Metrics) {
	if m != nil {
		h.metrics = m
	}
}

// Query returns one record per UTC day covering [from, to], oldest first.
func (h *HistoryQuery) Query(ctx context.Context, tokenID string, from, to time.Time) ([]models.DailyRecord, error) {
	if from.After(to) {
		return nil, fmt.Errorf("%w: from %s is after to %s", models.ErrInvalidRange, from.Format(time.DateOnly), to.Format(time.DateOnly))
	}
	start, end := util.AlignDays(from, to)
	if days := int(end.Sub(start) / util.Day); days > h.maxDays {
		return nil, fmt.Errorf("%w: %d days requested, at most %d", models.ErrInvalidRange, days, h.maxDays)
	}
	if h.src == nil {
		return nil, models.ErrHistoricalRangeUnavailable
	}

	key := fmt.Sprintf("history:%s:%s:%s", tokenID, start.Format(time.DateOnly), end.Format(time.DateOnly))
	if h.cache != nil {
		if b, ok, err := h.cache.GetBytes(ctx, key); err != nil {
			h.log.Warn("history cache read failed", logger.String("key", key), logger.Error(err))
		} else if ok {
			var out []models.DailyRecord
			if err := json.Unmarshal(b, &out); err == nil {
				return out, nil
			}
		}
	}

	t0 := time.Now()
	recs, err := h.src.QueryHistorical(ctx, tokenID, start, end.Add(-time.Nanosecond))
	h.metrics.RecordLatency("history_query", time.Since(t0).Seconds())
	if err != nil {
		h.metrics.RecordError("history_query")
		switch {
		case errors.Is(err, models.ErrHistoricalRangeUnavailable), errors.Is(err, models.ErrInvalidToken),
			errors.Is(err, models.ErrInvalidRange), errors.Is(err, models.ErrConnection):
			return nil, err
		default:
			return nil, fmt.Errorf("%w: history for %s: %w", models.ErrConnection, tokenID, err)
		}
	}

	if h.cache != nil {
		if b, err := json.Marshal(recs); err == nil {
			if err := h.cache.SetBytes(ctx, key, b, h.ttl); err != nil {
				h.log.Warn("history cache write failed", logger.String("key", key), logger.Error(err))
			}
		}
	}
	return recs, nil
}
