package repository

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"
	"time"

	"TokenPulse/internal/domain/models"
	applogger "TokenPulse/pkg/logger"
	"TokenPulse/pkg/util"
)

// CHArchive stores accepted transactions in ClickHouse and answers daily
// history queries from the same table.
type CHArchive struct {
	db       *sql.DB
	table    string
	decimals map[string]uint8
	now      func() time.Time
	l        *applogger.Logger
}

// NewCHArchive uses table (database-qualified) on db. decimals maps token mint
// to its decimals so volume can be stored in whole tokens.
func NewCHArchive(db *sql.DB, table string, decimals map[string]uint8) *CHArchive {
	return &CHArchive{db: db, table: table, decimals: decimals, now: time.Now}
}

// SetLogger injects a structured logger.
func (s *CHArchive) SetLogger(l *applogger.Logger) { s.l = l }

const archiveColumns = "ts, token, signature, slot, side, wallet, amount, price, volume, venue"

func (s *CHArchive) Store(ctx context.Context, tokenID string, tx models.Transaction) error {
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)", s.table, archiveColumns)
	if _, err := s.db.ExecContext(ctx, q, s.row(tokenID, tx)...); err != nil {
		return fmt.Errorf("store %s: %w", tx.Signature, err)
	}
	return nil
}

func (s *CHArchive) StoreBatch(ctx context.Context, tokenID string, txs []models.Transaction) error {
	// multi-row VALUES keeps round-trips low; 2000 rows per statement
	const chunkSize = 2000
	for start := 0; start < len(txs); start += chunkSize {
		end := start + chunkSize
		if end > len(txs) {
			end = len(txs)
		}
		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*10)
		for _, tx := range txs[start:end] {
			if tx.Signature == "" {
				continue
			}
			values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
			args = append(args, s.row(tokenID, tx)...)
		}
		if len(values) == 0 {
			continue
		}
		q := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s", s.table, archiveColumns, strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("store batch: %w", err)
		}
	}
	return nil
}

func (s *CHArchive) row(tokenID string, tx models.Transaction) []interface{} {
	return []interface{}{
		tx.Timestamp.UTC(),
		tokenID,
		tx.Signature,
		tx.Slot,
		string(tx.Side),
		tx.Wallet,
		tx.Amount,
		tx.Price,
		volume(tx, s.decimals[tokenID]),
		tx.Venue,
	}
}

func volume(tx models.Transaction, decimals uint8) float64 {
	return float64(tx.Amount) / math.Pow10(int(decimals)) * tx.Price
}

// QueryHistorical returns one record per UTC day in [from, to], oldest first.
// Days without archived trades are zero-filled. Ranges that begin before the
// first archived day cannot be answered.
func (s *CHArchive) QueryHistorical(ctx context.Context, tokenID string, from, to time.Time) ([]models.DailyRecord, error) {
	start, end := util.AlignDays(from, to)

	var n uint64
	var first time.Time
	if err := s.db.QueryRowContext(ctx, historyBoundsSQL(s.table), tokenID).Scan(&n, &first); err != nil {
		s.logErr("history bounds", tokenID, err)
		return nil, fmt.Errorf("history bounds: %w", err)
	}
	if n == 0 {
		return nil, fmt.Errorf("%w: nothing archived for %s", models.ErrHistoricalRangeUnavailable, tokenID)
	}
	if firstDay := first.UTC().Truncate(util.Day); start.Before(firstDay) {
		return nil, fmt.Errorf("%w: archive for %s starts %s", models.ErrHistoricalRangeUnavailable, tokenID, firstDay.Format(time.DateOnly))
	}

	rows, err := s.db.QueryContext(ctx, dailyHistorySQL(s.table), tokenID, start, end)
	if err != nil {
		s.logErr("history query", tokenID, err)
		return nil, fmt.Errorf("history query: %w", err)
	}
	defer rows.Close()

	var recs []models.DailyRecord
	for rows.Next() {
		var r models.DailyRecord
		if err := rows.Scan(&r.Date, &r.Transactions, &r.Volume, &r.UniqueWallets, &r.AvgPrice, &r.BuyCount, &r.SellCount); err != nil {
			s.logErr("history scan", tokenID, err)
			return nil, fmt.Errorf("scan daily record: %w", err)
		}
		r.Date = r.Date.UTC()
		recs = append(recs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}

	last := end
	if today := s.now().UTC().Truncate(util.Day).Add(util.Day); today.Before(last) {
		last = today
	}
	return fillDays(recs, start, last), nil
}

// fillDays returns one record per day in [start, end), taking values from recs.
func fillDays(recs []models.DailyRecord, start, end time.Time) []models.DailyRecord {
	byDay := make(map[time.Time]models.DailyRecord, len(recs))
	for _, r := range recs {
		byDay[r.Date.UTC().Truncate(util.Day)] = r
	}
	var out []models.DailyRecord
	for d := start; d.Before(end); d = d.Add(util.Day) {
		r, ok := byDay[d]
		if !ok {
			r = models.DailyRecord{}
		}
		r.Date = d
		out = append(out, r)
	}
	return out
}

func (s *CHArchive) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close is a no-op; the pool belongs to pkg/clickhouse.Client.
func (s *CHArchive) Close() error { return nil }

func (s *CHArchive) logErr(op, tokenID string, err error) {
	s.l.Error("clickhouse "+op+" error",
		applogger.String("table", s.table),
		applogger.String("token", tokenID),
		applogger.Error(err),
	)
}

// Both history queries read with FINAL: the archive is a ReplacingMergeTree
// and redeliveries archived after the in-memory dedup forgot them stay
// separate rows until a background merge.
func historyBoundsSQL(table string) string {
	return fmt.Sprintf("SELECT count(), min(ts) FROM %s FINAL WHERE token = ?", table)
}

func dailyHistorySQL(table string) string {
	const qtpl = `
        SELECT toDate(ts) AS day,
               count(),
               sum(volume),
               uniqExact(wallet),
               avg(price),
               countIf(side = 'buy'),
               countIf(side = 'sell')
        FROM %s FINAL
        WHERE token = ? AND ts >= ? AND ts < ?
        GROUP BY day
        ORDER BY day ASC
    `
	return fmt.Sprintf(qtpl, table)
}
