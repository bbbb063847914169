package repository

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"TokenPulse/internal/domain/models"
)

func day(d int) time.Time { return time.Date(2025, 3, d, 0, 0, 0, 0, time.UTC) }

func TestFillDays(t *testing.T) {
	recs := []models.DailyRecord{
		{Date: day(2), Transactions: 5, BuyCount: 3, SellCount: 2},
		{Date: day(4), Transactions: 1, SellCount: 1},
	}
	got := fillDays(recs, day(1), day(5))
	if len(got) != 4 {
		t.Fatalf("got %d days", len(got))
	}
	for i, r := range got {
		if !r.Date.Equal(day(i + 1)) {
			t.Fatalf("day %d is %v", i, r.Date)
		}
	}
	if got[0].Transactions != 0 || got[1].Transactions != 5 || got[2].Transactions != 0 || got[3].SellCount != 1 {
		t.Fatalf("records %+v", got)
	}
}

func TestVolumeUsesDecimals(t *testing.T) {
	tx := models.Transaction{Amount: 2_500_000, Price: 0.4}
	if v := volume(tx, 6); v != 1 {
		t.Fatalf("volume %v", v)
	}
}

func TestArchivedTransactionWireForm(t *testing.T) {
	tx := models.Transaction{
		Signature: "sig",
		Slot:      42,
		Timestamp: time.Date(2025, 3, 8, 12, 0, 0, 0, time.UTC),
		Side:      models.SideSell,
		Wallet:    "w",
		Amount:    10,
		Price:     1.5,
		Venue:     "Orca",
	}
	msgs := toMessages("mint", []models.Transaction{tx})
	if len(msgs) != 1 || string(msgs[0].Key) != "mint" || msgs[0].Headers["venue"] != "Orca" {
		t.Fatalf("messages %+v", msgs)
	}
	b, err := json.Marshal(msgs[0].Value)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back ArchivedTransaction
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.Token != "mint" || back.Transaction() != tx {
		t.Fatalf("decoded %+v", back.Transaction())
	}
}

func TestHistorySQLReadsCollapsedRows(t *testing.T) {
	for name, q := range map[string]string{
		"bounds": historyBoundsSQL("tokenpulse.tx_archive"),
		"daily":  dailyHistorySQL("tokenpulse.tx_archive"),
	} {
		if !strings.Contains(q, "FROM tokenpulse.tx_archive FINAL") {
			t.Fatalf("%s query does not read with FINAL:\n%s", name, q)
		}
	}
	if q := dailyHistorySQL("t"); !strings.Contains(q, "ts >= ? AND ts < ?") {
		t.Fatalf("daily query must be end-exclusive:\n%s", q)
	}
}
