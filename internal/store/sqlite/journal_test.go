package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

func openMemory(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func TestOpenCreatesTables(t *testing.T) {
	j := openMemory(t)
	for _, table := range []string{"schema_version", "decisions", "trades", "positions", "snapshots", "daily_stats"} {
		var n int
		err := j.db.QueryRow(`SELECT count(*) FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&n)
		require.NoError(t, err)
		assert.Equal(t, 1, n, table)
	}
	// Migrating again is harmless.
	assert.NoError(t, migrate(j.db))
}

func TestOpenFileCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "journal.db")
	j, err := Open(path)
	require.NoError(t, err)
	assert.NoError(t, j.Close())
	assert.FileExists(t, path)
}

func TestDecisionTradeSnapshot(t *testing.T) {
	j := openMemory(t)
	ctx := context.Background()
	at := time.Date(2026, 3, 2, 10, 5, 0, 0, time.UTC)

	require.NoError(t, j.LogDecision(ctx, domain.Decision{
		ID: "d1", Time: at, Strategy: "momentum", Action: domain.OrderSideBuy, Symbol: "BTC",
		Outcome: domain.OutcomeUp, Signals: map[string]any{"edge": 0.07},
		Result: domain.DecisionRejected, RejectionReason: "max_positions",
	}))
	require.NoError(t, j.LogTrade(ctx, domain.TradeRecord{
		DecisionID: "d1", Time: at, Strategy: "momentum", Side: domain.OrderSideBuy,
		Price: 0.52, Shares: 20, Notional: 10.4, Status: domain.OrderStatusMatched,
	}))
	require.NoError(t, j.LogSnapshot(ctx, domain.SnapshotRecord{
		DecisionID: "d1", Time: at, Strategy: "momentum", Symbol: "BTC",
		UpBid: 0.48, UpAsk: 0.5, TimeLeft: 90 * time.Second,
	}))

	var reason, signals string
	require.NoError(t, j.db.QueryRow(`SELECT rejection_reason, signals FROM decisions WHERE id = 'd1'`).Scan(&reason, &signals))
	assert.Equal(t, "max_positions", reason)
	assert.JSONEq(t, `{"edge":0.07}`, signals)

	var left float64
	require.NoError(t, j.db.QueryRow(`SELECT time_left_s FROM snapshots WHERE decision_id = 'd1'`).Scan(&left))
	assert.Equal(t, 90.0, left)
}

func TestPositionLifecycle(t *testing.T) {
	j := openMemory(t)
	ctx := context.Background()
	opened := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	require.NoError(t, j.OpenPosition(ctx, domain.Position{
		ID: "p1", Strategy: "momentum", Symbol: "BTC", Outcome: domain.OutcomeUp,
		EntryPrice: 0.5, Shares: 20, Notional: 10, OpenedAt: opened,
	}))
	require.NoError(t, j.UpdatePositionExtremes(ctx, "p1", 0.58, 0.47))
	require.NoError(t, j.UpdatePositionExtremes(ctx, "p1", 0.55, 0.49))

	var peak, trough float64
	require.NoError(t, j.db.QueryRow(`SELECT peak_price, trough_price FROM positions WHERE id = 'p1'`).Scan(&peak, &trough))
	assert.Equal(t, 0.58, peak)
	assert.Equal(t, 0.47, trough)

	require.NoError(t, j.ClosePosition(ctx, domain.PositionClose{
		ID: "p1", ExitPrice: 0.61, RealizedPnL: 2.2, Reason: domain.ExitTakeProfit,
		ClosedAt: opened.Add(90 * time.Second),
	}))

	var status, reason string
	var hold float64
	require.NoError(t, j.db.QueryRow(`SELECT status, exit_reason, hold_seconds FROM positions WHERE id = 'p1'`).Scan(&status, &reason, &hold))
	assert.Equal(t, "closed", status)
	assert.Equal(t, "take_profit", reason)
	assert.Equal(t, 90.0, hold)

	// Closed positions no longer track extremes.
	require.NoError(t, j.UpdatePositionExtremes(ctx, "p1", 0.9, 0.1))
	require.NoError(t, j.db.QueryRow(`SELECT peak_price FROM positions WHERE id = 'p1'`).Scan(&peak))
	assert.Equal(t, 0.58, peak)
}

func TestDailyStatsAccumulate(t *testing.T) {
	j := openMemory(t)
	ctx := context.Background()
	day := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

	for _, pnl := range []float64{2.2, -1.6, 0.5} {
		require.NoError(t, j.ClosePosition(ctx, domain.PositionClose{ID: "unknown", RealizedPnL: pnl, ClosedAt: day}))
	}

	st, err := j.DailyStats(ctx, day)
	require.NoError(t, err)
	assert.Equal(t, "2026-03-02", st.Date)
	assert.Equal(t, 3, st.TotalTrades)
	assert.Equal(t, 2, st.WinningTrades)
	assert.Equal(t, 1, st.LosingTrades)
	assert.InDelta(t, 1.1, st.TotalPnL, 1e-9)
	assert.InDelta(t, 2.7, st.GrossProfit, 1e-9)
	assert.InDelta(t, -1.6, st.GrossLoss, 1e-9)
	assert.InDelta(t, 2.2, st.BestTrade, 1e-9)
	assert.InDelta(t, -1.6, st.WorstTrade, 1e-9)

	empty, err := j.DailyStats(ctx, day.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, 0, empty.TotalTrades)
}
