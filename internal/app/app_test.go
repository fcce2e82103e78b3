package app

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/updownbot/internal/config"
	"github.com/alanyoungcy/updownbot/internal/executor"
	"github.com/alanyoungcy/updownbot/internal/server/ws"
	"github.com/alanyoungcy/updownbot/internal/supervisor"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCoordinatorConfig(t *testing.T) {
	sc := config.DefaultStrategy()
	sc.Name = "contrarian"
	sc.Sensitivity = -300
	sc.DryRun = true

	cfg := coordinatorConfig(sc, "paper")
	assert.Equal(t, "contrarian", cfg.Strategy)
	assert.Equal(t, -300.0, cfg.Sensitivity)
	assert.Equal(t, sc.EdgeThreshold, cfg.EdgeThreshold)
	assert.Equal(t, 30*time.Second, cfg.MinTimeLeft)
	assert.Equal(t, 20*time.Second, cfg.EntryCooldown)
	assert.Equal(t, 60*time.Second, cfg.ClosingWindow)
	assert.True(t, cfg.DryRun)
	assert.True(t, cfg.EntriesEnabled)
	assert.Equal(t, executor.DefaultConfig().OrderTimeout, cfg.OrderTimeout)

	assert.False(t, coordinatorConfig(sc, "monitor").EntriesEnabled)
}

func TestRiskAndSupervisorConfig(t *testing.T) {
	cfg := config.Defaults()

	rc := riskConfig(cfg.Risk)
	assert.Equal(t, 5.0, rc.MinTrade)
	assert.Equal(t, 25.0, rc.MaxTrade)
	assert.Equal(t, 30*time.Second, rc.TradeCooldown)
	assert.Equal(t, 5*time.Second, rc.GlobalCooldown)
	assert.Equal(t, 0.95, rc.MaxPrice)

	sc := supervisorConfig(&cfg)
	assert.Equal(t, 10*time.Second, sc.StatusInterval)
	assert.Equal(t, 5*time.Second, sc.CheckInterval)
	assert.Equal(t, 10*time.Minute, sc.RefreshInterval)
	assert.Equal(t, 5*time.Second, sc.ExpiryWindow)
	assert.Equal(t, 10*time.Second, sc.RolloverDelay)
	assert.Equal(t, 15*time.Minute, sc.ArchiveInterval)
}

func TestReferenceCoins(t *testing.T) {
	got := referenceCoins([]config.StrategyConfig{
		{Name: "momentum", Coins: []string{"BTC", "eth"}},
		{Name: "contrarian", Coins: []string{"ETH", "SOL", "BTC"}},
	})
	assert.Equal(t, []string{"BTC", "ETH", "SOL"}, got)
}

func TestMarketWSURL(t *testing.T) {
	tests := []struct {
		host string
		want string
	}{
		{"wss://ws-subscriptions-clob.polymarket.com", "wss://ws-subscriptions-clob.polymarket.com/ws/market"},
		{"wss://ws-subscriptions-clob.polymarket.com/", "wss://ws-subscriptions-clob.polymarket.com/ws/market"},
		{"ws://localhost:8080/ws/market", "ws://localhost:8080/ws/market"},
	}
	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			assert.Equal(t, tt.want, marketWSURL(tt.host))
		})
	}
}

func TestInstanceLockKey(t *testing.T) {
	assert.Equal(t, "updown:instance:momentum", instanceLockKey("momentum"))
}

func TestWireSQLiteJournal(t *testing.T) {
	cfg := config.Defaults()
	cfg.Journal.SQLitePath = filepath.Join(t.TempDir(), "journal.db")

	deps, cleanup, err := Wire(context.Background(), &cfg, testLogger())
	require.NoError(t, err)
	defer cleanup()

	require.NotNil(t, deps.Journal)
	assert.NotNil(t, deps.Stats())
	assert.NotNil(t, deps.Notifier)
	assert.Nil(t, deps.SignalBus)
	assert.Nil(t, deps.StateCache)
	assert.Nil(t, deps.LockManager)
	assert.Nil(t, deps.BlobWriter)

	day := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	stats, err := deps.Stats().DailyStats(context.Background(), day)
	require.NoError(t, err)
	assert.Equal(t, "2026-03-02", stats.Date)
	assert.Zero(t, stats.TotalTrades)
}

func TestWireWithoutJournal(t *testing.T) {
	cfg := config.Defaults()
	cfg.Journal.Driver = "none"

	deps, cleanup, err := Wire(context.Background(), &cfg, testLogger())
	require.NoError(t, err)
	defer cleanup()

	assert.Nil(t, deps.Journal)
	assert.Nil(t, deps.Stats())
	assert.NotNil(t, deps.Notifier)
}

func TestNewPlacerSimulatesOutsideLive(t *testing.T) {
	cfg := config.Defaults()
	a := New(&cfg, testLogger())

	for _, mode := range []string{"paper", "monitor"} {
		p, err := a.newPlacer(context.Background(), mode)
		require.NoError(t, err)
		assert.IsType(t, &executor.PaperPlacer{}, p)
	}
	assert.Empty(t, a.closers)
}

func TestNewPlacerLiveNeedsKey(t *testing.T) {
	cfg := config.Defaults()
	cfg.Mode = "live"
	a := New(&cfg, testLogger())

	_, err := a.newPlacer(context.Background(), "live")
	require.Error(t, err)
}

func TestHubSink(t *testing.T) {
	hub := ws.NewHub(nil, testLogger(), ws.Config{Mode: "paper"})
	sink := hubSink(hub)
	err := sink.Publish(context.Background(), supervisor.Status{Strategy: "momentum", Time: time.Now().UTC()})
	require.NoError(t, err)
}

func TestCloseRunsClosersInReverse(t *testing.T) {
	cfg := config.Defaults()
	a := New(&cfg, testLogger())

	var order []int
	a.closers = append(a.closers,
		func() { order = append(order, 1) },
		func() { order = append(order, 2) },
	)
	a.Close()
	a.Close()
	assert.Equal(t, []int{2, 1}, order)
}
