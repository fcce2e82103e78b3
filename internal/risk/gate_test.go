package risk

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock(t time.Time) *clock { return &clock{now: t} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newGate(t *testing.T, cfg Config, opts ...Option) (*Gate, *clock) {
	t.Helper()
	clk := newClock(time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC))
	opts = append([]Option{WithClock(clk.Now)}, opts...)
	return New(cfg, discard(), opts...), clk
}

func buy(instrument string, notional, price float64) TradeRequest {
	return TradeRequest{
		Strategy:     "test",
		InstrumentID: instrument,
		TokenID:      instrument + "-up",
		Side:         domain.OrderSideBuy,
		Price:        price,
		Notional:     notional,
	}
}

func fill(req TradeRequest) Fill {
	return Fill{
		Strategy:     req.Strategy,
		InstrumentID: req.InstrumentID,
		TokenID:      req.TokenID,
		Outcome:      domain.OutcomeUp,
		Side:         req.Side,
		Price:        req.Price,
		Shares:       req.Notional / req.Price,
		Notional:     req.Notional,
	}
}

func TestCheckTradeOversizeDoesNotAdvanceCooldowns(t *testing.T) {
	g, _ := newGate(t, DefaultConfig())

	d := g.CheckTrade(buy("m1", 30, 0.5))
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonSizeTooLarge, d.Reason)

	// A valid trade right after is not blocked by any cooldown.
	d = g.CheckTrade(buy("m1", 10, 0.5))
	assert.True(t, d.Allowed, d.Detail)
}

func TestCheckTradeIsPure(t *testing.T) {
	g, _ := newGate(t, DefaultConfig())
	before := g.GetStatus()
	req := buy("m1", 10, 0.5)

	first := g.CheckTrade(req)
	second := g.CheckTrade(req)

	assert.Equal(t, first, second)
	assert.Equal(t, before, g.GetStatus())
	assert.Empty(t, g.Positions())
}

func TestCheckTradeOrder(t *testing.T) {
	cfg := DefaultConfig()
	tests := []struct {
		name  string
		setup func(g *Gate, clk *clock)
		req   TradeRequest
		want  Reason
	}{
		{"too small", nil, buy("m", 4, 0.5), ReasonSizeTooSmall},
		{"too large", nil, buy("m", 26, 0.5), ReasonSizeTooLarge},
		{"price too low", nil, buy("m", 10, 0.04), ReasonPriceTooLow},
		{"price too high", nil, buy("m", 10, 0.96), ReasonPriceTooHigh},
		{
			"size checked before price",
			nil, buy("m", 100, 0.99), ReasonSizeTooLarge,
		},
		{
			"market exposure",
			func(g *Gate, clk *clock) {
				g.RegisterTrade(fill(buy("m", 25, 0.5)))
				g.RegisterTrade(fill(buy("m", 20, 0.5)))
				clk.Advance(time.Minute)
			},
			buy("m", 10, 0.5), ReasonMarketExposure,
		},
		{
			"global cooldown",
			func(g *Gate, clk *clock) {
				g.RegisterTrade(fill(buy("other", 10, 0.5)))
				clk.Advance(2 * time.Second)
			},
			buy("m", 10, 0.5), ReasonGlobalCooldown,
		},
		{
			"market cooldown",
			func(g *Gate, clk *clock) {
				g.RegisterTrade(fill(buy("m", 10, 0.5)))
				clk.Advance(10 * time.Second)
			},
			buy("m", 10, 0.5), ReasonMarketCooldown,
		},
		{
			"cooldowns expire",
			func(g *Gate, clk *clock) {
				g.RegisterTrade(fill(buy("m", 10, 0.5)))
				clk.Advance(31 * time.Second)
			},
			buy("m", 10, 0.5), ReasonNone,
		},
		{
			"sell skips exposure checks",
			func(g *Gate, clk *clock) {
				for i := 0; i < cfg.MaxPositions; i++ {
					g.RegisterTrade(fill(buy(string(rune('a'+i)), 10, 0.5)))
				}
				clk.Advance(time.Minute)
			},
			TradeRequest{InstrumentID: "a", Side: domain.OrderSideSell, Price: 0.5, Notional: 10},
			ReasonNone,
		},
		{
			"max positions",
			func(g *Gate, clk *clock) {
				for i := 0; i < cfg.MaxPositions; i++ {
					g.RegisterTrade(fill(buy(string(rune('a'+i)), 5, 0.5)))
				}
				clk.Advance(time.Minute)
			},
			buy("z", 10, 0.5), ReasonMaxPositions,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			g, clk := newGate(t, cfg)
			if tc.setup != nil {
				tc.setup(g, clk)
			}
			d := g.CheckTrade(tc.req)
			assert.Equal(t, tc.want, d.Reason, d.Detail)
			assert.Equal(t, tc.want == ReasonNone, d.Allowed)
		})
	}
}

func TestTotalExposureLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxTotalExposure = 40
	g, clk := newGate(t, cfg)

	g.RegisterTrade(fill(buy("a", 25, 0.5)))
	clk.Advance(time.Minute)

	d := g.CheckTrade(buy("b", 20, 0.5))
	assert.Equal(t, ReasonTotalExposure, d.Reason)

	d = g.CheckTrade(buy("b", 15, 0.5))
	assert.True(t, d.Allowed, d.Detail)
}

func TestDailyLossHaltUntilRollover(t *testing.T) {
	g, clk := newGate(t, DefaultConfig())

	id := g.RegisterTrade(fill(buy("m", 25, 0.5)))
	g.ClosePosition(id, 0.1, -51)

	st := g.GetStatus()
	assert.True(t, st.Halted)
	assert.Equal(t, 0, st.Positions)
	assert.Equal(t, 2, st.DailyTrades)

	for i := 0; i < 3; i++ {
		clk.Advance(time.Hour)
		d := g.CheckTrade(buy("x", 10, 0.5))
		assert.False(t, d.Allowed)
		assert.Equal(t, ReasonHalted, d.Reason)
	}
	assert.True(t, g.IsHalted())

	// Next UTC day.
	clk.Advance(24 * time.Hour)
	assert.False(t, g.IsHalted())
	st = g.GetStatus()
	assert.Equal(t, 0.0, st.DailyPnL)
	assert.Equal(t, 0, st.DailyTrades)
	assert.True(t, g.CheckTrade(buy("x", 10, 0.5)).Allowed)
}

func TestDailyLossDetectedOnCheck(t *testing.T) {
	g, _ := newGate(t, DefaultConfig())
	// Losses booked against an unknown id still count.
	g.ClosePosition("missing", 0, -50)

	d := g.CheckTrade(buy("m", 10, 0.5))
	assert.Equal(t, ReasonHalted, d.Reason)
	assert.True(t, g.IsHalted())
}

func TestDailyTradeLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DailyTradeLimit = 2
	g, clk := newGate(t, cfg)

	id := g.RegisterTrade(fill(buy("m", 10, 0.5)))
	g.ClosePosition(id, 0.6, 2)
	clk.Advance(time.Minute)

	d := g.CheckTrade(buy("m", 10, 0.5))
	assert.Equal(t, ReasonDailyTradeLimit, d.Reason)
}

func TestRegisterSellDoesNotCreateEntry(t *testing.T) {
	g, _ := newGate(t, DefaultConfig())
	g.RegisterTrade(Fill{InstrumentID: "m", Side: domain.OrderSideSell, Price: 0.5, Notional: 10})

	st := g.GetStatus()
	assert.Equal(t, 0, st.Positions)
	assert.Equal(t, 1, st.DailyTrades)
	assert.Equal(t, ReasonGlobalCooldown, g.CheckTrade(buy("n", 10, 0.5)).Reason)
}

func TestAdmitNeverExceedsExposure(t *testing.T) {
	cfg := DefaultConfig()
	cfg.GlobalCooldown = 0
	cfg.TradeCooldown = 0
	cfg.MaxPositions = 100
	cfg.MaxTotalExposure = 100
	cfg.MaxPerMarket = 30
	g, _ := newGate(t, cfg)

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := buy(string(rune('a'+i%5)), 10, 0.5)
			_, _, err := g.Admit(context.Background(), req, func(context.Context) (Fill, error) {
				return fill(req), nil
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	st := g.GetStatus()
	assert.LessOrEqual(t, st.TotalExposure, cfg.MaxTotalExposure)
	assert.Equal(t, 10, st.Positions)

	perMarket := map[string]float64{}
	for _, e := range g.Positions() {
		perMarket[e.InstrumentID] += e.Notional
	}
	for m, v := range perMarket {
		assert.LessOrEqual(t, v, cfg.MaxPerMarket, m)
	}
}

func TestAdmitReservesWhileOrderInFlight(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxTotalExposure = 15
	g, _ := newGate(t, cfg)

	started := make(chan struct{})
	release := make(chan struct{})
	type result struct {
		id  string
		err error
	}
	done := make(chan result, 1)
	req := buy("m", 10, 0.5)
	go func() {
		_, id, err := g.Admit(context.Background(), req, func(context.Context) (Fill, error) {
			close(started)
			<-release
			return fill(req), nil
		})
		done <- result{id, err}
	}()

	<-started
	assert.Equal(t, 1, g.GetStatus().InFlight)

	// The gate stays responsive while the venue call is outstanding.
	assert.Equal(t, ReasonGlobalCooldown, g.CheckTrade(buy("n", 5, 0.5)).Reason)
	assert.Equal(t, 0, g.GetStatus().Positions)

	close(release)
	select {
	case r := <-done:
		require.NoError(t, r.err)
		assert.NotEmpty(t, r.id)
	case <-time.After(5 * time.Second):
		t.Fatal("admit did not return")
	}
	assert.Zero(t, g.GetStatus().InFlight)
	assert.Equal(t, 1, g.GetStatus().Positions)
}

func TestAdmitReservationCountsAgainstLimits(t *testing.T) {
	cfg := DefaultConfig()
	cfg.GlobalCooldown = 0
	cfg.TradeCooldown = 0
	cfg.MaxTotalExposure = 15
	g, _ := newGate(t, cfg)

	release := make(chan struct{})
	started := make(chan struct{})
	done := make(chan struct{})
	req := buy("m", 10, 0.5)
	go func() {
		defer close(done)
		_, _, _ = g.Admit(context.Background(), req, func(context.Context) (Fill, error) {
			close(started)
			<-release
			return Fill{}, errors.New("venue timeout")
		})
	}()
	<-started

	assert.Equal(t, ReasonTotalExposure, g.CheckTrade(buy("n", 10, 0.5)).Reason)
	assert.True(t, g.CheckTrade(buy("n", 5, 0.5)).Allowed)

	close(release)
	<-done
	assert.Zero(t, g.GetStatus().InFlight)
	assert.True(t, g.CheckTrade(buy("n", 10, 0.5)).Allowed, "a failed order frees its reservation")
}

func TestAdmitExecutionFailureRegistersNothing(t *testing.T) {
	g, _ := newGate(t, DefaultConfig())
	boom := errors.New("rejected by venue")

	d, id, err := g.Admit(context.Background(), buy("m", 10, 0.5), func(context.Context) (Fill, error) {
		return Fill{}, boom
	})
	assert.True(t, d.Allowed)
	assert.Empty(t, id)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, g.GetStatus().DailyTrades)
	assert.True(t, g.CheckTrade(buy("m", 10, 0.5)).Allowed)
}

func TestAdmitRejectionSkipsExecution(t *testing.T) {
	g, _ := newGate(t, DefaultConfig())
	called := false
	d, id, err := g.Admit(context.Background(), buy("m", 100, 0.5), func(context.Context) (Fill, error) {
		called = true
		return Fill{}, nil
	})
	require.NoError(t, err)
	assert.False(t, called)
	assert.False(t, d.Allowed)
	assert.Empty(t, id)
}

func TestPersistenceRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "risk.json")
	store := NewFileStore(path)

	g, clk := newGate(t, DefaultConfig(), WithStore(store))
	id := g.RegisterTrade(fill(buy("m1", 10, 0.4)))
	clk.Advance(time.Minute)
	closed := g.RegisterTrade(fill(buy("m2", 10, 0.4)))
	g.ClosePosition(closed, 0.5, 2.5)

	restored := New(DefaultConfig(), discard(), WithClock(clk.Now), WithStore(store))
	st := restored.GetStatus()
	assert.Equal(t, 1, st.Positions)
	assert.InDelta(t, 2.5, st.DailyPnL, 1e-9)
	assert.Equal(t, 3, st.DailyTrades)

	entries := restored.Positions()
	require.Len(t, entries, 1)
	assert.Equal(t, id, entries[0].ID)
	assert.Equal(t, "m1", entries[0].InstrumentID)

	// Cooldown clocks are not persisted.
	assert.True(t, restored.CheckTrade(buy("m1", 10, 0.5)).Allowed)
}

func TestPersistedCountersFromEarlierDayAreDropped(t *testing.T) {
	path := filepath.Join(t.TempDir(), "risk.json")
	store := NewFileStore(path)

	g, clk := newGate(t, DefaultConfig(), WithStore(store))
	g.RegisterTrade(fill(buy("m1", 10, 0.4)))
	g.ClosePosition("gone", 0, -60)
	require.True(t, g.IsHalted())

	clk.Advance(24 * time.Hour)
	restored := New(DefaultConfig(), discard(), WithClock(clk.Now), WithStore(store))
	st := restored.GetStatus()
	assert.False(t, st.Halted)
	assert.Equal(t, 0, st.DailyTrades)
	assert.Equal(t, 0.0, st.DailyPnL)
	assert.Equal(t, 1, st.Positions)
}
