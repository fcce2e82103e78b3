// Package risk implements the admission gate and position ledger shared by
// every strategy instance in the process.
package risk

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/updownbot/internal/domain"
	"github.com/alanyoungcy/updownbot/internal/metrics"
)

// Config holds the limits enforced by the gate. Amounts are USDC notionals.
type Config struct {
	MinTrade         float64
	MaxTrade         float64
	MaxPositions     int
	MaxPerMarket     float64
	MaxTotalExposure float64
	DailyLossLimit   float64
	DailyTradeLimit  int
	TradeCooldown    time.Duration
	GlobalCooldown   time.Duration
	MinPrice         float64
	MaxPrice         float64
}

// DefaultConfig returns the stock limits.
func DefaultConfig() Config {
	return Config{
		MinTrade:         5,
		MaxTrade:         25,
		MaxPositions:     10,
		MaxPerMarket:     50,
		MaxTotalExposure: 200,
		DailyLossLimit:   50,
		DailyTradeLimit:  50,
		TradeCooldown:    30 * time.Second,
		GlobalCooldown:   5 * time.Second,
		MinPrice:         0.05,
		MaxPrice:         0.95,
	}
}

// TradeRequest describes a prospective trade.
type TradeRequest struct {
	Strategy     string
	InstrumentID string
	TokenID      string
	Side         domain.OrderSide
	Price        float64
	Notional     float64
}

// Fill describes a confirmed execution.
type Fill struct {
	Strategy     string
	Label        string
	InstrumentID string
	TokenID      string
	Outcome      domain.Outcome
	Side         domain.OrderSide
	Price        float64
	Shares       float64
	Notional     float64
	OrderID      string
}

// Entry is one open position in the ledger.
type Entry struct {
	ID           string           `json:"id"`
	Strategy     string           `json:"strategy"`
	Label        string           `json:"label"`
	InstrumentID string           `json:"instrument_id"`
	TokenID      string           `json:"token_id"`
	Outcome      domain.Outcome   `json:"outcome"`
	Side         domain.OrderSide `json:"side"`
	EntryPrice   float64          `json:"entry_price"`
	Shares       float64          `json:"shares"`
	Notional     float64          `json:"notional"`
	OrderID      string           `json:"order_id"`
	EntryTime    time.Time        `json:"entry_time"`
}

// Status is a point-in-time summary of the gate.
type Status struct {
	Halted          bool    `json:"halted"`
	HaltReason      string  `json:"halt_reason"`
	Positions       int     `json:"positions"`
	InFlight        int     `json:"in_flight"`
	MaxPositions    int     `json:"max_positions"`
	TotalExposure   float64 `json:"total_exposure"`
	MaxExposure     float64 `json:"max_exposure"`
	DailyPnL        float64 `json:"daily_pnl"`
	DailyLossLimit  float64 `json:"daily_loss_limit"`
	DailyTrades     int     `json:"daily_trades"`
	DailyTradeLimit int     `json:"daily_trade_limit"`
}

// Option configures a Gate.
type Option func(*Gate)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) { g.now = now }
}

// WithStore enables persistence.
func WithStore(s Store) Option {
	return func(g *Gate) { g.store = s }
}

// Gate is the admission controller. All methods are safe for concurrent use.
type Gate struct {
	cfg    Config
	store  Store
	logger *slog.Logger
	now    func() time.Time

	mu               sync.Mutex
	entries          map[string]Entry
	reserved         map[string]TradeRequest // admitted orders still at the venue
	dayStart         time.Time
	dailyPnL         float64
	dailyTrades      int
	halted           bool
	haltReason       string
	lastTrade        time.Time
	lastByInstrument map[string]time.Time
}

// New creates a Gate and restores any persisted state.
func New(cfg Config, logger *slog.Logger, opts ...Option) *Gate {
	g := &Gate{
		cfg:              cfg,
		logger:           logger.With(slog.String("component", "risk_gate")),
		now:              time.Now,
		entries:          make(map[string]Entry),
		reserved:         make(map[string]TradeRequest),
		lastByInstrument: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.dayStart = dayStart(g.now())
	g.load()
	g.publishLocked()
	return g
}

// Config returns the configured limits.
func (g *Gate) Config() Config {
	return g.cfg
}

func dayStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func (g *Gate) load() {
	if g.store == nil {
		return
	}
	st, err := g.store.Load()
	if err != nil {
		g.logger.Warn("failed to load risk state", slog.String("error", err.Error()))
		return
	}
	if st == nil {
		return
	}
	for id, e := range st.Positions {
		e.ID = id
		g.entries[id] = e
	}
	if !st.DayStart.Before(g.dayStart) {
		g.dailyPnL = st.DailyPnL
		g.dailyTrades = st.DailyTrades
		g.halted = st.Halted
		g.haltReason = st.HaltReason
	}
	g.logger.Info("risk state restored",
		slog.Int("positions", len(g.entries)),
		slog.Float64("daily_pnl", g.dailyPnL),
		slog.Int("daily_trades", g.dailyTrades),
		slog.Bool("halted", g.halted),
	)
}

// rolloverLocked resets the daily counters when the UTC day has changed.
func (g *Gate) rolloverLocked(now time.Time) {
	today := dayStart(now)
	if !today.After(g.dayStart) {
		return
	}
	g.logger.Info("new trading day, resetting daily counters",
		slog.Time("day_start", today),
		slog.Float64("previous_pnl", g.dailyPnL),
		slog.Int("previous_trades", g.dailyTrades),
	)
	g.dayStart = today
	g.dailyPnL = 0
	g.dailyTrades = 0
	g.halted = false
	g.haltReason = ""
}

// exposureLocked sums ledger and reserved buy notionals.
func (g *Gate) exposureLocked(instrumentID string) (total, market float64) {
	for _, e := range g.entries {
		total += e.Notional
		if e.InstrumentID == instrumentID {
			market += e.Notional
		}
	}
	for _, r := range g.reserved {
		if r.Side != domain.OrderSideBuy {
			continue
		}
		total += r.Notional
		if r.InstrumentID == instrumentID {
			market += r.Notional
		}
	}
	return total, market
}

func (g *Gate) reservedBuysLocked() int {
	n := 0
	for _, r := range g.reserved {
		if r.Side == domain.OrderSideBuy {
			n++
		}
	}
	return n
}

// CheckTrade decides whether req may proceed. It never mutates the ledger or
// the cooldown clocks; crossing the daily loss limit sets the halt flag.
func (g *Gate) CheckTrade(req TradeRequest) Decision {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.decideLocked(req)
}

func (g *Gate) decideLocked(req TradeRequest) Decision {
	d := g.checkLocked(req)
	if !d.Allowed {
		metrics.RiskRejects.WithLabelValues(string(d.Reason)).Inc()
		g.logger.Debug("trade rejected",
			slog.String("strategy", req.Strategy),
			slog.String("instrument_id", req.InstrumentID),
			slog.String("reason", string(d.Reason)),
			slog.String("detail", d.Detail),
		)
	}
	return d
}

func (g *Gate) checkLocked(req TradeRequest) Decision {
	now := g.now()
	g.rolloverLocked(now)

	if g.halted {
		return reject(ReasonHalted, g.haltReason)
	}
	if g.dailyPnL <= -g.cfg.DailyLossLimit {
		g.haltLocked()
		return reject(ReasonDailyLossLimit, g.haltReason)
	}
	if trades := g.dailyTrades + len(g.reserved); trades >= g.cfg.DailyTradeLimit {
		return reject(ReasonDailyTradeLimit, fmt.Sprintf("daily trade limit reached: %d", trades))
	}
	if req.Notional < g.cfg.MinTrade {
		return reject(ReasonSizeTooSmall, fmt.Sprintf("trade size $%.2f below minimum $%.2f", req.Notional, g.cfg.MinTrade))
	}
	if req.Notional > g.cfg.MaxTrade {
		return reject(ReasonSizeTooLarge, fmt.Sprintf("trade size $%.2f above maximum $%.2f", req.Notional, g.cfg.MaxTrade))
	}
	if req.Price < g.cfg.MinPrice {
		return reject(ReasonPriceTooLow, fmt.Sprintf("price %.3f below minimum %.3f", req.Price, g.cfg.MinPrice))
	}
	if req.Price > g.cfg.MaxPrice {
		return reject(ReasonPriceTooHigh, fmt.Sprintf("price %.3f above maximum %.3f", req.Price, g.cfg.MaxPrice))
	}
	if req.Side == domain.OrderSideBuy {
		if open := len(g.entries) + g.reservedBuysLocked(); open >= g.cfg.MaxPositions {
			return reject(ReasonMaxPositions, fmt.Sprintf("max positions reached: %d", open))
		}
		total, market := g.exposureLocked(req.InstrumentID)
		if market+req.Notional > g.cfg.MaxPerMarket {
			return reject(ReasonMarketExposure, fmt.Sprintf("market exposure $%.2f + $%.2f exceeds $%.2f", market, req.Notional, g.cfg.MaxPerMarket))
		}
		if total+req.Notional > g.cfg.MaxTotalExposure {
			return reject(ReasonTotalExposure, fmt.Sprintf("total exposure $%.2f + $%.2f exceeds $%.2f", total, req.Notional, g.cfg.MaxTotalExposure))
		}
	}
	// An order still at the venue starts the cooldowns the moment it fills.
	for _, r := range g.reserved {
		if g.cfg.GlobalCooldown > 0 {
			return reject(ReasonGlobalCooldown, "global cooldown: order in flight")
		}
		if g.cfg.TradeCooldown > 0 && r.InstrumentID == req.InstrumentID {
			return reject(ReasonMarketCooldown, "market cooldown: order in flight")
		}
	}
	if !g.lastTrade.IsZero() {
		if since := now.Sub(g.lastTrade); since < g.cfg.GlobalCooldown {
			return reject(ReasonGlobalCooldown, fmt.Sprintf("global cooldown: %s remaining", (g.cfg.GlobalCooldown - since).Round(time.Millisecond)))
		}
	}
	if last, ok := g.lastByInstrument[req.InstrumentID]; ok {
		if since := now.Sub(last); since < g.cfg.TradeCooldown {
			return reject(ReasonMarketCooldown, fmt.Sprintf("market cooldown: %s remaining", (g.cfg.TradeCooldown - since).Round(time.Millisecond)))
		}
	}
	return allow()
}

func (g *Gate) haltLocked() {
	if g.halted {
		return
	}
	g.halted = true
	g.haltReason = fmt.Sprintf("daily loss limit hit: $%.2f", g.dailyPnL)
	g.logger.Error("trading halted", slog.String("reason", g.haltReason))
	metrics.Halted.Set(1)
}

// RegisterTrade records a confirmed fill and returns its ledger id. Only BUY
// fills create a ledger entry; every fill advances the cooldown clocks and the
// daily trade count.
func (g *Gate) RegisterTrade(f Fill) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.registerLocked(f)
}

func (g *Gate) registerLocked(f Fill) string {
	now := g.now()
	g.rolloverLocked(now)

	id := uuid.NewString()
	if f.Side == domain.OrderSideBuy {
		g.entries[id] = Entry{
			ID:           id,
			Strategy:     f.Strategy,
			Label:        f.Label,
			InstrumentID: f.InstrumentID,
			TokenID:      f.TokenID,
			Outcome:      f.Outcome,
			Side:         f.Side,
			EntryPrice:   f.Price,
			Shares:       f.Shares,
			Notional:     f.Notional,
			OrderID:      f.OrderID,
			EntryTime:    now,
		}
	}
	g.lastTrade = now
	g.lastByInstrument[f.InstrumentID] = now
	g.dailyTrades++

	g.logger.Info("trade registered",
		slog.String("position_id", id),
		slog.String("strategy", f.Strategy),
		slog.String("instrument_id", f.InstrumentID),
		slog.String("side", string(f.Side)),
		slog.Float64("price", f.Price),
		slog.Float64("notional", f.Notional),
		slog.Int("daily_trades", g.dailyTrades),
	)

	g.persistLocked()
	g.publishLocked()
	return id
}

// ClosePosition removes a ledger entry and books its realized PnL. An unknown
// id still books the PnL and the trade.
func (g *Gate) ClosePosition(id string, exitPrice, realizedPnL float64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.rolloverLocked(g.now())

	e, ok := g.entries[id]
	delete(g.entries, id)
	g.dailyPnL += realizedPnL
	g.dailyTrades++

	attrs := []any{
		slog.String("position_id", id),
		slog.Float64("exit_price", exitPrice),
		slog.Float64("pnl", realizedPnL),
		slog.Float64("daily_pnl", g.dailyPnL),
	}
	if ok {
		attrs = append(attrs, slog.String("strategy", e.Strategy), slog.Float64("entry_price", e.EntryPrice))
	}
	g.logger.Info("position closed", attrs...)

	if g.dailyPnL <= -g.cfg.DailyLossLimit {
		g.haltLocked()
	}
	g.persistLocked()
	g.publishLocked()
}

// Admit checks req and, when allowed, reserves its exposure, runs execute
// without holding the gate and registers the fill it returns. Reservations
// count against every limit, so concurrent strategies cannot jointly exceed
// them, and a slow venue call never blocks other callers. The returned id is
// empty unless a fill was registered.
func (g *Gate) Admit(ctx context.Context, req TradeRequest, execute func(context.Context) (Fill, error)) (Decision, string, error) {
	g.mu.Lock()
	d := g.decideLocked(req)
	if !d.Allowed {
		g.mu.Unlock()
		return d, "", nil
	}
	token := uuid.NewString()
	g.reserved[token] = req
	g.mu.Unlock()

	fill, err := execute(ctx)

	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.reserved, token)
	if err != nil {
		return d, "", err
	}
	return d, g.registerLocked(fill), nil
}


// IsHalted reports whether new entries are blocked.
func (g *Gate) IsHalted() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rolloverLocked(g.now())
	return g.halted
}

// GetStatus returns a summary of the ledger and session.
func (g *Gate) GetStatus() Status {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rolloverLocked(g.now())

	total, _ := g.exposureLocked("")
	return Status{
		Halted:          g.halted,
		HaltReason:      g.haltReason,
		Positions:       len(g.entries),
		InFlight:        len(g.reserved),
		MaxPositions:    g.cfg.MaxPositions,
		TotalExposure:   total,
		MaxExposure:     g.cfg.MaxTotalExposure,
		DailyPnL:        g.dailyPnL,
		DailyLossLimit:  g.cfg.DailyLossLimit,
		DailyTrades:     g.dailyTrades,
		DailyTradeLimit: g.cfg.DailyTradeLimit,
	}
}

// Positions returns the open ledger ordered by entry time.
func (g *Gate) Positions() []Entry {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]Entry, 0, len(g.entries))
	for _, e := range g.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EntryTime.Equal(out[j].EntryTime) {
			return out[i].ID < out[j].ID
		}
		return out[i].EntryTime.Before(out[j].EntryTime)
	})
	return out
}

func (g *Gate) persistLocked() {
	if g.store == nil {
		return
	}
	positions := make(map[string]Entry, len(g.entries))
	for id, e := range g.entries {
		positions[id] = e
	}
	st := State{
		Positions:   positions,
		DailyPnL:    g.dailyPnL,
		DailyTrades: g.dailyTrades,
		DayStart:    g.dayStart,
		Halted:      g.halted,
		HaltReason:  g.haltReason,
		SavedAt:     g.now().UTC(),
	}
	if err := g.store.Save(st); err != nil {
		g.logger.Warn("failed to persist risk state", slog.String("error", err.Error()))
	}
}

func (g *Gate) publishLocked() {
	total, _ := g.exposureLocked("")
	metrics.OpenPositions.Set(float64(len(g.entries)))
	metrics.TotalExposure.Set(total)
	metrics.DailyPnL.Set(g.dailyPnL)
	metrics.Halted.Set(metrics.BoolGauge(g.halted))
}
