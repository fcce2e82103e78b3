// Package executor runs the entry and exit state machines of one strategy
// instance and places the resulting orders.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/updownbot/internal/domain"
	"github.com/alanyoungcy/updownbot/internal/fairvalue"
	"github.com/alanyoungcy/updownbot/internal/market"
	"github.com/alanyoungcy/updownbot/internal/metrics"
	"github.com/alanyoungcy/updownbot/internal/risk"
)

// priceEpsilon absorbs float noise in threshold comparisons on cent prices.
const priceEpsilon = 1e-9

// minSellPrice is the lowest limit an exit order is sent at.
const minSellPrice = 0.01

// Config parameterizes one strategy instance.
type Config struct {
	Strategy           string
	Sensitivity        float64
	EdgeThreshold      float64
	TradeSize          float64
	TakeProfit         float64
	StopLoss           float64
	DryRun             bool
	EntriesEnabled     bool
	MinTimeLeft        time.Duration
	EntryCooldown      time.Duration
	ClosingWindow      time.Duration
	TrailingActivation float64
	TrailingGiveback   float64
	MinReferenceTicks  int
	EntrySlippage      float64
	MaxBuyPrice        float64
	ExitSlippage       float64
	ExitRetrySlippage  float64
	OrderTimeout       time.Duration
}

// DefaultConfig returns the momentum defaults.
func DefaultConfig() Config {
	return Config{
		Strategy:           "momentum",
		Sensitivity:        300,
		EdgeThreshold:      0.04,
		TradeSize:          10,
		TakeProfit:         0.10,
		StopLoss:           0.08,
		EntriesEnabled:     true,
		MinTimeLeft:        30 * time.Second,
		EntryCooldown:      20 * time.Second,
		ClosingWindow:      60 * time.Second,
		TrailingActivation: 0.05,
		TrailingGiveback:   0.03,
		MinReferenceTicks:  5,
		EntrySlippage:      0.02,
		MaxBuyPrice:        0.95,
		ExitSlippage:       0.01,
		ExitRetrySlippage:  0.03,
		OrderTimeout:       15 * time.Second,
	}
}

// Stats counts decisions since start.
type Stats struct {
	EdgeChecks int64 `json:"edge_checks"`
	Entries    int64 `json:"entries"`
	DryRuns    int64 `json:"dry_runs"`
	Rejections int64 `json:"rejections"`
	Failures   int64 `json:"failures"`
	Exits      int64 `json:"exits"`
	StuckExits int64 `json:"stuck_exits"`
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithClock replaces time.Now for time-left and cooldown calculations.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// WithJournal records every decision, trade and position.
func WithJournal(j domain.Journal) Option {
	return func(c *Coordinator) {
		if j != nil {
			c.journal = j
		}
	}
}

// WithAlerter sends operator notifications.
func WithAlerter(a domain.Alerter) Option {
	return func(c *Coordinator) { c.alerter = a }
}

// Coordinator owns the positions of one strategy instance. Feed handlers call
// OnReference and OnBook; the supervisor calls ForceClose before rollover.
type Coordinator struct {
	cfg     Config
	model   fairvalue.Model
	board   *market.Board
	gate    *risk.Gate
	placer  OrderPlacer
	journal domain.Journal
	alerter domain.Alerter
	logger  *slog.Logger
	now     func() time.Time

	// mu guards positions, entering, cooldowns and stats. Lock order is
	// coordinator, then board, then gate; no network call happens under mu.
	mu        sync.Mutex
	positions map[string]*domain.Position // by symbol
	entering  map[string]bool
	cooldowns *Cooldowns
	stats     Stats
}

// New creates a coordinator trading the instruments on board.
func New(cfg Config, board *market.Board, gate *risk.Gate, placer OrderPlacer, logger *slog.Logger, opts ...Option) *Coordinator {
	if cfg.OrderTimeout <= 0 {
		cfg.OrderTimeout = 15 * time.Second
	}
	c := &Coordinator{
		cfg:       cfg,
		model:     fairvalue.Model{Sensitivity: cfg.Sensitivity},
		board:     board,
		gate:      gate,
		placer:    placer,
		journal:   nopJournal{},
		logger:    logger.With(slog.String("component", "coordinator"), slog.String("strategy", cfg.Strategy)),
		now:       time.Now,
		positions: make(map[string]*domain.Position),
		entering:  make(map[string]bool),
		cooldowns: NewCooldowns(cfg.EntryCooldown),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Strategy returns the instance name.
func (c *Coordinator) Strategy() string { return c.cfg.Strategy }

// Config returns the instance parameters.
func (c *Coordinator) Config() Config { return c.cfg }

// Model returns the fair-value model.
func (c *Coordinator) Model() fairvalue.Model { return c.model }

// Board returns the market board the coordinator trades.
func (c *Coordinator) Board() *market.Board { return c.board }

// OnReference applies a reference trade and evaluates the instrument.
func (c *Coordinator) OnReference(ctx context.Context, tick domain.ReferenceTick) {
	st, ok := c.board.ApplyReference(tick)
	if !ok {
		return
	}
	c.evaluate(ctx, st)
}

// OnBook applies a book update and evaluates the instrument it belongs to.
func (c *Coordinator) OnBook(ctx context.Context, u domain.BookUpdate) {
	st, found, _ := c.board.ApplyBook(u)
	if !found {
		return
	}
	c.evaluate(ctx, st)
}

func (c *Coordinator) evaluate(ctx context.Context, st domain.MarketState) {
	c.checkExit(ctx, st)
	c.checkEntry(ctx, st)
}

// --------------------------------------------------------------------------
// Entry
// --------------------------------------------------------------------------

func (c *Coordinator) checkEntry(ctx context.Context, st domain.MarketState) {
	if !c.cfg.EntriesEnabled || !st.HasData(c.cfg.MinReferenceTicks) {
		return
	}
	now := c.now()
	left := st.TimeLeft(now)
	if left <= c.cfg.MinTimeLeft {
		return
	}

	c.mu.Lock()
	if _, held := c.positions[st.Symbol]; held || c.entering[st.Symbol] || c.cooldowns.Active(st.Symbol, now) {
		c.mu.Unlock()
		return
	}
	if c.gate.IsHalted() {
		c.mu.Unlock()
		return
	}
	c.stats.EdgeChecks++
	metrics.EdgeChecks.WithLabelValues(c.cfg.Strategy).Inc()
	opp, ok := c.model.Detect(st)
	if !ok || opp.Edge+priceEpsilon < c.cfg.EdgeThreshold {
		c.mu.Unlock()
		return
	}
	c.entering[st.Symbol] = true
	c.mu.Unlock()

	c.enter(ctx, st, opp, left)
}

func (c *Coordinator) enter(ctx context.Context, st domain.MarketState, opp fairvalue.Opportunity, left time.Duration) {
	now := c.now()
	decisionID := uuid.NewString()
	shares := c.cfg.TradeSize / opp.Ask
	limit := math.Min(opp.Ask+c.cfg.EntrySlippage, c.cfg.MaxBuyPrice)

	log := c.logger.With(
		slog.String("decision_id", decisionID),
		slog.String("symbol", st.Symbol),
		slog.String("instrument_id", st.ID),
		slog.String("outcome", string(opp.Outcome)),
	)
	log.InfoContext(ctx, "edge detected",
		slog.Float64("edge", opp.Edge),
		slog.Float64("fair", opp.Fair),
		slog.Float64("ask", opp.Ask),
		slog.Float64("reference", st.Reference),
		slog.Float64("move_pct", st.Move()*100),
		slog.Duration("time_left", left),
	)

	decision := domain.Decision{
		ID:           decisionID,
		Time:         now,
		Strategy:     c.cfg.Strategy,
		Action:       domain.OrderSideBuy,
		Symbol:       st.Symbol,
		Label:        st.Label(),
		InstrumentID: st.ID,
		TokenID:      opp.TokenID,
		Outcome:      opp.Outcome,
		Signals: map[string]any{
			"edge":        opp.Edge,
			"fair":        opp.Fair,
			"ask":         opp.Ask,
			"limit":       limit,
			"shares":      shares,
			"reference":   st.Reference,
			"baseline":    st.Baseline,
			"move":        st.Move(),
			"time_left_s": left.Seconds(),
		},
	}
	c.record(ctx, "snapshot", func(ctx context.Context) error {
		return c.journal.LogSnapshot(ctx, c.snapshot(decisionID, st, now))
	})

	if c.cfg.DryRun {
		decision.Result = domain.DecisionDryRun
		c.record(ctx, "decision", func(ctx context.Context) error { return c.journal.LogDecision(ctx, decision) })
		c.mu.Lock()
		c.cooldowns.Mark(st.Symbol, c.now())
		delete(c.entering, st.Symbol)
		c.stats.DryRuns++
		c.mu.Unlock()
		log.InfoContext(ctx, "dry run, no order placed", slog.Float64("limit", limit), slog.Float64("shares", shares))
		return
	}

	req := risk.TradeRequest{
		Strategy:     c.cfg.Strategy,
		InstrumentID: st.ID,
		TokenID:      opp.TokenID,
		Side:         domain.OrderSideBuy,
		Price:        opp.Ask,
		Notional:     c.cfg.TradeSize,
	}
	order := domain.OrderRequest{
		Strategy: c.cfg.Strategy,
		TokenID:  opp.TokenID,
		Side:     domain.OrderSideBuy,
		Type:     domain.OrderTypeGTC,
		Price:    limit,
		Size:     shares,
	}

	// The order outlives a shutdown signal so a submitted entry is never
	// left unrecorded.
	orderCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.OrderTimeout)
	defer cancel()

	var result domain.OrderResult
	verdict, positionID, err := c.gate.Admit(orderCtx, req, func(ctx context.Context) (risk.Fill, error) {
		res, err := c.placer.PlaceOrder(ctx, order)
		result = res
		if err != nil {
			return risk.Fill{}, err
		}
		if !res.Success {
			return risk.Fill{}, fmt.Errorf("%w: %s", domain.ErrOrderRejected, res.Message)
		}
		return risk.Fill{
			Strategy:     c.cfg.Strategy,
			Label:        st.Label(),
			InstrumentID: st.ID,
			TokenID:      opp.TokenID,
			Outcome:      opp.Outcome,
			Side:         domain.OrderSideBuy,
			Price:        opp.Ask,
			Shares:       shares,
			Notional:     c.cfg.TradeSize,
			OrderID:      res.OrderID,
		}, nil
	})

	switch {
	case !verdict.Allowed:
		decision.Result = domain.DecisionRejected
		decision.RejectionReason = string(verdict.Reason)
		decision.Notes = verdict.Detail
		c.finishEntry(st.Symbol, nil, true)
		log.InfoContext(ctx, "entry rejected", slog.String("reason", string(verdict.Reason)), slog.String("detail", verdict.Detail))

	case err != nil:
		decision.Result = domain.DecisionFailed
		decision.Notes = err.Error()
		c.finishEntry(st.Symbol, nil, false)
		c.recordTrade(orderCtx, decisionID, st, opp.Outcome, order, result)
		log.WarnContext(ctx, "entry order failed", slog.String("error", err.Error()))

	default:
		decision.Result = domain.DecisionExecuted
		pos := &domain.Position{
			ID:           positionID,
			Strategy:     c.cfg.Strategy,
			Symbol:       st.Symbol,
			InstrumentID: st.ID,
			Label:        st.Label(),
			Outcome:      opp.Outcome,
			TokenID:      opp.TokenID,
			EntryPrice:   opp.Ask,
			EntryFair:    opp.Fair,
			EntryEdge:    opp.Edge,
			Shares:       shares,
			Notional:     c.cfg.TradeSize,
			OrderID:      result.OrderID,
			HighWater:    opp.Ask,
			LowWater:     opp.Ask,
			LastBid:      st.Bid(opp.Outcome),
			Status:       domain.PositionStatusOpen,
			OpenedAt:     c.now(),
		}
		c.finishEntry(st.Symbol, pos, false)
		metrics.EntryEdge.WithLabelValues(c.cfg.Strategy).Observe(opp.Edge)
		c.recordTrade(orderCtx, decisionID, st, opp.Outcome, order, result)
		c.record(orderCtx, "open position", func(ctx context.Context) error { return c.journal.OpenPosition(ctx, *pos) })
		log.InfoContext(ctx, "position opened",
			slog.String("position_id", positionID),
			slog.String("order_id", result.OrderID),
			slog.Float64("entry_price", opp.Ask),
			slog.Float64("shares", shares),
		)
		c.alert(orderCtx, "entry_filled",
			fmt.Sprintf("%s entered %s %s", c.cfg.Strategy, st.Symbol, opp.Outcome),
			fmt.Sprintf("%.2f shares @ %.3f, edge %.3f (fair %.3f)", shares, opp.Ask, opp.Edge, opp.Fair))
	}
	c.record(orderCtx, "decision", func(ctx context.Context) error { return c.journal.LogDecision(ctx, decision) })
}

// finishEntry clears the in-flight marker and, on a fill, installs the
// position and starts the entry cooldown. Rejections and failures leave the
// cooldown untouched.
func (c *Coordinator) finishEntry(symbol string, pos *domain.Position, rejected bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entering, symbol)
	if pos == nil {
		if rejected {
			c.stats.Rejections++
		} else {
			c.stats.Failures++
		}
		return
	}
	c.positions[symbol] = pos
	c.cooldowns.Mark(symbol, c.now())
	c.stats.Entries++
}

// --------------------------------------------------------------------------
// Exit
// --------------------------------------------------------------------------

// exitReason returns the first exit trigger that fires for pos.
func (c *Coordinator) exitReason(pos domain.Position, bid float64, left time.Duration) (domain.ExitReason, bool) {
	if bid > 0 {
		gain := bid - pos.EntryPrice
		if gain >= c.cfg.TakeProfit-priceEpsilon {
			return domain.ExitTakeProfit, true
		}
		if gain <= -c.cfg.StopLoss+priceEpsilon {
			return domain.ExitStopLoss, true
		}
		if left > 0 && left <= c.cfg.ClosingWindow {
			return domain.ExitMarketClosing, true
		}
		if pos.HighWater-pos.EntryPrice >= c.cfg.TrailingActivation-priceEpsilon &&
			pos.HighWater-bid >= c.cfg.TrailingGiveback-priceEpsilon {
			return domain.ExitTrailingStop, true
		}
	}
	if left <= 0 {
		return domain.ExitMarketExpired, true
	}
	return "", false
}

func (c *Coordinator) checkExit(ctx context.Context, st domain.MarketState) {
	c.mu.Lock()
	pos, ok := c.positions[st.Symbol]
	if !ok || pos.Status != domain.PositionStatusOpen {
		c.mu.Unlock()
		return
	}
	if pos.InstrumentID != st.ID {
		// The instrument rolled over under the position; its market is gone.
		pos.Status = domain.PositionStatusClosing
		snap := *pos
		c.mu.Unlock()
		c.exit(ctx, snap, snap.LastBid, domain.ExitMarketExpired)
		return
	}

	// A crossed or emptied book marks nothing and only the expiry exit can fire.
	bid := st.ExitBid(pos.Outcome)
	extremes := false
	if bid > 0 {
		pos.LastBid = bid
		if bid > pos.HighWater {
			pos.HighWater = bid
			extremes = true
		}
		if bid < pos.LowWater {
			pos.LowWater = bid
			extremes = true
		}
	}
	reason, fire := c.exitReason(*pos, bid, st.TimeLeft(c.now()))
	if fire {
		pos.Status = domain.PositionStatusClosing
	}
	snap := *pos
	c.mu.Unlock()

	if bid <= 0 {
		// Only the expiry exit fires without a usable bid; sell at the last mark.
		bid = snap.LastBid
	}

	if extremes {
		c.record(ctx, "position extremes", func(ctx context.Context) error {
			return c.journal.UpdatePositionExtremes(ctx, snap.ID, snap.HighWater, snap.LowWater)
		})
	}
	if fire {
		c.exit(ctx, snap, bid, reason)
	}
}

// ForceClose exits the open position on symbol as market_expired. It reports
// whether a position was found. The supervisor calls it before an instrument
// is replaced.
func (c *Coordinator) ForceClose(ctx context.Context, symbol string) bool {
	c.mu.Lock()
	pos, ok := c.positions[symbol]
	if !ok || pos.Status != domain.PositionStatusOpen {
		c.mu.Unlock()
		return false
	}
	pos.Status = domain.PositionStatusClosing
	snap := *pos
	c.mu.Unlock()

	bid := snap.LastBid
	if st, ok := c.board.Snapshot(symbol); ok && st.ID == snap.InstrumentID {
		if b := st.ExitBid(snap.Outcome); b > 0 {
			bid = b
		}
	}
	c.exit(ctx, snap, bid, domain.ExitMarketExpired)
	return true
}

// exit sells pos at bid less slippage, retrying once deeper. A position that
// cannot be sold goes back to Open unless its market has expired.
func (c *Coordinator) exit(ctx context.Context, pos domain.Position, bid float64, reason domain.ExitReason) {
	log := c.logger.With(
		slog.String("position_id", pos.ID),
		slog.String("symbol", pos.Symbol),
		slog.String("outcome", string(pos.Outcome)),
		slog.String("reason", string(reason)),
	)
	log.InfoContext(ctx, "exit triggered",
		slog.Float64("bid", bid),
		slog.Float64("entry_price", pos.EntryPrice),
		slog.Float64("high_water", pos.HighWater),
	)

	orderCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.OrderTimeout)
	defer cancel()

	decisionID := uuid.NewString()
	st, _ := c.board.Snapshot(pos.Symbol)
	prices := []float64{
		math.Max(bid-c.cfg.ExitSlippage, minSellPrice),
		math.Max(bid-c.cfg.ExitRetrySlippage, minSellPrice),
	}
	var (
		sold    bool
		orderID string
		lastErr error
	)
	for i, price := range prices {
		order := domain.OrderRequest{
			Strategy: c.cfg.Strategy,
			TokenID:  pos.TokenID,
			Side:     domain.OrderSideSell,
			Type:     domain.OrderTypeGTC,
			Price:    price,
			Size:     pos.Shares,
		}
		res, err := c.placer.PlaceOrder(orderCtx, order)
		if err == nil && !res.Success {
			err = fmt.Errorf("%w: %s", domain.ErrOrderRejected, res.Message)
		}
		c.recordExitTrade(orderCtx, decisionID, pos, order, res)
		if err == nil {
			sold, orderID = true, res.OrderID
			break
		}
		lastErr = err
		log.WarnContext(ctx, "exit order failed", slog.Int("attempt", i+1), slog.Float64("price", price), slog.String("error", err.Error()))
	}

	decision := domain.Decision{
		ID:           decisionID,
		Time:         c.now(),
		Strategy:     c.cfg.Strategy,
		Action:       domain.OrderSideSell,
		Symbol:       pos.Symbol,
		Label:        pos.Label,
		InstrumentID: pos.InstrumentID,
		TokenID:      pos.TokenID,
		Outcome:      pos.Outcome,
		Signals: map[string]any{
			"bid":         bid,
			"entry_price": pos.EntryPrice,
			"high_water":  pos.HighWater,
			"reason":      string(reason),
		},
		Result: domain.DecisionExecuted,
	}
	if st.ID == pos.InstrumentID {
		c.record(orderCtx, "snapshot", func(ctx context.Context) error {
			return c.journal.LogSnapshot(ctx, c.snapshot(decisionID, st, decision.Time))
		})
	}

	if !sold && reason != domain.ExitMarketExpired {
		c.mu.Lock()
		if cur, ok := c.positions[pos.Symbol]; ok && cur.ID == pos.ID {
			cur.Status = domain.PositionStatusOpen
		}
		c.stats.StuckExits++
		c.mu.Unlock()

		decision.Result = domain.DecisionFailed
		decision.Notes = lastErr.Error()
		c.record(orderCtx, "decision", func(ctx context.Context) error { return c.journal.LogDecision(ctx, decision) })
		log.ErrorContext(ctx, "position stuck, both exit orders failed", slog.String("error", lastErr.Error()))
		c.alert(orderCtx, "position_stuck",
			fmt.Sprintf("%s stuck position %s %s", c.cfg.Strategy, pos.Symbol, pos.Outcome),
			fmt.Sprintf("%s exit failed twice at bid %.3f: %v", reason, bid, lastErr))
		return
	}

	pnl := (bid - pos.EntryPrice) * pos.Shares
	wasHalted := c.gate.IsHalted()
	c.gate.ClosePosition(pos.ID, bid, pnl)

	c.mu.Lock()
	if cur, ok := c.positions[pos.Symbol]; ok && cur.ID == pos.ID {
		delete(c.positions, pos.Symbol)
	}
	c.stats.Exits++
	c.mu.Unlock()
	metrics.PositionsClosed.WithLabelValues(c.cfg.Strategy, string(reason)).Inc()

	if !sold {
		decision.Result = domain.DecisionFailed
		decision.Notes = "market expired without a fill: " + lastErr.Error()
	}
	c.record(orderCtx, "decision", func(ctx context.Context) error { return c.journal.LogDecision(ctx, decision) })
	c.record(orderCtx, "close position", func(ctx context.Context) error {
		return c.journal.ClosePosition(ctx, domain.PositionClose{
			ID:          pos.ID,
			ExitPrice:   bid,
			RealizedPnL: pnl,
			Reason:      reason,
			OrderID:     orderID,
			ClosedAt:    c.now(),
		})
	})
	log.InfoContext(ctx, "position closed",
		slog.Bool("sold", sold),
		slog.Float64("exit_price", bid),
		slog.Float64("pnl", pnl),
		slog.Duration("held", c.now().Sub(pos.OpenedAt)),
	)
	c.alert(orderCtx, "position_closed",
		fmt.Sprintf("%s closed %s %s (%s)", c.cfg.Strategy, pos.Symbol, pos.Outcome, reason),
		fmt.Sprintf("exit %.3f entry %.3f pnl %+.2f", bid, pos.EntryPrice, pnl))
	if !wasHalted && c.gate.IsHalted() {
		c.alert(orderCtx, "trading_halted", "trading halted", c.gate.GetStatus().HaltReason)
	}
}

// --------------------------------------------------------------------------
// Recovery and inspection
// --------------------------------------------------------------------------

// Adopt takes over ledger entries of this strategy whose instrument is on the
// board, e.g. after a restart. It returns the ids it adopted.
func (c *Coordinator) Adopt(entries []risk.Entry) []string {
	byInstrument := make(map[string]domain.MarketState)
	for _, st := range c.board.Snapshots() {
		if st.ID != "" {
			byInstrument[st.ID] = st
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	var adopted []string
	for _, e := range entries {
		if e.Strategy != c.cfg.Strategy || e.Side != domain.OrderSideBuy {
			continue
		}
		st, ok := byInstrument[e.InstrumentID]
		if !ok {
			continue
		}
		if _, held := c.positions[st.Symbol]; held {
			continue
		}
		c.positions[st.Symbol] = &domain.Position{
			ID:           e.ID,
			Strategy:     e.Strategy,
			Symbol:       st.Symbol,
			InstrumentID: e.InstrumentID,
			Label:        e.Label,
			Outcome:      e.Outcome,
			TokenID:      e.TokenID,
			EntryPrice:   e.EntryPrice,
			Shares:       e.Shares,
			Notional:     e.Notional,
			OrderID:      e.OrderID,
			HighWater:    e.EntryPrice,
			LowWater:     e.EntryPrice,
			Status:       domain.PositionStatusOpen,
			OpenedAt:     e.EntryTime,
		}
		adopted = append(adopted, e.ID)
		c.logger.Info("adopted ledger position", slog.String("position_id", e.ID), slog.String("symbol", st.Symbol))
	}
	return adopted
}

// Positions returns copies of the open positions ordered by symbol.
func (c *Coordinator) Positions() []domain.Position {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.Position, 0, len(c.positions))
	for _, p := range c.positions {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Position returns the open position on symbol.
func (c *Coordinator) Position(symbol string) (domain.Position, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.positions[symbol]
	if !ok {
		return domain.Position{}, false
	}
	return *p, true
}

// Stats returns the decision counters.
func (c *Coordinator) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Cleanup drops expired cooldown keys.
func (c *Coordinator) Cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cooldowns.Cleanup(c.now())
}

// --------------------------------------------------------------------------
// Journal helpers
// --------------------------------------------------------------------------

func (c *Coordinator) snapshot(decisionID string, st domain.MarketState, at time.Time) domain.SnapshotRecord {
	fairUp, fairDown := c.model.Evaluate(st)
	return domain.SnapshotRecord{
		DecisionID:   decisionID,
		Time:         at,
		Strategy:     c.cfg.Strategy,
		Symbol:       st.Symbol,
		InstrumentID: st.ID,
		Reference:    st.Reference,
		Baseline:     st.Baseline,
		UpBid:        st.UpBid,
		UpAsk:        st.UpAsk,
		DownBid:      st.DownBid,
		DownAsk:      st.DownAsk,
		FairUp:       fairUp,
		FairDown:     fairDown,
		TimeLeft:     st.TimeLeft(at),
	}
}

func (c *Coordinator) recordTrade(ctx context.Context, decisionID string, st domain.MarketState, outcome domain.Outcome, order domain.OrderRequest, res domain.OrderResult) {
	status := res.Status
	if status == "" {
		status = domain.OrderStatusFailed
	}
	c.record(ctx, "trade", func(ctx context.Context) error {
		return c.journal.LogTrade(ctx, domain.TradeRecord{
			DecisionID:   decisionID,
			Time:         c.now(),
			Strategy:     c.cfg.Strategy,
			Side:         order.Side,
			InstrumentID: st.ID,
			TokenID:      order.TokenID,
			Outcome:      outcome,
			Price:        order.Price,
			Shares:       order.Size,
			Notional:     order.Notional(),
			OrderID:      res.OrderID,
			Status:       status,
			FillPrice:    res.FilledPrice,
		})
	})
}

func (c *Coordinator) recordExitTrade(ctx context.Context, decisionID string, pos domain.Position, order domain.OrderRequest, res domain.OrderResult) {
	st := domain.MarketState{Instrument: domain.Instrument{ID: pos.InstrumentID}}
	c.recordTrade(ctx, decisionID, st, pos.Outcome, order, res)
}

// record runs a journal write and logs its failure; journal errors never
// affect trading.
func (c *Coordinator) record(ctx context.Context, what string, fn func(context.Context) error) {
	if err := fn(ctx); err != nil {
		c.logger.Warn("journal write failed", slog.String("record", what), slog.String("error", err.Error()))
	}
}

func (c *Coordinator) alert(ctx context.Context, event, title, message string) {
	if c.alerter == nil {
		return
	}
	if err := c.alerter.Notify(ctx, event, title, message); err != nil {
		c.logger.Warn("alert failed", slog.String("event", event), slog.String("error", err.Error()))
	}
}

// nopJournal discards every record.
type nopJournal struct{}

func (nopJournal) LogDecision(context.Context, domain.Decision) error        { return nil }
func (nopJournal) LogTrade(context.Context, domain.TradeRecord) error        { return nil }
func (nopJournal) LogSnapshot(context.Context, domain.SnapshotRecord) error  { return nil }
func (nopJournal) OpenPosition(context.Context, domain.Position) error       { return nil }
func (nopJournal) ClosePosition(context.Context, domain.PositionClose) error { return nil }
func (nopJournal) UpdatePositionExtremes(context.Context, string, float64, float64) error {
	return nil
}
func (nopJournal) Close() error { return nil }
