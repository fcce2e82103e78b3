package domain

import (
	"context"
	"time"
)

// DecisionResult is the outcome of one entry or exit decision.
type DecisionResult string

const (
	DecisionExecuted DecisionResult = "executed"
	DecisionRejected DecisionResult = "rejected"
	DecisionFailed   DecisionResult = "failed"
	DecisionDryRun   DecisionResult = "dry_run"
)

// Decision is an audit record of a trading decision, including rejected ones.
type Decision struct {
	ID              string
	Time            time.Time
	Strategy        string
	Action          OrderSide
	Symbol          string
	Label           string
	InstrumentID    string
	TokenID         string
	Outcome         Outcome
	Signals         map[string]any
	Result          DecisionResult
	RejectionReason string
	Notes           string
}

// TradeRecord is an audit record of a submitted order.
type TradeRecord struct {
	DecisionID   string
	Time         time.Time
	Strategy     string
	Side         OrderSide
	InstrumentID string
	TokenID      string
	Outcome      Outcome
	Price        float64
	Shares       float64
	Notional     float64
	OrderID      string
	Status       OrderStatus
	FillPrice    float64
	Fees         float64
}

// SnapshotRecord captures the fused book at decision time.
type SnapshotRecord struct {
	DecisionID   string
	Time         time.Time
	Strategy     string
	Symbol       string
	InstrumentID string
	Reference    float64
	Baseline     float64
	UpBid        float64
	UpAsk        float64
	DownBid      float64
	DownAsk      float64
	FairUp       float64
	FairDown     float64
	TimeLeft     time.Duration
}

// PositionClose records how and at what price a position left the book.
type PositionClose struct {
	ID          string
	ExitPrice   float64
	RealizedPnL float64
	Reason      ExitReason
	OrderID     string
	ClosedAt    time.Time
}

// Journal is the append-only audit trail of decisions, trades and positions.
type Journal interface {
	LogDecision(ctx context.Context, d Decision) error
	LogTrade(ctx context.Context, t TradeRecord) error
	LogSnapshot(ctx context.Context, s SnapshotRecord) error
	OpenPosition(ctx context.Context, p Position) error
	ClosePosition(ctx context.Context, c PositionClose) error
	UpdatePositionExtremes(ctx context.Context, id string, high, low float64) error
	Close() error
}

// Alerter delivers operator notifications.
type Alerter interface {
	Notify(ctx context.Context, event, title, message string) error
}

// DailyStats aggregates the positions closed on one UTC day.
type DailyStats struct {
	Date          string  `json:"date"`
	TotalTrades   int     `json:"total_trades"`
	WinningTrades int     `json:"winning_trades"`
	LosingTrades  int     `json:"losing_trades"`
	TotalPnL      float64 `json:"total_pnl"`
	GrossProfit   float64 `json:"gross_profit"`
	GrossLoss     float64 `json:"gross_loss"`
	BestTrade     float64 `json:"best_trade"`
	WorstTrade    float64 `json:"worst_trade"`
}

// StatsReader reads aggregated journal statistics.
type StatsReader interface {
	DailyStats(ctx context.Context, day time.Time) (DailyStats, error)
}
