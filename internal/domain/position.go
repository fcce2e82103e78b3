package domain

import "time"

// PositionStatus tracks the exit state machine of a position.
type PositionStatus string

const (
	PositionStatusOpen    PositionStatus = "open"
	PositionStatusClosing PositionStatus = "closing"
	PositionStatusClosed  PositionStatus = "closed"
)

// ExitReason names the trigger that closed a position.
type ExitReason string

const (
	ExitTakeProfit    ExitReason = "take_profit"
	ExitStopLoss      ExitReason = "stop_loss"
	ExitMarketClosing ExitReason = "market_closing"
	ExitTrailingStop  ExitReason = "trailing_stop"
	ExitMarketExpired ExitReason = "market_expired"
)

// Position is a held outcome token for one instrument of one strategy.
type Position struct {
	ID           string // risk ledger id
	Strategy     string
	Symbol       string
	InstrumentID string
	Label        string
	Outcome      Outcome
	TokenID      string
	EntryPrice   float64
	EntryFair    float64
	EntryEdge    float64
	Shares       float64
	Notional     float64
	OrderID      string
	HighWater    float64
	LowWater     float64
	LastBid      float64
	Status       PositionStatus
	OpenedAt     time.Time
}

// UnrealizedPnL values the position at bid.
func (p Position) UnrealizedPnL(bid float64) float64 {
	return (bid - p.EntryPrice) * p.Shares
}
