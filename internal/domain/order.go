package domain

import "time"

// OrderSide indicates whether this is a buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// OrderType indicates the time-in-force policy.
type OrderType string

const (
	OrderTypeGTC OrderType = "GTC" // Good-Till-Cancelled
	OrderTypeFOK OrderType = "FOK" // Fill-Or-Kill
	OrderTypeFAK OrderType = "FAK" // Fill-And-Kill
)

// OrderStatus tracks the order lifecycle.
type OrderStatus string

const (
	OrderStatusMatched   OrderStatus = "matched"
	OrderStatusLive      OrderStatus = "live"
	OrderStatusDelayed   OrderStatus = "delayed"
	OrderStatusSimulated OrderStatus = "simulated"
	OrderStatusFailed    OrderStatus = "failed"
)

// OrderRequest is a limit order for one outcome token. Price is a probability
// in (0, 1); Size is a share count.
type OrderRequest struct {
	Strategy string
	TokenID  string
	Side     OrderSide
	Type     OrderType
	Price    float64
	Size     float64
}

// Notional is the USDC value of the order at its limit price.
func (r OrderRequest) Notional() float64 {
	return r.Price * r.Size
}

// OrderResult wraps the venue response after order submission.
type OrderResult struct {
	Success     bool
	OrderID     string
	Status      OrderStatus
	Message     string
	FilledPrice float64
	SubmittedAt time.Time
}
