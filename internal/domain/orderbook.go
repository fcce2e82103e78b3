package domain

import "time"

// BookUpdate is a normalized top-of-book change for one outcome token. A side
// is only applied when its Has flag is set.
type BookUpdate struct {
	TokenID   string
	Bid       float64
	HasBid    bool
	Ask       float64
	HasAsk    bool
	Timestamp time.Time
}

// ReferenceTick is one trade print from the reference-price venue.
type ReferenceTick struct {
	Symbol    string // base asset, e.g. "BTC"
	Price     float64
	Timestamp time.Time
}
