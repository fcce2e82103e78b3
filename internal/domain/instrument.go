package domain

import "time"

// Outcome names one side of a binary up/down instrument.
type Outcome string

const (
	OutcomeUp   Outcome = "Up"
	OutcomeDown Outcome = "Down"
)

// Opposite returns the other side of the instrument.
func (o Outcome) Opposite() Outcome {
	if o == OutcomeUp {
		return OutcomeDown
	}
	return OutcomeUp
}

// Instrument is one tradable up/down market for a symbol. It is replaced
// wholesale when the market window rolls over.
type Instrument struct {
	ID        string // condition id
	Symbol    string // e.g. "BTC"
	Slug      string
	Question  string
	UpToken   string
	DownToken string
	Expiry    time.Time
}

// Token returns the token id for the given outcome.
func (i Instrument) Token(o Outcome) string {
	if o == OutcomeUp {
		return i.UpToken
	}
	return i.DownToken
}

// Label is a short human readable name used in logs and journal rows.
func (i Instrument) Label() string {
	if i.Question != "" {
		return i.Question
	}
	if i.Slug != "" {
		return i.Slug
	}
	return i.Symbol
}

// MarketState fuses the reference-price feed and the order-book feed for one
// instrument. Bids of zero and asks of one mean "no quote"; a side whose bid
// exceeds its ask is crossed and is treated the same way.
type MarketState struct {
	Instrument

	Reference float64
	Baseline  float64

	UpBid   float64
	UpAsk   float64
	DownBid float64
	DownAsk float64

	ReferenceTicks int64
	BookTicks      int64
	UpdatedAt      time.Time
}

// NewMarketState returns an empty state for inst with asks at the no-quote
// default.
func NewMarketState(inst Instrument) MarketState {
	return MarketState{Instrument: inst, UpAsk: 1, DownAsk: 1}
}

// HasData reports whether the state is complete enough to price.
func (s MarketState) HasData(minReferenceTicks int) bool {
	return s.UpToken != "" &&
		s.Reference > 0 &&
		s.Baseline > 0 &&
		s.UpBid > 0 &&
		s.ReferenceTicks >= int64(minReferenceTicks)
}

// Move is the fractional reference move since the baseline, or 0 when either
// price is missing.
func (s MarketState) Move() float64 {
	if s.Reference <= 0 || s.Baseline <= 0 {
		return 0
	}
	return (s.Reference - s.Baseline) / s.Baseline
}

// TimeLeft returns the time until expiry, floored at zero.
func (s MarketState) TimeLeft(now time.Time) time.Duration {
	if s.Expiry.IsZero() {
		return 0
	}
	left := s.Expiry.Sub(now)
	if left < 0 {
		return 0
	}
	return left
}

// Bid returns the best bid for an outcome.
func (s MarketState) Bid(o Outcome) float64 {
	if o == OutcomeUp {
		return s.UpBid
	}
	return s.DownBid
}

// Ask returns the best ask for an outcome.
func (s MarketState) Ask(o Outcome) float64 {
	if o == OutcomeUp {
		return s.UpAsk
	}
	return s.DownAsk
}

// Crossed reports whether both sides of o are quoted and the bid is above
// the ask.
func (s MarketState) Crossed(o Outcome) bool {
	bid, ask := s.Bid(o), s.Ask(o)
	return bid > 0 && ask < 1 && bid > ask
}

// Quoted reports whether o can be bought: its ask is present and the book is
// not crossed.
func (s MarketState) Quoted(o Outcome) bool {
	ask := s.Ask(o)
	return ask > 0 && ask < 1 && !s.Crossed(o)
}

// ExitBid returns the bid a position on o can be marked and sold at, or 0
// when the bid is missing or the book is crossed.
func (s MarketState) ExitBid(o Outcome) float64 {
	if s.Crossed(o) {
		return 0
	}
	return s.Bid(o)
}

// Mid returns the mid price for an outcome, or 0.5 when one side has no
// quote or the book is crossed.
func (s MarketState) Mid(o Outcome) float64 {
	bid, ask := s.Bid(o), s.Ask(o)
	if bid > 0 && ask < 1 && bid <= ask {
		return (bid + ask) / 2
	}
	return 0.5
}
