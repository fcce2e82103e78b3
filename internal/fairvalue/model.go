// Package fairvalue prices binary up/down instruments from the move of a
// reference asset since the window opened.
package fairvalue

import (
	"math"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

const (
	// Floor and Ceiling bound the up probability so the model never claims
	// certainty.
	Floor   = 0.08
	Ceiling = 0.92

	// MaxAsk is the highest ask considered tradable.
	MaxAsk = 0.95
)

// Model is a logistic map from reference move to up probability. A positive
// Sensitivity is momentum (a rising reference favours Up), a negative one is
// mean reversion.
type Model struct {
	Sensitivity float64
}

// Evaluate returns the fair probabilities of Up and Down. They always sum to
// exactly one. Missing reference or baseline prices yield (0.5, 0.5).
func (m Model) Evaluate(state domain.MarketState) (up, down float64) {
	if state.Reference <= 0 || state.Baseline <= 0 {
		return 0.5, 0.5
	}
	return m.Probability(state.Move())
}

// Probability maps a fractional move to (up, down).
func (m Model) Probability(move float64) (up, down float64) {
	up = 1 / (1 + math.Exp(-m.Sensitivity*move))
	up = math.Max(Floor, math.Min(Ceiling, up))
	return up, 1 - up
}

// Opportunity is a side whose fair value exceeds its ask.
type Opportunity struct {
	Outcome domain.Outcome
	TokenID string
	Edge    float64
	Fair    float64
	Ask     float64
}

// Edges returns the per-side edges. A side with no quote, a crossed book or
// an ask at or above MaxAsk gets an edge of -1.
func Edges(state domain.MarketState, fairUp, fairDown float64) (upEdge, downEdge float64) {
	upEdge, downEdge = -1, -1
	if state.Quoted(domain.OutcomeUp) && state.UpAsk < MaxAsk {
		upEdge = fairUp - state.UpAsk
	}
	if state.Quoted(domain.OutcomeDown) && state.DownAsk < MaxAsk {
		downEdge = fairDown - state.DownAsk
	}
	return upEdge, downEdge
}

// Detect returns the side with the larger positive edge. Up is evaluated first
// and wins ties.
func (m Model) Detect(state domain.MarketState) (Opportunity, bool) {
	fairUp, fairDown := m.Evaluate(state)
	upEdge, downEdge := Edges(state, fairUp, fairDown)

	switch {
	case upEdge > 0 && upEdge >= downEdge:
		return Opportunity{
			Outcome: domain.OutcomeUp,
			TokenID: state.UpToken,
			Edge:    upEdge,
			Fair:    fairUp,
			Ask:     state.UpAsk,
		}, true
	case downEdge > 0:
		return Opportunity{
			Outcome: domain.OutcomeDown,
			TokenID: state.DownToken,
			Edge:    downEdge,
			Fair:    fairDown,
			Ask:     state.DownAsk,
		}, true
	default:
		return Opportunity{}, false
	}
}
